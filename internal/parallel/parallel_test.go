package parallel

import (
	"sync/atomic"
	"testing"
)

func TestFor(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 16}

	var counter int64
	n := 1000
	seen := make([]int32, n)

	For(n, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			atomic.AddInt32(&seen[i], 1)
		}
		atomic.AddInt64(&counter, int64(hi-lo))
	}, cfg)

	if counter != int64(n) {
		t.Errorf("Expected %d, got %d", n, counter)
	}
	for i, s := range seen {
		if s != 1 {
			t.Fatalf("index %d visited %d times", i, s)
		}
	}
}

func TestFor_Sequential(t *testing.T) {
	cfg := Config{Enabled: false}

	calls := 0
	For(100, func(lo, hi int) {
		calls++
		if lo != 0 || hi != 100 {
			t.Errorf("expected one chunk [0,100), got [%d,%d)", lo, hi)
		}
	}, cfg)

	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestFor_SmallInputRunsInline(t *testing.T) {
	cfg := DefaultConfig()

	calls := 0
	For(10, func(_, _ int) {
		calls++
	}, cfg)

	if calls != 1 {
		t.Errorf("Expected small input to run as one chunk, got %d", calls)
	}
}

func TestFor_Empty(t *testing.T) {
	For(0, func(_, _ int) {
		t.Error("f must not be called for n == 0")
	}, DefaultConfig())
}
