package tensor

import "testing"

func TestShapeNumElementsAndStrides(t *testing.T) {
	tests := []struct {
		shape   Shape
		n       int
		strides []int
	}{
		{Shape{}, 1, []int{}},
		{Shape{4}, 4, []int{1}},
		{Shape{2, 3, 4}, 24, []int{12, 4, 1}},
	}
	for _, tt := range tests {
		if got := tt.shape.NumElements(); got != tt.n {
			t.Errorf("%v.NumElements() = %d, want %d", tt.shape, got, tt.n)
		}
		got := tt.shape.Strides()
		if len(got) != len(tt.strides) {
			t.Fatalf("%v.Strides() = %v, want %v", tt.shape, got, tt.strides)
		}
		for i := range got {
			if got[i] != tt.strides[i] {
				t.Errorf("%v.Strides() = %v, want %v", tt.shape, got, tt.strides)
			}
		}
	}
}

func TestShapeCollapse(t *testing.T) {
	s := Shape{2, 3, 4}
	got, err := s.Collapse(0, 2)
	if err != nil {
		t.Fatalf("Collapse: %v", err)
	}
	if !got.Equal(Shape{1, 3, 1}) {
		t.Errorf("Collapse(0, 2) = %v, want [1 3 1]", got)
	}
	if !s.Equal(Shape{2, 3, 4}) {
		t.Errorf("Collapse modified its receiver: %v", s)
	}
	if _, err := s.Collapse(3); err == nil {
		t.Error("expected an error for an out-of-range axis")
	}
}

func TestShapeAxisVector(t *testing.T) {
	s := Shape{2, 3, 4}
	want := []Shape{{2, 1, 1}, {1, 3, 1}, {1, 1, 4}}
	for axis, w := range want {
		v := s.AxisVector(axis)
		if !v.Equal(w) {
			t.Errorf("AxisVector(%d) = %v, want %v", axis, v, w)
		}
		if !v.BroadcastsTo(s) {
			t.Errorf("AxisVector(%d) = %v does not broadcast back to %v", axis, v, s)
		}
	}
}

func TestShapeBroadcastsTo(t *testing.T) {
	tests := []struct {
		from, to Shape
		want     bool
	}{
		{Shape{}, Shape{2, 3}, true},
		{Shape{3}, Shape{2, 3}, true},
		{Shape{2, 1}, Shape{2, 3}, true},
		{Shape{2}, Shape{2, 3}, false},
		{Shape{2, 3}, Shape{3}, false},
		{Shape{2, 3}, Shape{2, 3}, true},
	}
	for _, tt := range tests {
		if got := tt.from.BroadcastsTo(tt.to); got != tt.want {
			t.Errorf("%v.BroadcastsTo(%v) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestShapeValidate(t *testing.T) {
	if err := (Shape{2, 3}).Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if err := (Shape{2, 0}).Validate(); err == nil {
		t.Error("expected an error for a zero dimension")
	}
	c := Shape{1, 2}.Clone()
	c[0] = 9
	if c.Equal(Shape{1, 2}) {
		t.Error("Clone must not share storage")
	}
}
