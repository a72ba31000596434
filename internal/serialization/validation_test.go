package serialization

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTensorOffsets(t *testing.T) {
	tests := []struct {
		name     string
		tensors  []TensorMeta
		dataSize int64
		wantType string
		want     error
	}{
		{
			name: "contiguous",
			tensors: []TensorMeta{
				{Name: "a", Offset: 0, Size: 100},
				{Name: "b", Offset: 100, Size: 200},
				{Name: "c", Offset: 300, Size: 150},
			},
			dataSize: 500,
		},
		{
			name: "overlap by one byte",
			tensors: []TensorMeta{
				{Name: "a", Offset: 0, Size: 100},
				{Name: "b", Offset: 99, Size: 100},
			},
			dataSize: 200,
			wantType: "offset_overlap",
			want:     ErrOffsetOverlap,
		},
		{
			name:     "past end",
			tensors:  []TensorMeta{{Name: "a", Offset: 50, Size: 100}},
			dataSize: 120,
			wantType: "out_of_bounds",
			want:     ErrOutOfBounds,
		},
		{
			name:     "negative size",
			tensors:  []TensorMeta{{Name: "a", Offset: 8, Size: -8}},
			dataSize: 16,
			wantType: "negative_offset",
			want:     ErrNegativeOffset,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTensorOffsets(tt.tensors, tt.dataSize)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.wantType, ve.Type)
		})
	}
}

func TestValidateTensorName(t *testing.T) {
	valid := []string{"$", "w", "0.mu.w", "1.inner_state.nu"}
	for _, name := range valid {
		assert.NoError(t, ValidateTensorName(name), name)
	}

	invalid := []struct {
		name string
		want error
	}{
		{"", ErrInvalidTensorName},
		{"../etc/passwd", ErrInvalidTensorName},
		{"a/b", ErrInvalidTensorName},
		{`a\b`, ErrInvalidTensorName},
		{"a\x00b", ErrInvalidTensorName},
		{"0..mu", ErrInvalidTensorName},
		{strings.Repeat("x", MaxTensorNameLen+1), ErrTensorNameTooLong},
	}
	for _, tt := range invalid {
		assert.ErrorIs(t, ValidateTensorName(tt.name), tt.want, "%q", tt.name)
	}
}

func TestChecksum(t *testing.T) {
	sum := ComputeChecksum([]byte("optix"))
	parsed, err := ParseChecksum(strings.Repeat("ab", 32))
	require.NoError(t, err)
	assert.ErrorIs(t, ValidateChecksum(sum, parsed), ErrChecksumMismatch)
	assert.NoError(t, ValidateChecksum(sum, sum))

	_, err = ParseChecksum("abcd")
	assert.ErrorIs(t, err, ErrInvalidHeader)
}
