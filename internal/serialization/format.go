package serialization

import (
	"github.com/pkg/errors"

	"github.com/born-ml/optix/internal/tensor"
)

// Reserved metadata keys and values.
const (
	MetaFormat   = "optix.format"
	MetaChecksum = "optix.sha256"
	FormatTree   = "tree/v1"

	reservedPrefix = "optix."
	metadataKey    = "__metadata__"
	rootLeafName   = "$"
)

// TensorMeta locates one tensor in the data section.
type TensorMeta struct {
	Name   string
	Offset int64 // Byte offset from the start of the data section
	Size   int64 // Byte length
}

// tensorEntry is one header entry in SafeTensors layout.
type tensorEntry struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

func (e tensorEntry) meta(name string) TensorMeta {
	return TensorMeta{Name: name, Offset: e.DataOffsets[0], Size: e.DataOffsets[1] - e.DataOffsets[0]}
}

func (e tensorEntry) shape() tensor.Shape {
	s := make(tensor.Shape, len(e.Shape))
	for i, d := range e.Shape {
		s[i] = int(d)
	}
	return s
}

func newEntry(t *tensor.RawTensor, offset int64) (tensorEntry, error) {
	dt, err := dtypeToSafeTensors(t.DType())
	if err != nil {
		return tensorEntry{}, err
	}
	shape := make([]int64, t.Shape().Rank())
	for i, d := range t.Shape() {
		shape[i] = int64(d)
	}
	return tensorEntry{
		DType:       dt,
		Shape:       shape,
		DataOffsets: [2]int64{offset, offset + int64(t.ByteSize())},
	}, nil
}

func dtypeToSafeTensors(dt tensor.DataType) (string, error) {
	switch dt {
	case tensor.Float32:
		return "F32", nil
	case tensor.Float64:
		return "F64", nil
	case tensor.Int32:
		return "I32", nil
	case tensor.Int64:
		return "I64", nil
	case tensor.Uint8:
		return "U8", nil
	case tensor.Bool:
		return "BOOL", nil
	default:
		return "", errors.Wrapf(ErrUnsupportedDType, "%s", dt)
	}
}

func dtypeFromSafeTensors(s string) (tensor.DataType, error) {
	switch s {
	case "F32":
		return tensor.Float32, nil
	case "F64":
		return tensor.Float64, nil
	case "I32":
		return tensor.Int32, nil
	case "I64":
		return tensor.Int64, nil
	case "U8":
		return tensor.Uint8, nil
	case "BOOL":
		return tensor.Bool, nil
	default:
		return 0, errors.Wrapf(ErrUnsupportedDType, "%q", s)
	}
}

// leafName maps a tree path to its tensor name.
func leafName(path string) string {
	if path == "" {
		return rootLeafName
	}
	return path
}
