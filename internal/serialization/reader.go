package serialization

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/born-ml/optix/internal/tensor"
	"github.com/born-ml/optix/internal/tree"
)

// ReadTree loads a file written by WriteTree. The result has the structure
// of template; the returned metadata excludes reserved keys.
func ReadTree(path string, template tree.Node) (tree.Node, map[string]string, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path is caller-chosen
	if err != nil {
		return nil, nil, errors.Wrap(err, "open checkpoint")
	}
	defer func() { _ = f.Close() }()
	return DecodeTree(f, template)
}

// DecodeTree reads a SafeTensors stream into a tree shaped like template.
//
// Every template leaf must be present with the same dtype and shape, and
// the file may not hold tensors the template lacks.
func DecodeTree(r io.Reader, template tree.Node) (tree.Node, map[string]string, error) {
	entries, meta, err := readHeader(r)
	if err != nil {
		return nil, nil, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, errors.Wrap(err, "read data section")
	}
	metas := make([]TensorMeta, 0, len(entries))
	for name, e := range entries {
		metas = append(metas, e.meta(name))
	}
	if err := ValidateTensorOffsets(metas, int64(len(data))); err != nil {
		return nil, nil, err
	}
	if stored, ok := meta[MetaChecksum]; ok {
		sum, err := ParseChecksum(stored)
		if err != nil {
			return nil, nil, err
		}
		if err := ValidateChecksum(ComputeChecksum(data), sum); err != nil {
			return nil, nil, err
		}
	}

	want := tree.Leaves(template)
	paths := tree.Paths(template)
	leaves := make([]*tensor.RawTensor, len(want))
	for i, path := range paths {
		name := leafName(path)
		e, ok := entries[name]
		if !ok {
			return nil, nil, errors.Wrapf(ErrMissingTensor, "%q", name)
		}
		delete(entries, name)

		dt, err := dtypeFromSafeTensors(e.DType)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "tensor %q", name)
		}
		shape := e.shape()
		if dt != want[i].DType() || !shape.Equal(want[i].Shape()) {
			return nil, nil, errors.Wrapf(ErrTensorMismatch, "%q: file has %s%v, template has %s%v",
				name, dt, shape, want[i].DType(), want[i].Shape())
		}
		leaves[i], err = tensor.FromBytes(data[e.DataOffsets[0]:e.DataOffsets[1]], shape, dt)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "tensor %q", name)
		}
	}
	if len(entries) > 0 {
		extra := make([]string, 0, len(entries))
		for name := range entries {
			extra = append(extra, name)
		}
		sort.Strings(extra)
		return nil, nil, errors.Wrapf(ErrUnexpectedTensor, "%s", strings.Join(extra, ", "))
	}

	out, err := tree.Unflatten(template, leaves)
	if err != nil {
		return nil, nil, errors.Wrap(err, "rebuild tree")
	}
	for k := range meta {
		if strings.HasPrefix(k, reservedPrefix) {
			delete(meta, k)
		}
	}
	return out, meta, nil
}

func readHeader(r io.Reader) (map[string]tensorEntry, map[string]string, error) {
	var size uint64
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, nil, errors.Wrap(err, "read header size")
	}
	if size > MaxHeaderSize {
		return nil, nil, errors.Wrapf(ErrHeaderTooLarge, "%d bytes", size)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, nil, errors.Wrap(err, "read header")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(buf, &raw); err != nil {
		return nil, nil, errors.Wrapf(ErrInvalidHeader, "%v", err)
	}

	meta := map[string]string{}
	if m, ok := raw[metadataKey]; ok {
		if len(m) > MaxMetadataSize {
			return nil, nil, errors.Wrapf(ErrHeaderTooLarge, "metadata is %d bytes", len(m))
		}
		if err := json.Unmarshal(m, &meta); err != nil {
			return nil, nil, errors.Wrapf(ErrInvalidHeader, "metadata: %v", err)
		}
		delete(raw, metadataKey)
	}
	if len(raw) > MaxTensorCount {
		return nil, nil, errors.Wrapf(ErrTooManyTensors, "got %d, max %d", len(raw), MaxTensorCount)
	}

	entries := make(map[string]tensorEntry, len(raw))
	for name, m := range raw {
		if err := ValidateTensorName(name); err != nil {
			return nil, nil, err
		}
		var e tensorEntry
		if err := json.Unmarshal(m, &e); err != nil {
			return nil, nil, errors.Wrapf(ErrInvalidHeader, "tensor %q: %v", name, err)
		}
		entries[name] = e
	}
	return entries, meta, nil
}
