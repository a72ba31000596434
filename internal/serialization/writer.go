package serialization

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/born-ml/optix/internal/tree"
)

// WriteTree writes n to path, replacing any existing file.
func WriteTree(path string, n tree.Node, metadata map[string]string) error {
	f, err := os.Create(path) //nolint:gosec // G304: path is caller-chosen
	if err != nil {
		return errors.Wrap(err, "create checkpoint")
	}
	if err := EncodeTree(f, n, metadata); err != nil {
		_ = f.Close()
		return err
	}
	return errors.Wrap(f.Close(), "close checkpoint")
}

// EncodeTree writes n to w in SafeTensors layout. Leaves are named by
// their tree path; metadata keys starting with "optix." are reserved.
func EncodeTree(w io.Writer, n tree.Node, metadata map[string]string) error {
	meta := make(map[string]string, len(metadata)+2)
	for k, v := range metadata {
		if strings.HasPrefix(k, reservedPrefix) {
			return errors.Wrapf(ErrReservedMetadata, "%q", k)
		}
		meta[k] = v
	}

	leaves := tree.Leaves(n)
	paths := tree.Paths(n)
	header := make(map[string]any, len(leaves)+1)
	var offset int64
	for i, leaf := range leaves {
		name := leafName(paths[i])
		if err := ValidateTensorName(name); err != nil {
			return errors.Wrap(err, "encode tree")
		}
		if name == metadataKey {
			return errors.Wrapf(ErrInvalidTensorName, "leaf %q shadows the metadata entry", name)
		}
		if _, dup := header[name]; dup {
			return errors.Wrapf(ErrDuplicateTensor, "%q", name)
		}
		entry, err := newEntry(leaf, offset)
		if err != nil {
			return errors.Wrapf(err, "leaf %q", name)
		}
		header[name] = entry
		offset = entry.DataOffsets[1]
	}

	sum := checksumTensors(leaves)
	meta[MetaFormat] = FormatTree
	meta[MetaChecksum] = hex.EncodeToString(sum[:])
	header[metadataKey] = meta

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "marshal header")
	}
	if pad := len(headerJSON) % 8; pad != 0 {
		headerJSON = append(headerJSON, []byte(strings.Repeat(" ", 8-pad))...)
	}

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return errors.Wrap(err, "write header size")
	}
	if _, err := bw.Write(headerJSON); err != nil {
		return errors.Wrap(err, "write header")
	}
	for i, leaf := range leaves {
		if _, err := bw.Write(leaf.Data()); err != nil {
			return errors.Wrapf(err, "write leaf %q", leafName(paths[i]))
		}
	}
	return errors.Wrap(bw.Flush(), "flush checkpoint")
}
