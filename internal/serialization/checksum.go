package serialization

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/pkg/errors"

	"github.com/born-ml/optix/internal/tensor"
)

// ComputeChecksum computes SHA-256 checksum of data.
func ComputeChecksum(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// checksumTensors hashes the tensors' bytes in order, which equals
// ComputeChecksum over the data section they are written to.
func checksumTensors(ts []*tensor.RawTensor) [32]byte {
	h := sha256.New()
	for _, t := range ts {
		h.Write(t.Data())
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// ParseChecksum decodes a hex checksum as stored in metadata.
func ParseChecksum(s string) ([32]byte, error) {
	var sum [32]byte
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(sum) {
		return sum, errors.Wrapf(ErrInvalidHeader, "checksum %q is not 32 hex-encoded bytes", s)
	}
	copy(sum[:], b)
	return sum, nil
}

// ValidateChecksum compares computed checksum against stored checksum.
// Returns ErrChecksumMismatch if they don't match.
func ValidateChecksum(computed, stored [32]byte) error {
	if computed != stored {
		return errors.Wrapf(ErrChecksumMismatch, "computed %x, stored %x", computed[:4], stored[:4])
	}
	return nil
}
