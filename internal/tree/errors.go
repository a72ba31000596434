package tree

import "github.com/pkg/errors"

// Sentinel errors. Returned errors wrap these with the offending path;
// match with errors.Is.
var (
	// ErrStructureMismatch: two trees combined leaf-wise differ in node kinds,
	// sequence lengths or record keys.
	ErrStructureMismatch = errors.New("tree: structure mismatch")

	// ErrShapeMismatch: corresponding leaves have different shapes.
	ErrShapeMismatch = errors.New("tree: leaf shape mismatch")

	// ErrInvalidMask: a mask node is not a bool leaf where one is required.
	ErrInvalidMask = errors.New("tree: invalid mask")

	// ErrLeafCount: Unflatten received the wrong number of leaves.
	ErrLeafCount = errors.New("tree: leaf count mismatch")
)
