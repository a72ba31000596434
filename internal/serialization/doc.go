// Package serialization stores parameter and optimizer-state trees as
// SafeTensors files.
//
// # File layout
//
//	[8 bytes]  header size N, little-endian uint64
//	[N bytes]  JSON header, space padded to a multiple of 8
//	[rest]     raw little-endian tensor data
//
// The header maps each leaf's dotted tree path (see tree.Paths) to its
// dtype, shape and byte range in the data section. A tree that is a single
// leaf is stored under the name "$". The "__metadata__" entry carries
// caller metadata plus two reserved keys:
//
//	optix.format  "tree/v1"
//	optix.sha256  hex SHA-256 of the data section
//
// The tree structure itself is not stored. Readers supply a template (for
// example the result of a transformation's Init) and every template leaf
// must be present with the same dtype and shape. Files written by other
// SafeTensors producers load as long as their names match the template
// paths; the checksum is verified only when present.
//
// # Example
//
//	state, _ := tx.Init(params)
//	_ = serialization.WriteTree("state.safetensors", state, map[string]string{"step": "100"})
//
//	restored, meta, err := serialization.ReadTree("state.safetensors", state)
package serialization
