// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package serialization saves and restores trees (parameters or optimizer
// state) as SafeTensors files with a SHA-256 checksum.
//
// Example:
//
//	state, _ := tx.Init(params)
//	// ... train ...
//	err := serialization.WriteTree("opt.safetensors", state, map[string]string{"step": "1000"})
//
//	template, _ := tx.Init(params)
//	restored, meta, err := serialization.ReadTree("opt.safetensors", template)
package serialization

import (
	"io"

	"github.com/born-ml/optix/internal/serialization"
	"github.com/born-ml/optix/internal/tree"
)

// Sentinel errors.
var (
	ErrChecksumMismatch = serialization.ErrChecksumMismatch
	ErrInvalidHeader    = serialization.ErrInvalidHeader
	ErrMissingTensor    = serialization.ErrMissingTensor
	ErrUnexpectedTensor = serialization.ErrUnexpectedTensor
	ErrTensorMismatch   = serialization.ErrTensorMismatch
	ErrReservedMetadata = serialization.ErrReservedMetadata
	ErrDuplicateTensor  = serialization.ErrDuplicateTensor
)

// ValidationError details a malformed file.
type ValidationError = serialization.ValidationError

// WriteTree writes n to path.
func WriteTree(path string, n tree.Node, metadata map[string]string) error {
	return serialization.WriteTree(path, n, metadata)
}

// ReadTree reads path into a tree shaped like template.
func ReadTree(path string, template tree.Node) (tree.Node, map[string]string, error) {
	return serialization.ReadTree(path, template)
}

// EncodeTree writes n to w.
func EncodeTree(w io.Writer, n tree.Node, metadata map[string]string) error {
	return serialization.EncodeTree(w, n, metadata)
}

// DecodeTree reads r into a tree shaped like template.
func DecodeTree(r io.Reader, template tree.Node) (tree.Node, map[string]string, error) {
	return serialization.DecodeTree(r, template)
}
