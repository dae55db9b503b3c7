// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

// Package transform implements the logical-to-physical application
// transformer: logical model construction, parallel-region expansion,
// consistent-cut region discovery, and physical model construction.
package transform

// Options is an explicit struct threaded through Run rather than
// package-level global state. The transform carries no package-level
// mutable state; two concurrent Run calls with distinct Options never
// interfere.
type Options struct {
	// MainCompositeName names the composite the input tree roots at. No
	// stage of the transform reads it; construction takes the root from
	// the input application's MainComposite.
	MainCompositeName string

	// AllowUnresolvedIntrinsics is carried on Options but no stage of the
	// transform reads it: an unbalanced intrinsic call site always raises
	// IntrinsicEvalFailure, and non-intrinsic call sites are always left
	// untouched, whatever its value.
	AllowUnresolvedIntrinsics bool

	// DisableThreadedPortPruning skips the threaded-port late-removal
	// pass, useful for tests asserting the pre-pruning shape of the model.
	DisableThreadedPortPruning bool
}

// DefaultOptions returns the strict, fully-pruned configuration. Run does
// not apply it on its own; callers pass it explicitly.
func DefaultOptions() Options {
	return Options{MainCompositeName: "main"}
}
