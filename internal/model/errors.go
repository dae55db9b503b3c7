// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

package model

import "fmt"

// FailureKind classifies a fatal condition raised while building or
// transforming a model. Every fatal error propagates to the top-level
// transform call as a *Failure; there is no partial physical model.
type FailureKind int

const (
	// MalformedInput reports a missing field, duplicate index, or dangling
	// reference discovered while walking the input tree.
	MalformedInput FailureKind = iota
	// IndexOutOfRange reports a lookup by operator/port/hostpool index that
	// failed to resolve.
	IndexOutOfRange
	// InvalidParallelWidth reports a parallel-region width that is <= 0 or
	// inconsistent with its annotation.
	InvalidParallelWidth
	// HostpoolConflict reports incompatible tags requested for the same
	// (region, channel) hostpool replica.
	HostpoolConflict
	// StreamResolutionFailure reports an import/export that resolved to
	// zero or more than one physical endpoint where exactly one is required.
	StreamResolutionFailure
	// IntrinsicEvalFailure reports text passed to the intrinsic evaluator
	// that did not parse.
	IntrinsicEvalFailure
)

func (k FailureKind) String() string {
	switch k {
	case MalformedInput:
		return "MalformedInput"
	case IndexOutOfRange:
		return "IndexOutOfRange"
	case InvalidParallelWidth:
		return "InvalidParallelWidth"
	case HostpoolConflict:
		return "HostpoolConflict"
	case StreamResolutionFailure:
		return "StreamResolutionFailure"
	case IntrinsicEvalFailure:
		return "IntrinsicEvalFailure"
	default:
		return "Unknown"
	}
}

// Failure is the single error type crossing the core's boundary. It never
// carries a partial result: every fatal condition aborts the transform.
type Failure struct {
	Kind          FailureKind
	OperatorIndex *uint64
	PortIndex     *int
	Message       string
}

func (f *Failure) Error() string {
	switch {
	case f.OperatorIndex != nil && f.PortIndex != nil:
		return fmt.Sprintf("%s: operator %d port %d: %s", f.Kind, *f.OperatorIndex, *f.PortIndex, f.Message)
	case f.OperatorIndex != nil:
		return fmt.Sprintf("%s: operator %d: %s", f.Kind, *f.OperatorIndex, f.Message)
	default:
		return fmt.Sprintf("%s: %s", f.Kind, f.Message)
	}
}

// Is supports errors.Is comparisons keyed on Kind alone, so callers can do
// errors.Is(err, model.NewFailure(model.IndexOutOfRange, "")) style checks.
func (f *Failure) Is(target error) bool {
	other, ok := target.(*Failure)
	if !ok {
		return false
	}
	return f.Kind == other.Kind
}

// NewFailure builds a Failure with no operator/port context.
func NewFailure(kind FailureKind, format string, args ...interface{}) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewOperatorFailure builds a Failure attributed to a specific operator index.
func NewOperatorFailure(kind FailureKind, operIndex uint64, format string, args ...interface{}) *Failure {
	idx := operIndex
	return &Failure{Kind: kind, OperatorIndex: &idx, Message: fmt.Sprintf(format, args...)}
}

// NewPortFailure builds a Failure attributed to a specific operator/port pair.
func NewPortFailure(kind FailureKind, operIndex uint64, portIndex int, format string, args ...interface{}) *Failure {
	oi, pi := operIndex, portIndex
	return &Failure{Kind: kind, OperatorIndex: &oi, PortIndex: &pi, Message: fmt.Sprintf(format, args...)}
}
