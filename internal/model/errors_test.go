// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFailure_ErrorIncludesOperatorAndPortContext(t *testing.T) {
	plain := NewFailure(MalformedInput, "missing %s", "name")
	assert.Equal(t, "MalformedInput: missing name", plain.Error())

	withOper := NewOperatorFailure(IndexOutOfRange, 7, "no such operator")
	assert.Equal(t, "IndexOutOfRange: operator 7: no such operator", withOper.Error())

	withPort := NewPortFailure(IndexOutOfRange, 7, 2, "port out of range")
	assert.Equal(t, "IndexOutOfRange: operator 7 port 2: port out of range", withPort.Error())
}

func TestFailure_IsMatchesOnKindAlone(t *testing.T) {
	err := NewOperatorFailure(HostpoolConflict, 3, "tag mismatch")
	assert.True(t, errors.Is(err, NewFailure(HostpoolConflict, "")))
	assert.False(t, errors.Is(err, NewFailure(MalformedInput, "")))
	assert.False(t, errors.Is(err, errors.New("not a failure")))
}

func TestFailureKind_StringCoversEveryKindAndUnknown(t *testing.T) {
	cases := map[FailureKind]string{
		MalformedInput:          "MalformedInput",
		IndexOutOfRange:         "IndexOutOfRange",
		InvalidParallelWidth:    "InvalidParallelWidth",
		HostpoolConflict:        "HostpoolConflict",
		StreamResolutionFailure: "StreamResolutionFailure",
		IntrinsicEvalFailure:    "IntrinsicEvalFailure",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
	assert.Equal(t, "Unknown", FailureKind(99).String())
}
