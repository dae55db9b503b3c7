// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewUDFRegistry_RequiresRuntime(t *testing.T) {
	_, err := NewUDFRegistry(&UDFRegistryConfig{})
	assert.Error(t, err)
}

func TestRegistry_HasAndCallOnUnregisteredName(t *testing.T) {
	rt, err := NewRuntime(&Config{EnableJIT: false, Logger: zap.NewNop()})
	require.NoError(t, err)
	defer rt.Close()

	reg, err := NewUDFRegistry(&UDFRegistryConfig{Runtime: rt, DefaultPoolSize: 1, Logger: zap.NewNop()})
	require.NoError(t, err)

	assert.False(t, reg.Has("scoreLatency"))

	_, err = reg.Call(context.Background(), "scoreLatency", 1, 2)
	assert.Error(t, err)
	assert.Zero(t, reg.EvalCount())
}

func TestNewRuntime_NilConfigUsesDefaults(t *testing.T) {
	rt, err := NewRuntime(nil)
	require.NoError(t, err)
	defer rt.Close()
	assert.NotNil(t, rt)
}
