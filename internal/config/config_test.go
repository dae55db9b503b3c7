// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":9090", cfg.GRPCAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "node-1", cfg.Raft.NodeID)
	assert.True(t, cfg.Raft.Bootstrap)
}

func TestLoad_EnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("STREAMFORM_HTTP_ADDR", ":9999")
	t.Setenv("STREAMFORM_LOG_LEVEL", "debug")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	_, err := Load("/nonexistent/streamform/config.yaml", nil)
	assert.Error(t, err)
}

func TestLoad_YAMLFileOverridesDefaults(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "streamform-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString("http_addr: \":7070\"\ntransform:\n  allow_unresolved_intrinsics: true\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfg, err := Load(f.Name(), nil)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.HTTPAddr)
	assert.True(t, cfg.Transform.AllowUnresolvedIntrinsics)
}
