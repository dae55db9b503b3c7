// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

// Package config loads ServerConfig via viper: environment variables
// prefixed STREAMFORM_, an optional YAML file, and flags bound by the
// cobra command tree in cmd/streamformd.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// TransformOptions is the configuration-file/env-var surface for
// transform.Options: an explicit struct rather than a package-level
// singleton, bound the same way the rest of this package's options are.
type TransformOptions struct {
	AllowUnresolvedIntrinsics  bool `mapstructure:"allow_unresolved_intrinsics"`
	DisableThreadedPortPruning bool `mapstructure:"disable_threaded_port_pruning"`
}

// RaftConfig configures this node's participation in the completion-ledger
// cluster (internal/cluster).
type RaftConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	NodeID       string        `mapstructure:"node_id"`
	BindAddr     string        `mapstructure:"bind_addr"`
	DataDir      string        `mapstructure:"data_dir"`
	Bootstrap    bool          `mapstructure:"bootstrap"`
	JoinAddrs    []string      `mapstructure:"join_addrs"`
	ElectionTick time.Duration `mapstructure:"election_tick"`
}

// ServerConfig is the fully-resolved configuration for streamformd, loaded
// by Load from (in ascending priority) a YAML file, STREAMFORM_-prefixed
// environment variables, and bound flags.
type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
	GRPCAddr string `mapstructure:"grpc_addr"`
	LogLevel string `mapstructure:"log_level"`

	Transform TransformOptions `mapstructure:"transform"`
	Raft      RaftConfig       `mapstructure:"raft"`
}

// Defaults returns the configuration used when no file, environment
// variable, or flag overrides a field.
func Defaults() ServerConfig {
	return ServerConfig{
		HTTPAddr: ":8080",
		GRPCAddr: ":9090",
		LogLevel: "info",
		Raft: RaftConfig{
			NodeID:       "node-1",
			BindAddr:     "127.0.0.1:7946",
			DataDir:      "./data/raft",
			Bootstrap:    true,
			ElectionTick: time.Second,
		},
	}
}

// Load builds a ServerConfig from defaults, an optional file at path (empty
// skips file loading), STREAMFORM_-prefixed environment variables, and any
// flags bound in flags (nil skips flag binding).
func Load(path string, flags *pflag.FlagSet) (*ServerConfig, error) {
	v := viper.New()
	def := Defaults()
	v.SetDefault("http_addr", def.HTTPAddr)
	v.SetDefault("grpc_addr", def.GRPCAddr)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("raft.node_id", def.Raft.NodeID)
	v.SetDefault("raft.bind_addr", def.Raft.BindAddr)
	v.SetDefault("raft.data_dir", def.Raft.DataDir)
	v.SetDefault("raft.bootstrap", def.Raft.Bootstrap)
	v.SetDefault("raft.election_tick", def.Raft.ElectionTick)

	v.SetEnvPrefix("STREAMFORM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("config: binding flags: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}
