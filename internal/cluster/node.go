// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

package cluster

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb/v2"
	"go.uber.org/zap"

	"github.com/conjugate/streamform/internal/config"
)

// Node wraps a raft.Raft instance and its FSM, giving streamformd a single
// elected leader for completion-ledger writes while every node answers
// ledger reads locally.
type Node struct {
	raft   *raft.Raft
	fsm    *FSM
	logger *zap.Logger
}

// Start brings up a raft node per cfg.Raft: a bolt-backed log/stable store,
// a file snapshot store in cfg.Raft.DataDir, and a TCP transport bound to
// cfg.Raft.BindAddr. When cfg.Raft.Bootstrap is set and no existing state is
// found, the cluster is bootstrapped with this node plus every address in
// cfg.Raft.JoinAddrs.
func Start(cfg config.RaftConfig, logger *zap.Logger) (*Node, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("cluster: create data dir %s: %w", cfg.DataDir, err)
	}

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.NodeID)
	raftCfg.Logger = hclog.New(&hclog.LoggerOptions{
		Name:   "raft",
		Level:  hclog.Info,
		Output: zapHclogWriter{logger: logger},
	})
	if cfg.ElectionTick > 0 {
		raftCfg.HeartbeatTimeout = cfg.ElectionTick
		raftCfg.ElectionTimeout = cfg.ElectionTick
	}

	store, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft.db"))
	if err != nil {
		return nil, fmt.Errorf("cluster: open bolt store: %w", err)
	}

	snapshots, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, nil)
	if err != nil {
		return nil, fmt.Errorf("cluster: open snapshot store: %w", err)
	}

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("cluster: resolve bind addr %s: %w", cfg.BindAddr, err)
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("cluster: create tcp transport: %w", err)
	}

	fsm := NewFSM()
	r, err := raft.NewRaft(raftCfg, fsm, store, store, snapshots, transport)
	if err != nil {
		return nil, fmt.Errorf("cluster: start raft: %w", err)
	}

	if cfg.Bootstrap {
		hasState, err := raft.HasExistingState(store, store, snapshots)
		if err != nil {
			return nil, fmt.Errorf("cluster: check existing state: %w", err)
		}
		if !hasState {
			servers := []raft.Server{{ID: raftCfg.LocalID, Address: transport.LocalAddr()}}
			for _, addr := range cfg.JoinAddrs {
				servers = append(servers, raft.Server{ID: raft.ServerID(addr), Address: raft.ServerAddress(addr)})
			}
			if err := r.BootstrapCluster(raft.Configuration{Servers: servers}).Error(); err != nil {
				return nil, fmt.Errorf("cluster: bootstrap: %w", err)
			}
		}
	}

	return &Node{raft: r, fsm: fsm, logger: logger}, nil
}

// RecordCompletion replicates entry through raft. It blocks until the
// leader's log commits it, or returns an error wrapping raft.ErrNotLeader on
// a follower. It does not forward to the leader or retry.
func (n *Node) RecordCompletion(entry LedgerEntry) error {
	payload, err := EncodeRecordCommand(entry)
	if err != nil {
		return err
	}
	future := n.raft.Apply(payload, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("cluster: apply record command: %w", err)
	}
	return nil
}

// Lookup answers a ledger read locally, without going through raft.
func (n *Node) Lookup(requestID string) (LedgerEntry, bool) {
	return n.fsm.Lookup(requestID)
}

// IsLeader reports whether this node currently holds raft leadership.
func (n *Node) IsLeader() bool {
	return n.raft.State() == raft.Leader
}

// Shutdown gracefully stops the raft instance.
func (n *Node) Shutdown() error {
	return n.raft.Shutdown().Error()
}

// zapHclogWriter adapts a *zap.Logger to the io.Writer hclog.LoggerOptions
// expects, so raft's internal logging flows through the same structured
// logger as the rest of the daemon instead of a second, uncorrelated sink.
type zapHclogWriter struct {
	logger *zap.Logger
}

func (w zapHclogWriter) Write(p []byte) (int, error) {
	w.logger.Info(string(p))
	return len(p), nil
}
