// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

// Package cluster runs streamformd as a replicated group of transform
// workers with a single elected leader (hashicorp/raft). Transform
// execution itself stays single-node per invocation — the core is
// synchronous and single-threaded — raft only replicates a small
// append-only ledger of completed transforms, so any follower can answer
// "was this logical app already transformed, and to what digest" without
// re-running the pipeline, and a new leader after failover inherits the
// full completion history.
package cluster

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"
)

// LedgerEntry is one completed transform, keyed by requestID.
type LedgerEntry struct {
	RequestID    string `json:"requestId"`
	InputDigest  string `json:"inputDigest"`
	OutputDigest string `json:"outputDigest"`
	Kind         string `json:"kind"` // "ok" or a model.FailureKind name
}

// command is the wire shape of every raft.Apply payload.
type command struct {
	Op    string      `json:"op"` // "record"
	Entry LedgerEntry `json:"entry"`
}

// FSM is the raft finite-state machine replicating the completion ledger.
// Reads (Lookup) never go through raft; only writes (RecordCompletion) do.
type FSM struct {
	mu      sync.RWMutex
	entries map[string]LedgerEntry
}

// NewFSM constructs an empty ledger FSM.
func NewFSM() *FSM {
	return &FSM{entries: make(map[string]LedgerEntry)}
}

// Apply implements raft.FSM: decode the command and apply it to the
// in-memory ledger. Returns the applied LedgerEntry (or an error) as the
// raft.ApplyFuture response.
func (f *FSM) Apply(log *raft.Log) interface{} {
	var cmd command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("cluster: decode raft log entry: %w", err)
	}
	switch cmd.Op {
	case "record":
		f.mu.Lock()
		f.entries[cmd.Entry.RequestID] = cmd.Entry
		f.mu.Unlock()
		return cmd.Entry
	default:
		return fmt.Errorf("cluster: unknown command op %q", cmd.Op)
	}
}

// Lookup returns the ledger entry for requestID, if any completed transform
// was recorded under it.
func (f *FSM) Lookup(requestID string) (LedgerEntry, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.entries[requestID]
	return e, ok
}

// fsmSnapshot is the raft.FSMSnapshot implementation for FSM.Snapshot.
type fsmSnapshot struct {
	entries map[string]LedgerEntry
}

// Snapshot implements raft.FSM, taking a point-in-time copy of the ledger.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	copied := make(map[string]LedgerEntry, len(f.entries))
	for k, v := range f.entries {
		copied[k] = v
	}
	return &fsmSnapshot{entries: copied}, nil
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		enc := json.NewEncoder(sink)
		return enc.Encode(s.entries)
	}()
	if err != nil {
		sink.Cancel()
		return fmt.Errorf("cluster: persist snapshot: %w", err)
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}

// Restore implements raft.FSM, replacing the ledger wholesale from a
// previously-persisted snapshot.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var entries map[string]LedgerEntry
	if err := json.NewDecoder(rc).Decode(&entries); err != nil {
		return fmt.Errorf("cluster: restore snapshot: %w", err)
	}
	f.mu.Lock()
	f.entries = entries
	f.mu.Unlock()
	return nil
}

// EncodeRecordCommand serializes a "record" command for raft.Apply.
func EncodeRecordCommand(entry LedgerEntry) ([]byte, error) {
	return json.Marshal(command{Op: "record", Entry: entry})
}
