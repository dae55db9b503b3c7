// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

package cluster

import (
	"bytes"
	"io"
	"testing"

	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memSnapshotSink is a minimal in-memory raft.SnapshotSink for exercising
// FSM.Snapshot/Restore without standing up a real file-backed snapshot store.
type memSnapshotSink struct {
	buf bytes.Buffer
}

func (s *memSnapshotSink) Write(p []byte) (int, error) { return s.buf.Write(p) }
func (s *memSnapshotSink) ID() string                  { return "test-snapshot" }
func (s *memSnapshotSink) Cancel() error               { return nil }
func (s *memSnapshotSink) Close() error                { return nil }
func (s *memSnapshotSink) reader() io.Reader           { return bytes.NewReader(s.buf.Bytes()) }

func applyRecord(t *testing.T, fsm *FSM, entry LedgerEntry) {
	t.Helper()
	payload, err := EncodeRecordCommand(entry)
	require.NoError(t, err)
	result := fsm.Apply(&raft.Log{Data: payload})
	if err, ok := result.(error); ok {
		require.NoError(t, err)
	}
}

func TestFSM_ApplyAndLookup(t *testing.T) {
	fsm := NewFSM()

	_, ok := fsm.Lookup("req-1")
	assert.False(t, ok)

	applyRecord(t, fsm, LedgerEntry{RequestID: "req-1", OutputDigest: "abc", Kind: "ok"})

	entry, ok := fsm.Lookup("req-1")
	require.True(t, ok)
	assert.Equal(t, "abc", entry.OutputDigest)
	assert.Equal(t, "ok", entry.Kind)
}

func TestFSM_ApplyUnknownOpReturnsError(t *testing.T) {
	fsm := NewFSM()
	result := fsm.Apply(&raft.Log{Data: []byte(`{"op":"bogus"}`)})
	_, isErr := result.(error)
	assert.True(t, isErr)
}

func TestFSM_SnapshotAndRestoreRoundTrips(t *testing.T) {
	fsm := NewFSM()
	applyRecord(t, fsm, LedgerEntry{RequestID: "req-1", Kind: "ok"})
	applyRecord(t, fsm, LedgerEntry{RequestID: "req-2", Kind: "failed"})

	snap, err := fsm.Snapshot()
	require.NoError(t, err)

	sink := &memSnapshotSink{}
	require.NoError(t, snap.Persist(sink))

	restored := NewFSM()
	require.NoError(t, restored.Restore(io.NopCloser(sink.reader())))

	e1, ok := restored.Lookup("req-1")
	require.True(t, ok)
	assert.Equal(t, "ok", e1.Kind)

	e2, ok := restored.Lookup("req-2")
	require.True(t, ok)
	assert.Equal(t, "failed", e2.Kind)
}
