// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestZapHclogWriter_WriteForwardsToLoggerAndReturnsLength(t *testing.T) {
	w := zapHclogWriter{logger: zaptest.NewLogger(t)}

	n, err := w.Write([]byte("raft: heartbeat timeout reached"))

	assert.NoError(t, err)
	assert.Equal(t, len("raft: heartbeat timeout reached"), n)
}
