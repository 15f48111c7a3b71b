package health

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSocketCheckerHealthyWhenListening(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "cidxd.sock")
	ln, err := net.Listen("unix", sockPath)
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	checker := NewSocketChecker(sockPath)
	result := checker.Check(context.Background())
	assert.True(t, result.Healthy)
}

func TestSocketCheckerUnhealthyWhenAbsent(t *testing.T) {
	checker := NewSocketChecker(filepath.Join(t.TempDir(), "missing.sock")).WithTimeout(200 * time.Millisecond)
	result := checker.Check(context.Background())
	assert.False(t, result.Healthy)
}

func TestStatusUpdateMarksStaleAfterRetries(t *testing.T) {
	s := NewStatus()
	cfg := Config{Retries: 2}

	stale := s.Update(Result{Healthy: false, CheckedAt: time.Now()}, cfg)
	assert.False(t, stale)

	stale = s.Update(Result{Healthy: false, CheckedAt: time.Now()}, cfg)
	assert.True(t, stale)
}

func TestStatusUpdateResetsOnSuccess(t *testing.T) {
	s := NewStatus()
	cfg := Config{Retries: 2}
	s.Update(Result{Healthy: false, CheckedAt: time.Now()}, cfg)
	s.Update(Result{Healthy: true, CheckedAt: time.Now()}, cfg)
	assert.Equal(t, 0, s.ConsecutiveFailures)
}
