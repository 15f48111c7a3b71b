// Package clientrt implements the Lightweight Client's delegation state
// machine: detect daemon config, auto-start, connect with bounded
// exponential backoff, recover from crashes with bounded restarts, and
// fall back to in-process standalone execution, per spec.md §4.8.
package clientrt

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"google.golang.org/grpc"

	"github.com/jsbattig/cidx/pkg/cidxerr"
	"github.com/jsbattig/cidx/pkg/config"
	"github.com/jsbattig/cidx/pkg/health"
	"github.com/jsbattig/cidx/pkg/log"
	"github.com/jsbattig/cidx/pkg/rpcapi"
)

// MaxRestartAttempts bounds crash recovery, per spec.md §4.8 step 6.
const MaxRestartAttempts = 2

// Invoker calls one RPC method against an established connection and
// returns its outcome; supplied by the CLI command layer so clientrt stays
// agnostic of any one operation's request/response shape.
type Invoker func(ctx context.Context, cc *grpc.ClientConn) error

// StandaloneFallback runs the equivalent operation without a daemon.
type StandaloneFallback func(ctx context.Context) error

// Options configures one Run invocation.
type Options struct {
	RepoRoot   string
	DaemonPath string // path to the cidxd binary; defaults to looking up "cidxd" on PATH
	Invoke     Invoker
	Standalone StandaloneFallback
}

// Run drives the full state machine for one CLI invocation.
func Run(ctx context.Context, opts Options) error {
	logger := log.WithComponent("clientrt")

	configPath, err := config.Find(opts.RepoRoot)
	if err != nil {
		return err
	}
	if configPath == "" {
		logger.Debug().Msg("no daemon config found; running standalone")
		return opts.Standalone(ctx)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if !cfg.Daemon.Enabled {
		logger.Debug().Msg("daemon disabled in config; running standalone")
		return opts.Standalone(ctx)
	}

	sockPath := cfg.SocketPath()
	delays := cfg.Daemon.RetryDelaysMs

	for attempt := 0; attempt <= MaxRestartAttempts; attempt++ {
		if attempt > 0 {
			logger.Warn().Int("attempt", attempt).Int("max", MaxRestartAttempts).
				Msg("attempting daemon restart")
			if err := os.Remove(sockPath); err != nil && !os.IsNotExist(err) {
				logger.Warn().Err(err).Msg("failed to clean up stale socket")
			}
		}

		if !socketExists(sockPath) {
			if err := spawnDaemon(opts.DaemonPath, opts.RepoRoot); err != nil {
				logger.Warn().Err(err).Msg("failed to spawn daemon")
				continue
			}
		}

		cc, err := connectWithBackoff(ctx, sockPath, delays)
		if err == nil {
			defer cc.Close()
			return opts.Invoke(ctx, cc)
		}
		logger.Warn().Err(err).Msg("connection attempts exhausted; treating as crash")
	}

	logger.Warn().Msg("restart attempts exhausted; falling back to standalone")
	return opts.Standalone(ctx)
}

func socketExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func spawnDaemon(daemonPath, repoRoot string) error {
	if daemonPath == "" {
		daemonPath = "cidxd"
	}
	cmd := exec.Command(daemonPath, "--repo", repoRoot)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("clientrt: spawn daemon: %w", err)
	}
	return cmd.Process.Release()
}

// connectWithBackoff retries the dial using the configured delay sequence,
// probing liveness with a health.SocketChecker before each dial attempt. An
// empty delaysMs is the valid, explicit encoding of max_retries = 0 (per
// config.Validate's len(RetryDelaysMs) == MaxRetries invariant) and means
// zero retries -- immediate fallback to standalone, per spec.md §8 -- not a
// hardcoded default; Default() already supplies the fallback delay slice
// for callers that never loaded a config at all.
func connectWithBackoff(ctx context.Context, sockPath string, delaysMs []int) (*grpc.ClientConn, error) {
	checker := health.NewSocketChecker(sockPath)

	var lastErr error
	for i, ms := range delaysMs {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(ms) * time.Millisecond):
		}

		result := checker.Check(ctx)
		if !result.Healthy {
			lastErr = cidxerr.New(cidxerr.DaemonUnreachable, result.Message)
			continue
		}

		cc, err := rpcapi.Dial(ctx, sockPath, 2*time.Second)
		if err == nil {
			return cc, nil
		}
		lastErr = cidxerr.Wrap(cidxerr.DaemonUnreachable, fmt.Sprintf("connect attempt %d", i+1), err)
	}
	if lastErr == nil {
		lastErr = cidxerr.New(cidxerr.DaemonUnreachable, "no retry delays configured")
	}
	return nil, lastErr
}
