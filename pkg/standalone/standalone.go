// Package standalone runs one operation in-process against a freshly
// constructed daemon.Daemon, for the Lightweight Client's fallback path
// when no daemon is configured, reachable, or recoverable (spec.md §4.8
// step 6/8).
package standalone

import (
	"context"

	"github.com/jsbattig/cidx/pkg/cidxtypes"
	"github.com/jsbattig/cidx/pkg/config"
	"github.com/jsbattig/cidx/pkg/daemon"
	"github.com/jsbattig/cidx/pkg/rpcapi"
)

// Execute constructs a short-lived Daemon for repoRoot, runs op against it,
// and tears it down. Every call pays the full load cost (no warm cache),
// the explicit cost of skipping the daemon.
func Execute(ctx context.Context, cfg *config.Config, repoRoot string, op func(context.Context, *daemon.Daemon) error) error {
	d, err := daemon.New(cfg, repoRoot)
	if err != nil {
		return err
	}
	defer d.Close()

	return op(ctx, d)
}

// Query runs a one-shot semantic query standalone.
func Query(ctx context.Context, cfg *config.Config, repoRoot, text string, limit int) (rpcapi.QueryResponse, error) {
	var resp rpcapi.QueryResponse
	err := Execute(ctx, cfg, repoRoot, func(ctx context.Context, d *daemon.Daemon) error {
		var err error
		resp, err = d.Query(ctx, rpcapi.QueryRequest{RepoRequest: rpcapi.RepoRequest{RepoPath: repoRoot}, Text: text, Limit: limit})
		return err
	})
	return resp, err
}

// Index runs index_commits standalone, streaming progress to the supplied
// callback just as the RPC streaming path would.
func Index(ctx context.Context, cfg *config.Config, repoRoot string, req rpcapi.IndexRequest, progress func(cidxtypes.ProgressEvent)) (rpcapi.IndexResponse, error) {
	var resp rpcapi.IndexResponse
	err := Execute(ctx, cfg, repoRoot, func(ctx context.Context, d *daemon.Daemon) error {
		var err error
		resp, err = d.Index(ctx, req, progress)
		return err
	})
	return resp, err
}

// Status runs status(repo) standalone.
func Status(ctx context.Context, cfg *config.Config, repoRoot string) (rpcapi.StatusResponse, error) {
	var resp rpcapi.StatusResponse
	err := Execute(ctx, cfg, repoRoot, func(ctx context.Context, d *daemon.Daemon) error {
		var err error
		resp, err = d.Status(ctx, rpcapi.RepoRequest{RepoPath: repoRoot})
		return err
	})
	return resp, err
}

// Clean runs clean(repo) standalone.
func Clean(ctx context.Context, cfg *config.Config, repoRoot string, all bool, filePath string) (rpcapi.CleanResponse, error) {
	var resp rpcapi.CleanResponse
	err := Execute(ctx, cfg, repoRoot, func(ctx context.Context, d *daemon.Daemon) error {
		var err error
		resp, err = d.Clean(ctx, rpcapi.CleanRequest{RepoRequest: rpcapi.RepoRequest{RepoPath: repoRoot}, All: all, FilePath: filePath})
		return err
	})
	return resp, err
}
