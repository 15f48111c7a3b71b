// Command cidxd is the per-repository daemon process: it owns the Cache
// Entry, the Index Store connection, and the RPC surface described in
// spec.md §4.1, listening on a unix-domain socket.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jsbattig/cidx/pkg/config"
	"github.com/jsbattig/cidx/pkg/daemon"
	"github.com/jsbattig/cidx/pkg/log"
	"github.com/jsbattig/cidx/pkg/metrics"
	"github.com/jsbattig/cidx/pkg/rpcapi"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "cidxd",
	Short:   "cidx daemon: per-repository cache, watch, and temporal indexing service",
	Version: Version,
	RunE:    run,
}

func init() {
	rootCmd.Flags().String("repo", "", "repository root to serve (required)")
	rootCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().Bool("log-json", false, "output logs in JSON format")
	rootCmd.Flags().String("metrics-addr", "127.0.0.1:0", "address for the /metrics and /health endpoints")
	_ = rootCmd.MarkFlagRequired("repo")

	cobra.OnInitialize(func() {
		level, _ := rootCmd.Flags().GetString("log-level")
		jsonOut, _ := rootCmd.Flags().GetBool("log-json")
		log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
	})
}

func run(cmd *cobra.Command, args []string) error {
	repoRoot, _ := cmd.Flags().GetString("repo")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	absRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return err
	}

	configPath, err := config.Find(absRoot)
	if err != nil {
		return err
	}
	var cfg *config.Config
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
	} else {
		cfg = config.Default()
	}

	d, err := daemon.New(cfg, absRoot)
	if err != nil {
		return fmt.Errorf("cidxd: %w", err)
	}
	defer d.Close()

	socketPath := filepath.Join(filepath.Dir(configOrDefaultPath(configPath, absRoot)), "daemon.sock")
	server, err := rpcapi.NewServer(socketPath, d)
	if err != nil {
		return fmt.Errorf("cidxd: %w", err)
	}

	metrics.SetVersion(Version)
	metrics.RegisterComponent("cache", true, "ready")
	metrics.RegisterComponent("storage", true, "ready")
	metrics.RegisterComponent("rpc", false, "starting")

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())
		mux.Handle("/ready", metrics.ReadyHandler())
		mux.Handle("/live", metrics.LivenessHandler())
		if err := http.ListenAndServe(metricsAddr, mux); err != nil && err != http.ErrServerClosed {
			log.Logger.Warn().Err(err).Msg("metrics server error")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(); err != nil {
			errCh <- err
		}
	}()
	time.Sleep(50 * time.Millisecond)
	metrics.RegisterComponent("rpc", true, "ready")

	log.Logger.Info().Str("repo", absRoot).Str("socket", socketPath).Msg("cidxd started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Logger.Info().Msg("shutting down")
	case err := <-errCh:
		log.Logger.Error().Err(err).Msg("rpc server error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = d.Shutdown(ctx)
	server.Stop()
	return nil
}

func configOrDefaultPath(configPath, repoRoot string) string {
	if configPath != "" {
		return configPath
	}
	return filepath.Join(repoRoot, ".code-indexer", "config.json")
}
