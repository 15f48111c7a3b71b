// Command cidx is the user-facing CLI: it detects whether a daemon is
// configured, delegates to it over the local socket, and falls back to
// standalone execution, per spec.md §4.8/§6.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/jsbattig/cidx/pkg/cidxerr"
	"github.com/jsbattig/cidx/pkg/cidxtypes"
	"github.com/jsbattig/cidx/pkg/clientrt"
	"github.com/jsbattig/cidx/pkg/config"
	"github.com/jsbattig/cidx/pkg/daemon"
	"github.com/jsbattig/cidx/pkg/log"
	"github.com/jsbattig/cidx/pkg/rpcapi"
	"github.com/jsbattig/cidx/pkg/standalone"
)

const (
	exitSuccess     = 0
	exitGeneral     = 1
	exitConfigError = 2
	exitUnreachable = 3
)

func main() {
	log.Init(log.Config{Level: log.InfoLevel})
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	kind, ok := cidxerr.KindOf(err)
	if !ok {
		return exitGeneral
	}
	switch kind {
	case cidxerr.DaemonUnreachable:
		return exitUnreachable
	case cidxerr.CheckpointInvalid, cidxerr.WrongRepository:
		return exitConfigError
	default:
		return exitGeneral
	}
}

var rootCmd = &cobra.Command{
	Use:     "cidx",
	Short:   "Semantic and lexical code search with a daemonized cache",
	Version: "dev",
}

func init() {
	rootCmd.PersistentFlags().String("repo", ".", "repository root")
	rootCmd.AddCommand(initCmd, configCmd, startCmd, stopCmd, queryCmd, indexCmd,
		watchCmd, watchStopCmd, cleanCmd, cleanDataCmd, statusCmd, daemonCmd)
}

func repoRoot(cmd *cobra.Command) (string, error) {
	r, _ := cmd.Flags().GetString("repo")
	return filepath.Abs(r)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create .code-indexer/config.json for this repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := repoRoot(cmd)
		if err != nil {
			return err
		}
		daemonEnabled, _ := cmd.Flags().GetBool("daemon")
		ttl, _ := cmd.Flags().GetInt("daemon-ttl")

		ttlOverride := ttl
		if ttlOverride <= 0 {
			ttlOverride = config.Default().Daemon.TTLMinutes
		}

		path := filepath.Join(root, ".code-indexer", "config.json")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		data, err := json.MarshalIndent(map[string]interface{}{
			"daemon":   config.Daemon{Enabled: daemonEnabled, TTLMinutes: ttlOverride, RetryDelaysMs: []int{100, 500, 1000, 2000}, MaxRetries: 4, EvictionCheckIntervalSeconds: 60},
			"temporal": config.Default().Temporal,
		}, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
		fmt.Printf("initialized %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().Bool("daemon", true, "enable the daemon")
	initCmd.Flags().Int("daemon-ttl", 0, "cache TTL in minutes")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update daemon configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := repoRoot(cmd)
		if err != nil {
			return err
		}
		path, err := config.Find(root)
		if err != nil {
			return err
		}
		if path == "" {
			return cidxerr.New(cidxerr.WrongRepository, "no .code-indexer/config.json found; run 'cidx init' first")
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}

		if show, _ := cmd.Flags().GetBool("show"); show {
			data, _ := json.MarshalIndent(cfg, "", "  ")
			fmt.Println(string(data))
			return nil
		}
		if cmd.Flags().Changed("daemon") {
			cfg.Daemon.Enabled, _ = cmd.Flags().GetBool("daemon")
		}
		if cmd.Flags().Changed("daemon-ttl") {
			ttl, _ := cmd.Flags().GetInt("daemon-ttl")
			cfg.Daemon.TTLMinutes = ttl
		}
		if cmd.Flags().Changed("auto-shutdown") {
			cfg.Daemon.AutoShutdownOnIdle, _ = cmd.Flags().GetBool("auto-shutdown")
		}
		if err := cfg.Validate(); err != nil {
			return cidxerr.Wrap(cidxerr.CheckpointInvalid, "invalid configuration", err)
		}
		return cfg.Save()
	},
}

func init() {
	configCmd.Flags().Bool("show", false, "print the current configuration")
	configCmd.Flags().Bool("daemon", true, "enable/disable the daemon")
	configCmd.Flags().Int("daemon-ttl", 30, "cache TTL in minutes")
	configCmd.Flags().Bool("auto-shutdown", false, "store daemon.auto_shutdown_on_idle in config.json (the daemon does not act on it; idle eviction only clears the cache)")
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon for this repository (no-op if already running)",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := repoRoot(cmd)
		if err != nil {
			return err
		}
		return clientrt.Run(context.Background(), clientrt.Options{
			RepoRoot: root,
			Invoke: func(ctx context.Context, cc *grpc.ClientConn) error {
				fmt.Println("daemon running")
				return nil
			},
			Standalone: func(ctx context.Context) error {
				fmt.Println("daemon disabled; running standalone")
				return nil
			},
		})
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon for this repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := repoRoot(cmd)
		if err != nil {
			return err
		}
		return clientrt.Run(context.Background(), clientrt.Options{
			RepoRoot: root,
			Invoke: func(ctx context.Context, cc *grpc.ClientConn) error {
				var resp rpcapi.SimpleStatusResponse
				if err := rpcapi.InvokeUnary(ctx, cc, "Shutdown", rpcapi.RepoRequest{RepoPath: root}, &resp); err != nil {
					return err
				}
				fmt.Println(resp.Status)
				return nil
			},
			Standalone: func(ctx context.Context) error {
				fmt.Println("no daemon running")
				return nil
			},
		})
	},
}

var queryCmd = &cobra.Command{
	Use:   "query TEXT",
	Short: "Search this repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := repoRoot(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		fts, _ := cmd.Flags().GetBool("fts")
		method := "Query"
		if fts {
			method = "QueryFTS"
		}

		req := rpcapi.QueryRequest{RepoRequest: rpcapi.RepoRequest{RepoPath: root}, Text: args[0], Limit: limit}

		return clientrt.Run(context.Background(), clientrt.Options{
			RepoRoot: root,
			Invoke: func(ctx context.Context, cc *grpc.ClientConn) error {
				var resp rpcapi.QueryResponse
				if err := rpcapi.InvokeUnary(ctx, cc, method, req, &resp); err != nil {
					return err
				}
				printResults(resp.Results)
				return nil
			},
			Standalone: func(ctx context.Context) error {
				cfg := config.Default()
				var resp rpcapi.QueryResponse
				var err error
				if fts {
					err = standalone.Execute(ctx, cfg, root, func(ctx context.Context, d *daemon.Daemon) error {
						var qerr error
						resp, qerr = d.QueryFTS(ctx, req)
						return qerr
					})
				} else {
					resp, err = standalone.Query(ctx, cfg, root, args[0], limit)
				}
				if err != nil {
					return err
				}
				printResults(resp.Results)
				return nil
			},
		})
	},
}

func init() {
	queryCmd.Flags().Int("limit", 10, "maximum results")
	queryCmd.Flags().Bool("fts", false, "use the lexical index instead of semantic search")
	queryCmd.Flags().Bool("semantic", true, "use semantic search (default)")
}

func printResults(results []cidxtypes.QueryResult) {
	for _, r := range results {
		fmt.Printf("%.4f  %s  %s\n", r.Score, r.FilePath, r.Snippet)
	}
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index this repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := repoRoot(cmd)
		if err != nil {
			return err
		}
		historical, _ := cmd.Flags().GetBool("index-commits")
		allBranches, _ := cmd.Flags().GetBool("all-branches")
		patterns, _ := cmd.Flags().GetStringSlice("branches")
		maxCommits, _ := cmd.Flags().GetInt("max-commits")
		sinceDate, _ := cmd.Flags().GetString("since-date")
		var sinceUnix int64
		if sinceDate != "" {
			t, err := time.Parse("2006-01-02", sinceDate)
			if err != nil {
				return fmt.Errorf("invalid --since-date %q: want YYYY-MM-DD", sinceDate)
			}
			sinceUnix = t.Unix()
		}

		mode := cidxtypes.ModeCurrent
		if historical {
			mode = cidxtypes.ModeCurrent
			if allBranches {
				mode = cidxtypes.ModeAll
			} else if len(patterns) > 0 {
				mode = cidxtypes.ModePatterns
			}
		}

		req := rpcapi.IndexRequest{
			RepoRequest:    rpcapi.RepoRequest{RepoPath: root},
			Mode:           mode,
			BranchPatterns: patterns,
			MaxCommits:     maxCommits,
			SinceUnix:      sinceUnix,
		}

		progress := func(ev cidxtypes.ProgressEvent) {
			fmt.Printf("[%d/%d] %s %s\n", ev.Current, ev.Total, ev.Path, ev.Info)
		}

		return clientrt.Run(context.Background(), clientrt.Options{
			RepoRoot: root,
			Invoke: func(ctx context.Context, cc *grpc.ClientConn) error {
				stream, err := rpcapi.OpenStream(ctx, cc, "Index", rpcapi.IndexStreamDesc, req)
				if err != nil {
					return err
				}
				for {
					var env rpcapi.StreamEnvelope
					if err := stream.RecvMsg(&env); err != nil {
						return err
					}
					if env.Progress != nil {
						progress(*env.Progress)
						continue
					}
					if env.Index != nil {
						fmt.Printf("status=%s total_commits=%d new_blobs=%d\n",
							env.Index.Status, env.Index.TotalCommits, env.Index.NewBlobsIndexed)
						return nil
					}
				}
			},
			Standalone: func(ctx context.Context) error {
				resp, err := standalone.Index(ctx, config.Default(), root, req, progress)
				if err != nil {
					return err
				}
				fmt.Printf("status=%s total_commits=%d new_blobs=%d\n",
					resp.Status, resp.TotalCommits, resp.NewBlobsIndexed)
				return nil
			},
		})
	},
}

func init() {
	indexCmd.Flags().Bool("index-commits", false, "enable --all-branches/--branches; without it the current branch's commit history is indexed")
	indexCmd.Flags().Bool("all-branches", false, "index commits reachable from any branch")
	indexCmd.Flags().StringSlice("branches", nil, "glob patterns selecting branches to index")
	indexCmd.Flags().Int("max-commits", 0, "cap on commits processed (0 = unbounded)")
	indexCmd.Flags().String("since-date", "", "only index commits at or after this date (YYYY-MM-DD)")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Start the filesystem watch handler",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := repoRoot(cmd)
		if err != nil {
			return err
		}
		req := rpcapi.WatchStartRequest{RepoRequest: rpcapi.RepoRequest{RepoPath: root}}

		return clientrt.Run(context.Background(), clientrt.Options{
			RepoRoot: root,
			Invoke: func(ctx context.Context, cc *grpc.ClientConn) error {
				stream, err := rpcapi.OpenStream(ctx, cc, "WatchStart", rpcapi.WatchStartStreamDesc, req)
				if err != nil {
					return err
				}
				for {
					var env rpcapi.StreamEnvelope
					if err := stream.RecvMsg(&env); err != nil {
						return err
					}
					if env.Progress != nil {
						fmt.Printf("[%d/%d] %s %s\n", env.Progress.Current, env.Progress.Total, env.Progress.Path, env.Progress.Info)
						continue
					}
					if env.Watch != nil {
						fmt.Println(env.Watch.Status)
						return nil
					}
				}
			},
			Standalone: func(ctx context.Context) error {
				return cidxerr.New(cidxerr.DaemonUnreachable, "watch requires a running daemon")
			},
		})
	},
}

var watchStopCmd = &cobra.Command{
	Use:   "watch-stop",
	Short: "Stop the filesystem watch handler",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := repoRoot(cmd)
		if err != nil {
			return err
		}
		return clientrt.Run(context.Background(), clientrt.Options{
			RepoRoot: root,
			Invoke: func(ctx context.Context, cc *grpc.ClientConn) error {
				var resp rpcapi.WatchStopResponse
				if err := rpcapi.InvokeUnary(ctx, cc, "WatchStop", rpcapi.RepoRequest{RepoPath: root}, &resp); err != nil {
					return err
				}
				fmt.Printf("status=%s files_processed=%d updates_applied=%d\n", resp.Status, resp.FilesProcessed, resp.UpdatesApplied)
				return nil
			},
			Standalone: func(ctx context.Context) error {
				fmt.Println("status=not_running")
				return nil
			},
		})
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove the index for this repository, keeping raw data",
	RunE:  runClean(false),
}

var cleanDataCmd = &cobra.Command{
	Use:   "clean-data",
	Short: "Remove the index and all raw indexed data for this repository",
	RunE:  runClean(true),
}

func runClean(data bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		root, err := repoRoot(cmd)
		if err != nil {
			return err
		}
		all, _ := cmd.Flags().GetBool("all")
		method := "Clean"
		if data {
			method = "CleanData"
		}
		req := rpcapi.CleanRequest{RepoRequest: rpcapi.RepoRequest{RepoPath: root}, All: all}

		return clientrt.Run(context.Background(), clientrt.Options{
			RepoRoot: root,
			Invoke: func(ctx context.Context, cc *grpc.ClientConn) error {
				var resp rpcapi.CleanResponse
				if err := rpcapi.InvokeUnary(ctx, cc, method, req, &resp); err != nil {
					return err
				}
				fmt.Printf("cache_invalidated=%v result=%s\n", resp.CacheInvalidated, resp.Result)
				return nil
			},
			Standalone: func(ctx context.Context) error {
				resp, err := standalone.Clean(ctx, config.Default(), root, all, "")
				if err != nil {
					return err
				}
				fmt.Printf("cache_invalidated=%v result=%s\n", resp.CacheInvalidated, resp.Result)
				return nil
			},
		})
	}
}

func init() {
	cleanCmd.Flags().Bool("all", true, "remove the entire index")
	cleanDataCmd.Flags().Bool("all", true, "remove all raw data")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and storage status for this repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := repoRoot(cmd)
		if err != nil {
			return err
		}
		return clientrt.Run(context.Background(), clientrt.Options{
			RepoRoot: root,
			Invoke: func(ctx context.Context, cc *grpc.ClientConn) error {
				var resp rpcapi.StatusResponse
				if err := rpcapi.InvokeUnary(ctx, cc, "Status", rpcapi.RepoRequest{RepoPath: root}, &resp); err != nil {
					return err
				}
				printStatus(resp)
				return nil
			},
			Standalone: func(ctx context.Context) error {
				resp, err := standalone.Status(ctx, config.Default(), root)
				if err != nil {
					return err
				}
				printStatus(resp)
				return nil
			},
		})
	},
}

func printStatus(resp rpcapi.StatusResponse) {
	data, _ := json.MarshalIndent(resp, "", "  ")
	fmt.Println(string(data))
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Low-level daemon inspection commands",
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon's own cache state",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := repoRoot(cmd)
		if err != nil {
			return err
		}
		return clientrt.Run(context.Background(), clientrt.Options{
			RepoRoot: root,
			Invoke: func(ctx context.Context, cc *grpc.ClientConn) error {
				var resp rpcapi.GetStatusResponse
				if err := rpcapi.InvokeUnary(ctx, cc, "GetStatus", rpcapi.RepoRequest{}, &resp); err != nil {
					return err
				}
				data, _ := json.MarshalIndent(resp, "", "  ")
				fmt.Println(string(data))
				return nil
			},
			Standalone: func(ctx context.Context) error {
				return cidxerr.New(cidxerr.DaemonUnreachable, "daemon status requires a running daemon")
			},
		})
	},
}

var daemonClearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Drop the daemon's in-memory cache without touching disk",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := repoRoot(cmd)
		if err != nil {
			return err
		}
		return clientrt.Run(context.Background(), clientrt.Options{
			RepoRoot: root,
			Invoke: func(ctx context.Context, cc *grpc.ClientConn) error {
				var resp rpcapi.SimpleStatusResponse
				if err := rpcapi.InvokeUnary(ctx, cc, "ClearCache", rpcapi.RepoRequest{}, &resp); err != nil {
					return err
				}
				fmt.Println(resp.Status)
				return nil
			},
			Standalone: func(ctx context.Context) error {
				fmt.Println("cleared")
				return nil
			},
		})
	},
}

func init() {
	daemonCmd.AddCommand(daemonStatusCmd, daemonClearCacheCmd)
}
