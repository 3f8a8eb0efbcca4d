package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/russo2100/trading-analytics-rag/internal/index"
	"github.com/russo2100/trading-analytics-rag/internal/logging"
	"github.com/russo2100/trading-analytics-rag/internal/mcp"
	"github.com/russo2100/trading-analytics-rag/internal/retrieval"
	"github.com/russo2100/trading-analytics-rag/internal/store"
	"github.com/russo2100/trading-analytics-rag/internal/telemetry"
	"github.com/russo2100/trading-analytics-rag/internal/watcher"
)

const metricsShutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	var (
		transport string
		noWatch   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server on stdio, exposing the retrieve, ask and session
tools and the tradingrag://sessions resource.

Logs go to ~/.tradingrag/logs/ because stdout carries the protocol.
When server.metrics_addr is set, Prometheus metrics are served on
/metrics. The server reloads the vector index after 'tradingrag index'
rewrites it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), transport, noWatch)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport type (stdio)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not reload the index when it changes on disk")

	return cmd
}

func runServe(ctx context.Context, transport string, noWatch bool) error {
	a, err := openApp(projectDir)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	cleanup, err := logging.SetupServeMode(a.cfg.Server.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer cleanup()

	deps, err := a.serverDeps()
	if err != nil {
		return err
	}
	if !scorerReachable(ctx, a.scorer) {
		slog.Warn("rerank_scorer_unreachable",
			slog.String("endpoint", a.cfg.Rerank.Endpoint),
			slog.String("fallback", "fused order"))
	}
	if res, err := index.Check(ctx, a.records, a.vector); err == nil && res.Stale() {
		slog.Warn("index_stale_at_startup", slog.String("status", res.String()))
	}

	server, err := mcp.NewServer(deps, a.cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The MCP transport ends on stdin EOF; take the others down with it.
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return server.Serve(ctx, transport)
	})
	if addr := a.cfg.Server.MetricsAddr; addr != "" {
		g.Go(func() error {
			return serveMetrics(ctx, addr, a)
		})
	}
	if !noWatch && a.cfg.Retrieval.VectorBackend != store.BackendChromem {
		w, err := watcher.NewIndexWatcher(a.indexDir(), watcher.Options{
			Files: []string{filepath.Base(a.cfg.Paths.VectorIndex)},
		})
		if err != nil {
			slog.Warn("index_watch_disabled", slog.String("error", err.Error()))
		} else {
			g.Go(func() error {
				defer w.Stop()
				return w.Run(ctx, func(ctx context.Context, events []watcher.FileEvent) error {
					return reloadIndexes(a, server, events)
				})
			})
		}
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// serverDeps builds the tool backends. A missing LLM leaves ask unavailable
// rather than failing the server.
func (a *app) serverDeps() (mcp.Deps, error) {
	pipeline, err := a.retriever()
	if err != nil {
		return mcp.Deps{}, err
	}
	deps := mcp.Deps{Retriever: pipeline, Sessions: a.records}

	ag, err := a.newAgent()
	if err != nil {
		slog.Warn("agent_unavailable", slog.String("error", err.Error()))
		return deps, nil
	}
	deps.Agent = ag

	gen, err := a.newGenerator()
	if err != nil {
		slog.Warn("generator_unavailable", slog.String("error", err.Error()))
		return deps, nil
	}
	deps.Answerer = gen
	return deps, nil
}

// reloadIndexes reopens the indexes after a rebuild and swaps the server's
// backends. On failure the server keeps the indexes it has. The agent is
// rebuilt over the new pipeline, so its history starts over.
func reloadIndexes(a *app, server *mcp.Server, events []watcher.FileEvent) error {
	slog.Info("index_reload_start", slog.Int("events", len(events)))
	if err := a.openIndexes(); err != nil {
		return err
	}
	deps, err := a.serverDeps()
	if err != nil {
		return err
	}
	server.SetDeps(deps)
	slog.Info("index_reload_complete", slog.Int("vectors", a.vector.Count()))
	return nil
}

// scorerReachable reports false only for a remote scorer whose health
// endpoint does not answer. Local scorers are always reachable.
func scorerReachable(ctx context.Context, scorer retrieval.Scorer) bool {
	hc, ok := scorer.(interface{ Available(context.Context) bool })
	return !ok || hc.Available(ctx)
}

// serveMetrics exposes the Prometheus registry until ctx is done.
func serveMetrics(ctx context.Context, addr string, a *app) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.Handler(a.registry))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("metrics_server_start", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
