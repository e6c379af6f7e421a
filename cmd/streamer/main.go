package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rvaughn/predfeed/internal/config"
	"github.com/rvaughn/predfeed/internal/market"
	"github.com/rvaughn/predfeed/internal/model"
	"github.com/rvaughn/predfeed/internal/store"
	"github.com/rvaughn/predfeed/internal/stream"
	"github.com/rvaughn/predfeed/internal/venue/polymarket"
	"github.com/rvaughn/predfeed/internal/venue/predictfun"
	"github.com/rvaughn/predfeed/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/streamer.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting streamer",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"polymarket", cfg.Venues.Polymarket.Enabled,
		"predictfun", cfg.Venues.Predictfun.Enabled,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Optional snapshot writer
	var writer *store.Writer
	if cfg.Store.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Store.DB.Host,
			"port", cfg.Store.DB.Port,
			"database", cfg.Store.DB.Name,
		)
		pool, err := store.Connect(ctx, cfg.Store.DB)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		writer = store.NewWriter(store.WriterConfig{
			BatchSize:     cfg.Store.BatchSize,
			FlushInterval: cfg.Store.FlushInterval,
			BufferSize:    cfg.Store.BufferSize,
		}, pool, logger)
		if err := writer.Start(ctx); err != nil {
			logger.Error("failed to start writer", "error", err)
			os.Exit(1)
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			writer.Stop(stopCtx)
		}()
		logger.Info("database connected")
	}

	connCfg := stream.ConnConfig{
		Policy: stream.ReconnectPolicy{
			BaseDelay:   cfg.Connection.ReconnectBaseDelay,
			MaxAttempts: cfg.Connection.ReconnectMaxAttempts,
		},
		AutoReconnect: true,
		Transport: stream.TransportConfig{
			HandshakeTimeout: cfg.Connection.HandshakeTimeout,
			WriteTimeout:     cfg.Connection.WriteTimeout,
			PingInterval:     cfg.Connection.PingInterval,
			PingTimeout:      cfg.Connection.PingTimeout,
			BufferSize:       cfg.Connection.BufferSize,
		},
	}

	var conns []*stream.Conn
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Venues.Polymarket.Enabled {
		conn, err := startPolymarket(gctx, g, cfg.Venues.Polymarket, connCfg, writer, logger)
		if err != nil {
			logger.Error("failed to start polymarket", "error", err)
			os.Exit(1)
		}
		conns = append(conns, conn)
	}

	if cfg.Venues.Predictfun.Enabled {
		conn, err := startPredictfun(gctx, g, cfg.Venues.Predictfun, connCfg, writer, logger)
		if err != nil {
			logger.Error("failed to start predictfun", "error", err)
			os.Exit(1)
		}
		conns = append(conns, conn)
	}

	// Health server
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: createHealthHandler(conns, writer),
	}
	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	logger.Info("streamer running",
		"instance_id", cfg.Instance.ID,
		"connections", len(conns),
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Health.Port),
	)

	// Wait for shutdown or a connection goroutine error
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("connection failed", "error", err)
	}
	<-ctx.Done()

	logger.Info("shutting down...")

	for _, conn := range conns {
		conn.Close()
	}
	for _, conn := range conns {
		conn.Wait()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	healthServer.Shutdown(shutdownCtx)

	logger.Info("streamer stopped")
}

// startPolymarket connects to the CLOB market channel and watches every
// configured market's outcome tokens.
func startPolymarket(ctx context.Context, g *errgroup.Group, vcfg config.VenueConfig, connCfg stream.ConnConfig, writer *store.Writer, logger *slog.Logger) (*stream.Conn, error) {
	proto := polymarket.NewProtocol(vcfg.WSURL, logger)
	conn := stream.NewConn(proto, connCfg, logger)
	attachWriter(conn, writer, proto.Name())

	rest := polymarket.NewClient(vcfg.RestURL, polymarket.WithLogger(logger))
	resolver := market.NewResolver(rest, market.WithLogger(logger))

	if err := conn.Start(ctx); err != nil {
		return nil, fmt.Errorf("connect polymarket: %w", err)
	}
	for _, id := range vcfg.Markets {
		if _, err := resolver.WatchMarket(ctx, conn, id, nil); err != nil {
			conn.Close()
			return nil, err
		}
	}

	g.Go(func() error {
		conn.Wait()
		return nil
	})
	return conn, nil
}

// startPredictfun connects to the predict.fun feed. Markets are keyed
// by market id directly; no metadata endpoint is needed, so a static
// fetcher is built from the configured ids.
func startPredictfun(ctx context.Context, g *errgroup.Group, vcfg config.VenueConfig, connCfg stream.ConnConfig, writer *store.Writer, logger *slog.Logger) (*stream.Conn, error) {
	proto := predictfun.NewProtocol(vcfg.WSURL, vcfg.APIKey, logger)
	conn := stream.NewConn(proto, connCfg, logger)
	attachWriter(conn, writer, proto.Name())

	markets := make([]model.Market, 0, len(vcfg.Markets))
	for _, id := range vcfg.Markets {
		markets = append(markets, model.Market{ID: id, Active: true})
	}
	resolver := market.NewResolver(market.StaticFetcher(markets...),
		market.WithLogger(logger),
		market.WithSubscribeKey(func(m model.Market) string { return m.ID }),
	)

	if err := conn.Start(ctx); err != nil {
		return nil, fmt.Errorf("connect predictfun: %w", err)
	}
	for _, id := range vcfg.Markets {
		if _, err := resolver.WatchMarket(ctx, conn, id, nil); err != nil {
			conn.Close()
			return nil, err
		}
	}

	g.Go(func() error {
		conn.Wait()
		return nil
	})
	return conn, nil
}

func attachWriter(conn *stream.Conn, writer *store.Writer, venue string) {
	if writer == nil {
		return
	}
	conn.OnBook(writer.BookSink(venue))
	conn.OnTrade(writer.TradeSink(venue))
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(conns []*stream.Conn, writer *store.Writer) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		for _, conn := range conns {
			stats := conn.Stats()
			health.Components[stats.Venue] = map[string]interface{}{
				"state":         stats.State.String(),
				"subscriptions": stats.Subscriptions,
				"cached_assets": stats.CachedAssets,
			}
			switch stats.State {
			case stream.StateClosed:
				health.Status = "unhealthy"
			case stream.StateConnected:
				// healthy
			default:
				if health.Status == "healthy" {
					health.Status = "degraded"
				}
			}
		}

		if writer != nil {
			stats := writer.Stats()
			health.Components["writer"] = map[string]interface{}{
				"snapshot_inserts": stats.SnapshotInserts,
				"trade_inserts":    stats.TradeInserts,
				"errors":           stats.SnapshotErrors + stats.TradeErrors,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}
