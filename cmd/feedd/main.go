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

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantview/livefeed/internal/config"
	"github.com/quantview/livefeed/internal/database"
	"github.com/quantview/livefeed/internal/livedata"
	"github.com/quantview/livefeed/internal/model"
	"github.com/quantview/livefeed/internal/recorder"
	"github.com/quantview/livefeed/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/feedd.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting feedd",
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
		"base_url", cfg.Stream.BaseURL,
		"channels", cfg.Stream.Channels,
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

	// Connect to database when recording is enabled
	var pool *pgxpool.Pool
	var quoteRec *recorder.QuoteRecorder
	var signalRec *recorder.SignalRecorder

	if cfg.Recorder.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)

		pool, err = database.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		logger.Info("database connected")

		recCfg := recorder.Config{
			BatchSize:     cfg.Recorder.BatchSize,
			FlushInterval: cfg.Recorder.FlushInterval,
			BufferSize:    cfg.Recorder.BufferSize,
		}

		quoteRec = recorder.NewQuoteRecorder(recCfg, pool, logger)
		signalRec = recorder.NewSignalRecorder(recCfg, pool, logger)

		if err := quoteRec.Start(ctx); err != nil {
			logger.Error("failed to start quote recorder", "error", err)
			os.Exit(1)
		}
		if err := signalRec.Start(ctx); err != nil {
			logger.Error("failed to start signal recorder", "error", err)
			os.Exit(1)
		}
	}

	// Create live data coordinator
	liveCfg, err := livedata.FromStream(cfg.Stream)
	if err != nil {
		logger.Error("invalid stream config", "error", err)
		os.Exit(1)
	}

	svc := livedata.New(liveCfg, logger)

	svc.AddListener(livedata.Listener{
		OnConnect: func(ch livedata.Channel) {
			logger.Info("channel connected", "channel", string(ch))
		},
		OnDisconnect: func(ch livedata.Channel, err error) {
			logger.Warn("channel disconnected", "channel", string(ch), "error", err)
		},
		OnError: func(ch livedata.Channel, err error) {
			logger.Error("channel error", "channel", string(ch), "error", err)
		},
		OnAlert: func(a model.Alert) {
			logger.Info("alert triggered",
				"id", a.ID,
				"symbol", a.Symbol,
				"message", a.Message,
			)
		},
	})

	if cfg.Recorder.Enabled {
		svc.AddListener(livedata.Listener{
			OnQuote:  quoteRec.Enqueue,
			OnSignal: signalRec.Enqueue,
		})
	}

	// Queue the startup subscription before dialing so it flushes on open.
	if len(cfg.Stream.Symbols) > 0 {
		logger.Info("subscribing symbols", "symbols", cfg.Stream.Symbols)
	}

	svc.Connect()
	defer svc.Disconnect()

	if len(cfg.Stream.Symbols) > 0 {
		if err := svc.SubscribeSymbols(cfg.Stream.Symbols); err != nil {
			logger.Error("failed to subscribe symbols", "error", err)
		}
	}

	// Health server
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: createHealthHandler(svc, pool, quoteRec, signalRec),
	}

	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	logger.Info("feedd running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Health.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	healthServer.Shutdown(shutdownCtx)
	svc.Disconnect()

	if quoteRec != nil {
		quoteRec.Stop(shutdownCtx)
	}
	if signalRec != nil {
		signalRec.Stop(shutdownCtx)
	}

	logger.Info("feedd stopped")
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(svc *livedata.Service, pool *pgxpool.Pool, quoteRec *recorder.QuoteRecorder, signalRec *recorder.SignalRecorder) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		// Check channels
		status := svc.Status()
		channels := make(map[string]bool, len(status))
		openCount := 0
		for ch, open := range status {
			channels[string(ch)] = open
			if open {
				openCount++
			}
		}
		health.Components["channels"] = channels
		if openCount == 0 {
			health.Status = "unhealthy"
		} else if openCount < len(status) {
			health.Status = "degraded"
		}

		// Check database
		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["timescaledb"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["timescaledb"] = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/stats", func(w http.ResponseWriter, r *http.Request) {
		stats := map[string]interface{}{
			"stream": svc.Stats(),
		}
		if quoteRec != nil {
			stats["quote_recorder"] = quoteRec.Stats()
		}
		if signalRec != nil {
			stats["signal_recorder"] = signalRec.Stats()
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	})

	return mux
}
