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

	"concord/internal/client"
	"concord/internal/config"
	"concord/internal/gateway"
	"concord/internal/logger"
	"concord/internal/models"
	"concord/internal/observability"
	"concord/internal/rest"
	"concord/internal/version"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

var configFile = flag.String("config", "", "Path to configuration file")

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ver := version.GetInfo()

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging, ver)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, ver)
	if err != nil {
		slog.Error("Failed to initialize observability", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	// Wire metric recorders into the client when metrics are enabled
	clientOpts := []client.Option{}
	if cfg.Metrics.Enabled {
		restRec, err := observability.NewRestRecorder()
		if err != nil {
			slog.Error("Failed to create REST recorder", "error", err)
			os.Exit(1)
		}
		gwRec, err := observability.NewGatewayRecorder()
		if err != nil {
			slog.Error("Failed to create gateway recorder", "error", err)
			os.Exit(1)
		}
		clientOpts = append(clientOpts,
			client.WithRESTOptions(rest.WithRecorder(restRec)),
			client.WithGatewayOptions(gateway.WithRecorder(gwRec)),
		)
	}

	bot := client.New(cfg, log, clientOpts...)
	defer bot.Close()

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Start the operator status server if enabled
	var statusServer *http.Server
	if cfg.Status.Enabled {
		statusServer = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Status.Host, cfg.Status.Port),
			Handler: statusRouter(bot, cfg, ver, time.Now()),
		}
		go func() {
			slog.Info("Starting status server", "addr", statusServer.Addr)
			if err := statusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("Status server failed", "error", err)
			}
		}()
	}

	// Connect the gateway session
	connectCtx, cancelConnect := context.WithTimeout(context.Background(), time.Minute)
	if err := bot.Connect(connectCtx); err != nil {
		cancelConnect()
		slog.Error("Failed to connect", "error", err)
		os.Exit(1)
	}
	cancelConnect()
	slog.Info("Connected", "version", ver.Version, "instance_id", ver.InstanceID)

	// Wait for interrupt or a fatal session error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	fatal := make(chan error, 1)
	go func() { fatal <- bot.Wait() }()

	exitCode := 0
	select {
	case <-quit:
		slog.Info("Shutting down")
	case err := <-fatal:
		if err != nil {
			slog.Error("Gateway session failed", "error", err)
			exitCode = 1
		} else {
			slog.Info("Gateway session ended")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if statusServer != nil {
		if err := statusServer.Shutdown(ctx); err != nil {
			slog.Error("Status server forced to shutdown", "error", err)
		}
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}
	bot.Close()

	slog.Info("Shutdown complete")
	os.Exit(exitCode)
}

// statusRouter exposes liveness and session state for operators on the
// loopback status port.
func statusRouter(bot *client.Client, cfg *models.Config, ver version.Info, started time.Time) *mux.Router {
	r := mux.NewRouter()
	if cfg.Observability.Tracing.Enabled {
		r.Use(otelmux.Middleware(cfg.Observability.ServiceName))
	}

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		state := "disconnected"
		if s := bot.Gateway(); s != nil {
			state = s.State().String()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"state":       state,
			"version":     ver.Version,
			"git_commit":  ver.GitCommit,
			"instance_id": ver.InstanceID,
			"uptime":      time.Since(started).Round(time.Second).String(),
		})
	}).Methods(http.MethodGet)

	return r
}
