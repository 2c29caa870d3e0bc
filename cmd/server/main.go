package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skypro1111/udp-request-server/internal/config"
	"github.com/skypro1111/udp-request-server/internal/handler"
	"github.com/skypro1111/udp-request-server/internal/metrics"
	"github.com/skypro1111/udp-request-server/internal/server"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "udp-request-server"
	serviceVersion    = "1.0.0"
)

// Process exit codes. exitBindError is reserved for the UDP socket.
const (
	exitOK          = 0
	exitConfigError = 1
	exitBindError   = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr,
		prometheus.DefaultRegisterer, prometheus.DefaultGatherer))
}

// run starts the service and blocks until ctx is cancelled. It returns the
// process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer,
	reg prometheus.Registerer, gatherer prometheus.Gatherer) int {

	// Parse command line flags
	flags := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", defaultConfigPath, "Path to configuration file")
	if err := flags.Parse(args); err != nil {
		return exitConfigError
	}

	// Load configuration, asking interactively when there is no file
	cfg, err := config.Load(*configPath)
	if errors.Is(err, config.ErrNotFound) {
		cfg, err = config.Prompt(stdin, stdout)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return exitConfigError
	}

	logger := initLogger(cfg.Logging, stdout, stderr)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.String("bind_address", cfg.Server.BindAddress),
		slog.Int("udp_port", cfg.Server.UDPPort),
		slog.Int("max_hosts", cfg.Server.MaxHosts),
		slog.Int("max_package_size", cfg.Server.MaxPackageSize),
		slog.Int("queue_size", cfg.Server.QueueSize),
		slog.Duration("receive_timeout", cfg.Server.GetReceiveTimeoutDuration()),
		slog.Duration("join_timeout", cfg.Server.GetJoinTimeoutDuration()),
		slog.Duration("peer_timeout", cfg.Server.GetPeerTimeoutDuration()),
		slog.String("log_level", cfg.Logging.Level),
	)

	appMetrics := metrics.NewMetrics(reg)

	store := handler.NewMemoryStore()
	router := handler.NewDefaultRouter(logger, store)
	logger.Info("Request router initialized", slog.Int("request_types", router.Len()))

	udpServer := server.NewUDPServer(&cfg.Server, logger, router, store, appMetrics)

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, udpServer, appMetrics, gatherer)
	}

	if err := udpServer.Start(); err != nil {
		logger.Error("Failed to start UDP server", slog.String("error", err.Error()))
		_ = udpServer.Stop()

		var bindErr *server.BindError
		if errors.As(err, &bindErr) {
			return exitBindError
		}
		return exitConfigError
	}

	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			_ = udpServer.Stop()
			return exitConfigError
		}
	}

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("udp_address", udpServer.LocalAddr().String()),
	)

	<-ctx.Done()
	logger.Info("Starting graceful shutdown...")

	// Stop HTTP first so monitoring stops before the workers go away
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	if err := udpServer.Stop(); err != nil {
		logger.Error("Error stopping UDP server", slog.String("error", err.Error()))
	}

	logger.Info("Service stopped")
	return exitOK
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig, stdout, stderr io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output io.Writer
	switch cfg.Output {
	case "stderr":
		output = stderr
	case "stdout", "":
		output = stdout
	default:
		// Anything else is a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = stdout
		} else {
			output = file
		}
	}

	var h slog.Handler
	switch cfg.Format {
	case "json":
		h = slog.NewJSONHandler(output, opts)
	default:
		h = slog.NewTextHandler(output, opts)
	}

	return slog.New(h)
}
