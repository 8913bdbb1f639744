package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devghori1264/quads/internal/api"
	"github.com/devghori1264/quads/internal/config"
	"github.com/devghori1264/quads/internal/grpcapi"
	"github.com/devghori1264/quads/internal/logging"
	natsclient "github.com/devghori1264/quads/internal/nats"
	"github.com/devghori1264/quads/internal/server"
	"github.com/devghori1264/quads/internal/storage"
	"github.com/devghori1264/quads/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "quads: %v\n", err)
		os.Exit(1)
	}
}

// run returns instead of exiting so deferred closes flush the store.
func run() error {
	cfgPath := flag.String("config", os.Getenv(config.EnvFile), "YAML config file")
	addr := flag.String("grpc-addr", "", "gRPC listen address")
	httpAddr := flag.String("http-addr", "", "HTTP listen address")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics listen address")
	driver := flag.String("storage", "", "storage driver: badger or sqlite")
	dbPath := flag.String("db", "", "Badger directory or SQLite file")
	natsURL := flag.String("nats", "", "NATS server URL for change events")
	logLevel := flag.String("log-level", "", "log level")
	tracing := flag.Bool("trace", false, "write OpenTelemetry spans to stdout")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	override(&cfg.GRPCAddr, *addr)
	override(&cfg.HTTPAddr, *httpAddr)
	override(&cfg.MetricsAddr, *metricsAddr)
	override(&cfg.Storage.Driver, *driver)
	override(&cfg.Storage.Path, *dbPath)
	override(&cfg.NATS.URL, *natsURL)
	override(&cfg.Log.Level, *logLevel)
	cfg.Tracing.Enabled = cfg.Tracing.Enabled || *tracing
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Sync()

	if cfg.Tracing.Enabled {
		shutdown, err := telemetry.Setup(cfg.Tracing.ServiceName, os.Stdout)
		if err != nil {
			return fmt.Errorf("tracing setup: %w", err)
		}
		defer shutdown(context.Background())
	}

	// Create storage
	store, err := openStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("store close", zap.Error(err))
		}
	}()

	opts := []server.Option{server.WithLogger(log)}
	if cfg.NATS.URL != "" {
		pub, err := natsclient.NewPublisher(cfg.NATS.URL, cfg.NATS.Subject, log)
		if err != nil {
			return fmt.Errorf("connect nats %s: %w", cfg.NATS.URL, err)
		}
		defer pub.Close()
		opts = append(opts, server.WithEvents(pub))
	}

	srv, err := server.New(store, opts...)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := api.NewMetrics(reg)

	serveErr := make(chan error, 3)

	// Start gRPC server
	var grpcServer *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
		}
		grpcServer = grpc.NewServer()
		grpcapi.Register(grpcServer, srv)
		defer grpcServer.GracefulStop()

		go func() {
			log.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
			if err := grpcServer.Serve(lis); err != nil {
				serveErr <- fmt.Errorf("grpc serve: %w", err)
			}
		}()
	}

	// Start HTTP API
	var httpServer *http.Server
	if cfg.HTTPAddr != "" {
		httpServer = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           api.NewHTTPHandler(srv, log, metrics),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info("HTTP API listening", zap.String("addr", cfg.HTTPAddr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("http listen: %w", err)
			}
		}()
	}

	// Metrics endpoint
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		api.RegisterMetrics(mux, reg)
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			log.Info("Prometheus metrics available", zap.String("addr", cfg.MetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	var runErr error
	select {
	case sig := <-stop:
		log.Info("shutdown initiated", zap.String("signal", sig.String()))
	case runErr = <-serveErr:
		log.Error("server failed, shutting down", zap.Error(runErr))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, hs := range []*http.Server{httpServer, metricsServer} {
		if hs == nil {
			continue
		}
		if err := hs.Shutdown(ctx); err != nil {
			log.Warn("http server shutdown error", zap.String("addr", hs.Addr), zap.Error(err))
		}
	}
	log.Info("shutdown complete")
	return runErr
}

func override(dst *string, flagValue string) {
	if flagValue != "" {
		*dst = flagValue
	}
}

func openStore(cfg config.Storage) (storage.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return storage.NewSQLiteStore(cfg.Path)
	default:
		return storage.NewBadgerStore(cfg.Path)
	}
}
