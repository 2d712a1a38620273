package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"complexityofneed.org/internal/audit"
	"complexityofneed.org/internal/auth"
	"complexityofneed.org/internal/complexity"
	"complexityofneed.org/internal/config"
	"complexityofneed.org/internal/events"
	"complexityofneed.org/internal/grpcapi"
	"complexityofneed.org/internal/httpapi"
	"complexityofneed.org/internal/obs"
	"complexityofneed.org/internal/store/pg"
)

// historyStore is what both backends provide.
type historyStore interface {
	complexity.Store
	Ping(ctx context.Context) error
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := obs.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	slog.SetDefault(log)

	obs.Init()
	obs.InitBuildInfo(cfg.Build.Number, cfg.Build.GitRef)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := obs.InitTracing(ctx, cfg.Tracing, cfg.Build.Number, os.Stdout)
	if err != nil {
		return err
	}
	if cfg.Tracing.Enabled() {
		log.Info("tracing enabled", "exporter", cfg.Tracing.Exporter, "sample_ratio", cfg.Tracing.SampleRatio)
	}

	store, closeStore, err := openStore(cfg.Database, log)
	if err != nil {
		return err
	}
	defer closeStore()

	keys := auth.NewJWKSKeySource(cfg.Auth.JWKSURL(),
		auth.WithKeyTTL(cfg.Auth.JWKSCacheTTL),
		auth.WithHTTPClient(&http.Client{Timeout: cfg.Auth.FetchTimeout}),
		auth.WithKeyLogger(log),
	)
	policy, err := auth.NewPolicy(cfg.Auth)
	if err != nil {
		return err
	}

	bus := events.NewBus(cfg.Events.BufferSize)
	pub, err := newPublisher(ctx, cfg.Events, log)
	if err != nil {
		return err
	}
	fwdCtx, stopForwarder := context.WithCancel(context.Background())
	forwarded := events.NewForwarder(bus, pub, log, cfg.Events.PublishTimeout).Start(fwdCtx)

	api := httpapi.New(httpapi.Deps{
		Verifier: auth.NewVerifier(keys, cfg.Auth.Issuer()),
		Policy:   policy,
		Resolver: complexity.NewResolver(store),
		Exporter: complexity.NewExporter(store),
		Service:  complexity.NewService(store, complexity.WithNotifier(bus.Notifier(cfg.Events.ServiceBaseURL))),
		Audit:    audit.New(log),
		Log:      log,
		Checks: []httpapi.HealthCheck{
			httpapi.DBCheck(store),
			httpapi.PingCheck("hmppsAuth", cfg.Auth.PingURL(), &http.Client{Timeout: 2 * time.Second}),
		},
		Build:  cfg.Build,
		Server: cfg.Server,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	grpcSrv := grpcapi.NewServer(grpcapi.NewHealthServer(store.Ping, log))
	grpcLis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		stopForwarder()
		return fmt.Errorf("grpc listen %s: %w", cfg.Server.GRPCAddr, err)
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("http server starting", "addr", srv.Addr, "version", cfg.Build.Number)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http listen: %w", err)
		}
	}()
	go func() {
		log.Info("grpc server starting", "addr", cfg.Server.GRPCAddr)
		if err := grpcSrv.Serve(grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc serve: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-errCh:
		log.Error("server failed", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "error", err)
	}
	grpcSrv.GracefulStop()

	// Drain events produced by requests that finished during shutdown.
	stopForwarder()
	select {
	case <-forwarded:
	case <-shutdownCtx.Done():
		log.Warn("event forwarder did not drain before shutdown deadline")
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown", "error", err)
	}

	log.Info("stopped")
	return runErr
}

func openStore(cfg config.DatabaseConfig, log *slog.Logger) (historyStore, func(), error) {
	switch cfg.Backend {
	case config.BackendMemory:
		log.Warn("using in-memory history store; data is lost on restart")
		return complexity.NewMemStore(), func() {}, nil
	default:
		s, err := pg.Open(cfg)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}
}

func newPublisher(ctx context.Context, cfg config.EventsConfig, log *slog.Logger) (events.Publisher, error) {
	if !cfg.Enabled() {
		log.Info("no domain events topic configured; events are logged only")
		return events.LogPublisher{Log: log}, nil
	}
	client, err := events.NewSNSClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return events.NewSNSPublisher(client, cfg.TopicARN), nil
}
