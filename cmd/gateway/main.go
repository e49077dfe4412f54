package main

import (
	"chat-gateway/auth"
	"chat-gateway/authz"
	"chat-gateway/contract"
	"chat-gateway/errors"
	grpcapi "chat-gateway/grpc"
	"chat-gateway/httpapi"
	"chat-gateway/internal"
	"chat-gateway/observability"
	"chat-gateway/pipeline"
	"chat-gateway/repositories"
	"chat-gateway/repositories/postgres"
	"chat-gateway/runtime"
	"chat-gateway/runtime/workers"
	"chat-gateway/services"
	"chat-gateway/transport/ws"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

type chatStore interface {
	contract.Store
	contract.History
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Gateway terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and owns the shutdown order: transports stop
// taking frames, the pipeline refuses new tasks, consumers drain the queue,
// then the stores close.
func run() (int, error) {
	// 1. Configuration & Logger
	// A missing .env file is fine, the environment alone may carry the config.
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	validator, err := buildValidator(config)
	if err != nil {
		return exitConfig, err
	}
	policy, err := buildPolicy(config)
	if err != nil {
		return exitConfig, err
	}

	// 2. Database (BadgerDB), always opened: it keeps chats, memberships and the dead letters
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	chatRepository, err := repositories.NewChatRepository(db)
	if err != nil {
		return exitRuntime, fmt.Errorf("chat repository: %w", err)
	}
	defer func() { _ = chatRepository.Close() }()
	deadLetters := repositories.NewDeadLetterRepository(db)

	var store chatStore
	var storeProbe func(ctx context.Context) error
	switch config.StoreDriver {
	case internal.StorePostgres:
		pg, err := postgres.Open(config.PostgresDSN)
		if err != nil {
			return exitRuntime, fmt.Errorf("postgres opening failed: %w", err)
		}
		defer func() {
			logger.Info("Closing Postgres...")
			_ = pg.Close()
		}()
		if err := pg.Migrate(ctx); err != nil {
			return exitRuntime, err
		}
		store, storeProbe = pg, pg.Ping
	default:
		store = repositories.NewBadgerStore(repositories.NewMessageRepository(db, logger), chatRepository)
		storeProbe = func(context.Context) error {
			if db.IsClosed() {
				return badger.ErrDBClosed
			}
			return nil
		}
	}

	// 3. Observability
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := observability.NewMetrics(registry)
	recorder := observability.NewRecorder(logger, metrics)

	// 4. Core: gatekeeper, subscriptions, pipeline, router, handlers
	gatekeeper := auth.NewGatekeeper(logger, validator, auth.NewContextStore(0), recorder)
	subscriptions := runtime.NewRegistry()
	persist := pipeline.New(logger, config.Pipeline(), store, deadLetters, recorder)
	router := runtime.NewRouter(logger, subscriptions, persist, recorder)
	chatService := services.NewChatService(logger, store, store, router, subscriptions, config.MaxContentLength)
	dispatcher := services.NewDispatcher(logger, chatService.Routes()...)
	wsServer := ws.NewServer(logger, config.Transport(), gatekeeper, policy, dispatcher, subscriptions, recorder)

	probes := []workers.Probe{
		{Service: "chat.gateway.Store", Check: storeProbe},
		{Service: "chat.gateway.Persistence", Check: func(context.Context) error {
			if persist.Closed() {
				return errors.ErrPipelineClosed
			}
			return nil
		}},
	}
	healthy := func() error {
		probeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		for _, probe := range probes {
			if err := probe.Check(probeCtx); err != nil {
				return err
			}
		}
		return nil
	}

	if config.DebugPort != nil {
		debugServer := internal.NewDebugServer(db, *config.DebugPort, "/inspect", BadgerMapper,
			func() map[string]any {
				return map[string]any{"queue_depth": persist.Depth(), "store_driver": config.StoreDriver}
			})
		logger.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d/inspect", *config.DebugPort))
		go func() {
			if err := debugServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("Debug inspector stopped", "error", err)
			}
		}()
		defer func() { _ = debugServer.Close() }()
	}

	// 5. Supervision
	grpcServer := grpcapi.NewServer(logger)
	grpcAddress := net.JoinHostPort(config.Host, strconv.Itoa(config.GrpcPort))
	listener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}
	sup := workers.NewSupervisor(logger, workers.WithRestartDelay(config.RestartInterval))
	sup.Add(persist.Consumers()...)
	sup.Add(
		workers.NewProcessStatsWorker(logger, config.StatsInterval, metrics.ProcessRSS, metrics.ProcessCPU),
		workers.NewHealthMonitoringWorker(logger, grpcServer.Health(), config.HealthInterval, probes...),
	)

	// The workers outlive the signal: consumers must drain after the transports stopped.
	workersCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	supervised := make(chan struct{})
	go func() {
		defer close(supervised)
		sup.Run(workersCtx)
	}()

	// 6. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 2)

	// 7. HTTP (websocket, history, health, metrics) and gRPC servers
	api := httpapi.NewHandler(logger, validator, chatService, healthy, observability.HandlerFor(registry))
	mux := api.Routes()
	mux.Handle("GET /ws", wsServer)
	httpAddress := net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
	httpServer := &http.Server{
		Addr:              httpAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Starting HTTP server", "address", httpAddress, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	go func() {
		logger.Info("Starting gRPC server", "address", grpcAddress)
		if err := grpcServer.Serve(listener); err != nil {
			errChan <- err
		}
	}()

	// 8. Wait for Stop or Error
	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		code = exitRuntime
	}

	// 9. Graceful Shutdown
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Websocket sessions still open at shutdown", "error", err)
	}
	persist.Close()
	stopWorkers()
	<-supervised
	grpcServer.Stop(shutdownCtx)

	logger.Info("Gateway stopped cleanly", "pending_tasks", persist.Depth())
	return code, runErr
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG)
	} else {
		options = options.WithLoggingLevel(badger.WARNING)
	}

	return options
}

func buildValidator(config internal.Config) (*auth.JWTValidator, error) {
	var opts []auth.ValidatorOption
	if config.JwtSecret != "" {
		opts = append(opts, auth.WithSecret([]byte(config.JwtSecret)))
	}
	if config.JwtPublicKeyFile != "" {
		pem, err := os.ReadFile(config.JwtPublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read public key: %w", err)
		}
		opt, err := auth.WithPublicKeyPEM("", pem)
		if err != nil {
			return nil, err
		}
		opts = append(opts, opt)
	}
	opts = append(opts, auth.WithLeeway(30*time.Second))
	return auth.NewJWTValidator(config.JwtIssuer, config.JwtAudience, opts...), nil
}

func buildPolicy(config internal.Config) (*authz.Policy, error) {
	rules := authz.DefaultRules()
	if config.AuthzRulesFile != "" {
		loaded, err := authz.LoadRules(config.AuthzRulesFile)
		if err != nil {
			return nil, fmt.Errorf("authorization rules: %w", err)
		}
		rules = loaded
	}
	return authz.NewPolicy(rules)
}

// BadgerMapper renders gateway records in the debug inspector.
func BadgerMapper(key string, val []byte) internal.InspectRow {
	row := internal.DefaultMapper(key, val)
	record := repositories.Describe(key, val)
	row.Type = record.Kind
	row.Detail = record.Detail
	return row
}
