// Package main runs the vigil transaction screening service.
//
// It is the composition root: it loads configuration, connects the selected
// backends (rule source, event transport, alert sink), starts the rule
// refresher, the ingestion APIs and the observability server, and shuts
// everything down in reverse order on SIGINT/SIGTERM.
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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/rafaeljc/vigil/internal/alert"
	"github.com/rafaeljc/vigil/internal/api"
	"github.com/rafaeljc/vigil/internal/cache"
	"github.com/rafaeljc/vigil/internal/config"
	"github.com/rafaeljc/vigil/internal/database"
	"github.com/rafaeljc/vigil/internal/eventbus"
	"github.com/rafaeljc/vigil/internal/grpcapi"
	"github.com/rafaeljc/vigil/internal/health"
	"github.com/rafaeljc/vigil/internal/ingest"
	"github.com/rafaeljc/vigil/internal/logger"
	"github.com/rafaeljc/vigil/internal/observability"
	"github.com/rafaeljc/vigil/internal/processor"
	"github.com/rafaeljc/vigil/internal/refresher"
	"github.com/rafaeljc/vigil/internal/ruleengine"
	"github.com/rafaeljc/vigil/internal/store"
	"github.com/rafaeljc/vigil/internal/transaction"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// -------------------------------------------------------------------------
	// 1. Configuration & logging
	// -------------------------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(&cfg.App)
	slog.SetDefault(log)
	cfg.LogConfig(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	// -------------------------------------------------------------------------
	// 2. Infrastructure
	// -------------------------------------------------------------------------
	var checkers []observability.Checker

	source, pool, err := newRuleSource(ctx, cfg, log)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
		checkers = append(checkers, health.NewPostgresChecker(pool))
		go database.RunPoolMonitor(ctx, pool, cfg.Observability.CollectInterval)
	}

	sink, redisClient, err := newAlertSink(ctx, cfg, log)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		checkers = append(checkers, health.NewRedisChecker(redisClient))
	}

	framing, err := transaction.ParseFraming(cfg.Events.Framing)
	if err != nil {
		return err
	}
	codec := transaction.NewCodec(framing)

	bus, err := newEventBus(cfg, codec, log)
	if err != nil {
		return err
	}
	if nb, ok := bus.(*eventbus.NATSBus); ok {
		checkers = append(checkers, health.NewNATSChecker(nb.Conn()))
	}

	// -------------------------------------------------------------------------
	// 3. Rules
	// -------------------------------------------------------------------------
	compiler, err := ruleengine.NewCELCompiler(cfg.Rules.CostLimit)
	if err != nil {
		return fmt.Errorf("failed to create rule compiler: %w", err)
	}

	memo, err := cache.NewProgramMemo(cfg.Rules.MemoSize, cfg.Rules.MemoTTL)
	if err != nil {
		return fmt.Errorf("failed to create compile memo: %w", err)
	}
	defer memo.Close()
	go memo.RunMetricsCollector(ctx, cfg.Observability.CollectInterval)

	programs := ruleengine.NewProgramCache()
	rules := refresher.New(
		logger.Component(log, "refresher"),
		refresher.Config{Interval: cfg.Rules.RefreshInterval, FetchTimeout: cfg.Rules.FetchTimeout},
		source, compiler, programs, memo,
	)
	checkers = append(checkers, health.NewRuleCacheChecker(rules))

	// -------------------------------------------------------------------------
	// 4. Pipeline wiring
	// -------------------------------------------------------------------------
	engine := ruleengine.New(logger.Component(log, "engine"), programs)
	proc := processor.New(logger.Component(log, "processor"), rules, engine, sink)
	if err := bus.Subscribe(cfg.Events.Topic, proc.Handle); err != nil {
		return fmt.Errorf("failed to subscribe processor: %w", err)
	}

	dispatcher := ingest.NewDispatcher(logger.Component(log, "ingest"), bus, cfg.Events.MaxBatchSize).
		WithTopic(cfg.Events.Topic)

	// -------------------------------------------------------------------------
	// 5. Servers
	// -------------------------------------------------------------------------
	obs := observability.NewServer(log, &cfg.Observability, checkers...)
	obs.Start()

	httpAPI := api.NewAPI(logger.Component(log, "api"), dispatcher, rules, api.Config{
		APIKeyHash:   cfg.Server.HTTP.APIKeyHash,
		SkipAuth:     cfg.Server.HTTP.APIKeyHash == "",
		MaxBodyBytes: cfg.Server.HTTP.MaxBodyBytes,
	})
	httpServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.HTTP.Host, cfg.Server.HTTP.Port),
		Handler:           httpAPI.Router,
		ReadTimeout:       cfg.Server.HTTP.ReadTimeout,
		WriteTimeout:      cfg.Server.HTTP.WriteTimeout,
		ReadHeaderTimeout: cfg.Server.HTTP.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.HTTP.IdleTimeout,
		MaxHeaderBytes:    cfg.Server.HTTP.MaxHeaderBytes,
	}

	var grpcServer *grpc.Server
	if cfg.Server.GRPC.Enabled {
		grpcServer = grpcapi.NewServer(&cfg.Server.GRPC, logger.Component(log, "grpc"))
		grpcapi.NewAPI(dispatcher, rules).Register(grpcServer)
		// Lets grpcurl discover the service without a .proto file.
		reflection.Register(grpcServer)
	}

	// -------------------------------------------------------------------------
	// 6. Run until a signal or a fatal error
	// -------------------------------------------------------------------------
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return rules.Run(gctx)
	})

	g.Go(func() error {
		// Ingestion waits for the first rule load so events are never screened
		// against an empty cache.
		select {
		case <-rules.Ready():
		case <-gctx.Done():
			return nil
		}

		log.Info("starting http api", slog.String("addr", httpServer.Addr), slog.Bool("tls", cfg.Server.HTTP.TLSEnabled))
		var err error
		if cfg.Server.HTTP.TLSEnabled {
			err = httpServer.ListenAndServeTLS(cfg.Server.HTTP.TLSCert, cfg.Server.HTTP.TLSKey)
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http api failed: %w", err)
		}
		return nil
	})

	if grpcServer != nil {
		g.Go(func() error {
			select {
			case <-rules.Ready():
			case <-gctx.Done():
				return nil
			}

			// Bind first so a taken port fails fast.
			lis, err := net.Listen("tcp", grpcapi.Addr(&cfg.Server.GRPC))
			if err != nil {
				return fmt.Errorf("failed to bind grpc port: %w", err)
			}
			log.Info("starting grpc api", slog.String("addr", lis.Addr().String()))
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc api failed: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")
		return shutdown(cfg, log, httpServer, grpcServer, bus, obs)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("service exited successfully")
	return nil
}

// shutdown stops accepting traffic first, then drains the bus so queued
// events still reach the processor, and stops the probe server last.
func shutdown(
	cfg *config.Config,
	log *slog.Logger,
	httpServer *http.Server,
	grpcServer *grpc.Server,
	bus eventbus.Bus,
	obs *observability.Server,
) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	var errs []error

	if err := httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	if grpcServer != nil {
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			log.Warn("grpc graceful stop timed out, forcing")
			grpcServer.Stop()
		}
	}

	if err := bus.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("event bus shutdown: %w", err))
	}

	if err := obs.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("observability shutdown: %w", err))
	}

	return errors.Join(errs...)
}

func newRuleSource(ctx context.Context, cfg *config.Config, log *slog.Logger) (store.RuleSource, *pgxpool.Pool, error) {
	if cfg.Rules.Source != config.RuleSourcePostgres {
		log.Info("serving built-in sample rules")
		return store.NewStaticSource(), nil, nil
	}

	pool, err := database.NewPostgresPool(ctx, &cfg.Database, logger.Component(log, "database"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return store.NewPostgresStore(pool), pool, nil
}

func newAlertSink(ctx context.Context, cfg *config.Config, log *slog.Logger) (alert.Sink, *redis.Client, error) {
	if cfg.Alerts.Sink != config.AlertSinkRedis {
		return alert.NewLogSink(logger.Component(log, "alerts")), nil, nil
	}

	client, err := cache.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return alert.NewRedisStreamSink(client, cfg.Alerts.StreamKey, cfg.Alerts.MaxLen), client, nil
}

func newEventBus(cfg *config.Config, codec *transaction.Codec, log *slog.Logger) (eventbus.Bus, error) {
	busLog := logger.Component(log, "eventbus")

	if cfg.Events.Transport == config.TransportNATS {
		bus, err := eventbus.ConnectNATS(&cfg.NATS, codec, cfg.Events.HandlerTimeout, busLog)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to nats: %w", err)
		}
		return bus, nil
	}

	return eventbus.NewLocalBus(busLog, codec, eventbus.LocalConfig{
		Workers:        cfg.Events.Workers,
		QueueSize:      cfg.Events.QueueSize,
		SendTimeout:    cfg.Events.SendTimeout,
		HandlerTimeout: cfg.Events.HandlerTimeout,
	}), nil
}
