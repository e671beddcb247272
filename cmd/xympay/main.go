package main

import (
	"context"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/bootarou/xympay-sub000/internal/application/matcher"
	"github.com/bootarou/xympay-sub000/internal/application/monitor"
	"github.com/bootarou/xympay-sub000/internal/infrastructure/database"
	"github.com/bootarou/xympay-sub000/internal/infrastructure/nodes"
	"github.com/bootarou/xympay-sub000/internal/infrastructure/rates"
	"github.com/bootarou/xympay-sub000/internal/infrastructure/rpc"
	"github.com/bootarou/xympay-sub000/internal/repositories/paymentrepo"
	"github.com/bootarou/xympay-sub000/internal/server"
	"github.com/bootarou/xympay-sub000/internal/server/websocket"
	"github.com/bootarou/xympay-sub000/pkg/config"
	"github.com/bootarou/xympay-sub000/pkg/logger"
)

func main() {
	appLogger := logger.New()

	cfg, err := config.Load()
	if err != nil {
		appLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	appLogger = logger.NewWithConfig(logger.Config(cfg.Logger))

	db, err := database.New(&cfg.Database)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.ShutDown()

	paymentRepo := paymentrepo.New(db, appLogger)

	symbolClient := rpc.NewSymbolClient(cfg.Network, appLogger)
	registry := nodes.NewRegistry(cfg.Nodes, symbolClient, appLogger)
	prober := nodes.NewProber(registry, cfg.Nodes.ProbeInterval, appLogger)

	txMatcher := matcher.New(symbolClient, cfg.Monitor.PageSize, appLogger)

	rateRegistry := rates.NewRegistry(
		rates.NewCoinCapClient(&cfg.Exchange, appLogger),
	)
	var rateProvider rates.Provider
	if cfg.Exchange.Provider != "" {
		rateProvider, err = rateRegistry.Get(cfg.Exchange.Provider)
		if err != nil {
			appLogger.Fatal().Err(err).Str("provider", cfg.Exchange.Provider).Msg("Unknown exchange rate provider")
		}
	}

	wsHub := websocket.NewWsHub(appLogger)

	monitorSvc := monitor.NewService(
		paymentRepo,
		registry,
		txMatcher,
		rateProvider,
		cfg.Exchange.FiatCurrency,
		wsHub,
		cfg.Monitor,
		appLogger,
	)

	srv := server.New(cfg, paymentRepo, monitorSvc, registry, appLogger, wsHub)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return prober.Run(groupCtx) })
	group.Go(func() error { return wsHub.Run(groupCtx) })
	group.Go(func() error { return monitorSvc.Run(groupCtx) })
	group.Go(func() error { return srv.Run(groupCtx) })

	if err := group.Wait(); err != nil && err != context.Canceled {
		appLogger.Fatal().Err(err).Msg("Service terminated")
	}

	appLogger.Info().Msg("Service exited gracefully")
}
