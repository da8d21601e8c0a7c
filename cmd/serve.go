package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"vrflottery/internal/config"
	"vrflottery/internal/events"
	"vrflottery/internal/handlers"
	"vrflottery/internal/keeper"
	"vrflottery/internal/ledger"
	"vrflottery/internal/models"
	"vrflottery/internal/oracle"
	"vrflottery/internal/repositories"
	boltrepo "vrflottery/internal/repositories/bolt"
	"vrflottery/internal/repositories/memory"
	mongorepo "vrflottery/internal/repositories/mongodb"
	sqliterepo "vrflottery/internal/repositories/sqlite"
	"vrflottery/internal/services"
	"vrflottery/pkg/mongodb"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the lottery API with its keeper and randomness oracle",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configDir)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			closeLog, err := initLogger(cfg.Log, cfg.Log.Verbose)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	rounds, closeStore, err := openRoundStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	house := models.Address(cfg.Lottery.Address)
	wallets := ledger.New(house)
	bus := events.NewBus()

	coordinator := oracle.NewCoordinator(models.Address(cfg.Oracle.Address),
		oracle.WithBaseFee(config.MustEther(cfg.Oracle.BaseFee)),
		oracle.WithFulfillmentDelay(cfg.Oracle.FulfillmentDelay),
	)
	subID, err := provisionSubscription(coordinator, cfg)
	if err != nil {
		return err
	}

	params, err := cfg.LotteryParams(subID)
	if err != nil {
		return err
	}
	lottery, err := services.NewLotteryService(params, coordinator, wallets,
		services.WithPublisher(bus),
		services.WithRoundRepository(rounds),
	)
	if err != nil {
		return fmt.Errorf("create lottery: %w", err)
	}

	if cfg.Oracle.CallbackURL != "" {
		logger.Infof("Delivering random words to %s", cfg.Oracle.CallbackURL)
		coordinator.Register(house, oracle.NewHTTPConsumer(cfg.Oracle.CallbackURL, cfg.Oracle.JWTSecret, nil))
	} else {
		coordinator.Register(house, lottery)
	}

	router := gin.Default()
	handlers.NewHTTPHandler(lottery, handlers.Options{
		Accounts:      wallets,
		Rounds:        rounds,
		Events:        bus,
		FaucetEnabled: cfg.Ledger.FaucetEnabled,
		JWTSecret:     cfg.Oracle.JWTSecret,
	}).RegisterRoutes(router)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go coordinator.Run(runCtx)
	if cfg.Keeper.Enabled {
		go keeper.New(lottery, cfg.Keeper.PollInterval).Run(runCtx)
	} else {
		logger.Info("Keeper disabled, draws are triggered through POST /api/v1/upkeep")
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	cancel()
	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server exiting")
	return nil
}

// provisionSubscription creates and funds the subscription the lottery pays
// its randomness requests from, and registers the lottery as its consumer.
// The coordinator starts empty, so a configured non-zero id must match the
// one it hands out.
func provisionSubscription(coordinator *oracle.Coordinator, cfg *config.Config) (models.SubscriptionID, error) {
	subID := coordinator.CreateSubscription()
	if want := models.SubscriptionID(cfg.Lottery.SubscriptionID); want != 0 && want != subID {
		return 0, fmt.Errorf("lottery.subscription_id %d does not exist on the coordinator (created %d)", want, subID)
	}
	fund := config.MustEther(cfg.Oracle.FundAmount)
	if fund.Sign() > 0 {
		if err := coordinator.FundSubscription(subID, fund); err != nil {
			return 0, fmt.Errorf("fund subscription: %w", err)
		}
	}
	if err := coordinator.AddConsumer(subID, models.Address(cfg.Lottery.Address)); err != nil {
		return 0, fmt.Errorf("add consumer: %w", err)
	}
	logger.Infof("Subscription %d funded with %s", subID, models.FormatEther(fund))
	return subID, nil
}

func openRoundStore(ctx context.Context, cfg *config.Config) (repositories.RoundRepository, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverBolt:
		repo, err := boltrepo.Open(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { repo.Close() }, nil
	case config.DriverSQLite:
		repo, err := sqliterepo.Open(ctx, cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { repo.Close() }, nil
	case config.DriverMongo:
		client, err := mongodb.NewClient(ctx, cfg.MongoDB.URI)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to MongoDB: %w", err)
		}
		disconnect := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Errorf("Error disconnecting from MongoDB: %v", err)
			}
		}
		repo, err := mongorepo.NewRoundRepository(ctx, client.Database(cfg.MongoDB.Database))
		if err != nil {
			disconnect()
			return nil, nil, err
		}
		return repo, disconnect, nil
	default:
		return memory.NewRoundRepository(), func() {}, nil
	}
}
