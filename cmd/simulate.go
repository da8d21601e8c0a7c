package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"
	"time"

	"vrflottery/internal/config"
	"vrflottery/internal/keeper"
	"vrflottery/internal/ledger"
	"vrflottery/internal/models"
	"vrflottery/internal/oracle"
	"vrflottery/internal/repositories/memory"
	"vrflottery/internal/services"

	"github.com/spf13/cobra"
)

type simulateOptions struct {
	players int
	rounds  int
	verbose bool
}

func newSimulateCmd(opts *rootOptions) *cobra.Command {
	sim := &simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Play full rounds in-process and verify every oracle proof",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if sim.players < 1 || sim.rounds < 1 {
				return errors.New("--players and --rounds must be at least 1")
			}
			cfg, err := config.Load(opts.configDir)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			closeLog, err := initLogger(cfg.Log, sim.verbose)
			if err != nil {
				return err
			}
			defer closeLog()

			return runSimulation(cmd.Context(), cmd.OutOrStdout(), cfg, sim)
		},
	}

	cmd.Flags().IntVar(&sim.players, "players", 4, "players entering each round")
	cmd.Flags().IntVar(&sim.rounds, "rounds", 3, "rounds to play")
	cmd.Flags().BoolVar(&sim.verbose, "verbose", false, "print log output")

	return cmd
}

// simClock only moves when the simulation advances it.
type simClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *simClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *simClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func runSimulation(ctx context.Context, out io.Writer, cfg *config.Config, sim *simulateOptions) error {
	house := models.Address(cfg.Lottery.Address)
	wallets := ledger.New(house)
	rounds := memory.NewRoundRepository()
	clock := &simClock{now: time.Now()}

	baseFee := config.MustEther(cfg.Oracle.BaseFee)
	coordinator := oracle.NewCoordinator(models.Address(cfg.Oracle.Address), oracle.WithBaseFee(baseFee))
	subID := coordinator.CreateSubscription()
	// Enough to pay for every round even if the configured amount is not.
	fund := new(big.Int).Mul(baseFee, big.NewInt(int64(sim.rounds)))
	if configured := config.MustEther(cfg.Oracle.FundAmount); configured.Cmp(fund) > 0 {
		fund = configured
	}
	if fund.Sign() > 0 {
		if err := coordinator.FundSubscription(subID, fund); err != nil {
			return err
		}
	}
	if err := coordinator.AddConsumer(subID, house); err != nil {
		return err
	}

	params, err := cfg.LotteryParams(subID)
	if err != nil {
		return err
	}
	lottery, err := services.NewLotteryService(params, coordinator, wallets,
		services.WithClock(clock),
		services.WithRoundRepository(rounds),
	)
	if err != nil {
		return err
	}
	coordinator.Register(house, lottery)
	upkeep := keeper.New(lottery, 0)

	fee := lottery.EntranceFee()
	for i := 0; i < sim.players; i++ {
		stake := new(big.Int).Mul(fee, big.NewInt(int64(sim.rounds)))
		if err := wallets.Mint(playerAddress(i), stake); err != nil {
			return err
		}
	}

	for r := 1; r <= sim.rounds; r++ {
		for i := 0; i < sim.players; i++ {
			if err := lottery.Enter(ctx, playerAddress(i), fee); err != nil {
				return fmt.Errorf("round %d: %w", r, err)
			}
		}
		clock.Advance(lottery.Interval() + time.Second)

		performed, err := upkeep.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("round %d: %w", r, err)
		}
		if !performed {
			return fmt.Errorf("round %d: keeper found no upkeep to perform", r)
		}

		fulfillment, err := coordinator.Fulfill(ctx, lottery.PendingRequestID())
		if err != nil {
			return fmt.Errorf("round %d: %w", r, err)
		}
		if !fulfillment.Success {
			return fmt.Errorf("round %d: callback failed: %w", r, fulfillment.CallbackErr)
		}
		if err := coordinator.Verify(fulfillment); err != nil {
			return fmt.Errorf("round %d: %w", r, err)
		}

		latest, err := rounds.ListRounds(ctx, 1)
		if err != nil || len(latest) == 0 {
			return fmt.Errorf("round %d was not recorded: %v", r, err)
		}
		prize, _ := models.ParseWei(latest[0].Prize)
		_, _ = fmt.Fprintf(out, "round %d: request %d winner %s (index %d of %d) prize %s ether, proof verified\n",
			latest[0].Number, latest[0].RequestID, latest[0].Winner, latest[0].WinnerIndex, latest[0].PlayerCount, models.FormatEther(prize))
	}

	sub, err := coordinator.GetSubscription(subID)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "subscription %d: %d requests, %s ether left\n", sub.ID, sub.Requests, models.FormatEther(sub.Balance))
	for i := 0; i < sim.players; i++ {
		addr := playerAddress(i)
		_, _ = fmt.Fprintf(out, "%s: %s ether\n", addr, models.FormatEther(wallets.Balance(addr)))
	}
	return nil
}

func playerAddress(i int) models.Address {
	return models.Address(fmt.Sprintf("player-%d", i))
}
