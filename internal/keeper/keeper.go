// Package keeper polls the lottery's readiness predicate and triggers the draw,
// the way an automated upkeep network does.
package keeper

import (
	"context"
	"errors"
	"time"

	"vrflottery/internal/models"
	"vrflottery/internal/services"

	"github.com/google/logger"
)

// Upkeepable is the pair of operations a keeper drives.
type Upkeepable interface {
	CheckUpkeep(ctx context.Context) (bool, []byte)
	PerformUpkeep(ctx context.Context, performData []byte) (models.RequestID, error)
}

type Keeper struct {
	target       Upkeepable
	pollInterval time.Duration
}

func New(target Upkeepable, pollInterval time.Duration) *Keeper {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Keeper{target: target, pollInterval: pollInterval}
}

// RunOnce polls once and triggers the draw if it is due. A draw that stopped
// being due between the poll and the trigger is not an error.
func (k *Keeper) RunOnce(ctx context.Context) (bool, error) {
	ready, performData := k.target.CheckUpkeep(ctx)
	if !ready {
		return false, nil
	}
	requestID, err := k.target.PerformUpkeep(ctx, performData)
	if errors.Is(err, services.ErrUpkeepNotNeeded) {
		logger.Infof("Upkeep no longer needed: %v", err)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	logger.Infof("Performed upkeep with requestId %d", requestID)
	return true, nil
}

// Run polls every pollInterval until ctx is done.
func (k *Keeper) Run(ctx context.Context) {
	logger.Infof("Keeper polling every %s", k.pollInterval)
	ticker := time.NewTicker(k.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := k.RunOnce(ctx); err != nil {
				logger.Warningf("Upkeep failed: %v", err)
			}
		}
	}
}
