package repositories

import (
	"context"
	"errors"

	"vrflottery/internal/models"
)

// ErrRoundNotFound is returned when no round carries the requested number.
var ErrRoundNotFound = errors.New("round not found")

// RoundRepository defines the interface for settled round history
type RoundRepository interface {
	SaveRound(ctx context.Context, round *models.RoundResult) error
	FindRound(ctx context.Context, number uint64) (*models.RoundResult, error)
	// ListRounds returns the most recent rounds first. A limit <= 0 returns all of them.
	ListRounds(ctx context.Context, limit int) ([]*models.RoundResult, error)
	CountRounds(ctx context.Context) (int64, error)
}
