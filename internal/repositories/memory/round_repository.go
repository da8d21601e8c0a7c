package memory

import (
	"context"
	"sort"
	"sync"

	"vrflottery/internal/models"
	"vrflottery/internal/repositories"
)

// RoundRepository keeps round history in process memory.
type RoundRepository struct {
	mu     sync.RWMutex
	rounds map[uint64]models.RoundResult
}

var _ repositories.RoundRepository = (*RoundRepository)(nil)

func NewRoundRepository() *RoundRepository {
	return &RoundRepository{rounds: make(map[uint64]models.RoundResult)}
}

func (r *RoundRepository) SaveRound(ctx context.Context, round *models.RoundResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rounds[round.Number] = *round
	return nil
}

func (r *RoundRepository) FindRound(ctx context.Context, number uint64) (*models.RoundResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	round, ok := r.rounds[number]
	if !ok {
		return nil, repositories.ErrRoundNotFound
	}
	return &round, nil
}

func (r *RoundRepository) ListRounds(ctx context.Context, limit int) ([]*models.RoundResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rounds := make([]*models.RoundResult, 0, len(r.rounds))
	for _, round := range r.rounds {
		round := round
		rounds = append(rounds, &round)
	}
	sort.Slice(rounds, func(i, j int) bool { return rounds[i].Number > rounds[j].Number })
	if limit > 0 && len(rounds) > limit {
		rounds = rounds[:limit]
	}
	return rounds, nil
}

func (r *RoundRepository) CountRounds(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.rounds)), nil
}
