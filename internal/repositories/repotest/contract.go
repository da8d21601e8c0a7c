// Package repotest holds the behaviour every RoundRepository adapter must share.
package repotest

import (
	"context"
	"testing"
	"time"

	"vrflottery/internal/models"
	"vrflottery/internal/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func round(n uint64) *models.RoundResult {
	opened := time.Date(2026, 1, 1, 0, 0, int(n), 0, time.UTC)
	return &models.RoundResult{
		Number:      n,
		RequestID:   models.RequestID(n * 10),
		RandomWord:  "37",
		WinnerIndex: 1,
		Winner:      "p1",
		Prize:       "40000000000000000",
		PlayerCount: 4,
		OpenedAt:    opened,
		SettledAt:   opened.Add(31 * time.Second),
	}
}

// RunRoundRepository exercises repo, which must start empty.
func RunRoundRepository(t *testing.T, repo repositories.RoundRepository) {
	t.Helper()
	ctx := context.Background()

	count, err := repo.CountRounds(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	_, err = repo.FindRound(ctx, 1)
	require.ErrorIs(t, err, repositories.ErrRoundNotFound)

	for n := uint64(1); n <= 3; n++ {
		require.NoError(t, repo.SaveRound(ctx, round(n)))
	}

	got, err := repo.FindRound(ctx, 2)
	require.NoError(t, err)
	want := round(2)
	assert.Equal(t, want.RequestID, got.RequestID)
	assert.Equal(t, want.Winner, got.Winner)
	assert.Equal(t, want.Prize, got.Prize)
	assert.Equal(t, want.RandomWord, got.RandomWord)
	assert.Equal(t, want.PlayerCount, got.PlayerCount)
	assert.True(t, want.SettledAt.Equal(got.SettledAt))

	all, err := repo.ListRounds(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, uint64(3), all[0].Number)
	assert.Equal(t, uint64(1), all[2].Number)

	latest, err := repo.ListRounds(ctx, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, uint64(3), latest[0].Number)

	count, err = repo.CountRounds(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}
