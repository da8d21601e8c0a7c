package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"vrflottery/internal/models"
	"vrflottery/internal/repositories/repotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundRepository(t *testing.T) {
	repo, err := Open(filepath.Join(t.TempDir(), "lottery.db"))
	require.NoError(t, err)
	defer repo.Close()

	repotest.RunRoundRepository(t, repo)
}

func TestRoundRepositoryPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lottery.db")

	repo, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, repo.SaveRound(context.Background(), &models.RoundResult{Number: 1, Winner: "alice"}))
	require.NoError(t, repo.Close())

	repo, err = Open(path)
	require.NoError(t, err)
	defer repo.Close()

	got, err := repo.FindRound(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.Address("alice"), got.Winner)
}
