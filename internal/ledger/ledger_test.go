package ledger

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerCollectAndPay(t *testing.T) {
	t.Parallel()

	l := New("lottery")
	require.NoError(t, l.Mint("alice", big.NewInt(100)))

	require.NoError(t, l.Collect(context.Background(), "alice", big.NewInt(40)))
	assert.Equal(t, int64(60), l.Balance("alice").Int64())
	assert.Equal(t, int64(40), l.Balance("lottery").Int64())

	require.NoError(t, l.Pay(context.Background(), "bob", big.NewInt(40)))
	assert.Equal(t, int64(40), l.Balance("bob").Int64())
	assert.Equal(t, int64(0), l.Balance("lottery").Int64())
}

func TestLedgerCollectInsufficientBalance(t *testing.T) {
	t.Parallel()

	l := New("lottery")
	require.NoError(t, l.Mint("alice", big.NewInt(5)))

	err := l.Collect(context.Background(), "alice", big.NewInt(6))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, int64(5), l.Balance("alice").Int64())
	assert.Equal(t, int64(0), l.Balance("lottery").Int64())

	require.ErrorIs(t, l.Collect(context.Background(), "nobody", big.NewInt(1)), ErrInsufficientBalance)
}

func TestLedgerRefusingRecipient(t *testing.T) {
	t.Parallel()

	l := New("lottery")
	require.NoError(t, l.Mint("lottery", big.NewInt(10)))
	l.Refuse("bob")

	require.ErrorIs(t, l.Pay(context.Background(), "bob", big.NewInt(10)), ErrTransferRejected)
	assert.Equal(t, int64(10), l.Balance("lottery").Int64())

	l.Accept("bob")
	require.NoError(t, l.Pay(context.Background(), "bob", big.NewInt(10)))
	assert.Equal(t, int64(10), l.Balance("bob").Int64())
}

func TestLedgerRejectsNonPositiveAmounts(t *testing.T) {
	t.Parallel()

	l := New("lottery")
	require.ErrorIs(t, l.Mint("alice", big.NewInt(0)), ErrInvalidAmount)
	require.ErrorIs(t, l.Pay(context.Background(), "alice", nil), ErrInvalidAmount)
}

func TestLedgerBalanceIsACopy(t *testing.T) {
	t.Parallel()

	l := New("lottery")
	require.NoError(t, l.Mint("alice", big.NewInt(7)))
	b := l.Balance("alice")
	b.SetInt64(1000)
	assert.Equal(t, int64(7), l.Balance("alice").Int64())
}

func TestLedgerRejectsSelfTransfer(t *testing.T) {
	t.Parallel()

	l := New("lottery")
	require.NoError(t, l.Mint("lottery", big.NewInt(100)))

	err := l.Collect(context.Background(), "lottery", big.NewInt(40))
	require.ErrorIs(t, err, ErrSelfTransfer)
	assert.Equal(t, int64(100), l.Balance("lottery").Int64())

	err = l.Pay(context.Background(), "lottery", big.NewInt(40))
	require.ErrorIs(t, err, ErrSelfTransfer)
}
