package oracle

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"vrflottery/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingConsumer struct {
	mu     sync.Mutex
	calls  []models.RequestID
	caller models.Address
	words  []*big.Int
	err    error
	done   chan struct{}
}

func (r *recordingConsumer) FulfillRandomWords(_ context.Context, caller models.Address, id models.RequestID, words []*big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, id)
	r.caller = caller
	r.words = words
	if r.done != nil {
		close(r.done)
		r.done = nil
	}
	return r.err
}

func newSubscribed(t *testing.T, opts ...Option) (*Coordinator, models.SubscriptionID, *recordingConsumer) {
	t.Helper()
	c := NewCoordinator("vrf-coordinator", opts...)
	sub := c.CreateSubscription()
	require.NoError(t, c.FundSubscription(sub, big.NewInt(100)))
	require.NoError(t, c.AddConsumer(sub, "lottery"))
	consumer := &recordingConsumer{}
	c.Register("lottery", consumer)
	return c, sub, consumer
}

func request(sub models.SubscriptionID) models.RandomnessRequest {
	return models.RandomnessRequest{
		KeyHash:              "0x79d3",
		SubscriptionID:       sub,
		RequestConfirmations: 3,
		CallbackGasLimit:     500000,
		NumWords:             1,
		Consumer:             "lottery",
	}
}

func TestCoordinatorSubscriptions(t *testing.T) {
	t.Parallel()

	c := NewCoordinator("vrf-coordinator")
	first := c.CreateSubscription()
	second := c.CreateSubscription()
	assert.Equal(t, models.SubscriptionID(1), first)
	assert.Equal(t, models.SubscriptionID(2), second)

	require.ErrorIs(t, c.FundSubscription(99, big.NewInt(1)), ErrInvalidSubscription)
	require.ErrorIs(t, c.AddConsumer(99, "lottery"), ErrInvalidSubscription)

	require.NoError(t, c.FundSubscription(first, big.NewInt(3)))
	require.NoError(t, c.AddConsumer(first, "lottery"))
	require.NoError(t, c.AddConsumer(first, "lottery"))

	sub, err := c.GetSubscription(first)
	require.NoError(t, err)
	assert.Equal(t, int64(3), sub.Balance.Int64())
	assert.Equal(t, []models.Address{"lottery"}, sub.Consumers)
}

func TestCoordinatorRequestValidation(t *testing.T) {
	t.Parallel()

	c, sub, _ := newSubscribed(t)
	ctx := context.Background()

	req := request(sub)
	req.SubscriptionID = 42
	_, err := c.RequestRandomWords(ctx, req)
	require.ErrorIs(t, err, ErrInvalidSubscription)

	req = request(sub)
	req.Consumer = "stranger"
	_, err = c.RequestRandomWords(ctx, req)
	require.ErrorIs(t, err, ErrInvalidConsumer)

	req = request(sub)
	req.NumWords = MaxNumWords + 1
	_, err = c.RequestRandomWords(ctx, req)
	require.ErrorIs(t, err, ErrNumWordsTooBig)

	req = request(sub)
	req.CallbackGasLimit = MaxCallbackGasLimit + 1
	_, err = c.RequestRandomWords(ctx, req)
	require.ErrorIs(t, err, ErrGasLimitTooBig)
}

func TestCoordinatorRequestDoesNotDeliver(t *testing.T) {
	t.Parallel()

	c, sub, consumer := newSubscribed(t)
	id, err := c.RequestRandomWords(context.Background(), request(sub))
	require.NoError(t, err)
	assert.Equal(t, models.RequestID(1), id)
	assert.True(t, c.Pending(id))
	assert.Empty(t, consumer.calls)
}

func TestCoordinatorFulfill(t *testing.T) {
	t.Parallel()

	c, sub, consumer := newSubscribed(t, WithBaseFee(big.NewInt(25)))
	ctx := context.Background()

	_, err := c.Fulfill(ctx, 0)
	require.ErrorIs(t, err, ErrNonexistentRequest)
	_, err = c.Fulfill(ctx, 1)
	require.ErrorIs(t, err, ErrNonexistentRequest)

	id, err := c.RequestRandomWords(ctx, request(sub))
	require.NoError(t, err)

	f, err := c.Fulfill(ctx, id)
	require.NoError(t, err)
	assert.True(t, f.Success)
	require.Len(t, f.Words, 1)
	assert.Equal(t, []models.RequestID{id}, consumer.calls)
	assert.Equal(t, models.Address("vrf-coordinator"), consumer.caller)
	require.NoError(t, c.Verify(f))

	stored, ok := c.Proof(id)
	require.True(t, ok)
	assert.Equal(t, f.Proof, stored)

	s, err := c.GetSubscription(sub)
	require.NoError(t, err)
	assert.Equal(t, int64(75), s.Balance.Int64())

	_, err = c.Fulfill(ctx, id)
	require.ErrorIs(t, err, ErrNonexistentRequest)
}

func TestCoordinatorFulfillInsufficientBalance(t *testing.T) {
	t.Parallel()

	c, sub, consumer := newSubscribed(t, WithBaseFee(big.NewInt(1000)))
	id, err := c.RequestRandomWords(context.Background(), request(sub))
	require.NoError(t, err)

	_, err = c.Fulfill(context.Background(), id)
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.True(t, c.Pending(id))
	assert.Empty(t, consumer.calls)
}

func TestCoordinatorFailedCallbackConsumesRequest(t *testing.T) {
	t.Parallel()

	c, sub, consumer := newSubscribed(t)
	consumer.err = errors.New("payout failed")
	id, err := c.RequestRandomWords(context.Background(), request(sub))
	require.NoError(t, err)

	f, err := c.FulfillWithWords(context.Background(), id, []*big.Int{big.NewInt(37)})
	require.NoError(t, err)
	assert.False(t, f.Success)
	require.Error(t, f.CallbackErr)
	assert.Equal(t, int64(37), consumer.words[0].Int64())
	assert.False(t, c.Pending(id))
}

func TestCoordinatorRun(t *testing.T) {
	t.Parallel()

	c, sub, consumer := newSubscribed(t, WithFulfillmentDelay(10*time.Millisecond))
	done := make(chan struct{})
	consumer.done = done

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	id, err := c.RequestRandomWords(ctx, request(sub))
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("request was not fulfilled")
	}
	consumer.mu.Lock()
	defer consumer.mu.Unlock()
	assert.Equal(t, []models.RequestID{id}, consumer.calls)
}
