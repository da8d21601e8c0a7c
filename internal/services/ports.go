package services

import (
	"context"
	"math/big"
	"time"

	"vrflottery/internal/models"
)

// RandomnessCoordinator accepts randomness requests. Words are delivered later
// through LotteryService.FulfillRandomWords, never from inside the request call.
type RandomnessCoordinator interface {
	RequestRandomWords(ctx context.Context, req models.RandomnessRequest) (models.RequestID, error)
}

// Treasury moves funds between players and the lottery's own account.
type Treasury interface {
	Collect(ctx context.Context, from models.Address, amount *big.Int) error
	Pay(ctx context.Context, to models.Address, amount *big.Int) error
}

// Publisher receives notifications once an operation has committed.
type Publisher interface {
	Publish(event models.Event)
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

type discardPublisher struct{}

func (discardPublisher) Publish(models.Event) {}
