package services

import (
	"errors"
	"fmt"
	"math/big"

	"vrflottery/internal/models"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds to enter")
	ErrRoundNotOpen      = errors.New("round not open")
	ErrUpkeepNotNeeded   = errors.New("upkeep not needed")
	ErrUnknownRequest    = errors.New("unknown randomness request")
	ErrPayoutFailed      = errors.New("payout failed")
	ErrUnauthorized      = errors.New("caller is not the randomness oracle")
	// ErrInvalidParticipant rejects entries from the lottery's own account.
	ErrInvalidParticipant = errors.New("participant cannot be the lottery itself")
	// ErrMissingRandomWords rejects a fulfillment that carries no words.
	ErrMissingRandomWords = errors.New("fulfillment carries no random words")
)

// UpkeepNotNeededError reports why a draw could not be triggered.
type UpkeepNotNeededError struct {
	State       models.LotteryState
	PooledFunds *big.Int
	PlayerCount int
}

func (e *UpkeepNotNeededError) Error() string {
	return fmt.Sprintf("upkeep not needed: state=%s pooledFunds=%s playerCount=%d",
		e.State, e.PooledFunds, e.PlayerCount)
}

func (e *UpkeepNotNeededError) Is(target error) bool {
	return target == ErrUpkeepNotNeeded
}
