package models

import (
	"math/big"
	"time"
)

// LotteryState governs whether new entrants are admitted.
type LotteryState int

const (
	StateOpen LotteryState = iota
	StateCalculating
)

func (s LotteryState) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateCalculating:
		return "CALCULATING"
	default:
		return "UNKNOWN"
	}
}

// Address identifies a participant, a winner or the oracle.
type Address string

// RequestID correlates a randomness request with its fulfillment.
// Zero means no request is outstanding.
type RequestID uint64

// SubscriptionID is the oracle account that pays for randomness requests.
type SubscriptionID uint64

// LotteryConfig is supplied when the lottery is created and never changes afterwards.
type LotteryConfig struct {
	// Address is the lottery's own account, where pooled funds are held.
	Address          Address
	EntranceFee      *big.Int
	Interval         time.Duration
	GasLane          string
	SubscriptionID   SubscriptionID
	CallbackGasLimit uint32
	// Oracle is the only identity allowed to deliver random words.
	Oracle Address
	// RequestTimeout lets a stale request be re-issued. Zero keeps the lottery
	// waiting for the oracle forever.
	RequestTimeout time.Duration
}

// Snapshot is a consistent read of the lottery aggregate.
type Snapshot struct {
	State            LotteryState   `json:"-"`
	StateName        string         `json:"state"`
	EntranceFee      string         `json:"entranceFee"`
	Interval         time.Duration  `json:"interval"`
	LastTimestamp    time.Time      `json:"lastTimestamp"`
	RecentWinner     Address        `json:"recentWinner,omitempty"`
	Players          []Address      `json:"players"`
	PooledFunds      string         `json:"pooledFunds"`
	PendingRequestID RequestID      `json:"pendingRequestId,omitempty"`
	RequestedAt      time.Time      `json:"requestedAt,omitempty"`
	GasLane          string         `json:"gasLane"`
	SubscriptionID   SubscriptionID `json:"subscriptionId"`
	CallbackGasLimit uint32         `json:"callbackGasLimit"`
	RoundNumber      uint64         `json:"roundNumber"`
}

// RoundResult stores the outcome of a settled round.
type RoundResult struct {
	Number      uint64    `json:"number" bson:"number"`
	RequestID   RequestID `json:"requestId" bson:"requestId"`
	RandomWord  string    `json:"randomWord" bson:"randomWord"`
	WinnerIndex int       `json:"winnerIndex" bson:"winnerIndex"`
	Winner      Address   `json:"winner" bson:"winner"`
	Prize       string    `json:"prize" bson:"prize"`
	PlayerCount int       `json:"playerCount" bson:"playerCount"`
	OpenedAt    time.Time `json:"openedAt" bson:"openedAt"`
	SettledAt   time.Time `json:"settledAt" bson:"settledAt"`
}

// RandomnessRequest carries the parameters passed through to the oracle.
type RandomnessRequest struct {
	KeyHash              string
	SubscriptionID       SubscriptionID
	RequestConfirmations uint16
	CallbackGasLimit     uint32
	NumWords             uint32
	Consumer             Address
}
