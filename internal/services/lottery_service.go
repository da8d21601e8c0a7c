package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"vrflottery/internal/models"
	"vrflottery/internal/repositories"

	"github.com/google/logger"
)

const (
	// NumWords is the number of random words requested per draw.
	NumWords = 1
	// RequestConfirmations is how many blocks the oracle waits before answering.
	RequestConfirmations = 3

	roundSeedTimeout = 10 * time.Second
)

// LotteryService is the lottery aggregate. Every exported operation runs
// under mu and either commits all of its writes or none of them.
type LotteryService struct {
	mu sync.RWMutex

	cfg models.LotteryConfig

	state            models.LotteryState
	players          []models.Address
	pooledFunds      *big.Int
	lastTimestamp    time.Time
	recentWinner     models.Address
	pendingRequestID models.RequestID
	requestedAt      time.Time
	roundNumber      uint64

	coordinator RandomnessCoordinator
	treasury    Treasury
	publisher   Publisher
	rounds      repositories.RoundRepository
	clock       Clock
}

// Option customises a LotteryService.
type Option func(*LotteryService)

// WithClock replaces the wall clock, mostly for tests and simulations.
func WithClock(c Clock) Option {
	return func(s *LotteryService) { s.clock = c }
}

// WithPublisher sends notifications to p instead of discarding them.
func WithPublisher(p Publisher) Option {
	return func(s *LotteryService) { s.publisher = p }
}

// WithRoundRepository records every settled round. Round numbering resumes
// after the highest round already stored.
func WithRoundRepository(r repositories.RoundRepository) Option {
	return func(s *LotteryService) { s.rounds = r }
}

// NewLotteryService creates an open lottery with no players.
func NewLotteryService(cfg models.LotteryConfig, coordinator RandomnessCoordinator, treasury Treasury, opts ...Option) (*LotteryService, error) {
	if cfg.EntranceFee == nil || cfg.EntranceFee.Sign() <= 0 {
		return nil, errors.New("entrance fee must be positive")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("interval must be positive")
	}
	if cfg.Oracle == "" {
		return nil, errors.New("oracle address is required")
	}
	if cfg.Address == "" {
		return nil, errors.New("lottery address is required")
	}
	if coordinator == nil || treasury == nil {
		return nil, errors.New("coordinator and treasury are required")
	}
	cfg.EntranceFee = new(big.Int).Set(cfg.EntranceFee)

	s := &LotteryService{
		cfg:         cfg,
		state:       models.StateOpen,
		players:     make([]models.Address, 0),
		pooledFunds: new(big.Int),
		roundNumber: 1,
		coordinator: coordinator,
		treasury:    treasury,
		publisher:   discardPublisher{},
		clock:       SystemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rounds != nil {
		ctx, cancel := context.WithTimeout(context.Background(), roundSeedTimeout)
		defer cancel()
		latest, err := s.rounds.ListRounds(ctx, 1)
		if err != nil {
			return nil, fmt.Errorf("read round history: %w", err)
		}
		if len(latest) > 0 {
			s.roundNumber = latest[0].Number + 1
			logger.Infof("Resuming at round %d", s.roundNumber)
		}
	}
	s.lastTimestamp = s.clock.Now()
	return s, nil
}

// Enter adds participant to the current round for amount.
func (s *LotteryService) Enter(ctx context.Context, participant models.Address, amount *big.Int) error {
	s.mu.Lock()
	if amount == nil || amount.Cmp(s.cfg.EntranceFee) < 0 {
		s.mu.Unlock()
		return ErrInsufficientFunds
	}
	if s.state != models.StateOpen {
		s.mu.Unlock()
		return ErrRoundNotOpen
	}
	if participant == "" || participant == s.cfg.Address {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrInvalidParticipant, participant)
	}
	if err := s.treasury.Collect(ctx, participant, amount); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("collect entrance fee from %s: %w", participant, err)
	}
	s.players = append(s.players, participant)
	s.pooledFunds.Add(s.pooledFunds, amount)
	at := s.clock.Now()
	s.mu.Unlock()

	logger.Infof("Entered: player=%s amount=%s", participant, models.FormatEther(amount))
	s.publisher.Publish(models.Event{
		Type:   models.EventEntered,
		Player: participant,
		Amount: amount.String(),
		At:     at,
	})
	return nil
}

// CheckUpkeep reports whether a draw may be triggered now. It never mutates
// the lottery and is safe to call at any frequency.
func (s *LotteryService) CheckUpkeep(_ context.Context) (bool, []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.upkeepNeeded(s.clock.Now()), []byte{}
}

func (s *LotteryService) upkeepNeeded(now time.Time) bool {
	if s.requestStale(now) {
		return true
	}
	isOpen := s.state == models.StateOpen
	timePassed := now.Sub(s.lastTimestamp) > s.cfg.Interval
	hasPlayers := len(s.players) > 0
	hasBalance := s.pooledFunds.Sign() > 0
	return isOpen && timePassed && hasPlayers && hasBalance
}

// requestStale is true when the optional request timeout has expired for
// the outstanding request.
func (s *LotteryService) requestStale(now time.Time) bool {
	return s.cfg.RequestTimeout > 0 &&
		s.state == models.StateCalculating &&
		s.pendingRequestID != 0 &&
		now.Sub(s.requestedAt) > s.cfg.RequestTimeout
}

// PerformUpkeep locks the round and asks the oracle for randomness. The
// readiness predicate is evaluated again here: whatever the caller saw when
// polling is not trusted.
func (s *LotteryService) PerformUpkeep(ctx context.Context, _ []byte) (models.RequestID, error) {
	s.mu.Lock()
	now := s.clock.Now()
	if !s.upkeepNeeded(now) {
		err := &UpkeepNotNeededError{
			State:       s.state,
			PooledFunds: new(big.Int).Set(s.pooledFunds),
			PlayerCount: len(s.players),
		}
		s.mu.Unlock()
		return 0, err
	}
	reissue := s.state == models.StateCalculating
	superseded := s.pendingRequestID

	requestID, err := s.coordinator.RequestRandomWords(ctx, models.RandomnessRequest{
		KeyHash:              s.cfg.GasLane,
		SubscriptionID:       s.cfg.SubscriptionID,
		RequestConfirmations: RequestConfirmations,
		CallbackGasLimit:     s.cfg.CallbackGasLimit,
		NumWords:             NumWords,
		Consumer:             s.cfg.Address,
	})
	if err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("request random words: %w", err)
	}
	if requestID == 0 {
		s.mu.Unlock()
		return 0, errors.New("request random words: oracle returned an empty request id")
	}
	s.state = models.StateCalculating
	s.pendingRequestID = requestID
	s.requestedAt = now
	s.mu.Unlock()

	if reissue {
		logger.Warningf("Randomness request %d timed out, re-issued as %d", superseded, requestID)
	}
	logger.Infof("UpkeepPerformed: requestId=%d", requestID)
	s.publisher.Publish(models.Event{
		Type:      models.EventUpkeepPerformed,
		RequestID: requestID,
		At:        now,
	})
	return requestID, nil
}

// FulfillRandomWords is the oracle callback. It picks the winner, pays the
// pooled funds and opens the next round. Nothing changes unless the payout
// succeeds.
func (s *LotteryService) FulfillRandomWords(ctx context.Context, caller models.Address, requestID models.RequestID, randomWords []*big.Int) error {
	if caller != s.cfg.Oracle {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}

	s.mu.Lock()
	if s.pendingRequestID == 0 || requestID != s.pendingRequestID {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownRequest, requestID)
	}
	if len(randomWords) == 0 || randomWords[0] == nil {
		s.mu.Unlock()
		return ErrMissingRandomWords
	}

	playerCount := len(s.players)
	winnerIndex := int(new(big.Int).Mod(randomWords[0], big.NewInt(int64(playerCount))).Int64())
	winner := s.players[winnerIndex]
	prize := new(big.Int).Set(s.pooledFunds)

	if err := s.treasury.Pay(ctx, winner, prize); err != nil {
		s.mu.Unlock()
		logger.Errorf("Payout of %s to %s for request %d failed: %v", models.FormatEther(prize), winner, requestID, err)
		return fmt.Errorf("%w: pay %s: %w", ErrPayoutFailed, winner, err)
	}

	now := s.clock.Now()
	result := &models.RoundResult{
		Number:      s.roundNumber,
		RequestID:   requestID,
		RandomWord:  randomWords[0].String(),
		WinnerIndex: winnerIndex,
		Winner:      winner,
		Prize:       prize.String(),
		PlayerCount: playerCount,
		OpenedAt:    s.lastTimestamp,
		SettledAt:   now,
	}
	s.recentWinner = winner
	s.players = make([]models.Address, 0)
	s.lastTimestamp = now
	s.state = models.StateOpen
	s.pendingRequestID = 0
	s.requestedAt = time.Time{}
	s.pooledFunds = new(big.Int)
	s.roundNumber++
	s.mu.Unlock()

	if s.rounds != nil {
		if err := s.rounds.SaveRound(ctx, result); err != nil {
			logger.Errorf("Failed to record round %d: %v", result.Number, err)
		}
	}
	logger.Infof("WinnerSelected: winner=%s prize=%s round=%d", winner, models.FormatEther(prize), result.Number)
	s.publisher.Publish(models.Event{
		Type:      models.EventWinnerSelected,
		RequestID: requestID,
		Winner:    winner,
		Amount:    prize.String(),
		At:        now,
	})
	return nil
}

// Snapshot returns a consistent copy of the lottery state.
func (s *LotteryService) Snapshot() models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	players := make([]models.Address, len(s.players))
	copy(players, s.players)
	return models.Snapshot{
		State:            s.state,
		StateName:        s.state.String(),
		EntranceFee:      s.cfg.EntranceFee.String(),
		Interval:         s.cfg.Interval,
		LastTimestamp:    s.lastTimestamp,
		RecentWinner:     s.recentWinner,
		Players:          players,
		PooledFunds:      s.pooledFunds.String(),
		PendingRequestID: s.pendingRequestID,
		RequestedAt:      s.requestedAt,
		GasLane:          s.cfg.GasLane,
		SubscriptionID:   s.cfg.SubscriptionID,
		CallbackGasLimit: s.cfg.CallbackGasLimit,
		RoundNumber:      s.roundNumber,
	}
}

// State reports whether the round is OPEN or CALCULATING.
func (s *LotteryService) State() models.LotteryState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Player returns the participant at index in entry order.
func (s *LotteryService) Player(index int) (models.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.players) {
		return "", false
	}
	return s.players[index], true
}

// NumberOfPlayers returns how many entries the current round holds.
func (s *LotteryService) NumberOfPlayers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players)
}

// PooledFunds returns a copy of the prize pool in wei.
func (s *LotteryService) PooledFunds() *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(big.Int).Set(s.pooledFunds)
}

// RecentWinner returns the winner of the last settled round.
func (s *LotteryService) RecentWinner() models.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recentWinner
}

// LastTimestamp returns when the current round opened.
func (s *LotteryService) LastTimestamp() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTimestamp
}

// PendingRequestID returns the outstanding randomness request, or zero.
func (s *LotteryService) PendingRequestID() models.RequestID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pendingRequestID
}

// EntranceFee returns a copy of the minimum entry amount in wei.
func (s *LotteryService) EntranceFee() *big.Int { return new(big.Int).Set(s.cfg.EntranceFee) }

// Interval returns the minimum duration of a round.
func (s *LotteryService) Interval() time.Duration { return s.cfg.Interval }

// GasLane returns the key hash passed to the oracle.
func (s *LotteryService) GasLane() string { return s.cfg.GasLane }

// SubscriptionID returns the oracle subscription paying for requests.
func (s *LotteryService) SubscriptionID() models.SubscriptionID { return s.cfg.SubscriptionID }

// CallbackGasLimit returns the ceiling passed to the oracle callback.
func (s *LotteryService) CallbackGasLimit() uint32 { return s.cfg.CallbackGasLimit }

// Address is the lottery's own account.
func (s *LotteryService) Address() models.Address { return s.cfg.Address }
