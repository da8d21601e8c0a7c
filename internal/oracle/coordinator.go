// Package oracle is the randomness oracle the lottery talks to. Requests are
// queued as messages and answered later through the consumer's callback.
package oracle

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"vrflottery/internal/models"

	"github.com/google/logger"
)

const (
	MaxNumWords         = 500
	MaxCallbackGasLimit = 2_500_000
)

var (
	ErrInvalidSubscription = errors.New("invalid subscription")
	ErrInvalidConsumer     = errors.New("invalid consumer")
	ErrNumWordsTooBig      = errors.New("num words too big")
	ErrInvalidNumWords     = errors.New("num words must be positive")
	ErrGasLimitTooBig      = errors.New("callback gas limit too big")
	ErrNonexistentRequest  = errors.New("nonexistent request")
	ErrInsufficientBalance = errors.New("insufficient subscription balance")
	ErrNoDeliveryTarget    = errors.New("no delivery target registered for consumer")
)

// Consumer receives random words. The caller argument is the coordinator's
// own address so the consumer can reject anyone else.
type Consumer interface {
	FulfillRandomWords(ctx context.Context, caller models.Address, requestID models.RequestID, randomWords []*big.Int) error
}

// Subscription pays for the requests of its consumers.
type Subscription struct {
	ID        models.SubscriptionID
	Balance   *big.Int
	Consumers []models.Address
	Requests  uint64
}

// Fulfillment describes one answered request. A consumer that fails its
// callback does not get the request back.
type Fulfillment struct {
	RequestID   models.RequestID
	Consumer    models.Address
	Words       []*big.Int
	Proof       *Proof
	Success     bool
	CallbackErr error
}

type pendingRequest struct {
	id          models.RequestID
	req         models.RandomnessRequest
	preSeed     []byte
	requestedAt time.Time
}

type subscription struct {
	balance   *big.Int
	consumers map[models.Address]bool
	order     []models.Address
	requests  uint64
}

// Coordinator owns subscriptions and the queue of outstanding requests.
type Coordinator struct {
	mu sync.Mutex

	address models.Address
	baseFee *big.Int
	delay   time.Duration
	prover  *Prover

	nextSubID     models.SubscriptionID
	nextRequestID models.RequestID
	subs          map[models.SubscriptionID]*subscription
	targets       map[models.Address]Consumer
	pending       map[models.RequestID]*pendingRequest
	proofs        map[models.RequestID]*Proof

	queue chan models.RequestID
}

type Option func(*Coordinator)

// WithBaseFee sets the amount charged to a subscription per fulfillment.
func WithBaseFee(fee *big.Int) Option {
	return func(c *Coordinator) { c.baseFee = new(big.Int).Set(fee) }
}

// WithFulfillmentDelay sets how long Run waits before answering a request.
func WithFulfillmentDelay(d time.Duration) Option {
	return func(c *Coordinator) { c.delay = d }
}

func WithQueueSize(n int) Option {
	return func(c *Coordinator) { c.queue = make(chan models.RequestID, n) }
}

func NewCoordinator(address models.Address, opts ...Option) *Coordinator {
	c := &Coordinator{
		address: address,
		baseFee: new(big.Int),
		prover:  NewProver(),
		subs:    make(map[models.SubscriptionID]*subscription),
		targets: make(map[models.Address]Consumer),
		pending: make(map[models.RequestID]*pendingRequest),
		proofs:  make(map[models.RequestID]*Proof),
		queue:   make(chan models.RequestID, 64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Address is the identity the coordinator presents to consumers.
func (c *Coordinator) Address() models.Address { return c.address }

// PublicKey is the key fulfillment proofs verify against.
func (c *Coordinator) PublicKey() ([]byte, error) { return c.prover.PublicKey() }

func (c *Coordinator) CreateSubscription() models.SubscriptionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSubID++
	c.subs[c.nextSubID] = &subscription{
		balance:   new(big.Int),
		consumers: make(map[models.Address]bool),
	}
	logger.Infof("Created subscription %d", c.nextSubID)
	return c.nextSubID
}

func (c *Coordinator) FundSubscription(id models.SubscriptionID, amount *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subs[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidSubscription, id)
	}
	sub.balance.Add(sub.balance, amount)
	logger.Infof("Funded subscription %d with %s", id, models.FormatEther(amount))
	return nil
}

// AddConsumer allows consumer to spend from subscription id.
func (c *Coordinator) AddConsumer(id models.SubscriptionID, consumer models.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subs[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidSubscription, id)
	}
	if !sub.consumers[consumer] {
		sub.consumers[consumer] = true
		sub.order = append(sub.order, consumer)
	}
	return nil
}

// Register sets where words for consumer are delivered.
func (c *Coordinator) Register(consumer models.Address, target Consumer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targets[consumer] = target
}

func (c *Coordinator) GetSubscription(id models.SubscriptionID) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subs[id]
	if !ok {
		return Subscription{}, fmt.Errorf("%w: %d", ErrInvalidSubscription, id)
	}
	consumers := make([]models.Address, len(sub.order))
	copy(consumers, sub.order)
	return Subscription{
		ID:        id,
		Balance:   new(big.Int).Set(sub.balance),
		Consumers: consumers,
		Requests:  sub.requests,
	}, nil
}

// RequestRandomWords records the request and queues it for Run. It never
// calls back into the consumer.
func (c *Coordinator) RequestRandomWords(ctx context.Context, req models.RandomnessRequest) (models.RequestID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if req.NumWords == 0 {
		return 0, ErrInvalidNumWords
	}
	if req.NumWords > MaxNumWords {
		return 0, fmt.Errorf("%w: have %d, want <= %d", ErrNumWordsTooBig, req.NumWords, MaxNumWords)
	}
	if req.CallbackGasLimit > MaxCallbackGasLimit {
		return 0, fmt.Errorf("%w: have %d, want <= %d", ErrGasLimitTooBig, req.CallbackGasLimit, MaxCallbackGasLimit)
	}

	preSeed := make([]byte, 32)
	if _, err := rand.Read(preSeed); err != nil {
		return 0, fmt.Errorf("read pre-seed: %w", err)
	}

	c.mu.Lock()
	sub, ok := c.subs[req.SubscriptionID]
	if !ok {
		c.mu.Unlock()
		return 0, fmt.Errorf("%w: %d", ErrInvalidSubscription, req.SubscriptionID)
	}
	if !sub.consumers[req.Consumer] {
		c.mu.Unlock()
		return 0, fmt.Errorf("%w: %s on subscription %d", ErrInvalidConsumer, req.Consumer, req.SubscriptionID)
	}
	c.nextRequestID++
	id := c.nextRequestID
	sub.requests++
	c.pending[id] = &pendingRequest{id: id, req: req, preSeed: preSeed, requestedAt: time.Now()}
	c.mu.Unlock()

	logger.Infof("RandomWordsRequested: requestId=%d consumer=%s subId=%d", id, req.Consumer, req.SubscriptionID)
	select {
	case c.queue <- id:
	default:
		logger.Warningf("Fulfillment queue is full, request %d waits for a manual Fulfill", id)
	}
	return id, nil
}

// Pending reports whether id is still waiting for an answer.
func (c *Coordinator) Pending(id models.RequestID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	return ok
}

// Fulfill answers request id with fresh BLS-derived words.
func (c *Coordinator) Fulfill(ctx context.Context, id models.RequestID) (*Fulfillment, error) {
	return c.fulfill(ctx, id, nil)
}

// FulfillWithWords answers request id with the given words and no proof.
func (c *Coordinator) FulfillWithWords(ctx context.Context, id models.RequestID, words []*big.Int) (*Fulfillment, error) {
	if len(words) == 0 {
		return nil, ErrInvalidNumWords
	}
	return c.fulfill(ctx, id, words)
}

func (c *Coordinator) fulfill(ctx context.Context, id models.RequestID, override []*big.Int) (*Fulfillment, error) {
	c.mu.Lock()
	p, ok := c.pending[id]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %d", ErrNonexistentRequest, id)
	}
	sub := c.subs[p.req.SubscriptionID]
	if sub.balance.Cmp(c.baseFee) < 0 {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: subscription %d holds %s, fee is %s", ErrInsufficientBalance,
			p.req.SubscriptionID, models.FormatEther(sub.balance), models.FormatEther(c.baseFee))
	}

	f := &Fulfillment{RequestID: id, Consumer: p.req.Consumer, Words: override}
	if override == nil {
		words, proof, err := c.prover.Prove(p.req.KeyHash, id, p.preSeed, p.req.NumWords)
		if err != nil {
			c.mu.Unlock()
			return nil, err
		}
		f.Words = words
		f.Proof = proof
		c.proofs[id] = proof
	}
	sub.balance.Sub(sub.balance, c.baseFee)
	delete(c.pending, id)
	target := c.targets[p.req.Consumer]
	c.mu.Unlock()

	if target == nil {
		f.CallbackErr = fmt.Errorf("%w: %s", ErrNoDeliveryTarget, p.req.Consumer)
	} else {
		f.CallbackErr = target.FulfillRandomWords(ctx, c.address, id, f.Words)
	}
	f.Success = f.CallbackErr == nil
	if f.Success {
		logger.Infof("RandomWordsFulfilled: requestId=%d success=true", id)
	} else {
		logger.Warningf("RandomWordsFulfilled: requestId=%d success=false: %v", id, f.CallbackErr)
	}
	return f, nil
}

// Proof returns the proof recorded for a fulfilled request.
func (c *Coordinator) Proof(id models.RequestID) (*Proof, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.proofs[id]
	return p, ok
}

// Verify checks a fulfillment against the coordinator's public key.
func (c *Coordinator) Verify(f *Fulfillment) error {
	pub, err := c.PublicKey()
	if err != nil {
		return err
	}
	return VerifyProof(pub, f.Proof, f.Words)
}

// Run answers queued requests after the configured delay until ctx is done.
func (c *Coordinator) Run(ctx context.Context) {
	logger.Infof("Randomness coordinator %s running, fulfillment delay %s", c.address, c.delay)
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-c.queue:
			if c.delay > 0 {
				timer := time.NewTimer(c.delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			if _, err := c.Fulfill(ctx, id); err != nil {
				logger.Errorf("Failed to fulfill request %d: %v", id, err)
			}
		}
	}
}
