// Package ledger keeps the external balances of players and of the lottery's
// own account.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"vrflottery/internal/models"

	"github.com/google/logger"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrTransferRejected    = errors.New("recipient rejected transfer")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrSelfTransfer        = errors.New("cannot transfer to the same account")
)

// Ledger holds balances in wei. Collect moves funds from a player into the
// house account and Pay moves them out to a winner.
type Ledger struct {
	mu       sync.RWMutex
	house    models.Address
	balances map[models.Address]*big.Int
	refusing map[models.Address]bool
}

// New creates a ledger whose house account is the lottery's address.
func New(house models.Address) *Ledger {
	return &Ledger{
		house:    house,
		balances: make(map[models.Address]*big.Int),
		refusing: make(map[models.Address]bool),
	}
}

// Mint credits addr out of thin air. It backs the development faucet.
func (l *Ledger) Mint(addr models.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(addr, amount)
	logger.Infof("Minted %s to %s", models.FormatEther(amount), addr)
	return nil
}

// Balance returns a copy of addr's balance.
func (l *Ledger) Balance(addr models.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if b, ok := l.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Refuse makes addr reject every incoming payment.
func (l *Ledger) Refuse(addr models.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refusing[addr] = true
}

// Accept undoes Refuse.
func (l *Ledger) Accept(addr models.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.refusing, addr)
}

// Collect debits from and credits the house account.
func (l *Ledger) Collect(ctx context.Context, from models.Address, amount *big.Int) error {
	return l.transfer(ctx, from, l.house, amount)
}

// Pay debits the house account and credits to.
func (l *Ledger) Pay(ctx context.Context, to models.Address, amount *big.Int) error {
	return l.transfer(ctx, l.house, to, amount)
}

func (l *Ledger) transfer(ctx context.Context, from, to models.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if from == to {
		return fmt.Errorf("%w: %s", ErrSelfTransfer, from)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.refusing[to] {
		return fmt.Errorf("%w: %s", ErrTransferRejected, to)
	}
	balance := l.balances[from]
	if balance == nil || balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, from,
			models.FormatEther(balance), models.FormatEther(amount))
	}
	balance.Sub(balance, amount)
	l.credit(to, amount)
	return nil
}

func (l *Ledger) credit(addr models.Address, amount *big.Int) {
	b, ok := l.balances[addr]
	if !ok {
		b = new(big.Int)
		l.balances[addr] = b
	}
	b.Add(b, amount)
}
