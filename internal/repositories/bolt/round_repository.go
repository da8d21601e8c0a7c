// Package bolt stores round history in a local bbolt file.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"vrflottery/internal/models"
	"vrflottery/internal/repositories"

	bolt "go.etcd.io/bbolt"
)

var roundsBucket = []byte("rounds")

// RoundRepository implements repositories.RoundRepository on bbolt.
// Keys are big-endian round numbers so cursor order is round order.
type RoundRepository struct {
	db *bolt.DB
}

var _ repositories.RoundRepository = (*RoundRepository)(nil)

// Open opens or creates the database at path.
func Open(path string) (*RoundRepository, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(roundsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create rounds bucket: %w", err)
	}
	return &RoundRepository{db: db}, nil
}

func (r *RoundRepository) Close() error {
	return r.db.Close()
}

func roundKey(number uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], number)
	return k[:]
}

func (r *RoundRepository) SaveRound(ctx context.Context, round *models.RoundResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(round)
	if err != nil {
		return fmt.Errorf("encode round %d: %w", round.Number, err)
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(roundsBucket).Put(roundKey(round.Number), value)
	})
}

func (r *RoundRepository) FindRound(ctx context.Context, number uint64) (*models.RoundResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var round models.RoundResult
	err := r.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(roundsBucket).Get(roundKey(number))
		if value == nil {
			return repositories.ErrRoundNotFound
		}
		return json.Unmarshal(value, &round)
	})
	if err != nil {
		return nil, err
	}
	return &round, nil
}

func (r *RoundRepository) ListRounds(ctx context.Context, limit int) ([]*models.RoundResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rounds := make([]*models.RoundResult, 0)
	err := r.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(roundsBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(rounds) >= limit {
				break
			}
			var round models.RoundResult
			if err := json.Unmarshal(v, &round); err != nil {
				return fmt.Errorf("decode round %d: %w", binary.BigEndian.Uint64(k), err)
			}
			rounds = append(rounds, &round)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rounds, nil
}

func (r *RoundRepository) CountRounds(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int
	err := r.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(roundsBucket).Stats().KeyN
		return nil
	})
	return int64(n), err
}
