// Package sqlite stores round history in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vrflottery/internal/models"
	"vrflottery/internal/repositories"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS rounds (
	number       INTEGER PRIMARY KEY,
	request_id   INTEGER NOT NULL,
	random_word  TEXT    NOT NULL,
	winner_index INTEGER NOT NULL,
	winner       TEXT    NOT NULL,
	prize        TEXT    NOT NULL,
	player_count INTEGER NOT NULL,
	opened_at    INTEGER NOT NULL,
	settled_at   INTEGER NOT NULL
)`

const selectColumns = `number, request_id, random_word, winner_index, winner, prize, player_count, opened_at, settled_at`

// RoundRepository implements repositories.RoundRepository on SQLite.
type RoundRepository struct {
	db *sql.DB
}

var _ repositories.RoundRepository = (*RoundRepository)(nil)

// Open opens the database at path and applies the schema.
func Open(ctx context.Context, path string) (*RoundRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &RoundRepository{db: db}, nil
}

func (r *RoundRepository) Close() error {
	return r.db.Close()
}

func (r *RoundRepository) SaveRound(ctx context.Context, round *models.RoundResult) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rounds (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(number) DO UPDATE SET
			request_id = excluded.request_id,
			random_word = excluded.random_word,
			winner_index = excluded.winner_index,
			winner = excluded.winner,
			prize = excluded.prize,
			player_count = excluded.player_count,
			opened_at = excluded.opened_at,
			settled_at = excluded.settled_at`,
		int64(round.Number),
		int64(round.RequestID),
		round.RandomWord,
		round.WinnerIndex,
		string(round.Winner),
		round.Prize,
		round.PlayerCount,
		round.OpenedAt.UnixNano(),
		round.SettledAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save round %d: %w", round.Number, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRound(s scanner) (*models.RoundResult, error) {
	var (
		round               models.RoundResult
		number, requestID   int64
		winner              string
		openedAt, settledAt int64
	)
	err := s.Scan(&number, &requestID, &round.RandomWord, &round.WinnerIndex, &winner,
		&round.Prize, &round.PlayerCount, &openedAt, &settledAt)
	if err != nil {
		return nil, err
	}
	round.Number = uint64(number)
	round.RequestID = models.RequestID(requestID)
	round.Winner = models.Address(winner)
	round.OpenedAt = time.Unix(0, openedAt).UTC()
	round.SettledAt = time.Unix(0, settledAt).UTC()
	return &round, nil
}

func (r *RoundRepository) FindRound(ctx context.Context, number uint64) (*models.RoundResult, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM rounds WHERE number = ?`, int64(number))
	round, err := scanRound(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repositories.ErrRoundNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find round %d: %w", number, err)
	}
	return round, nil
}

func (r *RoundRepository) ListRounds(ctx context.Context, limit int) ([]*models.RoundResult, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM rounds ORDER BY number DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}
	defer rows.Close()

	rounds := make([]*models.RoundResult, 0)
	for rows.Next() {
		round, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		rounds = append(rounds, round)
	}
	return rounds, rows.Err()
}

func (r *RoundRepository) CountRounds(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rounds`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rounds: %w", err)
	}
	return n, nil
}
