package mongodb

import (
	"context"
	"errors"
	"fmt"

	"vrflottery/internal/models"
	"vrflottery/internal/repositories"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RoundRepository implements the repositories.RoundRepository interface
type RoundRepository struct {
	collection *mongo.Collection
}

var _ repositories.RoundRepository = (*RoundRepository)(nil)

// NewRoundRepository creates a new RoundRepository and ensures the round
// number index exists.
func NewRoundRepository(ctx context.Context, db *mongo.Database) (*RoundRepository, error) {
	collection := db.Collection("rounds")
	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "number", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("create rounds index: %w", err)
	}
	return &RoundRepository{collection: collection}, nil
}

// SaveRound upserts a round by number
func (r *RoundRepository) SaveRound(ctx context.Context, round *models.RoundResult) error {
	_, err := r.collection.ReplaceOne(ctx,
		bson.M{"number": round.Number},
		round,
		options.Replace().SetUpsert(true),
	)
	return err
}

// FindRound finds a round by number
func (r *RoundRepository) FindRound(ctx context.Context, number uint64) (*models.RoundResult, error) {
	var round models.RoundResult
	err := r.collection.FindOne(ctx, bson.M{"number": number}).Decode(&round)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repositories.ErrRoundNotFound
	}
	if err != nil {
		return nil, err
	}
	return &round, nil
}

// ListRounds lists rounds, newest first
func (r *RoundRepository) ListRounds(ctx context.Context, limit int) ([]*models.RoundResult, error) {
	opts := options.Find().SetSort(bson.D{{Key: "number", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rounds []*models.RoundResult
	if err := cursor.All(ctx, &rounds); err != nil {
		return nil, err
	}
	if rounds == nil {
		rounds = []*models.RoundResult{}
	}
	return rounds, nil
}

// CountRounds counts all rounds
func (r *RoundRepository) CountRounds(ctx context.Context) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{})
}
