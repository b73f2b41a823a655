package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type countCollection interface {
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// StatsProvider exposes helper methods to retrieve collection counts for basic
// diagnostics without leaking MongoDB internals to callers.
type StatsProvider struct {
	posts countCollection
}

// NewStatsProvider constructs a StatsProvider backed by the posts collection.
func NewStatsProvider(posts countCollection) *StatsProvider {
	return &StatsProvider{posts: posts}
}

// CountPosts returns the number of documents in the posts collection.
func (p *StatsProvider) CountPosts(ctx context.Context) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if p == nil || p.posts == nil {
		return 0, errors.New("stats provider is not initialized")
	}

	count, err := p.posts.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}

	return count, nil
}
