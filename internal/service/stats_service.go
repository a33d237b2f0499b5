package service

import (
	"context"

	"github.com/noah-isme/clonebot/internal/models"
)

type counter interface {
	Count(ctx context.Context) int
}

type pendingCounter interface {
	Pending(ctx context.Context) int
}

// StatsService aggregates platform counters for /stats and the admin API.
type StatsService struct {
	users  counter
	files  counter
	clones counter
	tokens pendingCounter
}

// NewStatsService constructs a stats aggregator.
func NewStatsService(users, files, clones counter, tokens pendingCounter) *StatsService {
	return &StatsService{users: users, files: files, clones: clones, tokens: tokens}
}

// Stats returns current counters. Unavailable stores count as zero.
func (s *StatsService) Stats(ctx context.Context) models.Stats {
	return models.Stats{
		Users:         s.users.Count(ctx),
		Files:         s.files.Count(ctx),
		Clones:        s.clones.Count(ctx),
		PendingTokens: s.tokens.Pending(ctx),
	}
}
