package handlers

import (
	"context"
	"errors"

	"lockstats/internal/bucket"
	"lockstats/internal/domain"

	"gitlab.com/nevasik7/alerting/logger"
)

// StatsService is the read side of the dispatcher
type StatsService interface {
	GetUser(ctx context.Context, address string) (*domain.User, error)
	GetMovement(ctx context.Context, id string) (*domain.Movement, error)
	GetToken(ctx context.Context, address string) (*domain.Token, error)
	GetBucket(ctx context.Context, p bucket.Period, class domain.Class, ts int64, token string) (*domain.Bucket, error)
	CheckDependency(ctx context.Context) error
}

type Handler struct {
	Log   logger.Logger
	Stats StatsService
}

func NewHandler(log logger.Logger, stats StatsService) (*Handler, error) {
	if stats == nil {
		return nil, errors.New("stats service is required to the handler")
	}
	return &Handler{Log: log, Stats: stats}, nil
}
