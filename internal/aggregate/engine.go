package aggregate

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"lockstats/internal/bucket"
	"lockstats/internal/domain"
	"lockstats/internal/metrics"
	"lockstats/internal/store"

	"github.com/shopspring/decimal"
	"gitlab.com/nevasik7/alerting/logger"
)

/*
	Engine keeps calendar buckets (daily + weekly) per movement class on top of the entity store.
	Every movement updates every period independently; weekly is never derived from daily.
	Updates are additive, so the order in which movements land in a bucket does not matter.
*/

type Engine struct {
	log     logger.Logger
	store   store.Store
	periods []bucket.Period
}

func NewEngine(log logger.Logger, st store.Store, periods ...bucket.Period) (*Engine, error) {
	if st == nil {
		return nil, errors.New("store is required to the aggregation engine")
	}

	if len(periods) == 0 {
		periods = bucket.All
	}
	for _, p := range periods {
		if p <= 0 {
			return nil, fmt.Errorf("invalid bucket period %d", p)
		}
	}

	return &Engine{
		log:     log,
		store:   st,
		periods: periods,
	}, nil
}

func (e *Engine) RecordLock(ctx context.Context, ts int64, raw *big.Int, usd decimal.Decimal) ([]*domain.Bucket, error) {
	return e.record(ctx, domain.ClassLock, "", ts, raw, usd)
}

func (e *Engine) RecordWithdrawal(ctx context.Context, ts int64, raw *big.Int, usd decimal.Decimal) ([]*domain.Bucket, error) {
	return e.record(ctx, domain.ClassWithdrawal, "", ts, raw, usd)
}

func (e *Engine) RecordReward(ctx context.Context, ts int64, token string, raw *big.Int, usd decimal.Decimal) ([]*domain.Bucket, error) {
	if token == "" {
		return nil, errors.New("reward bucket requires a token")
	}
	return e.record(ctx, domain.ClassReward, token, ts, raw, usd)
}

// Record dispatches a movement to the bucket family of its class
func (e *Engine) Record(ctx context.Context, mv *domain.Movement) ([]*domain.Bucket, error) {
	switch mv.Class {
	case domain.ClassLock:
		return e.RecordLock(ctx, mv.Time, mv.Amount, mv.AmountUSD)
	case domain.ClassWithdrawal:
		return e.RecordWithdrawal(ctx, mv.Time, mv.Amount, mv.AmountUSD)
	case domain.ClassReward:
		return e.RecordReward(ctx, mv.Time, mv.Token, mv.Amount, mv.AmountUSD)
	default:
		return nil, fmt.Errorf("unknown movement class %q", mv.Class)
	}
}

// Get returns the bucket of the class containing ts
func (e *Engine) Get(ctx context.Context, p bucket.Period, class domain.Class, ts int64, token string) (*domain.Bucket, error) {
	start := bucket.Start(ts, p)
	return store.Get(ctx, e.store, domain.BucketID(start, token), func(string) *domain.Bucket {
		return domain.NewBucket(p, class, start, token)
	})
}

func (e *Engine) record(
	ctx context.Context,
	class domain.Class,
	token string,
	ts int64,
	raw *big.Int,
	usd decimal.Decimal,
) ([]*domain.Bucket, error) {
	updated := make([]*domain.Bucket, 0, len(e.periods))

	for _, p := range e.periods {
		start := bucket.Start(ts, p)

		b, created, err := store.GetOrCreate(ctx, e.store, domain.BucketID(start, token), func(string) *domain.Bucket {
			return domain.NewBucket(p, class, start, token)
		})
		if err != nil {
			return updated, fmt.Errorf("load %s bucket %d: %w", domain.BucketKind(p, class), start, err)
		}

		b.Add(raw, usd)

		if err = e.store.Save(ctx, b); err != nil {
			return updated, fmt.Errorf("save %s bucket %s: %w", b.Kind(), b.ID, err)
		}

		metrics.BucketWrites.WithLabelValues(string(b.Kind())).Inc()
		if created {
			e.log.Debugf("Opened %s bucket %s", b.Kind(), b.ID)
		}

		updated = append(updated, b)
	}

	return updated, nil
}
