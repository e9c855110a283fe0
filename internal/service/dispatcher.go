package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lockstats/internal/aggregate"
	"lockstats/internal/bucket"
	"lockstats/internal/domain"
	"lockstats/internal/ledger"
	"lockstats/internal/metrics"
	"lockstats/internal/normalizer"
	"lockstats/internal/pubsub"
	"lockstats/internal/store"

	"gitlab.com/nevasik7/alerting/logger"
)

var ErrInvalidQuery = errors.New("invalid query")

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
)

// MovementArchive is the non-critical analytics sink for applied movements
type MovementArchive interface {
	Enqueue(mv *domain.Movement) error
	Health(ctx context.Context) error
}

// Dispatcher is the only orchestration point for locker events:
// idempotency check → user → normalize → movement → ledger → buckets → archive/broadcast.
// Events must be handed over one at a time in source order.
type Dispatcher struct {
	log         logger.Logger
	store       store.Store
	ledger      *ledger.Ledger
	normalizer  *normalizer.Normalizer
	engine      *aggregate.Engine
	archive     MovementArchive    // optional
	broadcaster pubsub.Broadcaster // optional
}

func NewDispatcher(
	log logger.Logger,
	st store.Store,
	userLedger *ledger.Ledger,
	norm *normalizer.Normalizer,
	engine *aggregate.Engine,
	archive MovementArchive,
	broadcaster pubsub.Broadcaster,
) (*Dispatcher, error) {
	switch {
	case st == nil:
		return nil, errors.New("store is required to the dispatcher")
	case userLedger == nil:
		return nil, errors.New("user ledger is required to the dispatcher")
	case norm == nil:
		return nil, errors.New("normalizer is required to the dispatcher")
	case engine == nil:
		return nil, errors.New("aggregation engine is required to the dispatcher")
	}

	return &Dispatcher{
		log:         log,
		store:       st,
		ledger:      userLedger,
		normalizer:  norm,
		engine:      engine,
		archive:     archive,
		broadcaster: broadcaster,
	}, nil
}

// Process applies one event; duplicates are a successful no-op
func (d *Dispatcher) Process(ctx context.Context, ev *domain.Event) error {
	_, err := d.Handle(ctx, ev)
	return err
}

func (d *Dispatcher) Handle(ctx context.Context, ev *domain.Event) (Outcome, error) {
	if ev == nil {
		metrics.EventsTotal.WithLabelValues("", "malformed").Inc()
		return "", fmt.Errorf("%w: nil event", domain.ErrMalformedEvent)
	}

	started := time.Now()
	evType := string(ev.Type)

	outcome, err := d.handle(ctx, ev)

	switch {
	case err == nil:
		metrics.EventsTotal.WithLabelValues(evType, string(outcome)).Inc()
		metrics.ProcessDuration.WithLabelValues(evType).Observe(time.Since(started).Seconds())
	case errors.Is(err, domain.ErrMalformedEvent), errors.Is(err, domain.ErrUnknownEventType):
		metrics.EventsTotal.WithLabelValues(evType, "malformed").Inc()
	default:
		metrics.EventsTotal.WithLabelValues(evType, "failed").Inc()
	}

	return outcome, err
}

func (d *Dispatcher) handle(ctx context.Context, ev *domain.Event) (Outcome, error) {
	if err := ev.Validate(); err != nil {
		return "", err
	}

	id := ev.MovementID()

	exists, err := d.store.Exists(ctx, domain.KindMovement, id)
	if err != nil {
		return "", fmt.Errorf("idempotency check for %s: %w", id, err)
	}
	if exists {
		d.log.Debugf("Movement %s already applied, skipping", id)
		return OutcomeDuplicate, nil
	}

	// 1. user
	userID, _ := domain.NormalizeAddress(ev.User)
	user, userCreated, err := d.ledger.GetOrCreate(ctx, userID)
	if err != nil {
		return "", err
	}

	// 2. movement with USD value
	mv, err := d.normalizer.Normalize(ctx, ev)
	if err != nil {
		return "", err
	}

	// 3. persist the movement under its idempotent id
	if err = d.store.Save(ctx, mv); err != nil {
		return "", fmt.Errorf("save movement %s: %w", mv.ID, err)
	}

	// 4. ledger
	switch mv.Class {
	case domain.ClassLock:
		err = d.ledger.ApplyLock(ctx, user, mv.Amount)
	case domain.ClassWithdrawal:
		err = d.ledger.ApplyWithdrawal(ctx, user, mv.Amount)
	default:
		if userCreated {
			err = d.ledger.Save(ctx, user)
		}
	}
	if err != nil {
		return "", fmt.Errorf("ledger update for %s: %w", mv.ID, err)
	}

	// 5. buckets
	updated, err := d.engine.Record(ctx, mv)
	if err != nil {
		return "", fmt.Errorf("aggregate %s: %w", mv.ID, err)
	}

	d.archiveMovement(mv)
	d.broadcast(ctx, mv.ID, updated)

	d.log.Debugf("Event applied: %s (class=%s, user=%s, amount=%s, usd=%s)",
		mv.ID, mv.Class, mv.User, mv.Amount, mv.AmountUSD)

	return OutcomeApplied, nil
}

func (d *Dispatcher) archiveMovement(mv *domain.Movement) {
	if d.archive == nil {
		return
	}
	if err := d.archive.Enqueue(mv); err != nil {
		d.log.Warnf("Failed to archive movement %s: %v", mv.ID, err)
	}
}

// Broadcast errors are not critical, subscribers catch up on the next patch
func (d *Dispatcher) broadcast(ctx context.Context, movementID string, updated []*domain.Bucket) {
	if d.broadcaster == nil {
		return
	}
	for _, b := range updated {
		patch := pubsub.NewBucketPatch(b, movementID)
		if err := d.broadcaster.Publish(ctx, patch.Subject(), patch); err != nil {
			d.log.Errorf("Failed to broadcast patch for %s/%s: %v", patch.Kind, patch.ID, err)
		}
	}
}

func (d *Dispatcher) GetUser(ctx context.Context, address string) (*domain.User, error) {
	id, err := domain.NormalizeAddress(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	return store.Get(ctx, d.store, id, domain.NewUser)
}

func (d *Dispatcher) GetMovement(ctx context.Context, id string) (*domain.Movement, error) {
	parsed, err := domain.ParseMovementID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	return store.Get(ctx, d.store, domain.MakeMovementID(parsed.TxHash, parsed.LogIndex), func(id string) *domain.Movement {
		return &domain.Movement{ID: id}
	})
}

func (d *Dispatcher) GetToken(ctx context.Context, address string) (*domain.Token, error) {
	id, err := domain.NormalizeAddress(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	return store.Get(ctx, d.store, id, func(id string) *domain.Token {
		return &domain.Token{ID: id}
	})
}

// GetBucket returns the bucket of the class containing ts; token is required for rewards only
func (d *Dispatcher) GetBucket(ctx context.Context, p bucket.Period, class domain.Class, ts int64, tokenAddr string) (*domain.Bucket, error) {
	if class == domain.ClassReward {
		tok, err := domain.NormalizeAddress(tokenAddr)
		if err != nil {
			return nil, fmt.Errorf("%w: reward buckets are keyed by token: %w", ErrInvalidQuery, err)
		}
		tokenAddr = tok
	} else {
		tokenAddr = ""
	}
	return d.engine.Get(ctx, p, class, ts, tokenAddr)
}

func (d *Dispatcher) CheckDependency(ctx context.Context) error {
	errDependency := make([]string, 0, 3)

	if err := d.store.Health(ctx); err != nil {
		errDependency = append(errDependency, fmt.Sprintf("store: %v", err))
	}

	if d.archive != nil {
		if err := d.archive.Health(ctx); err != nil {
			errDependency = append(errDependency, fmt.Sprintf("ClickHouse: %v", err))
		}
	}

	if d.broadcaster != nil {
		if err := d.broadcaster.Health(ctx); err != nil {
			errDependency = append(errDependency, "NATS: connection not ready")
		}
	}

	if len(errDependency) > 0 {
		return fmt.Errorf("dependency check failed: %s", strings.Join(errDependency, "; "))
	}

	d.log.Debugf("All dependency check passed")
	return nil
}
