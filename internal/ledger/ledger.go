package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"lockstats/internal/domain"
	"lockstats/internal/store"

	"gitlab.com/nevasik7/alerting/logger"
)

// Ledger keeps one running-totals record per user; read-modify-write, persisted after every mutation
type Ledger struct {
	log   logger.Logger
	store store.Store
}

func New(log logger.Logger, st store.Store) (*Ledger, error) {
	if st == nil {
		return nil, errors.New("store is required to the user ledger")
	}
	return &Ledger{log: log, store: st}, nil
}

// GetOrCreate returns the stored user or a zero-totals one (created=true, not yet persisted)
func (l *Ledger) GetOrCreate(ctx context.Context, address string) (*domain.User, bool, error) {
	u, created, err := store.GetOrCreate(ctx, l.store, address, domain.NewUser)
	if err != nil {
		return nil, false, fmt.Errorf("load user %s: %w", address, err)
	}
	return u, created, nil
}

func (l *Ledger) ApplyLock(ctx context.Context, u *domain.User, amount *big.Int) error {
	u.TotalLocked.Add(u.TotalLocked, amount)
	return l.Save(ctx, u)
}

func (l *Ledger) ApplyWithdrawal(ctx context.Context, u *domain.User, amount *big.Int) error {
	u.TotalLocked.Sub(u.TotalLocked, amount)
	if u.TotalLocked.Sign() < 0 {
		// only reachable with out-of-order delivery; kept as-is so the matching lock restores it
		l.log.Warnf("User %s total locked went negative: %s", u.ID, u.TotalLocked)
	}
	return l.Save(ctx, u)
}

func (l *Ledger) Save(ctx context.Context, u *domain.User) error {
	if err := l.store.Save(ctx, u); err != nil {
		return fmt.Errorf("save user %s: %w", u.ID, err)
	}
	return nil
}
