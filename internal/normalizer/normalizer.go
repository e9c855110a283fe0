package normalizer

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"lockstats/internal/domain"

	"github.com/shopspring/decimal"
	"gitlab.com/nevasik7/alerting/logger"
)

// USDValuer converts a raw token amount at the current oracle rate
type USDValuer interface {
	USDValue(ctx context.Context, token string, raw *big.Int) (decimal.Decimal, error)
}

// Normalizer turns one raw locker event into exactly one Movement
type Normalizer struct {
	log           logger.Logger
	protocolToken string
	values        USDValuer
}

func New(log logger.Logger, protocolToken string, values USDValuer) (*Normalizer, error) {
	tok, err := domain.NormalizeAddress(protocolToken)
	if err != nil {
		return nil, fmt.Errorf("protocol token: %w", err)
	}
	if values == nil {
		return nil, errors.New("usd valuer is required to the normalizer")
	}

	return &Normalizer{
		log:           log,
		protocolToken: tok,
		values:        values,
	}, nil
}

func (n *Normalizer) ProtocolToken() string {
	return n.protocolToken
}

func (n *Normalizer) Normalize(ctx context.Context, ev *domain.Event) (*domain.Movement, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	user, _ := domain.NormalizeAddress(ev.User)

	amount, err := domain.ParseAmount(ev.Amount)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", ev.Type, ev.MovementID(), err)
	}

	mv := &domain.Movement{
		ID:          ev.MovementID(),
		User:        user,
		Amount:      amount,
		Time:        ev.BlockTimestamp,
		BlockNumber: ev.BlockNumber,
	}

	switch ev.Type {
	case domain.EventStaked:
		mv.Class = domain.ClassLock
		mv.Token = n.protocolToken
		if ev.BoostedAmount != "" {
			if mv.BoostedAmount, err = domain.ParseAmount(ev.BoostedAmount); err != nil {
				return nil, fmt.Errorf("%s %s boosted_amount: %w", ev.Type, mv.ID, err)
			}
		}
	case domain.EventWithdrawn:
		mv.Class = domain.ClassWithdrawal
		mv.Token = n.protocolToken
	case domain.EventKickReward:
		mv.Class = domain.ClassReward
		mv.Token = n.protocolToken
	case domain.EventRewardPaid:
		mv.Class = domain.ClassReward
		mv.Token, _ = domain.NormalizeAddress(ev.RewardToken)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownEventType, ev.Type)
	}

	if mv.AmountUSD, err = n.values.USDValue(ctx, mv.Token, mv.Amount); err != nil {
		return nil, fmt.Errorf("usd value of %s: %w", mv.ID, err)
	}

	n.log.Debugf("Normalized %s %s: class=%s token=%s amount=%s usd=%s",
		ev.Type, mv.ID, mv.Class, mv.Token, mv.Amount, mv.AmountUSD)

	return mv, nil
}
