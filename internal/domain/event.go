package domain

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	// the event can never be applied; retrying will not help
	ErrMalformedEvent   = errors.New("malformed event")
	ErrUnknownEventType = errors.New("unknown event type")
)

type EventType string

const (
	EventStaked     EventType = "staked"      // lock of the protocol token
	EventWithdrawn  EventType = "withdrawn"   // unlock of the protocol token
	EventKickReward EventType = "kick_reward" // reward paid in the protocol token
	EventRewardPaid EventType = "reward_paid" // reward paid in an arbitrary token
)

// Raw locker event from the stream
type Event struct {
	Type           EventType `json:"type"`
	TxHash         string    `json:"tx_hash"` // 0x-prefixed 66 chars
	LogIndex       uint32    `json:"log_index"`
	BlockNumber    uint64    `json:"block_number"`
	BlockTimestamp int64     `json:"block_timestamp"` // unix seconds
	User           string    `json:"user"`            // 0x-prefixed 42 chars
	Amount         string    `json:"amount"`          // uint256 as decimal string
	BoostedAmount  string    `json:"boosted_amount,omitempty"`
	RewardToken    string    `json:"reward_token,omitempty"`
}

func (e *Event) MovementID() string {
	h, err := NormalizeTxHash(e.TxHash)
	if err != nil {
		h = e.TxHash
	}
	return MakeMovementID(h, e.LogIndex)
}

// Validate checks the envelope fields shared by every event type; amounts are parsed by the normalizer
func (e *Event) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrMalformedEvent)
	}

	switch e.Type {
	case EventStaked, EventWithdrawn, EventKickReward, EventRewardPaid:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventType, e.Type)
	}

	if _, err := NormalizeTxHash(e.TxHash); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if _, err := NormalizeAddress(e.User); err != nil {
		return fmt.Errorf("%w: user %v", ErrMalformedEvent, err)
	}
	if e.BlockTimestamp < 0 {
		return fmt.Errorf("%w: negative block_timestamp %d", ErrMalformedEvent, e.BlockTimestamp)
	}
	if e.Type == EventRewardPaid {
		if _, err := NormalizeAddress(e.RewardToken); err != nil {
			return fmt.Errorf("%w: reward_token %v", ErrMalformedEvent, err)
		}
	}

	return nil
}

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ParseAmount parses a uint256 decimal string
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty amount", ErrMalformedEvent)
	}

	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: amount %q is not an integer", ErrMalformedEvent, s)
	}
	if v.Sign() < 0 || v.Cmp(maxUint256) > 0 {
		return nil, fmt.Errorf("%w: amount %q out of uint256 range", ErrMalformedEvent, s)
	}

	return v, nil
}
