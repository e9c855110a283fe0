package pubsub

import (
	"context"

	"lockstats/internal/domain"
)

type Broadcaster interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Health(ctx context.Context) error
}

// BucketPatch is the fan-out message for one updated bucket; big numbers travel as strings
type BucketPatch struct {
	Kind       string `json:"kind"` // daily_lock, weekly_reward, ...
	ID         string `json:"id"`
	Token      string `json:"token,omitempty"`
	Time       int64  `json:"time"`
	Amount     string `json:"amount"`
	AmountUSD  string `json:"amount_usd"`
	Count      int64  `json:"count"`
	MovementID string `json:"movement_id"`
}

func NewBucketPatch(b *domain.Bucket, movementID string) *BucketPatch {
	return &BucketPatch{
		Kind:       string(b.Kind()),
		ID:         b.ID,
		Token:      b.Token,
		Time:       b.Time,
		Amount:     b.Amount.String(),
		AmountUSD:  b.AmountUSD.String(),
		Count:      b.Count,
		MovementID: movementID,
	}
}

// Subject the patch is published under, relative to the broadcaster prefix
func (p *BucketPatch) Subject() string {
	return p.Kind
}
