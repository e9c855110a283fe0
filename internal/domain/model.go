package domain

import (
	"math/big"
	"strconv"

	"lockstats/internal/bucket"

	"github.com/shopspring/decimal"
)

// Storage namespace of an entity
type Kind string

const (
	KindUser     Kind = "user"
	KindMovement Kind = "movement"
	KindToken    Kind = "token"
)

// Movement class
type Class string

const (
	ClassLock       Class = "lock"
	ClassWithdrawal Class = "withdrawal"
	ClassReward     Class = "reward"
)

func ParseClass(s string) (Class, bool) {
	switch c := Class(s); c {
	case ClassLock, ClassWithdrawal, ClassReward:
		return c, true
	}
	return "", false
}

// Running totals per user address
type User struct {
	ID          string   `json:"id"`
	TotalLocked *big.Int `json:"total_locked"`
}

func NewUser(id string) *User {
	return &User{ID: id, TotalLocked: new(big.Int)}
}

func (u *User) Kind() Kind  { return KindUser }
func (u *User) Key() string { return u.ID }

// One applied on-chain event; written once, never mutated
type Movement struct {
	ID            string          `json:"id"` // <tx_hash>-<log_index>
	Class         Class           `json:"class"`
	User          string          `json:"user"`
	Token         string          `json:"token"`
	Amount        *big.Int        `json:"amount"`
	AmountUSD     decimal.Decimal `json:"amount_usd"`
	BoostedAmount *big.Int        `json:"boosted_amount,omitempty"` // locks only, informational
	Time          int64           `json:"time"`
	BlockNumber   uint64          `json:"block_number"`
}

func (m *Movement) Kind() Kind  { return KindMovement }
func (m *Movement) Key() string { return m.ID }

// Token metadata; decimals are fetched once and never refreshed
type Token struct {
	ID       string `json:"id"`
	Decimals int32  `json:"decimals"`
	Symbol   string `json:"symbol,omitempty"`
}

func (t *Token) Kind() Kind  { return KindToken }
func (t *Token) Key() string { return t.ID }

// Calendar bucket aggregate for one class (and token, for rewards)
type Bucket struct {
	ID        string          `json:"id"`
	Class     Class           `json:"class"`
	Period    bucket.Period   `json:"period"`
	Token     string          `json:"token,omitempty"`
	Time      int64           `json:"time"` // bucket start
	Amount    *big.Int        `json:"amount"`
	AmountUSD decimal.Decimal `json:"amount_usd"`
	Count     int64           `json:"count"`
}

func NewBucket(p bucket.Period, class Class, start int64, token string) *Bucket {
	return &Bucket{
		ID:        BucketID(start, token),
		Class:     class,
		Period:    p,
		Token:     token,
		Time:      start,
		Amount:    new(big.Int),
		AmountUSD: decimal.Zero,
	}
}

func (b *Bucket) Kind() Kind  { return BucketKind(b.Period, b.Class) }
func (b *Bucket) Key() string { return b.ID }

func (b *Bucket) Add(raw *big.Int, usd decimal.Decimal) {
	b.Amount.Add(b.Amount, raw)
	b.AmountUSD = b.AmountUSD.Add(usd)
	b.Count++
}

// BucketKind example "daily_lock", "weekly_reward"
func BucketKind(p bucket.Period, c Class) Kind {
	return Kind(p.Name() + "_" + string(c))
}

// BucketID = "<start>" or "<start>-<token>" for token-keyed buckets
func BucketID(start int64, token string) string {
	id := strconv.FormatInt(start, 10)
	if token != "" {
		id += "-" + token
	}
	return id
}
