package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"lockstats/internal/domain"
	"lockstats/internal/store"
	rdb "lockstats/internal/stores/redis"

	goredis "github.com/redis/go-redis/v9"
	"gitlab.com/nevasik7/alerting/logger"
)

// Store keeps every entity as a JSON document under "<prefix><kind>:<id>"; SET is the upsert
type Store struct {
	log    logger.Logger
	rdb    *rdb.Client
	prefix string
}

var _ store.Store = (*Store)(nil)

// prefix example "lockstats:"
func NewStore(log logger.Logger, rdb *rdb.Client, prefix string) (*Store, error) {
	if rdb == nil {
		return nil, errors.New("redis client is required to the entity store")
	}

	if prefix == "" {
		prefix = "lockstats:"
	}

	return &Store{
		log:    log,
		rdb:    rdb,
		prefix: prefix,
	}, nil
}

func (s *Store) Load(ctx context.Context, kind domain.Kind, id string, dst any) (bool, error) {
	raw, err := s.rdb.Get(ctx, s.key(kind, id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis GET %s %s error=%w", kind, id, err)
	}

	if err = json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("failed to decode %s %s: %w", kind, id, err)
	}

	return true, nil
}

func (s *Store) Save(ctx context.Context, e store.Entity) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode %s %s: %w", e.Kind(), e.Key(), err)
	}

	if err = s.rdb.Set(ctx, s.key(e.Kind(), e.Key()), raw, 0).Err(); err != nil {
		return fmt.Errorf("redis SET %s %s error=%w", e.Kind(), e.Key(), err)
	}

	s.log.Debugf("Saved %s %s", e.Kind(), e.Key())
	return nil
}

func (s *Store) Exists(ctx context.Context, kind domain.Kind, id string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.key(kind, id)).Result()
	if err != nil {
		return false, fmt.Errorf("redis EXISTS %s %s error=%w", kind, id, err)
	}
	return n > 0, nil
}

func (s *Store) Health(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) key(kind domain.Kind, id string) string {
	return s.prefix + string(kind) + ":" + id
}
