package store

import (
	"context"
	"errors"

	"lockstats/internal/domain"
)

var ErrNotFound = errors.New("entity not found")

// Entity is anything persisted under (kind, key)
type Entity interface {
	Kind() domain.Kind
	Key() string
}

// General contract of the entity store (redis, in-memory, etc.); upsert semantics, no transactions
type Store interface {
	// Load decodes the entity into dst; found=false and nil error when absent
	Load(ctx context.Context, kind domain.Kind, id string, dst any) (found bool, err error)
	Save(ctx context.Context, e Entity) error
	Exists(ctx context.Context, kind domain.Kind, id string) (bool, error)
	Health(ctx context.Context) error
}

// GetOrCreate loads the entity with the given id into a fresh value from newFn.
// When absent the fresh value is returned as-is with created=true; nothing is persisted.
func GetOrCreate[T Entity](ctx context.Context, s Store, id string, newFn func(id string) T) (ent T, created bool, err error) {
	ent = newFn(id)

	found, err := s.Load(ctx, ent.Kind(), id, ent)
	if err != nil {
		var zero T
		return zero, false, err
	}

	return ent, !found, nil
}

// Get loads an existing entity or returns ErrNotFound
func Get[T Entity](ctx context.Context, s Store, id string, newFn func(id string) T) (T, error) {
	ent, created, err := GetOrCreate(ctx, s, id, newFn)
	if err != nil {
		return ent, err
	}
	if created {
		var zero T
		return zero, ErrNotFound
	}
	return ent, nil
}
