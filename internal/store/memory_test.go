package store

import (
	"context"
	"math/big"
	"testing"

	"lockstats/internal/bucket"
	"lockstats/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SaveLoad(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	u := domain.NewUser("0xuser")
	u.TotalLocked.SetInt64(42)
	require.NoError(t, m.Save(ctx, u))

	// mutating the saved pointer must not leak into the store
	u.TotalLocked.SetInt64(1)

	got := &domain.User{}
	found, err := m.Load(ctx, domain.KindUser, "0xuser", got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(42), got.TotalLocked.Int64())
}

func TestMemory_LoadMissing(t *testing.T) {
	m := NewMemory()

	found, err := m.Load(context.Background(), domain.KindUser, "nobody", &domain.User{})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemory_KindsAreSeparate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Save(ctx, domain.NewBucket(bucket.Day, domain.ClassLock, 0, "")))

	ok, err := m.Exists(ctx, domain.BucketKind(bucket.Day, domain.ClassLock), "0")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Exists(ctx, domain.BucketKind(bucket.Week, domain.ClassLock), "0")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 1, m.Len(domain.BucketKind(bucket.Day, domain.ClassLock)))
	assert.Equal(t, 0, m.Len(domain.KindUser))
}

func TestGetOrCreate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	u, created, err := GetOrCreate(ctx, m, "0xuser", domain.NewUser)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "0xuser", u.ID)
	assert.Equal(t, 0, u.TotalLocked.Sign())

	// GetOrCreate never persists on its own
	ok, err := m.Exists(ctx, domain.KindUser, "0xuser")
	require.NoError(t, err)
	assert.False(t, ok)

	u.TotalLocked.Add(u.TotalLocked, big.NewInt(100))
	require.NoError(t, m.Save(ctx, u))

	again, created, err := GetOrCreate(ctx, m, "0xuser", domain.NewUser)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(100), again.TotalLocked.Int64())
}

func TestGet_NotFound(t *testing.T) {
	_, err := Get(context.Background(), NewMemory(), "0xuser", domain.NewUser)
	assert.ErrorIs(t, err, ErrNotFound)
}
