package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryLockStore struct {
	mu         sync.Mutex
	values     map[string]string
	releaseErr error
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryLockStore) ReleaseIfOwner(_ context.Context, key, owner string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.releaseErr != nil {
		return false, m.releaseErr
	}
	if m.values[key] != owner {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockIsExclusiveAndOwnerScoped(t *testing.T) {
	store := &memoryLockStore{values: map[string]string{}}
	first, err := NewRedisLock(store, "lb:lock:cron", 0)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "lb:lock:cron", 0)
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok, "second instance acquired a held lock")

	require.NoError(t, second.Release(ctx))
	require.Contains(t, store.values, "lb:lock:cron", "non-owner release dropped the lock")

	require.NoError(t, first.Release(ctx))
	ok, _ = second.Acquire(ctx)
	require.True(t, ok, "lock not reusable after release")
}

func TestRedisLockReleaseAfterExpiryKeepsNewOwner(t *testing.T) {
	store := &memoryLockStore{values: map[string]string{}}
	stale, _ := NewRedisLock(store, "lb:lock:cron", time.Second)
	fresh, _ := NewRedisLock(store, "lb:lock:cron", time.Second)
	ctx := context.Background()

	ok, _ := stale.Acquire(ctx)
	require.True(t, ok)
	delete(store.values, "lb:lock:cron") // lease expired
	ok, _ = fresh.Acquire(ctx)
	require.True(t, ok)

	require.NoError(t, stale.Release(ctx))
	require.Equal(t, fresh.owner, store.values["lb:lock:cron"])
}

func TestRedisLockReleaseSurfacesStoreErrors(t *testing.T) {
	store := &memoryLockStore{values: map[string]string{}, releaseErr: errors.New("conn reset")}
	lock, _ := NewRedisLock(store, "lb:lock:cron", 0)
	ok, _ := lock.Acquire(context.Background())
	require.True(t, ok)
	require.ErrorContains(t, lock.Release(context.Background()), "conn reset")
	require.NoError(t, lock.Release(context.Background()), "second release is a no-op")
}

func TestNewRedisLockValidates(t *testing.T) {
	_, err := NewRedisLock(nil, "k", 0)
	require.Error(t, err)
	_, err = NewRedisLock(&memoryLockStore{}, "", 0)
	require.Error(t, err)
}
