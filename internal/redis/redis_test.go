package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestProfessionalLockRunsAndReleases(t *testing.T) {
	mr, client := newTestClient(t)
	locker := NewRedisProfessionalLocker(client, time.Second, 0)
	professionalID := uuid.New()
	key := "lock:professional:" + professionalID.String()

	called := false
	err := locker.WithProfessionalLock(context.Background(), professionalID, func(ctx context.Context) error {
		called = true
		assert.True(t, mr.Exists(key), "lock key should exist inside the critical section")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.False(t, mr.Exists(key), "lock key should be released")
}

func TestProfessionalLockHeldElsewhere(t *testing.T) {
	mr, client := newTestClient(t)
	locker := NewRedisProfessionalLocker(client, time.Second, 60*time.Millisecond)
	professionalID := uuid.New()
	key := "lock:professional:" + professionalID.String()
	require.NoError(t, mr.Set(key, "someone-else"))

	err := locker.WithProfessionalLock(context.Background(), professionalID, func(ctx context.Context) error {
		t.Fatal("critical section must not run while the lock is held")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	v, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "someone-else", v, "foreign lock must survive")
}

func TestProfessionalLockWaitsForRelease(t *testing.T) {
	mr, client := newTestClient(t)
	locker := NewRedisProfessionalLocker(client, time.Second, time.Second)
	professionalID := uuid.New()
	key := "lock:professional:" + professionalID.String()
	require.NoError(t, mr.Set(key, "someone-else"))

	go func() {
		time.Sleep(80 * time.Millisecond)
		mr.Del(key)
	}()

	err := locker.WithProfessionalLock(context.Background(), professionalID, func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestProfessionalLockPropagatesError(t *testing.T) {
	_, client := newTestClient(t)
	locker := NewRedisProfessionalLocker(client, time.Second, 0)
	boom := errors.New("boom")

	err := locker.WithProfessionalLock(context.Background(), uuid.New(), func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestProfessionalLockStoreDown(t *testing.T) {
	mr, client := newTestClient(t)
	locker := NewRedisProfessionalLocker(client, time.Second, 0)
	mr.Close()

	err := locker.WithProfessionalLock(context.Background(), uuid.New(), func(ctx context.Context) error {
		t.Fatal("critical section must not run without the lock")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockUnavailable)
	assert.NotErrorIs(t, err, ErrLockNotAcquired)
}

func TestCacheSetGetExpire(t *testing.T) {
	mr, client := newTestClient(t)
	cache := NewRedisCache(client, "verify:")
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "ada@example.com", "123456", time.Minute))
	assert.True(t, mr.Exists("verify:ada@example.com"))

	v, ok, err := cache.Get(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "123456", v)

	mr.FastForward(2 * time.Minute)

	_, ok, err = cache.Get(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheDelete(t *testing.T) {
	_, client := newTestClient(t)
	cache := NewRedisCache(client, "")
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, cache.Delete(ctx, "k"))

	_, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueueFIFO(t *testing.T) {
	_, client := newTestClient(t)
	q := NewQueue(client, "notify:test")
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, []byte("first")))
	require.NoError(t, q.Push(ctx, []byte("second")))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))

	got, err = q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestQueuePopEmpty(t *testing.T) {
	_, client := newTestClient(t)
	q := NewQueue(client, "notify:empty")

	_, err := q.Pop(context.Background(), 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrQueueEmpty)
}
