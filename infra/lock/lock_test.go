package lock

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocker(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()

	release, ok, err := l.TryLock(ctx, "k1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, "k1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	_, ok, _ = l.TryLock(ctx, "k2", time.Minute)
	assert.True(t, ok, "other keys are independent")

	require.NoError(t, release(ctx))
	_, ok, _ = l.TryLock(ctx, "k1", time.Minute)
	assert.True(t, ok)
}

func TestMemoryLockerExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLocker()
	l.clock = func() time.Time { return now }

	staleRelease, ok, _ := l.TryLock(ctx, "k", time.Second)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok, _ = l.TryLock(ctx, "k", time.Second)
	require.True(t, ok, "expired lease can be taken over")

	// The stale holder must not free the new lease.
	require.NoError(t, staleRelease(ctx))
	_, ok, _ = l.TryLock(ctx, "k", time.Second)
	assert.False(t, ok)
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	l := NewRedisLocker(db, "idem:")
	l.newToken = func() string { return "tok" }

	mock.ExpectSetNX("idem:k", "tok", 30*time.Second).SetVal(true)
	release, ok, err := l.TryLock(ctx, "k", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mock.ExpectEval(releaseScript, []string{"idem:k"}, "tok").SetVal(int64(1))
	require.NoError(t, release(ctx))

	mock.ExpectSetNX("idem:k", "tok", 30*time.Second).SetVal(false)
	_, ok, err = l.TryLock(ctx, "k", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLockerError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewRedisLocker(db, "")
	l.newToken = func() string { return "tok" }

	mock.ExpectSetNX("k", "tok", time.Second).SetErr(assert.AnError)
	_, ok, err := l.TryLock(context.Background(), "k", time.Second)
	require.Error(t, err)
	assert.False(t, ok)
}
