package posting

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/inventory-ledger/internal/inventory"
	"github.com/odyssey-erp/inventory-ledger/internal/shared"
)

func newTestLocker(t *testing.T) (*DocumentLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewDocumentLocker(client), mr
}

func TestDocumentLockerExcludesSecondHolder(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()
	key := shared.DocumentLockKey(KindAdjustment, 5)

	release, err := locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, mr.Exists(key))

	_, err = locker.Acquire(ctx, key, time.Minute)
	require.ErrorIs(t, err, ErrDocumentBusy)
	require.ErrorIs(t, err, shared.ErrInvalidStateTransition)

	require.NoError(t, release(ctx))
	require.False(t, mr.Exists(key))

	release, err = locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}

func TestDocumentLockerReleaseKeepsNewerHolder(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()
	key := shared.DocumentLockKey(KindTransfer, 9)

	stale, err := locker.Acquire(ctx, key, time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	_, err = locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)

	require.NoError(t, stale(ctx))
	require.True(t, mr.Exists(key))
}

func TestServiceRejectsBusyDocument(t *testing.T) {
	locker, _ := newTestLocker(t)
	f := newFixture(t, Config{}, inventory.Policy{})
	f.svc.locker = locker
	ctx := context.Background()

	adj, err := f.svc.CreateAdjustment(ctx, absoluteCase("1"))
	require.NoError(t, err)

	release, err := locker.Acquire(ctx, shared.DocumentLockKey(KindAdjustment, adj.ID), time.Minute)
	require.NoError(t, err)
	_, err = f.svc.PostAdjustment(ctx, adj.ID, 42)
	require.ErrorIs(t, err, ErrDocumentBusy)
	require.NoError(t, release(ctx))

	_, err = f.svc.PostAdjustment(ctx, adj.ID, 42)
	require.NoError(t, err)
	require.True(t, dec("24").Equal(f.db.quantity(cola, mainWH)))
}
