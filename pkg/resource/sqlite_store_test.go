package resource_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sbgisen/resource-broker/pkg/resource"
)

func newSeededSQLiteStore(t *testing.T) *resource.SQLiteStore {
	t.Helper()
	store, err := resource.OpenSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	err = store.Seed(context.Background(), resource.Definition{
		BldgID: "bldg1", ResourceID: "dock-1", ResourceType: resource.TypeAllowOne,
		MaxTimeoutMs: 10000, DefaultTimeoutMs: 5000,
	})
	require.NoError(t, err)
	return store
}

func TestSQLiteStore_GetAfterSeed_Unleased(t *testing.T) {
	store := newSeededSQLiteStore(t)
	rec, err := store.Get(context.Background(), resource.Key{BldgID: "bldg1", ResourceID: "dock-1"})
	require.NoError(t, err)
	require.False(t, rec.Leased())
}

func TestSQLiteStore_Get_NotFound(t *testing.T) {
	store := newSeededSQLiteStore(t)
	_, err := store.Get(context.Background(), resource.Key{BldgID: "bldg1", ResourceID: "unknown"})
	require.ErrorIs(t, err, resource.ErrNotFound)
}

func TestSQLiteStore_UpdateLease_RequireUnleased(t *testing.T) {
	store := newSeededSQLiteStore(t)
	ctx := context.Background()
	key := resource.Key{BldgID: "bldg1", ResourceID: "dock-1"}

	err := store.UpdateLease(ctx, key, resource.Preconditions{RequireUnleased: true},
		resource.Assignments{LockedBy: "robot-1", LockedTimeMs: 1000, ExpirationTimeMs: 6000})
	require.NoError(t, err)

	err = store.UpdateLease(ctx, key, resource.Preconditions{RequireUnleased: true},
		resource.Assignments{LockedBy: "robot-2", LockedTimeMs: 2000, ExpirationTimeMs: 7000})
	require.ErrorIs(t, err, resource.ErrPreconditionFailed)
}

func TestSQLiteStore_UpdateLease_RequireLockedBy_Release(t *testing.T) {
	store := newSeededSQLiteStore(t)
	ctx := context.Background()
	key := resource.Key{BldgID: "bldg1", ResourceID: "dock-1"}

	require.NoError(t, store.UpdateLease(ctx, key, resource.Preconditions{RequireUnleased: true},
		resource.Assignments{LockedBy: "robot-1", LockedTimeMs: 1000, ExpirationTimeMs: 6000}))

	err := store.UpdateLease(ctx, key, resource.Preconditions{RequireLockedBy: "robot-2"}, resource.Unleased())
	require.ErrorIs(t, err, resource.ErrPreconditionFailed)

	require.NoError(t, store.UpdateLease(ctx, key, resource.Preconditions{RequireLockedBy: "robot-1"}, resource.Unleased()))

	rec, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, rec.Leased())
}

func TestSQLiteStore_SweepExpired(t *testing.T) {
	store := newSeededSQLiteStore(t)
	ctx := context.Background()
	key := resource.Key{BldgID: "bldg1", ResourceID: "dock-1"}

	require.NoError(t, store.UpdateLease(ctx, key, resource.Preconditions{RequireUnleased: true},
		resource.Assignments{LockedBy: "robot-1", LockedTimeMs: 1000, ExpirationTimeMs: 2000}))

	expired, err := store.SweepExpired(ctx, 1000+10000+1)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	require.Equal(t, "robot-1", expired[0].LockedBy)

	rec, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, rec.Leased())
}

func TestSQLiteStore_Seed_Idempotent(t *testing.T) {
	store := newSeededSQLiteStore(t)
	ctx := context.Background()
	key := resource.Key{BldgID: "bldg1", ResourceID: "dock-1"}

	require.NoError(t, store.UpdateLease(ctx, key, resource.Preconditions{RequireUnleased: true},
		resource.Assignments{LockedBy: "robot-1", LockedTimeMs: 1000, ExpirationTimeMs: 6000}))

	err := store.Seed(ctx, resource.Definition{
		BldgID: "bldg1", ResourceID: "dock-1", ResourceType: resource.TypeAllowOne,
		MaxTimeoutMs: 99999, DefaultTimeoutMs: 99999,
	})
	require.NoError(t, err)

	rec, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "robot-1", rec.LockedBy, "seed must not disturb an existing lease")
}
