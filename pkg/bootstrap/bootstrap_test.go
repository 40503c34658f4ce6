package bootstrap_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sbgisen/resource-broker/pkg/bootstrap"
	"github.com/sbgisen/resource-broker/pkg/resource"
)

const validYAML = `
- bldg_id: bldg1
  resource_id: dock-1
  resource_type: 1
  max_timeout: 10
  default_timeout: 5
- bldg_id: bldg1
  resource_id: dock-2
  resource_type: 1
  max_timeout: 20
  default_timeout: 10
`

func writeYAML(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "resources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_ConvertsSecondsToMillis(t *testing.T) {
	path := writeYAML(t, validYAML)
	defs, err := bootstrap.Load(path)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	require.Equal(t, int64(10000), defs[0].MaxTimeoutMs)
	require.Equal(t, int64(5000), defs[0].DefaultTimeoutMs)
}

func TestLoad_RejectsInvalidResourceType(t *testing.T) {
	path := writeYAML(t, `
- bldg_id: bldg1
  resource_id: dock-1
  resource_type: 7
  max_timeout: 10
  default_timeout: 5
`)
	_, err := bootstrap.Load(path)
	require.Error(t, err)
}

func TestLoad_AbortsWholeFileOnAnyInvalidEntry(t *testing.T) {
	path := writeYAML(t, validYAML+`
- bldg_id: bldg1
  resource_id: dock-3
  resource_type: 1
  max_timeout: 0
  default_timeout: 5
`)
	_, err := bootstrap.Load(path)
	require.Error(t, err)
}

func TestRun_RequiresPath(t *testing.T) {
	store, err := resource.OpenSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	err = bootstrap.Run(context.Background(), "", store, nil)
	require.Error(t, err)
}

func TestRun_SeedsEveryDefinitionAndIsIdempotent(t *testing.T) {
	path := writeYAML(t, validYAML)
	store, err := resource.OpenSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, bootstrap.Run(ctx, path, store, nil))

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	require.NoError(t, store.UpdateLease(ctx,
		resource.Key{BldgID: "bldg1", ResourceID: "dock-1"},
		resource.Preconditions{RequireUnleased: true},
		resource.Assignments{LockedBy: "robot-1", LockedTimeMs: 1, ExpirationTimeMs: 2},
	))

	require.NoError(t, bootstrap.Run(ctx, path, store, nil))

	rec, err := store.Get(ctx, resource.Key{BldgID: "bldg1", ResourceID: "dock-1"})
	require.NoError(t, err)
	require.Equal(t, "robot-1", rec.LockedBy, "re-running bootstrap must not disturb an existing lease")
}
