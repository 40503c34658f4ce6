package resource_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbgisen/resource-broker/pkg/resource"
)

func TestPostgresStore_Get_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := resource.NewPostgresStore(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT bldg_id, resource_id, resource_type, max_timeout, default_timeout, locked_by, locked_time, expiration_time FROM resource_operator WHERE bldg_id = $1 AND resource_id = $2")).
		WithArgs("bldg1", "dock-1").
		WillReturnRows(sqlmock.NewRows([]string{"bldg_id", "resource_id", "resource_type", "max_timeout", "default_timeout", "locked_by", "locked_time", "expiration_time"}))

	_, err = store.Get(context.Background(), resource.Key{BldgID: "bldg1", ResourceID: "dock-1"})
	assert.ErrorIs(t, err, resource.ErrNotFound)
}

func TestPostgresStore_Get_Found(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := resource.NewPostgresStore(db)
	rows := sqlmock.NewRows([]string{"bldg_id", "resource_id", "resource_type", "max_timeout", "default_timeout", "locked_by", "locked_time", "expiration_time"}).
		AddRow("bldg1", "dock-1", 1, 10000, 5000, "robot-1", 1000, 6000)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT bldg_id, resource_id, resource_type, max_timeout, default_timeout, locked_by, locked_time, expiration_time FROM resource_operator WHERE bldg_id = $1 AND resource_id = $2")).
		WithArgs("bldg1", "dock-1").
		WillReturnRows(rows)

	rec, err := store.Get(context.Background(), resource.Key{BldgID: "bldg1", ResourceID: "dock-1"})
	require.NoError(t, err)
	assert.Equal(t, "robot-1", rec.LockedBy)
	assert.True(t, rec.Leased())
}

func TestPostgresStore_Seed_IsIdempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := resource.NewPostgresStore(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO resource_operator")+".*"+regexp.QuoteMeta("ON CONFLICT (bldg_id, resource_id) DO NOTHING")).
		WithArgs("bldg1", "dock-1", resource.TypeAllowOne, int64(10000), int64(5000)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = store.Seed(context.Background(), resource.Definition{
		BldgID: "bldg1", ResourceID: "dock-1", ResourceType: resource.TypeAllowOne,
		MaxTimeoutMs: 10000, DefaultTimeoutMs: 5000,
	})
	require.NoError(t, err)
}
