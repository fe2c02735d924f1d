package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/campaign-etl/internal/models"
	"github.com/AngelCh415/campaign-etl/internal/store"
)

func TestPersistRollsBackAndAuditsFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	raw := mock.ExpectPrepare(`COPY "raw_marketing_data"`)
	raw.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	raw.ExpectExec().WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()
	mock.ExpectExec("INSERT INTO upload_logs").
		WithArgs(sqlmock.AnyArg(), "jan.csv", 0, "failed", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	d, _ := models.ParseDay("2026-01-01")
	recs := []models.DerivedRecord{{RawRecord: models.RawRecord{CampaignName: "a", Date: d}}}

	n, err := NewPersister(store.NewPostgresStore(db), quietLogger()).Persist(context.Background(), recs, "jan.csv")
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Equal(t, KindPersistence, KindOf(err))
	assert.Contains(t, err.Error(), "Database error: insert raw records: disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistBeginFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))
	mock.ExpectExec("INSERT INTO upload_logs").WillReturnResult(sqlmock.NewResult(0, 1))

	_, err = NewPersister(store.NewPostgresStore(db), quietLogger()).Persist(context.Background(), nil, "x.csv")
	require.Error(t, err)
	assert.Equal(t, "Database error: begin upload: too many connections", err.Error())
	assert.NoError(t, mock.ExpectationsWereMet())
}
