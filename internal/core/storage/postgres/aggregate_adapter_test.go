package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/streamflix/partwise/internal/core/storage"
	"github.com/stretchr/testify/require"
)

func TestAggregateAdapter_RebuildFull(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewAggregateAdapter(db)

	mock.ExpectExec(regexp.QuoteMeta(queryDropStagingAggregate)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(queryDropRetiredAggregate)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(queryCreateStagingAggregate)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(queryBuildAggregateFull)).WillReturnResult(sqlmock.NewResult(0, 365))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(queryRetireAggregate)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(queryPublishAggregate)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(queryDropRetiredAggregate)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	stats, err := adapter.Rebuild(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, int64(365), stats.Days)
	require.True(t, stats.Cutoff.IsZero())
	require.False(t, stats.SwappedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAggregateAdapter_RebuildWindowedCarriesOldDays(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewAggregateAdapter(db)

	mock.ExpectExec(regexp.QuoteMeta(queryDropStagingAggregate)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(queryDropRetiredAggregate)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(queryCreateStagingAggregate)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(queryCarryAggregateBeforeCutoff)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 330))
	mock.ExpectExec(regexp.QuoteMeta(queryBuildAggregateSinceCutoff)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 7))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(queryRetireAggregate)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(queryPublishAggregate)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(queryDropRetiredAggregate)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	stats, err := adapter.Rebuild(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, int64(337), stats.Days)
	require.False(t, stats.Cutoff.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAggregateAdapter_BuildFailureLeavesPriorAggregate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewAggregateAdapter(db)

	mock.ExpectExec(regexp.QuoteMeta(queryDropStagingAggregate)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(queryDropRetiredAggregate)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(queryCreateStagingAggregate)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(queryBuildAggregateFull)).
		WillReturnError(errors.New("out of disk"))

	// No Begin/rename expectations: the swap must never start.
	_, err = adapter.Rebuild(context.Background(), 0)
	require.Error(t, err)
	require.ErrorContains(t, err, "full recompute")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAggregateAdapter_QueryDays(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewAggregateAdapter(db)

	from := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(queryAggregateDays)).
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows([]string{"day", "distinct_user_count"}).
			AddRow(from, int64(4231)).
			AddRow(to, int64(3987)))

	rows, err := adapter.QueryDays(context.Background(), from, to)
	require.NoError(t, err)
	require.Equal(t, []storage.AggregateRow{
		{Day: from, DistinctUserCount: 4231},
		{Day: to, DistinctUserCount: 3987},
	}, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}
