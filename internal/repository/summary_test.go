package repository

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGetDailySummary_WithNativeRHR(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSummaryRepository(db, zap.NewNop())

	date := time.Date(2026, time.January, 24, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"device_id", "summary_date", "resting_heart_rate", "steps"}).
		AddRow("device-1", date, 58, 8042)

	mock.ExpectQuery(`SELECT\s+device_id`).
		WithArgs("device-1", "2026-01-24").
		WillReturnRows(rows)

	summary, err := repo.GetDailySummary("device-1", "2026-01-24")

	require.NoError(t, err)
	require.NotNil(t, summary)
	require.NotNil(t, summary.RestingHeartRate)
	assert.Equal(t, 58, *summary.RestingHeartRate)
	assert.Equal(t, 8042, summary.Steps)
}

func TestGetDailySummary_NullNativeRHR(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSummaryRepository(db, zap.NewNop())

	date := time.Date(2026, time.January, 24, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"device_id", "summary_date", "resting_heart_rate", "steps"}).
		AddRow("device-1", date, nil, 230)

	mock.ExpectQuery(`SELECT\s+device_id`).
		WithArgs("device-1", "2026-01-24").
		WillReturnRows(rows)

	summary, err := repo.GetDailySummary("device-1", "2026-01-24")

	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Nil(t, summary.RestingHeartRate)
}

func TestGetDailySummary_Missing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSummaryRepository(db, zap.NewNop())

	mock.ExpectQuery(`SELECT\s+device_id`).
		WithArgs("device-1", "2026-01-25").
		WillReturnRows(sqlmock.NewRows([]string{"device_id", "summary_date", "resting_heart_rate", "steps"}))

	summary, err := repo.GetDailySummary("device-1", "2026-01-25")

	// 无记录按"没有厂家值"处理，不是错误
	require.NoError(t, err)
	assert.Nil(t, summary)
}
