package repository

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"cardiolens-data/internal/models"
)

// SummaryRepository 厂家日汇总仓库（nativeRhr 来源）
//
// 注意：这里只存厂家自己的日汇总，本服务算出的 RHR 结果
// 永远现算现用，不落库也不进缓存。
type SummaryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSummaryRepository 创建日汇总仓库
func NewSummaryRepository(db *sql.DB, logger *zap.Logger) *SummaryRepository {
	return &SummaryRepository{
		db:     db,
		logger: logger,
	}
}

// GetDailySummary 读取某天的厂家日汇总（无记录时返回 nil, nil）
func (r *SummaryRepository) GetDailySummary(deviceID string, date string) (*models.DailySummary, error) {
	query := `
		SELECT device_id, summary_date, resting_heart_rate, steps
		FROM daily_summaries
		WHERE device_id = $1 AND summary_date = $2
	`

	var s models.DailySummary
	var rhr sql.NullInt64
	err := r.db.QueryRow(query, deviceID, date).Scan(&s.DeviceID, &s.Date, &rhr, &s.Steps)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query daily summary: %w", err)
	}

	if rhr.Valid {
		v := int(rhr.Int64)
		s.RestingHeartRate = &v
	}

	return &s, nil
}

// UpsertDailySummary 写入厂家拉取的日汇总
func (r *SummaryRepository) UpsertDailySummary(s *models.DailySummary) error {
	query := `
		INSERT INTO daily_summaries (device_id, summary_date, resting_heart_rate, steps)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (device_id, summary_date)
		DO UPDATE SET resting_heart_rate = EXCLUDED.resting_heart_rate,
		              steps = EXCLUDED.steps
	`

	var rhr sql.NullInt64
	if s.RestingHeartRate != nil {
		rhr = sql.NullInt64{Int64: int64(*s.RestingHeartRate), Valid: true}
	}

	if _, err := r.db.Exec(query, s.DeviceID, s.Date, rhr, s.Steps); err != nil {
		return fmt.Errorf("failed to upsert daily summary: %w", err)
	}

	r.logger.Debug("Upserted daily summary",
		zap.String("device_id", s.DeviceID),
		zap.Time("date", s.Date),
	)
	return nil
}
