package repository

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cardiolens-data/internal/models"
)

// ActivityRepository 已记录运动仓库
type ActivityRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewActivityRepository 创建运动仓库
func NewActivityRepository(db *sql.DB, logger *zap.Logger) *ActivityRepository {
	return &ActivityRepository{
		db:     db,
		logger: logger,
	}
}

// GetActivitiesOverlapping 查询与 [dayStart, dayEnd) 有交叠的运动
//
// duration_ms 入库为毫秒，读出时换算为 time.Duration。
func (r *ActivityRepository) GetActivitiesOverlapping(deviceID string, dayStart, dayEnd time.Time) ([]models.ActivityRecord, error) {
	query := `
		SELECT activity_id, device_id, activity_name, start_time, duration_ms, calories, steps
		FROM activity_records
		WHERE device_id = $1
		  AND start_time < $3
		  AND start_time + (duration_ms || ' milliseconds')::interval > $2
		ORDER BY start_time
	`

	rows, err := r.db.Query(query, deviceID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	var activities []models.ActivityRecord
	for rows.Next() {
		var a models.ActivityRecord
		var durationMs int64
		if err := rows.Scan(&a.ActivityID, &a.DeviceID, &a.Name, &a.Start, &durationMs, &a.Calories, &a.Steps); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		a.Duration = time.Duration(durationMs) * time.Millisecond
		activities = append(activities, a)
	}

	return activities, rows.Err()
}

// UpsertActivities 写入厂家拉取的运动记录
func (r *ActivityRepository) UpsertActivities(activities []models.ActivityRecord) error {
	if len(activities) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO activity_records (activity_id, device_id, activity_name, start_time, duration_ms, calories, steps)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (activity_id)
		DO UPDATE SET duration_ms = EXCLUDED.duration_ms,
		              calories = EXCLUDED.calories,
		              steps = EXCLUDED.steps
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, a := range activities {
		if _, err := stmt.Exec(a.ActivityID, a.DeviceID, a.Name, a.Start,
			a.Duration.Milliseconds(), a.Calories, a.Steps); err != nil {
			return fmt.Errorf("failed to upsert activity %s: %w", a.ActivityID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit activities: %w", err)
	}

	r.logger.Debug("Upserted activities", zap.Int("activity_count", len(activities)))
	return nil
}
