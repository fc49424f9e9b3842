package repository

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cardiolens-data/internal/models"
)

// SleepRepository 睡眠会话仓库
type SleepRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSleepRepository 创建睡眠会话仓库
func NewSleepRepository(db *sql.DB, logger *zap.Logger) *SleepRepository {
	return &SleepRepository{
		db:     db,
		logger: logger,
	}
}

// GetSessionsOverlapping 查询与 [dayStart, dayEnd) 有交叠的睡眠会话
//
// 厂家按结束日归档会话，跨午夜的会话因此可能挂在次日名下，
// 这里只看时间交叠，不看归档日期。
func (r *SleepRepository) GetSessionsOverlapping(deviceID string, dayStart, dayEnd time.Time) ([]models.SleepSession, error) {
	query := `
		SELECT session_id, device_id, session_date, start_time, end_time,
		       minutes_asleep, minutes_awake, efficiency
		FROM sleep_sessions
		WHERE device_id = $1 AND start_time < $3 AND end_time > $2
		ORDER BY start_time
	`

	rows, err := r.db.Query(query, deviceID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to query sleep sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.SleepSession
	for rows.Next() {
		var s models.SleepSession
		if err := rows.Scan(&s.SessionID, &s.DeviceID, &s.Date, &s.Start, &s.End,
			&s.MinutesAsleep, &s.MinutesAwake, &s.Efficiency); err != nil {
			return nil, fmt.Errorf("failed to scan sleep session: %w", err)
		}
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

// UpsertSessions 写入厂家拉取的睡眠会话
func (r *SleepRepository) UpsertSessions(sessions []models.SleepSession) error {
	if len(sessions) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO sleep_sessions (session_id, device_id, session_date, start_time, end_time,
		                            minutes_asleep, minutes_awake, efficiency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id)
		DO UPDATE SET start_time = EXCLUDED.start_time,
		              end_time = EXCLUDED.end_time,
		              minutes_asleep = EXCLUDED.minutes_asleep,
		              minutes_awake = EXCLUDED.minutes_awake,
		              efficiency = EXCLUDED.efficiency
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, s := range sessions {
		if _, err := stmt.Exec(s.SessionID, s.DeviceID, s.Date, s.Start, s.End,
			s.MinutesAsleep, s.MinutesAwake, s.Efficiency); err != nil {
			return fmt.Errorf("failed to upsert sleep session %s: %w", s.SessionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sleep sessions: %w", err)
	}

	r.logger.Debug("Upserted sleep sessions", zap.Int("session_count", len(sessions)))
	return nil
}
