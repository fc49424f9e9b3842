package repository

import (
	"database/sql"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"cardiolens-data/internal/models"
)

// IntradayRepository 分钟级样本仓库
//
// 表 intraday_samples 按 (device_id, sample_date, time_key) 唯一，
// time_key 为 "HH:mm"。原始样本是历史事实，入库只做 upsert 不做删除。
type IntradayRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewIntradayRepository 创建分钟样本仓库
func NewIntradayRepository(db *sql.DB, logger *zap.Logger) *IntradayRepository {
	return &IntradayRepository{
		db:     db,
		logger: logger,
	}
}

// UpsertSamples 批量写入一天内的分钟样本
//
// 秒级样本入库前先在 Go 侧按 "HH:mm" 键归并（正值心率取均值、步数
// 求和），与分析引擎的归并规则一致，零值读数不会覆盖同分钟的有效
// 读数。冲突时心率只被正值覆盖、步数取两者较大者：摄入链路是
// at-least-once（MQTT QoS 1 / Streams 重投），重复投递同一批次必须
// 是幂等的。
func (r *IntradayRepository) UpsertSamples(deviceID string, date string, samples []models.MinuteSample) error {
	merged := mergeByMinute(samples)
	if len(merged) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO intraday_samples (device_id, sample_date, time_key, heart_rate, steps)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (device_id, sample_date, time_key)
		DO UPDATE SET heart_rate = CASE WHEN EXCLUDED.heart_rate > 0
		                                THEN EXCLUDED.heart_rate
		                                ELSE intraday_samples.heart_rate END,
		              steps = GREATEST(intraday_samples.steps, EXCLUDED.steps)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, m := range merged {
		if _, err := stmt.Exec(deviceID, date, m.TimeKey, m.HeartRate, m.Steps); err != nil {
			return fmt.Errorf("failed to upsert sample %s: %w", m.TimeKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit samples: %w", err)
	}

	r.logger.Debug("Upserted intraday samples",
		zap.String("device_id", deviceID),
		zap.String("date", date),
		zap.Int("sample_count", len(samples)),
		zap.Int("minute_count", len(merged)),
	)

	return nil
}

// mergeByMinute 按 "HH:mm" 键归并原始样本（与引擎归并规则一致：
// 正值心率取均值四舍五入，步数求和），按键升序返回
func mergeByMinute(samples []models.MinuteSample) []models.NormalizedMinute {
	type bucket struct {
		hrSum   int
		hrCount int
		steps   int
	}
	buckets := make(map[string]*bucket)

	for _, s := range samples {
		key := s.Time
		if len(key) >= 5 {
			key = key[:5]
		}
		b := buckets[key]
		if b == nil {
			b = &bucket{}
			buckets[key] = b
		}
		if s.HeartRate > 0 {
			b.hrSum += s.HeartRate
			b.hrCount++
		}
		if s.Steps > 0 {
			b.steps += s.Steps
		}
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	merged := make([]models.NormalizedMinute, 0, len(keys))
	for _, k := range keys {
		b := buckets[k]
		hr := 0
		if b.hrCount > 0 {
			hr = int(math.Floor(float64(b.hrSum)/float64(b.hrCount) + 0.5))
		}
		merged = append(merged, models.NormalizedMinute{TimeKey: k, HeartRate: hr, Steps: b.steps})
	}
	return merged
}

// GetSamples 读取一天的分钟样本（按分钟键升序）
func (r *IntradayRepository) GetSamples(deviceID string, date string) ([]models.MinuteSample, error) {
	query := `
		SELECT time_key, heart_rate, steps
		FROM intraday_samples
		WHERE device_id = $1 AND sample_date = $2
		ORDER BY time_key
	`

	rows, err := r.db.Query(query, deviceID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query intraday samples: %w", err)
	}
	defer rows.Close()

	var samples []models.MinuteSample
	for rows.Next() {
		var s models.MinuteSample
		if err := rows.Scan(&s.Time, &s.HeartRate, &s.Steps); err != nil {
			return nil, fmt.Errorf("failed to scan intraday sample: %w", err)
		}
		samples = append(samples, s)
	}

	return samples, rows.Err()
}

// GetHeartRatesFromKey 读取某天从 fromKey（含）起的正值心率
//
// 用于跨午夜睡眠：昨夜会话从 fromKey 睡到午夜，这段心率属于
// 目标日的"昨晚"，由服务层拼进夜间池。
func (r *IntradayRepository) GetHeartRatesFromKey(deviceID string, date string, fromKey string) ([]int, error) {
	query := `
		SELECT heart_rate
		FROM intraday_samples
		WHERE device_id = $1 AND sample_date = $2 AND time_key >= $3 AND heart_rate > 0
		ORDER BY time_key
	`

	rows, err := r.db.Query(query, deviceID, date, fromKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query heart rates: %w", err)
	}
	defer rows.Close()

	var rates []int
	for rows.Next() {
		var hr int
		if err := rows.Scan(&hr); err != nil {
			return nil, fmt.Errorf("failed to scan heart rate: %w", err)
		}
		rates = append(rates, hr)
	}

	return rates, rows.Err()
}
