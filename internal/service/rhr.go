// Package service 组装每日 RHR 估算的输入并调用分析引擎
//
// 数据优先级：本地库优先，库里没有再去厂家 API 补拉（拉回即落库）。
// 估算结果本身永远现算，不落库、不进缓存（表现层每次都重新请求）。
package service

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"cardiolens-data/internal/analysis"
	"cardiolens-data/internal/config"
	"cardiolens-data/internal/models"
)

// IntradayStore 分钟样本读取接口
type IntradayStore interface {
	GetSamples(deviceID string, date string) ([]models.MinuteSample, error)
	GetHeartRatesFromKey(deviceID string, date string, fromKey string) ([]int, error)
}

// SleepStore 睡眠会话读写接口
type SleepStore interface {
	GetSessionsOverlapping(deviceID string, dayStart, dayEnd time.Time) ([]models.SleepSession, error)
	UpsertSessions(sessions []models.SleepSession) error
}

// ActivityStore 运动记录读写接口
type ActivityStore interface {
	GetActivitiesOverlapping(deviceID string, dayStart, dayEnd time.Time) ([]models.ActivityRecord, error)
	UpsertActivities(activities []models.ActivityRecord) error
}

// SummaryStore 厂家日汇总读写接口
type SummaryStore interface {
	GetDailySummary(deviceID string, date string) (*models.DailySummary, error)
	UpsertDailySummary(s *models.DailySummary) error
}

// VendorAPI 厂家云端取数接口（可为 nil：纯离线模式）
type VendorAPI interface {
	GetSleepSessions(deviceID, date string) ([]models.SleepSession, error)
	GetActivities(deviceID, date string) ([]models.ActivityRecord, error)
	GetDailySummary(deviceID, date string) (*models.DailySummary, error)
}

// RHRService 每日静息心率服务
type RHRService struct {
	intraday   IntradayStore
	sleeps     SleepStore
	activities ActivityStore
	summaries  SummaryStore
	vendor     VendorAPI
	engine     *analysis.Engine
	logger     *zap.Logger
}

// NewRHRService 创建 RHR 服务
func NewRHRService(
	intraday IntradayStore,
	sleeps SleepStore,
	activities ActivityStore,
	summaries SummaryStore,
	vendor VendorAPI,
	engine *analysis.Engine,
	logger *zap.Logger,
) *RHRService {
	return &RHRService{
		intraday:   intraday,
		sleeps:     sleeps,
		activities: activities,
		summaries:  summaries,
		vendor:     vendor,
		engine:     engine,
		logger:     logger,
	}
}

// EngineConfigFromApp 把服务配置映射为引擎参数（0 走引擎默认值）
func EngineConfigFromApp(cfg *config.Config) analysis.EngineConfig {
	ec := analysis.DefaultEngineConfig()
	if cfg.Analysis.NightPoolPolicy == "pre-midnight" {
		ec.NightPool = analysis.NightPoolPreMidnightOnly
	}
	if cfg.Analysis.CooldownMinutes > 0 {
		ec.Cooldown = time.Duration(cfg.Analysis.CooldownMinutes) * time.Minute
	}
	if cfg.Analysis.NoiseFloorBPM > 0 {
		ec.NoiseFloorBPM = cfg.Analysis.NoiseFloorBPM
	}
	if cfg.Analysis.WindowMinutes > 0 {
		ec.Window = time.Duration(cfg.Analysis.WindowMinutes) * time.Minute
	}
	if cfg.Analysis.WindowMinSamples > 0 {
		ec.WindowMinSamples = cfg.Analysis.WindowMinSamples
	}
	return ec
}

// DailyRHR 计算某设备某天的静息心率
//
// 输入装配步骤：
// 1. 当天分钟样本（本地库）
// 2. 与当天交叠的睡眠会话（库优先，空则厂家补拉当天 + 次日归档）
// 3. 与当天交叠的运动记录（库优先，空则厂家补拉）
// 4. 厂家日汇总 -> nativeRhr 兜底（库优先，空则厂家补拉）
// 5. 昨夜跨午夜心率池：昨天从最早跨午夜会话起点到午夜的正值心率
func (s *RHRService) DailyRHR(deviceID string, date time.Time) (models.RHRResult, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.Add(24 * time.Hour)
	dateKey := models.FormatDate(dayStart)

	samples, err := s.intraday.GetSamples(deviceID, dateKey)
	if err != nil {
		return models.RHRResult{}, fmt.Errorf("failed to load intraday samples: %w", err)
	}

	sessions, err := s.loadSleepSessions(deviceID, dayStart, dayEnd)
	if err != nil {
		return models.RHRResult{}, err
	}

	activities, err := s.loadActivities(deviceID, dayStart, dayEnd)
	if err != nil {
		return models.RHRResult{}, err
	}

	nativeRHR := s.loadNativeRHR(deviceID, dateKey)
	preMidnight := s.loadPreMidnightHeartRates(deviceID, dayStart, sessions)

	sleepIntervals := make([]models.Interval, 0, len(sessions))
	for _, sess := range sessions {
		sleepIntervals = append(sleepIntervals, sess.Interval())
	}
	activityIntervals := make([]models.Interval, 0, len(activities))
	for _, a := range activities {
		activityIntervals = append(activityIntervals, a.Interval())
	}

	result := s.engine.CalculateDailyRHR(analysis.DailyInput{
		Date:                  dayStart,
		Samples:               samples,
		Sleeps:                sleepIntervals,
		Activities:            activityIntervals,
		PreMidnightHeartRates: preMidnight,
		NativeRHR:             nativeRHR,
	})

	s.logger.Info("Computed daily RHR",
		zap.String("device_id", deviceID),
		zap.String("date", dateKey),
		zap.Int("sample_count", len(samples)),
		zap.Int("sleep_count", len(sessions)),
		zap.Int("activity_count", len(activities)),
	)

	return result, nil
}

// RangeRHR 按天独立计算一段日期范围（含两端）
//
// 数据集每天最多 1440 分钟，逐天线性扫描即可，不做内部并行。
func (s *RHRService) RangeRHR(deviceID string, from, to time.Time) ([]models.DailyRHRPoint, error) {
	var points []models.DailyRHRPoint
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		result, err := s.DailyRHR(deviceID, d)
		if err != nil {
			return nil, fmt.Errorf("failed to compute RHR for %s: %w", models.FormatDate(d), err)
		}
		points = append(points, models.DailyRHRPoint{
			Date:      models.FormatDate(d),
			RHRResult: result,
		})
	}
	return points, nil
}

// loadSleepSessions 库优先；库里没有时向厂家按归档日补拉（跨午夜
// 会话挂在结束日名下，所以要拉当天和次日两天）
func (s *RHRService) loadSleepSessions(deviceID string, dayStart, dayEnd time.Time) ([]models.SleepSession, error) {
	sessions, err := s.sleeps.GetSessionsOverlapping(deviceID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to load sleep sessions: %w", err)
	}
	if len(sessions) > 0 || s.vendor == nil {
		return sessions, nil
	}

	var fetched []models.SleepSession
	for _, day := range []time.Time{dayStart, dayStart.AddDate(0, 0, 1)} {
		logs, err := s.vendor.GetSleepSessions(deviceID, models.FormatDate(day))
		if err != nil {
			// 厂家不可达时按"无睡眠数据"降级，不让整次估算失败
			s.logger.Warn("Vendor sleep fetch failed",
				zap.String("device_id", deviceID),
				zap.String("date", models.FormatDate(day)),
				zap.Error(err),
			)
			continue
		}
		fetched = append(fetched, logs...)
	}

	if len(fetched) > 0 {
		if err := s.sleeps.UpsertSessions(fetched); err != nil {
			s.logger.Warn("Failed to persist fetched sleep sessions", zap.Error(err))
		}
	}

	overlapping := make([]models.SleepSession, 0, len(fetched))
	for _, sess := range fetched {
		if sess.Start.Before(dayEnd) && sess.End.After(dayStart) {
			overlapping = append(overlapping, sess)
		}
	}
	return overlapping, nil
}

func (s *RHRService) loadActivities(deviceID string, dayStart, dayEnd time.Time) ([]models.ActivityRecord, error) {
	activities, err := s.activities.GetActivitiesOverlapping(deviceID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to load activities: %w", err)
	}
	if len(activities) > 0 || s.vendor == nil {
		return activities, nil
	}

	fetched, err := s.vendor.GetActivities(deviceID, models.FormatDate(dayStart))
	if err != nil {
		s.logger.Warn("Vendor activity fetch failed",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		return nil, nil
	}
	if len(fetched) > 0 {
		if err := s.activities.UpsertActivities(fetched); err != nil {
			s.logger.Warn("Failed to persist fetched activities", zap.Error(err))
		}
	}
	return fetched, nil
}

// loadNativeRHR 厂家自测 RHR 兜底值（取不到就 nil，估算继续）
func (s *RHRService) loadNativeRHR(deviceID, dateKey string) *int {
	summary, err := s.summaries.GetDailySummary(deviceID, dateKey)
	if err != nil {
		s.logger.Warn("Failed to load daily summary", zap.Error(err))
		return nil
	}
	if summary == nil && s.vendor != nil {
		summary, err = s.vendor.GetDailySummary(deviceID, dateKey)
		if err != nil {
			s.logger.Warn("Vendor summary fetch failed", zap.Error(err))
			return nil
		}
		if summary != nil {
			if err := s.summaries.UpsertDailySummary(summary); err != nil {
				s.logger.Warn("Failed to persist fetched summary", zap.Error(err))
			}
		}
	}
	if summary == nil {
		return nil
	}
	return summary.RestingHeartRate
}

// loadPreMidnightHeartRates 拼"昨晚"的跨午夜心率池
//
// 取起点在今日零点之前的会话里最早的那个，从它的 "HH:mm" 起读
// 昨天的正值心率。起点早于昨天零点时从 "00:00" 起读。
func (s *RHRService) loadPreMidnightHeartRates(deviceID string, dayStart time.Time, sessions []models.SleepSession) []int {
	var earliest *time.Time
	for i := range sessions {
		start := sessions[i].Start
		if start.Before(dayStart) && (earliest == nil || start.Before(*earliest)) {
			earliest = &start
		}
	}
	if earliest == nil {
		return nil
	}

	prevDay := dayStart.AddDate(0, 0, -1)
	fromKey := "00:00"
	if !earliest.Before(prevDay) {
		fromKey = earliest.In(dayStart.Location()).Format("15:04")
	}

	rates, err := s.intraday.GetHeartRatesFromKey(deviceID, models.FormatDate(prevDay), fromKey)
	if err != nil {
		s.logger.Warn("Failed to load pre-midnight heart rates",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		return nil
	}
	return rates
}
