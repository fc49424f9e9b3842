// Package analysis 提供每日静息心率（RHR）估算引擎
//
// 主要功能：
// - 分钟归并：把秒级/重复样本按 "HH:mm" 键归并为每分钟一条记录
// - 分钟分类：按固定优先级给每分钟打唯一标签
//   （睡眠 / 已记录运动 / 步数活动 / 运动冷却期 / 噪声 / 有效静息）
// - 夜间聚合：睡眠时段心率 + 跨午夜补充样本 -> 夜间 RHR
// - 日间基线：10 分钟滑动窗口扫描，取"最低稳定基线" -> 日间 RHR
// - 结果合成：日/夜合并为当日结果，数据缺失时逐级降级为空
//
// 引擎是纯函数式的：不做 I/O、不持有跨调用状态、对任意输入都不报错。
// 时间字符串无法解析时按 0 处理（折入午夜桶），数据不足时对应字段为 nil。
package analysis

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"cardiolens-data/internal/models"
)

// NightPoolPolicy 夜间心率池策略
//
// 产品上"昨晚的休息"有两种解读：
// - NightPoolAll：当日睡眠时段内的心率一并计入夜间池（原始行为）
// - NightPoolPreMidnightOnly：只用调用方传入的跨午夜样本，
//   当日晚间入睡的心率不计入（避免"今晚"拉低"昨晚"的夜间 RHR）
//
// 两种策略下睡眠时段的分钟都不参与日间基线。
type NightPoolPolicy int

const (
	// NightPoolAll 睡眠时段心率全部计入夜间池（默认）
	NightPoolAll NightPoolPolicy = iota
	// NightPoolPreMidnightOnly 夜间池只含跨午夜补充样本
	NightPoolPreMidnightOnly
)

const (
	// DefaultCooldown 已记录运动结束后心率仍偏高的冷却期
	DefaultCooldown = 15 * time.Minute
	// DefaultNoiseFloorBPM 低于该值视为传感器伪影（生理上不可信）
	DefaultNoiseFloorBPM = 35
	// DefaultWindow 日间基线滑动窗口长度
	DefaultWindow = 10 * time.Minute
	// DefaultWindowMinSamples 10 分钟窗口的最小样本密度
	DefaultWindowMinSamples = 8
	// DefaultBaselineFraction "最低稳定基线"取最低窗口均值的比例
	//
	// 刻意不用中位数：取最低 50% 的窗口均值再平均，偏向真实生理
	// 静息段，同时避免被个别深度放松的离群窗口过度拉低。
	DefaultBaselineFraction = 0.5
)

// EngineConfig 引擎参数（零值字段回退到默认值，引擎永不报错）
type EngineConfig struct {
	Cooldown         time.Duration
	NoiseFloorBPM    int
	Window           time.Duration
	WindowMinSamples int
	BaselineFraction float64
	NightPool        NightPoolPolicy
}

// DefaultEngineConfig 返回默认引擎参数
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Cooldown:         DefaultCooldown,
		NoiseFloorBPM:    DefaultNoiseFloorBPM,
		Window:           DefaultWindow,
		WindowMinSamples: DefaultWindowMinSamples,
		BaselineFraction: DefaultBaselineFraction,
		NightPool:        NightPoolAll,
	}
}

func (c EngineConfig) withDefaults() EngineConfig {
	d := DefaultEngineConfig()
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	if c.NoiseFloorBPM <= 0 {
		c.NoiseFloorBPM = d.NoiseFloorBPM
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.WindowMinSamples <= 0 {
		c.WindowMinSamples = d.WindowMinSamples
	}
	if c.BaselineFraction <= 0 || c.BaselineFraction > 1 {
		c.BaselineFraction = d.BaselineFraction
	}
	return c
}

// DailyInput 一次估算的全部输入（调用方独占，引擎不修改也不保留）
type DailyInput struct {
	// Date 目标日期（只取年月日和时区，用于给分钟键定位绝对时间）
	Date time.Time
	// Samples 分钟级原始样本，可乱序、可重复、可为空
	Samples []models.MinuteSample
	// Sleeps 睡眠区间（可能只与目标日部分重叠）
	Sleeps []models.Interval
	// Activities 已记录运动区间 [start, start+duration)
	Activities []models.Interval
	// PreMidnightHeartRates 昨夜跨午夜部分的心率（已过滤为正值）
	PreMidnightHeartRates []int
	// NativeRHR 厂家自测静息心率，作为日间兜底值，可为 nil
	NativeRHR *int
}

// Engine RHR 估算引擎
type Engine struct {
	cfg    EngineConfig
	logger *zap.Logger
}

// NewEngine 创建引擎
func NewEngine(cfg EngineConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg.withDefaults(), logger: logger}
}

// classifiedMinute 归并分钟 + 分类结果
type classifiedMinute struct {
	ts        time.Time
	heartRate int
	steps     int
	valid     bool // 是否可参与日间静息基线
}

// CalculateDailyRHR 计算一天的静息心率
//
// 五个阶段严格从左到右执行一次，无反馈回路：
// 归并 -> 分类 -> 夜间聚合 -> 日间基线 -> 结果合成。
func (e *Engine) CalculateDailyRHR(in DailyInput) models.RHRResult {
	// 无样本：直接用厂家自测值兜底（Night 无从谈起）
	if len(in.Samples) == 0 {
		return models.RHRResult{
			Day:   copyInt(in.NativeRHR),
			Night: nil,
			Avg:   copyInt(in.NativeRHR),
		}
	}

	normalized := normalizeMinutes(in.Samples)
	minutes, nightPool := e.classifyMinutes(in, normalized)

	night := e.nightRHR(in.PreMidnightHeartRates, nightPool)
	day := e.dayRHR(minutes, in.NativeRHR)

	result := models.RHRResult{Day: day, Night: night, Avg: composeAvg(day, night)}

	e.logger.Debug("Calculated daily RHR",
		zap.String("date", models.FormatDate(in.Date)),
		zap.Int("sample_count", len(in.Samples)),
		zap.Int("minute_count", len(minutes)),
		zap.Int("night_pool_size", len(in.PreMidnightHeartRates)+len(nightPool)),
	)

	return result
}

// normalizeMinutes 按 "HH:mm" 键归并原始样本
//
// 心率取该键下所有正值读数的均值（四舍五入），无正值读数时为 0；
// 步数为该键下所有样本之和（处理秒级/重复上报）。
func normalizeMinutes(samples []models.MinuteSample) []models.NormalizedMinute {
	type bucket struct {
		hrSum   int
		hrCount int
		steps   int
	}
	buckets := make(map[string]*bucket)

	for _, s := range samples {
		key := s.Time
		if len(key) >= 5 {
			key = key[:5] // 丢弃秒
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

	normalized := make([]models.NormalizedMinute, 0, len(buckets))
	for key, b := range buckets {
		hr := 0
		if b.hrCount > 0 {
			hr = roundHalfUp(float64(b.hrSum) / float64(b.hrCount))
		}
		normalized = append(normalized, models.NormalizedMinute{
			TimeKey:   key,
			HeartRate: hr,
			Steps:     b.steps,
		})
	}
	return normalized
}

// classifyMinutes 按时间升序给每分钟打唯一标签
//
// 优先级（先命中先生效）：
// 1. 睡眠：心率正值按策略计入夜间池；无论读数是否有效都不参与日间基线
// 2. 已记录运动：起一个 ts+15min 的冷却期并排除该分钟
// 3. 步数活动：steps > 0 排除（不起冷却期）
// 4. 冷却期：ts 仍在冷却期内则排除（冷却期随后续运动重新顺延）
// 5. 噪声：心率低于噪声下限排除（含 0 = 无读数）
// 6. 其余为有效静息分钟
//
// 冷却期是顺序状态，必须按时间升序单次扫描携带一个 cooldownUntil，
// 不要散落成多个可变标志位。
func (e *Engine) classifyMinutes(in DailyInput, normalized []models.NormalizedMinute) ([]classifiedMinute, []int) {
	minutes := make([]classifiedMinute, 0, len(normalized))
	for _, m := range normalized {
		minutes = append(minutes, classifiedMinute{
			ts:        minuteTimestamp(in.Date, m.TimeKey),
			heartRate: m.HeartRate,
			steps:     m.Steps,
		})
	}
	sort.Slice(minutes, func(i, j int) bool { return minutes[i].ts.Before(minutes[j].ts) })

	var nightPool []int
	var cooldownUntil time.Time

	for i := range minutes {
		m := &minutes[i]

		if containsAny(in.Sleeps, m.ts) {
			if m.heartRate > 0 && e.cfg.NightPool == NightPoolAll {
				nightPool = append(nightPool, m.heartRate)
			}
			continue
		}

		if containsAny(in.Activities, m.ts) {
			cooldownUntil = m.ts.Add(e.cfg.Cooldown)
			continue
		}

		if m.steps > 0 {
			continue
		}

		if m.ts.Before(cooldownUntil) {
			continue
		}

		if m.heartRate < e.cfg.NoiseFloorBPM {
			continue
		}

		m.valid = true
	}

	return minutes, nightPool
}

// nightRHR 夜间池求均值（池为空时返回 nil）
func (e *Engine) nightRHR(preMidnight, sameDay []int) *int {
	sum, count := 0, 0
	for _, hr := range preMidnight {
		sum += hr
		count++
	}
	for _, hr := range sameDay {
		sum += hr
		count++
	}
	if count == 0 {
		return nil
	}
	return intPtr(roundHalfUp(float64(sum) / float64(count)))
}

// dayRHR 日间基线：滑动窗口扫描 + 最低稳定基线选择
//
// 对每个有效分钟 i 尝试构造 [ts[i], ts[i]+10min) 窗口：向前累加
// 直到越过窗口右界；途中任何一个无效分钟都使整个窗口作废（严格
// 连续性，不记部分均值）。样本数 >= 8 的窗口贡献一个均值候选。
// 候选升序排序后取最低 floor(n*0.5)（至少 1 个）再平均。
// 无候选时回退厂家自测值。
func (e *Engine) dayRHR(minutes []classifiedMinute, nativeRHR *int) *int {
	var windowAverages []float64

	for i := range minutes {
		if !minutes[i].valid {
			continue
		}

		windowEnd := minutes[i].ts.Add(e.cfg.Window)
		sum := 0.0
		count := 0
		tainted := false

		for j := i; j < len(minutes) && minutes[j].ts.Before(windowEnd); j++ {
			if !minutes[j].valid {
				tainted = true
				break
			}
			sum += float64(minutes[j].heartRate)
			count++
		}

		if !tainted && count >= e.cfg.WindowMinSamples {
			windowAverages = append(windowAverages, sum/float64(count))
		}
	}

	if len(windowAverages) == 0 {
		return copyInt(nativeRHR)
	}

	sort.Float64s(windowAverages)
	take := int(math.Floor(float64(len(windowAverages)) * e.cfg.BaselineFraction))
	if take < 1 {
		take = 1
	}

	sum := 0.0
	for _, avg := range windowAverages[:take] {
		sum += avg
	}
	return intPtr(roundHalfUp(sum / float64(take)))
}

// composeAvg 日/夜合成：双全取均值，单边取单边，全缺为 nil
func composeAvg(day, night *int) *int {
	switch {
	case day != nil && night != nil:
		return intPtr(roundHalfUp(float64(*day+*night) / 2))
	case day != nil:
		return copyInt(day)
	case night != nil:
		return copyInt(night)
	default:
		return nil
	}
}

// minuteTimestamp 把 "HH:mm" 键定位到目标日的绝对时间（秒强制为 0）
//
// 按 ":" 拆分后解析，兼容未补零的单位数小时（"9:05"）。
// 解析失败的时/分按 0 处理：畸形样本折入午夜桶而不是报错。
func minuteTimestamp(date time.Time, timeKey string) time.Time {
	hour, minute := 0, 0
	parts := strings.Split(timeKey, ":")
	if len(parts) >= 1 {
		if h, err := strconv.Atoi(parts[0]); err == nil {
			hour = h
		}
	}
	if len(parts) >= 2 {
		if m, err := strconv.Atoi(parts[1]); err == nil {
			minute = m
		}
	}
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, date.Location())
}

func containsAny(intervals []models.Interval, ts time.Time) bool {
	for _, iv := range intervals {
		if iv.Contains(ts) {
			return true
		}
	}
	return false
}

// roundHalfUp 四舍五入（所有求均值环节统一用它，避免各处截断不一致）
func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}

func intPtr(v int) *int { return &v }

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
