package analysis

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cardiolens-data/internal/models"
)

var testDate = time.Date(2026, time.January, 24, 0, 0, 0, 0, time.UTC)

func minuteAt(hour, minute int) time.Time {
	return time.Date(2026, time.January, 24, hour, minute, 0, 0, time.UTC)
}

// sampleRange builds one sample per minute in [from, from+count) with fixed HR/steps.
func sampleRange(hour, from, count, hr, steps int) []models.MinuteSample {
	samples := make([]models.MinuteSample, 0, count)
	for m := from; m < from+count; m++ {
		samples = append(samples, models.MinuteSample{
			Time:      fmt.Sprintf("%02d:%02d:00", hour+m/60, m%60),
			HeartRate: hr,
			Steps:     steps,
		})
	}
	return samples
}

func newTestEngine(policy NightPoolPolicy) *Engine {
	cfg := DefaultEngineConfig()
	cfg.NightPool = policy
	return NewEngine(cfg, zap.NewNop())
}

func TestCalculateDailyRHR_EmptySamplesFallsBackToNative(t *testing.T) {
	engine := newTestEngine(NightPoolAll)

	native := 62
	result := engine.CalculateDailyRHR(DailyInput{Date: testDate, NativeRHR: &native})
	require.NotNil(t, result.Day)
	require.Equal(t, 62, *result.Day)
	require.Nil(t, result.Night)
	require.NotNil(t, result.Avg)
	require.Equal(t, 62, *result.Avg)

	// without a native fallback everything degrades to nil, never an error
	result = engine.CalculateDailyRHR(DailyInput{Date: testDate})
	require.Nil(t, result.Day)
	require.Nil(t, result.Night)
	require.Nil(t, result.Avg)
}

func TestCalculateDailyRHR_NightPoolMergesPreMidnightAndSleepMinutes(t *testing.T) {
	engine := newTestEngine(NightPoolAll)

	samples := sampleRange(2, 0, 10, 52, 0)
	// zero-HR minute inside the sleep window: contributes nothing to the
	// pool, still never reaches day-baseline eligibility
	samples = append(samples, models.MinuteSample{Time: "02:30:00", HeartRate: 0, Steps: 0})

	result := engine.CalculateDailyRHR(DailyInput{
		Date:                  testDate,
		Samples:               samples,
		Sleeps:                []models.Interval{{Start: minuteAt(2, 0), End: minuteAt(4, 0)}},
		PreMidnightHeartRates: []int{55, 55},
	})

	// pool = [55 55 52*10] -> 630/12 = 52.5 -> 53 (round half up)
	require.NotNil(t, result.Night)
	require.Equal(t, 53, *result.Night)
	require.Nil(t, result.Day)
	require.Equal(t, 53, *result.Avg)
}

func TestCalculateDailyRHR_SleepIntervalIsHalfOpen(t *testing.T) {
	engine := newTestEngine(NightPoolAll)

	samples := sampleRange(22, 0, 5, 50, 0)
	// exactly at sleep end: outside the interval, must not join the pool
	samples = append(samples, models.MinuteSample{Time: "22:05:00", HeartRate: 90, Steps: 0})

	result := engine.CalculateDailyRHR(DailyInput{
		Date:    testDate,
		Samples: samples,
		Sleeps:  []models.Interval{{Start: minuteAt(22, 0), End: minuteAt(22, 5)}},
	})

	// a closed interval would fold the 90 into the pool (-> 57)
	require.NotNil(t, result.Night)
	require.Equal(t, 50, *result.Night)
}

func TestCalculateDailyRHR_NoiseMinuteNeverCountsAndTaintsWindows(t *testing.T) {
	engine := newTestEngine(NightPoolAll)

	samples := sampleRange(10, 0, 21, 60, 0)
	samples[5].HeartRate = 20 // sensor artifact at 10:05

	result := engine.CalculateDailyRHR(DailyInput{Date: testDate, Samples: samples})

	// windows starting 10:00..10:04 are abandoned by the invalid minute;
	// windows from 10:06 onward average exactly 60
	require.NotNil(t, result.Day)
	require.Equal(t, 60, *result.Day)
}

func TestCalculateDailyRHR_LoggedActivityArmsCooldown(t *testing.T) {
	engine := newTestEngine(NightPoolAll)

	// 12:00..12:14 would be the lowest readings of the day, but they sit
	// inside the activity minute plus its 15-minute cooldown
	samples := sampleRange(12, 0, 15, 45, 0)
	samples = append(samples, sampleRange(12, 15, 16, 60, 0)...)

	result := engine.CalculateDailyRHR(DailyInput{
		Date:       testDate,
		Samples:    samples,
		Activities: []models.Interval{{Start: minuteAt(12, 0), End: minuteAt(12, 1)}},
	})

	require.NotNil(t, result.Day)
	require.Equal(t, 60, *result.Day)
}

func TestCalculateDailyRHR_CooldownRearmedByLaterActivityMinutes(t *testing.T) {
	engine := newTestEngine(NightPoolAll)

	// activity spans 12:00..12:04, so the cooldown armed at 12:04 runs to
	// 12:19 and only 12:19..12:33 stay valid: too short for the density
	// requirement after the first windows, still enough for one candidate
	samples := sampleRange(12, 0, 34, 58, 0)

	result := engine.CalculateDailyRHR(DailyInput{
		Date:       testDate,
		Samples:    samples,
		Activities: []models.Interval{{Start: minuteAt(12, 0), End: minuteAt(12, 5)}},
	})

	require.NotNil(t, result.Day)
	require.Equal(t, 58, *result.Day)
}

func TestCalculateDailyRHR_StepActivityExcludesWithoutCooldown(t *testing.T) {
	engine := newTestEngine(NightPoolAll)

	// one walking minute at 14:05; the very next minute is valid again
	samples := sampleRange(14, 0, 21, 62, 0)
	samples[5].Steps = 40

	result := engine.CalculateDailyRHR(DailyInput{Date: testDate, Samples: samples})

	// windows restart right after the step minute, no 15-minute shadow
	require.NotNil(t, result.Day)
	require.Equal(t, 62, *result.Day)
}

func TestCalculateDailyRHR_SingleStableBlock(t *testing.T) {
	engine := newTestEngine(NightPoolAll)

	// 20 consecutive valid minutes at 55: every qualifying window averages
	// 55, the lowest half is itself
	samples := sampleRange(9, 0, 20, 55, 0)

	result := engine.CalculateDailyRHR(DailyInput{Date: testDate, Samples: samples})

	require.NotNil(t, result.Day)
	require.Equal(t, 55, *result.Day)
	require.Nil(t, result.Night)
	require.Equal(t, 55, *result.Avg)
}

func TestCalculateDailyRHR_LowestStableBaselineTakesBottomHalf(t *testing.T) {
	engine := newTestEngine(NightPoolAll)

	// two well-separated stable blocks: a rest block at 54 and a stressed
	// sedentary block at 80; the bottom half of window averages ignores
	// the elevated block entirely
	samples := sampleRange(8, 0, 19, 54, 0)
	samples = append(samples, sampleRange(16, 0, 19, 80, 0)...)

	result := engine.CalculateDailyRHR(DailyInput{Date: testDate, Samples: samples})

	// 12 qualifying windows per block; floor(24*0.5)=12 -> all of them 54
	require.NotNil(t, result.Day)
	require.Equal(t, 54, *result.Day)
}

func TestCalculateDailyRHR_SparseMinutesFailDensityRequirement(t *testing.T) {
	engine := newTestEngine(NightPoolAll)

	// one sample every 2 minutes: any 10-minute span holds 5 samples < 8
	var samples []models.MinuteSample
	for m := 0; m < 40; m += 2 {
		samples = append(samples, models.MinuteSample{Time: fmt.Sprintf("11:%02d:00", m), HeartRate: 58, Steps: 0})
	}

	native := 61
	result := engine.CalculateDailyRHR(DailyInput{Date: testDate, Samples: samples, NativeRHR: &native})

	require.NotNil(t, result.Day)
	require.Equal(t, 61, *result.Day)
}

func TestCalculateDailyRHR_NormalizerMergesSubMinuteSamples(t *testing.T) {
	engine := newTestEngine(NightPoolAll)

	// per-second duplicates of the same minute key must collapse into one
	// record per minute, otherwise density counting is wrong
	var samples []models.MinuteSample
	for m := 0; m < 12; m++ {
		for s := 0; s < 60; s += 15 {
			samples = append(samples, models.MinuteSample{
				Time:      fmt.Sprintf("13:%02d:%02d", m, s),
				HeartRate: 57,
				Steps:     0,
			})
		}
	}

	result := engine.CalculateDailyRHR(DailyInput{Date: testDate, Samples: samples})

	require.NotNil(t, result.Day)
	require.Equal(t, 57, *result.Day)
}

func TestNormalizeMinutes_AveragesPositiveReadingsAndSumsSteps(t *testing.T) {
	normalized := normalizeMinutes([]models.MinuteSample{
		{Time: "08:30:00", HeartRate: 60, Steps: 3},
		{Time: "08:30:30", HeartRate: 63, Steps: 4},
		{Time: "08:30:45", HeartRate: 0, Steps: 5}, // no reading, steps still count
	})

	require.Len(t, normalized, 1)
	require.Equal(t, "08:30", normalized[0].TimeKey)
	require.Equal(t, 62, normalized[0].HeartRate) // (60+63)/2 = 61.5 -> 62
	require.Equal(t, 12, normalized[0].Steps)
}

func TestNormalizeMinutes_AllZeroReadingsStayZero(t *testing.T) {
	normalized := normalizeMinutes([]models.MinuteSample{
		{Time: "03:10:00", HeartRate: 0, Steps: 0},
		{Time: "03:10:30", HeartRate: 0, Steps: 0},
	})

	require.Len(t, normalized, 1)
	require.Equal(t, 0, normalized[0].HeartRate)
}

func TestCalculateDailyRHR_MalformedTimeFoldsIntoMidnight(t *testing.T) {
	engine := newTestEngine(NightPoolAll)

	native := 60
	result := engine.CalculateDailyRHR(DailyInput{
		Date:      testDate,
		Samples:   []models.MinuteSample{{Time: "garbage", HeartRate: 70, Steps: 0}},
		NativeRHR: &native,
	})

	// a lone midnight-bucket minute can never build a window; the engine
	// degrades to the native fallback instead of failing
	require.NotNil(t, result.Day)
	require.Equal(t, 60, *result.Day)
	require.Nil(t, result.Night)
}

func TestCalculateDailyRHR_Idempotent(t *testing.T) {
	engine := newTestEngine(NightPoolAll)

	samples := sampleRange(12, 0, 60, 60, 0)
	samples = append(samples, sampleRange(22, 0, 60, 50, 0)...)
	in := DailyInput{
		Date:                  testDate,
		Samples:               samples,
		Sleeps:                []models.Interval{{Start: minuteAt(22, 0), End: minuteAt(23, 0)}},
		PreMidnightHeartRates: []int{55, 55, 55},
	}

	first := engine.CalculateDailyRHR(in)
	second := engine.CalculateDailyRHR(in)
	require.Equal(t, first, second)
}

// Regression scenario for the night-pool policy split: a sleep session that
// starts at 22:00 on the target day.
func TestCalculateDailyRHR_NightPoolPolicies(t *testing.T) {
	samples := sampleRange(12, 0, 60, 60, 0)
	samples = append(samples, sampleRange(22, 0, 60, 50, 0)...)
	in := DailyInput{
		Date:                  testDate,
		Samples:               samples,
		Sleeps:                []models.Interval{{Start: minuteAt(22, 0), End: minuteAt(23, 0)}},
		PreMidnightHeartRates: []int{55, 55, 55},
	}

	t.Run("pre-midnight only keeps last night untouched", func(t *testing.T) {
		result := newTestEngine(NightPoolPreMidnightOnly).CalculateDailyRHR(in)

		require.NotNil(t, result.Night)
		require.Equal(t, 55, *result.Night) // tonight's 50s stay out
		require.NotNil(t, result.Day)
		require.Equal(t, 60, *result.Day)
		require.Equal(t, 58, *result.Avg) // (60+55)/2 = 57.5 -> 58
	})

	t.Run("pool-all folds tonight's sleep into the night pool", func(t *testing.T) {
		result := newTestEngine(NightPoolAll).CalculateDailyRHR(in)

		// pool = [55 55 55 50*60] -> 3165/63 = 50.24 -> 50
		require.NotNil(t, result.Night)
		require.Equal(t, 50, *result.Night)
		require.Equal(t, 60, *result.Day)
	})
}

func TestCalculateDailyRHR_RoundsHalfUpEverywhere(t *testing.T) {
	engine := newTestEngine(NightPoolAll)

	result := engine.CalculateDailyRHR(DailyInput{
		Date:                  testDate,
		Samples:               sampleRange(7, 0, 20, 61, 0),
		PreMidnightHeartRates: []int{55, 56},
	})

	require.Equal(t, 56, *result.Night) // 55.5 -> 56
	require.Equal(t, 61, *result.Day)
	require.Equal(t, 59, *result.Avg) // 58.5 -> 59
}

func TestNewEngine_ZeroConfigFallsBackToDefaults(t *testing.T) {
	engine := NewEngine(EngineConfig{}, nil)

	require.Equal(t, DefaultCooldown, engine.cfg.Cooldown)
	require.Equal(t, DefaultNoiseFloorBPM, engine.cfg.NoiseFloorBPM)
	require.Equal(t, DefaultWindow, engine.cfg.Window)
	require.Equal(t, DefaultWindowMinSamples, engine.cfg.WindowMinSamples)
	require.InDelta(t, DefaultBaselineFraction, engine.cfg.BaselineFraction, 1e-9)

	// the zero-config engine still applies the noise floor
	samples := sampleRange(10, 0, 21, 60, 0)
	samples[5].HeartRate = 20
	result := engine.CalculateDailyRHR(DailyInput{Date: testDate, Samples: samples})
	require.Equal(t, 60, *result.Day)
}

func TestCalculateDailyRHR_SingleDigitHourKeys(t *testing.T) {
	engine := newTestEngine(NightPoolAll)

	// 未补零的小时键（"9:05"）要落在 9 点，而不是折入午夜桶。
	// 睡眠时段覆盖这些分钟：解析正确时全部进夜间池，日间为空。
	samples := make([]models.MinuteSample, 0, 20)
	for m := 0; m < 20; m++ {
		samples = append(samples, models.MinuteSample{
			Time:      fmt.Sprintf("9:%02d:00", m),
			HeartRate: 58,
		})
	}

	result := engine.CalculateDailyRHR(DailyInput{
		Date:    testDate,
		Samples: samples,
		Sleeps:  []models.Interval{{Start: minuteAt(9, 0), End: minuteAt(9, 20)}},
	})

	require.Nil(t, result.Day)
	require.NotNil(t, result.Night)
	require.Equal(t, 58, *result.Night)
}
