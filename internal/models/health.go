package models

import "time"

// SleepSession 一次睡眠会话（来自厂家睡眠日志）
type SleepSession struct {
	SessionID     string    `json:"session_id"`
	DeviceID      string    `json:"device_id"`
	Date          time.Time `json:"date"` // 会话归属日期（厂家按结束日归档）
	Start         time.Time `json:"start_time"`
	End           time.Time `json:"end_time"`
	MinutesAsleep int       `json:"minutes_asleep"`
	MinutesAwake  int       `json:"minutes_awake"`
	Efficiency    int       `json:"efficiency"`
}

// Interval 返回会话的半开时间区间
func (s SleepSession) Interval() Interval {
	return Interval{Start: s.Start, End: s.End}
}

// ActivityRecord 一次已记录的运动（来自厂家运动日志）
type ActivityRecord struct {
	ActivityID string        `json:"activity_id"`
	DeviceID   string        `json:"device_id"`
	Name       string        `json:"name"`
	Start      time.Time     `json:"start_time"`
	Duration   time.Duration `json:"duration"`
	Calories   int           `json:"calories"`
	Steps      int           `json:"steps"`
}

// Interval 返回运动的半开时间区间 [Start, Start+Duration)
func (a ActivityRecord) Interval() Interval {
	return Interval{Start: a.Start, End: a.Start.Add(a.Duration)}
}

// DailySummary 厂家日汇总（nativeRhr 的来源）
type DailySummary struct {
	DeviceID         string    `json:"device_id"`
	Date             time.Time `json:"date"`
	RestingHeartRate *int      `json:"resting_heart_rate"` // 厂家自测静息心率，可能缺失
	Steps            int       `json:"steps"`
}
