package models

import "time"

// RHRResult 每日静息心率估算结果
//
// 三个字段均可能为 nil（数据不足时降级为空而不是报错）。
// 结果永远是现算的，任何一层都不允许缓存或落库（见 internal/service）。
type RHRResult struct {
	Day   *int `json:"rhr_day"`
	Night *int `json:"rhr_night"`
	Avg   *int `json:"rhr_avg"`
}

// DailyRHRPoint 趋势视图中的一天
type DailyRHRPoint struct {
	Date string `json:"date"` // "YYYY-MM-DD"
	RHRResult
}

// DateKey 日期键格式（与厂家 API 一致）
const DateKey = "2006-01-02"

// FormatDate 输出 "YYYY-MM-DD" 日期键
func FormatDate(t time.Time) string {
	return t.Format(DateKey)
}
