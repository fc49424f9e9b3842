package models

import "time"

// MinuteSample 分钟级原始样本（心率 + 步数）
//
// Time 格式为 "HH:mm" 或 "HH:mm:ss"（厂家 API 可能返回秒级数据，
// 由分析引擎按 "HH:mm" 前缀归并）。HeartRate = 0 表示该分钟无心率读数。
type MinuteSample struct {
	Time      string `json:"time"`
	HeartRate int    `json:"heart_rate"`
	Steps     int    `json:"steps"`
}

// NormalizedMinute 归并后的分钟记录（每个 "HH:mm" 键最多一条）
//
// HeartRate 为该分钟内所有正值读数的平均值（无正值读数时为 0），
// Steps 为该分钟内所有样本的步数之和。
type NormalizedMinute struct {
	TimeKey   string
	HeartRate int
	Steps     int
}

// SampleBatch 设备上报的一批分钟样本（MQTT / Redis Streams 载荷）
type SampleBatch struct {
	BatchID  string         `json:"batch_id"`
	DeviceID string         `json:"device_id"`
	Date     string         `json:"date"` // "YYYY-MM-DD"
	Samples  []MinuteSample `json:"samples"`
}

// Interval 半开时间区间 [Start, End)
type Interval struct {
	Start time.Time
	End   time.Time
}

// Contains 判断时间点是否落在区间内（半开：Start <= ts < End）
func (iv Interval) Contains(ts time.Time) bool {
	return !ts.Before(iv.Start) && ts.Before(iv.End)
}
