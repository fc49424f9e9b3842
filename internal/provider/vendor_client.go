package provider

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"cardiolens-data/internal/models"
)

// VendorResponse 厂家 API 响应外壳
type VendorResponse struct {
	Status int             `json:"status"`
	Msg    string          `json:"msg"`
	Data   json.RawMessage `json:"data"`
}

// sleepLogDTO 厂家睡眠日志条目
type sleepLogDTO struct {
	LogID         string `json:"logId"`
	DateOfSleep   string `json:"dateOfSleep"` // "YYYY-MM-DD"，厂家按结束日归档
	StartTime     string `json:"startTime"`   // RFC3339
	EndTime       string `json:"endTime"`     // RFC3339
	MinutesAsleep int    `json:"minutesAsleep"`
	MinutesAwake  int    `json:"minutesAwake"`
	Efficiency    int    `json:"efficiency"`
}

// activityDTO 厂家运动日志条目
type activityDTO struct {
	ActivityID   string `json:"activityId"`
	ActivityName string `json:"activityName"`
	StartTime    string `json:"startTime"`  // RFC3339
	DurationMs   int64  `json:"durationMs"` // 毫秒
	Calories     int    `json:"calories"`
	Steps        int    `json:"steps"`
}

// summaryDTO 厂家日汇总
type summaryDTO struct {
	RestingHeartRate *int `json:"restingHeartRate"`
	Steps            int  `json:"steps"`
}

// VendorClient 厂家云端 API 客户端
//
// 只负责窄接口取数：睡眠日志、运动日志、日汇总。
// 同步编排（何时拉、拉哪些天、失败重拉）不在本客户端职责内。
type VendorClient struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewVendorClient 创建厂家 API 客户端
func NewVendorClient(baseURL, apiKey, apiSecret string, timeout time.Duration, logger *zap.Logger) *VendorClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("X-Api-Key", apiKey).
		SetHeader("X-Api-Secret", apiSecret)

	return &VendorClient{
		httpClient: client,
		logger:     logger,
	}
}

// GetSleepSessions 拉取某设备某天（按归档日）的睡眠会话
func (c *VendorClient) GetSleepSessions(deviceID, date string) ([]models.SleepSession, error) {
	var response VendorResponse
	resp, err := c.httpClient.R().
		SetQueryParam("date", date).
		SetResult(&response).
		Get(fmt.Sprintf("/v1/devices/%s/sleep", deviceID))
	if err != nil {
		return nil, fmt.Errorf("failed to call vendor sleep API: %w", err)
	}
	if err := checkResponse(resp, &response); err != nil {
		return nil, err
	}

	var logs []sleepLogDTO
	if err := json.Unmarshal(response.Data, &logs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sleep logs: %w", err)
	}

	sessions := make([]models.SleepSession, 0, len(logs))
	for _, l := range logs {
		start, err := time.Parse(time.RFC3339, l.StartTime)
		if err != nil {
			c.logger.Warn("Skipping sleep log with bad start time",
				zap.String("log_id", l.LogID),
				zap.String("start_time", l.StartTime),
			)
			continue
		}
		end, err := time.Parse(time.RFC3339, l.EndTime)
		if err != nil || !end.After(start) {
			c.logger.Warn("Skipping sleep log with bad end time",
				zap.String("log_id", l.LogID),
				zap.String("end_time", l.EndTime),
			)
			continue
		}
		sessionDate, _ := time.Parse(models.DateKey, l.DateOfSleep)
		sessions = append(sessions, models.SleepSession{
			SessionID:     l.LogID,
			DeviceID:      deviceID,
			Date:          sessionDate,
			Start:         start,
			End:           end,
			MinutesAsleep: l.MinutesAsleep,
			MinutesAwake:  l.MinutesAwake,
			Efficiency:    l.Efficiency,
		})
	}

	c.logger.Debug("Fetched sleep sessions from vendor",
		zap.String("device_id", deviceID),
		zap.String("date", date),
		zap.Int("session_count", len(sessions)),
	)

	return sessions, nil
}

// GetActivities 拉取某设备某天的运动日志
func (c *VendorClient) GetActivities(deviceID, date string) ([]models.ActivityRecord, error) {
	var response VendorResponse
	resp, err := c.httpClient.R().
		SetQueryParam("date", date).
		SetResult(&response).
		Get(fmt.Sprintf("/v1/devices/%s/activities", deviceID))
	if err != nil {
		return nil, fmt.Errorf("failed to call vendor activities API: %w", err)
	}
	if err := checkResponse(resp, &response); err != nil {
		return nil, err
	}

	var dtos []activityDTO
	if err := json.Unmarshal(response.Data, &dtos); err != nil {
		return nil, fmt.Errorf("failed to unmarshal activities: %w", err)
	}

	activities := make([]models.ActivityRecord, 0, len(dtos))
	for _, d := range dtos {
		start, err := time.Parse(time.RFC3339, d.StartTime)
		if err != nil {
			c.logger.Warn("Skipping activity with bad start time",
				zap.String("activity_id", d.ActivityID),
				zap.String("start_time", d.StartTime),
			)
			continue
		}
		if d.DurationMs < 0 {
			d.DurationMs = 0
		}
		activities = append(activities, models.ActivityRecord{
			ActivityID: d.ActivityID,
			DeviceID:   deviceID,
			Name:       d.ActivityName,
			Start:      start,
			Duration:   time.Duration(d.DurationMs) * time.Millisecond,
			Calories:   d.Calories,
			Steps:      d.Steps,
		})
	}

	return activities, nil
}

// GetDailySummary 拉取某设备某天的厂家日汇总（含厂家自测 RHR）
func (c *VendorClient) GetDailySummary(deviceID, date string) (*models.DailySummary, error) {
	var response VendorResponse
	resp, err := c.httpClient.R().
		SetQueryParam("date", date).
		SetResult(&response).
		Get(fmt.Sprintf("/v1/devices/%s/summary", deviceID))
	if err != nil {
		return nil, fmt.Errorf("failed to call vendor summary API: %w", err)
	}
	if err := checkResponse(resp, &response); err != nil {
		return nil, err
	}

	var dto summaryDTO
	if err := json.Unmarshal(response.Data, &dto); err != nil {
		return nil, fmt.Errorf("failed to unmarshal daily summary: %w", err)
	}

	summaryDate, _ := time.Parse(models.DateKey, date)
	return &models.DailySummary{
		DeviceID:         deviceID,
		Date:             summaryDate,
		RestingHeartRate: dto.RestingHeartRate,
		Steps:            dto.Steps,
	}, nil
}

func checkResponse(resp *resty.Response, body *VendorResponse) error {
	if resp.StatusCode() != 200 {
		return fmt.Errorf("vendor API HTTP error: %d", resp.StatusCode())
	}
	if body.Status != 0 {
		return fmt.Errorf("vendor API error: %s (status: %d)", body.Msg, body.Status)
	}
	return nil
}
