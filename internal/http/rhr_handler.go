package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"cardiolens-data/internal/models"
)

// RHRProvider 每日静息心率服务接口
type RHRProvider interface {
	DailyRHR(deviceID string, date time.Time) (models.RHRResult, error)
	RangeRHR(deviceID string, from, to time.Time) ([]models.DailyRHRPoint, error)
}

// RHRHandler 静息心率查询 API
//
// 结果每次现算，不做缓存：底层分钟样本随消费管道持续更新，
// 缓存一份旧结果不如直接重算一遍便宜的线性扫描。
type RHRHandler struct {
	service      RHRProvider
	maxRangeDays int
	logger       *zap.Logger
}

func NewRHRHandler(service RHRProvider, maxRangeDays int, logger *zap.Logger) *RHRHandler {
	if maxRangeDays <= 0 {
		maxRangeDays = 92
	}
	return &RHRHandler{service: service, maxRangeDays: maxRangeDays, logger: logger}
}

// GET /data/api/v1/cardio/rhr/daily
// params:
// - device_id string（必填）
// - date? YYYY-MM-DD（默认今天）
func (h *RHRHandler) GetDailyRHR(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("device_id is required"))
		return
	}

	date, err := parseDate(r.URL.Query().Get("date"), time.Now())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid date, expected YYYY-MM-DD"))
		return
	}

	result, err := h.service.DailyRHR(deviceID, date)
	if err != nil {
		h.logger.Error("Daily RHR computation failed",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to compute daily RHR"))
		return
	}

	writeJSON(w, http.StatusOK, Ok(result))
}

// GET /data/api/v1/cardio/rhr/range
// params:
// - device_id string（必填）
// - from YYYY-MM-DD（必填）
// - to YYYY-MM-DD（必填，含端点；跨度受 maxRangeDays 限制）
func (h *RHRHandler) GetRangeRHR(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("device_id is required"))
		return
	}

	from, err := parseDate(r.URL.Query().Get("from"), time.Time{})
	if err != nil || from.IsZero() {
		writeJSON(w, http.StatusBadRequest, Fail("invalid from date, expected YYYY-MM-DD"))
		return
	}
	to, err := parseDate(r.URL.Query().Get("to"), time.Time{})
	if err != nil || to.IsZero() {
		writeJSON(w, http.StatusBadRequest, Fail("invalid to date, expected YYYY-MM-DD"))
		return
	}
	if to.Before(from) {
		writeJSON(w, http.StatusBadRequest, Fail("to must not be before from"))
		return
	}
	if days := int(to.Sub(from).Hours()/24) + 1; days > h.maxRangeDays {
		writeJSON(w, http.StatusBadRequest, Fail("date range too large"))
		return
	}

	points, err := h.service.RangeRHR(deviceID, from, to)
	if err != nil {
		h.logger.Error("Range RHR computation failed",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to compute RHR range"))
		return
	}
	if points == nil {
		points = []models.DailyRHRPoint{}
	}

	writeJSON(w, http.StatusOK, Ok(points))
}
