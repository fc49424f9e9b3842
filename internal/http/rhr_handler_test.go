package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cardiolens-data/internal/models"
)

type fakeRHRService struct {
	result    models.RHRResult
	points    []models.DailyRHRPoint
	err       error
	lastDate  time.Time
	lastFrom  time.Time
	lastTo    time.Time
	lastDevID string
}

func (f *fakeRHRService) DailyRHR(deviceID string, date time.Time) (models.RHRResult, error) {
	f.lastDevID = deviceID
	f.lastDate = date
	return f.result, f.err
}

func (f *fakeRHRService) RangeRHR(deviceID string, from, to time.Time) ([]models.DailyRHRPoint, error) {
	f.lastDevID = deviceID
	f.lastFrom = from
	f.lastTo = to
	return f.points, f.err
}

func newTestRouter(svc RHRProvider, maxRangeDays int) *Router {
	logger := zap.NewNop()
	router := NewRouter(logger)
	router.RegisterRHRRoutes(NewRHRHandler(svc, maxRangeDays, logger))
	return router
}

func intp(v int) *int { return &v }

func TestGetDailyRHR_Success(t *testing.T) {
	svc := &fakeRHRService{result: models.RHRResult{Day: intp(58), Night: intp(52), Avg: intp(55)}}
	router := newTestRouter(svc, 92)

	req := httptest.NewRequest(http.MethodGet, "/data/api/v1/cardio/rhr/daily?device_id=dev-1&date=2026-01-24", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "dev-1", svc.lastDevID)
	require.Equal(t, "2026-01-24", svc.lastDate.Format("2006-01-02"))

	var resp Result[models.RHRResult]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, ResultSuccess, resp.Code)
	require.Equal(t, 58, *resp.Result.Day)
	require.Equal(t, 52, *resp.Result.Night)
	require.Equal(t, 55, *resp.Result.Avg)
}

// 空数据日：night 为 null，其余字段照常序列化
func TestGetDailyRHR_NullFieldsSerialized(t *testing.T) {
	svc := &fakeRHRService{result: models.RHRResult{Day: intp(60), Night: nil, Avg: intp(60)}}
	router := newTestRouter(svc, 92)

	req := httptest.NewRequest(http.MethodGet, "/data/api/v1/cardio/rhr/daily?device_id=dev-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"rhr_night":null`)
}

func TestGetDailyRHR_MissingDeviceID(t *testing.T) {
	router := newTestRouter(&fakeRHRService{}, 92)

	req := httptest.NewRequest(http.MethodGet, "/data/api/v1/cardio/rhr/daily", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp Result[any]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, ResultError, resp.Code)
	require.Contains(t, resp.Message, "device_id")
}

func TestGetDailyRHR_InvalidDate(t *testing.T) {
	router := newTestRouter(&fakeRHRService{}, 92)

	req := httptest.NewRequest(http.MethodGet, "/data/api/v1/cardio/rhr/daily?device_id=dev-1&date=24-01-2026", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDailyRHR_ServiceError(t *testing.T) {
	svc := &fakeRHRService{err: errors.New("db down")}
	router := newTestRouter(svc, 92)

	req := httptest.NewRequest(http.MethodGet, "/data/api/v1/cardio/rhr/daily?device_id=dev-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetRangeRHR_Success(t *testing.T) {
	svc := &fakeRHRService{points: []models.DailyRHRPoint{
		{Date: "2026-01-24", RHRResult: models.RHRResult{Day: intp(58)}},
		{Date: "2026-01-25", RHRResult: models.RHRResult{Day: intp(57)}},
	}}
	router := newTestRouter(svc, 92)

	req := httptest.NewRequest(http.MethodGet,
		"/data/api/v1/cardio/rhr/range?device_id=dev-1&from=2026-01-24&to=2026-01-25", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp Result[[]models.DailyRHRPoint]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Result, 2)
	require.Equal(t, "2026-01-24", resp.Result[0].Date)
}

func TestGetRangeRHR_RejectsOversizedRange(t *testing.T) {
	router := newTestRouter(&fakeRHRService{}, 7)

	req := httptest.NewRequest(http.MethodGet,
		"/data/api/v1/cardio/rhr/range?device_id=dev-1&from=2026-01-01&to=2026-01-10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "too large")
}

func TestGetRangeRHR_RejectsReversedRange(t *testing.T) {
	router := newTestRouter(&fakeRHRService{}, 92)

	req := httptest.NewRequest(http.MethodGet,
		"/data/api/v1/cardio/rhr/range?device_id=dev-1&from=2026-01-25&to=2026-01-24", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRangeRHR_EmptyResultIsEmptyArray(t *testing.T) {
	router := newTestRouter(&fakeRHRService{}, 92)

	req := httptest.NewRequest(http.MethodGet,
		"/data/api/v1/cardio/rhr/range?device_id=dev-1&from=2026-01-24&to=2026-01-24", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"result":[]`)
}

func TestRHRRoutes_MethodNotAllowed(t *testing.T) {
	router := newTestRouter(&fakeRHRService{}, 92)

	req := httptest.NewRequest(http.MethodPost, "/data/api/v1/cardio/rhr/daily", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(&fakeRHRService{}, 92)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}
