package consumer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cardiolens-data/internal/config"
	"cardiolens-data/internal/models"
	redisclient "cardiolens-data/internal/redis"
)

type fakeSampleStore struct {
	deviceID string
	date     string
	samples  []models.MinuteSample
	err      error
}

func (f *fakeSampleStore) UpsertSamples(deviceID, date string, samples []models.MinuteSample) error {
	f.deviceID = deviceID
	f.date = date
	f.samples = samples
	return f.err
}

func TestParseSampleBatch(t *testing.T) {
	values := map[string]interface{}{
		"data":      `{"batch_id":"b-1","device_id":"dev-1","date":"2026-01-24","samples":[{"time":"09:15:00","heart_rate":62,"steps":0},{"time":"09:16:00","heart_rate":63,"steps":12}]}`,
		"timestamp": int64(1769244900),
	}

	batch, err := parseSampleBatch(values)
	require.NoError(t, err)
	require.Equal(t, "dev-1", batch.DeviceID)
	require.Equal(t, "2026-01-24", batch.Date)
	require.Len(t, batch.Samples, 2)
	require.Equal(t, 62, batch.Samples[0].HeartRate)
	require.Equal(t, 12, batch.Samples[1].Steps)
}

func TestParseSampleBatch_MissingDataField(t *testing.T) {
	_, err := parseSampleBatch(map[string]interface{}{"timestamp": int64(1)})
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing data field")
}

func TestParseSampleBatch_InvalidJSON(t *testing.T) {
	_, err := parseSampleBatch(map[string]interface{}{"data": "{not json"})
	require.Error(t, err)
}

func TestParseSampleBatch_MissingIdentity(t *testing.T) {
	_, err := parseSampleBatch(map[string]interface{}{
		"data": `{"batch_id":"b-1","samples":[]}`,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "device_id or date")
}

func TestProcessMessage_UpsertsBatch(t *testing.T) {
	store := &fakeSampleStore{}
	c := NewStreamConsumer(&config.Config{}, nil, store, zap.NewNop())

	msg := redisclient.StreamMessage{
		ID: "1-0",
		Values: map[string]interface{}{
			"data": `{"batch_id":"b-1","device_id":"dev-1","date":"2026-01-24","samples":[{"time":"09:15","heart_rate":62,"steps":0}]}`,
		},
	}
	require.NoError(t, c.processMessage(msg))
	require.Equal(t, "dev-1", store.deviceID)
	require.Equal(t, "2026-01-24", store.date)
	require.Len(t, store.samples, 1)
}

func TestProcessMessage_StoreErrorPropagates(t *testing.T) {
	store := &fakeSampleStore{err: errors.New("db down")}
	c := NewStreamConsumer(&config.Config{}, nil, store, zap.NewNop())

	msg := redisclient.StreamMessage{
		ID: "1-0",
		Values: map[string]interface{}{
			"data": `{"device_id":"dev-1","date":"2026-01-24","samples":[]}`,
		},
	}
	err := c.processMessage(msg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "upsert")
}

func TestDeviceIDFromTopic(t *testing.T) {
	require.Equal(t, "dev-1", deviceIDFromTopic("cardiolens/dev-1/intraday"))
	require.Equal(t, "", deviceIDFromTopic("cardiolens/intraday"))
	require.Equal(t, "", deviceIDFromTopic("a/b/c/d"))
}
