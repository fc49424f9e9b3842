package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"cardiolens-data/internal/config"
	"cardiolens-data/internal/models"
	mqttclient "cardiolens-data/internal/mqtt"
	redisclient "cardiolens-data/internal/redis"
)

// MQTTConsumer MQTT消息消费者
//
// 订阅网关上报主题（cardiolens/{device_id}/intraday），把分钟样本
// 批次原样转发到 Redis Streams，由 StreamConsumer 负责落库。
type MQTTConsumer struct {
	config      *config.Config
	mqttClient  *mqttclient.Client
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewMQTTConsumer 创建MQTT消费者
func NewMQTTConsumer(
	cfg *config.Config,
	mqttClient *mqttclient.Client,
	redisClient *redis.Client,
	logger *zap.Logger,
) *MQTTConsumer {
	return &MQTTConsumer{
		config:      cfg,
		mqttClient:  mqttClient,
		redisClient: redisClient,
		logger:      logger,
	}
}

// Start 启动消费者
func (c *MQTTConsumer) Start(ctx context.Context) error {
	topic := c.config.Ingest.Topic
	if topic == "" {
		return fmt.Errorf("ingest MQTT topic not configured")
	}

	if err := c.mqttClient.Subscribe(topic, 1, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to ingest topic: %w", err)
	}

	c.logger.Info("MQTT consumer started",
		zap.String("topic", topic),
		zap.String("stream", c.config.Ingest.Stream),
	)

	// 等待上下文取消
	<-ctx.Done()
	return nil
}

// Stop 停止消费者
func (c *MQTTConsumer) Stop(ctx context.Context) error {
	topic := c.config.Ingest.Topic
	if topic != "" {
		if err := c.mqttClient.Unsubscribe(topic); err != nil {
			c.logger.Error("Failed to unsubscribe", zap.Error(err))
		}
	}

	c.logger.Info("MQTT consumer stopped")
	return nil
}

// handleMessage 处理MQTT消息
func (c *MQTTConsumer) handleMessage(topic string, payload []byte) error {
	c.logger.Debug("Received MQTT message",
		zap.String("topic", topic),
		zap.Int("payload_size", len(payload)),
	)

	var batch models.SampleBatch
	if err := json.Unmarshal(payload, &batch); err != nil {
		c.logger.Error("Failed to unmarshal sample batch",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return fmt.Errorf("failed to unmarshal sample batch: %w", err)
	}

	// 设备 ID 缺省时从主题第二段取（cardiolens/{device_id}/intraday）
	if batch.DeviceID == "" {
		batch.DeviceID = deviceIDFromTopic(topic)
	}
	if batch.DeviceID == "" || batch.Date == "" {
		return fmt.Errorf("sample batch missing device_id or date (topic: %s)", topic)
	}
	if batch.BatchID == "" {
		batch.BatchID = uuid.New().String()
	}

	streamID, err := redisclient.PublishJSONToStream(context.Background(), c.redisClient, c.config.Ingest.Stream, batch)
	if err != nil {
		return fmt.Errorf("failed to publish to stream: %w", err)
	}

	c.logger.Info("Published sample batch to Redis Streams",
		zap.String("device_id", batch.DeviceID),
		zap.String("date", batch.Date),
		zap.Int("sample_count", len(batch.Samples)),
		zap.String("stream_id", streamID),
	)

	return nil
}

func deviceIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 {
		return ""
	}
	return parts[1]
}
