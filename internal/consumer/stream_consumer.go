package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"cardiolens-data/internal/config"
	"cardiolens-data/internal/models"
	redisclient "cardiolens-data/internal/redis"
)

// SampleStore 分钟样本写入接口
type SampleStore interface {
	UpsertSamples(deviceID string, date string, samples []models.MinuteSample) error
}

// StreamConsumer Redis Streams 消费者
//
// 从样本流读取批次并落库。处理失败的消息不 ACK，留在 pending
// 列表里等待重投。
type StreamConsumer struct {
	config       *config.Config
	redisClient  *redis.Client
	sampleStore  SampleStore
	consumerName string
	logger       *zap.Logger
}

// NewStreamConsumer 创建 Streams 消费者（消费者名未配置时自动生成）
func NewStreamConsumer(
	cfg *config.Config,
	redisClient *redis.Client,
	sampleStore SampleStore,
	logger *zap.Logger,
) *StreamConsumer {
	name := cfg.Ingest.ConsumerName
	if name == "" {
		name = "cardiolens-data-" + uuid.New().String()[:8]
	}
	return &StreamConsumer{
		config:       cfg,
		redisClient:  redisClient,
		sampleStore:  sampleStore,
		consumerName: name,
		logger:       logger,
	}
}

// Start 启动消费者
func (c *StreamConsumer) Start(ctx context.Context) error {
	stream := c.config.Ingest.Stream
	if err := redisclient.CreateConsumerGroup(ctx, c.redisClient, stream, c.config.Ingest.ConsumerGroup); err != nil {
		return fmt.Errorf("failed to create consumer group for %s: %w", stream, err)
	}

	c.logger.Info("Stream consumer started",
		zap.String("stream", stream),
		zap.String("consumer_group", c.config.Ingest.ConsumerGroup),
		zap.String("consumer_name", c.consumerName),
	)

	// 消费循环：持续出错时指数退避
	backoffDuration := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			if err := c.consumeOnce(ctx); err != nil {
				c.logger.Error("Failed to consume stream",
					zap.Error(err),
					zap.Duration("backoff", backoffDuration),
				)

				select {
				case <-ctx.Done():
					return nil
				case <-time.After(backoffDuration):
					backoffDuration *= 2
					if backoffDuration > maxBackoff {
						backoffDuration = maxBackoff
					}
				}
			} else {
				backoffDuration = time.Second
			}
		}
	}
}

// consumeOnce 读取并处理一批消息
func (c *StreamConsumer) consumeOnce(ctx context.Context) error {
	messages, err := redisclient.ReadFromStream(
		ctx,
		c.redisClient,
		c.config.Ingest.Stream,
		c.config.Ingest.ConsumerGroup,
		c.consumerName,
		int64(c.config.Ingest.BatchSize),
	)
	if err != nil {
		return fmt.Errorf("failed to read from stream %s: %w", c.config.Ingest.Stream, err)
	}

	for _, msg := range messages {
		if err := c.processMessage(msg); err != nil {
			c.logger.Error("Failed to process message",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			// 不 ACK，继续处理下一条
			continue
		}

		if err := redisclient.AckMessage(ctx, c.redisClient, c.config.Ingest.Stream, c.config.Ingest.ConsumerGroup, msg.ID); err != nil {
			c.logger.Warn("Failed to ack message",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		}
	}

	return nil
}

// processMessage 解析并落库单条消息
func (c *StreamConsumer) processMessage(msg redisclient.StreamMessage) error {
	batch, err := parseSampleBatch(msg.Values)
	if err != nil {
		return fmt.Errorf("failed to parse sample batch: %w", err)
	}

	if err := c.sampleStore.UpsertSamples(batch.DeviceID, batch.Date, batch.Samples); err != nil {
		return fmt.Errorf("failed to upsert samples: %w", err)
	}

	c.logger.Info("Stored sample batch",
		zap.String("device_id", batch.DeviceID),
		zap.String("date", batch.Date),
		zap.String("batch_id", batch.BatchID),
		zap.Int("sample_count", len(batch.Samples)),
	)

	return nil
}

// parseSampleBatch 从流消息的 data 字段还原样本批次
func parseSampleBatch(values map[string]interface{}) (*models.SampleBatch, error) {
	raw, ok := values["data"]
	if !ok {
		return nil, fmt.Errorf("message missing data field")
	}
	jsonStr, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("data field is not a string")
	}

	var batch models.SampleBatch
	if err := json.Unmarshal([]byte(jsonStr), &batch); err != nil {
		return nil, fmt.Errorf("failed to unmarshal batch JSON: %w", err)
	}
	if batch.DeviceID == "" || batch.Date == "" {
		return nil, fmt.Errorf("batch missing device_id or date")
	}
	return &batch, nil
}
