package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// StreamMessage Redis Streams 消息
type StreamMessage struct {
	Stream string
	ID     string
	Values map[string]interface{}
}

// PublishJSONToStream 把数据序列化为 JSON 后发布到 Redis Streams
//
// 消息固定两个字段：data（JSON 字符串）和 timestamp（Unix 秒）。
func PublishJSONToStream(ctx context.Context, client *redis.Client, stream string, data interface{}) (string, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal stream payload: %w", err)
	}

	id, err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"data":      string(jsonBytes),
			"timestamp": time.Now().Unix(),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to XADD to %s: %w", stream, err)
	}

	return id, nil
}

// ReadFromStream 通过消费者组从 Redis Streams 读取消息（阻塞 5 秒）
func ReadFromStream(ctx context.Context, client *redis.Client, stream string, consumerGroup string, consumer string, count int64) ([]StreamMessage, error) {
	streams, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    consumerGroup,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    time.Second * 5,
	}).Result()

	if err != nil {
		if err == redis.Nil {
			return []StreamMessage{}, nil
		}
		return nil, err
	}

	var messages []StreamMessage
	for _, s := range streams {
		for _, msg := range s.Messages {
			messages = append(messages, StreamMessage{
				Stream: s.Stream,
				ID:     msg.ID,
				Values: msg.Values,
			})
		}
	}

	return messages, nil
}

// AckMessage 确认消息已处理
func AckMessage(ctx context.Context, client *redis.Client, stream string, consumerGroup string, id string) error {
	return client.XAck(ctx, stream, consumerGroup, id).Err()
}

// CreateConsumerGroup 创建消费者组（stream 不存在时先建 stream）
func CreateConsumerGroup(ctx context.Context, client *redis.Client, stream string, groupName string) error {
	err := client.XGroupCreate(ctx, stream, groupName, "0").Err()

	// "BUSYGROUP" 表示组已存在，属于正常情况
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		if err.Error() == "NOGROUP" || err.Error() == "no such key" {
			// Stream 不存在：发一条临时消息创建 stream 后再建组
			msgID, createErr := client.XAdd(ctx, &redis.XAddArgs{
				Stream: stream,
				Values: map[string]interface{}{"init": "true"},
			}).Result()
			if createErr != nil {
				return fmt.Errorf("failed to create stream: %w", createErr)
			}
			client.XDel(ctx, stream, msgID)
			err = client.XGroupCreate(ctx, stream, groupName, "0").Err()
			if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
				return err
			}
		} else {
			return err
		}
	}

	return nil
}
