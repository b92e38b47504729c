// Package taskqueue 基于 Redis Streams 的聊天消息投递流。
//
// API 进程把待发送消息写入 Stream，机器人进程以消费者组读取并发送，
// 失败的消息按次数重新入流，超过上限后进入死信 Stream。
package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultStream 默认投递流名称。
const DefaultStream = "todolist:delivery:stream"

// TaskQueue 封装 Redis Streams 的基础操作。
type TaskQueue struct {
	rdb        *redis.Client
	logger     *slog.Logger
	streamName string
}

// NewTaskQueue 创建队列实例，streamName 为空时使用 DefaultStream。
func NewTaskQueue(rdb *redis.Client, logger *slog.Logger, streamName string) *TaskQueue {
	if streamName == "" {
		streamName = DefaultStream
	}
	return &TaskQueue{
		rdb:        rdb,
		logger:     logger,
		streamName: streamName,
	}
}

// Publish 使用 XADD 追加一条消息。
func (q *TaskQueue) Publish(ctx context.Context, msg *Delivery) error {
	if msg == nil {
		return fmt.Errorf("message is nil")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return q.publishRaw(ctx, q.streamName, map[string]interface{}{
		"data": string(data),
	})
}

func (q *TaskQueue) publishRaw(ctx context.Context, stream string, values map[string]interface{}) error {
	args := &redis.XAddArgs{
		Stream: stream,
		MaxLen: 100000,
		Approx: false,
		Values: values,
	}

	msgID, err := q.rdb.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("xadd failed: %w", err)
	}

	q.logger.Debug("delivery published",
		slog.String("stream", stream),
		slog.String("msg_id", msgID))

	return nil
}

// CreateConsumerGroup 创建消费者组，已存在时忽略。
func (q *TaskQueue) CreateConsumerGroup(ctx context.Context, groupName string) error {
	err := q.rdb.XGroupCreateMkStream(ctx, q.streamName, groupName, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}

	q.logger.Info("consumer group ready",
		slog.String("stream", q.streamName),
		slog.String("group", groupName))

	return nil
}

// Len 返回 Stream 中的消息数量。
func (q *TaskQueue) Len(ctx context.Context) (int64, error) {
	length, err := q.rdb.XLen(ctx, q.streamName).Result()
	if err != nil {
		return 0, fmt.Errorf("xlen failed: %w", err)
	}
	return length, nil
}

func parseMessage(data string) (*Delivery, error) {
	var msg Delivery
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	if msg.ChatID == 0 {
		return nil, fmt.Errorf("message has no chat id")
	}
	return &msg, nil
}
