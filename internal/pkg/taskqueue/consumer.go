package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"todolist/internal/pkg/metrics"

	"github.com/redis/go-redis/v9"
)

// ConsumerConfig 投递消费者配置，零值字段取默认值。
type ConsumerConfig struct {
	Stream     string        // 为空时使用 DefaultStream
	Group      string        // 消费者组，必填
	Name       string        // 组内消费者名，为空时自动生成
	Block      time.Duration // XREADGROUP 阻塞时长，默认 1s
	Batch      int64         // 单次读取条数，默认 10
	ClaimIdle  time.Duration // pending 超过该时长可被其他消费者接管，默认 1m
	MaxRetry   int           // 发送失败后最多重新入流次数，默认 3
	DeadLetter string        // 死信流，默认 <Stream>:dlq
}

func (c *ConsumerConfig) withDefaults() {
	if c.Stream == "" {
		c.Stream = DefaultStream
	}
	if c.Name == "" {
		c.Name = "relay-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	if c.Block <= 0 {
		c.Block = time.Second
	}
	if c.Batch <= 0 {
		c.Batch = 10
	}
	if c.ClaimIdle <= 0 {
		c.ClaimIdle = time.Minute
	}
	if c.MaxRetry <= 0 {
		c.MaxRetry = 3
	}
	if c.DeadLetter == "" {
		c.DeadLetter = c.Stream + ":dlq"
	}
}

// Consumer 由机器人进程使用，从消费者组读取待发送的聊天消息。
type Consumer struct {
	queue  *TaskQueue
	logger *slog.Logger
	cfg    ConsumerConfig
	cursor string // XAUTOCLAIM 的扫描位置
}

// Envelope 从投递流取出的一条消息。
type Envelope struct {
	ID       string // Stream 消息 ID
	Delivery *Delivery
	Claimed  bool // 从停滞的消费者那里接管而来
}

// Outcome 发送失败后的处理结果。
type Outcome string

const (
	OutcomeRequeued     Outcome = "requeued"
	OutcomeDeadLettered Outcome = "dead_lettered"
)

// NewConsumer 创建消费者并确保消费者组存在。
func NewConsumer(ctx context.Context, rdb *redis.Client, logger *slog.Logger, cfg ConsumerConfig) (*Consumer, error) {
	if cfg.Group == "" {
		return nil, fmt.Errorf("consumer group is required")
	}
	cfg.withDefaults()

	q := NewTaskQueue(rdb, logger, cfg.Stream)
	if err := q.CreateConsumerGroup(ctx, cfg.Group); err != nil {
		return nil, err
	}
	logger.Info("delivery consumer ready",
		slog.String("group", cfg.Group),
		slog.String("consumer", cfg.Name),
		slog.Int("max_retry", cfg.MaxRetry))
	return &Consumer{queue: q, logger: logger, cfg: cfg, cursor: "0-0"}, nil
}

// Fetch 取下一批待发送消息。
//
// 先接管其他消费者停滞的消息，没有时再阻塞读取新消息；无法解码的条目直接进入死信流。
func (c *Consumer) Fetch(ctx context.Context) ([]*Envelope, error) {
	stale, err := c.claimStale(ctx)
	if err != nil {
		return nil, err
	}
	if len(stale) > 0 {
		return stale, nil
	}

	streams, err := c.queue.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Name,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.Batch,
		Block:    c.cfg.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}

	var out []*Envelope
	for _, s := range streams {
		out = append(out, c.open(ctx, s.Messages, false)...)
	}
	return out, nil
}

func (c *Consumer) claimStale(ctx context.Context) ([]*Envelope, error) {
	msgs, next, err := c.queue.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.cfg.Stream,
		Group:    c.cfg.Group,
		Consumer: c.cfg.Name,
		MinIdle:  c.cfg.ClaimIdle,
		Start:    c.cursor,
		Count:    c.cfg.Batch,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if next != "" {
		c.cursor = next
	}
	if len(msgs) > 0 {
		metrics.DeliveryEventsTotal.WithLabelValues("claimed").Add(float64(len(msgs)))
	}
	return c.open(ctx, msgs, true), nil
}

// open 解码 Stream 条目；解码失败的条目写入死信流后确认。
func (c *Consumer) open(ctx context.Context, msgs []redis.XMessage, claimed bool) []*Envelope {
	out := make([]*Envelope, 0, len(msgs))
	for _, m := range msgs {
		raw, _ := m.Values["data"].(string)
		d, err := parseMessage(raw)
		if err == nil {
			out = append(out, &Envelope{ID: m.ID, Delivery: d, Claimed: claimed})
			continue
		}

		c.logger.Warn("undecodable delivery", slog.String("msg_id", m.ID), slog.String("error", err.Error()))
		entry := map[string]interface{}{
			"source_id":  m.ID,
			"raw":        raw,
			"last_error": err.Error(),
			"failed_at":  time.Now().UTC().Format(time.RFC3339Nano),
		}
		c.bury(ctx, m.ID, entry)
	}
	return out
}

// Ack 确认消息已处理完毕。
func (c *Consumer) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.queue.rdb.XAck(ctx, c.cfg.Stream, c.cfg.Group, ids...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

// Fail 记录一次发送失败。
//
// 未超过 MaxRetry 时带着失败次数重新入流，否则连同聊天与失败原因写入死信流；
// 两种情况都会确认原条目。
func (c *Consumer) Fail(ctx context.Context, env *Envelope, cause error) (Outcome, error) {
	d := env.Delivery
	d.Attempts++
	d.LastError = cause.Error()

	if d.Attempts > c.cfg.MaxRetry {
		entry := map[string]interface{}{
			"source_id":  env.ID,
			"chat_id":    d.ChatID,
			"text":       d.Text,
			"attempts":   d.Attempts,
			"queued_at":  d.QueuedAt.Format(time.RFC3339Nano),
			"last_error": d.LastError,
			"failed_at":  time.Now().UTC().Format(time.RFC3339Nano),
		}
		if err := c.queue.publishRaw(ctx, c.cfg.DeadLetter, entry); err != nil {
			return OutcomeDeadLettered, err
		}
		metrics.DeliveryEventsTotal.WithLabelValues("dead_lettered").Inc()
		return OutcomeDeadLettered, c.Ack(ctx, env.ID)
	}

	if err := c.queue.Publish(ctx, d); err != nil {
		return OutcomeRequeued, err
	}
	metrics.DeliveryEventsTotal.WithLabelValues("requeued").Inc()
	return OutcomeRequeued, c.Ack(ctx, env.ID)
}

// bury 写入死信流并确认原条目，失败只记日志。
func (c *Consumer) bury(ctx context.Context, id string, entry map[string]interface{}) {
	if err := c.queue.publishRaw(ctx, c.cfg.DeadLetter, entry); err != nil {
		c.logger.Error("dead letter publish failed", slog.String("msg_id", id), slog.String("error", err.Error()))
		return
	}
	metrics.DeliveryEventsTotal.WithLabelValues("dead_lettered").Inc()
	if err := c.Ack(ctx, id); err != nil {
		c.logger.Error("ack dead letter failed", slog.String("msg_id", id), slog.String("error", err.Error()))
	}
}

// Pending 已读取但未确认的消息数。
func (c *Consumer) Pending(ctx context.Context) (int64, error) {
	info, err := c.queue.rdb.XPending(ctx, c.cfg.Stream, c.cfg.Group).Result()
	if err != nil {
		return 0, fmt.Errorf("xpending: %w", err)
	}
	return info.Count, nil
}
