package taskqueue

import (
	"context"
	"log/slog"
	"time"

	"todolist/internal/pkg/metrics"
	"todolist/internal/pkg/outbox"

	"github.com/redis/go-redis/v9"
)

// Producer 由 API 进程使用，把待发送消息写入投递流。
type Producer struct {
	queue   *TaskQueue
	logger  *slog.Logger
	timeout time.Duration
}

// NewProducer 创建生产者。
//
// 参数:
//   - rdb: Redis 客户端
//   - logger: 日志记录器
//   - streamName: Stream 名称（可选，默认为 DefaultStream）
func NewProducer(rdb *redis.Client, logger *slog.Logger, streamName ...string) *Producer {
	stream := ""
	if len(streamName) > 0 {
		stream = streamName[0]
	}
	return &Producer{
		queue:   NewTaskQueue(rdb, logger, stream),
		logger:  logger,
		timeout: 2 * time.Second,
	}
}

// Submit 写入一条消息。
func (p *Producer) Submit(ctx context.Context, chatID int64, text string) error {
	if err := p.queue.Publish(ctx, NewDelivery(chatID, text)); err != nil {
		p.logger.Error("submit delivery failed",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()))
		return err
	}
	metrics.DeliveryEventsTotal.WithLabelValues("published").Inc()
	return nil
}

// Enqueue 与 outbox.Outbox 相同的非阻塞语义：写入失败返回 false。
func (p *Producer) Enqueue(msg outbox.Message) bool {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return p.Submit(ctx, msg.ChatID, msg.Text) == nil
}

// QueueLength 当前流长度。
func (p *Producer) QueueLength(ctx context.Context) (int64, error) {
	return p.queue.Len(ctx)
}
