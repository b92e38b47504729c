// Package outbox 是聊天消息的异步发送队列。
//
// API 请求只负责入队，由固定数量的 worker 调用 Sender 实际发送，
// 发送失败只记录日志与指标，不会重试，也不会阻塞请求。
package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"todolist/internal/pkg/metrics"
)

// Message 一条待发送的消息。
type Message struct {
	ChatID int64
	Text   string
}

// Sender 实际发送消息的传输层。
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Outbox 内存消息队列与 worker 池。
type Outbox struct {
	logger   *slog.Logger
	sender   Sender
	workers  int
	messages chan Message

	wg     sync.WaitGroup
	mu     sync.RWMutex // 保护 messages 的关闭
	closed atomic.Bool

	stats outboxStats
}

type outboxStats struct {
	enqueued atomic.Int64
	sent     atomic.Int64
	failed   atomic.Int64
	dropped  atomic.Int64
	panics   atomic.Int64
}

// Stats 统计快照。
type Stats struct {
	Enqueued int64 // 入队数
	Sent     int64 // 发送成功
	Failed   int64 // 发送失败
	Dropped  int64 // 队列满或已关闭被丢弃
	Panics   int64 // Sender panic 次数
}

// New 创建发送队列。
//
// 参数:
//   - logger: 日志记录器
//   - sender: 传输层
//   - workers: worker 数量（至少为 1）
//   - capacity: 队列容量（至少为 1）
func New(logger *slog.Logger, sender Sender, workers, capacity int) *Outbox {
	if workers <= 0 {
		workers = 1
	}
	if capacity <= 0 {
		capacity = 1
	}
	return &Outbox{
		logger:   logger,
		sender:   sender,
		workers:  workers,
		messages: make(chan Message, capacity),
	}
}

// Start 启动 worker，直到 ctx 取消或调用 Shutdown。
func (o *Outbox) Start(ctx context.Context) {
	for i := 0; i < o.workers; i++ {
		o.wg.Add(1)
		go o.worker(ctx, i)
	}
}

func (o *Outbox) worker(ctx context.Context, id int) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-o.messages:
			if !ok {
				return
			}
			metrics.OutboxDepth.Set(float64(len(o.messages)))
			o.deliver(ctx, msg, id)
		}
	}
}

func (o *Outbox) deliver(ctx context.Context, msg Message, workerID int) {
	defer func() {
		if r := recover(); r != nil {
			o.stats.panics.Add(1)
			o.logger.Error("outbox send panic recovered",
				slog.Int("worker_id", workerID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	if err := o.sender.SendMessage(ctx, msg.ChatID, msg.Text); err != nil {
		o.stats.failed.Add(1)
		o.logger.Warn("outbox send failed",
			slog.Int64("chat_id", msg.ChatID),
			slog.String("error", err.Error()))
		return
	}
	o.stats.sent.Add(1)
}

// Enqueue 非阻塞入队，队列满或已关闭时返回 false。
func (o *Outbox) Enqueue(msg Message) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed.Load() {
		o.stats.dropped.Add(1)
		o.logger.Warn("outbox is closed, drop message", slog.Int64("chat_id", msg.ChatID))
		return false
	}
	select {
	case o.messages <- msg:
		o.stats.enqueued.Add(1)
		metrics.OutboxDepth.Set(float64(len(o.messages)))
		return true
	default:
		o.stats.dropped.Add(1)
		o.logger.Warn("outbox full, drop message",
			slog.Int64("chat_id", msg.ChatID),
			slog.Int("capacity", cap(o.messages)))
		return false
	}
}

// Shutdown 拒绝新消息并等待已入队的消息发送完毕，超时返回错误。
func (o *Outbox) Shutdown(timeout time.Duration) error {
	o.mu.Lock()
	if !o.closed.CompareAndSwap(false, true) {
		o.mu.Unlock()
		return nil
	}
	close(o.messages)
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("outbox shutdown timeout after %s", timeout)
	}
}

// Stats 返回统计快照。
func (o *Outbox) Stats() Stats {
	return Stats{
		Enqueued: o.stats.enqueued.Load(),
		Sent:     o.stats.sent.Load(),
		Failed:   o.stats.failed.Load(),
		Dropped:  o.stats.dropped.Load(),
		Panics:   o.stats.panics.Load(),
	}
}

// Len 当前待发送数量。
func (o *Outbox) Len() int {
	return len(o.messages)
}
