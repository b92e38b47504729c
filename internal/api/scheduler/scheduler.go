// Package scheduler 定期扫描即将到期的目标并提醒创建者。
//
// 已绑定聊天的创建者通过出站队列收到聊天消息，其余有邮箱的创建者收到邮件。
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"todolist/internal/pkg/metrics"
	"todolist/internal/pkg/notify"
	"todolist/internal/pkg/outbox"
	"todolist/internal/store"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "todolist:reminder:"

// ReminderSource 提供到期目标。
type ReminderSource interface {
	DueGoalReminders(ctx context.Context, from, to time.Time) ([]store.DueReminder, error)
}

// Enqueuer 异步投递消息，队列满时返回 false。
type Enqueuer interface {
	Enqueue(msg outbox.Message) bool
}

// Scheduler 负责到期提醒的周期调度。
//
// 每个目标的每个截止日期只提醒一次：有 Redis 时用 SETNX 认领，
// 多个 API 实例共享同一组 key；否则退化为进程内记录。
type Scheduler struct {
	source   ReminderSource
	outbox   Enqueuer
	notifier notify.Notifier
	rdb      *redis.Client
	logger   *slog.Logger
	interval time.Duration
	lead     time.Duration
	now      func() time.Time

	mu   sync.Mutex
	sent map[string]time.Time // key -> 过期时间，仅在无 Redis 时使用
}

// NewScheduler 创建调度器。
//
// 参数:
//
//	source: 到期目标查询
//	box: 出站消息队列，可为 nil
//	notifier: 邮件通知，可为 nil
//	rdb: Redis 客户端，可为 nil
//	logger: 日志记录器
//	interval: 扫描间隔（<=0 时使用 10 分钟）
//	lead: 提前提醒时长（<=0 时使用 24 小时）
func NewScheduler(source ReminderSource, box Enqueuer, notifier notify.Notifier, rdb *redis.Client, logger *slog.Logger, interval, lead time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if lead <= 0 {
		lead = 24 * time.Hour
	}
	return &Scheduler{
		source:   source,
		outbox:   box,
		notifier: notifier,
		rdb:      rdb,
		logger:   logger,
		interval: interval,
		lead:     lead,
		now:      time.Now,
		sent:     make(map[string]time.Time),
	}
}

// Run 立即扫描一次，之后按 interval 周期扫描，直到 ctx 结束。
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("reminder scheduler started",
		slog.String("interval", s.interval.String()),
		slog.String("lead", s.lead.String()))

	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reminder scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	n, err := s.RunOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("reminder scan failed", slog.String("error", err.Error()))
		}
		return
	}
	if n > 0 {
		s.logger.Info("reminders delivered", slog.Int("count", n))
	}
}

// RunOnce 扫描一次并返回本次送出的提醒数量。
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.source.DueGoalReminders(ctx, now, now.Add(s.lead))
	if err != nil {
		return 0, fmt.Errorf("load due goals: %w", err)
	}

	delivered := 0
	for _, r := range due {
		via := s.channel(r)
		if via == "" {
			continue
		}
		key := reminderKey(r)
		claimed, err := s.claim(ctx, key, r.DueDate.Sub(now)+s.lead)
		if err != nil {
			return delivered, err
		}
		if !claimed {
			metrics.RemindersTotal.WithLabelValues("skipped").Inc()
			continue
		}

		if !s.deliver(ctx, via, r) {
			// 释放认领，下一轮重试
			s.release(ctx, key)
			metrics.RemindersTotal.WithLabelValues("dropped").Inc()
			continue
		}
		metrics.RemindersTotal.WithLabelValues(via).Inc()
		delivered++
	}
	return delivered, nil
}

// channel 优先聊天，其次邮件；都不可用时返回空串。
func (s *Scheduler) channel(r store.DueReminder) string {
	switch {
	case r.ChatID != 0 && s.outbox != nil:
		return "chat"
	case r.Email != "" && s.notifier != nil:
		return "email"
	default:
		return ""
	}
}

func (s *Scheduler) deliver(ctx context.Context, via string, r store.DueReminder) bool {
	if via == "chat" {
		if !s.outbox.Enqueue(outbox.Message{ChatID: r.ChatID, Text: FormatReminder(r)}) {
			s.logger.Warn("reminder dropped",
				slog.Uint64("goal_id", uint64(r.GoalID)),
				slog.Int64("chat_id", r.ChatID))
			return false
		}
		return true
	}
	if err := s.notifier.SendReminder(ctx, r.Email, r); err != nil {
		s.logger.Warn("reminder email failed",
			slog.Uint64("goal_id", uint64(r.GoalID)),
			slog.String("error", err.Error()))
		return false
	}
	return true
}

// FormatReminder 生成提醒文本。
func FormatReminder(r store.DueReminder) string {
	return fmt.Sprintf("[reminder] #%d %s (due %s)", r.GoalID, r.Title, r.DueDate.Format("2006-01-02 15:04"))
}

// reminderKey 截止时间变化后会生成新的 key，从而再次提醒。
func reminderKey(r store.DueReminder) string {
	return keyPrefix + strconv.FormatUint(uint64(r.GoalID), 10) + ":" + strconv.FormatInt(r.DueDate.Unix(), 10)
}

func (s *Scheduler) claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = s.lead
	}
	if s.rdb != nil {
		ok, err := s.rdb.SetNX(ctx, key, 1, ttl).Result()
		if err != nil {
			return false, fmt.Errorf("claim reminder: %w", err)
		}
		return ok, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, exp := range s.sent {
		if now.After(exp) {
			delete(s.sent, k)
		}
	}
	if _, ok := s.sent[key]; ok {
		return false, nil
	}
	s.sent[key] = now.Add(ttl)
	return true, nil
}

func (s *Scheduler) release(ctx context.Context, key string) {
	if s.rdb != nil {
		if err := s.rdb.Del(ctx, key).Err(); err != nil {
			s.logger.Warn("release reminder claim failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		return
	}
	s.mu.Lock()
	delete(s.sent, key)
	s.mu.Unlock()
}
