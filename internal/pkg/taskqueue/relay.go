package taskqueue

import (
	"context"
	"log/slog"
	"time"

	"todolist/internal/pkg/metrics"
	"todolist/internal/pkg/outbox"
)

// Relay 持续读取投递流并通过 sender 发送，直到 ctx 结束。
//
// Redis 读取失败时等待 backoff 后继续。
func (c *Consumer) Relay(ctx context.Context, sender outbox.Sender, backoff time.Duration) {
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	c.logger.Info("delivery relay started", slog.String("consumer", c.cfg.Name))
	defer c.logger.Info("delivery relay stopped")

	for ctx.Err() == nil {
		batch, err := c.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("fetch deliveries failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
			case <-time.After(backoff):
			}
			continue
		}
		for _, env := range batch {
			c.deliver(ctx, sender, env)
		}
	}
}

func (c *Consumer) deliver(ctx context.Context, sender outbox.Sender, env *Envelope) {
	d := env.Delivery
	err := sender.SendMessage(ctx, d.ChatID, d.Text)
	if err == nil {
		metrics.DeliveryEventsTotal.WithLabelValues("sent").Inc()
		if ackErr := c.Ack(ctx, env.ID); ackErr != nil {
			c.logger.Error("ack delivery failed", slog.String("msg_id", env.ID), slog.String("error", ackErr.Error()))
		}
		return
	}
	if ctx.Err() != nil {
		// 保持 pending，重启后被接管
		return
	}

	outcome, ferr := c.Fail(ctx, env, err)
	if ferr != nil {
		c.logger.Error("record delivery failure failed", slog.String("msg_id", env.ID), slog.String("error", ferr.Error()))
		return
	}
	c.logger.Warn("delivery failed",
		slog.String("msg_id", env.ID),
		slog.Int64("chat_id", d.ChatID),
		slog.Int("attempts", d.Attempts),
		slog.Bool("claimed", env.Claimed),
		slog.String("outcome", string(outcome)),
		slog.String("error", err.Error()))
}
