package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"todolist/internal/model"
	"todolist/internal/pkg/dedup"
	"todolist/internal/pkg/metrics"
	"todolist/internal/pkg/tg"
)

const defaultRetryBackoff = time.Second

// Transport 机器人平台的收发接口，*tg.Client 实现了它。
type Transport interface {
	FetchUpdates(ctx context.Context, offset int64) ([]tg.Update, error)
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// IdentityResolver 聊天身份查找与验证码签发。
type IdentityResolver interface {
	ResolveChat(ctx context.Context, chatID int64, username string) (*model.TgUser, error)
	IssueVerificationCode(ctx context.Context, tgUser *model.TgUser) (string, error)
}

// MessageHandler 处理已验证用户的消息。
type MessageHandler interface {
	Handle(ctx context.Context, chatID int64, userID uint, text string) error
}

// PollerOptions 轮询参数。
type PollerOptions struct {
	// MaxFailures 连续拉取失败的容忍次数，超过后 Run 返回错误；0 表示首次失败即退出。
	MaxFailures int
	// RetryBackoff 线性退避基数，第 n 次失败等待 n*RetryBackoff。
	RetryBackoff time.Duration
	// Guard 可选的 update 去重器。
	Guard *dedup.UpdateGuard
}

// Poller 顺序拉取并处理消息。
//
// 同一批内的消息严格按到达顺序逐条处理；每条处理完成（无论成功与否）后游标推进到 ID+1。
type Poller struct {
	transport  Transport
	identities IdentityResolver
	handler    MessageHandler
	guard      *dedup.UpdateGuard
	logger     *slog.Logger

	offset      int64
	maxFailures int
	backoff     time.Duration
}

// NewPoller 创建轮询器。
func NewPoller(transport Transport, identities IdentityResolver, handler MessageHandler, logger *slog.Logger, opts PollerOptions) *Poller {
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}
	if opts.MaxFailures < 0 {
		opts.MaxFailures = 0
	}
	return &Poller{
		transport:   transport,
		identities:  identities,
		handler:     handler,
		guard:       opts.Guard,
		logger:      logger,
		maxFailures: opts.MaxFailures,
		backoff:     opts.RetryBackoff,
	}
}

// Offset 返回下一次拉取使用的游标。
func (p *Poller) Offset() int64 {
	return p.offset
}

// Run 持续轮询直到 ctx 取消（返回 nil）或连续失败超过上限（返回错误）。
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("bot poller started",
		slog.Int64("offset", p.offset),
		slog.Int("max_failures", p.maxFailures))

	failures := 0
	for {
		if ctx.Err() != nil {
			p.logger.Info("bot poller stopped", slog.Int64("offset", p.offset))
			return nil
		}

		err := p.PollOnce(ctx)
		if err == nil {
			failures = 0
			continue
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			p.logger.Info("bot poller stopped", slog.Int64("offset", p.offset))
			return nil
		}

		failures++
		metrics.BotPollFailuresTotal.Inc()
		if failures > p.maxFailures {
			p.logger.Error("fetch updates failed, giving up",
				slog.Int("failures", failures),
				slog.String("error", err.Error()))
			return fmt.Errorf("fetch updates: %d consecutive failures: %w", failures, err)
		}

		wait := time.Duration(failures) * p.backoff
		p.logger.Warn("fetch updates failed, retrying",
			slog.Int("failures", failures),
			slog.Duration("backoff", wait),
			slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			p.logger.Info("bot poller stopped", slog.Int64("offset", p.offset))
			return nil
		case <-time.After(wait):
		}
	}
}

// PollOnce 拉取一批消息并逐条处理。只有拉取本身失败时返回错误。
func (p *Poller) PollOnce(ctx context.Context) error {
	updates, err := p.transport.FetchUpdates(ctx, p.offset)
	if err != nil {
		return err
	}
	for _, u := range updates {
		if u.ID < p.offset {
			continue
		}
		p.process(ctx, u)
		p.offset = u.ID + 1
		metrics.BotOffset.Set(float64(p.offset))

		// 已处理完当前消息，停机时不再开始下一条
		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

// process 处理单条消息，panic 与错误都不会中断轮询。
func (p *Poller) process(ctx context.Context, u tg.Update) {
	defer func() {
		if r := recover(); r != nil {
			metrics.BotUpdatesTotal.WithLabelValues("panic").Inc()
			p.logger.Error("update handler panic recovered",
				slog.Int64("update_id", u.ID),
				slog.Int64("chat_id", u.ChatID),
				slog.Any("panic", r))
		}
	}()

	if u.ChatID == 0 {
		metrics.BotUpdatesTotal.WithLabelValues("skipped").Inc()
		return
	}

	seen, err := p.guard.Seen(ctx, u.ID)
	if err != nil {
		p.logger.Warn("dedup check failed", slog.Int64("update_id", u.ID), slog.String("error", err.Error()))
	}
	if seen {
		metrics.BotUpdatesTotal.WithLabelValues("duplicate").Inc()
		p.logger.Debug("duplicate update skipped", slog.Int64("update_id", u.ID))
		return
	}
	defer func() {
		if err := p.guard.Mark(ctx, u.ID); err != nil {
			p.logger.Warn("dedup mark failed", slog.Int64("update_id", u.ID), slog.String("error", err.Error()))
		}
	}()

	identity, err := p.identities.ResolveChat(ctx, u.ChatID, u.Username)
	if err != nil {
		metrics.BotUpdatesTotal.WithLabelValues("error").Inc()
		p.logger.Error("resolve chat failed", slog.Int64("chat_id", u.ChatID), slog.String("error", err.Error()))
		return
	}

	if !identity.Verified() {
		p.sendVerificationCode(ctx, identity)
		metrics.BotUpdatesTotal.WithLabelValues("unverified").Inc()
		return
	}

	if err := p.handler.Handle(ctx, u.ChatID, *identity.UserID, u.Text); err != nil {
		metrics.BotUpdatesTotal.WithLabelValues("error").Inc()
		p.logger.Error("handle message failed",
			slog.Int64("update_id", u.ID),
			slog.Int64("chat_id", u.ChatID),
			slog.String("error", err.Error()))
		return
	}
	metrics.BotUpdatesTotal.WithLabelValues("handled").Inc()
}

func (p *Poller) sendVerificationCode(ctx context.Context, identity *model.TgUser) {
	code, err := p.identities.IssueVerificationCode(ctx, identity)
	if err != nil {
		p.logger.Error("issue verification code failed", slog.Int64("chat_id", identity.ChatID), slog.String("error", err.Error()))
		return
	}
	if err := p.transport.SendMessage(ctx, identity.ChatID, ReplyVerification+" "+code); err != nil {
		metrics.BotMessagesSentTotal.WithLabelValues("failure").Inc()
		p.logger.Error("send verification code failed", slog.Int64("chat_id", identity.ChatID), slog.String("error", err.Error()))
		return
	}
	metrics.BotMessagesSentTotal.WithLabelValues("success").Inc()
}
