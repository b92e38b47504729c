// Package tg 是 Telegram Bot API 的传输客户端：长轮询拉取 update 与发送文本消息。
package tg

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrTransport 表示与 Bot API 的通信失败。
var ErrTransport = errors.New("chat transport failure")

// Update 拉取到的一条入站消息，已展平为业务需要的字段。
//
// 非文本消息（编辑、回调等）的 ChatID 为 0，调用方只需推进游标。
type Update struct {
	ID       int64
	ChatID   int64
	Username string
	Text     string
}

// Limiter 发送前的限流钩子。
type Limiter interface {
	Wait(ctx context.Context, chatID int64) error
}

// Client Bot API 客户端。
type Client struct {
	token       string
	endpoint    string // tgbotapi 端点模板，形如 <apiURL>/bot%s/%s
	httpClient  *http.Client
	pollTimeout time.Duration
	limiter     Limiter
}

// Option 客户端选项。
type Option func(*Client)

// WithLimiter 设置发送限流。
func WithLimiter(l Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithHTTPClient 替换底层 HTTP 客户端。
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// NewClient 创建客户端。不会在创建时调用 getMe，令牌错误在首次请求时暴露。
//
// 参数:
//
//	apiURL: Bot API 根地址，如 https://api.telegram.org
//	token: Bot 令牌
//	pollTimeout: getUpdates 长轮询秒数
func NewClient(apiURL, token string, pollTimeout time.Duration, opts ...Option) *Client {
	c := &Client{
		token:       token,
		endpoint:    strings.TrimRight(apiURL, "/") + "/bot%s/%s",
		pollTimeout: pollTimeout,
		httpClient:  &http.Client{Timeout: pollTimeout + 10*time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ctxDoer 把调用方的 ctx 绑定到 tgbotapi 发出的每个请求上。
type ctxDoer struct {
	ctx  context.Context
	base *http.Client
}

func (d ctxDoer) Do(req *http.Request) (*http.Response, error) {
	return d.base.Do(req.WithContext(d.ctx))
}

// api 返回绑定了 ctx 的 BotAPI。
func (c *Client) api(ctx context.Context) *tgbotapi.BotAPI {
	bot := &tgbotapi.BotAPI{
		Token:  c.token,
		Client: ctxDoer{ctx: ctx, base: c.httpClient},
		Buffer: 100,
	}
	bot.SetAPIEndpoint(c.endpoint)
	return bot
}

// FetchUpdates 拉取 ID >= offset 的 update，按 ID 升序返回。
func (c *Client) FetchUpdates(ctx context.Context, offset int64) ([]Update, error) {
	raw, err := c.api(ctx).GetUpdates(tgbotapi.UpdateConfig{
		Offset:  int(offset),
		Timeout: int(c.pollTimeout / time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get updates: %v", ErrTransport, err)
	}

	updates := make([]Update, 0, len(raw))
	for _, r := range raw {
		u := Update{ID: int64(r.UpdateID)}
		if m := r.Message; m != nil && m.Chat != nil {
			u.ChatID = m.Chat.ID
			u.Text = m.Text
			if m.From != nil {
				u.Username = m.From.UserName
			}
		}
		updates = append(updates, u)
	}
	return updates, nil
}

// SendMessage 向 chatID 发送文本。
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, chatID); err != nil {
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}
	}
	if _, err := c.api(ctx).Request(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("%w: send message: %v", ErrTransport, err)
	}
	return nil
}
