// Package bot 实现聊天机器人：对话状态机（Handler）与顺序轮询循环（Poller）。
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"todolist/internal/bot/session"
	"todolist/internal/goals"
	"todolist/internal/model"
	"todolist/internal/pkg/metrics"
	"todolist/internal/policy"
	"todolist/internal/store"
)

// 机器人回复文本。
const (
	ReplyNoGoals          = "[you have no goals]"
	ReplyNoCategories     = "[you have no categories]"
	ReplySelectCategory   = "Select category:"
	ReplyCanceled         = "[canceled]"
	ReplyInvalidCategory  = "[Invalid category id]"
	ReplyCategoryNotFound = "[Category does not exist]"
	ReplySetTitle         = "[set title]"
	ReplyInvalidTitle     = "[Invalid title]"
	ReplyGoalCreated      = "[Goal is created]"
	ReplySomethingWrong   = "[Something went wrong]"
	ReplyUnknownCommand   = "[unknown command]"
	ReplyVerification     = "[verification_code]"
)

// Sender 发送回复。
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// GoalService 状态机用到的业务操作。
type GoalService interface {
	OwnGoals(ctx context.Context, userID uint) ([]model.Goal, error)
	WritableCategories(ctx context.Context, userID uint) ([]model.GoalCategory, error)
	CheckCategoryWritable(ctx context.Context, userID, categoryID uint) (*model.GoalCategory, error)
	CreateGoal(ctx context.Context, userID uint, in goals.GoalInput) (*model.Goal, error)
}

// Handler 对话状态机。
//
// 调用方保证同一时刻只有一个 goroutine 调用 Handle，会话读写因此不需要加锁。
type Handler struct {
	goals    GoalService
	sessions session.Storage
	sender   Sender
	logger   *slog.Logger
	now      func() time.Time
}

// NewHandler 创建状态机。
func NewHandler(svc GoalService, sessions session.Storage, sender Sender, logger *slog.Logger) *Handler {
	return &Handler{
		goals:    svc,
		sessions: sessions,
		sender:   sender,
		logger:   logger,
		now:      time.Now,
	}
}

// Handle 处理已验证用户的一条消息。
//
// 参数:
//
//	chatID: 会话 ID
//	userID: 绑定的系统用户
//	text: 消息文本
//
// 返回值:
//
//	error: 存储或业务层的意外错误；会话已被重置，用户已收到通用错误提示
func (h *Handler) Handle(ctx context.Context, chatID int64, userID uint, text string) error {
	text = strings.TrimSpace(text)

	switch text {
	case "/goals":
		return h.listGoals(ctx, chatID, userID)
	case "/create":
		return h.startCreate(ctx, chatID, userID)
	case "/cancel":
		return h.cancel(ctx, chatID)
	}

	state, err := h.sessions.Get(ctx, chatID)
	if errors.Is(err, session.ErrInvalidState) {
		h.logger.Warn("invalid session state, resetting",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()))
		return h.fail(ctx, chatID, nil)
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	switch s := state.(type) {
	case session.AwaitingCategory:
		return h.chooseCategory(ctx, chatID, userID, text)
	case session.AwaitingTitle:
		return h.createGoal(ctx, chatID, userID, s, text)
	case session.Idle:
		if strings.HasPrefix(text, "/") {
			h.reply(ctx, chatID, ReplyUnknownCommand)
		}
		return nil
	default:
		h.logger.Warn("unhandled session state", slog.Int64("chat_id", chatID), slog.String("state", fmt.Sprintf("%T", state)))
		return h.fail(ctx, chatID, nil)
	}
}

func (h *Handler) listGoals(ctx context.Context, chatID int64, userID uint) error {
	list, err := h.goals.OwnGoals(ctx, userID)
	if err != nil {
		return fmt.Errorf("list goals: %w", err)
	}
	if len(list) == 0 {
		h.reply(ctx, chatID, ReplyNoGoals)
		return nil
	}
	lines := make([]string, 0, len(list))
	for _, g := range list {
		lines = append(lines, fmt.Sprintf("#%d %s", g.ID, g.Title))
	}
	h.reply(ctx, chatID, strings.Join(lines, "\n"))
	return nil
}

func (h *Handler) startCreate(ctx context.Context, chatID int64, userID uint) error {
	cats, err := h.goals.WritableCategories(ctx, userID)
	if err != nil {
		return h.fail(ctx, chatID, fmt.Errorf("list categories: %w", err))
	}
	if err := h.transition(ctx, chatID, session.AwaitingCategory{}); err != nil {
		return err
	}
	if len(cats) == 0 {
		h.reply(ctx, chatID, ReplyNoCategories)
		return nil
	}
	lines := make([]string, 0, len(cats)+1)
	lines = append(lines, ReplySelectCategory)
	for _, c := range cats {
		lines = append(lines, fmt.Sprintf("#%d %s / %s", c.ID, c.Board.Title, c.Title))
	}
	h.reply(ctx, chatID, strings.Join(lines, "\n"))
	return nil
}

func (h *Handler) cancel(ctx context.Context, chatID int64) error {
	state, err := h.sessions.Get(ctx, chatID)
	if err != nil && !errors.Is(err, session.ErrInvalidState) {
		return fmt.Errorf("load session: %w", err)
	}
	if _, idle := state.(session.Idle); idle && err == nil {
		return nil
	}
	if err := h.transition(ctx, chatID, session.Idle{}); err != nil {
		return err
	}
	h.reply(ctx, chatID, ReplyCanceled)
	return nil
}

// chooseCategory 校验失败时保持 AwaitingCategory，不修改会话。
func (h *Handler) chooseCategory(ctx context.Context, chatID int64, userID uint, text string) error {
	id, err := strconv.ParseUint(text, 10, 64)
	if err != nil || id == 0 {
		h.reply(ctx, chatID, ReplyInvalidCategory)
		return nil
	}
	cat, err := h.goals.CheckCategoryWritable(ctx, userID, uint(id))
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, policy.ErrPermissionDenied) {
		h.reply(ctx, chatID, ReplyCategoryNotFound)
		return nil
	}
	if err != nil {
		return h.fail(ctx, chatID, fmt.Errorf("check category: %w", err))
	}
	if err := h.transition(ctx, chatID, session.AwaitingTitle{CategoryID: cat.ID}); err != nil {
		return err
	}
	h.reply(ctx, chatID, ReplySetTitle)
	return nil
}

func (h *Handler) createGoal(ctx context.Context, chatID int64, userID uint, s session.AwaitingTitle, title string) error {
	if title == "" {
		h.reply(ctx, chatID, ReplyInvalidTitle)
		return nil
	}
	now := h.now()
	goal, err := h.goals.CreateGoal(ctx, userID, goals.GoalInput{
		CategoryID: s.CategoryID,
		Title:      title,
		DueDate:    &now,
	})
	var verr *goals.ValidationError
	if errors.As(err, &verr) {
		if _, ok := verr.Fields["title"]; ok {
			h.reply(ctx, chatID, ReplyInvalidTitle)
			return nil
		}
	}
	if err != nil {
		return h.fail(ctx, chatID, fmt.Errorf("create goal: %w", err))
	}

	if err := h.transition(ctx, chatID, session.Idle{}); err != nil {
		return err
	}
	h.reply(ctx, chatID, fmt.Sprintf("%s #%d %s", ReplyGoalCreated, goal.ID, goal.Title))
	return nil
}

// fail 重置会话并回复通用错误。cause 为 nil 时不向上返回错误。
func (h *Handler) fail(ctx context.Context, chatID int64, cause error) error {
	if err := h.sessions.Delete(ctx, chatID); err != nil {
		h.logger.Error("reset session failed", slog.Int64("chat_id", chatID), slog.String("error", err.Error()))
	}
	metrics.BotSessionTransitionsTotal.WithLabelValues("any", session.Idle{}.Name()).Inc()
	h.reply(ctx, chatID, ReplySomethingWrong)
	return cause
}

func (h *Handler) transition(ctx context.Context, chatID int64, to session.State) error {
	from := "unknown"
	if cur, err := h.sessions.Get(ctx, chatID); err == nil {
		from = cur.Name()
	}
	if err := h.sessions.Set(ctx, chatID, to); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	metrics.BotSessionTransitionsTotal.WithLabelValues(from, to.Name()).Inc()
	return nil
}

// reply 发送失败只记录，不影响状态机与游标推进。
func (h *Handler) reply(ctx context.Context, chatID int64, text string) {
	if err := h.sender.SendMessage(ctx, chatID, text); err != nil {
		metrics.BotMessagesSentTotal.WithLabelValues("failure").Inc()
		h.logger.Error("send message failed", slog.Int64("chat_id", chatID), slog.String("error", err.Error()))
		return
	}
	metrics.BotMessagesSentTotal.WithLabelValues("success").Inc()
}
