package goals

import (
	"context"
	"errors"
	"strings"

	"todolist/internal/model"
	"todolist/internal/store"
)

// LinkChat 用验证码把聊天身份绑定到调用者。
func (s *Service) LinkChat(ctx context.Context, actorID uint, code string) (*model.TgUser, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, invalid("verification_code", "This field is required.")
	}
	tg, err := s.store.LinkChat(ctx, code, actorID)
	switch {
	case err == nil:
		return tg, nil
	case errors.Is(err, store.ErrNotFound):
		return nil, invalid("verification_code", "Invalid verification code.")
	case errors.Is(err, store.ErrAlreadyLinked):
		return nil, invalid("verification_code", "This chat is already linked.")
	default:
		return nil, err
	}
}
