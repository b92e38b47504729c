package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"todolist/internal/model"

	"gorm.io/gorm"
)

// ResolveChat 按聊天 ID 查找身份，不存在时创建未验证的身份。
func (s *Store) ResolveChat(ctx context.Context, chatID int64, username string) (*model.TgUser, error) {
	var tg model.TgUser
	err := s.db.WithContext(ctx).
		Where(model.TgUser{ChatID: chatID}).
		Attrs(model.TgUser{Username: username}).
		FirstOrCreate(&tg).Error
	if err != nil {
		return nil, fmt.Errorf("resolve chat %d: %w", chatID, err)
	}
	if username != "" && tg.Username != username {
		if err := s.db.WithContext(ctx).Model(&tg).Update("username", username).Error; err != nil {
			return nil, err
		}
	}
	return &tg, nil
}

// IssueVerificationCode 为聊天身份生成新的一次性验证码并保存。
func (s *Store) IssueVerificationCode(ctx context.Context, tg *model.TgUser) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", err
	}
	if err := s.db.WithContext(ctx).Model(tg).Update("verification_code", code).Error; err != nil {
		return "", err
	}
	tg.VerificationCode = code
	return code, nil
}

// LinkChat 通过验证码把聊天身份绑定到 userID。
//
// 绑定只会发生一次：条件更新带 user_id IS NULL，已绑定时返回 ErrAlreadyLinked。
func (s *Store) LinkChat(ctx context.Context, code string, userID uint) (*model.TgUser, error) {
	if code == "" {
		return nil, ErrNotFound
	}
	var tg model.TgUser
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("verification_code = ?", code).First(&tg).Error; err != nil {
			return notFound(err)
		}
		if tg.Verified() {
			return ErrAlreadyLinked
		}
		res := tx.Model(&model.TgUser{}).
			Where("id = ? AND user_id IS NULL", tg.ID).
			Updates(map[string]any{"user_id": userID, "verification_code": ""})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyLinked
		}
		tg.UserID = &userID
		tg.VerificationCode = ""
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &tg, nil
}

func generateCode() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
