package store

import (
	"context"

	"todolist/internal/model"
)

// CreateUser 新建用户。用户名冲突时返回数据库错误。
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	return s.db.WithContext(ctx).Create(user).Error
}

// GetUser 按 ID 查询用户。
func (s *Store) GetUser(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// GetUserByUsername 按用户名查询用户。
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// UsernameTaken 判断用户名是否已被其他用户占用。
func (s *Store) UsernameTaken(ctx context.Context, username string, exceptID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.User{}).
		Where("username = ? AND id <> ?", username, exceptID).
		Count(&count).Error
	return count > 0, err
}

// UpdateUserProfile 更新资料字段（不含密码）。
func (s *Store) UpdateUserProfile(ctx context.Context, user *model.User) error {
	return s.db.WithContext(ctx).Model(user).Updates(map[string]any{
		"username":   user.Username,
		"first_name": user.FirstName,
		"last_name":  user.LastName,
		"email":      user.Email,
	}).Error
}

// UpdateUserPassword 写入新的密码哈希。
func (s *Store) UpdateUserPassword(ctx context.Context, userID uint, hash string) error {
	return s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Update("password", hash).Error
}

// UsersByUsername 批量按用户名查询，返回 username → user。
func (s *Store) UsersByUsername(ctx context.Context, usernames []string) (map[string]model.User, error) {
	out := make(map[string]model.User, len(usernames))
	if len(usernames) == 0 {
		return out, nil
	}
	var users []model.User
	if err := s.db.WithContext(ctx).Where("username IN ?", usernames).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.Username] = u
	}
	return out, nil
}
