package goals

import (
	"context"
	"fmt"
	"log/slog"

	"todolist/internal/model"
	"todolist/internal/policy"
	"todolist/internal/store"
)

// CategoryInput 新建分类参数。
type CategoryInput struct {
	BoardID uint
	Title   string
}

// CreateCategory 在看板上新建分类，需要 owner 或 writer。
func (s *Service) CreateCategory(ctx context.Context, actorID uint, in CategoryInput) (*model.GoalCategory, error) {
	title, err := cleanTitle("title", in.Title)
	if err != nil {
		return nil, err
	}
	if in.BoardID == 0 {
		return nil, invalid("board", "This field is required.")
	}
	if err := s.policy.Authorize(ctx, actorID, policy.Resource{Kind: policy.KindCategory, BoardID: in.BoardID}, policy.OpWrite); err != nil {
		return nil, err
	}
	cat := &model.GoalCategory{BoardID: in.BoardID, UserID: actorID, Title: title}
	if err := s.store.CreateCategory(ctx, cat); err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	return cat, nil
}

// ListCategories 列出可见分类。
func (s *Service) ListCategories(ctx context.Context, actorID uint, f store.CategoryFilter) ([]model.GoalCategory, error) {
	return s.store.ListCategories(ctx, actorID, f)
}

// GetCategory 读取分类。
func (s *Service) GetCategory(ctx context.Context, actorID, categoryID uint) (*model.GoalCategory, error) {
	return s.store.GetCategory(ctx, actorID, categoryID)
}

// UpdateCategory 修改分类标题，分类所属看板不可变。
func (s *Service) UpdateCategory(ctx context.Context, actorID, categoryID uint, title *string) (*model.GoalCategory, error) {
	cat, err := s.writableCategory(ctx, actorID, categoryID)
	if err != nil {
		return nil, err
	}
	if title == nil {
		return cat, nil
	}
	t, err := cleanTitle("title", *title)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateCategoryTitle(ctx, cat.ID, t); err != nil {
		return nil, fmt.Errorf("update category: %w", err)
	}
	cat.Title = t
	return cat, nil
}

// DeleteCategory 软删除分类并归档其目标。
func (s *Service) DeleteCategory(ctx context.Context, actorID, categoryID uint) error {
	cat, err := s.writableCategory(ctx, actorID, categoryID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteCategory(ctx, cat.ID); err != nil {
		s.logger.Error("delete category failed", slog.Uint64("category_id", uint64(cat.ID)), slog.String("error", err.Error()))
		return fmt.Errorf("delete category: %w", err)
	}
	s.logger.Info("category deleted", slog.Uint64("category_id", uint64(cat.ID)), slog.Uint64("user_id", uint64(actorID)))
	return nil
}

// WritableCategories 列出调用者可以在其中创建目标的分类。
func (s *Service) WritableCategories(ctx context.Context, actorID uint) ([]model.GoalCategory, error) {
	return s.store.WritableCategories(ctx, actorID)
}

// CheckCategoryWritable 返回调用者可写入的分类。
//
// 不存在、已删除、不可见时返回 store.ErrNotFound；可见但只读返回 policy.ErrPermissionDenied。
func (s *Service) CheckCategoryWritable(ctx context.Context, actorID, categoryID uint) (*model.GoalCategory, error) {
	return s.writableCategory(ctx, actorID, categoryID)
}

func (s *Service) writableCategory(ctx context.Context, actorID, categoryID uint) (*model.GoalCategory, error) {
	cat, err := s.store.GetCategory(ctx, actorID, categoryID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(ctx, actorID, policy.Resource{Kind: policy.KindCategory, BoardID: cat.BoardID}, policy.OpWrite); err != nil {
		return nil, err
	}
	return cat, nil
}
