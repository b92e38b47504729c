package goals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"todolist/internal/model"
	"todolist/internal/policy"
	"todolist/internal/store"
)

// GoalInput 新建目标参数，Status/Priority 为空时使用默认值。
type GoalInput struct {
	CategoryID  uint
	Title       string
	Description string
	DueDate     *time.Time
	Status      model.GoalStatus
	Priority    model.GoalPriority
}

// GoalPatch 目标部分更新，nil 字段保持不变。
type GoalPatch struct {
	CategoryID  *uint
	Title       *string
	Description *string
	DueDate     *time.Time
	Status      *model.GoalStatus
	Priority    *model.GoalPriority
}

// CreateGoal 在分类下新建目标，需要分类所在看板的 owner 或 writer。
func (s *Service) CreateGoal(ctx context.Context, actorID uint, in GoalInput) (*model.Goal, error) {
	title, err := cleanTitle("title", in.Title)
	if err != nil {
		return nil, err
	}
	if in.Status == "" {
		in.Status = model.StatusToDo
	}
	if in.Priority == "" {
		in.Priority = model.PriorityMedium
	}
	if !in.Status.Valid() {
		return nil, invalid("status", fmt.Sprintf("%q is not a valid choice.", in.Status))
	}
	if !in.Priority.Valid() {
		return nil, invalid("priority", fmt.Sprintf("%q is not a valid choice.", in.Priority))
	}
	if _, err := s.targetCategory(ctx, actorID, in.CategoryID); err != nil {
		return nil, err
	}

	goal := &model.Goal{
		CategoryID:  in.CategoryID,
		UserID:      actorID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		DueDate:     in.DueDate,
		Status:      in.Status,
		Priority:    in.Priority,
	}
	if err := s.store.CreateGoal(ctx, goal); err != nil {
		return nil, fmt.Errorf("create goal: %w", err)
	}
	return goal, nil
}

// ListGoals 列出可见且未归档的目标。
func (s *Service) ListGoals(ctx context.Context, actorID uint, f store.GoalFilter) ([]model.Goal, error) {
	for _, st := range f.Statuses {
		if !st.Valid() {
			return nil, invalid("status__in", fmt.Sprintf("%q is not a valid choice.", st))
		}
	}
	for _, p := range f.Priorities {
		if !p.Valid() {
			return nil, invalid("priority__in", fmt.Sprintf("%q is not a valid choice.", p))
		}
	}
	return s.store.ListGoals(ctx, actorID, f)
}

// GetGoal 读取目标。
func (s *Service) GetGoal(ctx context.Context, actorID, goalID uint) (*model.Goal, error) {
	return s.store.GetGoal(ctx, actorID, goalID)
}

// UpdateGoal 修改目标。
//
// 改挂到其它分类时，同时要求对目标分类所在看板有写权限。
func (s *Service) UpdateGoal(ctx context.Context, actorID, goalID uint, patch GoalPatch) (*model.Goal, error) {
	goal, err := s.store.GetGoal(ctx, actorID, goalID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(ctx, actorID, policy.Resource{Kind: policy.KindGoal, BoardID: goal.Category.BoardID}, policy.OpWrite); err != nil {
		return nil, err
	}

	if patch.CategoryID != nil && *patch.CategoryID != goal.CategoryID {
		dest, err := s.targetCategory(ctx, actorID, *patch.CategoryID)
		if err != nil {
			return nil, err
		}
		goal.CategoryID = dest.ID
		goal.Category = *dest
	}
	if patch.Title != nil {
		t, err := cleanTitle("title", *patch.Title)
		if err != nil {
			return nil, err
		}
		goal.Title = t
	}
	if patch.Description != nil {
		goal.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.DueDate != nil {
		goal.DueDate = patch.DueDate
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, invalid("status", fmt.Sprintf("%q is not a valid choice.", *patch.Status))
		}
		goal.Status = *patch.Status
	}
	if patch.Priority != nil {
		if !patch.Priority.Valid() {
			return nil, invalid("priority", fmt.Sprintf("%q is not a valid choice.", *patch.Priority))
		}
		goal.Priority = *patch.Priority
	}

	if err := s.store.UpdateGoal(ctx, goal); err != nil {
		return nil, fmt.Errorf("update goal: %w", err)
	}
	return goal, nil
}

// DeleteGoal 归档目标，不删除记录。
func (s *Service) DeleteGoal(ctx context.Context, actorID, goalID uint) error {
	goal, err := s.store.GetGoal(ctx, actorID, goalID)
	if err != nil {
		return err
	}
	if err := s.policy.Authorize(ctx, actorID, policy.Resource{Kind: policy.KindGoal, BoardID: goal.Category.BoardID}, policy.OpWrite); err != nil {
		return err
	}
	if err := s.store.ArchiveGoal(ctx, goal.ID); err != nil {
		return fmt.Errorf("archive goal: %w", err)
	}
	return nil
}

// OwnGoals 返回调用者自己创建的全部目标，按创建时间升序。
func (s *Service) OwnGoals(ctx context.Context, actorID uint) ([]model.Goal, error) {
	return s.store.OwnGoals(ctx, actorID)
}

// targetCategory 解析目标要挂载的分类并检查写权限。
func (s *Service) targetCategory(ctx context.Context, actorID, categoryID uint) (*model.GoalCategory, error) {
	if categoryID == 0 {
		return nil, invalid("category", "This field is required.")
	}
	cat, err := s.writableCategory(ctx, actorID, categoryID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, invalid("category", "Category does not exist or is deleted.")
	}
	return cat, err
}
