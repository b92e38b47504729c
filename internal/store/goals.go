package store

import (
	"context"
	"time"

	"todolist/internal/model"

	"gorm.io/gorm"
)

// GoalFilter 目标列表过滤条件，对应 status__in / priority__in / category__in 等查询参数。
type GoalFilter struct {
	Statuses    []model.GoalStatus
	Priorities  []model.GoalPriority
	CategoryIDs []uint
	DueFrom     *time.Time
	DueTo       *time.Time
	Search      string
	Ordering    string // title / -title / created / -created
}

var goalOrdering = map[string]string{
	"title":    "goals.title ASC, goals.id ASC",
	"-title":   "goals.title DESC, goals.id DESC",
	"created":  "goals.created_at ASC, goals.id ASC",
	"-created": "goals.created_at DESC, goals.id DESC",
}

// visibleGoals 限定为 userID 可见分类下未归档的目标。
func visibleGoals(db *gorm.DB, userID uint) *gorm.DB {
	return db.Model(&model.Goal{}).
		Joins("JOIN goal_categories gc ON gc.id = goals.category_id").
		Joins("JOIN boards b ON b.id = gc.board_id").
		Joins("JOIN board_participants bp ON bp.board_id = gc.board_id AND bp.user_id = ?", userID).
		Where("goals.status <> ? AND gc.is_deleted = ? AND b.is_deleted = ?", model.StatusArchived, false, false)
}

// CreateGoal 新建目标。
func (s *Store) CreateGoal(ctx context.Context, goal *model.Goal) error {
	return s.db.WithContext(ctx).Omit("Category").Create(goal).Error
}

// ListGoals 返回 userID 可见的目标。
func (s *Store) ListGoals(ctx context.Context, userID uint, f GoalFilter) ([]model.Goal, error) {
	q := visibleGoals(s.db.WithContext(ctx), userID).Select("goals.*")
	if len(f.Statuses) > 0 {
		q = q.Where("goals.status IN ?", f.Statuses)
	}
	if len(f.Priorities) > 0 {
		q = q.Where("goals.priority IN ?", f.Priorities)
	}
	if len(f.CategoryIDs) > 0 {
		q = q.Where("goals.category_id IN ?", f.CategoryIDs)
	}
	if f.DueFrom != nil {
		q = q.Where("goals.due_date >= ?", *f.DueFrom)
	}
	if f.DueTo != nil {
		q = q.Where("goals.due_date <= ?", *f.DueTo)
	}
	if f.Search != "" {
		q = q.Where("LOWER(goals.title) LIKE ?", likePattern(f.Search))
	}
	order, ok := goalOrdering[f.Ordering]
	if !ok {
		order = goalOrdering["title"]
	}
	var goals []model.Goal
	if err := q.Order(order).Find(&goals).Error; err != nil {
		return nil, err
	}
	return goals, nil
}

// GetGoal 返回 userID 可见的目标，附带分类。
func (s *Store) GetGoal(ctx context.Context, userID, goalID uint) (*model.Goal, error) {
	var goal model.Goal
	err := visibleGoals(s.db.WithContext(ctx), userID).
		Select("goals.*").
		Preload("Category").
		Where("goals.id = ?", goalID).
		First(&goal).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &goal, nil
}

// OwnGoals 返回 userID 自己创建的全部目标（含已归档），按创建时间升序。
func (s *Store) OwnGoals(ctx context.Context, userID uint) ([]model.Goal, error) {
	var goals []model.Goal
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&goals).Error
	if err != nil {
		return nil, err
	}
	return goals, nil
}

// UpdateGoal 保存目标的可编辑字段。
func (s *Store) UpdateGoal(ctx context.Context, goal *model.Goal) error {
	return s.db.WithContext(ctx).Model(&model.Goal{}).Where("id = ?", goal.ID).Updates(map[string]any{
		"category_id": goal.CategoryID,
		"title":       goal.Title,
		"description": goal.Description,
		"due_date":    goal.DueDate,
		"status":      goal.Status,
		"priority":    goal.Priority,
	}).Error
}

// ArchiveGoal 逻辑删除目标。
func (s *Store) ArchiveGoal(ctx context.Context, goalID uint) error {
	return s.db.WithContext(ctx).Model(&model.Goal{}).Where("id = ?", goalID).Update("status", model.StatusArchived).Error
}

// GoalStatus 直接读取目标状态，不做可见性过滤。
func (s *Store) GoalStatus(ctx context.Context, goalID uint) (model.GoalStatus, error) {
	var goal model.Goal
	if err := s.db.WithContext(ctx).Select("status").First(&goal, goalID).Error; err != nil {
		return "", notFound(err)
	}
	return goal.Status, nil
}
