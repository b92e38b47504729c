package store

import (
	"context"

	"todolist/internal/model"

	"gorm.io/gorm"
)

// CategoryFilter 分类列表过滤条件。
type CategoryFilter struct {
	BoardID  *uint
	Search   string
	Ordering string // title / -title / created / -created
}

var categoryOrdering = map[string]string{
	"title":    "goal_categories.title ASC, goal_categories.id ASC",
	"-title":   "goal_categories.title DESC, goal_categories.id DESC",
	"created":  "goal_categories.created_at ASC, goal_categories.id ASC",
	"-created": "goal_categories.created_at DESC, goal_categories.id DESC",
}

// visibleCategories 限定为 userID 参与的未删除看板下的未删除分类。
func visibleCategories(db *gorm.DB, userID uint) *gorm.DB {
	return db.Model(&model.GoalCategory{}).
		Joins("JOIN boards b ON b.id = goal_categories.board_id").
		Joins("JOIN board_participants bp ON bp.board_id = goal_categories.board_id AND bp.user_id = ?", userID).
		Where("goal_categories.is_deleted = ? AND b.is_deleted = ?", false, false)
}

// CreateCategory 新建分类。
func (s *Store) CreateCategory(ctx context.Context, cat *model.GoalCategory) error {
	return s.db.WithContext(ctx).Omit("Board").Create(cat).Error
}

// ListCategories 返回 userID 可见的分类。
func (s *Store) ListCategories(ctx context.Context, userID uint, f CategoryFilter) ([]model.GoalCategory, error) {
	q := visibleCategories(s.db.WithContext(ctx), userID).Select("goal_categories.*")
	if f.BoardID != nil {
		q = q.Where("goal_categories.board_id = ?", *f.BoardID)
	}
	if f.Search != "" {
		q = q.Where("LOWER(goal_categories.title) LIKE ?", likePattern(f.Search))
	}
	order, ok := categoryOrdering[f.Ordering]
	if !ok {
		order = categoryOrdering["title"]
	}
	var cats []model.GoalCategory
	if err := q.Order(order).Find(&cats).Error; err != nil {
		return nil, err
	}
	return cats, nil
}

// GetCategory 返回 userID 可见的分类。
func (s *Store) GetCategory(ctx context.Context, userID, categoryID uint) (*model.GoalCategory, error) {
	var cat model.GoalCategory
	err := visibleCategories(s.db.WithContext(ctx), userID).
		Select("goal_categories.*").
		Where("goal_categories.id = ?", categoryID).
		First(&cat).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &cat, nil
}

// WritableCategories 返回 userID 拥有 owner 或 writer 角色的全部可用分类，附带看板。
func (s *Store) WritableCategories(ctx context.Context, userID uint) ([]model.GoalCategory, error) {
	var cats []model.GoalCategory
	err := visibleCategories(s.db.WithContext(ctx), userID).
		Select("goal_categories.*").
		Where("bp.role IN ?", []model.Role{model.RoleOwner, model.RoleWriter}).
		Preload("Board").
		Order("goal_categories.board_id ASC, goal_categories.id ASC").
		Find(&cats).Error
	if err != nil {
		return nil, err
	}
	return cats, nil
}

// UpdateCategoryTitle 修改分类标题。
func (s *Store) UpdateCategoryTitle(ctx context.Context, categoryID uint, title string) error {
	return s.db.WithContext(ctx).Model(&model.GoalCategory{}).Where("id = ?", categoryID).Update("title", title).Error
}

// DeleteCategory 软删除分类并在同一事务中归档其下所有目标。
func (s *Store) DeleteCategory(ctx context.Context, categoryID uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.GoalCategory{}).Where("id = ?", categoryID).Update("is_deleted", true).Error; err != nil {
			return err
		}
		return tx.Model(&model.Goal{}).Where("category_id = ?", categoryID).Update("status", model.StatusArchived).Error
	})
	observeCascade("category", err)
	return err
}
