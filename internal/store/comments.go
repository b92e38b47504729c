package store

import (
	"context"

	"todolist/internal/model"

	"gorm.io/gorm"
)

// CommentFilter 评论列表过滤条件。
type CommentFilter struct {
	GoalID *uint
}

// visibleComments 限定为 userID 参与看板下的评论，任何角色都可读。
func visibleComments(db *gorm.DB, userID uint) *gorm.DB {
	return db.Model(&model.GoalComment{}).
		Joins("JOIN goals g ON g.id = goal_comments.goal_id").
		Joins("JOIN goal_categories gc ON gc.id = g.category_id").
		Joins("JOIN boards b ON b.id = gc.board_id").
		Joins("JOIN board_participants bp ON bp.board_id = gc.board_id AND bp.user_id = ?", userID).
		Where("b.is_deleted = ?", false)
}

// CreateComment 新建评论。
func (s *Store) CreateComment(ctx context.Context, c *model.GoalComment) error {
	return s.db.WithContext(ctx).Omit("User").Create(c).Error
}

// ListComments 返回 userID 可见的评论，最新在前。
func (s *Store) ListComments(ctx context.Context, userID uint, f CommentFilter) ([]model.GoalComment, error) {
	q := visibleComments(s.db.WithContext(ctx), userID).Select("goal_comments.*").Preload("User")
	if f.GoalID != nil {
		q = q.Where("goal_comments.goal_id = ?", *f.GoalID)
	}
	var comments []model.GoalComment
	if err := q.Order("goal_comments.created_at DESC, goal_comments.id DESC").Find(&comments).Error; err != nil {
		return nil, err
	}
	return comments, nil
}

// GetComment 返回 userID 可见的评论及其所属看板 ID。
func (s *Store) GetComment(ctx context.Context, userID, commentID uint) (*model.GoalComment, uint, error) {
	var comment model.GoalComment
	err := visibleComments(s.db.WithContext(ctx), userID).
		Select("goal_comments.*").
		Preload("User").
		Where("goal_comments.id = ?", commentID).
		First(&comment).Error
	if err != nil {
		return nil, 0, notFound(err)
	}
	boardID, err := s.goalBoardID(ctx, comment.GoalID)
	if err != nil {
		return nil, 0, err
	}
	return &comment, boardID, nil
}

// goalBoardID 解析目标所属看板。
func (s *Store) goalBoardID(ctx context.Context, goalID uint) (uint, error) {
	var boardIDs []uint
	err := s.db.WithContext(ctx).Model(&model.Goal{}).
		Joins("JOIN goal_categories gc ON gc.id = goals.category_id").
		Where("goals.id = ?", goalID).
		Pluck("gc.board_id", &boardIDs).Error
	if err != nil {
		return 0, err
	}
	if len(boardIDs) == 0 {
		return 0, ErrNotFound
	}
	return boardIDs[0], nil
}

// UpdateCommentText 修改评论内容。
func (s *Store) UpdateCommentText(ctx context.Context, commentID uint, text string) error {
	return s.db.WithContext(ctx).Model(&model.GoalComment{}).Where("id = ?", commentID).Update("text", text).Error
}

// DeleteComment 物理删除评论。
func (s *Store) DeleteComment(ctx context.Context, commentID uint) error {
	return s.db.WithContext(ctx).Delete(&model.GoalComment{}, commentID).Error
}
