package goals

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"todolist/internal/model"
	"todolist/internal/policy"
	"todolist/internal/store"
)

// CreateComment 在可见目标下新建评论，任何参与者都可以评论。
func (s *Service) CreateComment(ctx context.Context, actorID, goalID uint, text string) (*model.GoalComment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid("text", "This field may not be blank.")
	}
	goal, err := s.store.GetGoal(ctx, actorID, goalID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, invalid("goal", "Goal does not exist.")
	}
	if err != nil {
		return nil, err
	}
	res := policy.Resource{Kind: policy.KindComment, BoardID: goal.Category.BoardID, CreatorID: actorID}
	if err := s.policy.Authorize(ctx, actorID, res, policy.OpModifyComment); err != nil {
		return nil, err
	}

	c := &model.GoalComment{GoalID: goal.ID, UserID: actorID, Text: text}
	if err := s.store.CreateComment(ctx, c); err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	return c, nil
}

// ListComments 列出可见评论，最新在前。
func (s *Service) ListComments(ctx context.Context, actorID uint, f store.CommentFilter) ([]model.GoalComment, error) {
	return s.store.ListComments(ctx, actorID, f)
}

// GetComment 读取评论，看板任意参与者可读。
func (s *Service) GetComment(ctx context.Context, actorID, commentID uint) (*model.GoalComment, error) {
	c, _, err := s.store.GetComment(ctx, actorID, commentID)
	return c, err
}

// UpdateComment 修改评论内容，仅作者本人。
func (s *Service) UpdateComment(ctx context.Context, actorID, commentID uint, text string) (*model.GoalComment, error) {
	c, err := s.ownComment(ctx, actorID, commentID)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid("text", "This field may not be blank.")
	}
	if err := s.store.UpdateCommentText(ctx, c.ID, text); err != nil {
		return nil, fmt.Errorf("update comment: %w", err)
	}
	c.Text = text
	return c, nil
}

// DeleteComment 删除评论，仅作者本人。
func (s *Service) DeleteComment(ctx context.Context, actorID, commentID uint) error {
	c, err := s.ownComment(ctx, actorID, commentID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteComment(ctx, c.ID); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}

func (s *Service) ownComment(ctx context.Context, actorID, commentID uint) (*model.GoalComment, error) {
	c, boardID, err := s.store.GetComment(ctx, actorID, commentID)
	if err != nil {
		return nil, err
	}
	res := policy.Resource{Kind: policy.KindComment, BoardID: boardID, CreatorID: c.UserID}
	if err := s.policy.Authorize(ctx, actorID, res, policy.OpModifyComment); err != nil {
		return nil, err
	}
	return c, nil
}
