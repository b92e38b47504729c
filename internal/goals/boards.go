package goals

import (
	"context"
	"fmt"
	"log/slog"

	"todolist/internal/model"
	"todolist/internal/policy"
	"todolist/internal/store"
)

// ParticipantInput 参与者替换请求中的一项。
type ParticipantInput struct {
	Username string
	Role     model.Role
}

// BoardPatch 看板部分更新，nil 字段保持不变。
type BoardPatch struct {
	Title        *string
	Participants *[]ParticipantInput
}

// CreateBoard 创建看板，调用者成为 owner。
func (s *Service) CreateBoard(ctx context.Context, actorID uint, title string) (*model.Board, error) {
	title, err := cleanTitle("title", title)
	if err != nil {
		return nil, err
	}
	board := &model.Board{Title: title}
	if err := s.store.CreateBoard(ctx, board, actorID); err != nil {
		return nil, fmt.Errorf("create board: %w", err)
	}
	return board, nil
}

// ListBoards 列出调用者参与的看板。
func (s *Service) ListBoards(ctx context.Context, actorID uint, f store.BoardFilter) ([]model.Board, error) {
	return s.store.ListBoards(ctx, actorID, f)
}

// GetBoard 读取看板详情。
func (s *Service) GetBoard(ctx context.Context, actorID, boardID uint) (*model.Board, error) {
	return s.store.GetBoard(ctx, actorID, boardID)
}

// UpdateBoard 修改标题或整体替换参与者，仅 owner 可调用。
//
// 参与者列表中不允许出现 owner 角色，也不允许包含 owner 本人。
func (s *Service) UpdateBoard(ctx context.Context, actorID, boardID uint, patch BoardPatch) (*model.Board, error) {
	board, err := s.store.GetBoard(ctx, actorID, boardID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(ctx, actorID, policy.Resource{Kind: policy.KindBoard, BoardID: board.ID}, policy.OpManageBoard); err != nil {
		return nil, err
	}

	var title *string
	if patch.Title != nil {
		t, err := cleanTitle("title", *patch.Title)
		if err != nil {
			return nil, err
		}
		title = &t
	}

	var changes []store.ParticipantChange
	if patch.Participants != nil {
		changes, err = s.resolveParticipants(ctx, board, *patch.Participants)
		if err != nil {
			return nil, err
		}
	}

	if err := s.store.UpdateBoard(ctx, board.ID, title, changes); err != nil {
		return nil, fmt.Errorf("update board: %w", err)
	}
	return s.store.GetBoard(ctx, actorID, boardID)
}

func (s *Service) resolveParticipants(ctx context.Context, board *model.Board, in []ParticipantInput) ([]store.ParticipantChange, error) {
	owners := make(map[uint]bool)
	for _, p := range board.Participants {
		if p.Role == model.RoleOwner {
			owners[p.UserID] = true
		}
	}

	names := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, p := range in {
		if p.Role == model.RoleOwner || !p.Role.Valid() {
			return nil, invalid("participants", fmt.Sprintf("%q is not a valid choice.", p.Role))
		}
		if seen[p.Username] {
			return nil, invalid("participants", fmt.Sprintf("user %q listed twice", p.Username))
		}
		seen[p.Username] = true
		names = append(names, p.Username)
	}

	users, err := s.store.UsersByUsername(ctx, names)
	if err != nil {
		return nil, err
	}
	// 非 nil，区分“清空参与者”与“不修改”
	changes := make([]store.ParticipantChange, 0, len(in))
	for _, p := range in {
		u, ok := users[p.Username]
		if !ok {
			return nil, invalid("participants", fmt.Sprintf("user %q does not exist", p.Username))
		}
		if owners[u.ID] {
			return nil, invalid("participants", "the board owner cannot be reassigned")
		}
		changes = append(changes, store.ParticipantChange{UserID: u.ID, Role: p.Role})
	}
	return changes, nil
}

// DeleteBoard 软删除看板并级联，仅 owner 可调用。
func (s *Service) DeleteBoard(ctx context.Context, actorID, boardID uint) error {
	board, err := s.store.GetBoard(ctx, actorID, boardID)
	if err != nil {
		return err
	}
	if err := s.policy.Authorize(ctx, actorID, policy.Resource{Kind: policy.KindBoard, BoardID: board.ID}, policy.OpManageBoard); err != nil {
		return err
	}
	if err := s.store.DeleteBoard(ctx, board.ID); err != nil {
		s.logger.Error("delete board failed", slog.Uint64("board_id", uint64(board.ID)), slog.String("error", err.Error()))
		return fmt.Errorf("delete board: %w", err)
	}
	s.logger.Info("board deleted", slog.Uint64("board_id", uint64(board.ID)), slog.Uint64("user_id", uint64(actorID)))
	return nil
}
