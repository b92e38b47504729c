package store

import (
	"context"
	"strings"

	"todolist/internal/model"
	"todolist/internal/pkg/metrics"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BoardFilter 看板列表过滤条件。
type BoardFilter struct {
	Search string
}

// ParticipantChange 描述替换后某个非 owner 参与者的角色。
type ParticipantChange struct {
	UserID uint
	Role   model.Role
}

// visibleBoards 限定为 userID 参与且未删除的看板。
func visibleBoards(db *gorm.DB, userID uint) *gorm.DB {
	return db.Model(&model.Board{}).
		Joins("JOIN board_participants bp ON bp.board_id = boards.id AND bp.user_id = ?", userID).
		Where("boards.is_deleted = ?", false)
}

// CreateBoard 创建看板，并在同一事务中为 ownerID 写入 owner 参与者。
func (s *Store) CreateBoard(ctx context.Context, board *model.Board, ownerID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Participants").Create(board).Error; err != nil {
			return err
		}
		owner := model.BoardParticipant{BoardID: board.ID, UserID: ownerID, Role: model.RoleOwner}
		if err := tx.Create(&owner).Error; err != nil {
			return err
		}
		board.Participants = []model.BoardParticipant{owner}
		return nil
	})
}

// ListBoards 返回 userID 可见的看板，按标题升序。
func (s *Store) ListBoards(ctx context.Context, userID uint, f BoardFilter) ([]model.Board, error) {
	q := visibleBoards(s.db.WithContext(ctx), userID).Select("boards.*")
	if f.Search != "" {
		q = q.Where("LOWER(boards.title) LIKE ?", likePattern(f.Search))
	}
	var boards []model.Board
	if err := q.Order("boards.title ASC, boards.id ASC").Find(&boards).Error; err != nil {
		return nil, err
	}
	return boards, nil
}

// GetBoard 返回 userID 可见的看板及其参与者。
func (s *Store) GetBoard(ctx context.Context, userID, boardID uint) (*model.Board, error) {
	var board model.Board
	err := visibleBoards(s.db.WithContext(ctx), userID).
		Select("boards.*").
		Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("board_participants.id ASC") }).
		Preload("Participants.User").
		Where("boards.id = ?", boardID).
		First(&board).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &board, nil
}

// ParticipantRole 返回 userID 在未删除看板 boardID 上的角色。
//
// 非参与者或看板已删除时返回 ErrNotFound。
func (s *Store) ParticipantRole(ctx context.Context, boardID, userID uint) (model.Role, error) {
	var p model.BoardParticipant
	err := s.db.WithContext(ctx).
		Joins("JOIN boards ON boards.id = board_participants.board_id").
		Where("board_participants.board_id = ? AND board_participants.user_id = ? AND boards.is_deleted = ?", boardID, userID, false).
		First(&p).Error
	if err != nil {
		return "", notFound(err)
	}
	return p.Role, nil
}

// UpdateBoard 在一个事务内更新标题并按需替换参与者列表。
//
// participants 为 nil 时不修改参与者；owner 行永远不会被修改或删除，
// 列表中出现的 owner 用户会被忽略。MySQL 下先对看板行加 FOR UPDATE 锁，
// 串行化并发的替换请求。
func (s *Store) UpdateBoard(ctx context.Context, boardID uint, title *string, participants []ParticipantChange) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lock := tx
		if tx.Dialector.Name() == "mysql" {
			lock = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var board model.Board
		if err := lock.Where("id = ? AND is_deleted = ?", boardID, false).First(&board).Error; err != nil {
			return notFound(err)
		}

		if title != nil {
			if err := tx.Model(&board).Update("title", *title).Error; err != nil {
				return err
			}
		}
		if participants == nil {
			return nil
		}
		return replaceParticipants(tx, boardID, participants)
	})
}

func replaceParticipants(tx *gorm.DB, boardID uint, incoming []ParticipantChange) error {
	var current []model.BoardParticipant
	if err := tx.Where("board_id = ?", boardID).Find(&current).Error; err != nil {
		return err
	}

	owners := make(map[uint]bool)
	existing := make(map[uint]model.BoardParticipant)
	for _, p := range current {
		if p.Role == model.RoleOwner {
			owners[p.UserID] = true
			continue
		}
		existing[p.UserID] = p
	}

	wanted := make(map[uint]model.Role, len(incoming))
	for _, p := range incoming {
		if owners[p.UserID] {
			continue
		}
		wanted[p.UserID] = p.Role
	}

	for userID, old := range existing {
		role, keep := wanted[userID]
		switch {
		case !keep:
			if err := tx.Delete(&model.BoardParticipant{}, old.ID).Error; err != nil {
				return err
			}
		case role != old.Role:
			if err := tx.Model(&model.BoardParticipant{}).Where("id = ?", old.ID).Update("role", role).Error; err != nil {
				return err
			}
		}
	}
	for _, p := range incoming {
		if owners[p.UserID] {
			continue
		}
		if _, ok := existing[p.UserID]; ok {
			continue
		}
		row := model.BoardParticipant{BoardID: boardID, UserID: p.UserID, Role: wanted[p.UserID]}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		existing[p.UserID] = row
	}
	return nil
}

// DeleteBoard 软删除看板，级联软删除其分类并归档分类下的目标。
//
// 三步写入在同一事务中执行，任一步失败整体回滚。
func (s *Store) DeleteBoard(ctx context.Context, boardID uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Board{}).Where("id = ?", boardID).Update("is_deleted", true).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.GoalCategory{}).Where("board_id = ?", boardID).Update("is_deleted", true).Error; err != nil {
			return err
		}
		categories := tx.Model(&model.GoalCategory{}).Select("id").Where("board_id = ?", boardID)
		return tx.Model(&model.Goal{}).
			Where("category_id IN (?)", categories).
			Update("status", model.StatusArchived).Error
	})
	observeCascade("board", err)
	return err
}

func observeCascade(kind string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.CascadeDeletesTotal.WithLabelValues(kind, result).Inc()
}

func likePattern(search string) string {
	return "%" + strings.ToLower(strings.TrimSpace(search)) + "%"
}
