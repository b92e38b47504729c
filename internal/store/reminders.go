package store

import (
	"context"
	"time"

	"todolist/internal/model"
)

// DueReminder 即将到期的目标及其创建者的联系方式。
//
// ChatID 为 0 表示创建者尚未绑定聊天。
type DueReminder struct {
	GoalID  uint
	Title   string
	DueDate time.Time
	ChatID  int64
	Email   string
}

// DueGoalReminders 返回截止时间落在 [from, to] 内、创建者可被联系到的未完成目标。
//
// 已完成、已归档以及所在分类或看板已删除的目标不会出现在结果里。
func (s *Store) DueGoalReminders(ctx context.Context, from, to time.Time) ([]DueReminder, error) {
	var out []DueReminder
	err := s.db.WithContext(ctx).
		Model(&model.Goal{}).
		Select("goals.id AS goal_id, goals.title AS title, goals.due_date AS due_date, "+
			"COALESCE(t.chat_id, 0) AS chat_id, COALESCE(u.email, '') AS email").
		Joins("JOIN goal_categories gc ON gc.id = goals.category_id").
		Joins("JOIN boards b ON b.id = gc.board_id").
		Joins("JOIN users u ON u.id = goals.user_id").
		Joins("LEFT JOIN tg_users t ON t.user_id = goals.user_id").
		Where("goals.status NOT IN ?", []model.GoalStatus{model.StatusDone, model.StatusArchived}).
		Where("gc.is_deleted = ? AND b.is_deleted = ?", false, false).
		Where("goals.due_date IS NOT NULL AND goals.due_date >= ? AND goals.due_date <= ?", from, to).
		Where("(t.chat_id IS NOT NULL OR u.email <> '')").
		Order("goals.due_date ASC, goals.id ASC").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
