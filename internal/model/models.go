package model

import (
	"time"
)

// Role 表示看板参与者的权限级别。
type Role string

const (
	RoleOwner  Role = "owner"  // 所有者，每个看板唯一
	RoleWriter Role = "writer" // 可创建与修改分类、目标
	RoleReader Role = "reader" // 只读
)

// Valid 判断角色取值是否合法。
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleWriter, RoleReader:
		return true
	}
	return false
}

// GoalStatus 目标状态。
type GoalStatus string

const (
	StatusToDo       GoalStatus = "to_do"
	StatusInProgress GoalStatus = "in_progress"
	StatusDone       GoalStatus = "done"
	StatusArchived   GoalStatus = "archived" // 逻辑删除
)

// Valid 判断状态取值是否合法。
func (s GoalStatus) Valid() bool {
	switch s {
	case StatusToDo, StatusInProgress, StatusDone, StatusArchived:
		return true
	}
	return false
}

// GoalPriority 目标优先级。
type GoalPriority string

const (
	PriorityLow      GoalPriority = "low"
	PriorityMedium   GoalPriority = "medium"
	PriorityHigh     GoalPriority = "high"
	PriorityCritical GoalPriority = "critical"
)

// Valid 判断优先级取值是否合法。
func (p GoalPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Board 是共享与权限的边界。
//
// 软删除的看板下所有分类必须同时软删除，分类下的目标必须归档。
type Board struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time // 创建时间
	UpdatedAt time.Time // 更新时间

	Title     string `gorm:"type:varchar(255);not null"`
	IsDeleted bool   `gorm:"not null;default:false"` // 软删除标记

	Participants []BoardParticipant `gorm:"foreignKey:BoardID"`
}

// BoardParticipant 是看板与用户的关联，携带角色。
//
// (BoardID, UserID) 唯一，每个看板恰有一个 owner。
type BoardParticipant struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	BoardID uint `gorm:"not null;uniqueIndex:idx_board_user"`
	UserID  uint `gorm:"not null;uniqueIndex:idx_board_user"`
	Role    Role `gorm:"type:varchar(16);not null;default:reader"`
	User    User `gorm:"foreignKey:UserID"`
}

// GoalCategory 属于一个看板，由某个用户创建。
type GoalCategory struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	BoardID   uint   `gorm:"not null;index"`
	Board     Board  `gorm:"foreignKey:BoardID"`
	UserID    uint   `gorm:"not null"` // 创建者
	Title     string `gorm:"type:varchar(255);not null"`
	IsDeleted bool   `gorm:"not null;default:false"`
}

// Goal 是分类下的具体目标，删除只会把状态置为 archived。
type Goal struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	CategoryID  uint         `gorm:"not null;index"`
	Category    GoalCategory `gorm:"foreignKey:CategoryID"`
	UserID      uint         `gorm:"not null;index"` // 创建者
	Title       string       `gorm:"type:varchar(255);not null"`
	Description string       `gorm:"type:text"`
	DueDate     *time.Time
	Status      GoalStatus   `gorm:"type:varchar(16);not null;default:to_do"`
	Priority    GoalPriority `gorm:"type:varchar(16);not null;default:medium"`
}

// GoalComment 目标评论，可物理删除。
type GoalComment struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	GoalID uint   `gorm:"not null;index"`
	UserID uint   `gorm:"not null"`
	User   User   `gorm:"foreignKey:UserID"`
	Text   string `gorm:"type:text;not null"`
}

// All 返回需要迁移的全部模型。
func All() []any {
	return []any{
		&User{},
		&Board{},
		&BoardParticipant{},
		&GoalCategory{},
		&Goal{},
		&GoalComment{},
		&TgUser{},
	}
}
