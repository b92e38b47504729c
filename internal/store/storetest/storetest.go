// Package storetest 提供基于内存 sqlite 的测试数据库与数据构造工具。
package storetest

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"todolist/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var seq atomic.Int64

// NewDB 打开一个独立的内存数据库并完成迁移，测试结束时关闭。
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:memdb%d?mode=memory&cache=shared", seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// User 创建用户。
func User(t *testing.T, db *gorm.DB, username string) model.User {
	t.Helper()
	u := model.User{Username: username, Password: "x"}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

// Board 创建看板并把 owner 写为所有者。
func Board(t *testing.T, db *gorm.DB, title string, owner model.User) model.Board {
	t.Helper()
	b := model.Board{Title: title}
	if err := db.Omit("Participants").Create(&b).Error; err != nil {
		t.Fatalf("create board: %v", err)
	}
	Participant(t, db, b, owner, model.RoleOwner)
	return b
}

// Participant 为看板添加参与者。
func Participant(t *testing.T, db *gorm.DB, b model.Board, u model.User, role model.Role) {
	t.Helper()
	p := model.BoardParticipant{BoardID: b.ID, UserID: u.ID, Role: role}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("create participant: %v", err)
	}
}

// Category 创建分类。
func Category(t *testing.T, db *gorm.DB, b model.Board, creator model.User, title string) model.GoalCategory {
	t.Helper()
	c := model.GoalCategory{BoardID: b.ID, UserID: creator.ID, Title: title}
	if err := db.Omit("Board").Create(&c).Error; err != nil {
		t.Fatalf("create category: %v", err)
	}
	return c
}

// Goal 创建目标，状态为 to_do。
func Goal(t *testing.T, db *gorm.DB, c model.GoalCategory, creator model.User, title string) model.Goal {
	t.Helper()
	now := time.Now()
	g := model.Goal{
		CategoryID: c.ID,
		UserID:     creator.ID,
		Title:      title,
		DueDate:    &now,
		Status:     model.StatusToDo,
		Priority:   model.PriorityMedium,
	}
	if err := db.Omit("Category").Create(&g).Error; err != nil {
		t.Fatalf("create goal: %v", err)
	}
	return g
}
