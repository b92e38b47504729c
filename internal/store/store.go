// Package store 是基于 GORM 的持久化层。
//
// 所有列表与详情查询都按看板参与者过滤，调用方看不到自己无权访问的数据。
// 级联删除与参与者替换在单个事务中完成。
package store

import (
	"errors"
	"fmt"

	"todolist/internal/config"
	"todolist/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// ErrNotFound 表示资源不存在，或不在调用者可见范围内。
var ErrNotFound = errors.New("not found")

// ErrAlreadyLinked 表示聊天身份已经绑定过用户。
var ErrAlreadyLinked = errors.New("chat identity already linked")

// Store 封装数据库访问。
type Store struct {
	db *gorm.DB
}

// New 使用已有连接创建 Store。
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB 返回底层连接。
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Open 按配置打开数据库并执行自动迁移。
//
// 参数:
//
//	cfg: 数据库配置，Driver 为 mysql 或 sqlite
//
// 返回值:
//
//	*gorm.DB: 数据库连接
//	error: 连接或迁移失败返回错误
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "mysql", "":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.Driver == "sqlite" {
		// sqlite 只允许单写，串行化连接避免 database is locked
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate 迁移全部模型。
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(model.All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
