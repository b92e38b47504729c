package model

import "time"

// User 表示系统用户。
type User struct {
	ID        uint      `gorm:"primaryKey"`                             // 用户 ID
	Username  string    `gorm:"type:varchar(150);uniqueIndex;not null"` // 登录名（唯一）
	FirstName string    `gorm:"type:varchar(150)"`                      // 名
	LastName  string    `gorm:"type:varchar(150)"`                      // 姓
	Email     string    `gorm:"type:varchar(191)"`                      // 邮箱
	Password  string    `gorm:"not null"`                               // bcrypt 哈希
	CreatedAt time.Time // 注册时间
	UpdatedAt time.Time // 更新时间
}

// TgUser 将外部聊天 ID 映射到系统用户。
//
// UserID 在验证前为空，通过验证码绑定后只会被设置一次；记录不会被删除。
type TgUser struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time // 首次收到消息时间
	UpdatedAt time.Time

	ChatID           int64  `gorm:"uniqueIndex;not null"` // 外部聊天 ID
	Username         string `gorm:"type:varchar(512)"`    // 外部账号昵称
	UserID           *uint  // 绑定的系统用户，未验证时为空
	User             *User  `gorm:"foreignKey:UserID"`
	VerificationCode string `gorm:"type:varchar(32);index"` // 一次性验证码，绑定后清空
}

// Verified 返回该聊天身份是否已绑定用户。
func (t *TgUser) Verified() bool {
	return t.UserID != nil
}
