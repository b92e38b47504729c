package notify

import (
	"context"

	"todolist/internal/store"
)

// Notifier 定义到期提醒的非聊天通知渠道。
type Notifier interface {
	// SendReminder 发送提醒。
	//
	// 参数:
	//   ctx: 上下文
	//   toEmail: 接收邮箱
	//   r: 到期目标
	SendReminder(ctx context.Context, toEmail string, r store.DueReminder) error
}
