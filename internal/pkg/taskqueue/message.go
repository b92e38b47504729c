package taskqueue

import "time"

// Delivery 投递流中的一条聊天消息。
type Delivery struct {
	ChatID    int64     `json:"chat_id"`              // 目标聊天
	Text      string    `json:"text"`                 // 消息正文
	QueuedAt  time.Time `json:"queued_at"`            // 首次入流时间，重新入流时保持不变
	Attempts  int       `json:"attempts"`             // 已失败的发送次数
	LastError string    `json:"last_error,omitempty"` // 最近一次发送失败原因
}

// NewDelivery 创建一条待投递消息。
func NewDelivery(chatID int64, text string) *Delivery {
	return &Delivery{
		ChatID:   chatID,
		Text:     text,
		QueuedAt: time.Now().UTC(),
	}
}
