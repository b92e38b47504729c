// Package session 保存机器人每个聊天的对话状态。
//
// 状态是一个封闭的变体类型，每个变体只携带该状态下合法的数据：
// AwaitingTitle 一定带有已选定的分类 ID，不存在“缺字段”的中间形态。
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidState 表示存储中的状态无法识别或数据不完整。
var ErrInvalidState = errors.New("invalid session state")

// State 对话状态。
type State interface {
	// Name 返回状态的稳定名称，用于持久化与指标。
	Name() string
	sealed()
}

// Idle 初始状态，没有进行中的对话。
type Idle struct{}

// AwaitingCategory 已执行 /create，等待用户输入分类 ID。
type AwaitingCategory struct{}

// AwaitingTitle 分类已选定，等待目标标题。
type AwaitingTitle struct {
	CategoryID uint
}

func (Idle) Name() string             { return "idle" }
func (AwaitingCategory) Name() string { return "awaiting_category" }
func (AwaitingTitle) Name() string    { return "awaiting_title" }

func (Idle) sealed()             {}
func (AwaitingCategory) sealed() {}
func (AwaitingTitle) sealed()    {}

// Storage 按聊天 ID 读写状态。不存在的会话视为 Idle。
type Storage interface {
	Get(ctx context.Context, chatID int64) (State, error)
	Set(ctx context.Context, chatID int64, state State) error
	Delete(ctx context.Context, chatID int64) error
}

type record struct {
	State      string `json:"state"`
	CategoryID uint   `json:"category_id,omitempty"`
}

// Encode 将状态编码为 JSON。
func Encode(s State) ([]byte, error) {
	r := record{State: s.Name()}
	if t, ok := s.(AwaitingTitle); ok {
		r.CategoryID = t.CategoryID
	}
	return json.Marshal(r)
}

// Decode 解析 Encode 的输出，无法识别时返回 ErrInvalidState。
func Decode(data []byte) (State, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	switch r.State {
	case "idle", "":
		return Idle{}, nil
	case "awaiting_category":
		return AwaitingCategory{}, nil
	case "awaiting_title":
		if r.CategoryID == 0 {
			return nil, fmt.Errorf("%w: awaiting_title without category", ErrInvalidState)
		}
		return AwaitingTitle{CategoryID: r.CategoryID}, nil
	default:
		return nil, fmt.Errorf("%w: unknown state %q", ErrInvalidState, r.State)
	}
}
