// Package policy 是看板资源的统一授权入口。
//
// 所有资源在检查前都先解析到所属看板，然后按参与者角色做白名单判断。
package policy

import (
	"context"
	"errors"
	"fmt"

	"todolist/internal/model"
	"todolist/internal/pkg/metrics"
	"todolist/internal/store"
)

// ErrPermissionDenied 表示调用者已认证但无权执行该操作。
var ErrPermissionDenied = errors.New("permission denied")

// Kind 资源类型。
type Kind string

const (
	KindBoard    Kind = "board"
	KindCategory Kind = "category"
	KindGoal     Kind = "goal"
	KindComment  Kind = "comment"
)

// Operation 请求的操作类型。
type Operation string

const (
	// OpRead 读取看板内任意资源。
	OpRead Operation = "read"
	// OpWrite 创建或修改分类、目标（含目标改挂到其它分类时的目标看板）。
	OpWrite Operation = "write"
	// OpManageBoard 修改看板标题、替换参与者、删除看板。
	OpManageBoard Operation = "manage_board"
	// OpModifyComment 创建、修改、删除评论，要求是评论作者。
	OpModifyComment Operation = "modify_comment"
)

var allowedRoles = map[Operation][]model.Role{
	OpRead:          {model.RoleOwner, model.RoleWriter, model.RoleReader},
	OpWrite:         {model.RoleOwner, model.RoleWriter},
	OpManageBoard:   {model.RoleOwner},
	OpModifyComment: {model.RoleOwner, model.RoleWriter, model.RoleReader},
}

// Resource 已解析到看板的资源。
//
// CreatorID 仅 OpModifyComment 使用；新建评论时传入调用者自身 ID。
type Resource struct {
	Kind      Kind
	BoardID   uint
	CreatorID uint
}

// RoleLookup 查询参与者角色，非参与者返回 store.ErrNotFound。
type RoleLookup interface {
	ParticipantRole(ctx context.Context, boardID, userID uint) (model.Role, error)
}

// Engine 授权引擎。
type Engine struct {
	roles RoleLookup
}

// NewEngine 创建授权引擎。
func NewEngine(roles RoleLookup) *Engine {
	return &Engine{roles: roles}
}

// Authorize 判断 actorID 能否对 res 执行 op。
//
// 返回值:
//
//	nil: 允许
//	ErrPermissionDenied: 拒绝
//	其它错误: 角色查询失败
func (e *Engine) Authorize(ctx context.Context, actorID uint, res Resource, op Operation) error {
	allowed, ok := allowedRoles[op]
	if !ok {
		return fmt.Errorf("unknown operation %q", op)
	}
	if op == OpModifyComment && res.CreatorID != actorID {
		return deny(op)
	}

	role, err := e.roles.ParticipantRole(ctx, res.BoardID, actorID)
	if errors.Is(err, store.ErrNotFound) {
		return deny(op)
	}
	if err != nil {
		return fmt.Errorf("lookup role: %w", err)
	}
	for _, r := range allowed {
		if r == role {
			return nil
		}
	}
	return deny(op)
}

// Role 返回 actorID 在看板上的角色，非参与者返回 ErrPermissionDenied。
func (e *Engine) Role(ctx context.Context, actorID, boardID uint) (model.Role, error) {
	role, err := e.roles.ParticipantRole(ctx, boardID, actorID)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrPermissionDenied
	}
	return role, err
}

func deny(op Operation) error {
	metrics.PermissionDeniedTotal.WithLabelValues(string(op)).Inc()
	return ErrPermissionDenied
}
