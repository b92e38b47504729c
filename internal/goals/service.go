// Package goals 实现看板、分类、目标与评论的业务逻辑。
//
// 可见性由 store 的参与者过滤保证，写操作统一经过 policy.Engine。
// 不可见的资源返回 store.ErrNotFound，可见但无权写入返回 policy.ErrPermissionDenied。
package goals

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"todolist/internal/policy"
	"todolist/internal/store"
)

const maxTitleLen = 255

// ValidationError 携带字段级错误信息。
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// Service 业务服务。
type Service struct {
	store  *store.Store
	policy *policy.Engine
	logger *slog.Logger
}

// NewService 创建业务服务。
func NewService(st *store.Store, pol *policy.Engine, logger *slog.Logger) *Service {
	return &Service{store: st, policy: pol, logger: logger}
}

// cleanTitle 去掉首尾空白并校验长度。
func cleanTitle(field, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", invalid(field, "This field may not be blank.")
	}
	if utf8.RuneCountInString(title) > maxTitleLen {
		return "", invalid(field, fmt.Sprintf("Ensure this field has no more than %d characters.", maxTitleLen))
	}
	return title, nil
}
