// Package render 把业务错误映射为 HTTP 响应。
//
// 响应体格式：字段错误 {"field": ["msg"]}，其余错误 {"detail": "..."}。
package render

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"todolist/internal/goals"
	"todolist/internal/policy"
	"todolist/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const (
	DetailNotFound         = "Not found."
	DetailPermission       = "You do not have permission to perform this action."
	DetailNotAuthenticated = "Authentication credentials were not provided."
	DetailServerError      = "A server error occurred."
)

func init() {
	// 绑定错误使用 json 字段名
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	}
}

// Error 根据错误类型写出响应。未识别的错误记录日志并返回 500。
func Error(c *gin.Context, logger *slog.Logger, err error) {
	var verr *goals.ValidationError
	switch {
	case errors.As(err, &verr):
		Fields(c, verr.Fields)
	case errors.Is(err, policy.ErrPermissionDenied):
		Detail(c, http.StatusForbidden, DetailPermission)
	case errors.Is(err, store.ErrNotFound):
		Detail(c, http.StatusNotFound, DetailNotFound)
	default:
		if logger != nil {
			logger.Error("request failed",
				slog.String("method", c.Request.Method),
				slog.String("path", c.FullPath()),
				slog.String("error", err.Error()))
		}
		Detail(c, http.StatusInternalServerError, DetailServerError)
	}
}

// Fields 写出 400 字段错误。
func Fields(c *gin.Context, fields map[string]string) {
	body := make(gin.H, len(fields))
	for k, v := range fields {
		body[k] = []string{v}
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, body)
}

// Detail 写出 {"detail": msg}。
func Detail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": msg})
}

// Unauthenticated 未登录统一返回 403。
func Unauthenticated(c *gin.Context) {
	Detail(c, http.StatusForbidden, DetailNotAuthenticated)
}

// Bind 解析 JSON 请求体，失败时写出 400 并返回 false。
func Bind(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		Fields(c, BindErrors(err))
		return false
	}
	return true
}

// BindErrors 把绑定错误转成字段错误。
func BindErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"non_field_errors": "Invalid data: " + err.Error()}
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fieldMessage(fe)
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "min":
		return fmt.Sprintf("Ensure this field has at least %s characters.", fe.Param())
	case "oneof":
		return fmt.Sprintf("%q is not a valid choice.", fmt.Sprint(fe.Value()))
	default:
		return "Invalid value."
	}
}
