package middleware

import (
	"errors"
	"log/slog"
	"strings"

	"todolist/internal/api/auth"
	"todolist/internal/api/render"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware 校验 Bearer JWT 并将 userID 写入上下文。
//
// 缺失、无效或已注销的令牌统一返回 403。
func AuthMiddleware(tokens *auth.Tokens, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			render.Unauthenticated(c)
			return
		}

		claims, err := tokens.Parse(c.Request.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) && !errors.Is(err, auth.ErrTokenRevoked) && logger != nil {
				logger.Warn("token check failed", slog.String("error", err.Error()))
			}
			render.Unauthenticated(c)
			return
		}

		auth.SetIdentity(c, claims)
		c.Next()
	}
}
