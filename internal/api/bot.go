package api

import (
	"log/slog"
	"net/http"

	"todolist/internal/api/auth"
	"todolist/internal/api/render"
	"todolist/internal/pkg/outbox"

	"github.com/gin-gonic/gin"
)

const replyVerificationComplete = "[verification_complete]"

type verifyBotRequest struct {
	VerificationCode string `json:"verification_code" binding:"required"`
}

// handleVerifyBot 用机器人下发的验证码绑定聊天身份，成功后异步通知该聊天。
//
// PATCH /bot/verify
func (s *Server) handleVerifyBot(c *gin.Context) {
	var req verifyBotRequest
	if !render.Bind(c, &req) {
		return
	}
	userID := auth.UserID(c)
	tgUser, err := s.goals.LinkChat(c.Request.Context(), userID, req.VerificationCode)
	if err != nil {
		render.Error(c, s.logger, err)
		return
	}

	s.logger.Info("chat linked",
		slog.Int64("chat_id", tgUser.ChatID),
		slog.Uint64("user_id", uint64(userID)))

	if s.queue == nil {
		s.logger.Warn("chat delivery disabled, verification notice not sent", slog.Int64("chat_id", tgUser.ChatID))
	} else if !s.queue.Enqueue(outbox.Message{ChatID: tgUser.ChatID, Text: replyVerificationComplete}) {
		s.logger.Warn("verification notice dropped", slog.Int64("chat_id", tgUser.ChatID))
	}

	c.JSON(http.StatusOK, tgUserResponse{
		ChatID:   tgUser.ChatID,
		Username: tgUser.Username,
		UserID:   userID,
	})
}
