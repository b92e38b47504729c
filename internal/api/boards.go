package api

import (
	"net/http"
	"strings"

	"todolist/internal/api/auth"
	"todolist/internal/api/render"
	"todolist/internal/goals"
	"todolist/internal/model"
	"todolist/internal/store"

	"github.com/gin-gonic/gin"
)

type createBoardRequest struct {
	Title string `json:"title" binding:"required,max=255"`
}

type participantRequest struct {
	User string     `json:"user"` // username
	Role model.Role `json:"role"`
}

// updateBoardRequest participants 为 null 或缺省时保持不变，[] 表示清空非 owner 参与者。
type updateBoardRequest struct {
	Title        *string               `json:"title"`
	Participants *[]participantRequest `json:"participants"`
}

// handleCreateBoard 创建看板，调用者成为 owner。
//
// POST /goals/board/create
func (s *Server) handleCreateBoard(c *gin.Context) {
	var req createBoardRequest
	if !render.Bind(c, &req) {
		return
	}
	board, err := s.goals.CreateBoard(c.Request.Context(), auth.UserID(c), req.Title)
	if err != nil {
		render.Error(c, s.logger, err)
		return
	}
	c.JSON(http.StatusCreated, newBoardResponse(*board))
}

// handleListBoards GET /goals/board/list?search=
func (s *Server) handleListBoards(c *gin.Context) {
	boards, err := s.goals.ListBoards(c.Request.Context(), auth.UserID(c), store.BoardFilter{
		Search: strings.TrimSpace(c.Query("search")),
	})
	if err != nil {
		render.Error(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, mapSlice(boards, newBoardResponse))
}

func (s *Server) handleGetBoard(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	board, err := s.goals.GetBoard(c.Request.Context(), auth.UserID(c), id)
	if err != nil {
		render.Error(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, newBoardDetailResponse(*board))
}

// handleUpdateBoard 修改标题并整体替换参与者，仅 owner。
//
// PUT/PATCH /goals/board/:id
func (s *Server) handleUpdateBoard(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req updateBoardRequest
	if !render.Bind(c, &req) {
		return
	}

	patch := goals.BoardPatch{Title: req.Title}
	if req.Participants != nil {
		in := make([]goals.ParticipantInput, 0, len(*req.Participants))
		for _, p := range *req.Participants {
			in = append(in, goals.ParticipantInput{Username: strings.TrimSpace(p.User), Role: p.Role})
		}
		patch.Participants = &in
	}

	board, err := s.goals.UpdateBoard(c.Request.Context(), auth.UserID(c), id, patch)
	if err != nil {
		render.Error(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, newBoardDetailResponse(*board))
}

// handleDeleteBoard 软删除看板，并在同一事务中删除分类、归档目标。
func (s *Server) handleDeleteBoard(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.goals.DeleteBoard(c.Request.Context(), auth.UserID(c), id); err != nil {
		render.Error(c, s.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
