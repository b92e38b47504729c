package api

import (
	"net/http"

	"todolist/internal/api/auth"
	"todolist/internal/api/render"
	"todolist/internal/model"
	"todolist/internal/store"

	"github.com/gin-gonic/gin"
)

type createCommentRequest struct {
	Goal uint   `json:"goal" binding:"required"`
	Text string `json:"text" binding:"required"`
}

type updateCommentRequest struct {
	Text string `json:"text" binding:"required"`
}

// handleCreateComment POST /goals/goal_comment/create
func (s *Server) handleCreateComment(c *gin.Context) {
	var req createCommentRequest
	if !render.Bind(c, &req) {
		return
	}
	comment, err := s.goals.CreateComment(c.Request.Context(), auth.UserID(c), req.Goal, req.Text)
	if err != nil {
		render.Error(c, s.logger, err)
		return
	}
	if !s.withAuthor(c, comment) {
		return
	}
	c.JSON(http.StatusCreated, newCommentResponse(*comment))
}

// handleListComments GET /goals/goal_comment/list?goal=
func (s *Server) handleListComments(c *gin.Context) {
	goalID, ok := queryUint(c, "goal")
	if !ok {
		render.Fields(c, map[string]string{"goal": msgInvalidNumber})
		return
	}
	list, err := s.goals.ListComments(c.Request.Context(), auth.UserID(c), store.CommentFilter{GoalID: goalID})
	if err != nil {
		render.Error(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, mapSlice(list, newCommentResponse))
}

func (s *Server) handleGetComment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	comment, err := s.goals.GetComment(c.Request.Context(), auth.UserID(c), id)
	if err != nil {
		render.Error(c, s.logger, err)
		return
	}
	if !s.withAuthor(c, comment) {
		return
	}
	c.JSON(http.StatusOK, newCommentResponse(*comment))
}

// handleUpdateComment 仅作者可修改。
func (s *Server) handleUpdateComment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req updateCommentRequest
	if !render.Bind(c, &req) {
		return
	}
	comment, err := s.goals.UpdateComment(c.Request.Context(), auth.UserID(c), id, req.Text)
	if err != nil {
		render.Error(c, s.logger, err)
		return
	}
	if !s.withAuthor(c, comment) {
		return
	}
	c.JSON(http.StatusOK, newCommentResponse(*comment))
}

func (s *Server) handleDeleteComment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.goals.DeleteComment(c.Request.Context(), auth.UserID(c), id); err != nil {
		render.Error(c, s.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// withAuthor 补全评论作者资料。
func (s *Server) withAuthor(c *gin.Context, comment *model.GoalComment) bool {
	if comment.User.ID != 0 {
		return true
	}
	user, err := s.store.GetUser(c.Request.Context(), comment.UserID)
	if err != nil {
		render.Error(c, s.logger, err)
		return false
	}
	comment.User = *user
	return true
}
