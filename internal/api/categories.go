package api

import (
	"net/http"
	"strings"

	"todolist/internal/api/auth"
	"todolist/internal/api/render"
	"todolist/internal/goals"
	"todolist/internal/store"

	"github.com/gin-gonic/gin"
)

type createCategoryRequest struct {
	Board uint   `json:"board" binding:"required"`
	Title string `json:"title" binding:"required,max=255"`
}

type updateCategoryRequest struct {
	Title *string `json:"title"`
}

// handleCreateCategory POST /goals/goal_category/create
func (s *Server) handleCreateCategory(c *gin.Context) {
	var req createCategoryRequest
	if !render.Bind(c, &req) {
		return
	}
	cat, err := s.goals.CreateCategory(c.Request.Context(), auth.UserID(c), goals.CategoryInput{
		BoardID: req.Board,
		Title:   req.Title,
	})
	if err != nil {
		render.Error(c, s.logger, err)
		return
	}
	c.JSON(http.StatusCreated, newCategoryResponse(*cat))
}

// handleListCategories GET /goals/goal_category/list?board=&search=&ordering=
func (s *Server) handleListCategories(c *gin.Context) {
	boardID, ok := queryUint(c, "board")
	if !ok {
		render.Fields(c, map[string]string{"board": msgInvalidNumber})
		return
	}
	cats, err := s.goals.ListCategories(c.Request.Context(), auth.UserID(c), store.CategoryFilter{
		BoardID:  boardID,
		Search:   strings.TrimSpace(c.Query("search")),
		Ordering: c.Query("ordering"),
	})
	if err != nil {
		render.Error(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, mapSlice(cats, newCategoryResponse))
}

func (s *Server) handleGetCategory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	cat, err := s.goals.GetCategory(c.Request.Context(), auth.UserID(c), id)
	if err != nil {
		render.Error(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, newCategoryResponse(*cat))
}

func (s *Server) handleUpdateCategory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req updateCategoryRequest
	if !render.Bind(c, &req) {
		return
	}
	cat, err := s.goals.UpdateCategory(c.Request.Context(), auth.UserID(c), id, req.Title)
	if err != nil {
		render.Error(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, newCategoryResponse(*cat))
}

// handleDeleteCategory 软删除分类并归档其下目标。
func (s *Server) handleDeleteCategory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.goals.DeleteCategory(c.Request.Context(), auth.UserID(c), id); err != nil {
		render.Error(c, s.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
