package api

import (
	"net/http"
	"strconv"
	"strings"

	"todolist/internal/api/auth"
	"todolist/internal/api/render"
	"todolist/internal/goals"
	"todolist/internal/model"
	"todolist/internal/store"

	"github.com/gin-gonic/gin"
)

type createGoalRequest struct {
	Category    uint               `json:"category" binding:"required"`
	Title       string             `json:"title" binding:"required,max=255"`
	Description string             `json:"description"`
	DueDate     string             `json:"due_date"`
	Status      model.GoalStatus   `json:"status"`
	Priority    model.GoalPriority `json:"priority"`
}

type updateGoalRequest struct {
	Category    *uint               `json:"category"`
	Title       *string             `json:"title"`
	Description *string             `json:"description"`
	DueDate     *string             `json:"due_date"`
	Status      *model.GoalStatus   `json:"status"`
	Priority    *model.GoalPriority `json:"priority"`
}

// handleCreateGoal POST /goals/goal/create
func (s *Server) handleCreateGoal(c *gin.Context) {
	var req createGoalRequest
	if !render.Bind(c, &req) {
		return
	}
	due, ok := parseDate(req.DueDate)
	if !ok {
		render.Fields(c, map[string]string{"due_date": msgInvalidDate})
		return
	}
	goal, err := s.goals.CreateGoal(c.Request.Context(), auth.UserID(c), goals.GoalInput{
		CategoryID:  req.Category,
		Title:       req.Title,
		Description: req.Description,
		DueDate:     due,
		Status:      req.Status,
		Priority:    req.Priority,
	})
	if err != nil {
		render.Error(c, s.logger, err)
		return
	}
	c.JSON(http.StatusCreated, newGoalResponse(*goal))
}

// handleListGoals 支持 status__in / priority__in / category__in / due_date__gte / due_date__lte / search / ordering。
func (s *Server) handleListGoals(c *gin.Context) {
	f := store.GoalFilter{
		Search:   strings.TrimSpace(c.Query("search")),
		Ordering: c.Query("ordering"),
	}
	for _, v := range queryCSV(c, "status__in") {
		f.Statuses = append(f.Statuses, model.GoalStatus(v))
	}
	for _, v := range queryCSV(c, "priority__in") {
		f.Priorities = append(f.Priorities, model.GoalPriority(v))
	}
	for _, v := range queryCSV(c, "category__in") {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			render.Fields(c, map[string]string{"category__in": msgInvalidNumber})
			return
		}
		f.CategoryIDs = append(f.CategoryIDs, uint(id))
	}
	var ok bool
	if f.DueFrom, ok = parseDate(c.Query("due_date__gte")); !ok {
		render.Fields(c, map[string]string{"due_date__gte": msgInvalidDate})
		return
	}
	if f.DueTo, ok = parseDate(c.Query("due_date__lte")); !ok {
		render.Fields(c, map[string]string{"due_date__lte": msgInvalidDate})
		return
	}

	list, err := s.goals.ListGoals(c.Request.Context(), auth.UserID(c), f)
	if err != nil {
		render.Error(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, mapSlice(list, newGoalResponse))
}

func (s *Server) handleGetGoal(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	goal, err := s.goals.GetGoal(c.Request.Context(), auth.UserID(c), id)
	if err != nil {
		render.Error(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, newGoalResponse(*goal))
}

// handleUpdateGoal 更新目标；修改 category 时同时校验源和目标分类的写权限。
func (s *Server) handleUpdateGoal(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req updateGoalRequest
	if !render.Bind(c, &req) {
		return
	}
	patch := goals.GoalPatch{
		CategoryID:  req.Category,
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
	}
	if req.DueDate != nil {
		due, ok := parseDate(*req.DueDate)
		if !ok || due == nil {
			render.Fields(c, map[string]string{"due_date": msgInvalidDate})
			return
		}
		patch.DueDate = due
	}

	goal, err := s.goals.UpdateGoal(c.Request.Context(), auth.UserID(c), id, patch)
	if err != nil {
		render.Error(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, newGoalResponse(*goal))
}

// handleDeleteGoal 归档目标。
func (s *Server) handleDeleteGoal(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.goals.DeleteGoal(c.Request.Context(), auth.UserID(c), id); err != nil {
		render.Error(c, s.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
