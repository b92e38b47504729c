package api

import (
	"time"

	"todolist/internal/api/auth"
	"todolist/internal/model"
)

type boardResponse struct {
	ID        uint      `json:"id"`
	Created   time.Time `json:"created"`
	Updated   time.Time `json:"updated"`
	Title     string    `json:"title"`
	IsDeleted bool      `json:"is_deleted"`
}

type participantResponse struct {
	ID      uint       `json:"id"`
	Created time.Time  `json:"created"`
	Updated time.Time  `json:"updated"`
	Role    model.Role `json:"role"`
	User    string     `json:"user"` // username
	Board   uint       `json:"board"`
}

type boardDetailResponse struct {
	boardResponse
	Participants []participantResponse `json:"participants"`
}

type categoryResponse struct {
	ID        uint      `json:"id"`
	Created   time.Time `json:"created"`
	Updated   time.Time `json:"updated"`
	User      uint      `json:"user"`
	Board     uint      `json:"board"`
	Title     string    `json:"title"`
	IsDeleted bool      `json:"is_deleted"`
}

type goalResponse struct {
	ID          uint               `json:"id"`
	Created     time.Time          `json:"created"`
	Updated     time.Time          `json:"updated"`
	User        uint               `json:"user"`
	Category    uint               `json:"category"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	DueDate     *time.Time         `json:"due_date"`
	Status      model.GoalStatus   `json:"status"`
	Priority    model.GoalPriority `json:"priority"`
}

type commentResponse struct {
	ID      uint              `json:"id"`
	Created time.Time         `json:"created"`
	Updated time.Time         `json:"updated"`
	User    auth.UserResponse `json:"user"`
	Goal    uint              `json:"goal"`
	Text    string            `json:"text"`
}

type tgUserResponse struct {
	ChatID   int64  `json:"chat_id"`
	Username string `json:"username"`
	UserID   uint   `json:"user_id"`
}

func newBoardResponse(b model.Board) boardResponse {
	return boardResponse{
		ID:        b.ID,
		Created:   b.CreatedAt,
		Updated:   b.UpdatedAt,
		Title:     b.Title,
		IsDeleted: b.IsDeleted,
	}
}

func newBoardDetailResponse(b model.Board) boardDetailResponse {
	parts := make([]participantResponse, 0, len(b.Participants))
	for _, p := range b.Participants {
		parts = append(parts, participantResponse{
			ID:      p.ID,
			Created: p.CreatedAt,
			Updated: p.UpdatedAt,
			Role:    p.Role,
			User:    p.User.Username,
			Board:   p.BoardID,
		})
	}
	return boardDetailResponse{boardResponse: newBoardResponse(b), Participants: parts}
}

func newCategoryResponse(c model.GoalCategory) categoryResponse {
	return categoryResponse{
		ID:        c.ID,
		Created:   c.CreatedAt,
		Updated:   c.UpdatedAt,
		User:      c.UserID,
		Board:     c.BoardID,
		Title:     c.Title,
		IsDeleted: c.IsDeleted,
	}
}

func newGoalResponse(g model.Goal) goalResponse {
	return goalResponse{
		ID:          g.ID,
		Created:     g.CreatedAt,
		Updated:     g.UpdatedAt,
		User:        g.UserID,
		Category:    g.CategoryID,
		Title:       g.Title,
		Description: g.Description,
		DueDate:     g.DueDate,
		Status:      g.Status,
		Priority:    g.Priority,
	}
}

func newCommentResponse(c model.GoalComment) commentResponse {
	return commentResponse{
		ID:      c.ID,
		Created: c.CreatedAt,
		Updated: c.UpdatedAt,
		User:    auth.NewUserResponse(c.User),
		Goal:    c.GoalID,
		Text:    c.Text,
	}
}

func mapSlice[T, R any](in []T, f func(T) R) []R {
	out := make([]R, 0, len(in))
	for _, v := range in {
		out = append(out, f(v))
	}
	return out
}
