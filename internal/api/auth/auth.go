// Package auth 提供注册、登录、个人资料与修改密码接口。
package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"unicode"

	"todolist/internal/api/render"
	"todolist/internal/model"
	"todolist/internal/store"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 8

// Handler 提供用户相关接口。
type Handler struct {
	store  *store.Store
	tokens *Tokens
	logger *slog.Logger
}

// NewHandler 创建 Auth Handler。
func NewHandler(st *store.Store, tokens *Tokens, logger *slog.Logger) *Handler {
	return &Handler{
		store:  st,
		tokens: tokens,
		logger: logger,
	}
}

type signupRequest struct {
	Username       string `json:"username" binding:"required,max=150"`
	Password       string `json:"password" binding:"required"`
	PasswordRepeat string `json:"password_repeat" binding:"required"`
	FirstName      string `json:"first_name" binding:"max=150"`
	LastName       string `json:"last_name" binding:"max=150"`
	Email          string `json:"email" binding:"omitempty,email"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type profileRequest struct {
	Username  *string `json:"username" binding:"omitempty,max=150"`
	FirstName *string `json:"first_name" binding:"omitempty,max=150"`
	LastName  *string `json:"last_name" binding:"omitempty,max=150"`
	Email     *string `json:"email" binding:"omitempty,email"`
}

type updatePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// UserResponse 用户公开资料。
type UserResponse struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// NewUserResponse 转换用户资料。
func NewUserResponse(u model.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
	}
}

type loginResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// Signup 创建新用户。
func (h *Handler) Signup(c *gin.Context) {
	var req signupRequest
	if !render.Bind(c, &req) {
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		render.Fields(c, map[string]string{"username": "This field may not be blank."})
		return
	}
	if req.Password != req.PasswordRepeat {
		render.Fields(c, map[string]string{"password_repeat": "Passwords must match."})
		return
	}
	if msg := validatePassword(req.Password); msg != "" {
		render.Fields(c, map[string]string{"password": msg})
		return
	}

	ctx := c.Request.Context()
	taken, err := h.store.UsernameTaken(ctx, username, 0)
	if err != nil {
		render.Error(c, h.logger, err)
		return
	}
	if taken {
		render.Fields(c, map[string]string{"username": "A user with that username already exists."})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		render.Error(c, h.logger, err)
		return
	}
	user := model.User{
		Username:  username,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     strings.TrimSpace(strings.ToLower(req.Email)),
		Password:  string(hash),
	}
	if err := h.store.CreateUser(ctx, &user); err != nil {
		render.Error(c, h.logger, err)
		return
	}

	h.logger.Info("user registered", slog.String("username", username), slog.Uint64("user_id", uint64(user.ID)))
	c.JSON(http.StatusCreated, NewUserResponse(user))
}

// Login 校验用户名密码并返回 JWT。
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if !render.Bind(c, &req) {
		return
	}
	username := strings.TrimSpace(req.Username)

	user, err := h.store.GetUserByUsername(c.Request.Context(), username)
	if errors.Is(err, store.ErrNotFound) {
		render.Detail(c, http.StatusForbidden, "Incorrect authentication credentials.")
		return
	}
	if err != nil {
		render.Error(c, h.logger, err)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		render.Detail(c, http.StatusForbidden, "Incorrect authentication credentials.")
		return
	}

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		h.logger.Error("sign token failed", slog.String("username", username), slog.String("error", err.Error()))
		render.Error(c, h.logger, err)
		return
	}

	h.logger.Info("user logged in", slog.String("username", username))
	c.JSON(http.StatusOK, loginResponse{Token: token, User: NewUserResponse(*user)})
}

// Profile 返回当前用户资料。
func (h *Handler) Profile(c *gin.Context) {
	user, err := h.store.GetUser(c.Request.Context(), UserID(c))
	if err != nil {
		render.Error(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, NewUserResponse(*user))
}

// UpdateProfile 部分更新当前用户资料。
func (h *Handler) UpdateProfile(c *gin.Context) {
	var req profileRequest
	if !render.Bind(c, &req) {
		return
	}
	ctx := c.Request.Context()
	user, err := h.store.GetUser(ctx, UserID(c))
	if err != nil {
		render.Error(c, h.logger, err)
		return
	}

	if req.Username != nil {
		username := strings.TrimSpace(*req.Username)
		if username == "" {
			render.Fields(c, map[string]string{"username": "This field may not be blank."})
			return
		}
		taken, err := h.store.UsernameTaken(ctx, username, user.ID)
		if err != nil {
			render.Error(c, h.logger, err)
			return
		}
		if taken {
			render.Fields(c, map[string]string{"username": "A user with that username already exists."})
			return
		}
		user.Username = username
	}
	if req.FirstName != nil {
		user.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		user.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Email != nil {
		user.Email = strings.TrimSpace(strings.ToLower(*req.Email))
	}

	if err := h.store.UpdateUserProfile(ctx, user); err != nil {
		render.Error(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, NewUserResponse(*user))
}

// Logout 注销当前令牌。
func (h *Handler) Logout(c *gin.Context) {
	if err := h.tokens.Revoke(c.Request.Context(), CurrentClaims(c)); err != nil {
		render.Error(c, h.logger, err)
		return
	}
	h.logger.Info("user logged out", slog.Uint64("user_id", uint64(UserID(c))))
	c.Status(http.StatusNoContent)
}

// UpdatePassword 校验旧密码后写入新密码。
func (h *Handler) UpdatePassword(c *gin.Context) {
	var req updatePasswordRequest
	if !render.Bind(c, &req) {
		return
	}
	ctx := c.Request.Context()
	user, err := h.store.GetUser(ctx, UserID(c))
	if err != nil {
		render.Error(c, h.logger, err)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.OldPassword)); err != nil {
		render.Fields(c, map[string]string{"old_password": "Incorrect password."})
		return
	}
	if msg := validatePassword(req.NewPassword); msg != "" {
		render.Fields(c, map[string]string{"new_password": msg})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		render.Error(c, h.logger, err)
		return
	}
	if err := h.store.UpdateUserPassword(ctx, user.ID, string(hash)); err != nil {
		render.Error(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// validatePassword 返回空字符串表示通过。
func validatePassword(pw string) string {
	if len([]rune(pw)) < minPasswordLen {
		return "This password is too short. It must contain at least 8 characters."
	}
	allDigits := true
	for _, r := range pw {
		if !unicode.IsDigit(r) {
			allDigits = false
			break
		}
	}
	if allDigits {
		return "This password is entirely numeric."
	}
	return ""
}
