package controller

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hray3182/agenda/internal/auth"
	"github.com/hray3182/agenda/internal/models"
	"github.com/hray3182/agenda/internal/repository"
)

// Register (public): creates a user and returns it with a token.
func (ctl *Controller) Register(c *gin.Context) {
	var body struct {
		Name     string `json:"nombre"`
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		internalError(c, "Failed to create user", err)
		return
	}
	user := &models.User{
		Name:         strings.TrimSpace(body.Name),
		Email:        strings.ToLower(strings.TrimSpace(body.Email)),
		PasswordHash: hash,
	}
	if err := ctl.users.Create(c.Request.Context(), user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
			return
		}
		internalError(c, "Failed to create user", err)
		return
	}
	ctl.respondWithToken(c, http.StatusCreated, user)
}

// Login (public): exchanges email and password for a token.
func (ctl *Controller) Login(c *gin.Context) {
	var body struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	user, err := ctl.users.GetByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(body.Email)))
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		internalError(c, "Failed to log in", err)
		return
	}
	if user == nil || auth.CheckPassword(user.PasswordHash, body.Password) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	ctl.respondWithToken(c, http.StatusOK, user)
}

func (ctl *Controller) respondWithToken(c *gin.Context, status int, user *models.User) {
	token, err := ctl.tokens.Issue(user.UserID)
	if err != nil {
		internalError(c, "Failed to issue token", err)
		return
	}
	c.JSON(status, gin.H{"token": token, "usuario": user})
}

// Me (auth): returns the caller.
func (ctl *Controller) Me(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	user, err := ctl.users.GetByID(c.Request.Context(), uid)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		internalError(c, "Failed to get user", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// LinkTelegram (auth): stores the chat id shown by the bot's /start; null unlinks.
func (ctl *Controller) LinkTelegram(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var body struct {
		ChatID *int64 `json:"chat_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	err := ctl.users.SetTelegramChatID(c.Request.Context(), uid, body.ChatID)
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": "Chat already linked to another user"})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	case err != nil:
		internalError(c, "Failed to link Telegram", err)
	default:
		c.JSON(http.StatusOK, gin.H{"telegram_chat_id": body.ChatID})
	}
}
