package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hray3182/agenda/internal/models"
	"github.com/hray3182/agenda/internal/repository"
)

func (ctl *Controller) ListNotifications(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	notifications, err := ctl.notifications.GetByUserID(c.Request.Context(), uid)
	if err != nil {
		internalError(c, "Failed to get notifications", err)
		return
	}
	if notifications == nil {
		notifications = []*models.Notification{}
	}
	c.JSON(http.StatusOK, notifications)
}

func (ctl *Controller) MarkNotificationRead(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	err := ctl.notifications.SetStatus(c.Request.Context(), id, uid, models.StatusRead)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
		return
	}
	if err != nil {
		internalError(c, "Failed to update notification", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "estado": models.StatusRead})
}

func (ctl *Controller) ClearNotifications(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	if err := ctl.notifications.DeleteByUserID(c.Request.Context(), uid); err != nil {
		internalError(c, "Failed to delete notifications", err)
		return
	}
	c.Status(http.StatusNoContent)
}
