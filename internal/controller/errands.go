package controller

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hray3182/agenda/internal/models"
	"github.com/hray3182/agenda/internal/repository"
)

type errandRequest struct {
	Title       string `json:"titulo" binding:"required"`
	Description string `json:"descripcion"`
	Date        string `json:"fecha" binding:"required"`
	Time        string `json:"hora"`
	Completed   bool   `json:"completado"`
}

func (r errandRequest) validate() error {
	if _, err := time.Parse("2006-01-02", r.Date); err != nil {
		return errors.New("fecha must be YYYY-MM-DD")
	}
	if r.Time != "" {
		if _, err := time.Parse("15:04", r.Time); err != nil {
			return errors.New("hora must be HH:MM")
		}
	}
	return nil
}

// ListErrands (auth): pending errands; ?all=true includes completed ones.
func (ctl *Controller) ListErrands(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	errands, err := ctl.errands.GetByUserID(c.Request.Context(), uid, c.Query("all") == "true")
	if err != nil {
		internalError(c, "Failed to get errands", err)
		return
	}
	if errands == nil {
		errands = []*models.Errand{}
	}
	c.JSON(http.StatusOK, errands)
}

func (ctl *Controller) CreateErrand(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var body errandRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	if err := body.validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	e := &models.Errand{
		UserID:      uid,
		Title:       strings.TrimSpace(body.Title),
		Description: body.Description,
		Date:        body.Date,
		Time:        body.Time,
		Completed:   body.Completed,
	}
	if err := ctl.errands.Create(c.Request.Context(), e); err != nil {
		internalError(c, "Failed to create errand", err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (ctl *Controller) UpdateErrand(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body errandRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	if err := body.validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	e := &models.Errand{
		ErrandID:    id,
		UserID:      uid,
		Title:       strings.TrimSpace(body.Title),
		Description: body.Description,
		Date:        body.Date,
		Time:        body.Time,
		Completed:   body.Completed,
	}
	err := ctl.errands.Update(c.Request.Context(), e)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Errand not found"})
		return
	}
	if err != nil {
		internalError(c, "Failed to update errand", err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (ctl *Controller) DeleteErrand(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	err := ctl.errands.Delete(c.Request.Context(), id, uid)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Errand not found"})
		return
	}
	if err != nil {
		internalError(c, "Failed to delete errand", err)
		return
	}
	c.Status(http.StatusNoContent)
}
