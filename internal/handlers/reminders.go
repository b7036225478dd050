package handlers

import (
	"errors"
	"net/http"
	"time"

	"agropres/internal/models"
	"agropres/internal/service"

	"github.com/gin-gonic/gin"
)

const errNoUser = "no user bound"

type reminderRequest struct {
	Datetime     time.Time `json:"datetime" binding:"required"`
	Note         string    `json:"note"`
	TargetNumber string    `json:"targetNumber" binding:"required"`
	Message      string    `json:"message" binding:"required"`
}

// @Summary      List reminders
// @Tags         reminders
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, reminders"
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/reminders [get]
func (h *Handler) listReminders(c *gin.Context) {
	rs, err := h.services.Reminders.List(c.Request.Context())
	if err != nil {
		if errors.Is(err, service.ErrNotReady) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": errNoUser})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to list reminders", "list_reminders_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(rs), "reminders": rs})
}

// @Summary      Add a reminder
// @Description  Note is private and never transmitted; message is the dispatched payload
// @Tags         reminders
// @Accept       json
// @Produce      json
// @Param        body  body   reminderRequest  true  "Reminder payload"
// @Success      201   {object}  map[string]string  "id"
// @Failure      400   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /api/v1/reminders [post]
func (h *Handler) addReminder(c *gin.Context) {
	var req reminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBody + err.Error()})
		return
	}

	id, err := h.services.Reminders.Add(c.Request.Context(), models.Reminder{
		Datetime:     req.Datetime,
		Note:         req.Note,
		TargetNumber: req.TargetNumber,
		Message:      req.Message,
	})
	if err != nil {
		if errors.Is(err, service.ErrNotReady) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": errNoUser})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// @Summary      Delete a reminder
// @Tags         reminders
// @Produce      json
// @Param        id   path   string  true  "Reminder id"
// @Success      200  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/reminders/{id} [delete]
func (h *Handler) deleteReminder(c *gin.Context) {
	id := c.Param("id")
	if err := h.services.Reminders.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, service.ErrNotReady) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": errNoUser})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to delete reminder", "delete_reminder_failed", err, "id", id)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
