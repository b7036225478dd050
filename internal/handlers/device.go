package handlers

import (
	"errors"
	"net/http"

	"agropres/internal/models"
	"agropres/internal/service"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK        = "ok"
	statusToggled   = "toggled"
	statusScheduled = "scheduled"
	statusModeSet   = "mode_set"
	statusSaved     = "saved"

	errGetState      = "failed to load device state"
	errToggleControl = "failed to toggle control"
	errNotReady      = "no device bound"
	errInvalidBody   = "invalid body: "
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// Respond with a status and include the current snapshot if available
// (best-effort).
func (h *Handler) respondWithStatusAndState(c *gin.Context, status string, extra gin.H) {
	ctx := c.Request.Context()
	resp := gin.H{"status": status}
	for k, v := range extra {
		resp[k] = v
	}
	if snap, err := h.services.Monitoring.Snapshot(ctx); err == nil {
		resp["state"] = snap
	}
	c.JSON(http.StatusOK, resp)
}

type toggleRequest struct {
	Value *bool `json:"value" binding:"required"`
}

type pwmRequest struct {
	Value *int `json:"value" binding:"required"` // clamped to [0,1023]
}

type modeRequest struct {
	Mode string `json:"mode" binding:"required"` // manual | auto
}

type schedulesRequest map[string]models.RelaySchedule

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Get device state
// @Description  Effective snapshot: cached store state with derived online flag
// @Tags         device
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/device/state [get]
func (h *Handler) getState(c *gin.Context) {
	snap, err := h.services.Monitoring.Snapshot(c.Request.Context())
	if err != nil {
		if errors.Is(err, service.ErrNotReady) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": errNotReady})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, errGetState, "get_state_failed", err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// @Summary      Toggle a boolean actuator
// @Description  Manual command with optimistic update and rollback on store failure
// @Tags         device
// @Accept       json
// @Produce      json
// @Param        key   path   string         true  "Actuator key"  Enums(uv_light,ultrasonic)
// @Param        body  body   toggleRequest  true  "Toggle payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /api/v1/device/controls/{key}/toggle [post]
func (h *Handler) toggleControl(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBody + err.Error()})
		return
	}

	key := c.Param("key")
	if err := h.services.Commands.Toggle(c.Request.Context(), key, *req.Value); err != nil {
		switch {
		case errors.Is(err, service.ErrNotReady):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": errNotReady})
		default:
			// The local value has been rolled back; tell the caller the
			// device state is unchanged.
			h.logAndJSONError(c, http.StatusBadGateway, errToggleControl, "toggle_failed", err, "control", key)
		}
		return
	}
	h.respondWithStatusAndState(c, statusToggled, gin.H{"control": key, "value": *req.Value})
}

// @Summary      Set PWM raw value
// @Description  Debounced: rapid calls coalesce into one store write per quiet interval
// @Tags         device
// @Accept       json
// @Produce      json
// @Param        body  body   pwmRequest  true  "PWM payload"
// @Success      202   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /api/v1/device/controls/pwm [post]
func (h *Handler) setPwm(c *gin.Context) {
	var req pwmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBody + err.Error()})
		return
	}

	if err := h.services.Commands.SetPwmRaw(c.Request.Context(), *req.Value); err != nil {
		if errors.Is(err, service.ErrNotReady) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": errNotReady})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to schedule pwm write", "set_pwm_failed", err)
		return
	}
	// Accepted, not applied: the write lands after the input goes quiet.
	c.JSON(http.StatusAccepted, gin.H{"status": statusScheduled})
}

// @Summary      Set actuator mode
// @Tags         device
// @Accept       json
// @Produce      json
// @Param        key   path   string       true  "Actuator key"  Enums(uv_light,ultrasonic)
// @Param        body  body   modeRequest  true  "Mode payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /api/v1/device/modes/{key} [post]
func (h *Handler) setMode(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBody + err.Error()})
		return
	}

	key := c.Param("key")
	if err := h.services.Commands.SetMode(c.Request.Context(), key, req.Mode); err != nil {
		if errors.Is(err, service.ErrNotReady) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": errNotReady})
			return
		}
		if h.log != nil {
			h.log.Errorw("set_mode_failed", "err", err, "control", key, "mode", req.Mode)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.respondWithStatusAndState(c, statusModeSet, gin.H{"control": key, "mode": req.Mode})
}

// @Summary      Save relay schedules
// @Tags         device
// @Accept       json
// @Produce      json
// @Param        body  body   map[string]models.RelaySchedule  true  "Schedules keyed by actuator"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /api/v1/device/schedules [put]
func (h *Handler) saveSchedules(c *gin.Context) {
	var req schedulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBody + err.Error()})
		return
	}
	if len(req) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no schedules in body"})
		return
	}

	if err := h.services.Commands.SaveSchedules(c.Request.Context(), req); err != nil {
		if errors.Is(err, service.ErrNotReady) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": errNotReady})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.respondWithStatusAndState(c, statusSaved, gin.H{})
}
