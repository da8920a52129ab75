package alerts

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nmoreau/sentra/internal/logging"
)

// Handlers exposes alert review endpoints.
type Handlers struct {
	service *Service
}

func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// Register mounts alert routes on the given router group.
func (h *Handlers) Register(rg *gin.RouterGroup) {
	rg.GET("/alerts", h.list)
	rg.GET("/alerts/:id", h.get)
	rg.PATCH("/alerts/:id/status", h.transition)
}

func (h *Handlers) list(c *gin.Context) {
	status := c.Query("status")
	offset := intQuery(c, "offset", 0, 0, 1<<30)
	limit := intQuery(c, "limit", 50, 1, 500)

	list, err := h.service.List(c.Request.Context(), status, offset, limit)
	if errors.Is(err, ErrInvalidStatus) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status filter"})
		return
	}
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to list alerts", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list alerts"})
		return
	}
	if list == nil {
		list = []*Alert{}
	}
	c.JSON(http.StatusOK, gin.H{
		"alerts": list,
		"count":  len(list),
		"offset": offset,
		"limit":  limit,
	})
}

func (h *Handlers) get(c *gin.Context) {
	a, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
		return
	}
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to get alert", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get alert"})
		return
	}
	c.JSON(http.StatusOK, a)
}

type transitionRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handlers) transition(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}

	a, err := h.service.Transition(c.Request.Context(), c.Param("id"), req.Status)
	switch {
	case errors.Is(err, ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status value"})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
	case err != nil:
		logging.L(c.Request.Context()).Error("failed to transition alert", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update alert"})
	default:
		c.JSON(http.StatusOK, a)
	}
}

func intQuery(c *gin.Context, name string, def, min, max int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min {
		return def
	}
	if v > max {
		return max
	}
	return v
}
