package webhooks

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nmoreau/sentra/internal/idgen"
	"github.com/nmoreau/sentra/internal/security"
)

// Handlers provides HTTP endpoints for webhook management.
type Handlers struct {
	store Store
}

func NewHandlers(store Store) *Handlers {
	return &Handlers{store: store}
}

// Register mounts webhook routes on the given router group.
func (h *Handlers) Register(rg *gin.RouterGroup) {
	rg.POST("/webhooks", h.create)
	rg.GET("/webhooks", h.list)
	rg.DELETE("/webhooks/:id", h.delete)
}

type createRequest struct {
	URL    string   `json:"url" binding:"required"`
	Events []string `json:"events" binding:"required"`
}

func (h *Handlers) create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url and events are required"})
		return
	}

	if err := security.ValidateEndpointURL(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	events := make([]EventType, 0, len(req.Events))
	for _, e := range req.Events {
		et := EventType(e)
		if !ValidEventType(et) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown event type: " + e})
			return
		}
		events = append(events, et)
	}

	sub := &Subscription{
		ID:        idgen.WithPrefix("wh_"),
		URL:       req.URL,
		Secret:    idgen.Hex(32),
		Events:    events,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.store.Create(c.Request.Context(), sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create webhook"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"webhook": sub,
		"secret":  sub.Secret, // Only shown once
		"usage": gin.H{
			"signature": "Verify with HMAC-SHA256(payload, secret)",
			"header":    "X-Sentra-Signature",
		},
	})
}

func (h *Handlers) list(c *gin.Context) {
	subs, err := h.store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list webhooks"})
		return
	}
	if subs == nil {
		subs = []*Subscription{}
	}
	c.JSON(http.StatusOK, gin.H{"webhooks": subs})
}

func (h *Handlers) delete(c *gin.Context) {
	err := h.store.Delete(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "webhook not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete webhook"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
