package transactions

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nmoreau/sentra/internal/logging"
)

// Handlers exposes read endpoints over a transaction store.
type Handlers struct {
	store Store
}

func NewHandlers(store Store) *Handlers {
	return &Handlers{store: store}
}

// Register mounts transaction routes on the given router group.
func (h *Handlers) Register(rg *gin.RouterGroup) {
	rg.GET("/transactions", h.list)
	rg.GET("/transactions/:id", h.get)
	rg.GET("/users/:userId/transactions", h.listByUser)
	rg.GET("/stats", h.stats)
}

func (h *Handlers) list(c *gin.Context) {
	userID := c.Query("userId")
	offset := intQuery(c, "offset", 0, 0, 1<<30)
	limit := intQuery(c, "limit", 50, 1, 500)

	txns, err := h.store.List(c.Request.Context(), userID, offset, limit)
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to list transactions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list transactions"})
		return
	}
	if txns == nil {
		txns = []*Transaction{}
	}
	c.JSON(http.StatusOK, gin.H{
		"transactions": txns,
		"count":        len(txns),
		"offset":       offset,
		"limit":        limit,
	})
}

func (h *Handlers) get(c *gin.Context) {
	tx, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
		return
	}
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to get transaction", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get transaction"})
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (h *Handlers) listByUser(c *gin.Context) {
	limit := intQuery(c, "limit", 100, 1, 500)
	txns, err := h.store.ListByUser(c.Request.Context(), c.Param("userId"), limit)
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to list user transactions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list transactions"})
		return
	}
	if txns == nil {
		txns = []*Transaction{}
	}
	c.JSON(http.StatusOK, gin.H{
		"userId":       c.Param("userId"),
		"transactions": txns,
		"count":        len(txns),
	})
}

func (h *Handlers) stats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to compute stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
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
