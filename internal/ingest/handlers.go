package ingest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nmoreau/sentra/internal/logging"
	"github.com/nmoreau/sentra/internal/transactions"
	"github.com/nmoreau/sentra/internal/validation"
)

// Handlers exposes the ingestion endpoint.
type Handlers struct {
	service *Service
}

func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// Register mounts the ingestion route on the given router group.
func (h *Handlers) Register(rg *gin.RouterGroup) {
	rg.POST("/transactions", h.ingest)
}

func (h *Handlers) ingest(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.service.Ingest(c.Request.Context(), &req)

	var verrs validation.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": verrs})
	case errors.Is(err, transactions.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": "transaction already exists"})
	case err != nil:
		logging.L(c.Request.Context()).Error("ingestion failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process transaction"})
	default:
		c.JSON(http.StatusCreated, result)
	}
}
