package documents

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pedjoni/idiorag/internal/api/apierr"
	"github.com/pedjoni/idiorag/internal/api/middleware"
	"github.com/pedjoni/idiorag/internal/domain"
)

// Ingester stores and indexes documents.
type Ingester interface {
	Ingest(ctx context.Context, ownerID string, req *domain.CreateDocumentRequest) (*domain.IngestResult, error)
}

// Store reads, deletes and reindexes an owner's documents.
type Store interface {
	Get(ctx context.Context, ownerID, id string) (*domain.Document, error)
	List(ctx context.Context, ownerID string, skip, limit int) (*domain.DocumentListResponse, error)
	Delete(ctx context.Context, ownerID, id string) error
	Reindex(ctx context.Context, ownerID, id string) (*domain.Document, error)
}

// StrategyLister lists registered chunking strategies.
type StrategyLister interface {
	Names() []string
}

// Handler handles document API requests
type Handler struct {
	ingester   Ingester
	documents  Store
	strategies StrategyLister
}

// NewHandler creates a new document handler
func NewHandler(ingester Ingester, documents Store, strategies StrategyLister) *Handler {
	return &Handler{
		ingester:   ingester,
		documents:  documents,
		strategies: strategies,
	}
}

// RegisterRoutes registers document routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	documents := r.Group("/documents")
	{
		documents.POST("", h.CreateDocument)
		documents.GET("", h.ListDocuments)
		documents.GET("/:id", h.GetDocument)
		documents.DELETE("/:id", h.DeleteDocument)
		documents.POST("/:id/reindex", h.ReindexDocument)
	}

	r.GET("/chunkers", h.ListChunkers)
}

// CreateDocument ingests a document. A new document answers 201; an
// updated or unchanged one answers 200.
func (h *Handler) CreateDocument(c *gin.Context) {
	var req domain.CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.ingester.Ingest(c.Request.Context(), middleware.OwnerID(c), &req)
	if err != nil {
		apierr.Respond(c, err)
		return
	}

	status := http.StatusOK
	if result.Action == domain.ActionCreated {
		status = http.StatusCreated
	}
	c.JSON(status, result)
}

func (h *Handler) ListDocuments(c *gin.Context) {
	skip, err := queryInt(c, "skip", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid skip"})
		return
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	page, err := h.documents.List(c.Request.Context(), middleware.OwnerID(c), skip, limit)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) GetDocument(c *gin.Context) {
	doc, err := h.documents.Get(c.Request.Context(), middleware.OwnerID(c), c.Param("id"))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *Handler) DeleteDocument(c *gin.Context) {
	if err := h.documents.Delete(c.Request.Context(), middleware.OwnerID(c), c.Param("id")); err != nil {
		apierr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ReindexDocument(c *gin.Context) {
	doc, err := h.documents.Reindex(c.Request.Context(), middleware.OwnerID(c), c.Param("id"))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *Handler) ListChunkers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"chunkers": h.strategies.Names()})
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}
