package query

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pedjoni/idiorag/internal/api/apierr"
	"github.com/pedjoni/idiorag/internal/api/middleware"
	"github.com/pedjoni/idiorag/internal/domain"
)

// Orchestrator answers queries.
type Orchestrator interface {
	Query(ctx context.Context, req *domain.QueryRequest) (*domain.QueryResponse, error)
	QueryStream(ctx context.Context, req *domain.QueryRequest) (<-chan domain.StreamEvent, error)
}

// Handler handles query API requests
type Handler struct {
	orchestrator Orchestrator
}

// NewHandler creates a new query handler
func NewHandler(orchestrator Orchestrator) *Handler {
	return &Handler{orchestrator: orchestrator}
}

// RegisterRoutes registers query routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/query", h.Query)
	r.POST("/query/chat", h.Chat)
}

// Query answers a question in one response. Failures after validation
// come back as 200 with the error in the answer.
func (h *Handler) Query(c *gin.Context) {
	var req domain.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.OwnerID = middleware.OwnerID(c)

	resp, err := h.orchestrator.Query(c.Request.Context(), &req)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Chat answers a question as a Server-Sent Events stream.
func (h *Handler) Chat(c *gin.Context) {
	var req domain.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.OwnerID = middleware.OwnerID(c)

	ctx := c.Request.Context()
	events, err := h.orchestrator.QueryStream(ctx, &req)
	if err != nil {
		apierr.Respond(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			if err := writeEvent(w, ev); err != nil {
				return false
			}
			return !ev.IsTerminal()
		case <-ctx.Done():
			return false
		}
	})
}

// payload is the JSON body of one event. Each type carries only its own
// fields; a context event always carries a chunks array.
func payload(ev domain.StreamEvent) gin.H {
	switch ev.Type {
	case domain.EventContext:
		chunks := ev.Chunks
		if chunks == nil {
			chunks = []domain.RetrievedMatch{}
		}
		p := gin.H{"type": ev.Type, "chunks": chunks}
		if ev.Metadata != nil {
			p["metadata"] = ev.Metadata
		}
		return p
	case domain.EventError:
		return gin.H{"type": ev.Type, "message": ev.Message}
	case domain.EventDone:
		return gin.H{"type": ev.Type}
	default:
		return gin.H{"type": ev.Type, "content": ev.Content}
	}
}

func writeEvent(w io.Writer, ev domain.StreamEvent) error {
	data, err := json.Marshal(payload(ev))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}
