package query

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pedjoni/idiorag/internal/api/middleware"
	"github.com/pedjoni/idiorag/internal/auth"
	"github.com/pedjoni/idiorag/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type tokenIsUser struct{}

func (tokenIsUser) Authenticate(token string) (*auth.User, error) {
	return &auth.User{ID: token}, nil
}

type fakeOrchestrator struct {
	resp   *domain.QueryResponse
	events []domain.StreamEvent
	err    error
	gotReq *domain.QueryRequest
}

func (f *fakeOrchestrator) Query(_ context.Context, req *domain.QueryRequest) (*domain.QueryResponse, error) {
	f.gotReq = req
	return f.resp, f.err
}

func (f *fakeOrchestrator) QueryStream(_ context.Context, req *domain.QueryRequest) (<-chan domain.StreamEvent, error) {
	f.gotReq = req
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan domain.StreamEvent, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

// sseRecorder lets gin's Stream run against a recorder.
type sseRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *sseRecorder) CloseNotify() <-chan bool { return r.closed }

func setup(o *fakeOrchestrator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("/api/v1")
	g.Use(middleware.Auth(tokenIsUser{}, zap.NewNop()))
	NewHandler(o).RegisterRoutes(g)
	return r
}

func post(r http.Handler, path, body string) *sseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer alice")
	w := &sseRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}
	r.ServeHTTP(w, req)
	return w
}

type sseEvent struct {
	name string
	data map[string]any
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		lines := strings.Split(block, "\n")
		require.Len(t, lines, 2, "block %q", block)
		name, ok := strings.CutPrefix(lines[0], "event: ")
		require.True(t, ok)
		data, ok := strings.CutPrefix(lines[1], "data: ")
		require.True(t, ok)
		var payload map[string]any
		require.NoError(t, json.Unmarshal([]byte(data), &payload))
		events = append(events, sseEvent{name: name, data: payload})
	}
	return events
}

func TestQueryBatch(t *testing.T) {
	o := &fakeOrchestrator{resp: &domain.QueryResponse{
		Query:   "q",
		Answer:  "a",
		Context: []domain.RetrievedMatch{{Text: "c", OwnerID: "alice", DocumentID: "d1", Score: 0.9}},
	}}
	r := setup(o)

	w := post(r, "/api/v1/query", `{"query":"q","top_k":3}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", o.gotReq.OwnerID)
	assert.Equal(t, 3, o.gotReq.TopK)

	var got domain.QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "a", got.Answer)
	require.Len(t, got.Context, 1)
	assert.Equal(t, "c", got.Context[0].Text)
}

func TestQueryIgnoresOwnerInBody(t *testing.T) {
	o := &fakeOrchestrator{resp: &domain.QueryResponse{}}
	r := setup(o)

	post(r, "/api/v1/query", `{"query":"q","owner_id":"bob","OwnerID":"bob"}`)
	require.NotNil(t, o.gotReq)
	assert.Equal(t, "alice", o.gotReq.OwnerID)
}

func TestQueryValidation(t *testing.T) {
	r := setup(&fakeOrchestrator{resp: &domain.QueryResponse{}})

	bodies := []string{
		`{}`,
		`{"query":""}`,
		`{"query":"q","mode":"shouting"}`,
		`{"query":"q","temperature":3}`,
		`{"query":"q","max_tokens":5000}`,
		`{"query":"` + strings.Repeat("x", 2001) + `"}`,
	}
	for _, body := range bodies {
		w := post(r, "/api/v1/query", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}

	o := &fakeOrchestrator{err: domain.ErrInvalidRequest}
	w := post(setup(o), "/api/v1/query", `{"query":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatStreamsEvents(t *testing.T) {
	o := &fakeOrchestrator{events: []domain.StreamEvent{
		{Type: domain.EventContext, Chunks: []domain.RetrievedMatch{{Text: "c", OwnerID: "alice", DocumentID: "d1"}},
			Metadata: &domain.RetrievalMetadata{ChunksRetrieved: 1, DocumentsRetrieved: 1}},
		{Type: domain.EventThinking, Content: "hmm"},
		{Type: domain.EventAnswer, Content: "42"},
		{Type: domain.EventDone},
	}}
	w := post(setup(o), "/api/v1/query/chat", `{"query":"q","mode":"chain_of_thought"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))

	events := parseSSE(t, w.Body.String())
	require.Len(t, events, 4)

	assert.Equal(t, "context", events[0].name)
	assert.Len(t, events[0].data["chunks"], 1)
	assert.Contains(t, events[0].data, "metadata")

	assert.Equal(t, "thinking", events[1].name)
	assert.Equal(t, "hmm", events[1].data["content"])
	assert.Equal(t, "answer", events[2].name)
	assert.Equal(t, "42", events[2].data["content"])
	assert.Equal(t, map[string]any{"type": "done"}, events[3].data)
}

func TestChatContextAlwaysCarriesChunks(t *testing.T) {
	o := &fakeOrchestrator{events: []domain.StreamEvent{
		{Type: domain.EventContext},
		{Type: domain.EventError, Message: "retrieval failed: store down"},
	}}
	w := post(setup(o), "/api/v1/query/chat", `{"query":"q"}`)

	events := parseSSE(t, w.Body.String())
	require.Len(t, events, 2)
	assert.Equal(t, []any{}, events[0].data["chunks"])
	assert.Equal(t, "error", events[1].name)
	assert.Equal(t, "retrieval failed: store down", events[1].data["message"])
	assert.NotContains(t, events[1].data, "content")
}

func TestChatStopsAtTerminalEvent(t *testing.T) {
	o := &fakeOrchestrator{events: []domain.StreamEvent{
		{Type: domain.EventContext},
		{Type: domain.EventToken, Content: "a"},
		{Type: domain.EventDone},
		{Type: domain.EventToken, Content: "late"},
	}}
	w := post(setup(o), "/api/v1/query/chat", `{"query":"q"}`)

	events := parseSSE(t, w.Body.String())
	require.Len(t, events, 3)
	assert.Equal(t, "done", events[2].name)
}

func TestChatRejectsBeforeStreaming(t *testing.T) {
	o := &fakeOrchestrator{err: domain.ErrInvalidRequest}
	w := post(setup(o), "/api/v1/query/chat", `{"query":"q"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
}
