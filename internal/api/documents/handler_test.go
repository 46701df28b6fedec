package documents

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pedjoni/idiorag/internal/api/middleware"
	"github.com/pedjoni/idiorag/internal/auth"
	"github.com/pedjoni/idiorag/internal/chunker"
	"github.com/pedjoni/idiorag/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// tokenIsUser treats the bearer token as the user id.
type tokenIsUser struct{}

func (tokenIsUser) Authenticate(token string) (*auth.User, error) {
	return &auth.User{ID: token}, nil
}

type fakeIngester struct {
	result *domain.IngestResult
	err    error
	owner  string
	req    *domain.CreateDocumentRequest
}

func (f *fakeIngester) Ingest(_ context.Context, ownerID string, req *domain.CreateDocumentRequest) (*domain.IngestResult, error) {
	f.owner, f.req = ownerID, req
	return f.result, f.err
}

type fakeStore struct {
	docs      map[string]*domain.Document
	deleted   []string
	listSkip  int
	listLimit int
}

func (f *fakeStore) Get(_ context.Context, ownerID, id string) (*domain.Document, error) {
	doc, ok := f.docs[id]
	if !ok || doc.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	return doc, nil
}

func (f *fakeStore) List(_ context.Context, ownerID string, skip, limit int) (*domain.DocumentListResponse, error) {
	f.listSkip, f.listLimit = skip, limit
	resp := &domain.DocumentListResponse{Documents: []*domain.Document{}, Skip: skip, Limit: limit}
	for _, d := range f.docs {
		if d.OwnerID == ownerID {
			resp.Documents = append(resp.Documents, d)
		}
	}
	resp.Total = len(resp.Documents)
	return resp, nil
}

func (f *fakeStore) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := f.Get(ctx, ownerID, id); err != nil {
		return err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeStore) Reindex(ctx context.Context, ownerID, id string) (*domain.Document, error) {
	doc, err := f.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	doc.IndexStatus = domain.IndexStatusIndexed
	return doc, nil
}

type names []string

func (n names) Names() []string { return n }

func setup(ingester *fakeIngester, store *fakeStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("/api/v1")
	g.Use(middleware.Auth(tokenIsUser{}, zap.NewNop()))
	NewHandler(ingester, store, names{"default", "fishing"}).RegisterRoutes(g)
	return r
}

func do(r http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateDocumentStatusFollowsAction(t *testing.T) {
	tests := []struct {
		action string
		want   int
	}{
		{domain.ActionCreated, http.StatusCreated},
		{domain.ActionUpdated, http.StatusOK},
		{domain.ActionUnchanged, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			ing := &fakeIngester{result: &domain.IngestResult{
				Action:   tt.action,
				Document: &domain.Document{ID: "d1", OwnerID: "alice", Title: "t"},
			}}
			r := setup(ing, &fakeStore{})

			w := do(r, http.MethodPost, "/api/v1/documents", "alice", `{"title":"t","content":"c","source":"s"}`)
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, "alice", ing.owner)
			assert.Equal(t, "s", ing.req.Source)

			var got domain.IngestResult
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			assert.Equal(t, tt.action, got.Action)
			assert.Equal(t, "d1", got.Document.ID)
		})
	}
}

func TestCreateDocumentRejectsBadRequests(t *testing.T) {
	ing := &fakeIngester{}
	r := setup(ing, &fakeStore{})

	w := do(r, http.MethodPost, "/api/v1/documents", "alice", `{"title":"t"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, ing.req)

	ing.err = &chunker.StrategyNotFoundError{Name: "nope", Known: []string{"default"}}
	w = do(r, http.MethodPost, "/api/v1/documents", "alice", `{"title":"t","content":"c","chunker":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `chunker \"nope\" not found`)
}

func TestCreateDocumentRequiresToken(t *testing.T) {
	r := setup(&fakeIngester{}, &fakeStore{})
	w := do(r, http.MethodPost, "/api/v1/documents", "", `{"title":"t","content":"c"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
}

func TestDocumentsAreOwnerScoped(t *testing.T) {
	store := &fakeStore{docs: map[string]*domain.Document{
		"a1": {ID: "a1", OwnerID: "alice", Title: "mine"},
		"b1": {ID: "b1", OwnerID: "bob", Title: "theirs"},
	}}
	r := setup(&fakeIngester{}, store)

	w := do(r, http.MethodGet, "/api/v1/documents/a1", "alice", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"mine"`)

	w = do(r, http.MethodGet, "/api/v1/documents/b1", "alice", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodDelete, "/api/v1/documents/b1", "alice", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, store.deleted)

	w = do(r, http.MethodDelete, "/api/v1/documents/a1", "alice", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Equal(t, []string{"a1"}, store.deleted)
}

func TestListDocuments(t *testing.T) {
	store := &fakeStore{docs: map[string]*domain.Document{
		"a1": {ID: "a1", OwnerID: "alice"},
		"a2": {ID: "a2", OwnerID: "alice"},
		"b1": {ID: "b1", OwnerID: "bob"},
	}}
	r := setup(&fakeIngester{}, store)

	w := do(r, http.MethodGet, "/api/v1/documents?skip=1&limit=10", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, store.listSkip)
	assert.Equal(t, 10, store.listLimit)

	var page domain.DocumentListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, 2, page.Total)

	w = do(r, http.MethodGet, "/api/v1/documents?limit=ten", "alice", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReindexDocument(t *testing.T) {
	store := &fakeStore{docs: map[string]*domain.Document{
		"a1": {ID: "a1", OwnerID: "alice", IndexStatus: domain.IndexStatusFailed},
	}}
	r := setup(&fakeIngester{}, store)

	w := do(r, http.MethodPost, "/api/v1/documents/a1/reindex", "alice", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), fmt.Sprintf(`"index_status":%q`, domain.IndexStatusIndexed))

	w = do(r, http.MethodPost, "/api/v1/documents/a1/reindex", "bob", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListChunkers(t *testing.T) {
	r := setup(&fakeIngester{}, &fakeStore{})
	w := do(r, http.MethodGet, "/api/v1/chunkers", "alice", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"chunkers":["default","fishing"]}`, w.Body.String())
}
