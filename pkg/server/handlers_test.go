package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbor/pkg/model"
	"arbor/pkg/storage"
	"arbor/pkg/tree"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := storage.Open(filepath.Join(t.TempDir(), "arbor.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(tree.NewManager(store, logger), logger)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeNode(t *testing.T, w *httptest.ResponseRecorder) model.Node {
	t.Helper()
	var n model.Node
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &n))
	return n
}

// insertNode creates a node over the API and returns its id.
func insertNode(t *testing.T, s *Server, parentID int64, title string) int64 {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/v1/nodes", gin.H{"parent_id": parentID, "title": title})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeNode(t, w).ID
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestIDHeader(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/health", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestGetRootWithChildren(t *testing.T) {
	s := newTestServer(t)
	first := insertNode(t, s, model.RootID, "first")
	second := insertNode(t, s, model.RootID, "second")

	w := doJSON(t, s, http.MethodGet, fmt.Sprintf("/v1/nodes/%d", model.RootID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got model.NodeWithChildren
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, model.RootID, got.ID)
	assert.Equal(t, model.RootTitle, got.Title)
	require.Len(t, got.Children, 2)
	assert.Equal(t, first, got.Children[0].ID)
	assert.Equal(t, second, got.Children[1].ID)
	assert.Equal(t, 0, got.Children[0].Ordering)
	assert.Equal(t, 1, got.Children[1].Ordering)
}

func TestGetLeafHasEmptyChildrenArray(t *testing.T) {
	s := newTestServer(t)
	id := insertNode(t, s, model.RootID, "leaf")

	w := doJSON(t, s, http.MethodGet, fmt.Sprintf("/v1/nodes/%d", id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	// children must serialize as [], not null.
	assert.Contains(t, w.Body.String(), `"children":[]`)
}

func TestGetNodeErrors(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/v1/nodes/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, s, http.MethodGet, "/v1/nodes/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInsertNode(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/v1/nodes", gin.H{"parent_id": model.RootID, "title": "child"})
	require.Equal(t, http.StatusCreated, w.Code)
	node := decodeNode(t, w)
	assert.Equal(t, "child", node.Title)
	assert.Equal(t, 0, node.Ordering)
	require.NotNil(t, node.ParentID)
	assert.Equal(t, model.RootID, *node.ParentID)
}

func TestInsertNodeErrors(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/v1/nodes", gin.H{"parent_id": 999, "title": "orphan"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s, http.MethodPost, "/v1/nodes", gin.H{"parent_id": model.RootID})
	assert.Equal(t, http.StatusBadRequest, w.Code, "missing title")

	req := httptest.NewRequest(http.MethodPost, "/v1/nodes", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	w2 := httptest.NewRecorder()
	s.Handler().ServeHTTP(w2, req)
	assert.Equal(t, http.StatusBadRequest, w2.Code, "malformed body")
}

func TestUpdateNode(t *testing.T) {
	s := newTestServer(t)
	id := insertNode(t, s, model.RootID, "before")

	w := doJSON(t, s, http.MethodPut, fmt.Sprintf("/v1/nodes/%d", id), gin.H{"title": "after"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "after", decodeNode(t, w).Title)

	w = doJSON(t, s, http.MethodPut, "/v1/nodes/999", gin.H{"title": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteNode(t *testing.T) {
	s := newTestServer(t)
	parent := insertNode(t, s, model.RootID, "parent")
	child := insertNode(t, s, parent, "child")

	w := doJSON(t, s, http.MethodDelete, fmt.Sprintf("/v1/nodes/%d", parent), nil)
	require.Equal(t, http.StatusOK, w.Code)

	for _, id := range []int64{parent, child} {
		w = doJSON(t, s, http.MethodGet, fmt.Sprintf("/v1/nodes/%d", id), nil)
		assert.Equal(t, http.StatusNotFound, w.Code, "node %d should be gone", id)
	}
}

func TestDeleteNodeErrors(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodDelete, fmt.Sprintf("/v1/nodes/%d", model.RootID), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "root is protected")

	w = doJSON(t, s, http.MethodDelete, "/v1/nodes/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMoveNode(t *testing.T) {
	s := newTestServer(t)
	a := insertNode(t, s, model.RootID, "a")
	b := insertNode(t, s, model.RootID, "b")

	w := doJSON(t, s, http.MethodPut, fmt.Sprintf("/v1/nodes/%d/move", a), gin.H{"new_parent_id": b})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodGet, fmt.Sprintf("/v1/nodes/%d", a), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got model.NodeWithChildren
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.NotNil(t, got.ParentID)
	assert.Equal(t, b, *got.ParentID)
	assert.Equal(t, 0, got.Ordering)
}

func TestMoveNodeCycle(t *testing.T) {
	s := newTestServer(t)
	a := insertNode(t, s, model.RootID, "a")
	c := insertNode(t, s, a, "c")

	w := doJSON(t, s, http.MethodPut, fmt.Sprintf("/v1/nodes/%d/move", a), gin.H{"new_parent_id": c})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s, http.MethodPut, fmt.Sprintf("/v1/nodes/%d/move", a), gin.H{"new_parent_id": a})
	assert.Equal(t, http.StatusBadRequest, w.Code, "move to itself")
}

func TestMoveNodeErrors(t *testing.T) {
	s := newTestServer(t)
	a := insertNode(t, s, model.RootID, "a")

	w := doJSON(t, s, http.MethodPut, fmt.Sprintf("/v1/nodes/%d/move", model.RootID), gin.H{"new_parent_id": a})
	assert.Equal(t, http.StatusBadRequest, w.Code, "root cannot move")

	w = doJSON(t, s, http.MethodPut, "/v1/nodes/999/move", gin.H{"new_parent_id": a})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, s, http.MethodPut, fmt.Sprintf("/v1/nodes/%d/move", a), gin.H{"new_parent_id": 999})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReorderNode(t *testing.T) {
	s := newTestServer(t)
	a := insertNode(t, s, model.RootID, "a")
	b := insertNode(t, s, model.RootID, "b")

	w := doJSON(t, s, http.MethodPut, fmt.Sprintf("/v1/nodes/%d/reorder", a), gin.H{"new_ordering": 1})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodGet, fmt.Sprintf("/v1/nodes/%d", model.RootID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got model.NodeWithChildren
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got.Children, 2)
	assert.Equal(t, b, got.Children[0].ID)
	assert.Equal(t, a, got.Children[1].ID)
}

func TestReorderNodeToPositionZero(t *testing.T) {
	s := newTestServer(t)
	insertNode(t, s, model.RootID, "a")
	b := insertNode(t, s, model.RootID, "b")

	// Position 0 must pass the required-field binding.
	w := doJSON(t, s, http.MethodPut, fmt.Sprintf("/v1/nodes/%d/reorder", b), gin.H{"new_ordering": 0})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestReorderNodeErrors(t *testing.T) {
	s := newTestServer(t)
	a := insertNode(t, s, model.RootID, "a")

	w := doJSON(t, s, http.MethodPut, fmt.Sprintf("/v1/nodes/%d/reorder", a), gin.H{"new_ordering": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s, http.MethodPut, fmt.Sprintf("/v1/nodes/%d/reorder", a), gin.H{"new_ordering": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s, http.MethodPut, "/v1/nodes/999/reorder", gin.H{"new_ordering": 0})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, s, http.MethodPut, fmt.Sprintf("/v1/nodes/%d/reorder", a), gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code, "missing new_ordering")
}
