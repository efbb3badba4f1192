package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"arbor/pkg/tree"
)

type insertRequest struct {
	ParentID int64  `json:"parent_id" binding:"required"`
	Title    string `json:"title" binding:"required"`
}

type updateRequest struct {
	Title string `json:"title" binding:"required"`
}

type moveRequest struct {
	NewParentID int64 `json:"new_parent_id" binding:"required"`
}

type reorderRequest struct {
	// Pointer so position 0 survives the required check.
	NewOrdering *int `json:"new_ordering" binding:"required"`
}

// statusFor maps the tree error taxonomy onto HTTP status codes. Anything
// outside the taxonomy is a storage failure and reported as 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, tree.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tree.ErrInvalidParent),
		errors.Is(err, tree.ErrForbidden),
		errors.Is(err, tree.ErrCycle),
		errors.Is(err, tree.ErrInvalidOrdering),
		errors.Is(err, tree.ErrEmptyTitle):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func renderError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("operation failed", "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func nodeID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid node id"})
		return 0, false
	}
	return id, true
}

// HealthCheck reports service liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetNode returns a node and its immediate children.
func GetNode(manager *tree.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := nodeID(c)
		if !ok {
			return
		}
		node, err := manager.GetNode(c.Request.Context(), id)
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, node)
	}
}

// InsertNode appends a new node under the given parent.
func InsertNode(manager *tree.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req insertRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		node, err := manager.InsertNode(c.Request.Context(), req.ParentID, req.Title)
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusCreated, node)
	}
}

// UpdateNode replaces a node's title.
func UpdateNode(manager *tree.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := nodeID(c)
		if !ok {
			return
		}
		var req updateRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		node, err := manager.UpdateNode(c.Request.Context(), id, req.Title)
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, node)
	}
}

// DeleteNode removes a node and its whole subtree.
func DeleteNode(manager *tree.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := nodeID(c)
		if !ok {
			return
		}
		if err := manager.DeleteNode(c.Request.Context(), id); err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "deleted", "id": id})
	}
}

// MoveNode reparents a node under a new parent.
func MoveNode(manager *tree.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := nodeID(c)
		if !ok {
			return
		}
		var req moveRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := manager.MoveNode(c.Request.Context(), id, req.NewParentID); err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "moved", "id": id})
	}
}

// ReorderNode repositions a node among its siblings.
func ReorderNode(manager *tree.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := nodeID(c)
		if !ok {
			return
		}
		var req reorderRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := manager.ReorderNode(c.Request.Context(), id, *req.NewOrdering); err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "reordered", "id": id})
	}
}
