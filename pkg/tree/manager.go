// Package tree implements the invariant-preserving mutation core of the node
// tree: insert, relocate, delete, and reorder over the persisted
// parent-pointer table, including cycle prevention on move and the sibling
// renumbering that keeps every ordering group dense.
package tree

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"sync"

	"arbor/pkg/model"
	"arbor/pkg/storage"
)

// Manager owns all tree mutations. Mutating operations are serialized by a
// single writer lock; reads run on their own transactions without it.
type Manager struct {
	nodes  *storage.NodeStore
	store  *storage.Storage
	logger *slog.Logger

	mu sync.Mutex // guards sibling renumbering across concurrent writers
}

// NewManager creates a tree manager on top of the given storage.
func NewManager(store *storage.Storage, logger *slog.Logger) *Manager {
	return &Manager{
		nodes:  storage.NewNodeStore(store),
		store:  store,
		logger: logger,
	}
}

// GetNode returns the node and its immediate children in ascending ordering.
func (m *Manager) GetNode(ctx context.Context, id int64) (*model.NodeWithChildren, error) {
	var result *model.NodeWithChildren
	err := m.store.WithTx(ctx, func(tx *sql.Tx) error {
		node, err := m.nodes.Get(ctx, tx, id)
		if err != nil {
			return err
		}
		if node == nil {
			return ErrNotFound
		}
		children, err := m.nodes.Children(ctx, tx, id)
		if err != nil {
			return err
		}
		if children == nil {
			children = []*model.Node{}
		}
		result = &model.NodeWithChildren{Node: *node, Children: children}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// InsertNode appends a new node as the last child of parentID. The fresh
// ordering equals the current child count, so density is preserved without
// renumbering.
func (m *Manager) InsertNode(ctx context.Context, parentID int64, title string) (*model.Node, error) {
	if strings.TrimSpace(title) == "" {
		return nil, ErrEmptyTitle
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var node *model.Node
	err := m.store.WithTx(ctx, func(tx *sql.Tx) error {
		parent, err := m.nodes.Get(ctx, tx, parentID)
		if err != nil {
			return err
		}
		if parent == nil {
			return ErrInvalidParent
		}
		count, err := m.nodes.ChildCount(ctx, tx, parentID)
		if err != nil {
			return err
		}
		id, err := m.nodes.Insert(ctx, tx, title, parentID, count)
		if err != nil {
			return err
		}
		node, err = m.nodes.Get(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("node inserted", "id", node.ID, "parent", parentID, "ordering", node.Ordering)
	return node, nil
}

// UpdateNode replaces a node's title; parent and ordering are untouched.
func (m *Manager) UpdateNode(ctx context.Context, id int64, title string) (*model.Node, error) {
	if strings.TrimSpace(title) == "" {
		return nil, ErrEmptyTitle
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var node *model.Node
	err := m.store.WithTx(ctx, func(tx *sql.Tx) error {
		existing, err := m.nodes.Get(ctx, tx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrNotFound
		}
		if err := m.nodes.UpdateTitle(ctx, tx, id, title); err != nil {
			return err
		}
		node, err = m.nodes.Get(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("node updated", "id", id)
	return node, nil
}

// DeleteNode removes the node and every transitive descendant in one
// transaction, then renumbers the vacated sibling group so orderings stay
// dense. Deleting the root is forbidden.
func (m *Manager) DeleteNode(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int
	err := m.store.WithTx(ctx, func(tx *sql.Tx) error {
		node, err := m.nodes.Get(ctx, tx, id)
		if err != nil {
			return err
		}
		if node == nil {
			return ErrNotFound
		}
		if node.IsRoot() {
			return ErrForbidden
		}

		ids, err := m.collectSubtree(ctx, tx, id)
		if err != nil {
			return err
		}
		// ids come back parent-before-child; delete in reverse so no row
		// is removed while children still reference it.
		for i := len(ids) - 1; i >= 0; i-- {
			if err := m.nodes.Delete(ctx, tx, ids[i]); err != nil {
				return err
			}
		}
		removed = len(ids)
		return m.nodes.CloseGap(ctx, tx, *node.ParentID, node.Ordering)
	})
	if err != nil {
		return err
	}
	m.logger.Info("node deleted", "id", id, "subtreeSize", removed)
	return nil
}

// MoveNode reparents a node, appending it as the last child of newParentID.
// Moving the root, or moving a node under itself or any of its descendants,
// is rejected. The old sibling group is renumbered in the same transaction.
func (m *Manager) MoveNode(ctx context.Context, id, newParentID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.store.WithTx(ctx, func(tx *sql.Tx) error {
		node, err := m.nodes.Get(ctx, tx, id)
		if err != nil {
			return err
		}
		if node == nil {
			return ErrNotFound
		}
		if node.IsRoot() {
			return ErrForbidden
		}
		newParent, err := m.nodes.Get(ctx, tx, newParentID)
		if err != nil {
			return err
		}
		if newParent == nil {
			return ErrNotFound
		}
		if err := m.checkCycle(ctx, tx, id, newParent); err != nil {
			return err
		}

		oldParentID := *node.ParentID
		if err := m.nodes.CloseGap(ctx, tx, oldParentID, node.Ordering); err != nil {
			return err
		}
		count, err := m.nodes.ChildCount(ctx, tx, newParentID)
		if err != nil {
			return err
		}
		if oldParentID == newParentID {
			// The node itself is still counted in its old group.
			count--
		}
		return m.nodes.UpdateParent(ctx, tx, id, newParentID, count)
	})
	if err != nil {
		return err
	}
	m.logger.Info("node moved", "id", id, "newParent", newParentID)
	return nil
}

// ReorderNode moves a node to position newOrdering within its current sibling
// group and rewrites every sibling's ordering to its index in the resulting
// sequence. A target equal to the current position is a no-op.
func (m *Manager) ReorderNode(ctx context.Context, id int64, newOrdering int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.store.WithTx(ctx, func(tx *sql.Tx) error {
		node, err := m.nodes.Get(ctx, tx, id)
		if err != nil {
			return err
		}
		if node == nil {
			return ErrNotFound
		}
		if node.IsRoot() {
			// The root is its own sibling group of one.
			if newOrdering != 0 {
				return ErrInvalidOrdering
			}
			return nil
		}

		siblings, err := m.nodes.Children(ctx, tx, *node.ParentID)
		if err != nil {
			return err
		}
		if newOrdering < 0 || newOrdering >= len(siblings) {
			return ErrInvalidOrdering
		}

		current := -1
		for i, s := range siblings {
			if s.ID == id {
				current = i
				break
			}
		}
		if current == newOrdering {
			return nil
		}

		reordered := make([]*model.Node, 0, len(siblings))
		reordered = append(reordered, siblings[:current]...)
		reordered = append(reordered, siblings[current+1:]...)
		reordered = append(reordered[:newOrdering], append([]*model.Node{node}, reordered[newOrdering:]...)...)

		for i, s := range reordered {
			if s.Ordering != i {
				if err := m.nodes.UpdateOrdering(ctx, tx, s.ID, i); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.logger.Info("node reordered", "id", id, "ordering", newOrdering)
	return nil
}

// checkCycle rejects a move whose destination is the node itself or lies in
// its subtree. It walks the destination's ancestor chain upward with an
// explicit loop until it reaches the root or finds the moving node.
func (m *Manager) checkCycle(ctx context.Context, tx *sql.Tx, id int64, newParent *model.Node) error {
	current := newParent
	for {
		if current.ID == id {
			return ErrCycle
		}
		if current.ParentID == nil {
			return nil
		}
		next, err := m.nodes.Get(ctx, tx, *current.ParentID)
		if err != nil {
			return err
		}
		if next == nil {
			// Dangling parent pointer would mean corrupted state.
			return ErrNotFound
		}
		current = next
	}
}

// collectSubtree gathers the ids of a node and all its descendants using an
// explicit worklist, so deep trees do not grow the call stack.
func (m *Manager) collectSubtree(ctx context.Context, tx *sql.Tx, id int64) ([]int64, error) {
	ids := []int64{}
	stack := []int64{id}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		ids = append(ids, current)

		children, err := m.nodes.Children(ctx, tx, current)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			stack = append(stack, child.ID)
		}
	}
	return ids, nil
}
