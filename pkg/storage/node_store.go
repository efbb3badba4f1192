package storage

import (
	"context"
	"database/sql"
	"fmt"

	"arbor/pkg/model"
)

const nodeColumns = "id, title, parent_id, ordering, created, updated"

// NodeStore exposes row-level node operations. Every method runs against a
// caller-supplied transaction so one tree operation stays a single atomic
// unit of work.
type NodeStore struct {
	storage *Storage
}

// NewNodeStore creates a NodeStore backed by the given storage.
func NewNodeStore(storage *Storage) *NodeStore {
	return &NodeStore{storage: storage}
}

func scanNode(row interface{ Scan(...any) error }) (*model.Node, error) {
	var n model.Node
	var parentID sql.NullInt64
	if err := row.Scan(&n.ID, &n.Title, &parentID, &n.Ordering, &n.Created, &n.Updated); err != nil {
		return nil, err
	}
	if parentID.Valid {
		n.ParentID = &parentID.Int64
	}
	return &n, nil
}

// Get returns the node with the given id, or nil if no such row exists.
func (ns *NodeStore) Get(ctx context.Context, tx *sql.Tx, id int64) (*model.Node, error) {
	row := tx.QueryRowContext(ctx, "SELECT "+nodeColumns+" FROM nodes WHERE id = ?", id)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query node %d: %w", id, err)
	}
	return n, nil
}

// Children returns the immediate children of parentID in ascending ordering.
func (ns *NodeStore) Children(ctx context.Context, tx *sql.Tx, parentID int64) ([]*model.Node, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT "+nodeColumns+" FROM nodes WHERE parent_id = ? ORDER BY ordering ASC", parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query children of node %d: %w", parentID, err)
	}
	defer rows.Close()

	var children []*model.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node row: %w", err)
		}
		children = append(children, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating node rows: %w", err)
	}
	return children, nil
}

// ChildCount returns the number of immediate children of parentID.
func (ns *NodeStore) ChildCount(ctx context.Context, tx *sql.Tx, parentID int64) (int, error) {
	var count int
	row := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM nodes WHERE parent_id = ?", parentID)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count children of node %d: %w", parentID, err)
	}
	return count, nil
}

// Insert adds a new node row and returns its assigned id.
func (ns *NodeStore) Insert(ctx context.Context, tx *sql.Tx, title string, parentID int64, ordering int) (int64, error) {
	result, err := tx.ExecContext(ctx,
		"INSERT INTO nodes (title, parent_id, ordering, created, updated) VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)",
		title, parentID, ordering)
	if err != nil {
		return 0, fmt.Errorf("failed to insert node: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}

// UpdateTitle replaces a node's title in place.
func (ns *NodeStore) UpdateTitle(ctx context.Context, tx *sql.Tx, id int64, title string) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE nodes SET title = ?, updated = CURRENT_TIMESTAMP WHERE id = ?", title, id)
	if err != nil {
		return fmt.Errorf("failed to update node %d: %w", id, err)
	}
	return nil
}

// UpdateParent reparents a node and assigns its position under the new parent.
func (ns *NodeStore) UpdateParent(ctx context.Context, tx *sql.Tx, id, parentID int64, ordering int) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE nodes SET parent_id = ?, ordering = ?, updated = CURRENT_TIMESTAMP WHERE id = ?",
		parentID, ordering, id)
	if err != nil {
		return fmt.Errorf("failed to move node %d: %w", id, err)
	}
	return nil
}

// UpdateOrdering rewrites a single node's sibling position.
func (ns *NodeStore) UpdateOrdering(ctx context.Context, tx *sql.Tx, id int64, ordering int) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE nodes SET ordering = ?, updated = CURRENT_TIMESTAMP WHERE id = ?", ordering, id)
	if err != nil {
		return fmt.Errorf("failed to update ordering of node %d: %w", id, err)
	}
	return nil
}

// CloseGap shifts every sibling of parentID positioned after the vacated
// ordering down by one, restoring the dense 0..n-1 range after a delete or
// move out of the group.
func (ns *NodeStore) CloseGap(ctx context.Context, tx *sql.Tx, parentID int64, vacated int) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE nodes SET ordering = ordering - 1, updated = CURRENT_TIMESTAMP WHERE parent_id = ? AND ordering > ?",
		parentID, vacated)
	if err != nil {
		return fmt.Errorf("failed to renumber children of node %d: %w", parentID, err)
	}
	return nil
}

// Delete removes a single node row.
func (ns *NodeStore) Delete(ctx context.Context, tx *sql.Tx, id int64) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM nodes WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete node %d: %w", id, err)
	}
	return nil
}
