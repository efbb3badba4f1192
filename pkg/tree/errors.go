package tree

import "errors"

// Error taxonomy of the tree operations. Everything else that escapes the
// manager is a storage failure and should be treated as internal.
var (
	// ErrNotFound is returned when a referenced node id does not exist.
	ErrNotFound = errors.New("node not found")
	// ErrInvalidParent is returned when the parent id given to an insert
	// does not exist.
	ErrInvalidParent = errors.New("parent node not found")
	// ErrForbidden is returned on attempts to delete or move the root node.
	ErrForbidden = errors.New("operation not allowed on root node")
	// ErrCycle is returned when a move would place a node under itself or
	// one of its own descendants.
	ErrCycle = errors.New("move would create a cycle")
	// ErrInvalidOrdering is returned when a reorder target position is
	// outside [0, siblingCount).
	ErrInvalidOrdering = errors.New("ordering out of range")
	// ErrEmptyTitle is returned when an insert or update carries an empty
	// title.
	ErrEmptyTitle = errors.New("title must not be empty")
)
