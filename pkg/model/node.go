// Package model defines the data structures shared by the arbor storage,
// tree, and transport layers.
package model

import "time"

// RootID is the fixed identifier of the root node. It is created once at
// first startup and can never be moved or deleted.
const RootID int64 = 1

// RootTitle is the title the root node is bootstrapped with.
const RootTitle = "Root Node"

// Node is a single entry in the tree. ParentID is nil only for the root.
// Ordering is the node's zero-based position among its siblings; siblings of
// one parent always occupy 0..n-1 with no gaps.
type Node struct {
	ID       int64     `json:"id"`
	Title    string    `json:"title"`
	ParentID *int64    `json:"parent_id"`
	Ordering int       `json:"ordering"`
	Created  time.Time `json:"created"`
	Updated  time.Time `json:"updated"`
}

// IsRoot reports whether the node is the tree root.
func (n *Node) IsRoot() bool {
	return n.ParentID == nil
}

// NodeWithChildren is the get-node response shape: the node itself plus its
// immediate children in ascending ordering.
type NodeWithChildren struct {
	Node
	Children []*Node `json:"children"`
}
