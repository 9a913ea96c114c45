// Package model evaluates trained tree-ensemble models in process. An
// ensemble is the opaque "fitted model" half of a stored artifact: boosted
// trees for conversion classification, averaged trees for open-rate
// regression, or a constant for the dummy artifacts produced when training
// data was insufficient.
package model

import "errors"

// ErrSchemaMismatch indicates an encoded vector whose column count disagrees
// with what the model was trained on. This is an alignment bug, not a
// retryable condition.
var ErrSchemaMismatch = errors.New("model: encoded vector does not match trained column count")

// Node is a single split or leaf in a regression tree. Leaves have
// Feature == -1. Value holds the leaf output; on internal nodes it holds the
// cover-weighted expected output of the subtree, which the exact attribution
// strategy consumes.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
	Cover     float64 `json:"cover"`
}

// Leaf reports whether the node is a leaf.
func (n Node) Leaf() bool { return n.Feature < 0 }

// Tree is a regression tree stored as a flat node array rooted at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Evaluate walks the tree for one encoded row and returns the leaf value.
func (t *Tree) Evaluate(row []float64) float64 {
	idx := 0
	for {
		node := t.Nodes[idx]
		if node.Leaf() {
			return node.Value
		}
		if row[node.Feature] < node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
	}
}

// Root returns the root node. The root's Value is the tree's expected output
// over the training population.
func (t *Tree) Root() Node { return t.Nodes[0] }
