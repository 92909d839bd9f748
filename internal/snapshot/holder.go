// Package snapshot implements SnapshotHolder, the single-writer container
// backing the synthetic .info subtree. Only the reconciliation engine's
// scheduler goroutine ever calls into it (see internal/repo/scheduler.go),
// so unlike most of this corpus's shared state it needs no lock of its
// own — the single-writer invariant is enforced structurally, not with
// sync.Mutex.
package snapshot

import (
	"github.com/Cutii/firebase-go-sdk/internal/treenode"
	"github.com/Cutii/firebase-go-sdk/internal/treepath"
)

// Holder stores one tree, addressable by Path.
type Holder struct {
	root *treenode.Node
}

// NewHolder returns a holder rooted at an empty tree.
func NewHolder() *Holder {
	return &Holder{root: treenode.Empty}
}

// UpdateSnapshot replaces the subtree at path with node.
func (h *Holder) UpdateSnapshot(path treepath.Path, node *treenode.Node) {
	h.root = replaceAt(h.root, path, node)
}

// GetNode returns the node at path, or Empty if nothing is stored there.
func (h *Holder) GetNode(path treepath.Path) *treenode.Node {
	node := h.root
	for _, seg := range path.Segments() {
		node = node.Child(seg)
	}
	return node
}

// RootNode returns the whole stored tree.
func (h *Holder) RootNode() *treenode.Node {
	return h.root
}

func replaceAt(root *treenode.Node, path treepath.Path, node *treenode.Node) *treenode.Node {
	front, ok := path.Front()
	if !ok {
		return node
	}
	child := replaceAt(root.Child(front), path.PopFront(), node)
	return root.UpdateChild(front, child)
}
