// Package sparsetree implements a mutable, path-indexed container of
// pending snapshot nodes — the on-disconnect tree's storage. Structurally
// it is a trie keyed by path component, where each slot holds either a
// Node (a maximal subtree) or a nested subtree of more specific slots,
// never both.
package sparsetree

import (
	"github.com/Cutii/firebase-go-sdk/internal/treenode"
	"github.com/Cutii/firebase-go-sdk/internal/treepath"
)

// Tree is a mutable trie of pending Node snapshots addressed by Path.
// The zero value is ready to use.
type Tree struct {
	value    *treenode.Node
	children map[string]*Tree
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{}
}

// Remember replaces the subtree at path with a single node, discarding any
// descendants previously remembered below path.
func (t *Tree) Remember(path treepath.Path, node *treenode.Node) {
	if path.IsEmpty() {
		t.value = node
		t.children = nil
		return
	}
	if t.value != nil {
		// A node was remembered above this path: write node into it at
		// path's position rather than splitting it into per-child slots,
		// so the rest of the remembered node is kept.
		var set func(n *treenode.Node, p treepath.Path) *treenode.Node
		set = func(n *treenode.Node, p treepath.Path) *treenode.Node {
			key, ok := p.Front()
			if !ok {
				return node
			}
			return n.UpdateChild(key, set(n.Child(key), p.PopFront()))
		}
		t.value = set(t.value, path)
		return
	}
	if t.children == nil {
		t.children = make(map[string]*Tree)
	}
	key, _ := path.Front()
	child, ok := t.children[key]
	if !ok {
		child = New()
		t.children[key] = child
	}
	child.Remember(path.PopFront(), node)
}

// Forget removes whatever was remembered at or below path. Interior nodes
// left with no children are pruned from their parent.
func (t *Tree) Forget(path treepath.Path) bool {
	if path.IsEmpty() {
		emptied := t.value != nil || len(t.children) > 0
		t.value = nil
		t.children = nil
		return emptied
	}
	if t.value != nil {
		// Forgetting a sub-path of a remembered maximal node has no
		// effect: the spec models only removal of a previously
		// remembered maximal subtree or one of its descendants.
		return false
	}
	key, _ := path.Front()
	child, ok := t.children[key]
	if !ok {
		return false
	}
	removedAnything := child.Forget(path.PopFront())
	if child.isEmpty() {
		delete(t.children, key)
	}
	return removedAnything
}

func (t *Tree) isEmpty() bool {
	return t.value == nil && len(t.children) == 0
}

// IsEmpty reports whether nothing has been remembered anywhere in the
// tree.
func (t *Tree) IsEmpty() bool {
	return t == nil || t.isEmpty()
}

// Visitor is called once per maximal subtree found during ForEachTree, with
// the absolute path to that subtree's root.
type Visitor func(path treepath.Path, node *treenode.Node)

// ForEachTree walks the tree rooted at prefix in pre-order, invoking visit
// once for every maximal remembered node. It never descends into a
// subtree once a stored Node has been found there — a remembered node is
// never partially re-expanded.
func (t *Tree) ForEachTree(prefix treepath.Path, visit Visitor) {
	if t == nil {
		return
	}
	if t.value != nil {
		visit(prefix, t.value)
		return
	}
	for key, child := range t.children {
		child.ForEachTree(prefix.Child(key), visit)
	}
}

// Get returns the node remembered at exactly path, or nil if nothing was
// remembered there (it may still be covered by an ancestor's maximal
// node — callers that need "effective value at path" should use
// NodeAt instead).
func (t *Tree) Get(path treepath.Path) *treenode.Node {
	if path.IsEmpty() {
		return t.value
	}
	if t.value != nil || t.children == nil {
		return nil
	}
	key, _ := path.Front()
	child, ok := t.children[key]
	if !ok {
		return nil
	}
	return child.Get(path.PopFront())
}

// NodeAt returns the effective node at path: the remembered node there, or
// the sub-node carved out of an ancestor's remembered maximal node, or
// Empty if path is covered by neither.
func (t *Tree) NodeAt(path treepath.Path) *treenode.Node {
	if t == nil {
		return treenode.Empty
	}
	if t.value != nil {
		node := t.value
		for _, seg := range path.Segments() {
			node = node.Child(seg)
		}
		return node
	}
	if path.IsEmpty() {
		return treenode.Empty
	}
	key, _ := path.Front()
	child, ok := t.children[key]
	if !ok {
		return treenode.Empty
	}
	return child.NodeAt(path.PopFront())
}
