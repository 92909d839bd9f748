// Package treenode implements the immutable snapshot value that the sync
// tree overlays and diffs: a leaf scalar or a mapping of string keys to
// child nodes, carrying an optional legacy ordering priority.
package treenode

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Node is an immutable snapshot of a subtree. The zero value is the empty
// node (Empty); use Leaf or Children to construct a non-empty one.
type Node struct {
	// value holds a leaf scalar (string, float64, bool, nil) when children
	// is nil, and is ignored otherwise.
	value    any
	children map[string]*Node
	priority *Node
}

// Empty is the canonical empty node (no value, no children).
var Empty = &Node{}

// Leaf builds a scalar node. priority may be nil.
func Leaf(value any, priority *Node) *Node {
	return &Node{value: value, priority: priority}
}

// Children builds a node from a child map. The map is copied and empty
// children are dropped; nil or zero-length input yields a node for which
// IsEmpty reports true (its children map is non-nil but empty, unlike
// Empty's).
func Children(kids map[string]*Node, priority *Node) *Node {
	cp := make(map[string]*Node, len(kids))
	for k, v := range kids {
		if v == nil || v.IsEmpty() {
			continue
		}
		cp[k] = v
	}
	return &Node{children: cp, priority: priority}
}

// IsEmpty reports whether the node carries neither a value nor children.
func (n *Node) IsEmpty() bool {
	if n == nil {
		return true
	}
	if n.children != nil {
		return len(n.children) == 0
	}
	return n.value == nil
}

// IsLeaf reports whether the node is a scalar (as opposed to having
// children or being empty).
func (n *Node) IsLeaf() bool {
	return n != nil && n.children == nil && n.value != nil
}

// Priority returns the node's priority, or nil if unset.
func (n *Node) Priority() *Node {
	if n == nil {
		return nil
	}
	return n.priority
}

// WithPriority returns a copy of n carrying the given priority.
func (n *Node) WithPriority(priority *Node) *Node {
	if n == nil {
		n = Empty
	}
	if n.children != nil {
		return Children(n.children, priority)
	}
	return Leaf(n.value, priority)
}

// Child returns the child node at key, or Empty if absent.
func (n *Node) Child(key string) *Node {
	if n == nil || n.children == nil {
		return Empty
	}
	if c, ok := n.children[key]; ok {
		return c
	}
	return Empty
}

// UpdateChild returns a copy of n with the subtree at key replaced. Setting
// an empty child removes it (matching the invariant that a node never
// stores empty children).
func (n *Node) UpdateChild(key string, child *Node) *Node {
	kids := make(map[string]*Node)
	if n != nil && n.children != nil {
		for k, v := range n.children {
			kids[k] = v
		}
	} else if n != nil && n.value != nil {
		// A leaf gaining a child sheds its scalar value: the children
		// representation takes over (matches server semantics where a
		// write to a child path implicitly overwrites a conflicting leaf).
	}
	if child == nil || child.IsEmpty() {
		delete(kids, key)
	} else {
		kids[key] = child
	}
	priority := n.Priority()
	return Children(kids, priority)
}

// ChildKeys returns the node's child keys in sorted order. Empty for a
// leaf or empty node.
func (n *Node) ChildKeys() []string {
	if n == nil || n.children == nil {
		return nil
	}
	keys := make([]string, 0, len(n.children))
	for k := range n.children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NumChildren returns the number of children, 0 for a leaf or empty node.
func (n *Node) NumChildren() int {
	if n == nil {
		return 0
	}
	return len(n.children)
}

// Val renders the node as a plain Go value suitable for JSON encoding. When
// export is true, priority metadata is embedded using the wire convention
// {".value": <value>, ".priority": <priority>} for any node that carries a
// priority; otherwise priority is dropped.
func (n *Node) Val(export bool) any {
	if n == nil || n.IsEmpty() {
		return nil
	}
	var plain any
	if n.children != nil {
		m := make(map[string]any, len(n.children))
		for k, v := range n.children {
			m[k] = v.Val(export)
		}
		plain = m
	} else {
		plain = n.value
	}
	if !export || n.priority == nil || n.priority.IsEmpty() {
		return plain
	}
	return map[string]any{
		".value":    plain,
		".priority": n.priority.Val(false),
	}
}

// Equal reports structural equality, including priority.
func (n *Node) Equal(other *Node) bool {
	if n.IsEmpty() && other.IsEmpty() {
		return true
	}
	if n.IsEmpty() != other.IsEmpty() {
		return false
	}
	if !priorityEqual(n.Priority(), other.Priority()) {
		return false
	}
	if n.children != nil || other.children != nil {
		if len(n.children) != len(other.children) {
			return false
		}
		for k, v := range n.children {
			ov, ok := other.children[k]
			if !ok || !v.Equal(ov) {
				return false
			}
		}
		return true
	}
	return fmt.Sprintf("%v", n.value) == fmt.Sprintf("%v", other.value)
}

func priorityEqual(a, b *Node) bool {
	if a.IsEmpty() && b.IsEmpty() {
		return true
	}
	if a.IsEmpty() != b.IsEmpty() {
		return false
	}
	return fmt.Sprintf("%v", a.Val(false)) == fmt.Sprintf("%v", b.Val(false))
}

// Hash returns a stable content hash of the exported value, used as the
// currentHashFn handed to the transport on listen.
func (n *Node) Hash() string {
	data, err := json.Marshal(n.Val(true))
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FromJSON builds a Node tree from a decoded JSON value (the shape
// produced by encoding/json's Unmarshal into `any`): nil, bool, float64,
// string, []any, or map[string]any. A map entry keyed ".priority" at any
// level is lifted out as that node's priority, matching the wire format
// produced by Val(export=true).
func FromJSON(raw any) *Node {
	switch v := raw.(type) {
	case nil:
		return Empty
	case map[string]any:
		priority := Empty
		if p, ok := v[".priority"]; ok {
			priority = FromJSON(p)
		}
		if val, ok := v[".value"]; ok && len(v) <= 2 {
			return FromJSON(val).WithPriority(priority)
		}
		kids := make(map[string]*Node, len(v))
		for k, cv := range v {
			if k == ".priority" {
				continue
			}
			kids[k] = FromJSON(cv)
		}
		return Children(kids, priority)
	case []any:
		kids := make(map[string]*Node, len(v))
		for i, cv := range v {
			kids[fmt.Sprintf("%d", i)] = FromJSON(cv)
		}
		return Children(kids, nil)
	default:
		return Leaf(v, nil)
	}
}
