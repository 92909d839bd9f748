// Package treepath implements the immutable hierarchical key used to
// address nodes in the sync tree: an ordered, slash-joined sequence of
// string components.
package treepath

import "strings"

// Path is an immutable, ordered sequence of string components. The zero
// value is the empty (root) path.
type Path struct {
	segments []string
}

// Empty is the root path.
var Empty = Path{}

// New builds a Path from a slash-separated string. Leading, trailing, and
// repeated slashes are ignored, so "/a/b/", "a/b", and "//a//b" are
// equivalent.
func New(s string) Path {
	parts := strings.Split(s, "/")
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return FromSegments(segments)
}

// FromSegments builds a Path from an already-split component list. The
// slice is copied; callers may reuse or mutate it afterward.
func FromSegments(segments []string) Path {
	if len(segments) == 0 {
		return Empty
	}
	cp := make([]string, len(segments))
	copy(cp, segments)
	return Path{segments: cp}
}

// IsEmpty reports whether this is the root path.
func (p Path) IsEmpty() bool {
	return len(p.segments) == 0
}

// Len returns the number of components.
func (p Path) Len() int {
	return len(p.segments)
}

// Front returns the first component and true, or "" and false if empty.
func (p Path) Front() (string, bool) {
	if len(p.segments) == 0 {
		return "", false
	}
	return p.segments[0], true
}

// PopFront returns the path with its first component removed. Popping an
// empty path returns the empty path.
func (p Path) PopFront() Path {
	if len(p.segments) == 0 {
		return Empty
	}
	return FromSegments(p.segments[1:])
}

// Child returns the path extended with one more trailing component.
func (p Path) Child(key string) Path {
	if key == "" {
		return p
	}
	segments := make([]string, len(p.segments)+1)
	copy(segments, p.segments)
	segments[len(p.segments)] = key
	return Path{segments: segments}
}

// Append extends the path with every component of rel, in order.
func (p Path) Append(rel Path) Path {
	if rel.IsEmpty() {
		return p
	}
	segments := make([]string, 0, len(p.segments)+len(rel.segments))
	segments = append(segments, p.segments...)
	segments = append(segments, rel.segments...)
	return FromSegments(segments)
}

// Segments returns a copy of the component slice.
func (p Path) Segments() []string {
	cp := make([]string, len(p.segments))
	copy(cp, p.segments)
	return cp
}

// String renders the path slash-joined with a leading slash, e.g. "/a/b".
// The empty path renders as "/".
func (p Path) String() string {
	if len(p.segments) == 0 {
		return "/"
	}
	return "/" + strings.Join(p.segments, "/")
}

// Equal reports component-wise equality.
func (p Path) Equal(other Path) bool {
	if len(p.segments) != len(other.segments) {
		return false
	}
	for i := range p.segments {
		if p.segments[i] != other.segments[i] {
			return false
		}
	}
	return true
}

// Compare orders paths lexicographically by component, shorter-is-smaller
// on common prefix, matching the ordering that event delivery relies on
// when diffing two child sets.
func (p Path) Compare(other Path) int {
	n := len(p.segments)
	if len(other.segments) < n {
		n = len(other.segments)
	}
	for i := 0; i < n; i++ {
		if p.segments[i] != other.segments[i] {
			if p.segments[i] < other.segments[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(p.segments) < len(other.segments):
		return -1
	case len(p.segments) > len(other.segments):
		return 1
	default:
		return 0
	}
}

// Contains reports whether other is this path or a descendant of it.
func (p Path) Contains(other Path) bool {
	if len(other.segments) < len(p.segments) {
		return false
	}
	for i := range p.segments {
		if p.segments[i] != other.segments[i] {
			return false
		}
	}
	return true
}

// IsInfo reports whether this path is rooted at the synthetic ".info"
// subtree.
func (p Path) IsInfo() bool {
	front, ok := p.Front()
	return ok && front == ".info"
}
