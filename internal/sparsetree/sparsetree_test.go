package sparsetree

import (
	"testing"

	"github.com/Cutii/firebase-go-sdk/internal/treenode"
	"github.com/Cutii/firebase-go-sdk/internal/treepath"
)

func TestRememberAndGet(t *testing.T) {
	tree := New()
	tree.Remember(treepath.New("/a/b"), treenode.Leaf(float64(1), nil))
	if got := tree.Get(treepath.New("/a/b")); got.Val(false) != float64(1) {
		t.Fatalf("expected 1, got %v", got.Val(false))
	}
	if got := tree.Get(treepath.New("/a")); got != nil {
		t.Fatalf("expected no value remembered at ancestor path, got %v", got)
	}
}

func TestRememberAboveCollapsesDescendants(t *testing.T) {
	tree := New()
	tree.Remember(treepath.New("/a/b"), treenode.Leaf(float64(1), nil))
	tree.Remember(treepath.New("/a"), treenode.Leaf(float64(2), nil))
	if got := tree.Get(treepath.New("/a/b")); got != nil {
		t.Fatalf("expected descendant to be collapsed away, got %v", got)
	}
	if got := tree.NodeAt(treepath.New("/a/b")); !got.IsEmpty() {
		t.Fatalf("expected empty sub-node of the new leaf, got %v", got.Val(false))
	}
}

func TestForgetPrunesInteriorNodes(t *testing.T) {
	tree := New()
	tree.Remember(treepath.New("/a/b"), treenode.Leaf(float64(1), nil))
	if !tree.Forget(treepath.New("/a/b")) {
		t.Fatal("expected Forget to report removal")
	}
	if !tree.IsEmpty() {
		t.Fatal("expected tree to be fully pruned after forgetting its only entry")
	}
}

func TestForgetBelowRememberedNodeIsNoop(t *testing.T) {
	tree := New()
	tree.Remember(treepath.New("/a"), treenode.Leaf(float64(1), nil))
	if tree.Forget(treepath.New("/a/b")) {
		t.Fatal("expected no-op: /a/b is covered by a maximal node at /a, not separately remembered")
	}
	if got := tree.Get(treepath.New("/a")); got.Val(false) != float64(1) {
		t.Fatal("expected the maximal node at /a to survive")
	}
}

func TestForEachTreeVisitsMaximalNodesOnly(t *testing.T) {
	tree := New()
	tree.Remember(treepath.New("/a"), treenode.Leaf(float64(1), nil))
	tree.Remember(treepath.New("/c/d"), treenode.Leaf(float64(2), nil))

	var visited []string
	tree.ForEachTree(treepath.Empty, func(path treepath.Path, node *treenode.Node) {
		visited = append(visited, path.String())
	})
	if len(visited) != 2 {
		t.Fatalf("expected exactly 2 maximal subtrees, got %v", visited)
	}
}

func TestNodeAtCarvesIntoMaximalNode(t *testing.T) {
	tree := New()
	tree.Remember(treepath.New("/a"), treenode.Children(map[string]*treenode.Node{
		"b": treenode.Leaf(float64(7), nil),
	}, nil))
	if got := tree.NodeAt(treepath.New("/a/b")); got.Val(false) != float64(7) {
		t.Fatalf("expected 7, got %v", got.Val(false))
	}
}
