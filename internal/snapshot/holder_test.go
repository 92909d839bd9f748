package snapshot

import (
	"testing"

	"github.com/Cutii/firebase-go-sdk/internal/treenode"
	"github.com/Cutii/firebase-go-sdk/internal/treepath"
)

func TestUpdateSnapshotAndGetNode(t *testing.T) {
	h := NewHolder()
	h.UpdateSnapshot(treepath.New("/connected"), treenode.Leaf(true, nil))
	if got := h.GetNode(treepath.New("/connected")); got.Val(false) != true {
		t.Fatalf("expected true, got %v", got.Val(false))
	}
	if got := h.GetNode(treepath.New("/serverTimeOffset")); !got.IsEmpty() {
		t.Fatalf("expected empty for unset path, got %v", got.Val(false))
	}
}

func TestUpdateSnapshotPreservesSiblings(t *testing.T) {
	h := NewHolder()
	h.UpdateSnapshot(treepath.New("/connected"), treenode.Leaf(true, nil))
	h.UpdateSnapshot(treepath.New("/serverTimeOffset"), treenode.Leaf(float64(42), nil))
	if got := h.GetNode(treepath.New("/connected")); got.Val(false) != true {
		t.Fatalf("expected sibling /connected to survive, got %v", got.Val(false))
	}
	if got := h.GetNode(treepath.New("/serverTimeOffset")); got.Val(false) != float64(42) {
		t.Fatalf("expected 42, got %v", got.Val(false))
	}
}

func TestRootNodeReflectsWholeTree(t *testing.T) {
	h := NewHolder()
	h.UpdateSnapshot(treepath.New("/a/b"), treenode.Leaf(float64(1), nil))
	root := h.RootNode()
	if root.Child("a").Child("b").Val(false) != float64(1) {
		t.Fatalf("expected root to carry the nested update")
	}
}
