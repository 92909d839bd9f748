package treenode

import "testing"

func TestLeafValAndEmpty(t *testing.T) {
	n := Leaf(float64(5), nil)
	if n.IsEmpty() {
		t.Fatal("leaf with value 5 should not be empty")
	}
	if got := n.Val(false); got != float64(5) {
		t.Fatalf("Val() = %v; want 5", got)
	}
}

func TestEmptyNode(t *testing.T) {
	if !Empty.IsEmpty() {
		t.Fatal("Empty should be empty")
	}
	if Empty.Val(false) != nil {
		t.Fatal("Empty.Val() should be nil")
	}
}

func TestUpdateChildAddAndRemove(t *testing.T) {
	root := Empty.UpdateChild("a", Leaf("x", nil))
	if root.Child("a").Val(false) != "x" {
		t.Fatalf("expected child a = x, got %v", root.Child("a").Val(false))
	}
	root2 := root.UpdateChild("a", Empty)
	if !root2.IsEmpty() {
		t.Fatalf("removing the only child should yield an empty node, got %v", root2.Val(false))
	}
}

func TestExportIncludesPriority(t *testing.T) {
	n := Leaf("v", Leaf(float64(1), nil))
	exported := n.Val(true).(map[string]any)
	if exported[".value"] != "v" || exported[".priority"] != float64(1) {
		t.Fatalf("unexpected export shape: %#v", exported)
	}
	if n.Val(false) != "v" {
		t.Fatal("non-export Val should drop priority wrapper")
	}
}

func TestEqualStructural(t *testing.T) {
	a := Children(map[string]*Node{"x": Leaf(float64(1), nil)}, nil)
	b := Children(map[string]*Node{"x": Leaf(float64(1), nil)}, nil)
	if !a.Equal(b) {
		t.Fatal("expected structurally identical nodes to be equal")
	}
	c := Children(map[string]*Node{"x": Leaf(float64(2), nil)}, nil)
	if a.Equal(c) {
		t.Fatal("expected nodes with differing leaf values to not be equal")
	}
}

func TestFromJSONRoundTrip(t *testing.T) {
	raw := map[string]any{
		"a": float64(1),
		"b": map[string]any{"c": "hi"},
	}
	n := FromJSON(raw)
	if n.Child("a").Val(false) != float64(1) {
		t.Fatalf("expected a=1, got %v", n.Child("a").Val(false))
	}
	if n.Child("b").Child("c").Val(false) != "hi" {
		t.Fatalf("expected b/c=hi, got %v", n.Child("b").Child("c").Val(false))
	}
}

func TestFromJSONExportedPriority(t *testing.T) {
	raw := map[string]any{
		".value":    "v",
		".priority": float64(3),
	}
	n := FromJSON(raw)
	if n.Val(false) != "v" {
		t.Fatalf("expected plain value v, got %v", n.Val(false))
	}
	if n.Priority().Val(false) != float64(3) {
		t.Fatalf("expected priority 3, got %v", n.Priority().Val(false))
	}
}

func TestHashStable(t *testing.T) {
	a := Leaf("x", nil)
	b := Leaf("x", nil)
	if a.Hash() != b.Hash() {
		t.Fatal("equal nodes should hash identically")
	}
	if a.Hash() == Leaf("y", nil).Hash() {
		t.Fatal("differing nodes should (almost certainly) hash differently")
	}
}
