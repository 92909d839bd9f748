package rtdb

import (
	"testing"

	"github.com/Cutii/firebase-go-sdk/internal/treepath"
)

func TestRefChildAppendsPath(t *testing.T) {
	db := &Database{}
	root := db.Ref("/rooms")
	child := root.Child("a").Child("name")

	want := treepath.New("/rooms/a/name").String()
	if child.Path() != want {
		t.Fatalf("got path %q, want %q", child.Path(), want)
	}
}

func TestRefPathNormalizesSlashes(t *testing.T) {
	db := &Database{}
	ref := db.Ref("rooms/a/")
	if ref.Path() != "/rooms/a" {
		t.Fatalf("got path %q, want /rooms/a", ref.Path())
	}
}
