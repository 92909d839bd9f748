package auth

import (
	"context"
	"testing"
	"time"
)

func TestStaticNotifiesListeners(t *testing.T) {
	s := NewStatic("a")
	var got string
	remove := s.AddTokenChangeListener(func(token string) { got = token })
	s.SetToken("b")
	if got != "b" {
		t.Fatalf("expected listener to observe b, got %q", got)
	}
	if s.Token() != "b" {
		t.Fatalf("expected Token() to return b, got %q", s.Token())
	}
	remove()
	s.SetToken("c")
	if got != "b" {
		t.Fatalf("expected removed listener to not observe further changes, got %q", got)
	}
}

func TestRefreshingFetchesInitialTokenSynchronously(t *testing.T) {
	calls := 0
	r, err := NewRefreshing(context.Background(), func(ctx context.Context) (string, time.Duration, error) {
		calls++
		return "tok0", time.Hour, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer r.Close()
	if r.Token() != "tok0" {
		t.Fatalf("expected tok0, got %q", r.Token())
	}
	if calls != 1 {
		t.Fatalf("expected exactly one synchronous refresh call, got %d", calls)
	}
}

func TestRefreshingPropagatesRefreshFailureOnStartup(t *testing.T) {
	_, err := NewRefreshing(context.Background(), func(ctx context.Context) (string, time.Duration, error) {
		return "", 0, context.DeadlineExceeded
	})
	if err == nil {
		t.Fatal("expected startup refresh failure to propagate")
	}
}
