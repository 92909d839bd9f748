package eventqueue

import (
	"testing"

	"github.com/Cutii/firebase-go-sdk/internal/treepath"
)

type recordingReg struct {
	id  string
	got []Event
}

func (r *recordingReg) ID() string { return r.id }
func (r *recordingReg) Fire(evt Event) {
	r.got = append(r.got, evt)
}

func TestQueueThenRaiseDeliversInOrder(t *testing.T) {
	q := New()
	reg := &recordingReg{id: "a"}
	q.QueueEvents(treepath.New("/x"), []Event{{Type: "value", Registration: reg}})
	if len(reg.got) != 0 {
		t.Fatal("QueueEvents must not deliver immediately")
	}
	q.RaiseEventsForChangedPath(treepath.New("/x"), []Event{{Type: "child_added", Registration: reg}})
	if len(reg.got) != 2 {
		t.Fatalf("expected 2 events delivered, got %d", len(reg.got))
	}
	if reg.got[0].Type != "value" || reg.got[1].Type != "child_added" {
		t.Fatalf("unexpected delivery order: %#v", reg.got)
	}
}

func TestPanickingRegistrationDoesNotAbortDrain(t *testing.T) {
	q := New()
	good := &recordingReg{id: "good"}
	bad := &panicReg{}
	q.RaiseEventsForChangedPath(treepath.New("/x"), []Event{
		{Type: "value", Registration: bad},
		{Type: "value", Registration: good},
	})
	if len(good.got) != 1 {
		t.Fatal("expected the registration after the panicking one to still be delivered")
	}
}

type panicReg struct{}

func (p *panicReg) ID() string   { return "bad" }
func (p *panicReg) Fire(Event)   { panic("boom") }

func TestReentrantRaiseIsAppendedNotConcurrent(t *testing.T) {
	q := New()
	var order []string
	outer := &funcReg{fire: func(evt Event) {
		order = append(order, "outer")
		q.RaiseEventsForChangedPath(treepath.New("/y"), []Event{{Type: "value", Registration: &funcReg{fire: func(Event) {
			order = append(order, "inner")
		}}}})
	}}
	q.RaiseEventsForChangedPath(treepath.New("/x"), []Event{{Type: "value", Registration: outer}})
	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		t.Fatalf("unexpected delivery order: %v", order)
	}
}

type funcReg struct {
	fire func(Event)
}

func (f *funcReg) ID() string      { return "func" }
func (f *funcReg) Fire(evt Event)  { f.fire(evt) }
