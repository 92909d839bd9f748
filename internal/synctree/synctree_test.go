package synctree

import (
	"testing"

	"github.com/Cutii/firebase-go-sdk/internal/eventqueue"
	"github.com/Cutii/firebase-go-sdk/internal/treenode"
	"github.com/Cutii/firebase-go-sdk/internal/treepath"
)

type capturingReg struct {
	id   string
	vals []any
}

func (c *capturingReg) ID() string { return c.id }
func (c *capturingReg) Fire(evt eventqueue.Event) {
	c.vals = append(c.vals, evt.Snapshot)
}

func (c *capturingReg) last() any {
	if len(c.vals) == 0 {
		return nil
	}
	return c.vals[len(c.vals)-1]
}

func TestOptimisticWriteThenSuccessfulAckProducesNoFurtherEvent(t *testing.T) {
	tree := New(nil, nil)
	reg := &capturingReg{id: "l1"}
	path := treepath.New("/a/b")

	events := tree.AddEventRegistration(Query{Path: path}, reg)
	deliverAll(reg, events)
	if reg.last() != nil {
		t.Fatalf("expected initial value nil, got %v", reg.last())
	}

	events = tree.ApplyUserOverwrite(path, treenode.Leaf(float64(5), nil), 1, true)
	deliverAll(reg, events)
	if reg.last() != float64(5) {
		t.Fatalf("expected optimistic value 5, got %v", reg.last())
	}

	before := len(reg.vals)
	events = tree.AckUserWrite(1, false)
	deliverAll(reg, events)
	if len(reg.vals) != before {
		t.Fatalf("expected no further events after a clean ack, got %d new", len(reg.vals)-before)
	}
}

func TestServerUpdateDuringPendingWriteIsShadowedThenRevealedAfterAck(t *testing.T) {
	tree := New(nil, nil)
	reg := &capturingReg{id: "l1"}
	path := treepath.New("/a")

	events := tree.AddEventRegistration(Query{Path: path}, reg)
	deliverAll(reg, events)

	events = tree.ApplyUserOverwrite(path, treenode.Children(map[string]*treenode.Node{"x": treenode.Leaf(float64(1), nil)}, nil), 1, true)
	deliverAll(reg, events)
	if got := reg.last().(map[string]any)["x"]; got != float64(1) {
		t.Fatalf("expected shadowed optimistic value x=1, got %v", got)
	}

	xNode := treenode.Children(map[string]*treenode.Node{"x": treenode.Leaf(float64(2), nil)}, nil)
	events = tree.ApplyServerOverwrite(path, xNode)
	deliverAll(reg, events)
	if got := reg.last().(map[string]any)["x"]; got != float64(1) {
		t.Fatalf("server update must stay shadowed while write is pending, got %v", got)
	}

	events = tree.AckUserWrite(1, false)
	deliverAll(reg, events)
	if got := reg.last().(map[string]any)["x"]; got != float64(2) {
		t.Fatalf("expected server value x=2 to surface after ack, got %v", got)
	}
}

func TestRevertRestoresPriorServerValue(t *testing.T) {
	tree := New(nil, nil)
	reg := &capturingReg{id: "l1"}
	path := treepath.New("/a/b")

	tree.ApplyServerOverwrite(path, treenode.Leaf(float64(1), nil))
	events := tree.AddEventRegistration(Query{Path: path}, reg)
	deliverAll(reg, events)
	if reg.last() != float64(1) {
		t.Fatalf("expected initial server value 1, got %v", reg.last())
	}

	events = tree.ApplyUserOverwrite(path, treenode.Leaf(float64(9), nil), 7, true)
	deliverAll(reg, events)
	if reg.last() != float64(9) {
		t.Fatalf("expected optimistic value 9, got %v", reg.last())
	}

	events = tree.AckUserWrite(7, true)
	deliverAll(reg, events)
	if reg.last() != float64(1) {
		t.Fatalf("expected revert back to server value 1, got %v", reg.last())
	}
}

func TestStartAndStopListeningFireOnFirstAndLastRegistration(t *testing.T) {
	var started, stopped []Query
	tree := New(
		func(q Query, _ func() string, _ func(string, any)) []eventqueue.Event {
			started = append(started, q)
			return nil
		},
		func(q Query) { stopped = append(stopped, q) },
	)
	path := treepath.New("/x")
	regA := &capturingReg{id: "a"}
	regB := &capturingReg{id: "b"}

	tree.AddEventRegistration(Query{Path: path}, regA)
	tree.AddEventRegistration(Query{Path: path}, regB)
	if len(started) != 1 {
		t.Fatalf("expected startListening exactly once, got %d", len(started))
	}

	tree.RemoveEventRegistration(Query{Path: path}, regA)
	if len(stopped) != 0 {
		t.Fatalf("expected no stopListening while a registration remains, got %d", len(stopped))
	}
	tree.RemoveEventRegistration(Query{Path: path}, regB)
	if len(stopped) != 1 {
		t.Fatalf("expected stopListening once the last registration is removed, got %d", len(stopped))
	}
}

func deliverAll(reg *capturingReg, events []eventqueue.Event) {
	for _, evt := range events {
		if evt.Registration == reg {
			reg.Fire(evt)
		}
	}
}
