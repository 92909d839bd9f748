package metrics

import (
	"bytes"
	"strings"
	"testing"
)

func TestCollectorSnapshotAndDelta(t *testing.T) {
	c := NewCollector()
	c.IncWriteSent()
	c.IncWriteSent()
	c.IncWriteAcked()

	first := c.Snapshot()
	if first.WritesSent != 2 || first.WritesAcked != 1 {
		t.Fatalf("unexpected snapshot: %+v", first)
	}

	c.IncWriteSent()
	second := c.Snapshot()
	delta := second.Delta(first)
	if delta.WritesSent != 1 || delta.WritesAcked != 0 {
		t.Fatalf("unexpected delta: %+v", delta)
	}
}

func TestPrintToIsColumnAligned(t *testing.T) {
	c := NewCollector()
	c.IncReconnect()
	var buf bytes.Buffer
	c.PrintTo(&buf)
	if !strings.Contains(buf.String(), "reconnects") {
		t.Fatalf("expected output to mention reconnects, got %q", buf.String())
	}

	col := -1
	for _, line := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
		i := strings.LastIndex(line, " ") + 1
		if col == -1 {
			col = i
		} else if i != col {
			t.Fatalf("value column of %q starts at %d, want %d", line, i, col)
		}
	}
}

func TestNoopReporterDoesNotPanic(t *testing.T) {
	var r NoopReporter
	r.Record(nil, Stats{})
}
