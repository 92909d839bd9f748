// Package metrics implements the engine's stats counters and their export
// to OpenTelemetry. Grounded structurally on the teacher's
// internal/rpc.QueryCache.Stats()/CacheStats (atomic counters snapshotted
// into a plain struct, plus a human-readable String()), generalized from
// cache hit/miss counting to the engine's write/listen/event counters
// described in spec.md §4.H.9.
package metrics

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"text/tabwriter"

	"go.opentelemetry.io/otel/metric"
)

// Stats is a point-in-time snapshot of the engine's counters.
type Stats struct {
	WritesSent         int64
	WritesAcked        int64
	WritesReverted     int64
	ListensEstablished int64
	ListensFailed      int64
	Reconnects         int64
	EventsDelivered    int64
	CallbackPanics     int64
}

// Delta returns s minus prev, field by field — useful for reporting only
// what changed since the last export tick.
func (s Stats) Delta(prev Stats) Stats {
	return Stats{
		WritesSent:         s.WritesSent - prev.WritesSent,
		WritesAcked:        s.WritesAcked - prev.WritesAcked,
		WritesReverted:     s.WritesReverted - prev.WritesReverted,
		ListensEstablished: s.ListensEstablished - prev.ListensEstablished,
		ListensFailed:      s.ListensFailed - prev.ListensFailed,
		Reconnects:         s.Reconnects - prev.Reconnects,
		EventsDelivered:    s.EventsDelivered - prev.EventsDelivered,
		CallbackPanics:     s.CallbackPanics - prev.CallbackPanics,
	}
}

// Collector holds the live counters. All methods are safe for concurrent
// use, since increments can originate from a transport's own goroutines as
// well as the engine's scheduler.
type Collector struct {
	writesSent         int64
	writesAcked        int64
	writesReverted     int64
	listensEstablished int64
	listensFailed      int64
	reconnects         int64
	eventsDelivered    int64
	callbackPanics     int64
}

// NewCollector returns a zeroed Collector.
func NewCollector() *Collector { return &Collector{} }

func (c *Collector) IncWriteSent()         { atomic.AddInt64(&c.writesSent, 1) }
func (c *Collector) IncWriteAcked()        { atomic.AddInt64(&c.writesAcked, 1) }
func (c *Collector) IncWriteReverted()     { atomic.AddInt64(&c.writesReverted, 1) }
func (c *Collector) IncListenEstablished() { atomic.AddInt64(&c.listensEstablished, 1) }
func (c *Collector) IncListenFailed()      { atomic.AddInt64(&c.listensFailed, 1) }
func (c *Collector) IncReconnect()         { atomic.AddInt64(&c.reconnects, 1) }
func (c *Collector) IncEventDelivered()    { atomic.AddInt64(&c.eventsDelivered, 1) }
func (c *Collector) IncCallbackPanic()     { atomic.AddInt64(&c.callbackPanics, 1) }

// Snapshot reads every counter into a Stats value.
func (c *Collector) Snapshot() Stats {
	return Stats{
		WritesSent:         atomic.LoadInt64(&c.writesSent),
		WritesAcked:        atomic.LoadInt64(&c.writesAcked),
		WritesReverted:     atomic.LoadInt64(&c.writesReverted),
		ListensEstablished: atomic.LoadInt64(&c.listensEstablished),
		ListensFailed:      atomic.LoadInt64(&c.listensFailed),
		Reconnects:         atomic.LoadInt64(&c.reconnects),
		EventsDelivered:    atomic.LoadInt64(&c.eventsDelivered),
		CallbackPanics:     atomic.LoadInt64(&c.callbackPanics),
	}
}

// PrintTo writes a column-aligned table of the current snapshot to w.
func (c *Collector) PrintTo(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	s := c.Snapshot()
	fmt.Fprintf(tw, "writes_sent\t%d\n", s.WritesSent)
	fmt.Fprintf(tw, "writes_acked\t%d\n", s.WritesAcked)
	fmt.Fprintf(tw, "writes_reverted\t%d\n", s.WritesReverted)
	fmt.Fprintf(tw, "listens_established\t%d\n", s.ListensEstablished)
	fmt.Fprintf(tw, "listens_failed\t%d\n", s.ListensFailed)
	fmt.Fprintf(tw, "reconnects\t%d\n", s.Reconnects)
	fmt.Fprintf(tw, "events_delivered\t%d\n", s.EventsDelivered)
	fmt.Fprintf(tw, "callback_panics\t%d\n", s.CallbackPanics)
	tw.Flush()
}

// Reporter pushes a Stats snapshot to an external sink.
type Reporter interface {
	Record(ctx context.Context, s Stats)
}

// NoopReporter discards every snapshot. It is the default when no meter
// provider is configured, so the engine never needs a nil check at the
// call site.
type NoopReporter struct{}

func (NoopReporter) Record(context.Context, Stats) {}

// OTelReporter publishes each field of Stats as an OpenTelemetry
// observable gauge, backed by the given meter.
type OTelReporter struct {
	current Stats
}

// NewOTelReporter registers the engine's counters as asynchronous gauges on
// meter. The returned Reporter's Record method updates the value the
// gauges observe on their next collection pass; OpenTelemetry's SDK drives
// the actual export cadence.
func NewOTelReporter(meter metric.Meter) (*OTelReporter, error) {
	r := &OTelReporter{}

	register := func(name, help string, get func(Stats) int64) error {
		_, err := meter.Int64ObservableGauge(name,
			metric.WithDescription(help),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(get(r.current))
				return nil
			}),
		)
		return err
	}

	fields := []struct {
		name, help string
		get        func(Stats) int64
	}{
		{"rtdb.writes.sent", "optimistic writes sent to the transport", func(s Stats) int64 { return s.WritesSent }},
		{"rtdb.writes.acked", "writes acknowledged ok", func(s Stats) int64 { return s.WritesAcked }},
		{"rtdb.writes.reverted", "writes reverted after a non-ok ack", func(s Stats) int64 { return s.WritesReverted }},
		{"rtdb.listens.established", "listens successfully established", func(s Stats) int64 { return s.ListensEstablished }},
		{"rtdb.listens.failed", "listens that failed to establish", func(s Stats) int64 { return s.ListensFailed }},
		{"rtdb.reconnects", "transport reconnect attempts", func(s Stats) int64 { return s.Reconnects }},
		{"rtdb.events.delivered", "listener callback invocations", func(s Stats) int64 { return s.EventsDelivered }},
		{"rtdb.callback.panics", "listener callbacks that panicked", func(s Stats) int64 { return s.CallbackPanics }},
	}
	for _, f := range fields {
		if err := register(f.name, f.help, f.get); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *OTelReporter) Record(_ context.Context, s Stats) {
	r.current = s
}
