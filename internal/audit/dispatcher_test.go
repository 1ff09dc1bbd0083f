package audit

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	seen    []Entry
}

func (s *blockingSink) Emit(_ context.Context, entry Entry) {
	<-s.release
	s.mu.Lock()
	s.seen = append(s.seen, entry)
	s.mu.Unlock()
}

func (s *blockingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

func TestDispatcherForwardsEntries(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{BufferSize: 8, DropIfFull: true}, sink)

	entry := Entry{
		Timestamp: time.Now(),
		Actor:     "alice@example.com",
		Action:    "LOGIN",
		Outcome:   OutcomeSuccess,
	}
	d.Emit(context.Background(), entry)

	select {
	case got := <-sink.Entries():
		if got.Action != "LOGIN" || got.Actor != "alice@example.com" {
			t.Fatalf("unexpected entry: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("entry never reached the sink")
	}

	d.Close()
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{BufferSize: 1, DropIfFull: true}, sink)

	// One entry parks in the sink, one fills the buffer, the rest drop.
	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Entry{Action: "LOGIN"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a full buffer")
	}

	close(sink.release)
	d.Close()

	if sink.count() == 0 {
		t.Fatal("buffered entries must still be delivered")
	}
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	d := NewDispatcher(Config{BufferSize: 16, DropIfFull: true}, sink)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Entry{Action: "LOGIN", Outcome: OutcomeSuccess})
	}
	d.Close()

	lines := strings.Count(buf.String(), "\n")
	if lines+int(d.Dropped()) != 5 {
		t.Fatalf("expected 5 entries accounted for, delivered=%d dropped=%d", lines, d.Dropped())
	}

	// Emit after Close is a no-op.
	d.Emit(context.Background(), Entry{Action: "LATE"})
	if strings.Contains(buf.String(), "LATE") {
		t.Fatal("entry emitted after Close must not be delivered")
	}
}

func TestDispatcherCloseIsIdempotent(t *testing.T) {
	d := NewDispatcher(Config{BufferSize: 1, DropIfFull: true}, NoOpSink{})
	d.Close()
	d.Close()
}
