package rtmp

import "testing"

func TestOutboundQueue(t *testing.T) {
	q := newOutboundQueue()
	for i := range 1000 {
		if !q.push(&outboundMessage{header: &Header{Timestamp: uint32(i)}}) {
			t.Fatal("push on an open queue must succeed")
		}
	}
	select {
	case <-q.ready():
	default:
		t.Fatal("queue must signal readiness")
	}

	items := q.drain()
	if len(items) != 1000 {
		t.Fatalf("expected 1000 messages, got %d", len(items))
	}
	for i, m := range items {
		if m.header.Timestamp != uint32(i) {
			t.Fatalf("message %d out of order", i)
		}
	}
	if q.len() != 0 {
		t.Error("drain must empty the queue")
	}
}

func TestOutboundQueueClose(t *testing.T) {
	q := newOutboundQueue()
	q.push(&outboundMessage{header: &Header{}})
	q.push(&outboundMessage{header: &Header{}})

	if dropped := q.close(); dropped != 2 {
		t.Errorf("expected 2 dropped messages, got %d", dropped)
	}
	if q.push(&outboundMessage{header: &Header{}}) {
		t.Error("push after close must fail")
	}
}
