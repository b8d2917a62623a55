package rtmp

import (
	"errors"
	"testing"
)

func writtenInvokes(t *testing.T, rwc *bufferConn) []*Invoke {
	t.Helper()
	var out []*Invoke
	for _, ev := range decodeAll(t, rwc.Bytes()) {
		if inv, ok := ev.(*Invoke); ok {
			out = append(out, inv)
		}
	}
	return out
}

func TestDeferredResultResolvedAfterBind(t *testing.T) {
	conn, rwc, _ := newTestConnection(t, Options{})
	conn.Start()

	d := NewDeferredResult()
	d.bind(conn, CHUNK_STREAM_COMMAND, 7, &Call{Method: "slow"})
	if conn.Stats().DeferredResults != 1 {
		t.Fatal("expected the result to be registered")
	}
	if d.InvokeID() != 7 {
		t.Errorf("expected invoke id 7, got %d", d.InvokeID())
	}

	if err := d.Resolve("done"); err != nil {
		t.Fatal(err)
	}
	if conn.Stats().DeferredResults != 0 {
		t.Error("a resolved result must be unregistered")
	}

	waitFor(t, "reply", func() bool { return len(writtenInvokes(t, rwc)) == 1 })
	reply := writtenInvokes(t, rwc)[0]
	if reply.Method != methodResult || reply.InvokeID != 7 || reply.Args[0] != "done" {
		t.Errorf("unexpected reply %+v", reply)
	}

	if err := d.Resolve("again"); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("expected ErrAlreadyResolved, got %v", err)
	}
}

func TestDeferredResultResolvedBeforeBind(t *testing.T) {
	conn, rwc, _ := newTestConnection(t, Options{})
	conn.Start()

	d := NewDeferredResult()
	if err := d.Resolve(42); err != nil {
		t.Fatal(err)
	}
	d.bind(conn, CHUNK_STREAM_COMMAND, 3, &Call{Method: "quick"})

	waitFor(t, "reply", func() bool { return len(writtenInvokes(t, rwc)) == 1 })
	reply := writtenInvokes(t, rwc)[0]
	if reply.InvokeID != 3 || reply.Args[0] != float64(42) {
		t.Errorf("unexpected reply %+v", reply)
	}
	if conn.Stats().DeferredResults != 0 {
		t.Error("a sent result must be unregistered")
	}
}

func TestDeferredResultReject(t *testing.T) {
	conn, rwc, _ := newTestConnection(t, Options{})
	conn.Start()

	d := NewDeferredResult()
	d.bind(conn, CHUNK_STREAM_COMMAND, 4, &Call{Method: "fails"})
	if err := d.Reject(errors.New("backend down")); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "reply", func() bool { return len(writtenInvokes(t, rwc)) == 1 })
	reply := writtenInvokes(t, rwc)[0]
	if reply.Method != methodError || reply.InvokeID != 4 {
		t.Fatalf("unexpected reply %+v", reply)
	}
	info := reply.Args[0].(map[string]any)
	if info["description"] != "backend down" || info["code"] != "NetConnection.Call.Failed" {
		t.Errorf("unexpected error info %v", info)
	}
}
