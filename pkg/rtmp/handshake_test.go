package rtmp

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"
	"testing"
)

type testReadWriter struct {
	io.Reader
	io.Writer
}

func newTestReadWriter(r io.Reader, w io.Writer) *testReadWriter {
	return &testReadWriter{
		Reader: r,
		Writer: w,
	}
}

type failWriter struct {
	remainingBytes int
}

func newFailWriter(maxBytes int) *failWriter {
	return &failWriter{remainingBytes: maxBytes}
}

func (w *failWriter) Write(p []byte) (int, error) {
	if len(p) > w.remainingBytes {
		return 0, fmt.Errorf("write failed intentionally after exceeding max bytes")
	}
	w.remainingBytes -= len(p)
	return len(p), nil
}

// serverHandshake plays the accepting side for tests: C0 → S0, S1 → C1 → S2 → C2.
func serverHandshake(rw io.ReadWriter) error {
	// C0
	c0 := make([]byte, 1)
	if _, err := io.ReadFull(rw, c0); err != nil {
		return fmt.Errorf("failed to read C0: %w", err)
	}

	if c0[0] != RTMP_VERSION {
		return fmt.Errorf("unsupported RTMP version: %d", c0[0])
	}

	// S0
	if _, err := rw.Write(c0); err != nil {
		return fmt.Errorf("failed to write S0: %w", err)
	}

	// S1
	s1 := make([]byte, HANDSHAKE_SIZE)
	_, _ = rand.Read(s1[8:]) // time and zero fields stay 0

	if _, err := rw.Write(s1); err != nil {
		return fmt.Errorf("failed to write S1: %w", err)
	}

	// C1
	c1 := make([]byte, HANDSHAKE_SIZE)
	if _, err := io.ReadFull(rw, c1); err != nil {
		return fmt.Errorf("failed to read C1: %w", err)
	}

	// S2
	if _, err := rw.Write(c1); err != nil {
		return fmt.Errorf("failed to write S2: %w", err)
	}

	// C2
	c2 := make([]byte, HANDSHAKE_SIZE)
	if _, err := io.ReadFull(rw, c2); err != nil {
		return fmt.Errorf("failed to read C2: %w", err)
	}

	return nil
}

func TestServerHandshake(t *testing.T) {
	data := append([]byte{0x03}, make([]byte, 1536*2)...)
	rw := newTestReadWriter(bytes.NewReader(data), io.Discard)
	err := serverHandshake(rw)
	if err != nil {
		t.Fatalf("expected no error but got: %v", err)
	}
}

func TestServerHandshakeFailures(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		maxWrite int
	}{
		{"read C0", nil, 0},
		{"invalid C0 version", []byte{0x02}, 0},
		{"write S0", []byte{0x03}, 0},
		{"write S1", []byte{0x03}, 1},
		{"read C1", []byte{0x03}, 1 + 1536},
		{"write S2", append([]byte{0x03}, make([]byte, 1536)...), 1 + 1536},
		{"read C2", append([]byte{0x03}, make([]byte, 1536)...), 1 + 1536*2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rw := newTestReadWriter(bytes.NewReader(tt.input), newFailWriter(tt.maxWrite))
			if err := serverHandshake(rw); err == nil {
				t.Fatal("expected error but got nil")
			}
		})
	}
}

func TestClientHandshake(t *testing.T) {
	s1 := bytes.Repeat([]byte{0xAB}, HANDSHAKE_SIZE)
	s2 := make([]byte, HANDSHAKE_SIZE)
	data := append([]byte{RTMP_VERSION}, s1...)
	data = append(data, s2...)

	out := new(bytes.Buffer)
	if err := clientHandshake(newTestReadWriter(bytes.NewReader(data), out)); err != nil {
		t.Fatalf("expected no error but got: %v", err)
	}

	written := out.Bytes()
	if len(written) != 1+HANDSHAKE_SIZE*2 {
		t.Fatalf("expected %d bytes written, got %d", 1+HANDSHAKE_SIZE*2, len(written))
	}
	if written[0] != RTMP_VERSION {
		t.Errorf("expected C0 version %d, got %d", RTMP_VERSION, written[0])
	}
	if !bytes.Equal(written[1+HANDSHAKE_SIZE:], s1) {
		t.Error("C2 must echo S1")
	}
}

func TestClientHandshakeFailures(t *testing.T) {
	full := append([]byte{RTMP_VERSION}, make([]byte, HANDSHAKE_SIZE*2)...)

	tests := []struct {
		name     string
		input    []byte
		maxWrite int
	}{
		{"write C0C1", full, 0},
		{"read S0", nil, 1 + HANDSHAKE_SIZE},
		{"invalid S0 version", []byte{0x06}, 1 + HANDSHAKE_SIZE},
		{"read S1", []byte{RTMP_VERSION}, 1 + HANDSHAKE_SIZE},
		{"read S2", full[:1+HANDSHAKE_SIZE], 1 + HANDSHAKE_SIZE},
		{"write C2", full, 1 + HANDSHAKE_SIZE},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rw := newTestReadWriter(bytes.NewReader(tt.input), newFailWriter(tt.maxWrite))
			if err := clientHandshake(rw); err == nil {
				t.Fatal("expected error but got nil")
			}
		})
	}
}

func TestHandshakeBetweenPeers(t *testing.T) {
	clientSide, serverSide := newTCPPair(t)
	errs := make(chan error, 1)
	go func() {
		errs <- serverHandshake(serverSide)
	}()

	if err := clientHandshake(clientSide); err != nil {
		t.Fatalf("client handshake: %v", err)
	}
	if err := <-errs; err != nil {
		t.Fatalf("server handshake: %v", err)
	}
}
