package rtmp

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// clientHandshake sends C0/C1, reads S0/S1/S2 and answers with C2.
func clientHandshake(rw io.ReadWriter) error {
	// C0 + C1
	c0c1 := make([]byte, 1+HANDSHAKE_SIZE)
	c0c1[0] = RTMP_VERSION
	binary.BigEndian.PutUint32(c0c1[1:5], uint32(time.Now().Unix())) // time field
	// zero field stays 0
	_, _ = rand.Read(c0c1[9:]) // random field

	if _, err := rw.Write(c0c1); err != nil {
		return fmt.Errorf("failed to write C0/C1: %w", err)
	}

	// S0
	s0 := make([]byte, 1)
	if _, err := io.ReadFull(rw, s0); err != nil {
		return fmt.Errorf("failed to read S0: %w", err)
	}
	if s0[0] != RTMP_VERSION {
		return fmt.Errorf("unsupported RTMP version: %d", s0[0])
	}

	// S1
	s1 := make([]byte, HANDSHAKE_SIZE)
	if _, err := io.ReadFull(rw, s1); err != nil {
		return fmt.Errorf("failed to read S1: %w", err)
	}

	// S2
	s2 := make([]byte, HANDSHAKE_SIZE)
	if _, err := io.ReadFull(rw, s2); err != nil {
		return fmt.Errorf("failed to read S2: %w", err)
	}

	// C2: S1 echo
	if _, err := rw.Write(s1); err != nil {
		return fmt.Errorf("failed to write C2: %w", err)
	}

	return nil
}
