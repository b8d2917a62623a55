package rtmp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"slices"
)

// readStep bounds how far the payload buffer grows ahead of received data.
const readStep = 4096

var errNoPreviousHeader = errors.New("chunk references a channel with no previous header")

// chunkReader reassembles messages from interleaved chunks.
type chunkReader struct {
	r         io.Reader
	chunkSize uint32
	channels  *channelTable
}

func newChunkReader(r io.Reader, channels *channelTable) *chunkReader {
	return &chunkReader{
		r:         r,
		chunkSize: DEFAULT_CHUNK_SIZE,
		channels:  channels,
	}
}

func (cr *chunkReader) setChunkSize(size uint32) {
	cr.chunkSize = size
}

// readMessage reads chunks until one message is complete.
func (cr *chunkReader) readMessage() (*Header, []byte, error) {
	for {
		header, payload, err := cr.readChunk()
		if err != nil {
			return nil, nil, err
		}
		if header != nil {
			return header, payload, nil
		}
	}
}

// readChunk returns a header and payload only when the chunk completed a message.
func (cr *chunkReader) readChunk() (*Header, []byte, error) {
	bh, err := readBasicHeader(cr.r)
	if err != nil {
		return nil, nil, err
	}

	ch := cr.channels.get(bh.chunkStreamID)
	st := &ch.in

	if bh.fmt != FMT_TYPE_0 && st.header == nil {
		return nil, nil, fmt.Errorf("channel %d fmt %d: %w", bh.chunkStreamID, bh.fmt, errNoPreviousHeader)
	}

	continuation := bh.fmt == FMT_TYPE_3 && st.payload != nil
	if err := cr.readMessageHeader(bh, st, continuation); err != nil {
		return nil, nil, err
	}

	if st.payload == nil {
		// the declared size is untrusted, capacity follows the bytes actually read
		st.payload = make([]byte, 0, min(st.header.Size, readStep))
	}

	remain := st.header.Size - uint32(len(st.payload))
	n := int(min(remain, cr.chunkSize))
	for n > 0 {
		step := min(n, readStep)
		start := len(st.payload)
		st.payload = slices.Grow(st.payload, step)[:start+step]
		if _, err := io.ReadFull(cr.r, st.payload[start:]); err != nil {
			return nil, nil, err
		}
		n -= step
	}

	if uint32(len(st.payload)) < st.header.Size {
		return nil, nil, nil
	}

	header := *st.header
	payload := st.payload
	st.payload = nil
	return &header, payload, nil
}

func (cr *chunkReader) readMessageHeader(bh *basicHeader, st *inboundState, continuation bool) error {
	var buf [11]byte

	switch bh.fmt {
	case FMT_TYPE_0:
		if _, err := io.ReadFull(cr.r, buf[:11]); err != nil {
			return err
		}
		timestamp := readUint24BE(buf[0:3])
		st.extended = timestamp == EXTENDED_TIMESTAMP_THRESHOLD
		if st.extended {
			ext, err := readExtendedTimestamp(cr.r)
			if err != nil {
				return err
			}
			timestamp = ext
		}
		st.header = &Header{
			ChannelID: bh.chunkStreamID,
			Timestamp: timestamp,
			Size:      readUint24BE(buf[3:6]),
			DataType:  buf[6],
			StreamID:  binary.LittleEndian.Uint32(buf[7:11]),
		}
		st.delta = 0
		st.payload = nil

	case FMT_TYPE_1:
		if _, err := io.ReadFull(cr.r, buf[:7]); err != nil {
			return err
		}
		delta, err := cr.readDelta(st, readUint24BE(buf[0:3]))
		if err != nil {
			return err
		}
		prev := st.header
		st.header = &Header{
			ChannelID: bh.chunkStreamID,
			Timestamp: prev.Timestamp + delta,
			Size:      readUint24BE(buf[3:6]),
			DataType:  buf[6],
			StreamID:  prev.StreamID,
		}
		st.delta = delta
		st.payload = nil

	case FMT_TYPE_2:
		if _, err := io.ReadFull(cr.r, buf[:3]); err != nil {
			return err
		}
		delta, err := cr.readDelta(st, readUint24BE(buf[0:3]))
		if err != nil {
			return err
		}
		next := *st.header
		next.Timestamp += delta
		st.header = &next
		st.delta = delta
		st.payload = nil

	case FMT_TYPE_3:
		// 확장 타임스탬프는 fmt 3 청크에서도 반복된다
		if st.extended {
			if _, err := readExtendedTimestamp(cr.r); err != nil {
				return err
			}
		}
		if !continuation {
			next := *st.header
			next.Timestamp += st.delta
			st.header = &next
		}

	default:
		return errors.New("fmt must be 0-3")
	}
	return nil
}

func (cr *chunkReader) readDelta(st *inboundState, delta uint32) (uint32, error) {
	st.extended = delta == EXTENDED_TIMESTAMP_THRESHOLD
	if !st.extended {
		return delta, nil
	}
	return readExtendedTimestamp(cr.r)
}

func readExtendedTimestamp(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}
