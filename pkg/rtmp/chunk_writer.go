package rtmp

import (
	"encoding/binary"
	"io"
)

// chunkWriter splits messages into chunks, compressing headers against the last
// message written on the same channel.
type chunkWriter struct {
	w         io.Writer
	chunkSize uint32
}

func newChunkWriter(w io.Writer) *chunkWriter {
	return &chunkWriter{
		w:         w,
		chunkSize: DEFAULT_CHUNK_SIZE,
	}
}

func (cw *chunkWriter) setChunkSize(size uint32) {
	cw.chunkSize = size
}

func (cw *chunkWriter) writeMessage(ch *Channel, h *Header, payload []byte) error {
	h.Size = uint32(len(payload))
	format, delta := selectFormat(ch, h)

	// 첫 번째 청크: 선택된 fmt의 전체 헤더
	timestampField := delta
	if format == FMT_TYPE_0 {
		timestampField = h.Timestamp
	}
	extended := timestampField >= EXTENDED_TIMESTAMP_THRESHOLD

	if err := cw.writeHeader(format, h, timestampField, extended); err != nil {
		return err
	}

	offset := uint32(0)
	for {
		n := min(h.Size-offset, cw.chunkSize)
		if _, err := cw.w.Write(payload[offset : offset+n]); err != nil {
			return err
		}
		offset += n
		if offset >= h.Size {
			break
		}
		// 이후 청크는 fmt 3 헤더만
		if err := cw.writeContinuation(h, timestampField, extended); err != nil {
			return err
		}
	}

	written := *h
	ch.lastWritten = &written
	ch.lastDelta = delta
	ch.lastExtended = extended
	return nil
}

func selectFormat(ch *Channel, h *Header) (byte, uint32) {
	prev := ch.lastWritten
	if prev == nil || prev.StreamID != h.StreamID || h.Timestamp < prev.Timestamp {
		return FMT_TYPE_0, 0
	}
	delta := h.Timestamp - prev.Timestamp
	switch {
	case prev.Size != h.Size || prev.DataType != h.DataType:
		return FMT_TYPE_1, delta
	case delta != ch.lastDelta || ch.lastExtended:
		// the reader expects an extended field on fmt 3 after an extended header
		return FMT_TYPE_2, delta
	default:
		return FMT_TYPE_3, delta
	}
}

func (cw *chunkWriter) writeHeader(format byte, h *Header, timestamp uint32, extended bool) error {
	if _, err := cw.w.Write(newBasicHeader(format, h.ChannelID).encode()); err != nil {
		return err
	}

	field := timestamp
	if extended {
		field = EXTENDED_TIMESTAMP_THRESHOLD
	}

	var buf [11]byte
	var n int
	switch format {
	case FMT_TYPE_0:
		PutUint24(buf[0:], field)
		PutUint24(buf[3:], h.Size)
		buf[6] = h.DataType
		binary.LittleEndian.PutUint32(buf[7:], h.StreamID)
		n = 11
	case FMT_TYPE_1:
		PutUint24(buf[0:], field)
		PutUint24(buf[3:], h.Size)
		buf[6] = h.DataType
		n = 7
	case FMT_TYPE_2:
		PutUint24(buf[0:], field)
		n = 3
	}
	if n > 0 {
		if _, err := cw.w.Write(buf[:n]); err != nil {
			return err
		}
	}

	if extended {
		return binary.Write(cw.w, binary.BigEndian, timestamp)
	}
	return nil
}

func (cw *chunkWriter) writeContinuation(h *Header, timestamp uint32, extended bool) error {
	if _, err := cw.w.Write(newBasicHeader(FMT_TYPE_3, h.ChannelID).encode()); err != nil {
		return err
	}
	if extended {
		return binary.Write(cw.w, binary.BigEndian, timestamp)
	}
	return nil
}
