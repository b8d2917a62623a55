package rtmp

import "fmt"

// Header describes one complete message as seen on a channel. Timestamp is absolute.
type Header struct {
	ChannelID uint32
	Timestamp uint32
	Size      uint32
	DataType  uint8
	StreamID  uint32
}

func (h *Header) String() string {
	return fmt.Sprintf("channel=%d type=%d size=%d ts=%d stream=%d", h.ChannelID, h.DataType, h.Size, h.Timestamp, h.StreamID)
}

// Packet pairs a decoded event with the header it arrived with.
type Packet struct {
	Header *Header
	Event  Event
}

// ChannelForStream returns the data channel id used for invokes on a stream.
func ChannelForStream(streamID uint32) uint32 {
	if streamID == 0 {
		return CHUNK_STREAM_COMMAND
	}
	return (streamID-1)*5 + CHUNK_STREAM_DATA
}

// StreamForChannel is the inverse of ChannelForStream for data channels. Control
// channels map to stream 0.
func StreamForChannel(channelID uint32) uint32 {
	if channelID < CHUNK_STREAM_DATA {
		return 0
	}
	return (channelID-CHUNK_STREAM_DATA)/5 + 1
}

func readUint24BE(buf []byte) uint32 {
	return uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2])
}

func PutUint24(b []byte, v uint32) {
	b[0] = byte((v >> 16) & 0xFF)
	b[1] = byte((v >> 8) & 0xFF)
	b[2] = byte(v & 0xFF)
}
