package rtmp

import (
	"encoding/binary"
	"io"
)

type basicHeader struct {
	fmt           byte
	chunkStreamID uint32
}

func newBasicHeader(fmt byte, chunkStreamID uint32) *basicHeader {
	return &basicHeader{
		fmt:           fmt,
		chunkStreamID: chunkStreamID,
	}
}

func readBasicHeader(r io.Reader) (*basicHeader, error) {
	buf := [2]byte{}
	if _, err := io.ReadFull(r, buf[:1]); err != nil {
		return nil, err
	}

	format := (buf[0] & 0xC0) >> 6
	chunkStreamID := uint32(buf[0] & 0x3F)

	switch chunkStreamID {
	case 0:
		// 2바이트 형식: 64 ~ 319
		if _, err := io.ReadFull(r, buf[:1]); err != nil {
			return nil, err
		}
		chunkStreamID = 64 + uint32(buf[0])
	case 1:
		// 3바이트 형식: 64 ~ 65599
		if _, err := io.ReadFull(r, buf[:2]); err != nil {
			return nil, err
		}
		chunkStreamID = 64 + uint32(binary.LittleEndian.Uint16(buf[:]))
	}

	return newBasicHeader(format, chunkStreamID), nil
}

func (bh *basicHeader) encode() []byte {
	switch {
	case bh.chunkStreamID < 64:
		return []byte{bh.fmt<<6 | byte(bh.chunkStreamID)}
	case bh.chunkStreamID < 320:
		return []byte{bh.fmt << 6, byte(bh.chunkStreamID - 64)}
	default:
		id := bh.chunkStreamID - 64
		return []byte{bh.fmt<<6 | 1, byte(id), byte(id >> 8)}
	}
}
