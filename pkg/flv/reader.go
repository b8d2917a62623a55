package flv

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Tag types
const (
	TAG_AUDIO  = 8
	TAG_VIDEO  = 9
	TAG_SCRIPT = 18
)

const (
	headerSize    = 9
	tagHeaderSize = 11
)

var ErrNotFLV = errors.New("not an flv file")

// Tag is one FLV tag with its full 32 bit timestamp.
type Tag struct {
	Type      uint8
	Timestamp uint32
	Data      []byte
}

// Reader reads tags from an FLV file.
type Reader struct {
	r        *bufio.Reader
	HasAudio bool
	HasVideo bool
}

// NewReader checks the file header and positions the reader on the first tag.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, fmt.Errorf("read flv header: %w", err)
	}
	if header[0] != 'F' || header[1] != 'L' || header[2] != 'V' {
		return nil, ErrNotFLV
	}

	offset := binary.BigEndian.Uint32(header[5:9])
	if offset < headerSize {
		return nil, fmt.Errorf("invalid flv header size %d", offset)
	}
	// skip the rest of the header and PreviousTagSize0
	if _, err := br.Discard(int(offset-headerSize) + 4); err != nil {
		return nil, fmt.Errorf("skip flv header: %w", err)
	}

	return &Reader{
		r:        br,
		HasAudio: header[4]&0x04 != 0,
		HasVideo: header[4]&0x01 != 0,
	}, nil
}

// ReadTag returns the next tag, or io.EOF at the end of the file.
func (fr *Reader) ReadTag() (*Tag, error) {
	header := make([]byte, tagHeaderSize)
	if _, err := io.ReadFull(fr.r, header); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("truncated tag header: %w", err)
		}
		return nil, err
	}

	tag := &Tag{
		Type:      header[0] & 0x1F,
		Timestamp: getUint24(header[4:7]) | uint32(header[7])<<24,
	}
	size := getUint24(header[1:4])
	tag.Data = make([]byte, size)
	if _, err := io.ReadFull(fr.r, tag.Data); err != nil {
		return nil, fmt.Errorf("truncated tag body: %w", err)
	}
	if _, err := fr.r.Discard(4); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read previous tag size: %w", err)
	}
	return tag, nil
}

// WriteHeader writes an FLV file header with PreviousTagSize0.
func WriteHeader(w io.Writer, audio, video bool) error {
	header := []byte{'F', 'L', 'V', 0x01, 0, 0, 0, 0, headerSize, 0, 0, 0, 0}
	if audio {
		header[4] |= 0x04
	}
	if video {
		header[4] |= 0x01
	}
	_, err := w.Write(header)
	return err
}

// WriteTag writes one tag followed by its PreviousTagSize.
func WriteTag(w io.Writer, tag *Tag) error {
	buf := make([]byte, tagHeaderSize, tagHeaderSize+len(tag.Data)+4)
	buf[0] = tag.Type
	putUint24(buf[1:4], uint32(len(tag.Data)))
	putUint24(buf[4:7], tag.Timestamp&0xFFFFFF)
	buf[7] = uint8(tag.Timestamp >> 24)
	buf = append(buf, tag.Data...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(tagHeaderSize+len(tag.Data)))
	_, err := w.Write(buf)
	return err
}

func getUint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}
