package solrtmp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"solrtmp/pkg/amf"
	"solrtmp/pkg/flv"
	"solrtmp/pkg/rtmp"
)

type recordingPublisher struct {
	sent []*rtmp.StreamData
}

func (p *recordingPublisher) PublishStreamData(streamID uint32, data *rtmp.StreamData) {
	p.sent = append(p.sent, data)
}

func flvFile(t *testing.T, tags ...*flv.Tag) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := flv.WriteHeader(&buf, true, true); err != nil {
		t.Fatal(err)
	}
	for _, tag := range tags {
		if err := flv.WriteTag(&buf, tag); err != nil {
			t.Fatal(err)
		}
	}
	return buf.Bytes()
}

func TestPublishFile(t *testing.T) {
	data := flvFile(t,
		&flv.Tag{Type: flv.TAG_SCRIPT, Data: []byte{0x02, 0x00, 0x00}},
		&flv.Tag{Type: flv.TAG_VIDEO, Timestamp: 0, Data: []byte{0x17, 0x00}},
		&flv.Tag{Type: flv.TAG_AUDIO, Timestamp: 23, Data: []byte{0xAF, 0x01}},
	)

	p := &recordingPublisher{}
	sent, err := PublishFile(context.Background(), p, 1, bytes.NewReader(data), false)
	if err != nil {
		t.Fatal(err)
	}
	if sent != 3 || len(p.sent) != 3 {
		t.Fatalf("expected 3 tags, got %d", sent)
	}
	kinds := []uint8{rtmp.MSG_TYPE_AMF0_DATA, rtmp.MSG_TYPE_VIDEO, rtmp.MSG_TYPE_AUDIO}
	for i, kind := range kinds {
		if p.sent[i].Kind != kind {
			t.Errorf("tag %d: expected kind %d, got %d", i, kind, p.sent[i].Kind)
		}
	}
	if p.sent[2].Timestamp != 23 {
		t.Errorf("expected timestamp 23, got %d", p.sent[2].Timestamp)
	}
}

func TestPublishFileRealtimePacing(t *testing.T) {
	data := flvFile(t,
		&flv.Tag{Type: flv.TAG_AUDIO, Timestamp: 1000, Data: []byte{1}},
		&flv.Tag{Type: flv.TAG_AUDIO, Timestamp: 1050, Data: []byte{2}},
	)

	start := time.Now()
	if _, err := PublishFile(context.Background(), &recordingPublisher{}, 1, bytes.NewReader(data), true); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("expected pacing relative to the first tag, took %s", elapsed)
	}
}

func TestPublishFileCancelled(t *testing.T) {
	data := flvFile(t,
		&flv.Tag{Type: flv.TAG_AUDIO, Timestamp: 0, Data: []byte{1}},
		&flv.Tag{Type: flv.TAG_AUDIO, Timestamp: 60000, Data: []byte{2}},
	)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	sent, err := PublishFile(ctx, &recordingPublisher{}, 1, bytes.NewReader(data), true)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if sent != 1 {
		t.Errorf("expected one tag before cancellation, got %d", sent)
	}
}

func TestPublishFileRejectsNonFLV(t *testing.T) {
	if _, err := PublishFile(context.Background(), &recordingPublisher{}, 1, bytes.NewReader([]byte("not flv at all")), false); err == nil {
		t.Error("expected an error")
	}
}

func TestRecorder(t *testing.T) {
	var buf bytes.Buffer
	r := NewRecorder(&buf)

	r.DispatchEvent(1, &rtmp.Notify{Method: "onMetaData", Args: []any{map[string]any{"width": 640.0}}, Data: true})
	r.DispatchEvent(1, &rtmp.StreamData{Kind: rtmp.MSG_TYPE_VIDEO, Timestamp: 0, Body: []byte{0x17, 0x00}})
	r.DispatchEvent(1, &rtmp.StreamData{Kind: rtmp.MSG_TYPE_AUDIO, Timestamp: 21, Body: []byte{0xAF, 0x01}})
	r.DispatchEvent(1, &rtmp.StreamData{Kind: rtmp.MSG_TYPE_AGGREGATE, Body: []byte{0}})
	r.DispatchEvent(1, &rtmp.Ping{})

	audio, video, data := r.Counts()
	if audio != 1 || video != 1 || data != 1 {
		t.Errorf("unexpected counts audio=%d video=%d data=%d", audio, video, data)
	}
	if r.Err() != nil {
		t.Fatal(r.Err())
	}

	fr, err := flv.NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	script, err := fr.ReadTag()
	if err != nil {
		t.Fatal(err)
	}
	values, err := amf.DecodeAMF0Sequence(bytes.NewReader(script.Data))
	if err != nil {
		t.Fatal(err)
	}
	if script.Type != flv.TAG_SCRIPT || values[0] != "onMetaData" {
		t.Errorf("unexpected script tag %v", values)
	}
	for _, want := range []uint8{flv.TAG_VIDEO, flv.TAG_AUDIO} {
		tag, err := fr.ReadTag()
		if err != nil {
			t.Fatal(err)
		}
		if tag.Type != want {
			t.Errorf("expected tag type %d, got %d", want, tag.Type)
		}
	}
	if _, err := fr.ReadTag(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestRecorderStopsAfterWriteError(t *testing.T) {
	r := NewRecorder(failWriter{})
	r.DispatchEvent(1, &rtmp.StreamData{Kind: rtmp.MSG_TYPE_AUDIO})
	r.DispatchEvent(1, &rtmp.StreamData{Kind: rtmp.MSG_TYPE_AUDIO})
	if r.Err() == nil {
		t.Error("expected the write error to be kept")
	}
	if audio, _, _ := r.Counts(); audio != 1 {
		t.Errorf("nothing is recorded after a failure, got %d", audio)
	}
}
