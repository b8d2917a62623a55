package solrtmp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"solrtmp/pkg/amf"
	"solrtmp/pkg/flv"
	"solrtmp/pkg/rtmp"
)

// Recorder writes the media of a played stream as an FLV file. It is the
// client's stream event dispatcher while playing.
type Recorder struct {
	mu            sync.Mutex
	w             io.Writer
	headerWritten bool
	audio, video  int
	data          int
	err           error
}

func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{w: w}
}

func (r *Recorder) DispatchEvent(streamID uint32, event rtmp.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}

	var tag *flv.Tag
	switch ev := event.(type) {
	case *rtmp.StreamData:
		switch ev.Kind {
		case rtmp.MSG_TYPE_AUDIO:
			r.audio++
		case rtmp.MSG_TYPE_VIDEO:
			r.video++
		case rtmp.MSG_TYPE_AMF0_DATA:
			r.data++
		default:
			slog.Debug("Skipping stream data", "streamId", streamID, "type", ev.Kind)
			return
		}
		tag = &flv.Tag{Type: ev.Kind, Timestamp: ev.Timestamp, Data: ev.Body}
	case *rtmp.Notify:
		body, err := amf.EncodeAMF0Sequence(append([]any{ev.Method}, ev.Args...)...)
		if err != nil {
			slog.Warn("Failed to encode stream data", "streamId", streamID, "method", ev.Method, "err", err)
			return
		}
		r.data++
		tag = &flv.Tag{Type: flv.TAG_SCRIPT, Data: body}
	default:
		return
	}

	if !r.headerWritten {
		if r.err = flv.WriteHeader(r.w, true, true); r.err != nil {
			slog.Error("Failed to write flv header", "err", r.err)
			return
		}
		r.headerWritten = true
	}
	if r.err = flv.WriteTag(r.w, tag); r.err != nil {
		slog.Error("Failed to write flv tag", "err", r.err)
	}
}

// Counts returns the number of audio, video and data tags recorded.
func (r *Recorder) Counts() (audio, video, data int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.audio, r.video, r.data
}

func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// MediaPublisher is the client side of publishing.
type MediaPublisher interface {
	PublishStreamData(streamID uint32, data *rtmp.StreamData)
}

// PublishFile sends the tags of an FLV file on a publishing stream. In realtime
// mode tags are paced by their timestamps. It returns the number of tags sent.
func PublishFile(ctx context.Context, p MediaPublisher, streamID uint32, r io.Reader, realtime bool) (int, error) {
	fr, err := flv.NewReader(r)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	var base uint32
	sent := 0
	for {
		tag, err := fr.ReadTag()
		if errors.Is(err, io.EOF) {
			return sent, nil
		}
		if err != nil {
			return sent, fmt.Errorf("tag %d: %w", sent, err)
		}
		if sent == 0 {
			base = tag.Timestamp
		}

		if realtime && tag.Timestamp > base {
			due := start.Add(time.Duration(tag.Timestamp-base) * time.Millisecond)
			if err := sleepUntil(ctx, due); err != nil {
				return sent, err
			}
		} else if err := ctx.Err(); err != nil {
			return sent, err
		}

		p.PublishStreamData(streamID, &rtmp.StreamData{Kind: tag.Type, Timestamp: tag.Timestamp, Body: tag.Data})
		sent++
	}
}

func sleepUntil(ctx context.Context, due time.Time) error {
	d := time.Until(due)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
