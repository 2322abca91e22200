package orchestration

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/onyxvoice/onyx-core/core/vision"
)

func TestFrameReaderCachesLatestFrameAndReacquiresTracks(t *testing.T) {
	source := newStubVideoSource()
	defer close(source.done)

	o := NewOrchestrator(
		WithVideoSource(source),
		WithTrackAwaitTimeout(50*time.Millisecond),
	)
	defer o.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Orchestrate(ctx)

	if _, ok := o.LatestFrame(); ok {
		t.Fatal("expected an empty cache before any frame arrives")
	}

	first := newStubVideoTrack("TR_1")
	source.tracks <- first
	first.frames <- vision.Frame{Data: []byte{0x01}, TrackID: "TR_1"}
	first.frames <- vision.Frame{Data: []byte{0x02}, TrackID: "TR_1"}

	waitForCondition(t, 2*time.Second, "latest frame from the first track", func() bool {
		frame, ok := o.LatestFrame()
		return ok && len(frame.Data) == 1 && frame.Data[0] == 0x02
	})

	close(first.frames)

	second := newStubVideoTrack("TR_2")
	source.tracks <- second
	second.frames <- vision.Frame{Data: []byte{0x03}, TrackID: "TR_2"}

	waitForCondition(t, 2*time.Second, "latest frame from the second track", func() bool {
		frame, ok := o.LatestFrame()
		return ok && frame.TrackID == "TR_2"
	})
}

func TestFrameReaderRetriesAfterAwaitTimeout(t *testing.T) {
	source := newStubVideoSource()
	defer close(source.done)

	o := NewOrchestrator(
		WithVideoSource(source),
		WithTrackAwaitTimeout(20*time.Millisecond),
	)
	defer o.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Orchestrate(ctx)

	// Let several await timeouts pass before publishing a track.
	time.Sleep(70 * time.Millisecond)

	track := newStubVideoTrack("TR_LATE")
	source.tracks <- track
	track.frames <- vision.Frame{Data: []byte{0xaa}, TrackID: "TR_LATE"}

	waitForCondition(t, 2*time.Second, "frame from the late track", func() bool {
		frame, ok := o.LatestFrame()
		return ok && frame.TrackID == "TR_LATE"
	})
}

type stubVideoSource struct {
	tracks chan VideoTrack
	done   chan struct{}
}

func newStubVideoSource() *stubVideoSource {
	return &stubVideoSource{
		tracks: make(chan VideoTrack, 2),
		done:   make(chan struct{}),
	}
}

func (s *stubVideoSource) AwaitVideoTrack(ctx context.Context) (VideoTrack, error) {
	select {
	case track := <-s.tracks:
		return track, nil
	case <-s.done:
		return nil, errors.New("source closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *stubVideoSource) Done() <-chan struct{} { return s.done }

type stubVideoTrack struct {
	id     string
	frames chan vision.Frame
}

func newStubVideoTrack(id string) *stubVideoTrack {
	return &stubVideoTrack{id: id, frames: make(chan vision.Frame, 4)}
}

func (t *stubVideoTrack) ID() string { return t.id }

func (t *stubVideoTrack) NextFrame(ctx context.Context) (vision.Frame, error) {
	select {
	case frame, ok := <-t.frames:
		if !ok {
			return vision.Frame{}, io.EOF
		}
		return frame, nil
	case <-ctx.Done():
		return vision.Frame{}, ctx.Err()
	}
}
