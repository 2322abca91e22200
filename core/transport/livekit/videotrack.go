package livekit

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/onyxvoice/onyx-core/core/vision"
	"github.com/pion/webrtc/v4"
)

const trackReadDeadline = 5 * time.Second

// VideoTrack reads encoded video frames off a subscribed remote track.
type VideoTrack struct {
	track       *webrtc.TrackRemote
	participant string

	assembler frameAssembler
}

func newVideoTrack(track *webrtc.TrackRemote, participant string) *VideoTrack {
	return &VideoTrack{
		track:       track,
		participant: participant,
		assembler: frameAssembler{
			mimeType: track.Codec().MimeType,
			trackID:  track.ID(),
		},
	}
}

func (t *VideoTrack) ID() string {
	return t.track.ID()
}

func (t *VideoTrack) Participant() string {
	return t.participant
}

// NextFrame blocks until a full frame has been assembled from the track's
// RTP packets. It returns an error once the track closes; read deadlines are
// used internally so a stalled track stays cancellable.
func (t *VideoTrack) NextFrame(ctx context.Context) (vision.Frame, error) {
	for {
		select {
		case <-ctx.Done():
			return vision.Frame{}, ctx.Err()
		default:
		}

		if err := t.track.SetReadDeadline(time.Now().Add(trackReadDeadline)); err != nil {
			return vision.Frame{}, fmt.Errorf("failed to set track read deadline: %w", err)
		}

		packet, _, err := t.track.ReadRTP()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			return vision.Frame{}, fmt.Errorf("failed to read track packet: %w", err)
		}
		if packet == nil || len(packet.Payload) == 0 {
			continue
		}

		if frame, ok := t.assembler.add(packet.Payload, packet.Marker); ok {
			return frame, nil
		}
	}
}
