package livekit

import (
	"time"

	"github.com/onyxvoice/onyx-core/core/vision"
)

// frameAssembler reconstructs encoded frames from RTP payloads. A frame
// spans every packet up to and including the one with the marker bit set.
type frameAssembler struct {
	mimeType string
	trackID  string

	buffer []byte
}

// add appends a packet payload to the frame under assembly. When marker is
// set the completed frame is returned and assembly restarts.
func (a *frameAssembler) add(payload []byte, marker bool) (vision.Frame, bool) {
	a.buffer = append(a.buffer, payload...)

	if !marker {
		return vision.Frame{}, false
	}

	frame := vision.Frame{
		Data:      a.buffer,
		MIMEType:  a.mimeType,
		TrackID:   a.trackID,
		Timestamp: time.Now(),
	}
	a.buffer = nil
	return frame, true
}
