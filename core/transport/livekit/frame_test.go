package livekit

import (
	"bytes"
	"testing"
)

func TestFrameAssemblerAccumulatesUntilMarker(t *testing.T) {
	assembler := frameAssembler{mimeType: "video/VP8", trackID: "TR_1"}

	if _, ok := assembler.add([]byte{0x01, 0x02}, false); ok {
		t.Fatal("expected no frame before the marker packet")
	}
	if _, ok := assembler.add([]byte{0x03}, false); ok {
		t.Fatal("expected no frame before the marker packet")
	}

	frame, ok := assembler.add([]byte{0x04}, true)
	if !ok {
		t.Fatal("expected a frame on the marker packet")
	}
	if !bytes.Equal(frame.Data, []byte{0x01, 0x02, 0x03, 0x04}) {
		t.Errorf("expected accumulated payloads, got %v", frame.Data)
	}
	if frame.MIMEType != "video/VP8" || frame.TrackID != "TR_1" {
		t.Errorf("unexpected frame metadata: %+v", frame)
	}
	if frame.Timestamp.IsZero() {
		t.Error("expected a frame timestamp")
	}
}

func TestFrameAssemblerRestartsAfterFrame(t *testing.T) {
	assembler := frameAssembler{}

	if _, ok := assembler.add([]byte{0xaa}, true); !ok {
		t.Fatal("expected first frame")
	}

	frame, ok := assembler.add([]byte{0xbb}, true)
	if !ok {
		t.Fatal("expected second frame")
	}
	if !bytes.Equal(frame.Data, []byte{0xbb}) {
		t.Errorf("expected a fresh buffer for the second frame, got %v", frame.Data)
	}
}

func TestFrameAssemblerSingleShot(t *testing.T) {
	assembler := frameAssembler{}

	frame, ok := assembler.add([]byte{0x10, 0x20}, true)
	if !ok {
		t.Fatal("expected a frame from a single marker packet")
	}
	if !bytes.Equal(frame.Data, []byte{0x10, 0x20}) {
		t.Errorf("unexpected frame data: %v", frame.Data)
	}
}
