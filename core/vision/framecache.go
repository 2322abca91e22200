// Package vision holds the latest-frame cache that bridges a continuously
// producing video source and the on-demand consumers that attach visual
// context to model requests.
package vision

import (
	"sync/atomic"
	"time"
)

// Frame is a single decoded video frame as delivered by a transport adapter.
//
// Data is an encoded image payload (format described by MIMEType); the cache
// treats it as opaque bytes.
type Frame struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int

	TrackID   string
	Timestamp time.Time
}

// FrameCache is a single-slot holder of the most recent video frame.
//
// It is intentionally lossy: a writer may overwrite frames much faster than
// readers consume them, and readers only ever care about the latest value.
// Set and Get never block and a reader always observes a complete frame.
//
// Safe for one writer and any number of concurrent readers; concurrent
// writers are also safe (last write wins).
type FrameCache struct {
	frame atomic.Pointer[Frame]
}

func NewFrameCache() *FrameCache {
	return &FrameCache{}
}

// Set replaces the held frame. The cache keeps its own pointer to frame, so
// callers must not mutate it after handing it over.
func (c *FrameCache) Set(frame Frame) {
	if c == nil {
		return
	}

	c.frame.Store(&frame)
}

// Get returns the most recently set frame. ok is false if no frame has ever
// been set.
func (c *FrameCache) Get() (frame Frame, ok bool) {
	if c == nil {
		return Frame{}, false
	}

	stored := c.frame.Load()
	if stored == nil {
		return Frame{}, false
	}

	return *stored, true
}

// Clear drops the held frame, returning the cache to its initial empty state.
func (c *FrameCache) Clear() {
	if c == nil {
		return
	}

	c.frame.Store(nil)
}
