package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/onyxvoice/onyx-core/core/audio"
)

// playbackDevice feeds a malgo playback device from a byte queue. The device
// pulls one period at a time through the data callback; ClearBuffer drops
// whatever has not reached the device yet, which is what makes interruption
// cut playback short.
type playbackDevice struct {
	device *malgo.Device

	// mu guards the queue and the marks riding on it.
	mu     sync.Mutex
	queue  []byte
	marks  []queuedMark
	lifeMu sync.Mutex
}

// queuedMark is a position in the queue whose notify fires once every byte
// before it has been handed to the device.
type queuedMark struct {
	label  string
	offset int
	notify func(string)
}

func (d *playbackDevice) open(audioContext *malgo.AllocatedContext) error {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()

	format := malgo.FormatS16
	sampleRate := uint32(audio.DefaultSampleRate)
	frameSize := malgo.SampleSizeInBytes(format)

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = sampleRate
	config.Playback.Format = format
	config.Playback.Channels = 1
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = sampleRate / 10
	config.Periods = 4

	device, err := malgo.InitDevice(audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frameCount uint32) {
			d.fill(output, int(frameCount)*frameSize)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	d.device = device
	return nil
}

func (d *playbackDevice) start() error {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()
	if d.device == nil {
		return fmt.Errorf("playback device not initialized")
	}

	if err := d.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	return nil
}

func (d *playbackDevice) stop() error {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()
	if d.device == nil {
		return fmt.Errorf("playback device not initialized")
	}

	if err := d.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop playback device: %w", err)
	}

	d.clear()
	return nil
}

func (d *playbackDevice) uninit() error {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()
	if d.device == nil {
		return fmt.Errorf("playback device not initialized")
	}

	d.device.Uninit()
	d.device = nil
	return nil
}

func (d *playbackDevice) enqueue(chunk []byte) error {
	if d.device == nil {
		return fmt.Errorf("playback device not initialized")
	}
	if !d.device.IsStarted() {
		return fmt.Errorf("playback device not started")
	}

	d.mu.Lock()
	d.queue = append(d.queue, chunk...)
	d.mu.Unlock()
	return nil
}

func (d *playbackDevice) clear() {
	d.mu.Lock()
	d.queue = nil
	d.marks = nil
	d.mu.Unlock()
}

func (d *playbackDevice) mark(label string, notify func(string)) {
	d.mu.Lock()
	d.marks = append(d.marks, queuedMark{label: label, offset: len(d.queue), notify: notify})
	d.mu.Unlock()
}

// awaitDrained blocks until everything queued so far has been handed to the
// device.
func (d *playbackDevice) awaitDrained() error {
	drained := make(chan struct{})
	d.mark("", func(string) { close(drained) })
	<-drained
	return nil
}

// fill runs on the device thread. It copies up to need bytes into output;
// the device zero-fills whatever is left of the period.
func (d *playbackDevice) fill(output []byte, need int) {
	d.mu.Lock()

	n := copy(output, d.queue)
	if n == len(d.queue) {
		d.queue = nil
	} else {
		d.queue = d.queue[n:]
	}

	var passed []queuedMark
	kept := d.marks[:0]
	for _, mark := range d.marks {
		if mark.offset > need {
			mark.offset -= need
			kept = append(kept, mark)
		} else {
			passed = append(passed, mark)
		}
	}
	d.marks = kept
	d.mu.Unlock()

	if len(passed) > 0 {
		go func() {
			for _, mark := range passed {
				mark.notify(mark.label)
			}
		}()
	}
}
