package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/onyxvoice/onyx-core/core/audio"
)

// captureDevice delivers microphone audio to a single listener. Chunks are
// handed over on the device thread, so the listener must not block.
type captureDevice struct {
	device *malgo.Device

	onAudio func(chunk []byte)

	lifeMu sync.Mutex
}

func (d *captureDevice) open(audioContext *malgo.AllocatedContext) error {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()

	format := malgo.FormatS16
	frameSize := malgo.SampleSizeInBytes(format)

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.SampleRate = uint32(audio.DefaultSampleRate)
	config.Capture.Format = format
	config.Capture.Channels = 1
	config.Alsa.NoMMap = 1
	config.PerformanceProfile = malgo.LowLatency
	// 30ms periods keep transcription latency low.
	config.PeriodSizeInFrames = 480
	config.Periods = 3

	device, err := malgo.InitDevice(audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			n := int(frameCount) * frameSize
			if n == 0 || len(input) < n {
				return
			}
			if listener := d.onAudio; listener != nil {
				listener(input[:n])
			}
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	d.device = device
	return nil
}

func (d *captureDevice) start(onAudio func(chunk []byte)) error {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()
	if d.device == nil {
		return fmt.Errorf("capture device not initialized")
	}
	if d.device.IsStarted() {
		return nil
	}

	d.onAudio = onAudio
	if err := d.device.Start(); err != nil {
		d.onAudio = nil
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	return nil
}

func (d *captureDevice) stop() error {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()
	if d.device == nil {
		return fmt.Errorf("capture device not initialized")
	}
	if !d.device.IsStarted() {
		return nil
	}

	if err := d.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}

	d.onAudio = nil
	return nil
}

func (d *captureDevice) uninit() error {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()

	if d.device != nil {
		d.device.Uninit()
		d.device = nil
	}
	d.onAudio = nil
	return nil
}
