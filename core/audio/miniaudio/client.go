// Package miniaudio provides local playback and capture devices. It is the
// default audio backend when running against the machine's own speakers and
// microphone.
package miniaudio

import (
	"context"
	"fmt"

	"github.com/gen2brain/malgo"
	"github.com/onyxvoice/onyx-core/core/audio"
)

// Client bundles a playback and a capture device over one malgo context. It
// satisfies both the audio input and audio output contracts of the
// orchestration package.
type Client struct {
	// audioContext is held only so Close can uninitialize it.
	audioContext *malgo.AllocatedContext

	playback playbackDevice
	capture  captureDevice
}

func NewClient() (*Client, error) {
	audioContext, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	client := &Client{audioContext: audioContext}

	if err := client.playback.open(audioContext); err != nil {
		client.Close()
		return nil, err
	}
	if err := client.playback.start(); err != nil {
		client.Close()
		return nil, err
	}
	if err := client.capture.open(audioContext); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}

// Stream starts delivering microphone audio to onAudio. It returns once the
// device is running; capture continues until StopCapture or Close.
func (c *Client) Stream(_ context.Context, onAudio func(audio []byte)) error {
	return c.capture.start(onAudio)
}

func (c *Client) StopCapture() error {
	return c.capture.stop()
}

func (c *Client) StartPlayback(_ context.Context) error {
	return c.playback.start()
}

func (c *Client) StopPlayback() error {
	return c.playback.stop()
}

// SendAudio queues a chunk for playback.
func (c *Client) SendAudio(audio []byte) error {
	return c.playback.enqueue(audio)
}

// ClearBuffer drops all queued playback audio.
func (c *Client) ClearBuffer() {
	c.playback.clear()
}

// AwaitMark blocks until everything queued so far has been played out.
func (c *Client) AwaitMark() error {
	return c.playback.awaitDrained()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

func (c *Client) Close() {
	_ = c.capture.uninit()
	_ = c.playback.uninit()
	_ = c.audioContext.Uninit()
	c.audioContext.Free()
}
