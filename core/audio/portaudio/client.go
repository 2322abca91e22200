// Package portaudio is an alternative local audio backend built on the
// PortAudio bindings. It uses a single full-duplex stream, so capture and
// playback share a buffer size.
package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/gordonklaus/portaudio"
	"github.com/onyxvoice/onyx-core/core/audio"
)

type Client struct {
	stream *portaudio.Stream

	// queued holds playback bytes that do not yet fill a whole period.
	queued    []byte
	chunkSize int

	in  []int16
	out []int16
}

func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	in := make([]int16, bufferSize)
	out := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 1, audio.DefaultSampleRate, bufferSize, in, out)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open portaudio stream: %w", err)
	}

	return &Client{
		stream:    stream,
		chunkSize: bufferSize * 2,
		in:        in,
		out:       out,
	}, nil
}

// Stream reads microphone audio until ctx ends, delivering each period to
// onAudio as little-endian 16-bit samples.
func (c *Client) Stream(ctx context.Context, onAudio func(audio []byte)) error {
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("failed to start portaudio stream: %w", err)
	}

	for ctx.Err() == nil {
		if err := c.stream.Read(); err != nil {
			logger.ErrorContext(ctx, "Failed to read from portaudio stream", "error", err)
		}

		buf := bytes.Buffer{}
		binary.Write(&buf, binary.LittleEndian, c.in)
		onAudio(buf.Bytes())
	}
	return nil
}

func (c *Client) Close() {
	c.stream.Close()
	portaudio.Terminate()
}

// SendAudio plays whole periods immediately and keeps the remainder queued
// until enough bytes arrive to fill the next one.
func (c *Client) SendAudio(chunk []byte) error {
	pending := append(c.queued, chunk...)

	for len(pending) >= c.chunkSize {
		c.playChunk(pending[:c.chunkSize])
		pending = pending[c.chunkSize:]
	}

	c.queued = append([]byte(nil), pending...)
	return nil
}

func (c *Client) ClearBuffer() {
	c.queued = nil
}

// AwaitMark drains whatever audio is still queued, padding the final partial
// chunk with silence.
func (c *Client) AwaitMark() error {
	pending := c.queued
	c.queued = nil

	for len(pending) > 0 {
		chunk := pending
		if len(chunk) > c.chunkSize {
			chunk = chunk[:c.chunkSize]
		}
		pending = pending[len(chunk):]

		if len(chunk) < c.chunkSize {
			chunk = append(chunk, make([]byte, c.chunkSize-len(chunk))...)
		}
		c.playChunk(chunk)
	}
	return nil
}

func (c *Client) playChunk(chunk []byte) {
	binary.Read(bytes.NewReader(chunk), binary.LittleEndian, c.out)
	c.stream.Write()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}
