// Package synthesis defines the speech generator contract the orchestration
// layer speaks through, plus shared options for the provider packages that
// implement it.
package synthesis

import "github.com/onyxvoice/onyx-core/core/audio"

type Options struct {
	// SpeechAudioCallback is called for each chunk of synthesized audio.
	SpeechAudioCallback func(audio []byte)
	// SpeechMarkCallback is called once speech has been generated up to a
	// mark, with the text covered since the previous mark.
	SpeechMarkCallback func(string)
	// SpeechEndedCallback is called when all requested speech has been
	// generated.
	SpeechEndedCallback func()
	// ErrorCallback is called when the synthesizer encounters an error, this
	// usually means the generator has been cancelled.
	ErrorCallback func(error)

	EncodingInfo audio.EncodingInfo
}

type Option func(*Options)

func WithSpeechAudioCallback(callback func([]byte)) Option {
	return func(o *Options) { o.SpeechAudioCallback = callback }
}

func WithSpeechMarkCallback(callback func(string)) Option {
	return func(o *Options) { o.SpeechMarkCallback = callback }
}

func WithSpeechEndedCallback(callback func()) Option {
	return func(o *Options) { o.SpeechEndedCallback = callback }
}

func WithErrorCallback(callback func(error)) Option {
	return func(o *Options) { o.ErrorCallback = callback }
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) Option {
	return func(o *Options) {
		if encodingInfo.IsZero() {
			return
		}

		o.EncodingInfo = encodingInfo
	}
}

// ApplyDefaults fills in no-op callbacks and the default encoding so
// implementations never have to nil-check.
func (o *Options) ApplyDefaults() {
	if o.SpeechAudioCallback == nil {
		o.SpeechAudioCallback = func([]byte) {}
	}
	if o.SpeechMarkCallback == nil {
		o.SpeechMarkCallback = func(string) {}
	}
	if o.SpeechEndedCallback == nil {
		o.SpeechEndedCallback = func() {}
	}
	if o.ErrorCallback == nil {
		o.ErrorCallback = func(error) {}
	}
	if o.EncodingInfo.IsZero() {
		o.EncodingInfo = audio.GetDefaultEncodingInfo()
	}
}
