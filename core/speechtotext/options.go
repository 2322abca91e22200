// Package speechtotext defines the transcription options shared by the
// provider packages that implement live speech recognition.
package speechtotext

import "github.com/onyxvoice/onyx-core/core/audio"

type TranscriptionOptions struct {
	// PartialInterimTranscriptionCallback is called with the mutable interim
	// tail of the current utterance.
	PartialInterimTranscriptionCallback func(transcript string)
	// InterimTranscriptionCallback is called with the full interim
	// transcript of the current utterance.
	InterimTranscriptionCallback func(transcript string)
	// PartialTranscriptionCallback is called with each finalized transcript
	// segment.
	PartialTranscriptionCallback func(transcript string)
	// TranscriptionCallback is called with the full transcript once the
	// utterance ends.
	TranscriptionCallback func(transcript string)

	SpeechStartedCallback func()
	SpeechEndedCallback   func()

	EncodingInfo audio.EncodingInfo
}

type TranscriptionOption func(*TranscriptionOptions)

func WithTranscriptionCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.TranscriptionCallback = callback
	}
}

func WithPartialTranscriptionCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.PartialTranscriptionCallback = callback
	}
}

func WithSpeechStartedCallback(callback func()) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.SpeechStartedCallback = callback
	}
}

func WithSpeechEndedCallback(callback func()) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.SpeechEndedCallback = callback
	}
}

func WithPartialInterimTranscriptionCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.PartialInterimTranscriptionCallback = callback
	}
}

func WithInterimTranscriptionCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.InterimTranscriptionCallback = callback
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		if encodingInfo.IsZero() {
			return
		}

		o.EncodingInfo = encodingInfo
	}
}
