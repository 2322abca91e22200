package deepgram

import (
	"fmt"

	"github.com/onyxvoice/onyx-core/core/audio"
)

type encodingInfo struct {
	SampleRate int
	Format     encodingFormat
}

type encodingFormat string

func (e encodingFormat) Name() string { return string(e) }

const (
	encodingLinear16 encodingFormat = "linear16"
	encodingALaw     encodingFormat = "alaw"
	encodingMulaw    encodingFormat = "mulaw"
)

// supportedEncodings maps the shared formats onto deepgram's parameter
// names and the sample rates the listen endpoint accepts for each.
var supportedEncodings = map[audio.Format]struct {
	name  encodingFormat
	rates []int
}{
	audio.EncodingLinear16: {encodingLinear16, []int{8000, 16000, 24000, 32000, 48000}},
	audio.EncodingALaw:     {encodingALaw, []int{8000}},
	audio.EncodingMulaw:    {encodingMulaw, []int{8000}},
}

func convertEncoding(encoding audio.EncodingInfo) (*encodingInfo, error) {
	supported, ok := supportedEncodings[encoding.Format]
	if !ok {
		return nil, fmt.Errorf("unsupported encoding %q", encoding.Format.Name())
	}

	for _, rate := range supported.rates {
		if rate == encoding.SampleRate {
			return &encodingInfo{SampleRate: rate, Format: supported.name}, nil
		}
	}
	return nil, fmt.Errorf("unsupported sample rate %d for %s encoding",
		encoding.SampleRate, encoding.Format.Name())
}
