package synthesis

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// SentenceSpeaker is a request/response synthesizer that renders one piece
// of text at a time, as opposed to a natively streaming one.
type SentenceSpeaker interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// sentenceEnd matches sentence-ending punctuation, optionally followed by
// closing quotes or brackets.
var sentenceEnd = regexp.MustCompile(`[.!?]+["')\]]?(\s+|$)`)

// SplitSentences splits text into complete sentences and the trailing
// fragment that is still waiting for its punctuation.
func SplitSentences(text string) (sentences []string, rest string) {
	for {
		loc := sentenceEnd.FindStringIndex(text)
		if loc == nil {
			return sentences, text
		}

		if sentence := strings.TrimSpace(text[:loc[1]]); sentence != "" {
			sentences = append(sentences, sentence)
		}
		text = text[loc[1]:]
	}
}

// SentenceSynthesizer opens SentenceGenerators over a SentenceSpeaker, for
// callers that expect a generator factory rather than a single generator.
type SentenceSynthesizer struct {
	speaker SentenceSpeaker
}

func NewSentenceSynthesizer(speaker SentenceSpeaker) *SentenceSynthesizer {
	return &SentenceSynthesizer{speaker: speaker}
}

func (s *SentenceSynthesizer) NewSpeechGenerator(ctx context.Context, opts ...Option) (SpeechGenerator, error) {
	return NewSentenceGenerator(ctx, s.speaker, opts...), nil
}

type sentenceJob struct {
	text string

	isMark  bool
	covered string

	isEnd bool
}

// SentenceGenerator adapts a SentenceSpeaker into a SpeechGenerator. Text is
// buffered until a sentence boundary, then synthesized sentence by sentence
// on a single worker goroutine so audio comes out in order.
type SentenceGenerator struct {
	speaker SentenceSpeaker
	options Options

	jobs chan sentenceJob
	quit chan struct{}

	mu        sync.Mutex
	closeOnce sync.Once
	pending   string
	covered   string

	textComplete bool
	cancelled    bool
	closed       bool

	cancelSynthesis context.CancelFunc
}

// NewSentenceGenerator wraps speaker into a speech generator. The generator
// is live until EndOfText finishes, Cancel, or Close.
func NewSentenceGenerator(ctx context.Context, speaker SentenceSpeaker, opts ...Option) *SentenceGenerator {
	generator := &SentenceGenerator{
		speaker: speaker,
		jobs:    make(chan sentenceJob, 64),
		quit:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(&generator.options)
	}
	generator.options.ApplyDefaults()

	ctx, generator.cancelSynthesis = context.WithCancel(ctx)
	go generator.synthesizeQueued(ctx)

	return generator
}

func (g *SentenceGenerator) synthesizeQueued(ctx context.Context) {
	for {
		select {
		case <-g.quit:
			return
		case job := <-g.jobs:
			switch {
			case job.isEnd:
				g.options.SpeechEndedCallback()
				_ = g.Close()
				return

			case job.isMark:
				g.options.SpeechMarkCallback(job.covered)

			default:
				audio, err := g.speaker.Synthesize(ctx, job.text)
				if err != nil {
					g.options.ErrorCallback(fmt.Errorf("failed to synthesize speech: %w", err))
					continue
				}
				if len(audio) > 0 {
					g.options.SpeechAudioCallback(audio)
				}
			}
		}
	}
}

// enqueue hands a job to the worker. It must be called without g.mu held;
// blocking on a full queue under the lock would stall Cancel.
func (g *SentenceGenerator) enqueue(jobs ...sentenceJob) {
	for _, job := range jobs {
		select {
		case g.jobs <- job:
		case <-g.quit:
			return
		}
	}
}

func (g *SentenceGenerator) SendText(text string) error {
	g.mu.Lock()

	if g.closed {
		g.mu.Unlock()
		return fmt.Errorf("speech generator closed")
	} else if g.cancelled {
		g.mu.Unlock()
		return fmt.Errorf("speech generator cancelled")
	} else if g.textComplete {
		g.mu.Unlock()
		return fmt.Errorf("speech generator text already completed")
	}

	g.pending += text
	g.covered += text

	sentences, rest := SplitSentences(g.pending)
	g.pending = rest
	g.mu.Unlock()

	jobs := make([]sentenceJob, 0, len(sentences))
	for _, sentence := range sentences {
		jobs = append(jobs, sentenceJob{text: sentence})
	}
	g.enqueue(jobs...)
	return nil
}

func (g *SentenceGenerator) Mark() error {
	g.mu.Lock()

	if g.closed {
		g.mu.Unlock()
		return fmt.Errorf("speech generator closed")
	} else if g.cancelled {
		g.mu.Unlock()
		return fmt.Errorf("speech generator cancelled")
	} else if g.textComplete {
		g.mu.Unlock()
		return fmt.Errorf("speech generator text already completed")
	}

	jobs := g.takePendingLocked()
	jobs = append(jobs, sentenceJob{isMark: true, covered: g.covered})
	g.covered = ""
	g.mu.Unlock()

	g.enqueue(jobs...)
	return nil
}

func (g *SentenceGenerator) EndOfText() error {
	g.mu.Lock()

	if g.closed {
		g.mu.Unlock()
		return fmt.Errorf("speech generator closed")
	} else if g.cancelled {
		g.mu.Unlock()
		return fmt.Errorf("speech generator cancelled")
	} else if g.textComplete {
		g.mu.Unlock()
		return nil
	}

	g.textComplete = true
	jobs := append(g.takePendingLocked(), sentenceJob{isEnd: true})
	g.mu.Unlock()

	g.enqueue(jobs...)
	return nil
}

// takePendingLocked drains the trailing fragment into a synthesis job even
// without closing punctuation. Callers must hold g.mu.
func (g *SentenceGenerator) takePendingLocked() []sentenceJob {
	fragment := strings.TrimSpace(g.pending)
	g.pending = ""
	if fragment == "" {
		return nil
	}
	return []sentenceJob{{text: fragment}}
}

func (g *SentenceGenerator) Cancel() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return fmt.Errorf("speech generator closed")
	}
	g.cancelled = true
	g.mu.Unlock()

	return g.Close()
}

func (g *SentenceGenerator) Close() error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	g.closeOnce.Do(func() {
		g.cancelSynthesis()
		close(g.quit)
	})
	return nil
}
