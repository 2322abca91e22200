package synthesis

// SpeechGenerator turns a stream of text into a stream of audio delivered
// through the Options callbacks.
type SpeechGenerator interface {
	// SendText sends text to the generator. Speech is guaranteed to be
	// generated in the order text is sent.
	//
	// SendText will error if EndOfText, Cancel or Close has been called.
	SendText(string) error
	// Mark marks the current point in the text. The mark callback fires only
	// after the text sent up to the mark has been generated, though not
	// necessarily at that exact point.
	//
	// Mark will error if EndOfText, Cancel or Close has been called.
	Mark() error
	// EndOfText signals that no more text will be sent. The generator closes
	// itself once all remaining speech has been generated.
	//
	// EndOfText will error if Cancel or Close has been called.
	// Repeated calls are ignored.
	EndOfText() error
	// Cancel immediately stops further speech generation and closes the
	// generator.
	//
	// Cancel will error if Close has been called.
	// Repeated calls are ignored.
	Cancel() error
	// Close immediately closes the generator. No more speech is produced
	// after this call.
	//
	// Repeated calls are ignored.
	Close() error
}
