package events

const (
	// KindChatMessage identifies a text message typed by the user.
	KindChatMessage Kind = "user_input.chat_message"
	// KindUserSpeechStarted identifies the start of user speech activity.
	KindUserSpeechStarted Kind = "user_input.speech_started"
	// KindUserTranscriptFinal identifies the final transcript for an
	// utterance.
	KindUserTranscriptFinal Kind = "user_input.transcript_final"
)

// ChatMessage carries a text message the user sent over a chat channel.
type ChatMessage struct {
	Base
	Text   string
	Sender string
}

func NewChatMessage(text, sender string) ChatMessage {
	return ChatMessage{Base: NewBase(KindChatMessage), Text: text, Sender: sender}
}

// UserSpeechStarted marks when user speech activity starts. The orchestrator
// treats it as an interruption signal while a response is playing.
type UserSpeechStarted struct{ Base }

func NewUserSpeechStarted() UserSpeechStarted {
	return UserSpeechStarted{Base: NewBase(KindUserSpeechStarted)}
}

// UserTranscriptFinal carries the final transcript for a spoken utterance.
type UserTranscriptFinal struct {
	Base
	Transcript string
}

func NewUserTranscriptFinal(transcript string) UserTranscriptFinal {
	return UserTranscriptFinal{Base: NewBase(KindUserTranscriptFinal), Transcript: transcript}
}
