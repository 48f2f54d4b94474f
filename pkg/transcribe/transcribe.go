// Package transcribe provides streaming speech recognition for telephony
// audio. It abstracts different recognition backends (Deepgram, Azure
// Speech) behind a single Recognizer interface and layers utterance
// assembly on top via Live.
package transcribe

import (
	"context"
)

// Result represents one recognition hypothesis from the backend.
type Result struct {
	// Text is the recognized text
	Text string

	// IsFinal indicates the hypothesis will not be revised again
	IsFinal bool

	// SpeechFinal indicates the backend detected the end of speech
	// (endpointing); finals without it may be mid-utterance segments
	SpeechFinal bool

	// Confidence score (0.0-1.0) if available, otherwise -1
	Confidence float32
}

// EventType identifies what a stream event carries.
type EventType int

const (
	// EventOpened signals the backend connection is ready for audio.
	EventOpened EventType = iota
	// EventResult carries a recognition Result.
	EventResult
	// EventError carries a backend or transport error.
	EventError
	// EventClosed signals the stream has shut down.
	EventClosed
)

// Event is delivered on a Recognizer's event channel.
type Event struct {
	Type   EventType
	Result *Result // set when Type is EventResult
	Err    error   // set when Type is EventError
}

// Recognizer is a single streaming recognition session over µ-law 8 kHz
// mono audio. Implementations deliver events on the Events channel and
// close it when the session ends. Callers must not WriteAudio after
// Close.
type Recognizer interface {
	// Start connects to the backend. It blocks until the connection is
	// established (or retries are exhausted) and emits EventOpened.
	Start(ctx context.Context) error

	// WriteAudio sends a chunk of µ-law 8 kHz mono audio.
	WriteAudio(audio []byte) error

	// Events returns the stream of recognition events. The channel is
	// closed when the session ends.
	Events() <-chan Event

	// Close shuts the session down and releases resources. Safe to call
	// more than once.
	Close() error
}

// Error types for recognition operations
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

type ErrorCode int

const (
	ErrCodeUnknown ErrorCode = iota
	ErrCodeInvalidConfig
	ErrCodeInvalidAudio
	ErrCodeAuthenticationFailed
	ErrCodeNetworkError
	ErrCodeProviderError
	ErrCodeClosed
)
