package transcribe

import (
	"context"
	"log"
	"strings"
	"sync"
)

// Live wraps a Recognizer with the behavior a call session needs:
//
//   - Audio written before the backend reports opened is queued in
//     arrival order (unbounded) and flushed, in order, the moment the
//     connection opens.
//   - Finalized segments accumulate into a pending utterance; the
//     combined text goes out as a single speech-final result when the
//     backend signals end of utterance. Interim results and empty
//     finals never surface.
//   - Errors pass through untouched; reconnecting is the caller's
//     decision, not Live's.
//
// One Live serves one call session.
type Live struct {
	rec    Recognizer
	events chan Event

	mu     sync.Mutex
	opened bool
	closed bool
	queue  [][]byte

	pending     []string
	pendingConf float32
}

// NewLive wraps a recognizer for use by a call session.
func NewLive(rec Recognizer) *Live {
	return &Live{
		rec:    rec,
		events: make(chan Event, 32),
	}
}

// Open connects the backend in the background. Progress arrives on
// Events: EventOpened once the stream is ready (queued audio is flushed
// first), EventError if the connection cannot be established.
func (l *Live) Open(ctx context.Context) {
	go func() {
		if err := l.rec.Start(ctx); err != nil {
			log.Printf("[Live] Failed to open transcription stream: %v", err)
			l.forward(ctx, Event{Type: EventError, Err: err})
			l.forward(ctx, Event{Type: EventClosed})
			close(l.events)
			return
		}
		l.pump(ctx)
	}()
}

// pump relays recognizer events, assembling utterances along the way.
func (l *Live) pump(ctx context.Context) {
	sawClosed := false
	for ev := range l.rec.Events() {
		switch ev.Type {
		case EventOpened:
			l.flushQueue()
			l.forward(ctx, ev)

		case EventResult:
			if utterance, ok := l.collect(ev.Result); ok {
				l.forward(ctx, Event{Type: EventResult, Result: utterance})
			}

		case EventError:
			l.forward(ctx, ev)

		case EventClosed:
			sawClosed = true
			l.forward(ctx, ev)
		}
	}
	if !sawClosed {
		l.forward(ctx, Event{Type: EventClosed})
	}
	close(l.events)
}

// collect folds a recognizer result into the pending utterance. It
// returns the combined utterance when the backend marked the end of
// speech and there is text to deliver.
func (l *Live) collect(r *Result) (*Result, bool) {
	if r == nil {
		return nil, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if text := strings.TrimSpace(r.Text); r.IsFinal && text != "" {
		l.pending = append(l.pending, text)
		l.pendingConf = r.Confidence
	}

	if !r.SpeechFinal || len(l.pending) == 0 {
		return nil, false
	}

	combined := strings.Join(l.pending, " ")
	confidence := l.pendingConf
	l.pending = nil

	return &Result{
		Text:        combined,
		IsFinal:     true,
		SpeechFinal: true,
		Confidence:  confidence,
	}, true
}

// flushQueue hands queued audio to the recognizer in arrival order.
func (l *Live) flushQueue() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, chunk := range l.queue {
		if err := l.rec.WriteAudio(chunk); err != nil {
			log.Printf("[Live] Failed to flush queued audio: %v", err)
			break
		}
	}
	if n := len(l.queue); n > 0 {
		log.Printf("[Live] Flushed %d queued audio chunks", n)
	}
	l.queue = nil
	l.opened = true
}

// WriteAudio forwards a µ-law chunk to the backend, queueing it while
// the connection is still opening. Callers may reuse the chunk buffer.
func (l *Live) WriteAudio(chunk []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return &Error{
			Code:    ErrCodeClosed,
			Message: "transcription stream is closed",
		}
	}
	if !l.opened {
		queued := make([]byte, len(chunk))
		copy(queued, chunk)
		l.queue = append(l.queue, queued)
		return nil
	}
	return l.rec.WriteAudio(chunk)
}

// Events returns the session-facing event stream. The channel closes
// after the underlying recognizer shuts down.
func (l *Live) Events() <-chan Event {
	return l.events
}

// Close drops any queued audio and closes the underlying stream. Safe
// to call more than once.
func (l *Live) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.queue = nil
	l.pending = nil
	l.mu.Unlock()

	return l.rec.Close()
}

// forward delivers an event to the session, giving up when the session
// context ends so a departed consumer cannot wedge the pump.
func (l *Live) forward(ctx context.Context, ev Event) {
	select {
	case l.events <- ev:
	case <-ctx.Done():
	}
}
