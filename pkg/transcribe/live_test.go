package transcribe

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeRecognizer records written audio and lets tests script events.
type fakeRecognizer struct {
	mu       sync.Mutex
	writes   [][]byte
	events   chan Event
	closed   bool
	startErr error
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{events: make(chan Event, 32)}
}

func (f *fakeRecognizer) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.events <- Event{Type: EventOpened}
	return nil
}

func (f *fakeRecognizer) WriteAudio(audio []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("recognizer closed")
	}
	chunk := make([]byte, len(audio))
	copy(chunk, audio)
	f.writes = append(f.writes, chunk)
	return nil
}

func (f *fakeRecognizer) Events() <-chan Event { return f.events }

func (f *fakeRecognizer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.events)
	return nil
}

func (f *fakeRecognizer) emit(ev Event) { f.events <- ev }

func (f *fakeRecognizer) writtenChunks() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	chunks := make([][]byte, len(f.writes))
	copy(chunks, f.writes)
	return chunks
}

func nextEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("Event channel closed unexpectedly")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for event")
	}
	return Event{}
}

func TestLive_QueuesAudioUntilOpen(t *testing.T) {
	rec := newFakeRecognizer()
	live := NewLive(rec)

	chunks := [][]byte{{0x01}, {0x02, 0x02}, {0x03}}
	for _, c := range chunks {
		if err := live.WriteAudio(c); err != nil {
			t.Fatalf("WriteAudio() before open error: %v", err)
		}
	}
	if got := rec.writtenChunks(); len(got) != 0 {
		t.Fatalf("Audio reached the recognizer before open: %d chunks", len(got))
	}

	live.Open(context.Background())

	ev := nextEvent(t, live.Events())
	if ev.Type != EventOpened {
		t.Fatalf("First event = %v, want EventOpened", ev.Type)
	}

	// Receiving EventOpened means the queue was already flushed.
	got := rec.writtenChunks()
	if len(got) != len(chunks) {
		t.Fatalf("Flushed %d chunks, want %d", len(got), len(chunks))
	}
	for i := range chunks {
		if !bytes.Equal(got[i], chunks[i]) {
			t.Errorf("Chunk %d = %v, want %v (order must be preserved)", i, got[i], chunks[i])
		}
	}

	// After open, audio goes straight through.
	if err := live.WriteAudio([]byte{0x04}); err != nil {
		t.Fatalf("WriteAudio() after open error: %v", err)
	}
	if got := rec.writtenChunks(); len(got) != 4 {
		t.Errorf("Expected 4 chunks after direct write, got %d", len(got))
	}
}

func TestLive_AssemblesUtterance(t *testing.T) {
	rec := newFakeRecognizer()
	live := NewLive(rec)
	live.Open(context.Background())
	nextEvent(t, live.Events()) // opened

	// Interims never surface, finals accumulate, speech-final flushes.
	rec.emit(Event{Type: EventResult, Result: &Result{Text: "my name", Confidence: 0.5}})
	rec.emit(Event{Type: EventResult, Result: &Result{Text: "my name is", IsFinal: true, Confidence: 0.9}})
	rec.emit(Event{Type: EventResult, Result: &Result{Text: "Alex", IsFinal: true, SpeechFinal: true, Confidence: 0.95}})

	ev := nextEvent(t, live.Events())
	if ev.Type != EventResult {
		t.Fatalf("Event type = %v, want EventResult", ev.Type)
	}
	if ev.Result.Text != "my name is Alex" {
		t.Errorf("Utterance = %q, want %q", ev.Result.Text, "my name is Alex")
	}
	if !ev.Result.IsFinal || !ev.Result.SpeechFinal {
		t.Error("Combined utterance should be final and speech-final")
	}
	if ev.Result.Confidence != 0.95 {
		t.Errorf("Confidence = %v, want 0.95", ev.Result.Confidence)
	}
}

func TestLive_FlushesOnUtteranceEnd(t *testing.T) {
	rec := newFakeRecognizer()
	live := NewLive(rec)
	live.Open(context.Background())
	nextEvent(t, live.Events()) // opened

	rec.emit(Event{Type: EventResult, Result: &Result{Text: "see you tomorrow", IsFinal: true, Confidence: 0.8}})
	// Utterance-end timeout arrives as an empty speech-final result.
	rec.emit(Event{Type: EventResult, Result: &Result{SpeechFinal: true, Confidence: -1}})

	ev := nextEvent(t, live.Events())
	if ev.Type != EventResult || ev.Result.Text != "see you tomorrow" {
		t.Fatalf("Expected flushed utterance, got %+v", ev)
	}
	if ev.Result.Confidence != 0.8 {
		t.Errorf("Confidence = %v, want the last final's 0.8", ev.Result.Confidence)
	}
}

func TestLive_SuppressesEmptyUtterances(t *testing.T) {
	rec := newFakeRecognizer()
	live := NewLive(rec)
	live.Open(context.Background())
	nextEvent(t, live.Events()) // opened

	// Nothing pending: utterance-end alone must not surface.
	rec.emit(Event{Type: EventResult, Result: &Result{SpeechFinal: true, Confidence: -1}})
	// Blank finals must not accumulate.
	rec.emit(Event{Type: EventResult, Result: &Result{Text: "   ", IsFinal: true, SpeechFinal: true}})
	// Interim with speech-final unset either.
	rec.emit(Event{Type: EventResult, Result: &Result{Text: "half a tho"}})

	sentinel := errors.New("sentinel")
	rec.emit(Event{Type: EventError, Err: sentinel})

	ev := nextEvent(t, live.Events())
	if ev.Type != EventError {
		t.Fatalf("Expected the sentinel error next, got %+v (an empty utterance leaked)", ev)
	}
	if !errors.Is(ev.Err, sentinel) {
		t.Errorf("Err = %v, want sentinel", ev.Err)
	}
}

func TestLive_CloseTerminatesStream(t *testing.T) {
	rec := newFakeRecognizer()
	live := NewLive(rec)

	if err := live.WriteAudio([]byte{0x01}); err != nil {
		t.Fatalf("WriteAudio() error: %v", err)
	}

	live.Open(context.Background())
	nextEvent(t, live.Events()) // opened

	if err := live.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := live.Close(); err != nil {
		t.Fatalf("Second Close() error: %v", err)
	}

	err := live.WriteAudio([]byte{0x02})
	var terr *Error
	if !errors.As(err, &terr) || terr.Code != ErrCodeClosed {
		t.Errorf("WriteAudio() after close = %v, want ErrCodeClosed", err)
	}

	// The event stream ends with EventClosed, then the channel closes.
	sawClosed := false
	for {
		select {
		case ev, ok := <-live.Events():
			if !ok {
				if !sawClosed {
					t.Error("Channel closed without an EventClosed")
				}
				return
			}
			if ev.Type == EventClosed {
				sawClosed = true
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Timed out waiting for stream to terminate")
		}
	}
}

func TestLive_StartFailureSurfacesError(t *testing.T) {
	rec := newFakeRecognizer()
	rec.startErr = errors.New("dial failed")
	live := NewLive(rec)

	live.Open(context.Background())

	ev := nextEvent(t, live.Events())
	if ev.Type != EventError {
		t.Fatalf("Event type = %v, want EventError", ev.Type)
	}
	if !errors.Is(ev.Err, rec.startErr) {
		t.Errorf("Err = %v, want %v", ev.Err, rec.startErr)
	}

	ev = nextEvent(t, live.Events())
	if ev.Type != EventClosed {
		t.Fatalf("Event type = %v, want EventClosed", ev.Type)
	}
	if _, ok := <-live.Events(); ok {
		t.Error("Event channel should be closed after the failure")
	}
}

func TestLive_ErrorPassthrough(t *testing.T) {
	rec := newFakeRecognizer()
	live := NewLive(rec)
	live.Open(context.Background())
	nextEvent(t, live.Events()) // opened

	backendErr := &Error{Code: ErrCodeNetworkError, Message: "stream reset"}
	rec.emit(Event{Type: EventError, Err: backendErr})

	ev := nextEvent(t, live.Events())
	if ev.Type != EventError {
		t.Fatalf("Event type = %v, want EventError", ev.Type)
	}
	var terr *Error
	if !errors.As(ev.Err, &terr) || terr.Code != ErrCodeNetworkError {
		t.Errorf("Err = %v, want the backend error untouched", ev.Err)
	}
}
