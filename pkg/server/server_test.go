package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/frontdesk-ai/frontdesk/pkg/callsession"
	"github.com/frontdesk-ai/frontdesk/pkg/dialog"
	"github.com/frontdesk-ai/frontdesk/pkg/telephony"
	"github.com/frontdesk-ai/frontdesk/pkg/transcribe"
)

type stubDialog struct{}

func (stubDialog) HandleUtterance(ctx context.Context, sessionID, utterance string, caller dialog.Caller) dialog.Result {
	return dialog.Result{Reply: "you said " + utterance}
}

type stubSynth struct{}

func (stubSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return bytes.Repeat([]byte{0x7f}, 160), nil
}

type stubTranscriber struct {
	events chan transcribe.Event

	mu     sync.Mutex
	chunks [][]byte
	closed bool
}

func newStubTranscriber() *stubTranscriber {
	return &stubTranscriber{events: make(chan transcribe.Event, 16)}
}

func (s *stubTranscriber) Open(ctx context.Context) {
	s.events <- transcribe.Event{Type: transcribe.EventOpened}
}

func (s *stubTranscriber) WriteAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, append([]byte(nil), chunk...))
	return nil
}

func (s *stubTranscriber) Events() <-chan transcribe.Event { return s.events }

func (s *stubTranscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubTranscriber) chunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

// transcriberTap hands tests the transcriber built for the current call.
type transcriberTap struct {
	mu   sync.Mutex
	last *stubTranscriber
}

func (tap *transcriberTap) factory() (callsession.Transcriber, error) {
	tap.mu.Lock()
	defer tap.mu.Unlock()
	tap.last = newStubTranscriber()
	return tap.last, nil
}

func (tap *transcriberTap) current() *stubTranscriber {
	tap.mu.Lock()
	defer tap.mu.Unlock()
	return tap.last
}

func testConfig(tap *transcriberTap) Config {
	return Config{
		StreamURL:      "wss://frontdesk.example.com/media",
		Greeting:       "Hello! Thanks for calling.",
		STTProvider:    "stub",
		Dialog:         stubDialog{},
		Synth:          stubSynth{},
		NewTranscriber: tap.factory,
	}
}

func newTestServer(t *testing.T) (*Server, *httptest.Server, *transcriberTap) {
	t.Helper()

	tap := &transcriberTap{}
	s, err := NewServer(testConfig(tap))
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}

	srv := httptest.NewServer(s.routes())
	t.Cleanup(srv.Close)
	return s, srv, tap
}

func dialMedia(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/media"
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial media websocket: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func sendStart(t *testing.T, client *websocket.Conn) {
	t.Helper()

	start := `{
		"event": "start",
		"sequenceNumber": "1",
		"streamSid": "MZtest0000000000000000000000000000",
		"start": {
			"accountSid": "ACtest0000000000000000000000000000",
			"streamSid": "MZtest0000000000000000000000000000",
			"callSid": "CAtest0000000000000000000000000000",
			"tracks": ["inbound"],
			"mediaFormat": {"encoding": "audio/x-mulaw", "sampleRate": 8000, "channels": 1},
			"customParameters": {"number": "+15551234567"}
		}
	}`
	if err := client.WriteMessage(websocket.TextMessage, []byte(start)); err != nil {
		t.Fatalf("failed to send start event: %v", err)
	}
}

func readMessage(t *testing.T, client *websocket.Conn) *telephony.Message {
	t.Helper()

	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg telephony.Message
	if err := client.ReadJSON(&msg); err != nil {
		t.Fatalf("failed to read server message: %v", err)
	}
	return &msg
}

// readTurn consumes one spoken turn: media frames followed by its mark.
func readTurn(t *testing.T, client *websocket.Conn) (frames int, mark string) {
	t.Helper()

	for {
		msg := readMessage(t, client)
		switch msg.Event {
		case telephony.EventMedia:
			frames++
		case telephony.EventMark:
			if msg.Mark == nil || msg.Mark.Name == "" {
				t.Fatal("mark event without a name")
			}
			return frames, msg.Mark.Name
		default:
			t.Fatalf("unexpected event %q during playback", msg.Event)
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewServerValidation(t *testing.T) {
	tap := &transcriberTap{}

	cfg := testConfig(tap)
	cfg.StreamURL = ""
	if _, err := NewServer(cfg); err == nil {
		t.Error("expected error for missing stream URL")
	}

	cfg = testConfig(tap)
	cfg.Dialog = nil
	if _, err := NewServer(cfg); err == nil {
		t.Error("expected error for missing dialog orchestrator")
	}

	cfg = testConfig(tap)
	cfg.Synth = nil
	if _, err := NewServer(cfg); err == nil {
		t.Error("expected error for missing synthesizer")
	}

	cfg = testConfig(tap)
	cfg.NewTranscriber = nil
	if _, err := NewServer(cfg); err == nil {
		t.Error("expected error for missing transcriber factory")
	}

	s, err := NewServer(testConfig(tap))
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	if s.config.Address != ":8080" {
		t.Errorf("expected default address :8080, got %s", s.config.Address)
	}
	if s.config.MediaPath != "/media" || s.config.VoicePath != "/voice" {
		t.Errorf("unexpected default paths: %s %s", s.config.MediaPath, s.config.VoicePath)
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %s", ct)
	}

	body, _ := io.ReadAll(resp.Body)
	var health struct {
		Status         string `json:"status"`
		ActiveSessions int    `json:"activeSessions"`
	}
	if err := json.Unmarshal(body, &health); err != nil {
		t.Fatalf("health body is not JSON: %v", err)
	}
	if health.Status != "ok" || health.ActiveSessions != 0 {
		t.Errorf("unexpected health body: %s", body)
	}
}

func TestVoiceWebhook(t *testing.T) {
	_, srv, _ := newTestServer(t)

	resp, err := http.PostForm(srv.URL+"/voice?number=%2B15551234567", nil)
	if err != nil {
		t.Fatalf("voice request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	doc := string(body)
	if !strings.Contains(doc, `<Stream url="wss://frontdesk.example.com/media">`) {
		t.Errorf("webhook response missing stream element: %s", doc)
	}
	if !strings.Contains(doc, "<Dial>+15551234567</Dial>") {
		t.Errorf("webhook response missing dial element: %s", doc)
	}
}

func TestMediaSessionLifecycle(t *testing.T) {
	s, srv, tap := newTestServer(t)

	client := dialMedia(t, srv)
	sendStart(t, client)

	// Greeting plays as soon as transcription opens: 160 bytes, one frame.
	frames, _ := readTurn(t, client)
	if frames != 1 {
		t.Errorf("expected 1 greeting frame, got %d", frames)
	}
	if n := s.ActiveSessions(); n != 1 {
		t.Errorf("expected 1 active session, got %d", n)
	}

	// Caller audio flows through to the transcriber.
	chunk := base64.StdEncoding.EncodeToString([]byte{0x00, 0x7f, 0xff})
	media := `{"event":"media","streamSid":"MZtest0000000000000000000000000000",` +
		`"media":{"track":"inbound","chunk":"1","timestamp":"100","payload":"` + chunk + `"}}`
	if err := client.WriteMessage(websocket.TextMessage, []byte(media)); err != nil {
		t.Fatalf("failed to send media: %v", err)
	}
	waitFor(t, "audio to reach transcriber", func() bool {
		return tap.current() != nil && tap.current().chunkCount() == 1
	})

	// A finalized utterance produces a spoken reply.
	tap.current().events <- transcribe.Event{
		Type:   transcribe.EventResult,
		Result: &transcribe.Result{Text: "hi there", IsFinal: true, SpeechFinal: true},
	}
	frames, _ = readTurn(t, client)
	if frames != 1 {
		t.Errorf("expected 1 reply frame, got %d", frames)
	}

	// Hanging up ends the session and empties the registry.
	stop := `{"event":"stop","streamSid":"MZtest0000000000000000000000000000","stop":{}}`
	if err := client.WriteMessage(websocket.TextMessage, []byte(stop)); err != nil {
		t.Fatalf("failed to send stop: %v", err)
	}
	waitFor(t, "session removal", func() bool { return s.ActiveSessions() == 0 })
}

func TestStopClosesLiveSessions(t *testing.T) {
	s, srv, _ := newTestServer(t)

	client := dialMedia(t, srv)
	sendStart(t, client)
	readTurn(t, client) // greeting

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	waitFor(t, "session removal", func() bool { return s.ActiveSessions() == 0 })

	// The client side observes the socket closing.
	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg telephony.Message
		if err := client.ReadJSON(&msg); err != nil {
			break
		}
	}
}
