// Deepgram streaming recognition backend.
//
// Implements Recognizer over the Deepgram live-transcription WebSocket
// API. Audio goes out as binary frames; results come back as JSON text
// frames. The connection is kept alive with periodic KeepAlive messages
// and drained with CloseStream on shutdown so trailing transcripts are
// not lost.
//
// Reference: https://developers.deepgram.com/docs/streaming

package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	deepgramListenURL    = "wss://api.deepgram.com/v1/listen"
	deepgramDefaultModel = "nova-2"

	// Connection configuration
	deepgramMaxRetryAttempts  = 3
	deepgramInitialRetryDelay = 1 * time.Second
	deepgramMaxRetryDelay     = 4 * time.Second
	deepgramConnectionTimeout = 10 * time.Second

	// Deepgram drops the socket after ~10s without traffic.
	deepgramKeepAliveInterval = 5 * time.Second

	// Defaults for utterance boundary detection
	deepgramDefaultEndpointing  = 300 * time.Millisecond
	deepgramDefaultUtteranceEnd = 1 * time.Second
)

// DeepgramConfig holds configuration for the Deepgram recognizer.
type DeepgramConfig struct {
	// APIKey is the Deepgram API key (required)
	APIKey string

	// Model to use (default: "nova-2")
	Model string

	// Language code (e.g., "en-US"); empty lets the backend default
	Language string

	// Endpointing is the silence that finalizes an utterance
	// (default: 300ms)
	Endpointing time.Duration

	// UtteranceEnd is the trailing gap after which the backend forces an
	// utterance boundary (default: 1s)
	UtteranceEnd time.Duration

	// BaseURL overrides the WebSocket endpoint (used in tests)
	BaseURL string
}

// DeepgramRecognizer implements Recognizer using the Deepgram live API.
type DeepgramRecognizer struct {
	apiKey       string
	model        string
	language     string
	endpointing  time.Duration
	utteranceEnd time.Duration
	baseURL      string

	conn     *websocket.Conn
	ctx      context.Context
	cancel   context.CancelFunc
	events   chan Event
	sendChan chan []byte
	wg       sync.WaitGroup
	mu       sync.Mutex
	closed   atomic.Bool
	started  atomic.Bool
}

// NewDeepgramRecognizer creates a Deepgram-backed recognizer for µ-law
// 8 kHz mono telephony audio.
func NewDeepgramRecognizer(config DeepgramConfig) (*DeepgramRecognizer, error) {
	if config.APIKey == "" {
		return nil, &Error{
			Code:    ErrCodeInvalidConfig,
			Message: "Deepgram API key is required",
		}
	}

	model := config.Model
	if model == "" {
		model = deepgramDefaultModel
	}
	endpointing := config.Endpointing
	if endpointing == 0 {
		endpointing = deepgramDefaultEndpointing
	}
	utteranceEnd := config.UtteranceEnd
	if utteranceEnd == 0 {
		utteranceEnd = deepgramDefaultUtteranceEnd
	}
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = deepgramListenURL
	}

	return &DeepgramRecognizer{
		apiKey:       config.APIKey,
		model:        model,
		language:     config.Language,
		endpointing:  endpointing,
		utteranceEnd: utteranceEnd,
		baseURL:      baseURL,
		events:       make(chan Event, 32),
		sendChan:     make(chan []byte, 100),
	}, nil
}

// Start establishes the WebSocket connection with retry and starts the
// read and write loops.
func (r *DeepgramRecognizer) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	var lastErr error
	retryDelay := deepgramInitialRetryDelay

	for attempt := 0; attempt < deepgramMaxRetryAttempts; attempt++ {
		if err := r.doConnect(); err != nil {
			lastErr = err
			log.Printf("[Deepgram] Connection attempt %d/%d failed: %v", attempt+1, deepgramMaxRetryAttempts, err)

			if attempt < deepgramMaxRetryAttempts-1 {
				select {
				case <-time.After(retryDelay):
					retryDelay *= 2
					if retryDelay > deepgramMaxRetryDelay {
						retryDelay = deepgramMaxRetryDelay
					}
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			continue
		}

		r.started.Store(true)
		r.emit(Event{Type: EventOpened})
		return nil
	}

	return &Error{
		Code:    ErrCodeNetworkError,
		Message: fmt.Sprintf("failed to connect after %d attempts", deepgramMaxRetryAttempts),
		Err:     lastErr,
	}
}

// doConnect performs the actual WebSocket connection.
func (r *DeepgramRecognizer) doConnect() error {
	params := url.Values{}
	params.Set("model", r.model)
	params.Set("encoding", "mulaw")
	params.Set("sample_rate", strconv.Itoa(8000))
	params.Set("channels", "1")
	params.Set("punctuate", "true")
	// utterance_end_ms requires interim results on the stream
	params.Set("interim_results", "true")
	params.Set("endpointing", strconv.FormatInt(r.endpointing.Milliseconds(), 10))
	params.Set("utterance_end_ms", strconv.FormatInt(r.utteranceEnd.Milliseconds(), 10))
	if r.language != "" {
		params.Set("language", r.language)
	}

	wsURL := fmt.Sprintf("%s?%s", r.baseURL, params.Encode())
	log.Printf("[Deepgram] Connecting to %s", wsURL)

	dialer := websocket.Dialer{
		HandshakeTimeout: deepgramConnectionTimeout,
	}
	headers := map[string][]string{
		"Authorization": {"Token " + r.apiKey},
	}

	conn, _, err := dialer.DialContext(r.ctx, wsURL, headers)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
	log.Printf("[Deepgram] WebSocket connected")

	r.wg.Add(2)
	go r.readLoop()
	go r.writeLoop()

	return nil
}

// readLoop handles incoming WebSocket messages.
func (r *DeepgramRecognizer) readLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		_, message, err := r.conn.ReadMessage()
		if err != nil {
			if !r.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[Deepgram] WebSocket read error: %v", err)
				r.emit(Event{Type: EventError, Err: &Error{
					Code:    ErrCodeNetworkError,
					Message: "transcription stream read failed",
					Err:     err,
				}})
			}
			return
		}

		r.handleMessage(message)
	}
}

// writeLoop sends audio frames and periodic keep-alives.
func (r *DeepgramRecognizer) writeLoop() {
	defer r.wg.Done()

	keepAlive := time.NewTicker(deepgramKeepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case audioData, ok := <-r.sendChan:
			if !ok {
				return
			}
			r.writeMessage(websocket.BinaryMessage, audioData)

		case <-keepAlive.C:
			r.writeMessage(websocket.TextMessage, []byte(`{"type":"KeepAlive"}`))
		}
	}
}

// writeMessage serializes writes to the connection.
func (r *DeepgramRecognizer) writeMessage(messageType int, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return
	}
	if err := r.conn.WriteMessage(messageType, data); err != nil && !r.closed.Load() {
		log.Printf("[Deepgram] Failed to send message: %v", err)
	}
}

// Deepgram message types. UtteranceEnd carries "channel" as an array, so
// messages are decoded per type after sniffing the type field.
type deepgramResults struct {
	IsFinal     bool            `json:"is_final"`
	SpeechFinal bool            `json:"speech_final"`
	Channel     deepgramChannel `json:"channel"`
}

type deepgramChannel struct {
	Alternatives []deepgramAlternative `json:"alternatives"`
}

type deepgramAlternative struct {
	Transcript string  `json:"transcript"`
	Confidence float32 `json:"confidence"`
}

type deepgramMetadata struct {
	RequestID string `json:"request_id"`
}

// handleMessage processes incoming WebSocket messages.
func (r *DeepgramRecognizer) handleMessage(data []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		log.Printf("[Deepgram] Failed to parse message: %v", err)
		return
	}

	switch head.Type {
	case "Results":
		var msg deepgramResults
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[Deepgram] Failed to parse results: %v", err)
			return
		}
		if len(msg.Channel.Alternatives) == 0 {
			return
		}
		alt := msg.Channel.Alternatives[0]
		r.emit(Event{Type: EventResult, Result: &Result{
			Text:        alt.Transcript,
			IsFinal:     msg.IsFinal,
			SpeechFinal: msg.SpeechFinal,
			Confidence:  alt.Confidence,
		}})

	case "UtteranceEnd":
		// Trailing silence with no speech_final result; surfaced as an
		// empty speech-final result so consumers flush pending segments.
		r.emit(Event{Type: EventResult, Result: &Result{
			SpeechFinal: true,
			Confidence:  -1,
		}})

	case "Metadata":
		var msg deepgramMetadata
		if err := json.Unmarshal(data, &msg); err == nil && msg.RequestID != "" {
			log.Printf("[Deepgram] Stream metadata, request %s", msg.RequestID)
		}

	case "SpeechStarted":
		// informational only

	default:
		log.Printf("[Deepgram] Unknown message type: %s", head.Type)
	}
}

// emit delivers an event without blocking the read loop.
func (r *DeepgramRecognizer) emit(ev Event) {
	select {
	case r.events <- ev:
	default:
		log.Printf("[Deepgram] Event channel full, dropping event")
	}
}

// WriteAudio sends µ-law audio to the stream.
func (r *DeepgramRecognizer) WriteAudio(audio []byte) error {
	if r.closed.Load() {
		return &Error{
			Code:    ErrCodeClosed,
			Message: "recognizer is closed",
		}
	}
	if !r.started.Load() {
		return &Error{
			Code:    ErrCodeProviderError,
			Message: "recognizer is not started",
		}
	}

	select {
	case r.sendChan <- audio:
		return nil
	case <-r.ctx.Done():
		return r.ctx.Err()
	}
}

// Events returns the stream of recognition events.
func (r *DeepgramRecognizer) Events() <-chan Event {
	return r.events
}

// Close shuts the stream down. CloseStream is sent first so the backend
// flushes any trailing transcript before the socket drops.
func (r *DeepgramRecognizer) Close() error {
	if r.closed.Swap(true) {
		return nil // Already closed
	}

	log.Printf("[Deepgram] Closing recognizer")

	if r.started.Load() {
		r.writeMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
	}

	if r.cancel != nil {
		r.cancel()
	}

	r.mu.Lock()
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
	r.mu.Unlock()

	close(r.sendChan)
	r.wg.Wait()

	r.emit(Event{Type: EventClosed})
	close(r.events)

	log.Printf("[Deepgram] Recognizer closed")
	return nil
}

var _ Recognizer = (*DeepgramRecognizer)(nil)
