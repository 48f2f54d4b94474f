// Package server exposes the HTTP surface of the receptionist: the voice
// webhook that answers a call with stream instructions, the media websocket
// the provider connects back to, and a health endpoint.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/frontdesk-ai/frontdesk/pkg/callsession"
	"github.com/frontdesk-ai/frontdesk/pkg/telephony"
)

// Config configures the server and supplies the per-call collaborators.
type Config struct {
	// Address is the listen address (default: ":8080").
	Address string

	// StreamURL is the public wss:// URL of the media endpoint, handed to
	// the provider in the webhook response.
	StreamURL string

	// MediaPath is the websocket path (default: "/media").
	MediaPath string

	// VoicePath is the webhook path (default: "/voice").
	VoicePath string

	// ReadBufferSize and WriteBufferSize size the websocket upgrader
	// buffers (default: 1024).
	ReadBufferSize  int
	WriteBufferSize int

	// Greeting overrides the scripted greeting spoken on every call.
	Greeting string

	// STTProvider labels transcription telemetry, e.g. "deepgram".
	STTProvider string

	// Dialog handles caller utterances. Shared across calls.
	Dialog callsession.Responder

	// Synth renders replies to telephony audio. Shared across calls.
	Synth callsession.Speaker

	// NewTranscriber builds one live transcription stream per call.
	NewTranscriber func() (callsession.Transcriber, error)
}

// session tracks one live call for the registry.
type session struct {
	ctrl      *callsession.Controller
	conn      *telephony.StreamConn
	startTime time.Time
}

// Server accepts provider webhooks and media streams and runs one call
// session per websocket.
type Server struct {
	config   Config
	upgrader websocket.Upgrader
	voice    *telephony.VoiceHandler
	server   *http.Server

	sessionsMu sync.RWMutex
	sessions   map[string]*session

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer validates config, applies defaults, and returns a server ready
// to Start.
func NewServer(config Config) (*Server, error) {
	if config.StreamURL == "" {
		return nil, fmt.Errorf("stream URL is required")
	}
	if config.Dialog == nil {
		return nil, fmt.Errorf("dialog orchestrator is required")
	}
	if config.Synth == nil {
		return nil, fmt.Errorf("synthesizer is required")
	}
	if config.NewTranscriber == nil {
		return nil, fmt.Errorf("transcriber factory is required")
	}

	if config.Address == "" {
		config.Address = ":8080"
	}
	if config.MediaPath == "" {
		config.MediaPath = "/media"
	}
	if config.VoicePath == "" {
		config.VoicePath = "/voice"
	}
	if config.ReadBufferSize == 0 {
		config.ReadBufferSize = 1024
	}
	if config.WriteBufferSize == 0 {
		config.WriteBufferSize = 1024
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		voice:    &telephony.VoiceHandler{StreamURL: config.StreamURL},
		sessions: make(map[string]*session),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// routes builds the HTTP mux.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(s.config.VoicePath, s.voice)
	mux.HandleFunc(s.config.MediaPath, s.handleMedia)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// Start begins serving. It returns once the listener goroutine is running.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.config.Address,
		Handler: s.routes(),
	}

	log.Printf("[Server] starting on %s", s.config.Address)
	log.Printf("[Server] voice webhook: %s", s.config.VoicePath)
	log.Printf("[Server] media websocket: %s", s.config.MediaPath)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[Server] listener error: %v", err)
		}
	}()

	return nil
}

// Stop shuts the server down gracefully: stop accepting, end every live
// session, then wait for the handlers to drain.
func (s *Server) Stop() error {
	log.Printf("[Server] stopping...")

	s.cancel()

	s.sessionsMu.Lock()
	for _, sess := range s.sessions {
		sess.conn.Close()
	}
	s.sessionsMu.Unlock()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(ctx)
	}

	s.wg.Wait()
	log.Printf("[Server] stopped")
	return nil
}

// handleMedia upgrades the websocket and runs the call session until the
// call ends. The provider connects here after the voice webhook answers.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	log.Printf("[Server] media stream connecting from %s", r.RemoteAddr)

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Server] websocket upgrade failed: %v", err)
		return
	}

	conn := telephony.NewStreamConn(wsConn)
	ctrl, err := callsession.NewController(callsession.Config{
		Conn:           conn,
		NewTranscriber: s.config.NewTranscriber,
		Dialog:         s.config.Dialog,
		Synth:          s.config.Synth,
		Greeting:       s.config.Greeting,
		STTProvider:    s.config.STTProvider,
	})
	if err != nil {
		log.Printf("[Server] rejecting media stream: %v", err)
		conn.Close()
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()

	id := uuid.New().String()
	s.addSession(id, &session{ctrl: ctrl, conn: conn, startTime: time.Now()})
	defer s.removeSession(id)

	ctrl.Run(s.ctx)
}

// handleHealth reports liveness and the number of calls in flight.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","activeSessions":%d}`, s.ActiveSessions())
}

// ActiveSessions returns the number of calls currently in flight.
func (s *Server) ActiveSessions() int {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	return len(s.sessions)
}

func (s *Server) addSession(id string, sess *session) {
	s.sessionsMu.Lock()
	s.sessions[id] = sess
	s.sessionsMu.Unlock()
}

func (s *Server) removeSession(id string) {
	s.sessionsMu.Lock()
	if sess, ok := s.sessions[id]; ok {
		delete(s.sessions, id)
		log.Printf("[Server] session %s ended (stream %s, duration %v)",
			id[:8], sess.ctrl.SessionID(), time.Since(sess.startTime).Round(time.Millisecond))
	}
	s.sessionsMu.Unlock()
}
