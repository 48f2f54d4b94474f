// Package callsession runs one phone call end to end. A controller owns a
// single event loop that consumes media-socket messages and transcription
// events, turns finalized utterances into dialogue turns, and paces the
// synthesized replies back onto the socket in strict turn order.
package callsession

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/frontdesk-ai/frontdesk/pkg/dialog"
	"github.com/frontdesk-ai/frontdesk/pkg/telephony"
	"github.com/frontdesk-ai/frontdesk/pkg/transcribe"
	"github.com/frontdesk-ai/frontdesk/pkg/trace"
)

// inboundTrack is the only media track forwarded to transcription. Outbound
// frames echoed back by the provider carry other track labels.
const inboundTrack = "inbound"

// State describes where a session is in its lifecycle.
type State int32

const (
	// StateConnecting means the socket is up but no start event has arrived.
	StateConnecting State = iota
	// StateAwaitingFirstUtterance means the call is identified and the
	// greeting is queued, but the caller has not said anything yet.
	StateAwaitingFirstUtterance
	// StateConversing means at least one caller utterance has been handled.
	StateConversing
	// StateClosing means teardown has begun.
	StateClosing
	// StateClosed means all session goroutines have finished.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingFirstUtterance:
		return "awaiting_first_utterance"
	case StateConversing:
		return "conversing"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MediaConn is the slice of the media socket the controller needs.
// *telephony.StreamConn satisfies it.
type MediaConn interface {
	Messages() <-chan *telephony.Message
	WriteMediaFrame(frame []byte) error
	WriteMark(name string) error
	WriteClear() error
	Alive() bool
	Close() error
}

// Transcriber is a live speech-to-text stream. *transcribe.Live satisfies it.
type Transcriber interface {
	Open(ctx context.Context)
	WriteAudio(chunk []byte) error
	Events() <-chan transcribe.Event
	Close() error
}

// Responder produces one assistant reply per caller utterance.
// *dialog.Orchestrator satisfies it.
type Responder interface {
	HandleUtterance(ctx context.Context, sessionID, utterance string, caller dialog.Caller) dialog.Result
}

// Speaker renders reply text to 8 kHz mu-law audio. *tts.Synthesizer
// satisfies it.
type Speaker interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Config wires a controller to its collaborators.
type Config struct {
	Conn MediaConn

	// NewTranscriber builds a fresh live transcription stream. Called once
	// per session when the start event arrives, so a failed call never
	// holds a provider connection.
	NewTranscriber func() (Transcriber, error)

	Dialog Responder
	Synth  Speaker

	// Greeting is spoken as turn zero. Defaults to dialog.DefaultGreeting.
	Greeting string

	// STTProvider labels the transcription span, e.g. "deepgram".
	STTProvider string
}

// Controller drives one call. All socket and transcription events funnel
// through the Run loop; only turn goroutines run concurrently, and those
// serialize their socket writes through the gate.
type Controller struct {
	conn           MediaConn
	newTranscriber func() (Transcriber, error)
	dialog         Responder
	synth          Speaker
	greeting       string
	sttProvider    string

	gate *Gate

	// Owned by the Run loop.
	ctx     context.Context
	cancel  context.CancelFunc
	live    Transcriber
	greeted bool

	// Set once by the start event, before any turn goroutine spawns.
	sessionID string
	callSID   string
	phone     string

	endSession func()
	endSTT     func()

	nameMu     sync.Mutex
	callerName string

	state atomic.Int32
	wg    sync.WaitGroup
}

// NewController validates cfg and returns a controller ready to Run.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Conn == nil {
		return nil, fmt.Errorf("media connection is required")
	}
	if cfg.NewTranscriber == nil {
		return nil, fmt.Errorf("transcriber factory is required")
	}
	if cfg.Dialog == nil {
		return nil, fmt.Errorf("dialog orchestrator is required")
	}
	if cfg.Synth == nil {
		return nil, fmt.Errorf("synthesizer is required")
	}
	if cfg.Greeting == "" {
		cfg.Greeting = dialog.DefaultGreeting
	}

	return &Controller{
		conn:           cfg.Conn,
		newTranscriber: cfg.NewTranscriber,
		dialog:         cfg.Dialog,
		synth:          cfg.Synth,
		greeting:       cfg.Greeting,
		sttProvider:    cfg.STTProvider,
		gate:           NewGate(),
	}, nil
}

// Run blocks until the call ends: the caller hangs up, the socket drops,
// the transcription stream fails, or ctx is canceled. It always tears the
// session down before returning, so the socket and the transcription stream
// are closed by the time it does.
func (c *Controller) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.ctx = ctx
	c.cancel = cancel

	c.setState(StateConnecting)
	defer c.teardown()

	for {
		select {
		case msg, ok := <-c.conn.Messages():
			if !ok {
				return
			}
			if !c.handleMessage(msg) {
				return
			}
		case ev, ok := <-c.transcriptionEvents():
			if !ok {
				return
			}
			if !c.handleTranscription(ev) {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// transcriptionEvents returns nil until the start event opens the stream;
// a nil channel parks that select arm.
func (c *Controller) transcriptionEvents() <-chan transcribe.Event {
	if c.live == nil {
		return nil
	}
	return c.live.Events()
}

// handleMessage reacts to one socket message. It returns false when the
// session should end.
func (c *Controller) handleMessage(msg *telephony.Message) bool {
	switch msg.Event {
	case telephony.EventConnected:
		log.Printf("[Session] media socket connected (protocol %s %s)", msg.Protocol, msg.Version)
		return true

	case telephony.EventStart:
		return c.handleStart(msg.Start)

	case telephony.EventMedia:
		c.handleMedia(msg.Media)
		return true

	case telephony.EventMark:
		if msg.Mark != nil {
			log.Printf("[Session %s] provider played mark %s", shortID(c.sessionID), shortID(msg.Mark.Name))
		}
		return true

	case telephony.EventDTMF:
		if msg.DTMF != nil {
			log.Printf("[Session %s] caller pressed %s", shortID(c.sessionID), msg.DTMF.Digit)
		}
		return true

	case telephony.EventStop:
		log.Printf("[Session %s] caller hung up", shortID(c.sessionID))
		return false

	default:
		log.Printf("[Session %s] ignoring unknown event %q", shortID(c.sessionID), msg.Event)
		return true
	}
}

// handleStart records the call identity and opens the transcription stream.
func (c *Controller) handleStart(start *telephony.StartPayload) bool {
	if start == nil {
		log.Printf("[Session] start event without payload, ignoring")
		return true
	}

	c.sessionID = start.StreamSid
	c.callSID = start.CallSid
	c.phone = start.CustomParameters["number"]

	ctx, span := trace.InstrumentSession(c.ctx, c.sessionID, c.callSID)
	c.ctx = ctx
	c.endSession = span.End

	log.Printf("[Session %s] call started (call %s, caller %s)",
		shortID(c.sessionID), shortID(c.callSID), c.phone)

	live, err := c.newTranscriber()
	if err != nil {
		log.Printf("[Session %s] transcription unavailable: %v", shortID(c.sessionID), err)
		return false
	}
	c.live = live

	sttCtx, sttSpan := trace.InstrumentTranscription(c.ctx, c.sttProvider)
	c.endSTT = sttSpan.End
	c.live.Open(sttCtx)

	c.setState(StateAwaitingFirstUtterance)
	return true
}

// handleMedia forwards inbound caller audio to the transcription stream.
func (c *Controller) handleMedia(media *telephony.MediaPayload) {
	if media == nil || media.Payload == "" || c.live == nil {
		return
	}
	if media.Track != "" && media.Track != inboundTrack {
		return
	}

	chunk, err := base64.StdEncoding.DecodeString(media.Payload)
	if err != nil {
		log.Printf("[Session %s] dropping undecodable media payload: %v", shortID(c.sessionID), err)
		return
	}
	if err := c.live.WriteAudio(chunk); err != nil {
		log.Printf("[Session %s] failed to buffer caller audio: %v", shortID(c.sessionID), err)
	}
}

// handleTranscription reacts to one transcription event. It returns false
// when the session should end.
func (c *Controller) handleTranscription(ev transcribe.Event) bool {
	switch ev.Type {
	case transcribe.EventOpened:
		log.Printf("[Session %s] transcription stream open", shortID(c.sessionID))
		if !c.greeted {
			c.greeted = true
			c.spawnGreeting()
		}
		return true

	case transcribe.EventResult:
		if ev.Result == nil || ev.Result.Text == "" {
			return true
		}
		c.setState(StateConversing)
		c.spawnTurn(ev.Result.Text)
		return true

	case transcribe.EventError:
		log.Printf("[Session %s] transcription error: %v", shortID(c.sessionID), ev.Err)
		return false

	case transcribe.EventClosed:
		log.Printf("[Session %s] transcription stream closed", shortID(c.sessionID))
		return false

	default:
		return true
	}
}

// teardown closes the session in a fixed order: stop transcription, cancel
// in-flight turns, wipe any audio the provider still has buffered, close
// the socket, then wait for turn goroutines to drain.
func (c *Controller) teardown() {
	c.setState(StateClosing)

	if c.live != nil {
		c.live.Close()
	}
	c.cancel()

	if c.conn.Alive() {
		c.conn.WriteClear()
	}
	c.conn.Close()

	c.wg.Wait()

	if c.endSTT != nil {
		c.endSTT()
	}
	if c.endSession != nil {
		c.endSession()
	}

	c.setState(StateClosed)
	log.Printf("[Session %s] session closed", shortID(c.sessionID))
}

// State reports the current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// SessionID returns the media stream SID, or "" before the start event.
func (c *Controller) SessionID() string {
	return c.sessionID
}

func (c *Controller) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old != s {
		log.Printf("[Session %s] state changed: %s -> %s", shortID(c.sessionID), old, s)
	}
}

// caller snapshots the caller identity for a dialogue turn.
func (c *Controller) caller() dialog.Caller {
	c.nameMu.Lock()
	defer c.nameMu.Unlock()
	return dialog.Caller{Name: c.callerName, Phone: c.phone}
}

// setCallerName records the caller's name the first time it is extracted.
// Later extractions never overwrite it.
func (c *Controller) setCallerName(name string) {
	if name == "" {
		return
	}
	c.nameMu.Lock()
	defer c.nameMu.Unlock()
	if c.callerName != "" {
		return
	}
	c.callerName = name
	log.Printf("[Session %s] caller identified as %s", shortID(c.sessionID), name)
}

// shortID trims provider SIDs and UUIDs down to a loggable prefix.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
