// Package dialog turns finalized caller utterances into speakable replies.
// It keeps per-caller conversation history, drives the language model with
// the assistant's function schemas, and executes appointment intents
// against the booking collaborator.
package dialog

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/frontdesk-ai/frontdesk/pkg/cache"
	"github.com/frontdesk-ai/frontdesk/pkg/llm"
	"github.com/frontdesk-ai/frontdesk/pkg/trace"
)

const (
	// DefaultModelTimeout bounds one model round trip.
	DefaultModelTimeout = 10 * time.Second

	// DefaultMaxTokens keeps replies short enough to speak.
	DefaultMaxTokens = 150

	defaultTemperature = 0.7
)

const defaultSystemPrompt = "You are a friendly receptionist answering the phone for a small business. " +
	"Keep every reply short and natural to say out loud: one or two sentences, plain words, no lists. " +
	"You help callers check appointment availability, book appointments, and find the next open time. " +
	"Times passed to functions must be in RFC 3339 format. " +
	"Use manage_appointment once the caller's intent is clear, and extract_appointment_time when they " +
	"mention a time before their intent is clear."

const askNameSuffix = "\n\nYou do not know the caller's name yet. Politely ask for it, and record it " +
	"with extract_caller_name when they say it."

// Caller identifies the person on the line. Name is empty until captured.
type Caller struct {
	Name  string
	Phone string
}

// Result is the outcome of one handled utterance. Reply is always
// speakable; ExtractedName is set on the turn that captured the caller's
// name.
type Result struct {
	Reply         string
	ExtractedName string
}

// AppointmentStore is the booking collaborator.
type AppointmentStore interface {
	CheckAvailability(ctx context.Context, t time.Time) (bool, error)
	NextAvailableTime(ctx context.Context, after time.Time) (time.Time, bool, error)
	CreateAppointment(ctx context.Context, name, phone string, t time.Time) error
}

// Config holds configuration for the orchestrator.
type Config struct {
	// Model produces completions. Required.
	Model llm.Client

	// Appointments answers availability and booking requests. Required.
	Appointments AppointmentStore

	// History caches conversation records across socket lifetimes. Required.
	History *cache.Cache[string, *Conversation]

	// MaxTurns caps each conversation record. Defaults to DefaultMaxTurns.
	MaxTurns int

	// ModelTimeout bounds one model call. Defaults to DefaultModelTimeout.
	ModelTimeout time.Duration

	// MaxTokens bounds the completion length. Defaults to DefaultMaxTokens.
	MaxTokens int

	// Temperature controls model sampling. Defaults to 0.7.
	Temperature float32

	// SystemPrompt overrides the built-in receptionist instruction.
	SystemPrompt string
}

// Orchestrator handles one utterance at a time per call, though turns from
// concurrent calls and overlapping turn goroutines may run in parallel.
type Orchestrator struct {
	model        llm.Client
	store        AppointmentStore
	history      *cache.Cache[string, *Conversation]
	maxTurns     int
	modelTimeout time.Duration
	maxTokens    int
	temperature  float32
	systemPrompt string

	mu sync.Mutex // guards conversation load-or-create
}

// NewOrchestrator creates a conversation orchestrator.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("model client is required")
	}
	if cfg.Appointments == nil {
		return nil, fmt.Errorf("appointment store is required")
	}
	if cfg.History == nil {
		return nil, fmt.Errorf("history cache is required")
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = DefaultModelTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}

	return &Orchestrator{
		model:        cfg.Model,
		store:        cfg.Appointments,
		history:      cfg.History,
		maxTurns:     cfg.MaxTurns,
		modelTimeout: cfg.ModelTimeout,
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
		systemPrompt: cfg.SystemPrompt,
	}, nil
}

// HandleUtterance produces the assistant's reply to one finalized caller
// utterance. It always returns something speakable: model or collaborator
// failures degrade to canned replies. The caller's utterance is recorded
// even when the reply degrades; degraded replies are not recorded.
func (o *Orchestrator) HandleUtterance(ctx context.Context, sessionID, utterance string, caller Caller) Result {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return Result{Reply: replyDidNotCatch}
	}

	ctx, span := trace.InstrumentUtterance(ctx, sessionID)
	defer span.End()

	conv := o.conversation(sessionID)
	conv.Append(llm.RoleUser, utterance)

	reply, extractedName, recordable := o.respond(ctx, sessionID, conv, caller)
	if recordable {
		conv.Append(llm.RoleAssistant, reply)
	}
	o.history.Put(sessionID, conv)

	return Result{Reply: reply, ExtractedName: extractedName}
}

// conversation loads the session's record from the history cache, creating
// and inserting a fresh one on miss. Load-or-create is serialized so
// overlapping turn goroutines cannot fork the record.
func (o *Orchestrator) conversation(sessionID string) *Conversation {
	o.mu.Lock()
	defer o.mu.Unlock()

	if conv, ok := o.history.Get(sessionID); ok {
		return conv
	}
	conv := NewConversation(o.maxTurns)
	o.history.Put(sessionID, conv)
	return conv
}

func (o *Orchestrator) respond(ctx context.Context, sessionID string, conv *Conversation, caller Caller) (reply, extractedName string, recordable bool) {
	system := o.systemPrompt
	force := ""
	if caller.Name == "" {
		system += askNameSuffix
		force = fnExtractCallerName
	}

	req := &llm.Request{
		System:        system,
		Messages:      conv.Messages(),
		Functions:     assistantFunctions(),
		ForceFunction: force,
		MaxTokens:     o.maxTokens,
		Temperature:   o.temperature,
	}

	mctx, cancel := context.WithTimeout(ctx, o.modelTimeout)
	defer cancel()

	mctx, span := trace.InstrumentModelCall(mctx, o.model.Name(), force)
	resp, err := o.model.Complete(mctx, req)
	if err != nil {
		trace.RecordError(span, err)
		span.End()
		log.Printf("[Dialog %s] %s completion failed: %v", shortID(sessionID), o.model.Name(), err)
		return replyApology, "", false
	}
	if resp.FunctionCall != nil {
		trace.SetFunctionCall(span, resp.FunctionCall.Name)
	}
	span.End()

	if resp.FunctionCall != nil {
		return o.dispatchFunction(ctx, sessionID, resp, caller)
	}
	if resp.Text != "" {
		return resp.Text, "", true
	}
	return replyPromptForHelp, "", true
}

func (o *Orchestrator) dispatchFunction(ctx context.Context, sessionID string, resp *llm.Response, caller Caller) (string, string, bool) {
	call := resp.FunctionCall
	log.Printf("[Dialog %s] function call: %s %s", shortID(sessionID), call.Name, truncateForLog(call.Arguments, 200))

	switch call.Name {
	case fnExtractCallerName:
		var args callerNameArgs
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			log.Printf("[Dialog %s] bad %s arguments: %v", shortID(sessionID), call.Name, err)
			return replyApology, "", false
		}
		name := strings.TrimSpace(args.Name)
		if args.Confident && name != "" {
			return nameAcknowledgment(name), name, true
		}
		// The model was not sure who is calling. Prefer its own wording
		// when it produced any, otherwise ask directly.
		if resp.Text != "" {
			return resp.Text, "", true
		}
		return replyAskName, "", true

	case fnExtractAppointmentTime:
		var args appointmentTimeArgs
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			log.Printf("[Dialog %s] bad %s arguments: %v", shortID(sessionID), call.Name, err)
			return replyApology, "", false
		}
		if !args.Confident {
			return replyAskTime, "", true
		}
		t, err := time.Parse(time.RFC3339, args.Time)
		if err != nil {
			log.Printf("[Dialog %s] unparseable time %q: %v", shortID(sessionID), args.Time, err)
			return replyApology, "", false
		}
		return confirmTimeReply(t), "", true

	case fnManageAppointment:
		var args manageAppointmentArgs
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			log.Printf("[Dialog %s] bad %s arguments: %v", shortID(sessionID), call.Name, err)
			return replyApology, "", false
		}
		t, err := time.Parse(time.RFC3339, args.Time)
		if err != nil {
			log.Printf("[Dialog %s] unparseable time %q: %v", shortID(sessionID), args.Time, err)
			return replyApology, "", false
		}
		return o.manageAppointment(ctx, sessionID, t, args.Action, caller)

	default:
		log.Printf("[Dialog %s] unknown function %q", shortID(sessionID), call.Name)
		return replyApology, "", false
	}
}

func (o *Orchestrator) manageAppointment(ctx context.Context, sessionID string, t time.Time, action string, caller Caller) (string, string, bool) {
	switch action {
	case actionCheck:
		open, err := o.store.CheckAvailability(ctx, t)
		if err != nil {
			log.Printf("[Dialog %s] availability check failed: %v", shortID(sessionID), err)
			return replyApology, "", false
		}
		if open {
			return availableReply(t), "", true
		}
		return unavailableReply(t), "", true

	case actionSuggestNext:
		return o.suggestNext(ctx, sessionID, t)

	case actionSchedule:
		// Concurrent sessions book against the same store, so availability
		// is re-checked immediately before booking.
		open, err := o.store.CheckAvailability(ctx, t)
		if err != nil {
			log.Printf("[Dialog %s] availability re-check failed: %v", shortID(sessionID), err)
			return replyApology, "", false
		}
		if !open {
			return o.suggestNext(ctx, sessionID, t)
		}
		if err := o.store.CreateAppointment(ctx, caller.Name, caller.Phone, t); err != nil {
			log.Printf("[Dialog %s] booking failed: %v", shortID(sessionID), err)
			return replyRetryBooking, "", true
		}
		log.Printf("[Dialog %s] booked %s for %s", shortID(sessionID), t.Format(time.RFC3339), caller.Name)
		return bookedReply(t), "", true

	default:
		log.Printf("[Dialog %s] unknown appointment action %q", shortID(sessionID), action)
		return replyApology, "", false
	}
}

func (o *Orchestrator) suggestNext(ctx context.Context, sessionID string, after time.Time) (string, string, bool) {
	next, found, err := o.store.NextAvailableTime(ctx, after)
	if err != nil {
		log.Printf("[Dialog %s] next-slot search failed: %v", shortID(sessionID), err)
		return replyApology, "", false
	}
	if !found {
		return replyNoSlots, "", true
	}
	return suggestReply(next), "", true
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
