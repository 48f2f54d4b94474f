// Package telephony speaks the provider's media-stream protocol: the
// bidirectional WebSocket that carries call audio as base64 μ-law JSON
// frames, and the TwiML webhook that sets the stream up.
//
// Reference: https://www.twilio.com/docs/voice/media-streams
package telephony

// Media-socket event names.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventStop      = "stop"
	EventMark      = "mark"
	EventDTMF      = "dtmf"
	EventClear     = "clear"
)

// Media-stream audio format. The provider sends and expects μ-law at
// 8 kHz mono; there is no negotiation.
const (
	MediaEncoding   = "audio/x-mulaw"
	MediaSampleRate = 8000
	MediaChannels   = 1
)

// Message is one media-socket JSON frame, inbound or outbound. Exactly one
// of the event payloads is set, matching Event.
type Message struct {
	Event          string        `json:"event"`
	SequenceNumber string        `json:"sequenceNumber,omitempty"`
	StreamSid      string        `json:"streamSid,omitempty"`
	Protocol       string        `json:"protocol,omitempty"`
	Version        string        `json:"version,omitempty"`
	Start          *StartPayload `json:"start,omitempty"`
	Media          *MediaPayload `json:"media,omitempty"`
	Stop           *StopPayload  `json:"stop,omitempty"`
	Mark           *MarkPayload  `json:"mark,omitempty"`
	DTMF           *DTMFPayload  `json:"dtmf,omitempty"`
}

// StartPayload carries the stream metadata sent once after connect.
// CustomParameters holds the values declared as <Parameter> in the TwiML
// response, which is how the dialed number reaches the session.
type StartPayload struct {
	AccountSid       string            `json:"accountSid"`
	StreamSid        string            `json:"streamSid"`
	CallSid          string            `json:"callSid"`
	Tracks           []string          `json:"tracks"`
	MediaFormat      MediaFormat       `json:"mediaFormat"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

// MediaFormat describes the stream's audio encoding.
type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// MediaPayload carries one chunk of base64-encoded μ-law audio.
type MediaPayload struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

// StopPayload carries the stream termination event.
type StopPayload struct {
	AccountSid string `json:"accountSid"`
	CallSid    string `json:"callSid"`
}

// MarkPayload names a playback checkpoint. Outbound marks are echoed back
// by the provider once the audio queued before them has played.
type MarkPayload struct {
	Name string `json:"name"`
}

// DTMFPayload carries one keypad digit pressed by the caller.
type DTMFPayload struct {
	Track string `json:"track"`
	Digit string `json:"digit"`
}
