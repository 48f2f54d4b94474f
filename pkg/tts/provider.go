package tts

import (
	"context"
)

// Audio encodings returned by providers.
const (
	EncodingULaw = "ulaw"      // G.711 µ-law, telephony native
	EncodingPCM  = "pcm_s16le" // 16-bit little-endian PCM
)

// Format describes the audio carried in a Response.
type Format struct {
	Encoding   string // EncodingULaw or EncodingPCM
	SampleRate int    // Sample rate in Hz (e.g., 8000, 24000)
	Channels   int    // 1 for mono
}

// Request represents a request to synthesize speech.
type Request struct {
	Text  string  // Text to synthesize
	Voice string  // Voice ID or name; empty means provider default
	Speed float64 // Playback speed; 0 means provider default
}

// Response carries the synthesized audio and its format.
type Response struct {
	AudioData []byte
	Format    Format
}

// Provider is the interface all speech synthesis backends implement.
// Providers return audio in their native format; the Synthesizer
// normalizes it to the telephony profile.
type Provider interface {
	// Name returns the provider name (e.g., "elevenlabs", "openai").
	Name() string

	// Synthesize converts text to speech. The returned Response reports
	// the actual format of the audio produced.
	Synthesize(ctx context.Context, req *Request) (*Response, error)
}
