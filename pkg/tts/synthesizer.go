package tts

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/frontdesk-ai/frontdesk/pkg/audio"
	"github.com/frontdesk-ai/frontdesk/pkg/cache"
	"github.com/frontdesk-ai/frontdesk/pkg/trace"
)

// ErrEmptyText is returned when Synthesize is called with text that is
// empty after trimming. This is a caller error, not a synthesis failure.
var ErrEmptyText = errors.New("tts: text is empty")

const (
	// DefaultCacheSize bounds how many synthesized clips stay cached.
	DefaultCacheSize = 100
	// DefaultCacheTTL is how long a cached clip stays servable.
	DefaultCacheTTL = time.Hour
)

// SynthesizerConfig holds the configuration for a Synthesizer.
type SynthesizerConfig struct {
	Provider  Provider      // Required: synthesis backend
	Voice     string        // Optional: voice passed to the provider
	Speed     float64       // Optional: playback speed passed to the provider
	CacheSize int           // Optional: max cached clips (default: 100)
	CacheTTL  time.Duration // Optional: cache entry lifetime (default: 1h)
}

// Synthesizer produces telephony-ready audio for reply text. Results are
// µ-law 8 kHz mono regardless of what the provider returns natively, and
// are cached keyed by the exact text so repeated replies (greetings,
// canned prompts) cost one provider call.
type Synthesizer struct {
	provider Provider
	voice    string
	speed    float64
	cache    *cache.Cache[string, []byte]
}

// NewSynthesizer creates a Synthesizer backed by the given provider.
func NewSynthesizer(config SynthesizerConfig) (*Synthesizer, error) {
	if config.Provider == nil {
		return nil, fmt.Errorf("synthesis provider is required")
	}

	cacheSize := config.CacheSize
	if cacheSize == 0 {
		cacheSize = DefaultCacheSize
	}
	cacheTTL := config.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = DefaultCacheTTL
	}

	return &Synthesizer{
		provider: config.Provider,
		voice:    config.Voice,
		speed:    config.Speed,
		cache:    cache.New[string, []byte](cacheSize, cacheTTL),
	}, nil
}

// Synthesize returns µ-law 8 kHz mono audio for text. The cache is
// consulted first; on a miss the provider is called and the normalized
// result is cached. Failed synthesis is never cached.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	ctx, span := trace.InstrumentSynthesis(ctx, s.provider.Name())
	defer span.End()

	if audioData, ok := s.cache.Get(text); ok {
		trace.SetSynthesisResult(span, true, len(audioData))
		log.Printf("[Synthesizer] Cache hit (%d bytes): %s", len(audioData), truncateText(text, 60))
		return audioData, nil
	}

	resp, err := s.provider.Synthesize(ctx, &Request{
		Text:  text,
		Voice: s.voice,
		Speed: s.speed,
	})
	if err != nil {
		trace.RecordError(span, err)
		return nil, fmt.Errorf("%s synthesis failed: %w", s.provider.Name(), err)
	}

	audioData, err := normalizeToTelephony(resp)
	if err != nil {
		trace.RecordError(span, err)
		return nil, fmt.Errorf("%s synthesis failed: %w", s.provider.Name(), err)
	}

	s.cache.Put(text, audioData)
	trace.SetSynthesisResult(span, false, len(audioData))
	log.Printf("[Synthesizer] Synthesized %d bytes via %s: %s",
		len(audioData), s.provider.Name(), truncateText(text, 60))
	return audioData, nil
}

// normalizeToTelephony converts a provider response to µ-law 8 kHz mono.
func normalizeToTelephony(resp *Response) ([]byte, error) {
	if len(resp.AudioData) == 0 {
		return nil, fmt.Errorf("provider returned no audio")
	}
	if resp.Format.Channels > 1 {
		return nil, fmt.Errorf("unsupported channel count %d", resp.Format.Channels)
	}

	switch resp.Format.Encoding {
	case EncodingULaw:
		if resp.Format.SampleRate != audio.TelephonySampleRate {
			return nil, fmt.Errorf("unsupported µ-law sample rate %d", resp.Format.SampleRate)
		}
		return resp.AudioData, nil

	case EncodingPCM:
		pcm := resp.AudioData
		if resp.Format.SampleRate != audio.TelephonySampleRate {
			resampler, err := audio.NewResampler(resp.Format.SampleRate, audio.TelephonySampleRate)
			if err != nil {
				return nil, fmt.Errorf("failed to create resampler: %w", err)
			}
			defer resampler.Free()

			pcm, err = resampler.Convert(pcm)
			if err != nil {
				return nil, fmt.Errorf("failed to resample %d Hz audio: %w", resp.Format.SampleRate, err)
			}
		}
		return audio.PCMToMuLaw(pcm), nil

	default:
		return nil, fmt.Errorf("unsupported audio encoding %q", resp.Format.Encoding)
	}
}

func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
