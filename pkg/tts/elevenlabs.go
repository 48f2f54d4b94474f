// ElevenLabs speech synthesis provider.
//
// Uses the ElevenLabs HTTP streaming endpoint and requests µ-law 8 kHz
// output directly, so audio can go onto a telephony stream without
// transcoding.
//
// Reference: https://elevenlabs.io/docs/api-reference/text-to-speech/stream

package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	elevenLabsEndpoint        = "https://api.elevenlabs.io/v1/text-to-speech"
	elevenLabsDefaultModel    = "eleven_turbo_v2_5"
	elevenLabsOutputFormat    = "ulaw_8000"
	elevenLabsSampleRate      = 8000
	elevenLabsLatencyOptimize = 3
	elevenLabsRequestTimeout  = 30 * time.Second
	elevenLabsReadChunkSize   = 4096
)

// ElevenLabsConfig holds the configuration for the ElevenLabs provider.
type ElevenLabsConfig struct {
	APIKey          string  // Required: ElevenLabs API key
	VoiceID         string  // Required: Voice ID to use
	Model           string  // Optional: Model ID (default: eleven_turbo_v2_5)
	Stability       float64 // Optional: Voice stability 0-1 (default: 0.5)
	SimilarityBoost float64 // Optional: Similarity boost 0-1 (default: 0.75)
}

// ElevenLabsProvider synthesizes speech via the ElevenLabs HTTP API.
type ElevenLabsProvider struct {
	apiKey          string
	voiceID         string
	model           string
	stability       float64
	similarityBoost float64
	baseURL         string
	httpClient      *http.Client
}

// NewElevenLabsProvider creates a new ElevenLabs provider.
func NewElevenLabsProvider(config ElevenLabsConfig) (*ElevenLabsProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("ElevenLabs API key is required")
	}
	if config.VoiceID == "" {
		return nil, fmt.Errorf("ElevenLabs voice ID is required")
	}

	model := config.Model
	if model == "" {
		model = elevenLabsDefaultModel
	}

	stability := config.Stability
	if stability == 0 {
		stability = 0.5
	}

	similarityBoost := config.SimilarityBoost
	if similarityBoost == 0 {
		similarityBoost = 0.75
	}

	return &ElevenLabsProvider{
		apiKey:          config.APIKey,
		voiceID:         config.VoiceID,
		model:           model,
		stability:       stability,
		similarityBoost: similarityBoost,
		baseURL:         elevenLabsEndpoint,
		httpClient:      &http.Client{Timeout: elevenLabsRequestTimeout},
	}, nil
}

// Name returns the provider name.
func (p *ElevenLabsProvider) Name() string {
	return "elevenlabs"
}

// Synthesize converts text to speech. The response carries µ-law 8 kHz
// mono audio ready for a telephony media stream.
func (p *ElevenLabsProvider) Synthesize(ctx context.Context, req *Request) (*Response, error) {
	voiceID := req.Voice
	if voiceID == "" {
		voiceID = p.voiceID
	}

	params := url.Values{}
	params.Set("output_format", elevenLabsOutputFormat)
	params.Set("optimize_streaming_latency", fmt.Sprintf("%d", elevenLabsLatencyOptimize))

	requestURL := fmt.Sprintf("%s/%s/stream?%s", p.baseURL, voiceID, params.Encode())

	body := elevenLabsRequestBody{
		Text:    req.Text,
		ModelID: p.model,
		VoiceSettings: &elevenLabsVoiceSettings{
			Stability:       p.stability,
			SimilarityBoost: p.similarityBoost,
			Speed:           req.Speed,
		},
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/basic")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ElevenLabs API request failed with status %d: %s", resp.StatusCode, string(errBody))
	}

	audioData, err := p.readStream(ctx, resp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{
		AudioData: audioData,
		Format: Format{
			Encoding:   EncodingULaw,
			SampleRate: elevenLabsSampleRate,
			Channels:   1,
		},
	}, nil
}

// readStream drains the chunked response body, honoring context
// cancellation between reads.
func (p *ElevenLabsProvider) readStream(ctx context.Context, r io.Reader) ([]byte, error) {
	var audioData []byte
	buffer := make([]byte, elevenLabsReadChunkSize)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		n, err := r.Read(buffer)
		if n > 0 {
			audioData = append(audioData, buffer[:n]...)
		}
		if err != nil {
			if err == io.EOF {
				return audioData, nil
			}
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
	}
}

type elevenLabsRequestBody struct {
	Text          string                   `json:"text"`
	ModelID       string                   `json:"model_id,omitempty"`
	VoiceSettings *elevenLabsVoiceSettings `json:"voice_settings,omitempty"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

var _ Provider = (*ElevenLabsProvider)(nil)
