package tts

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	openAIDefaultModel = "tts-1"
	openAIDefaultVoice = "alloy"
	openAISampleRate   = 24000 // PCM responses are fixed at 24 kHz mono
)

// OpenAIConfig holds the configuration for the OpenAI provider.
type OpenAIConfig struct {
	APIKey  string // Optional: falls back to OPENAI_API_KEY
	Model   string // Optional: "tts-1" or "tts-1-hd" (default: tts-1)
	Voice   string // Optional: default voice (default: alloy)
	BaseURL string // Optional: override API base URL
}

// OpenAIProvider synthesizes speech via the OpenAI speech API. Output is
// 24 kHz PCM, which the Synthesizer downsamples and µ-law encodes for
// telephony.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	voice  string
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(config OpenAIConfig) (*OpenAIProvider, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	client := openai.NewClient(opts...)

	model := config.Model
	if model == "" {
		model = openAIDefaultModel
	}

	voice := config.Voice
	if voice == "" {
		voice = openAIDefaultVoice
	}

	return &OpenAIProvider{
		client: &client,
		model:  model,
		voice:  voice,
	}, nil
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Synthesize converts text to speech using the OpenAI speech API.
func (p *OpenAIProvider) Synthesize(ctx context.Context, req *Request) (*Response, error) {
	voice := req.Voice
	if voice == "" {
		voice = p.voice
	}

	params := openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(p.model),
		Input:          req.Text,
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if req.Speed > 0 {
		params.Speed = openai.Float(req.Speed)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("OpenAI speech request failed: %w", err)
	}
	defer resp.Body.Close()

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read speech response: %w", err)
	}

	return &Response{
		AudioData: audioData,
		Format: Format{
			Encoding:   EncodingPCM,
			SampleRate: openAISampleRate,
			Channels:   1,
		},
	}, nil
}

var _ Provider = (*OpenAIProvider)(nil)
