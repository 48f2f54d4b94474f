// FrontDesk answers business phone calls. The voice webhook tells the
// telephony provider to open a media stream; each stream is bridged to
// live transcription, a function-calling model decides what to say and
// which appointment actions to take, and replies are synthesized and paced
// back over the call.
//
// Environment Variables:
//   - STREAM_URL: public wss:// URL of the media endpoint (required)
//   - PORT: HTTP server port (default: 8080)
//   - GREETING: overrides the scripted greeting
//
//   - LLM_PROVIDER: "openai" or "gemini" (default: openai)
//     OPENAI_API_KEY, OPENAI_MODEL / GOOGLE_API_KEY, GEMINI_MODEL
//   - STT_PROVIDER: "deepgram" or "azure" (default: deepgram)
//     DEEPGRAM_API_KEY, DEEPGRAM_MODEL / AZURE_SPEECH_KEY, AZURE_SPEECH_REGION
//   - TTS_PROVIDER: "elevenlabs" or "openai" (default: elevenlabs)
//     ELEVENLABS_API_KEY, ELEVENLABS_VOICE_ID
//
//   - OPEN_HOUR, CLOSE_HOUR: bookable hours (default: 9, 17)
//   - SLOT_MINUTES: appointment slot length (default: 30)
//   - TIMEZONE: business timezone (default: UTC)
//   - TRACE_EXPORTER: "stdout", "otlp", or "none" (default: none)
//
// Usage:
//  1. Set environment variables (a .env file works too)
//  2. Run: go run ./cmd/frontdesk
//  3. Point the phone number's voice webhook at http://your-server/voice
//  4. Call the number
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/frontdesk-ai/frontdesk/pkg/appointments"
	"github.com/frontdesk-ai/frontdesk/pkg/cache"
	"github.com/frontdesk-ai/frontdesk/pkg/callsession"
	"github.com/frontdesk-ai/frontdesk/pkg/dialog"
	"github.com/frontdesk-ai/frontdesk/pkg/llm"
	"github.com/frontdesk-ai/frontdesk/pkg/server"
	"github.com/frontdesk-ai/frontdesk/pkg/trace"
	"github.com/frontdesk-ai/frontdesk/pkg/transcribe"
	"github.com/frontdesk-ai/frontdesk/pkg/tts"
)

const (
	historySize = 1024
	historyTTL  = 30 * time.Minute
)

// Config holds the application configuration.
type Config struct {
	Port      string
	StreamURL string
	Greeting  string

	LLMProvider string
	OpenAIModel string
	GeminiModel string

	STTProvider   string
	DeepgramModel string
	AzureRegion   string

	TTSProvider     string
	ElevenLabsVoice string

	OpenHour    int
	CloseHour   int
	SlotMinutes int
	Location    *time.Location
}

func main() {
	godotenv.Load()
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Println("=== FrontDesk AI Receptionist ===")

	config := loadConfig()
	validateConfig(config)

	ctx := context.Background()
	if err := trace.Initialize(ctx, trace.DefaultConfig()); err != nil {
		log.Printf("Tracing disabled: %v", err)
	}

	model, err := buildModel(ctx, config)
	if err != nil {
		log.Fatalf("Failed to create model client: %v", err)
	}

	store, err := appointments.NewStore(appointments.Config{
		OpenHour:   config.OpenHour,
		CloseHour:  config.CloseHour,
		SlotLength: time.Duration(config.SlotMinutes) * time.Minute,
		Location:   config.Location,
	})
	if err != nil {
		log.Fatalf("Failed to create appointment store: %v", err)
	}

	orchestrator, err := dialog.NewOrchestrator(dialog.Config{
		Model:        model,
		Appointments: store,
		History:      cache.New[string, *dialog.Conversation](historySize, historyTTL),
	})
	if err != nil {
		log.Fatalf("Failed to create dialog orchestrator: %v", err)
	}

	synth, err := buildSynthesizer(config)
	if err != nil {
		log.Fatalf("Failed to create synthesizer: %v", err)
	}

	newTranscriber, err := buildTranscriberFactory(config)
	if err != nil {
		log.Fatalf("Failed to configure transcription: %v", err)
	}

	srv, err := server.NewServer(server.Config{
		Address:        ":" + config.Port,
		StreamURL:      config.StreamURL,
		Greeting:       config.Greeting,
		STTProvider:    config.STTProvider,
		Dialog:         orchestrator,
		Synth:          synth,
		NewTranscriber: newTranscriber,
	})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	log.Printf("Model: %s, STT: %s, TTS: %s", model.Name(), config.STTProvider, config.TTSProvider)
	log.Printf("Configure the voice webhook to: http://your-server:%s/voice", config.Port)
	log.Printf("Media streams will connect to: %s", config.StreamURL)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
	srv.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := trace.Shutdown(shutdownCtx); err != nil {
		log.Printf("Tracer shutdown: %v", err)
	}
	log.Println("Goodbye!")
}

func loadConfig() *Config {
	tz := getEnv("TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Fatalf("Invalid TIMEZONE %q: %v", tz, err)
	}

	return &Config{
		Port:      getEnv("PORT", "8080"),
		StreamURL: os.Getenv("STREAM_URL"),
		Greeting:  os.Getenv("GREETING"),

		LLMProvider: getEnv("LLM_PROVIDER", "openai"),
		OpenAIModel: os.Getenv("OPENAI_MODEL"),
		GeminiModel: os.Getenv("GEMINI_MODEL"),

		STTProvider:   getEnv("STT_PROVIDER", "deepgram"),
		DeepgramModel: os.Getenv("DEEPGRAM_MODEL"),
		AzureRegion:   os.Getenv("AZURE_SPEECH_REGION"),

		TTSProvider:     getEnv("TTS_PROVIDER", "elevenlabs"),
		ElevenLabsVoice: getEnv("ELEVENLABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"), // Rachel

		OpenHour:    getEnvInt("OPEN_HOUR", 9),
		CloseHour:   getEnvInt("CLOSE_HOUR", 17),
		SlotMinutes: getEnvInt("SLOT_MINUTES", 30),
		Location:    loc,
	}
}

func validateConfig(config *Config) {
	var missing []string

	if config.StreamURL == "" {
		missing = append(missing, "STREAM_URL")
	}

	switch config.LLMProvider {
	case "openai":
		if os.Getenv("OPENAI_API_KEY") == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
	case "gemini":
		if os.Getenv("GOOGLE_API_KEY") == "" {
			missing = append(missing, "GOOGLE_API_KEY")
		}
	}

	switch config.STTProvider {
	case "deepgram":
		if os.Getenv("DEEPGRAM_API_KEY") == "" {
			missing = append(missing, "DEEPGRAM_API_KEY")
		}
	case "azure":
		if os.Getenv("AZURE_SPEECH_KEY") == "" {
			missing = append(missing, "AZURE_SPEECH_KEY")
		}
		if config.AzureRegion == "" {
			missing = append(missing, "AZURE_SPEECH_REGION")
		}
	}

	if config.TTSProvider == "elevenlabs" && os.Getenv("ELEVENLABS_API_KEY") == "" {
		missing = append(missing, "ELEVENLABS_API_KEY")
	}
	if config.TTSProvider == "openai" && os.Getenv("OPENAI_API_KEY") == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}

	if len(missing) > 0 {
		log.Fatalf("Missing required environment variables: %s", strings.Join(missing, ", "))
	}
}

func buildModel(ctx context.Context, config *Config) (llm.Client, error) {
	switch config.LLMProvider {
	case "openai":
		return llm.NewOpenAIClient(llm.OpenAIConfig{Model: config.OpenAIModel})
	case "gemini":
		return llm.NewGeminiClient(ctx, llm.GeminiConfig{Model: config.GeminiModel})
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q (want openai or gemini)", config.LLMProvider)
	}
}

func buildSynthesizer(config *Config) (*tts.Synthesizer, error) {
	var (
		provider tts.Provider
		err      error
	)
	switch config.TTSProvider {
	case "elevenlabs":
		provider, err = tts.NewElevenLabsProvider(tts.ElevenLabsConfig{
			APIKey:  os.Getenv("ELEVENLABS_API_KEY"),
			VoiceID: config.ElevenLabsVoice,
		})
	case "openai":
		provider, err = tts.NewOpenAIProvider(tts.OpenAIConfig{})
	default:
		return nil, fmt.Errorf("unknown TTS_PROVIDER %q (want elevenlabs or openai)", config.TTSProvider)
	}
	if err != nil {
		return nil, err
	}
	return tts.NewSynthesizer(tts.SynthesizerConfig{Provider: provider})
}

// buildTranscriberFactory returns a factory that opens one provider stream
// per call.
func buildTranscriberFactory(config *Config) (func() (callsession.Transcriber, error), error) {
	switch config.STTProvider {
	case "deepgram":
		return func() (callsession.Transcriber, error) {
			rec, err := transcribe.NewDeepgramRecognizer(transcribe.DeepgramConfig{
				APIKey: os.Getenv("DEEPGRAM_API_KEY"),
				Model:  config.DeepgramModel,
			})
			if err != nil {
				return nil, err
			}
			return transcribe.NewLive(rec), nil
		}, nil
	case "azure":
		return func() (callsession.Transcriber, error) {
			rec, err := transcribe.NewAzureRecognizer(transcribe.AzureConfig{
				Key:    os.Getenv("AZURE_SPEECH_KEY"),
				Region: config.AzureRegion,
			})
			if err != nil {
				return nil, err
			}
			return transcribe.NewLive(rec), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown STT_PROVIDER %q (want deepgram or azure)", config.STTProvider)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Fatalf("Invalid %s: %q is not a number", key, value)
	}
	return n
}
