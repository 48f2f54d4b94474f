// Azure Speech streaming recognition backend.
//
// Implements Recognizer on the Azure Speech SDK continuous-recognition
// API. Telephony µ-law audio is decoded to 16-bit PCM and fed through a
// push input stream; the service segments utterances on its own, so
// Recognized results are both final and speech-final.

package transcribe

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	msaudio "github.com/Microsoft/cognitive-services-speech-sdk-go/audio"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/common"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/speech"

	"github.com/frontdesk-ai/frontdesk/pkg/audio"
)

const (
	azureDefaultLanguage       = "en-US"
	azureDefaultEndpointing    = 500 * time.Millisecond
	azureDefaultInitialSilence = 5 * time.Second
)

// AzureConfig holds configuration for the Azure recognizer.
type AzureConfig struct {
	// Key is the Azure Speech subscription key (required)
	Key string

	// Region is the Azure service region, e.g. "eastus" (required)
	Region string

	// Language code (default: "en-US")
	Language string

	// Endpointing is the segmentation silence that finalizes an
	// utterance (default: 500ms)
	Endpointing time.Duration

	// InitialSilence is how long the service waits for speech at the
	// start of the stream (default: 5s)
	InitialSilence time.Duration
}

// AzureRecognizer implements Recognizer using the Azure Speech SDK.
type AzureRecognizer struct {
	key            string
	region         string
	language       string
	endpointing    time.Duration
	initialSilence time.Duration

	recognizer  *speech.SpeechRecognizer
	pushStream  *msaudio.PushAudioInputStream
	audioConfig *msaudio.AudioConfig

	events    chan Event
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewAzureRecognizer creates an Azure-backed recognizer for µ-law 8 kHz
// mono telephony audio.
func NewAzureRecognizer(config AzureConfig) (*AzureRecognizer, error) {
	if config.Key == "" || config.Region == "" {
		return nil, &Error{
			Code:    ErrCodeInvalidConfig,
			Message: "Azure Speech key and region are required",
		}
	}

	language := config.Language
	if language == "" {
		language = azureDefaultLanguage
	}
	endpointing := config.Endpointing
	if endpointing == 0 {
		endpointing = azureDefaultEndpointing
	}
	initialSilence := config.InitialSilence
	if initialSilence == 0 {
		initialSilence = azureDefaultInitialSilence
	}

	return &AzureRecognizer{
		key:            config.Key,
		region:         config.Region,
		language:       language,
		endpointing:    endpointing,
		initialSilence: initialSilence,
		events:         make(chan Event, 32),
	}, nil
}

// Start creates the push stream and recognizer and begins continuous
// recognition.
func (r *AzureRecognizer) Start(ctx context.Context) error {
	format, err := msaudio.GetWaveFormatPCM(audio.TelephonySampleRate, 16, audio.TelephonyChannels)
	if err != nil {
		return fmt.Errorf("failed to create audio format: %w", err)
	}
	defer format.Close()

	r.pushStream, err = msaudio.CreatePushAudioInputStreamFromFormat(format)
	if err != nil {
		return fmt.Errorf("failed to create push stream: %w", err)
	}

	r.audioConfig, err = msaudio.NewAudioConfigFromStreamInput(r.pushStream)
	if err != nil {
		r.releaseHandles()
		return fmt.Errorf("failed to create audio config: %w", err)
	}

	speechConfig, err := speech.NewSpeechConfigFromSubscription(r.key, r.region)
	if err != nil {
		r.releaseHandles()
		return fmt.Errorf("failed to create speech config: %w", err)
	}
	defer speechConfig.Close()

	speechConfig.SetSpeechRecognitionLanguage(r.language)
	speechConfig.SetProperty(common.SegmentationSilenceTimeoutMs,
		strconv.FormatInt(r.endpointing.Milliseconds(), 10))
	speechConfig.SetProperty(common.ConversationInitialSilenceTimeout,
		strconv.FormatInt(r.initialSilence.Milliseconds(), 10))

	r.recognizer, err = speech.NewSpeechRecognizerFromConfig(speechConfig, r.audioConfig)
	if err != nil {
		r.releaseHandles()
		return fmt.Errorf("failed to create recognizer: %w", err)
	}

	r.recognizer.SessionStarted(func(evt speech.SessionEventArgs) {
		log.Printf("[AzureSTT] Session started")
	})
	r.recognizer.SessionStopped(func(evt speech.SessionEventArgs) {
		log.Printf("[AzureSTT] Session stopped")
	})

	r.recognizer.Recognizing(func(evt speech.SpeechRecognitionEventArgs) {
		if evt.Result.Reason == common.RecognizingSpeech {
			r.emit(Event{Type: EventResult, Result: &Result{
				Text:       evt.Result.Text,
				Confidence: -1,
			}})
		}
	})

	r.recognizer.Recognized(func(evt speech.SpeechRecognitionEventArgs) {
		if evt.Result.Reason == common.RecognizedSpeech {
			// Recognized fires on segmentation silence, so the segment is
			// also the end of the utterance.
			r.emit(Event{Type: EventResult, Result: &Result{
				Text:        evt.Result.Text,
				IsFinal:     true,
				SpeechFinal: true,
				Confidence:  -1,
			}})
		}
	})

	r.recognizer.Canceled(func(evt speech.SpeechRecognitionCanceledEventArgs) {
		log.Printf("[AzureSTT] Recognition canceled: %v", evt.ErrorDetails)
		r.emit(Event{Type: EventError, Err: &Error{
			Code:    ErrCodeProviderError,
			Message: fmt.Sprintf("recognition canceled: %v", evt.ErrorDetails),
		}})
	})

	select {
	case err := <-r.recognizer.StartContinuousRecognitionAsync():
		if err != nil {
			r.releaseHandles()
			return fmt.Errorf("failed to start continuous recognition: %w", err)
		}
	case <-ctx.Done():
		r.releaseHandles()
		return ctx.Err()
	}

	log.Printf("[AzureSTT] Continuous recognition started (language: %s)", r.language)
	r.emit(Event{Type: EventOpened})
	return nil
}

// WriteAudio decodes µ-law audio to PCM and feeds the push stream.
func (r *AzureRecognizer) WriteAudio(chunk []byte) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return &Error{
			Code:    ErrCodeClosed,
			Message: "recognizer is closed",
		}
	}
	if r.pushStream == nil {
		return &Error{
			Code:    ErrCodeProviderError,
			Message: "recognizer is not started",
		}
	}

	if err := r.pushStream.Write(audio.MuLawToPCM(chunk)); err != nil {
		return &Error{
			Code:    ErrCodeProviderError,
			Message: "failed to write audio",
			Err:     err,
		}
	}
	return nil
}

// Events returns the stream of recognition events.
func (r *AzureRecognizer) Events() <-chan Event {
	return r.events
}

// Close stops recognition and releases SDK handles.
func (r *AzureRecognizer) Close() error {
	r.closeOnce.Do(func() {
		log.Printf("[AzureSTT] Closing recognizer")

		if r.recognizer != nil {
			if err := <-r.recognizer.StopContinuousRecognitionAsync(); err != nil {
				log.Printf("[AzureSTT] Failed to stop recognition: %v", err)
			}
		}

		r.emit(Event{Type: EventClosed})

		r.mu.Lock()
		r.closed = true
		close(r.events)
		r.mu.Unlock()

		r.releaseHandles()

		log.Printf("[AzureSTT] Recognizer closed")
	})
	return nil
}

// releaseHandles frees SDK resources in reverse construction order.
func (r *AzureRecognizer) releaseHandles() {
	if r.recognizer != nil {
		r.recognizer.Close()
		r.recognizer = nil
	}
	if r.pushStream != nil {
		r.pushStream.Close()
		r.pushStream = nil
	}
	if r.audioConfig != nil {
		r.audioConfig.Close()
		r.audioConfig = nil
	}
}

// emit delivers an event unless the recognizer already closed.
func (r *AzureRecognizer) emit(ev Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.events <- ev:
	default:
		log.Printf("[AzureSTT] Event channel full, dropping event")
	}
}

var _ Recognizer = (*AzureRecognizer)(nil)
