// callsim places a test call against a locally running FrontDesk server
// without a telephony provider in the loop. It connects to the media
// websocket and behaves like the provider: microphone audio goes out as
// base64 mu-law media events, and the assistant's media events play back
// through the speakers.
//
// Environment Variables:
//   - SERVER_URL: media websocket to dial (default: ws://localhost:8080/media)
//   - NUMBER: caller number passed as a stream parameter (default: +15550100)
//
// Usage:
//  1. Start the server: go run ./cmd/frontdesk
//  2. Run: go run ./cmd/callsim
//  3. Talk; Ctrl-C hangs up
package main

import (
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/frontdesk-ai/frontdesk/pkg/audio"
	"github.com/frontdesk-ai/frontdesk/pkg/telephony"
)

const (
	deviceSampleRate = telephony.MediaSampleRate
	deviceChannels   = telephony.MediaChannels

	// playoutBufferMs absorbs network jitter between the server's 20 ms
	// pacing and the device clock.
	playoutBufferMs = 2000
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Println("=== FrontDesk Call Simulator ===")

	serverURL := getEnv("SERVER_URL", "ws://localhost:8080/media")
	number := getEnv("NUMBER", "+15550100")

	streamSid := "MZ" + strings.ReplaceAll(uuid.New().String(), "-", "")
	callSid := "CA" + strings.ReplaceAll(uuid.New().String(), "-", "")

	client, _, err := websocket.DefaultDialer.Dial(serverURL, nil)
	if err != nil {
		log.Fatalf("Failed to dial %s: %v", serverURL, err)
	}
	defer client.Close()
	log.Printf("[CallSim] connected to %s", serverURL)

	// One writer goroutine owns the socket; device callbacks and the read
	// loop enqueue instead of writing directly.
	outbound := make(chan *telephony.Message, 64)
	go func() {
		var seq int64
		for msg := range outbound {
			seq++
			msg.SequenceNumber = strconv.FormatInt(seq, 10)
			if err := client.WriteJSON(msg); err != nil {
				log.Printf("[CallSim] write failed: %v", err)
				return
			}
		}
	}()
	enqueue := func(msg *telephony.Message) {
		select {
		case outbound <- msg:
		default:
			// Audio callbacks must never block on a congested socket.
		}
	}

	enqueue(&telephony.Message{Event: telephony.EventConnected, Protocol: "Call", Version: "1.0.0"})
	enqueue(&telephony.Message{
		Event:     telephony.EventStart,
		StreamSid: streamSid,
		Start: &telephony.StartPayload{
			AccountSid: "AC" + strings.Repeat("0", 32),
			StreamSid:  streamSid,
			CallSid:    callSid,
			Tracks:     []string{"inbound"},
			MediaFormat: telephony.MediaFormat{
				Encoding:   telephony.MediaEncoding,
				SampleRate: telephony.MediaSampleRate,
				Channels:   telephony.MediaChannels,
			},
			CustomParameters: map[string]string{"number": number},
		},
	})
	log.Printf("[CallSim] calling as %s (stream %s)", number, streamSid[:10])

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Fatalf("Failed to initialize audio: %v", err)
	}
	defer func() {
		audioCtx.Uninit()
		audioCtx.Free()
	}()

	callStart := time.Now()
	var chunk atomic.Int64

	// Microphone -> mu-law media events, one 20 ms period at a time.
	captureConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	captureConfig.PeriodSizeInMilliseconds = 20
	captureConfig.Capture.Format = malgo.FormatS16
	captureConfig.Capture.Channels = deviceChannels
	captureConfig.SampleRate = deviceSampleRate
	captureConfig.Alsa.NoMMap = 1

	captureDevice, err := malgo.InitDevice(audioCtx.Context, captureConfig, malgo.DeviceCallbacks{
		Data: func(outputSamples, inputSamples []byte, framecount uint32) {
			pcm := make([]byte, len(inputSamples))
			copy(pcm, inputSamples)

			enqueue(&telephony.Message{
				Event:     telephony.EventMedia,
				StreamSid: streamSid,
				Media: &telephony.MediaPayload{
					Track:     "inbound",
					Chunk:     strconv.FormatInt(chunk.Add(1), 10),
					Timestamp: strconv.FormatInt(time.Since(callStart).Milliseconds(), 10),
					Payload:   base64.StdEncoding.EncodeToString(audio.PCMToMuLaw(pcm)),
				},
			})
		},
	})
	if err != nil {
		log.Fatalf("Failed to initialize capture device: %v", err)
	}
	if err := captureDevice.Start(); err != nil {
		log.Fatalf("Failed to start capture device: %v", err)
	}
	defer captureDevice.Uninit()

	// Assistant audio -> speakers, silence-padded when the buffer runs dry.
	playout := audio.NewRingBuffer(deviceSampleRate, playoutBufferMs)

	playbackConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	playbackConfig.PeriodSizeInMilliseconds = 20
	playbackConfig.Playback.Format = malgo.FormatS16
	playbackConfig.Playback.Channels = deviceChannels
	playbackConfig.SampleRate = deviceSampleRate
	playbackConfig.Alsa.NoMMap = 1

	playbackDevice, err := malgo.InitDevice(audioCtx.Context, playbackConfig, malgo.DeviceCallbacks{
		Data: func(outputSamples, inputSamples []byte, framecount uint32) {
			n := playout.Read(outputSamples)
			for i := n; i < len(outputSamples); i++ {
				outputSamples[i] = 0
			}
		},
	})
	if err != nil {
		log.Fatalf("Failed to initialize playback device: %v", err)
	}
	if err := playbackDevice.Start(); err != nil {
		log.Fatalf("Failed to start playback device: %v", err)
	}
	defer playbackDevice.Uninit()

	// Read loop: play assistant audio, acknowledge marks, honor clears.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			var msg telephony.Message
			if err := client.ReadJSON(&msg); err != nil {
				log.Printf("[CallSim] server closed the stream: %v", err)
				return
			}
			switch msg.Event {
			case telephony.EventMedia:
				if msg.Media == nil {
					continue
				}
				mulaw, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
				if err != nil {
					log.Printf("[CallSim] bad media payload: %v", err)
					continue
				}
				playout.Write(audio.MuLawToPCM(mulaw))

			case telephony.EventMark:
				if msg.Mark == nil {
					continue
				}
				// The provider reports a mark back once the audio before it
				// has played; echo it so the turn shows as delivered.
				enqueue(&telephony.Message{
					Event:     telephony.EventMark,
					StreamSid: streamSid,
					Mark:      &telephony.MarkPayload{Name: msg.Mark.Name},
				})
				fmt.Println(">> assistant finished speaking")

			case telephony.EventClear:
				playout.Clear()
				log.Println("[CallSim] server cleared buffered audio")
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Println("[CallSim] hanging up")
		enqueue(&telephony.Message{
			Event:     telephony.EventStop,
			StreamSid: streamSid,
			Stop:      &telephony.StopPayload{AccountSid: "AC" + strings.Repeat("0", 32), CallSid: callSid},
		})
		// Leave the channel open so device callbacks cannot hit a closed
		// channel; just give the stop event a moment to flush.
		time.Sleep(300 * time.Millisecond)
	case <-readDone:
	}

	log.Println("Goodbye!")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
