package callsession

import (
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/frontdesk-ai/frontdesk/pkg/audio"
	"github.com/frontdesk-ai/frontdesk/pkg/trace"
)

// deliver synthesizes a reply, waits for every earlier turn to finish
// playing, then transmits it. Synthesis runs before the wait so turns
// overlap their slow work; only the socket writes are serialized. A failed
// synthesis skips the turn, and the deferred gate completion in the caller
// releases the next one.
func (c *Controller) deliver(turn int64, ready <-chan struct{}, reply string) {
	if reply == "" {
		return
	}

	mulaw, err := c.synth.Synthesize(c.ctx, reply)
	if err != nil {
		log.Printf("[Session %s] skipping turn %d, synthesis failed: %v",
			shortID(c.sessionID), turn, err)
		return
	}

	select {
	case <-ready:
	case <-c.ctx.Done():
		return
	}

	c.transmit(turn, mulaw)
}

// transmit paces mu-law audio onto the socket one 20 ms frame at a time and
// marks the end of the turn. Pacing in real time keeps the provider's jitter
// buffer shallow, so a barge-in clear discards at most a frame or two.
// Aborts are silent: once the session is canceled or the socket is gone
// there is nobody left to tell.
func (c *Controller) transmit(turn int64, mulaw []byte) {
	ctx, span := trace.InstrumentTransmit(c.ctx, c.sessionID, turn)
	defer span.End()

	sent := 0
	defer func() { trace.SetFramesSent(span, sent) }()

	frames := audio.SplitMuLawFrames(mulaw, audio.MuLawFrameSize)
	if len(frames) == 0 {
		return
	}

	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()

	for i, frame := range frames {
		if i > 0 {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
		if ctx.Err() != nil || !c.conn.Alive() {
			return
		}
		if err := c.conn.WriteMediaFrame(frame); err != nil {
			return
		}
		sent++
	}

	mark := uuid.New().String()
	if err := c.conn.WriteMark(mark); err != nil {
		return
	}
	log.Printf("[Session %s] turn %d played out (%d frames, mark %s)",
		shortID(c.sessionID), turn, sent, shortID(mark))
}
