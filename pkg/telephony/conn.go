package telephony

import (
	"encoding/base64"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultWriteWait  = 10 * time.Second
	DefaultPongWait   = 60 * time.Second
	DefaultPingPeriod = 54 * time.Second // Must be less than PongWait
)

// ConnConfig holds timing parameters for a media-socket connection.
type ConnConfig struct {
	WriteWait  time.Duration
	PongWait   time.Duration
	PingPeriod time.Duration
}

// DefaultConnConfig returns the default connection timing.
func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		WriteWait:  DefaultWriteWait,
		PongWait:   DefaultPongWait,
		PingPeriod: DefaultPingPeriod,
	}
}

// StreamConn wraps one upgraded media-stream WebSocket. It decodes inbound
// frames onto an ordered channel, keeps the socket alive with periodic
// pings, and synchronizes outbound writes (gorilla/websocket allows one
// concurrent writer).
//
// The Messages channel closes when the socket ends, however it ends.
// Writes before the start event or after close are silent no-ops.
type StreamConn struct {
	conn *websocket.Conn

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration

	msgs chan *Message
	done chan struct{}

	mu        sync.RWMutex
	streamSid string

	writeMu sync.Mutex
	alive   atomic.Bool
	once    sync.Once
	wg      sync.WaitGroup
}

// NewStreamConn wraps an upgraded WebSocket with default timing and starts
// its pumps.
func NewStreamConn(conn *websocket.Conn) *StreamConn {
	return NewStreamConnWithConfig(conn, DefaultConnConfig())
}

// NewStreamConnWithConfig wraps an upgraded WebSocket with custom timing.
// Zero durations fall back to the defaults.
func NewStreamConnWithConfig(conn *websocket.Conn, cfg ConnConfig) *StreamConn {
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = DefaultWriteWait
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = DefaultPongWait
	}
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = DefaultPingPeriod
	}

	c := &StreamConn{
		conn:       conn,
		writeWait:  cfg.WriteWait,
		pongWait:   cfg.PongWait,
		pingPeriod: cfg.PingPeriod,
		msgs:       make(chan *Message, 128),
		done:       make(chan struct{}),
	}
	c.alive.Store(true)

	c.wg.Add(1)
	go c.readPump()
	c.wg.Add(1)
	go c.pingPump()

	return c
}

// Messages returns the ordered inbound message channel. It closes when the
// socket ends.
func (c *StreamConn) Messages() <-chan *Message {
	return c.msgs
}

// StreamSid returns the stream identifier, empty until the start event
// arrives.
func (c *StreamConn) StreamSid() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.streamSid
}

// Alive reports whether the socket is still usable for writes.
func (c *StreamConn) Alive() bool {
	return c.alive.Load()
}

// Close shuts the socket down. Safe to call more than once and from any
// goroutine, including the pumps themselves.
func (c *StreamConn) Close() error {
	c.once.Do(func() {
		c.alive.Store(false)
		close(c.done)

		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		c.conn.Close()
	})
	return nil
}

// readPump decodes inbound frames in arrival order. Malformed JSON is
// dropped with a log line; media frames are dropped when the consumer lags,
// control events are never dropped.
func (c *StreamConn) readPump() {
	defer c.wg.Done()
	defer close(c.msgs)
	defer c.Close()

	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.alive.Load() && !websocket.IsCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[MediaSocket] read error: %v", err)
			}
			return
		}
		// Call audio flows continuously, so traffic resets the deadline too.
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait))

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[MediaSocket] dropping malformed frame: %v", err)
			continue
		}

		if msg.Event == EventStart && msg.Start != nil {
			c.mu.Lock()
			c.streamSid = msg.Start.StreamSid
			c.mu.Unlock()
		}

		c.forward(&msg)
	}
}

func (c *StreamConn) forward(msg *Message) {
	if msg.Event == EventMedia {
		select {
		case c.msgs <- msg:
		default:
			log.Printf("[MediaSocket] inbound queue full, dropping audio")
		}
		return
	}

	select {
	case c.msgs <- msg:
	case <-c.done:
	}
}

// pingPump keeps the socket alive while the call is quiet.
func (c *StreamConn) pingPump() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				log.Printf("[MediaSocket] ping failed: %v", err)
				c.Close()
				return
			}
		}
	}
}

// WriteMediaFrame sends one μ-law audio frame as a base64 media event.
func (c *StreamConn) WriteMediaFrame(frame []byte) error {
	sid := c.StreamSid()
	if sid == "" || !c.alive.Load() {
		return nil
	}

	return c.writeJSON(&Message{
		Event:     EventMedia,
		StreamSid: sid,
		Media: &MediaPayload{
			Payload: base64.StdEncoding.EncodeToString(frame),
		},
	})
}

// WriteMark sends a named playback checkpoint after queued audio.
func (c *StreamConn) WriteMark(name string) error {
	sid := c.StreamSid()
	if sid == "" || !c.alive.Load() {
		return nil
	}

	return c.writeJSON(&Message{
		Event:     EventMark,
		StreamSid: sid,
		Mark:      &MarkPayload{Name: name},
	})
}

// WriteClear tells the provider to drop any buffered outbound audio.
func (c *StreamConn) WriteClear() error {
	sid := c.StreamSid()
	if sid == "" || !c.alive.Load() {
		return nil
	}

	log.Printf("[MediaSocket] clearing buffered audio for stream %s", sid)
	return c.writeJSON(&Message{
		Event:     EventClear,
		StreamSid: sid,
	})
}

// writeJSON performs one synchronized write. A failed write means the
// socket is gone, so it also tears the connection down.
func (c *StreamConn) writeJSON(msg *Message) error {
	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	err := c.conn.WriteJSON(msg)
	c.writeMu.Unlock()

	if err != nil {
		log.Printf("[MediaSocket] write failed (%s): %v", msg.Event, err)
		c.Close()
	}
	return err
}
