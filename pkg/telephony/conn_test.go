package telephony

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

const startFrame = `{"event":"start","sequenceNumber":"1","streamSid":"MZ1234","start":{"accountSid":"AC42","streamSid":"MZ1234","callSid":"CA77","tracks":["inbound"],"mediaFormat":{"encoding":"audio/x-mulaw","sampleRate":8000,"channels":1},"customParameters":{"number":"+15551234567"}}}`

// newTestSocket upgrades an httptest connection and returns the server-side
// StreamConn alongside the raw client end.
func newTestSocket(t *testing.T) (*StreamConn, *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	conns := make(chan *StreamConn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		conns <- NewStreamConn(ws)
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case sc := <-conns:
		t.Cleanup(func() { sc.Close() })
		return sc, client
	case <-time.After(5 * time.Second):
		t.Fatal("server side never accepted")
		return nil, nil
	}
}

func recvMessage(t *testing.T, sc *StreamConn) *Message {
	t.Helper()
	select {
	case msg, ok := <-sc.Messages():
		if !ok {
			t.Fatal("message channel closed early")
		}
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for inbound message")
		return nil
	}
}

func clientRead(t *testing.T, client *websocket.Conn) *Message {
	t.Helper()
	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg Message
	if err := client.ReadJSON(&msg); err != nil {
		t.Fatalf("client read failed: %v", err)
	}
	return &msg
}

func TestStreamConnInboundOrder(t *testing.T) {
	sc, client := newTestSocket(t)

	frames := []string{
		`{"event":"connected","protocol":"Call","version":"1.0.0"}`,
		startFrame,
		`{"event":"media","streamSid":"MZ1234","media":{"track":"inbound","payload":"f4A="}}`,
		`{"event":"dtmf","streamSid":"MZ1234","dtmf":{"track":"inbound_track","digit":"5"}}`,
		`{"event":"stop","streamSid":"MZ1234","stop":{"accountSid":"AC42","callSid":"CA77"}}`,
	}
	for _, f := range frames {
		if err := client.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
			t.Fatalf("client write failed: %v", err)
		}
	}

	if got := recvMessage(t, sc).Event; got != EventConnected {
		t.Fatalf("expected connected, got %s", got)
	}

	start := recvMessage(t, sc)
	if start.Event != EventStart {
		t.Fatalf("expected start, got %s", start.Event)
	}
	if start.Start.CallSid != "CA77" {
		t.Errorf("expected call sid CA77, got %s", start.Start.CallSid)
	}
	if got := start.Start.CustomParameters["number"]; got != "+15551234567" {
		t.Errorf("expected number parameter, got %q", got)
	}
	if sc.StreamSid() != "MZ1234" {
		t.Errorf("stream sid not captured, got %q", sc.StreamSid())
	}

	media := recvMessage(t, sc)
	if media.Event != EventMedia {
		t.Fatalf("expected media, got %s", media.Event)
	}
	payload, err := base64.StdEncoding.DecodeString(media.Media.Payload)
	if err != nil || len(payload) != 2 || payload[0] != 0x7f || payload[1] != 0x80 {
		t.Errorf("unexpected media payload %q (err %v)", media.Media.Payload, err)
	}

	dtmf := recvMessage(t, sc)
	if dtmf.Event != EventDTMF || dtmf.DTMF.Digit != "5" {
		t.Errorf("unexpected dtmf message %+v", dtmf)
	}

	if got := recvMessage(t, sc).Event; got != EventStop {
		t.Fatalf("expected stop, got %s", got)
	}
}

func TestStreamConnDropsMalformedFrames(t *testing.T) {
	sc, client := newTestSocket(t)

	if err := client.WriteMessage(websocket.TextMessage, []byte(`{"event":`)); err != nil {
		t.Fatalf("client write failed: %v", err)
	}
	if err := client.WriteMessage(websocket.TextMessage, []byte(`{"event":"mark","mark":{"name":"ack-1"}}`)); err != nil {
		t.Fatalf("client write failed: %v", err)
	}

	msg := recvMessage(t, sc)
	if msg.Event != EventMark || msg.Mark.Name != "ack-1" {
		t.Fatalf("expected the mark after the malformed frame, got %+v", msg)
	}
}

func TestStreamConnWrites(t *testing.T) {
	sc, client := newTestSocket(t)

	if err := client.WriteMessage(websocket.TextMessage, []byte(startFrame)); err != nil {
		t.Fatalf("client write failed: %v", err)
	}
	recvMessage(t, sc) // consume start

	frame := []byte{0x00, 0x7f, 0xff, 0x80}
	if err := sc.WriteMediaFrame(frame); err != nil {
		t.Fatalf("WriteMediaFrame failed: %v", err)
	}
	media := clientRead(t, client)
	if media.Event != EventMedia || media.StreamSid != "MZ1234" {
		t.Fatalf("unexpected media message %+v", media)
	}
	decoded, err := base64.StdEncoding.DecodeString(media.Media.Payload)
	if err != nil {
		t.Fatalf("payload not base64: %v", err)
	}
	if string(decoded) != string(frame) {
		t.Errorf("payload round-trip mismatch: %v != %v", decoded, frame)
	}

	if err := sc.WriteMark("turn-3"); err != nil {
		t.Fatalf("WriteMark failed: %v", err)
	}
	mark := clientRead(t, client)
	if mark.Event != EventMark || mark.Mark.Name != "turn-3" || mark.StreamSid != "MZ1234" {
		t.Fatalf("unexpected mark message %+v", mark)
	}

	if err := sc.WriteClear(); err != nil {
		t.Fatalf("WriteClear failed: %v", err)
	}
	clearMsg := clientRead(t, client)
	if clearMsg.Event != EventClear || clearMsg.StreamSid != "MZ1234" {
		t.Fatalf("unexpected clear message %+v", clearMsg)
	}
}

func TestStreamConnWritesBeforeStartAreNoOps(t *testing.T) {
	sc, client := newTestSocket(t)

	if err := sc.WriteMediaFrame([]byte{0x00}); err != nil {
		t.Fatalf("pre-start write should be a no-op, got %v", err)
	}
	if err := sc.WriteMark("early"); err != nil {
		t.Fatalf("pre-start mark should be a no-op, got %v", err)
	}

	// The first frame the client sees must be the one written after start.
	if err := client.WriteMessage(websocket.TextMessage, []byte(startFrame)); err != nil {
		t.Fatalf("client write failed: %v", err)
	}
	recvMessage(t, sc)

	if err := sc.WriteMark("after-start"); err != nil {
		t.Fatalf("WriteMark failed: %v", err)
	}
	msg := clientRead(t, client)
	if msg.Event != EventMark || msg.Mark.Name != "after-start" {
		t.Fatalf("expected only the post-start mark, got %+v", msg)
	}
}

func TestStreamConnClose(t *testing.T) {
	sc, client := newTestSocket(t)

	if !sc.Alive() {
		t.Fatal("connection should start alive")
	}
	if err := sc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if sc.Alive() {
		t.Error("connection should not be alive after Close")
	}
	if err := sc.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}

	select {
	case _, ok := <-sc.Messages():
		if ok {
			t.Error("expected message channel to close without messages")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("message channel never closed")
	}

	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := client.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected a normal close frame, got %v", err)
	}
}

func TestStreamConnPeerDisconnect(t *testing.T) {
	sc, client := newTestSocket(t)

	client.Close()

	select {
	case _, ok := <-sc.Messages():
		if ok {
			t.Error("expected channel close, got a message")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("message channel never closed after peer disconnect")
	}
	if sc.Alive() {
		t.Error("connection should not report alive after peer disconnect")
	}
}
