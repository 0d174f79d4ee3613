package signaling

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/dlanza/callprobe/internal/audio"
)

func TestVapiChannelLifecycle(t *testing.T) {
	type wireMsg struct {
		binary bool
		data   []byte
	}
	received := make(chan wireMsg, 8)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/call/agent-2/listen") {
			t.Errorf("path = %q, want /call/agent-2/listen suffix", r.URL.Path)
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		_ = conn.WriteJSON(map[string]any{
			"type":        "conversation.started",
			"callId":      "v1",
			"audioFormat": map[string]any{"encoding": "pcm16", "sampleRateHz": 16000},
		})
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{4, 5, 6})
		_ = conn.WriteJSON(map[string]any{"type": "transcript.delta", "channel": "assistant", "text": "hi there"})
		_ = conn.WriteJSON(map[string]any{"type": "heartbeat", "id": "hb1"})

		for i := 0; i < 2; i++ {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				t.Errorf("read client message: %v", err)
				return
			}
			received <- wireMsg{binary: msgType == websocket.BinaryMessage, data: data}
		}
		_ = conn.WriteJSON(map[string]any{"type": "call.ended", "endedReason": "assistant hung up"})
	}))
	defer srv.Close()

	c := NewVapiClient(VapiConfig{WSBaseURL: wsURL(srv)})
	h, err := c.OpenChannel(context.Background(), "agent-2", Credentials{APIKey: "key-2"})
	if err != nil {
		t.Fatalf("OpenChannel() error = %v", err)
	}
	defer h.Close()

	ev := nextEvent(t, h)
	if ev.Kind != KindChannelReady || ev.CallID != "v1" || ev.Format != audio.EncodingPCM16K {
		t.Fatalf("ready event = %+v", ev)
	}
	ev = nextEvent(t, h)
	if ev.Kind != KindAudioDelta || !bytes.Equal(ev.Audio, []byte{4, 5, 6}) {
		t.Fatalf("binary audio event = %+v", ev)
	}
	ev = nextEvent(t, h)
	if ev.Kind != KindTextDelta || ev.Role != RoleAgent || ev.Text != "hi there" {
		t.Fatalf("text event = %+v", ev)
	}
	ev = nextEvent(t, h)
	if ev.Kind != KindControlPing || ev.PingID != "hb1" {
		t.Fatalf("heartbeat event = %+v", ev)
	}

	if err := h.SendAudio(context.Background(), []byte{7, 7, 7}); err != nil {
		t.Fatalf("SendAudio() error = %v", err)
	}
	if err := h.SendPong(context.Background(), "hb1"); err != nil {
		t.Fatalf("SendPong() error = %v", err)
	}

	out := <-received
	if !out.binary || !bytes.Equal(out.data, []byte{7, 7, 7}) {
		t.Fatalf("outbound audio frame = %+v, want binary 07 07 07", out)
	}
	ack := <-received
	if ack.binary {
		t.Fatalf("heartbeat ack arrived as binary frame")
	}
	var parsed map[string]any
	if err := json.Unmarshal(ack.data, &parsed); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if parsed["type"] != "heartbeat.ack" || parsed["id"] != "hb1" {
		t.Fatalf("ack = %v", parsed)
	}

	ev = nextEvent(t, h)
	if ev.Kind != KindChannelClosed || ev.Code != CloseCodeNormal || ev.Reason != "assistant hung up" {
		t.Fatalf("closed event = %+v", ev)
	}
}

func TestVapiMuLawNegotiation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(map[string]any{
			"type":        "conversation.started",
			"callId":      "v2",
			"audioFormat": map[string]any{"encoding": "mulaw", "sampleRateHz": 8000},
		})
		_ = conn.WriteJSON(map[string]any{"type": "call.ended"})
	}))
	defer srv.Close()

	c := NewVapiClient(VapiConfig{WSBaseURL: wsURL(srv)})
	h, err := c.OpenChannel(context.Background(), "agent-3", Credentials{})
	if err != nil {
		t.Fatalf("OpenChannel() error = %v", err)
	}
	defer h.Close()

	ev := nextEvent(t, h)
	if ev.Format != audio.EncodingMuLaw8K {
		t.Fatalf("negotiated format = %q, want mu-law", ev.Format)
	}
	ev = nextEvent(t, h)
	if ev.Kind != KindChannelClosed || ev.Code != CloseCodeNormal {
		t.Fatalf("closed event = %+v, want normal close", ev)
	}
}
