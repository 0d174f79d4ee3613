package signaling

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dlanza/callprobe/internal/audio"
)

// VapiConfig configures the Vapi signaling adapter.
type VapiConfig struct {
	WSBaseURL   string
	DialTimeout time.Duration
}

// VapiClient speaks Vapi's live-listen protocol: 16 kHz PCM16 audio, JSON
// control messages keyed by a "type" field, binary websocket frames inbound
// and outbound for audio.
type VapiClient struct {
	cfg VapiConfig
}

func NewVapiClient(cfg VapiConfig) *VapiClient {
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = "wss://api.vapi.ai"
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 15 * time.Second
	}
	return &VapiClient{cfg: cfg}
}

func (c *VapiClient) OpenChannel(ctx context.Context, agentID string, creds Credentials) (Handle, error) {
	base := c.cfg.WSBaseURL
	if strings.TrimSpace(creds.BaseURL) != "" {
		base = creds.BaseURL
	}
	u, err := url.Parse(strings.TrimRight(base, "/") + "/call/" + url.PathEscape(agentID) + "/listen")
	if err != nil {
		return nil, fmt.Errorf("vapi channel url: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+creds.APIKey)

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, u.String(), headers)
	if err != nil {
		return nil, fmt.Errorf("dial vapi websocket: %w", err)
	}

	h := &vapiHandle{conn: conn, events: make(chan Event, 256)}
	go h.readLoop()
	return h, nil
}

type vapiHandle struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	events    chan Event
}

type vapiMessage struct {
	Type   string `json:"type"`
	CallID string `json:"callId"`

	AudioFormat struct {
		Encoding     string `json:"encoding"`
		SampleRateHz int    `json:"sampleRateHz"`
	} `json:"audioFormat"`

	Channel string `json:"channel"`
	Text    string `json:"text"`
	Chunk   string `json:"chunk"`

	ID          string `json:"id"`
	EndedReason string `json:"endedReason"`
	Code        int    `json:"code"`
}

func (h *vapiHandle) readLoop() {
	defer h.shutdown(websocket.CloseAbnormalClosure, "transport closed")
	for {
		msgType, data, err := h.conn.ReadMessage()
		if err != nil {
			code, reason := closeCodeFromError(err)
			h.shutdown(code, reason)
			return
		}
		// Vapi sends raw agent audio as binary frames.
		if msgType == websocket.BinaryMessage {
			if len(data) == 0 {
				continue
			}
			frame := make([]byte, len(data))
			copy(frame, data)
			h.events <- Event{Kind: KindAudioDelta, Role: RoleAgent, Audio: frame}
			continue
		}

		var msg vapiMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "conversation.started":
			format := audio.EncodingPCM16K
			if strings.EqualFold(msg.AudioFormat.Encoding, "mulaw") || msg.AudioFormat.SampleRateHz == 8000 {
				format = audio.EncodingMuLaw8K
			}
			h.events <- Event{Kind: KindChannelReady, CallID: msg.CallID, Format: format}
		case "transcript.delta":
			if strings.TrimSpace(msg.Text) == "" {
				continue
			}
			role := RoleAgent
			if msg.Channel == "customer" || msg.Channel == "user" {
				role = RoleTestCaller
			}
			h.events <- Event{Kind: KindTextDelta, Role: role, Text: msg.Text}
		case "audio.delta":
			raw, err := base64.StdEncoding.DecodeString(msg.Chunk)
			if err != nil || len(raw) == 0 {
				continue
			}
			h.events <- Event{Kind: KindAudioDelta, Role: RoleAgent, Audio: raw}
		case "heartbeat":
			h.events <- Event{Kind: KindControlPing, PingID: msg.ID}
		case "call.ended":
			code := msg.Code
			if code == 0 {
				code = CloseCodeNormal
			}
			h.shutdown(code, msg.EndedReason)
			return
		default:
		}
	}
}

func (h *vapiHandle) Events() <-chan Event { return h.events }

func (h *vapiHandle) SendAudio(_ context.Context, frame []byte) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	return h.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (h *vapiHandle) SendPong(_ context.Context, pingID string) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	return h.conn.WriteJSON(map[string]any{
		"type": "heartbeat.ack",
		"id":   pingID,
	})
}

func (h *vapiHandle) Close() error {
	var retErr error
	h.closeOnce.Do(func() {
		retErr = h.conn.Close()
		h.events <- Event{Kind: KindChannelClosed, Code: CloseCodeNormal, Reason: "local close"}
		close(h.events)
	})
	return retErr
}

func (h *vapiHandle) shutdown(code int, reason string) {
	h.closeOnce.Do(func() {
		_ = h.conn.Close()
		h.events <- Event{Kind: KindChannelClosed, Code: code, Reason: reason}
		close(h.events)
	})
}
