package signaling

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dlanza/callprobe/internal/audio"
)

// RetellConfig configures the Retell signaling adapter.
type RetellConfig struct {
	WSBaseURL   string
	APIBaseURL  string
	DialTimeout time.Duration
}

// RetellClient speaks Retell's audio websocket protocol: mu-law 8 kHz frames
// carried base64 in JSON envelopes keyed by an "event" field.
type RetellClient struct {
	cfg  RetellConfig
	http *http.Client
}

func NewRetellClient(cfg RetellConfig) *RetellClient {
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = "wss://api.retellai.com"
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		cfg.APIBaseURL = "https://api.retellai.com"
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 15 * time.Second
	}
	return &RetellClient{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *RetellClient) OpenChannel(ctx context.Context, agentID string, creds Credentials) (Handle, error) {
	base := c.cfg.WSBaseURL
	if strings.TrimSpace(creds.BaseURL) != "" {
		base = creds.BaseURL
	}
	u, err := url.Parse(strings.TrimRight(base, "/") + "/audio-websocket/" + url.PathEscape(agentID))
	if err != nil {
		return nil, fmt.Errorf("retell channel url: %w", err)
	}
	q := u.Query()
	q.Set("enable_update", "true")
	q.Set("sample_rate", "8000")
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+creds.APIKey)

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, u.String(), headers)
	if err != nil {
		return nil, fmt.Errorf("dial retell websocket: %w", err)
	}

	h := &retellHandle{conn: conn, events: make(chan Event, 256)}
	go h.readLoop()
	return h, nil
}

// FetchRecording retrieves the provider-hosted call recording, when Retell
// has one ready. The assembler prefers this over locally captured segments.
func (c *RetellClient) FetchRecording(ctx context.Context, callID string) ([]byte, error) {
	u := strings.TrimRight(c.cfg.APIBaseURL, "/") + "/v2/get-call/" + url.PathEscape(callID) + "/recording"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch retell recording: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("retell recording status %d", res.StatusCode)
	}
	return io.ReadAll(io.LimitReader(res.Body, 64<<20))
}

type retellHandle struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	events    chan Event
}

type retellMessage struct {
	Event string `json:"event"`

	Call struct {
		CallID        string `json:"call_id"`
		AudioEncoding string `json:"audio_encoding"`
		SampleRate    int    `json:"sample_rate"`
	} `json:"call"`

	Role    string `json:"role"`
	Content string `json:"content"`
	Audio   string `json:"audio"`
	PingID  string `json:"ping_id"`
	Code    int    `json:"code"`
	Reason  string `json:"reason"`
}

func (h *retellHandle) readLoop() {
	defer h.shutdown(websocket.CloseAbnormalClosure, "transport closed")
	for {
		_, data, err := h.conn.ReadMessage()
		if err != nil {
			code, reason := closeCodeFromError(err)
			h.shutdown(code, reason)
			return
		}
		var msg retellMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Event {
		case "call_details":
			h.events <- Event{
				Kind:   KindChannelReady,
				CallID: msg.Call.CallID,
				Format: audio.EncodingMuLaw8K,
			}
		case "response_text", "update":
			if strings.TrimSpace(msg.Content) == "" {
				continue
			}
			role := RoleAgent
			if msg.Role == "user" {
				role = RoleTestCaller
			}
			h.events <- Event{Kind: KindTextDelta, Role: role, Text: msg.Content}
		case "response_audio":
			raw, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil || len(raw) == 0 {
				continue
			}
			h.events <- Event{Kind: KindAudioDelta, Role: RoleAgent, Audio: raw}
		case "ping":
			h.events <- Event{Kind: KindControlPing, PingID: msg.PingID}
		case "call_ended":
			code := msg.Code
			if code == 0 {
				code = CloseCodeNormal
			}
			h.shutdown(code, msg.Reason)
			return
		default:
			// Unknown provider events are ignored rather than failing the call.
		}
	}
}

func (h *retellHandle) Events() <-chan Event { return h.events }

func (h *retellHandle) SendAudio(_ context.Context, frame []byte) error {
	return h.writeJSON(map[string]any{
		"event": "audio",
		"audio": base64.StdEncoding.EncodeToString(frame),
	})
}

func (h *retellHandle) SendPong(_ context.Context, pingID string) error {
	return h.writeJSON(map[string]any{
		"event":   "pong",
		"ping_id": pingID,
	})
}

func (h *retellHandle) Close() error {
	var retErr error
	h.closeOnce.Do(func() {
		retErr = h.conn.Close()
		h.events <- Event{Kind: KindChannelClosed, Code: CloseCodeNormal, Reason: "local close"}
		close(h.events)
	})
	return retErr
}

func (h *retellHandle) shutdown(code int, reason string) {
	h.closeOnce.Do(func() {
		_ = h.conn.Close()
		h.events <- Event{Kind: KindChannelClosed, Code: code, Reason: reason}
		close(h.events)
	})
}

func (h *retellHandle) writeJSON(payload map[string]any) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	return h.conn.WriteJSON(payload)
}

func closeCodeFromError(err error) (int, string) {
	if ce, ok := err.(*websocket.CloseError); ok {
		return ce.Code, ce.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}
