package signaling

import (
	"context"
	"sync"

	"github.com/dlanza/callprobe/internal/audio"
)

// MockClient hands out scripted in-process channels. It backs tests and the
// local dev path when no provider credentials are configured.
type MockClient struct {
	mu      sync.Mutex
	handles []*MockHandle
}

func NewMockClient() *MockClient { return &MockClient{} }

func (c *MockClient) OpenChannel(_ context.Context, agentID string, _ Credentials) (Handle, error) {
	h := NewMockHandle()
	c.mu.Lock()
	c.handles = append(c.handles, h)
	c.mu.Unlock()
	h.EmitReady("mock-"+agentID, audio.EncodingMuLaw8K)
	return h, nil
}

// Handles returns every channel opened so far, in order.
func (c *MockClient) Handles() []*MockHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*MockHandle, len(c.handles))
	copy(out, c.handles)
	return out
}

// MockHandle is a scriptable channel: tests emit inbound events and inspect
// what the session sent.
type MockHandle struct {
	mu         sync.Mutex
	events     chan Event
	sentAudio  [][]byte
	pongs      []string
	closed     bool
	closeCalls int
}

func NewMockHandle() *MockHandle {
	return &MockHandle{events: make(chan Event, 256)}
}

func (h *MockHandle) Events() <-chan Event { return h.events }

func (h *MockHandle) SendAudio(_ context.Context, frame []byte) error {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sentAudio = append(h.sentAudio, cp)
	return nil
}

func (h *MockHandle) SendPong(_ context.Context, pingID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pongs = append(h.pongs, pingID)
	return nil
}

func (h *MockHandle) Close() error {
	h.mu.Lock()
	h.closeCalls++
	h.mu.Unlock()
	h.EmitClosed(CloseCodeNormal, "local close")
	return nil
}

// CloseCalls returns how many times Close has been invoked.
func (h *MockHandle) CloseCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closeCalls
}

func (h *MockHandle) EmitReady(callID string, format audio.Encoding) {
	h.emit(Event{Kind: KindChannelReady, CallID: callID, Format: format})
}

func (h *MockHandle) EmitTextDelta(role Role, text string) {
	h.emit(Event{Kind: KindTextDelta, Role: role, Text: text})
}

func (h *MockHandle) EmitAudioDelta(role Role, raw []byte) {
	cp := make([]byte, len(raw))
	copy(cp, raw)
	h.emit(Event{Kind: KindAudioDelta, Role: role, Audio: cp})
}

func (h *MockHandle) EmitPing(id string) {
	h.emit(Event{Kind: KindControlPing, PingID: id})
}

func (h *MockHandle) EmitClosed(code int, reason string) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()
	h.events <- Event{Kind: KindChannelClosed, Code: code, Reason: reason}
	close(h.events)
}

// SentAudio returns the outbound frames recorded so far.
func (h *MockHandle) SentAudio() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([][]byte, len(h.sentAudio))
	copy(out, h.sentAudio)
	return out
}

// Pongs returns the ping ids answered so far.
func (h *MockHandle) Pongs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.pongs))
	copy(out, h.pongs)
	return out
}

func (h *MockHandle) emit(ev Event) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return
	}
	h.events <- ev
}
