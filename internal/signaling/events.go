package signaling

import (
	"context"

	"github.com/dlanza/callprobe/internal/audio"
)

// Role identifies which party produced a piece of conversation content.
type Role string

const (
	RoleAgent      Role = "ai_agent"
	RoleTestCaller Role = "test_caller"
)

// EventKind enumerates the closed set of abstract channel events. Every
// provider adapter reduces its concrete message set to these five kinds.
type EventKind string

const (
	KindChannelReady  EventKind = "channel_ready"
	KindTextDelta     EventKind = "text_delta"
	KindAudioDelta    EventKind = "audio_delta"
	KindControlPing   EventKind = "control_ping"
	KindChannelClosed EventKind = "channel_closed"
)

// CloseCodeNormal marks an orderly remote hangup. Anything else on a
// channel_closed event is a transport-level failure.
const CloseCodeNormal = 1000

// Event is the tagged union delivered by a channel handle. Only the fields
// for the given Kind are populated.
type Event struct {
	Kind EventKind

	// channel_ready
	CallID string
	Format audio.Encoding

	// text_delta / audio_delta
	Role  Role
	Text  string
	Audio []byte

	// control_ping
	PingID string

	// channel_closed
	Code   int
	Reason string
}

// Handle is one live duplex channel to a third-party voice agent.
type Handle interface {
	// Events delivers normalized channel events. The channel is closed after
	// the terminal channel_closed event.
	Events() <-chan Event
	// SendAudio writes one outbound audio frame in the negotiated encoding.
	SendAudio(ctx context.Context, frame []byte) error
	// SendPong answers a control_ping.
	SendPong(ctx context.Context, pingID string) error
	Close() error
}

// Credentials carries provider connection secrets supplied by the caller.
type Credentials struct {
	APIKey  string
	BaseURL string
}

// Client opens live channels against one provider. Setup failures reject the
// open call; mid-session transport failures surface as channel_closed events.
type Client interface {
	OpenChannel(ctx context.Context, agentID string, creds Credentials) (Handle, error)
}

// RecordingFetcher is implemented by providers that host a higher-fidelity
// call recording retrievable after the call.
type RecordingFetcher interface {
	FetchRecording(ctx context.Context, callID string) ([]byte, error)
}
