package conversation

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dlanza/callprobe/internal/audio"
	"github.com/dlanza/callprobe/internal/reliability"
	"github.com/dlanza/callprobe/internal/signaling"
)

// State tags the turn-taking machine. Transitions happen only on the session
// goroutine, driven by channel events and timer firings.
type State string

const (
	StateConnecting       State = "connecting"
	StateAwaitingGreeting State = "awaiting_greeting"
	StateListening        State = "listening_to_agent"
	StateProcessing       State = "processing_agent_turn"
	StateAwaitingReply    State = "awaiting_caller_reply"
	StateSendingAudio     State = "sending_caller_audio"
	StateClosing          State = "closing"
	StateFinalized        State = "finalized"
)

// Config carries the timer windows and policies for one session.
type Config struct {
	// GreetingGrace is how long to wait for the agent to speak first before
	// probing a silent agent with a neutral opener.
	GreetingGrace time.Duration
	// SilenceWindow is the inter-delta quiet period that marks the end of an
	// agent turn. Every inbound delta re-arms it.
	SilenceWindow time.Duration
	// ResponseWatchdog bounds how long the agent may stay silent after our
	// reply before the call is forced closed.
	ResponseWatchdog time.Duration
	// HardTimeout caps the whole session.
	HardTimeout time.Duration
	// CloseDelay lets the goodbye audio drain before the channel is closed.
	CloseDelay time.Duration

	Policy Policy
	Pacer  audio.Pacer
}

// DefaultConfig returns the production timer windows.
func DefaultConfig() Config {
	return Config{
		GreetingGrace:    3 * time.Second,
		SilenceWindow:    2750 * time.Millisecond,
		ResponseWatchdog: 30 * time.Second,
		HardTimeout:      3 * time.Minute,
		CloseDelay:       2 * time.Second,
		Policy:           DefaultPolicy(),
		Pacer:            audio.DefaultPacer(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.GreetingGrace <= 0 {
		c.GreetingGrace = d.GreetingGrace
	}
	if c.SilenceWindow <= 0 {
		c.SilenceWindow = d.SilenceWindow
	}
	if c.ResponseWatchdog <= 0 {
		c.ResponseWatchdog = d.ResponseWatchdog
	}
	if c.HardTimeout <= 0 {
		c.HardTimeout = d.HardTimeout
	}
	if c.CloseDelay <= 0 {
		c.CloseDelay = d.CloseDelay
	}
	c.Policy = c.Policy.withDefaults()
	return c
}

type replyOutcome struct {
	mode  ReplyMode
	text  string
	audio []byte
}

type sendOutcome struct {
	mode ReplyMode
	err  error
}

// Session is the aggregate holding one live test conversation. It is created
// when the channel opens and destroyed into a Result exactly once.
type Session struct {
	spec    TestCaseSpec
	channel signaling.Handle
	gen     ReplyGenerator
	synth   Synthesizer
	clock   Clock
	cfg     Config

	ctx    context.Context
	cancel context.CancelFunc

	callID    string
	state     State
	format    audio.Encoding
	startedAt time.Time

	transcript  []Turn
	segments    []AudioSegment
	callerTurns int

	pendingText    strings.Builder
	pendingAudio   bytes.Buffer
	pendingFirstAt time.Time
	pendingLastAt  time.Time

	// busy is the in-flight guard: at most one generate-and-send cycle per
	// session, so near-simultaneous silence firings cannot double-invoke the
	// brain for the same turn.
	busy bool

	replyCh  chan replyOutcome
	sentCh   chan sendOutcome
	loopDone chan struct{}

	greeting   Timer
	silence    Timer
	watchdog   Timer
	closeDelay Timer
	hard       Timer

	closedReason string
	abnormal     bool
}

// Run drives one full test conversation over an open channel and returns its
// Result. It blocks until the session is finalized.
func Run(ctx context.Context, spec TestCaseSpec, ch signaling.Handle, gen ReplyGenerator, synth Synthesizer, clk Clock, cfg Config) Result {
	if clk == nil {
		clk = RealClock()
	}
	sessCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		spec:     spec,
		channel:  ch,
		gen:      gen,
		synth:    synth,
		clock:    clk,
		cfg:      cfg.withDefaults(),
		ctx:      sessCtx,
		cancel:   cancel,
		callID:   uuid.NewString(),
		state:    StateConnecting,
		format:   audio.EncodingMuLaw8K,
		replyCh:  make(chan replyOutcome, 4),
		sentCh:   make(chan sendOutcome, 4),
		loopDone: make(chan struct{}),
	}
	defer cancel()
	return s.run()
}

func (s *Session) run() Result {
	s.startedAt = s.clock.Now()

	s.hard = s.clock.NewTimer(s.cfg.HardTimeout)
	s.greeting = s.newStoppedTimer()
	s.silence = s.newStoppedTimer()
	s.watchdog = s.newStoppedTimer()
	s.closeDelay = s.newStoppedTimer()
	defer close(s.loopDone)

	for {
		select {
		case ev, ok := <-s.channel.Events():
			if !ok {
				return s.finalize("channel stream ended", true)
			}
			if res, done := s.handleEvent(ev); done {
				return res
			}
		case r := <-s.replyCh:
			s.onReplyReady(r)
		case r := <-s.sentCh:
			s.onSendDone(r)
		case <-s.greeting.C():
			s.onGreetingGrace()
		case <-s.silence.C():
			s.onSilence()
		case <-s.watchdog.C():
			// Agent never responded to our reply; force the wind-down.
			s.state = StateClosing
			_ = s.channel.Close()
		case <-s.closeDelay.C():
			_ = s.channel.Close()
		case <-s.hard.C():
			return s.finalize("hard session timeout", false)
		case <-s.ctx.Done():
			return s.finalize("cancelled", false)
		}
	}
}

func (s *Session) handleEvent(ev signaling.Event) (Result, bool) {
	switch ev.Kind {
	case signaling.KindChannelReady:
		// Duplicate ready events are tolerated; only the first applies.
		if s.state != StateConnecting {
			return Result{}, false
		}
		if ev.CallID != "" {
			s.callID = ev.CallID
		}
		if ev.Format != "" {
			s.format = ev.Format
		}
		s.state = StateAwaitingGreeting
		s.greeting.Reset(s.cfg.GreetingGrace)

	case signaling.KindTextDelta:
		if ev.Role != signaling.RoleAgent || strings.TrimSpace(ev.Text) == "" {
			return Result{}, false
		}
		s.onAgentDelta(func() {
			if s.pendingText.Len() > 0 {
				s.pendingText.WriteByte(' ')
			}
			s.pendingText.WriteString(strings.TrimSpace(ev.Text))
		})

	case signaling.KindAudioDelta:
		if ev.Role != signaling.RoleAgent || len(ev.Audio) == 0 {
			return Result{}, false
		}
		s.onAgentDelta(func() {
			s.pendingAudio.Write(ev.Audio)
		})

	case signaling.KindControlPing:
		_ = s.channel.SendPong(s.ctx, ev.PingID)

	case signaling.KindChannelClosed:
		return s.finalize(ev.Reason, reliability.IsAbnormalCloseCode(ev.Code)), true
	}
	return Result{}, false
}

// onAgentDelta appends to the pending turn buffers and re-arms the silence
// timer, the sole end-of-agent-speech heuristic.
func (s *Session) onAgentDelta(apply func()) {
	now := s.clock.Now()
	if s.pendingText.Len() == 0 && s.pendingAudio.Len() == 0 {
		s.pendingFirstAt = now
	}
	s.pendingLastAt = now
	apply()

	s.greeting.Stop()
	if s.state == StateAwaitingGreeting {
		s.state = StateListening
	}
	s.silence.Reset(s.cfg.SilenceWindow)
}

// onGreetingGrace probes a silent agent with a neutral opener.
func (s *Session) onGreetingGrace() {
	if s.state != StateAwaitingGreeting || s.busy {
		return
	}
	if len(s.transcript) > 0 || s.pendingText.Len() > 0 || s.pendingAudio.Len() > 0 {
		return
	}
	s.state = StateListening
	s.startCallerReply(ReplyModeNormal, FallbackLine(s.spec, 0))
}

// onSilence flushes the buffered agent turn and decides whether to reply or
// wind the call down.
func (s *Session) onSilence() {
	if s.busy || s.state == StateFinalized || s.state == StateClosing {
		return
	}
	if s.pendingText.Len() == 0 && s.pendingAudio.Len() == 0 {
		return
	}

	s.state = StateProcessing
	turn := s.flushAgentTurn()

	if s.cfg.Policy.ShouldEnd(turn.Content, len(s.transcript)) {
		s.startCallerReply(ReplyModeClosing, "")
		return
	}
	s.startCallerReply(ReplyModeNormal, "")
}

// flushAgentTurn converts the pending buffers into a transcript turn and an
// agent audio segment.
func (s *Session) flushAgentTurn() Turn {
	content := strings.TrimSpace(s.pendingText.String())
	if content == "" {
		content = "[agent audio]"
	}
	turn := Turn{
		Role:        signaling.RoleAgent,
		Content:     content,
		TimestampMs: s.sinceStartMs(s.pendingFirstAt),
		DurationMs:  s.pendingLastAt.Sub(s.pendingFirstAt).Milliseconds(),
	}
	s.transcript = append(s.transcript, turn)

	if s.pendingAudio.Len() > 0 {
		raw := make([]byte, s.pendingAudio.Len())
		copy(raw, s.pendingAudio.Bytes())
		s.segments = append(s.segments, AudioSegment{
			Role:     signaling.RoleAgent,
			Raw:      raw,
			Encoding: s.format,
		})
	}

	s.pendingText.Reset()
	s.pendingAudio.Reset()
	s.pendingFirstAt = time.Time{}
	s.pendingLastAt = time.Time{}
	return turn
}

// startCallerReply launches the single in-flight generate-then-send cycle.
// When precomputed is non-empty the generator is skipped.
func (s *Session) startCallerReply(mode ReplyMode, precomputed string) {
	s.busy = true
	s.watchdog.Stop()
	if mode == ReplyModeClosing {
		s.state = StateClosing
	} else {
		s.state = StateAwaitingReply
	}

	history := make([]Turn, len(s.transcript))
	copy(history, s.transcript)
	turnIdx := s.callerTurns

	go func() {
		text := strings.TrimSpace(precomputed)
		if text == "" {
			generated, err := s.gen.GenerateReply(s.ctx, s.spec, history, mode)
			generated = strings.TrimSpace(generated)
			switch {
			case err == nil && generated != "":
				text = generated
			case mode == ReplyModeClosing:
				text = FarewellLine()
			default:
				text = FallbackLine(s.spec, turnIdx)
			}
		}

		var rendered []byte
		if s.synth != nil {
			// TTS failures are recoverable: the turn is still recorded, just
			// without outbound audio.
			if b, err := s.synth.Synthesize(s.ctx, text, s.format); err == nil {
				rendered = b
			}
		}

		select {
		case s.replyCh <- replyOutcome{mode: mode, text: text, audio: rendered}:
		case <-s.loopDone:
		}
	}()
}

func (s *Session) onReplyReady(r replyOutcome) {
	if s.state == StateFinalized {
		return
	}
	now := s.clock.Now()
	turn := Turn{
		Role:        signaling.RoleTestCaller,
		Content:     r.text,
		TimestampMs: s.sinceStartMs(now),
	}
	if len(r.audio) > 0 {
		turn.DurationMs = int64(float64(len(r.audio)) / float64(s.format.BytesPerSecond()) * 1000)
	}
	s.transcript = append(s.transcript, turn)
	s.callerTurns++

	if len(r.audio) > 0 {
		s.segments = append(s.segments, AudioSegment{
			Role:     signaling.RoleTestCaller,
			Raw:      r.audio,
			Encoding: s.format,
		})
	}

	if r.mode != ReplyModeClosing {
		s.state = StateSendingAudio
	}

	go func(mode ReplyMode, rendered []byte) {
		var sendErr error
		if len(rendered) > 0 {
			sendErr = s.cfg.Pacer.Send(s.ctx, s.format, rendered, func(frame []byte) error {
				return s.channel.SendAudio(s.ctx, frame)
			})
		}
		select {
		case s.sentCh <- sendOutcome{mode: mode, err: sendErr}:
		case <-s.loopDone:
		}
	}(r.mode, r.audio)
}

func (s *Session) onSendDone(r sendOutcome) {
	if s.state == StateFinalized {
		return
	}
	s.busy = false

	if r.mode == ReplyModeClosing {
		// Leave the channel open briefly so the goodbye audio is delivered.
		s.state = StateClosing
		s.closeDelay.Reset(s.cfg.CloseDelay)
		return
	}

	s.state = StateListening
	s.watchdog.Reset(s.cfg.ResponseWatchdog)
	// Deltas that arrived while we were replying still need a turn boundary.
	if s.pendingText.Len() > 0 || s.pendingAudio.Len() > 0 {
		s.silence.Reset(s.cfg.SilenceWindow)
	}
}

// finalize destroys the session into its Result. It runs at most once; all
// timers are voided and late async results are discarded by state checks.
func (s *Session) finalize(reason string, abnormal bool) Result {
	if s.state == StateFinalized {
		return Result{}
	}
	s.state = StateFinalized
	s.closedReason = strings.TrimSpace(reason)
	s.abnormal = abnormal
	s.cancel()

	s.greeting.Stop()
	s.silence.Stop()
	s.watchdog.Stop()
	s.closeDelay.Stop()
	s.hard.Stop()

	// Hang up the transport; adapter Close is idempotent on the paths where
	// the remote side already went away.
	_ = s.channel.Close()

	if s.pendingText.Len() > 0 || s.pendingAudio.Len() > 0 {
		s.flushAgentTurn()
	}
	// Never leave the transcript agent-only: if the agent got no reply to its
	// last utterance, close it out with a scripted caller line.
	if n := len(s.transcript); n > 0 && s.transcript[n-1].Role == signaling.RoleAgent {
		s.transcript = append(s.transcript, Turn{
			Role:        signaling.RoleTestCaller,
			Content:     FarewellLine(),
			TimestampMs: s.sinceStartMs(s.clock.Now()),
		})
		s.callerTurns++
	}

	res := Result{
		CallID:                   s.callID,
		DurationMs:               s.sinceStartMs(s.clock.Now()),
		Transcript:               s.transcript,
		AgentTranscriptText:      joinRole(s.transcript, signaling.RoleAgent),
		TestCallerTranscriptText: joinRole(s.transcript, signaling.RoleTestCaller),
		Success:                  len(s.transcript) > 0,
		Segments:                 s.segments,
	}
	if !res.Success && s.abnormal && s.closedReason != "" {
		res.Error = s.closedReason
	}
	return res
}

func (s *Session) sinceStartMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	d := t.Sub(s.startedAt)
	if d < 0 {
		return 0
	}
	return d.Milliseconds()
}

func (s *Session) newStoppedTimer() Timer {
	t := s.clock.NewTimer(time.Hour)
	t.Stop()
	return t
}

func joinRole(transcript []Turn, role signaling.Role) string {
	var b strings.Builder
	for _, t := range transcript {
		if t.Role != role {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(t.Content)
	}
	return b.String()
}
