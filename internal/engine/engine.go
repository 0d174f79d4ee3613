package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dlanza/callprobe/internal/audio"
	"github.com/dlanza/callprobe/internal/conversation"
	"github.com/dlanza/callprobe/internal/observability"
	"github.com/dlanza/callprobe/internal/recording"
	"github.com/dlanza/callprobe/internal/resultstore"
	"github.com/dlanza/callprobe/internal/signaling"
)

// Target names the third-party voice agent one run dials.
type Target struct {
	Provider    string                `json:"provider"`
	AgentID     string                `json:"agent_id"`
	Credentials signaling.Credentials `json:"-"`
}

// Config carries the engine-wide knobs.
type Config struct {
	MaxConcurrentSessions int
	Session               conversation.Config
	Signaling             signaling.Config
}

// Engine runs test conversations end to end: open channel, drive the session,
// assemble the recording, persist the result.
type Engine struct {
	cfg     Config
	gen     conversation.ReplyGenerator
	synth   conversation.Synthesizer
	store   resultstore.Store
	metrics *observability.Metrics
	window  *observability.LatencyWindow
	sem     chan struct{}
}

func New(cfg Config, gen conversation.ReplyGenerator, synth conversation.Synthesizer, store resultstore.Store, metrics *observability.Metrics, window *observability.LatencyWindow) *Engine {
	if cfg.MaxConcurrentSessions <= 0 {
		cfg.MaxConcurrentSessions = 8
	}
	return &Engine{
		cfg:     cfg,
		gen:     gen,
		synth:   synth,
		store:   store,
		metrics: metrics,
		window:  window,
		sem:     make(chan struct{}, cfg.MaxConcurrentSessions),
	}
}

// Run executes one test case against one target and returns its result. The
// returned error is non-nil only for setup failures; conversations that
// degrade mid-call still produce a Result.
func (e *Engine) Run(ctx context.Context, spec conversation.TestCaseSpec, target Target) (conversation.Result, error) {
	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return conversation.Result{}, ctx.Err()
	}

	if e.metrics != nil {
		e.metrics.ActiveSessions.Inc()
		defer e.metrics.ActiveSessions.Dec()
		e.metrics.SessionEvents.WithLabelValues("started").Inc()
	}

	client, err := signaling.NewClient(target.Provider, e.cfg.Signaling)
	if err != nil {
		return e.failSetup(ctx, spec, target, err)
	}
	handle, err := client.OpenChannel(ctx, target.AgentID, target.Credentials)
	if err != nil {
		if e.metrics != nil {
			e.metrics.ProviderErrors.WithLabelValues(target.Provider, "open_channel").Inc()
		}
		return e.failSetup(ctx, spec, target, fmt.Errorf("open channel: %w", err))
	}

	started := time.Now()
	res := conversation.Run(ctx, spec,
		instrumentedHandle{Handle: handle, window: e.window},
		instrumentedGenerator{inner: e.gen, window: e.window},
		instrumentedSynth{inner: e.synth, window: e.window},
		nil, e.cfg.Session)
	elapsed := time.Since(started)

	fetcher, _ := client.(signaling.RecordingFetcher)
	if wav, recErr := recording.AssembleWithProvider(ctx, fetcher, res.CallID, res.Segments); recErr == nil {
		res.Recording = wav
	}

	e.observeOutcome(target, res, elapsed)
	e.persist(ctx, spec, res)
	return res, nil
}

func (e *Engine) failSetup(ctx context.Context, spec conversation.TestCaseSpec, target Target, err error) (conversation.Result, error) {
	res := conversation.Result{
		CallID:  uuid.NewString(),
		Success: false,
		Error:   err.Error(),
	}
	if e.metrics != nil {
		e.metrics.SessionEvents.WithLabelValues("setup_failed").Inc()
	}
	e.persist(ctx, spec, res)
	return res, fmt.Errorf("run against %s/%s: %w", target.Provider, target.AgentID, err)
}

func (e *Engine) observeOutcome(target Target, res conversation.Result, elapsed time.Duration) {
	if e.metrics != nil {
		outcome := "succeeded"
		if !res.Success {
			outcome = "failed"
		}
		e.metrics.SessionEvents.WithLabelValues(outcome).Inc()
		e.metrics.TurnsPerCall.Observe(float64(len(res.Transcript)))
		e.metrics.ObserveCallDuration(elapsed)
		if res.Error != "" {
			e.metrics.ProviderErrors.WithLabelValues(target.Provider, "session").Inc()
		}
	}
	e.window.Observe(observability.StageCallTotal, elapsed)
	if !res.Success {
		e.window.ObserveIndicator("failed_call")
	}
}

func (e *Engine) persist(ctx context.Context, spec conversation.TestCaseSpec, res conversation.Result) {
	if e.store == nil {
		return
	}
	// Persistence is best effort; a result the store refuses is still returned
	// to the caller.
	_ = e.store.Save(ctx, resultstore.Record{
		ID:         uuid.NewString(),
		TestCaseID: spec.ID,
		Result:     res,
	})
}

// instrumentedGenerator times each brain call.
type instrumentedGenerator struct {
	inner  conversation.ReplyGenerator
	window *observability.LatencyWindow
}

func (g instrumentedGenerator) GenerateReply(ctx context.Context, spec conversation.TestCaseSpec, history []conversation.Turn, mode conversation.ReplyMode) (string, error) {
	started := time.Now()
	text, err := g.inner.GenerateReply(ctx, spec, history, mode)
	g.window.Observe(observability.StageReplyGenerate, time.Since(started))
	if err != nil {
		g.window.ObserveIndicator("fallback_reply")
	}
	return text, err
}

// instrumentedSynth times each TTS render.
type instrumentedSynth struct {
	inner  conversation.Synthesizer
	window *observability.LatencyWindow
}

func (s instrumentedSynth) Synthesize(ctx context.Context, text string, enc audio.Encoding) ([]byte, error) {
	if s.inner == nil {
		return nil, nil
	}
	started := time.Now()
	b, err := s.inner.Synthesize(ctx, text, enc)
	s.window.Observe(observability.StageReplySynth, time.Since(started))
	return b, err
}

// instrumentedHandle times outbound frame writes.
type instrumentedHandle struct {
	signaling.Handle
	window *observability.LatencyWindow
}

func (h instrumentedHandle) SendAudio(ctx context.Context, frame []byte) error {
	started := time.Now()
	err := h.Handle.SendAudio(ctx, frame)
	h.window.Observe(observability.StageReplySend, time.Since(started))
	return err
}
