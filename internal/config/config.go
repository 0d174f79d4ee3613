package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the callprobe service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	MaxConcurrentSessions int

	// Session timing.
	GreetingGrace    time.Duration
	SilenceWindow    time.Duration
	ResponseWatchdog time.Duration
	HardTimeout      time.Duration
	CloseDelay       time.Duration

	// Termination policy.
	MinTurnsBeforeFarewell int
	SoftWrapTurns          int

	// Synthetic caller brain.
	BrainMode    string
	BrainHTTPURL string
	BrainModel   string
	BrainAPIKey  string

	// Text to speech.
	TTSProvider        string
	ElevenLabsAPIKey   string
	ElevenLabsBaseURL  string
	ElevenLabsTTSVoice string
	ElevenLabsTTSModel string

	// Voice-agent providers under test. The API keys are server-side
	// defaults, used when a run request carries no credential of its own.
	RetellAPIKey  string
	RetellBaseURL string
	VapiAPIKey    string
	VapiBaseURL   string

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:              envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:      envOrDefault("APP_METRICS_NAMESPACE", "callprobe"),
		ShutdownTimeout:       15 * time.Second,
		MaxConcurrentSessions: 8,

		GreetingGrace:    3 * time.Second,
		SilenceWindow:    2750 * time.Millisecond,
		ResponseWatchdog: 30 * time.Second,
		HardTimeout:      3 * time.Minute,
		CloseDelay:       2 * time.Second,

		MinTurnsBeforeFarewell: 4,
		SoftWrapTurns:          8,

		BrainMode:    envOrDefault("BRAIN_MODE", "auto"),
		BrainHTTPURL: stringsTrimSpace("BRAIN_HTTP_URL"),
		BrainModel:   envOrDefault("BRAIN_MODEL", "gpt-4o-mini"),
		BrainAPIKey:  stringsTrimSpace("BRAIN_API_KEY"),

		TTSProvider:        envOrDefault("TTS_PROVIDER", "auto"),
		ElevenLabsAPIKey:   stringsTrimSpace("ELEVENLABS_API_KEY"),
		ElevenLabsBaseURL:  envOrDefault("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
		ElevenLabsTTSVoice: envOrDefault("ELEVENLABS_TTS_VOICE_ID", "cgSgspJ2msm6clMCkdW9"),
		ElevenLabsTTSModel: envOrDefault("ELEVENLABS_TTS_MODEL_ID", "eleven_multilingual_v2"),

		RetellAPIKey:  stringsTrimSpace("RETELL_API_KEY"),
		RetellBaseURL: envOrDefault("RETELL_BASE_URL", "https://api.retellai.com"),
		VapiAPIKey:    stringsTrimSpace("VAPI_API_KEY"),
		VapiBaseURL:   envOrDefault("VAPI_BASE_URL", "https://api.vapi.ai"),

		DatabaseURL: stringsTrimSpace("DATABASE_URL"),
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxConcurrentSessions, err = intFromEnv("APP_MAX_CONCURRENT_SESSIONS", cfg.MaxConcurrentSessions)
	if err != nil {
		return Config{}, err
	}
	cfg.GreetingGrace, err = durationFromEnv("SESSION_GREETING_GRACE", cfg.GreetingGrace)
	if err != nil {
		return Config{}, err
	}
	cfg.SilenceWindow, err = durationFromEnv("SESSION_SILENCE_WINDOW", cfg.SilenceWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.ResponseWatchdog, err = durationFromEnv("SESSION_RESPONSE_WATCHDOG", cfg.ResponseWatchdog)
	if err != nil {
		return Config{}, err
	}
	cfg.HardTimeout, err = durationFromEnv("SESSION_HARD_TIMEOUT", cfg.HardTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.CloseDelay, err = durationFromEnv("SESSION_CLOSE_DELAY", cfg.CloseDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.MinTurnsBeforeFarewell, err = intFromEnv("SESSION_MIN_TURNS", cfg.MinTurnsBeforeFarewell)
	if err != nil {
		return Config{}, err
	}
	cfg.SoftWrapTurns, err = intFromEnv("SESSION_SOFT_WRAP_TURNS", cfg.SoftWrapTurns)
	if err != nil {
		return Config{}, err
	}

	if cfg.MaxConcurrentSessions <= 0 {
		return Config{}, fmt.Errorf("APP_MAX_CONCURRENT_SESSIONS must be positive")
	}
	if cfg.SilenceWindow < 500*time.Millisecond {
		return Config{}, fmt.Errorf("SESSION_SILENCE_WINDOW must be at least 500ms")
	}
	if cfg.HardTimeout < 10*time.Second {
		return Config{}, fmt.Errorf("SESSION_HARD_TIMEOUT must be at least 10s")
	}
	if cfg.ResponseWatchdog <= cfg.SilenceWindow {
		return Config{}, fmt.Errorf("SESSION_RESPONSE_WATCHDOG must exceed SESSION_SILENCE_WINDOW")
	}
	if cfg.MinTurnsBeforeFarewell <= 0 {
		return Config{}, fmt.Errorf("SESSION_MIN_TURNS must be positive")
	}
	if cfg.SoftWrapTurns < cfg.MinTurnsBeforeFarewell {
		return Config{}, fmt.Errorf("SESSION_SOFT_WRAP_TURNS must be >= SESSION_MIN_TURNS")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}
