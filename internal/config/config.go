package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Speech provider names accepted by ASSISTCTL_SPEECH_PROVIDER.
const (
	SpeechProviderDeepgram = "deepgram"
	SpeechProviderStdin    = "stdin"
	SpeechProviderNone     = "none"
)

// Config stores runtime configuration for the console.
type Config struct {
	Remote   RemoteConfig
	Voice    VoiceConfig
	Deepgram DeepgramConfig
	Audio    AudioConfig
	Log      LogConfig
}

type RemoteConfig struct {
	URL                        string
	ReconnectInterval          time.Duration
	RetryOnConstructionFailure bool
	HandshakeTimeout           time.Duration
}

type VoiceConfig struct {
	Enabled          bool
	Provider         string
	KeywordsPath     string
	CorrectionsPath  string
	DebounceInterval time.Duration
	RestartDelay     time.Duration
	Language         string
}

type DeepgramConfig struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	SmartFormat bool
	Endpointing int
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
	ChunkSize       int
}

type LogConfig struct {
	Level string
	File  string
}

// Load resolves configuration from environment variables and sensible defaults.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	keywordsPath := envOrDefault("ASSISTCTL_KEYWORDS_FILE", filepath.Join(home, ".config", "assistctl", "keywords.yaml"))
	correctionsPath := envOrDefault("ASSISTCTL_CORRECTIONS_FILE", filepath.Join(home, ".config", "assistctl", "corrections.rules"))

	cfg := Config{
		Remote: RemoteConfig{
			URL:                        envOrDefault("ASSISTCTL_REMOTE_URL", "ws://localhost:8000/ws"),
			ReconnectInterval:          envMillis("ASSISTCTL_RECONNECT_INTERVAL_MS", 3000),
			RetryOnConstructionFailure: envOrDefaultBool("ASSISTCTL_RETRY_ON_CONSTRUCTION_FAILURE", false),
			HandshakeTimeout:           envMillis("ASSISTCTL_HANDSHAKE_TIMEOUT_MS", 10000),
		},
		Voice: VoiceConfig{
			Enabled:          envOrDefaultBool("ASSISTCTL_VOICE_ENABLED", true),
			Provider:         strings.ToLower(envOrDefault("ASSISTCTL_SPEECH_PROVIDER", SpeechProviderDeepgram)),
			KeywordsPath:     expandHome(keywordsPath, home),
			CorrectionsPath:  expandHome(correctionsPath, home),
			DebounceInterval: envMillis("ASSISTCTL_DEBOUNCE_MS", 2500),
			RestartDelay:     envMillis("ASSISTCTL_RESTART_DELAY_MS", 100),
			Language:         firstNonEmpty(os.Getenv("ASSISTCTL_LANGUAGE"), os.Getenv("DEEPGRAM_LANGUAGE"), "en-US"),
		},
		Deepgram: DeepgramConfig{
			APIKey:      strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")),
			APIBaseURL:  envOrDefault("DEEPGRAM_API_BASE", "https://api.deepgram.com/v1"),
			Model:       envOrDefault("DEEPGRAM_MODEL", "nova-2"),
			SmartFormat: envOrDefaultBool("DEEPGRAM_SMART_FORMAT", true),
			Endpointing: envOrDefaultInt("DEEPGRAM_ENDPOINTING_MS", 0),
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("ASSISTCTL_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     envOrDefault("ASSISTCTL_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice: firstNonEmpty(
				os.Getenv("ASSISTCTL_AUDIO_INPUT_DEVICE"),
				os.Getenv("DEEPGRAM_PULSE_SOURCE"),
				"default",
			),
			SampleRate: envOrDefaultInt("ASSISTCTL_SAMPLE_RATE", 16000),
			Channels:   envOrDefaultInt("ASSISTCTL_CHANNELS", 1),
			ChunkSize:  envOrDefaultInt("ASSISTCTL_AUDIO_CHUNK_SIZE", 4096),
		},
		Log: LogConfig{
			Level: strings.ToLower(envOrDefault("ASSISTCTL_LOG_LEVEL", "info")),
			File:  expandHome(strings.TrimSpace(os.Getenv("ASSISTCTL_LOG_FILE")), home),
		},
	}

	switch cfg.Voice.Provider {
	case SpeechProviderDeepgram, SpeechProviderStdin, SpeechProviderNone:
	default:
		return Config{}, fmt.Errorf("unknown speech provider %q", cfg.Voice.Provider)
	}

	if cfg.Remote.ReconnectInterval <= 0 {
		cfg.Remote.ReconnectInterval = 3 * time.Second
	}
	if cfg.Remote.HandshakeTimeout <= 0 {
		cfg.Remote.HandshakeTimeout = 10 * time.Second
	}
	if cfg.Voice.DebounceInterval <= 0 {
		cfg.Voice.DebounceInterval = 2500 * time.Millisecond
	}
	if cfg.Voice.RestartDelay <= 0 {
		cfg.Voice.RestartDelay = 100 * time.Millisecond
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.ChunkSize < 256 {
		cfg.Audio.ChunkSize = 4096
	}

	return cfg, nil
}

func expandHome(path string, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envMillis(key string, fallback int) time.Duration {
	return time.Duration(envOrDefaultInt(key, fallback)) * time.Millisecond
}
