package bootstrap

import (
	"errors"
	"io"
	"log/slog"

	"assistctl/internal/audio"
	"assistctl/internal/config"
	"assistctl/internal/connection"
	"assistctl/internal/domain"
	"assistctl/internal/keywords"
	"assistctl/internal/logging"
	"assistctl/internal/ports"
	"assistctl/internal/speech"
	"assistctl/internal/speech/deepgram"
	"assistctl/internal/transcript"
	"assistctl/internal/transport/wsconn"
	"assistctl/internal/usecase"
	"assistctl/internal/voice"
)

// Options adjusts wiring for a particular front end.
type Options struct {
	// RemoteURL overrides ASSISTCTL_REMOTE_URL when set.
	RemoteURL string
	// SpeechProvider overrides ASSISTCTL_SPEECH_PROVIDER when set.
	SpeechProvider string
	// DisableVoice keeps the resolver off at start.
	DisableVoice bool
	// LogOutput receives the console log stream; nil means stderr.
	LogOutput io.Writer
}

// Services is the assembled runtime graph.
type Services struct {
	Config   config.Config
	Logger   *slog.Logger
	Console  *usecase.Console
	Manager  *connection.Manager
	Keywords keywords.Table

	// Resolver is nil when voice input is switched off.
	Resolver *voice.Resolver
	// Lines is set when utterances are typed rather than spoken.
	Lines *speech.LineSource

	logCloser io.Closer
}

// Build wires all backend dependencies for the current runtime.
func Build(events ports.EventSink, opts Options) (*Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if opts.RemoteURL != "" {
		cfg.Remote.URL = opts.RemoteURL
	}
	if opts.SpeechProvider != "" {
		cfg.Voice.Provider = opts.SpeechProvider
	}
	if opts.DisableVoice {
		cfg.Voice.Enabled = false
	}

	logger, logCloser, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		File:   cfg.Log.File,
		Stderr: opts.LogOutput,
	})
	if err != nil {
		return nil, err
	}

	table, err := keywords.Load(cfg.Voice.KeywordsPath)
	if err != nil {
		_ = logCloser.Close()
		return nil, err
	}

	corrections, err := transcript.Load(cfg.Voice.CorrectionsPath)
	if err != nil {
		_ = logCloser.Close()
		return nil, err
	}

	services := &Services{Config: cfg, Logger: logger, Keywords: table, logCloser: logCloser}

	// The connection callbacks only fire after Start, by which time the
	// console exists.
	var console *usecase.Console
	services.Manager = connection.NewManager(
		wsconn.NewProvider(wsconn.Config{HandshakeTimeout: cfg.Remote.HandshakeTimeout}),
		connection.Config{
			OnMessage:                  func(payload []byte) { console.HandleMessage(payload) },
			OnError:                    func(err error) { console.HandleTransportError(err) },
			OnStateChange:              func(state domain.ReadyState) { console.HandleConnectionState(state) },
			ReconnectInterval:          cfg.Remote.ReconnectInterval,
			RetryOnConstructionFailure: cfg.Remote.RetryOnConstructionFailure,
			Logger:                     logger.With("component", "connection"),
		},
	)
	console = usecase.NewConsole(services.Manager, events, logger.With("component", "console"))
	services.Console = console

	provider, lines, err := speechProvider(cfg, logger)
	if err != nil {
		_ = logCloser.Close()
		return nil, err
	}
	services.Lines = lines
	if provider != nil {
		services.Resolver = voice.NewResolver(provider, console.VoiceCommand, voice.Config{
			Keywords:         table,
			Corrections:      corrections,
			DebounceInterval: cfg.Voice.DebounceInterval,
			RestartDelay:     cfg.Voice.RestartDelay,
			Language:         cfg.Voice.Language,
			OnStatusChange:   console.HandleVoiceStatus,
			Logger:           logger.With("component", "voice"),
		})
		console.AttachVoice(services.Resolver)
	}

	return services, nil
}

func speechProvider(cfg config.Config, logger *slog.Logger) (ports.SpeechCaptureProvider, *speech.LineSource, error) {
	switch cfg.Voice.Provider {
	case config.SpeechProviderNone:
		return nil, nil, nil
	case config.SpeechProviderStdin:
		lines := speech.NewLineSource()
		return lines, lines, nil
	case config.SpeechProviderDeepgram:
		capture := speech.NewStreamingCapture(
			audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand),
			deepgram.NewProvider(deepgram.Config{
				APIKey:      cfg.Deepgram.APIKey,
				APIBaseURL:  cfg.Deepgram.APIBaseURL,
				Model:       cfg.Deepgram.Model,
				Language:    cfg.Voice.Language,
				SmartFormat: cfg.Deepgram.SmartFormat,
				Endpointing: cfg.Deepgram.Endpointing,
			}),
			speech.StreamingConfig{
				Audio: ports.AudioConfig{
					SampleRate:  cfg.Audio.SampleRate,
					Channels:    cfg.Audio.Channels,
					InputFormat: cfg.Audio.InputFormat,
					InputDevice: cfg.Audio.InputDevice,
				},
				Streaming: ports.StreamingConfig{
					SampleRate: cfg.Audio.SampleRate,
					Channels:   cfg.Audio.Channels,
					Encoding:   "linear16",
					Language:   cfg.Voice.Language,
				},
				ChunkSize: cfg.Audio.ChunkSize,
				Logger:    logger.With("component", "speech"),
			},
		)
		return capture, nil, nil
	default:
		return nil, nil, errors.New("unknown speech provider " + cfg.Voice.Provider)
	}
}

// Start connects to the remote controller and, when configured, starts
// listening.
func (s *Services) Start() {
	s.Logger.Info("starting console", "remote", s.Config.Remote.URL, "speech", s.Config.Voice.Provider)
	s.Manager.Connect(s.Config.Remote.URL)
	if s.Resolver != nil && s.Config.Voice.Enabled {
		s.Resolver.SetEnabled(true)
	}
}

// Close stops listening, tears the connection down and flushes logs.
func (s *Services) Close() error {
	if s.Resolver != nil {
		s.Resolver.Close()
	}
	if s.Lines != nil {
		s.Lines.Finish()
	}
	s.Manager.Close()
	return s.logCloser.Close()
}
