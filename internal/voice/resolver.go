package voice

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"assistctl/internal/clock"
	"assistctl/internal/domain"
	"assistctl/internal/keywords"
	"assistctl/internal/ports"
	"assistctl/internal/serial"
)

const (
	DefaultDebounceInterval = 2500 * time.Millisecond
	DefaultRestartDelay     = 100 * time.Millisecond
	DefaultLanguage         = "en-US"
)

// Rewriter corrects recognized text before it is matched.
type Rewriter interface {
	Apply(text string) string
}

// Config controls command resolution and capture restarts.
type Config struct {
	Keywords         keywords.Table
	Corrections      Rewriter
	DebounceInterval time.Duration
	RestartDelay     time.Duration
	Language         string

	// OnStatusChange receives a snapshot after every observable change.
	OnStatusChange func(status domain.VoiceStatus)

	Clock  clock.Clock
	Logger *slog.Logger
}

// Resolver turns a continuous speech stream into debounced commands.
type Resolver struct {
	provider  ports.SpeechCaptureProvider
	onCommand func(domain.Command)
	cfg       Config
	policy    policy
	queue     *serial.Queue[event]

	mu    sync.Mutex
	state machine

	// Only touched from the event queue.
	session      ports.SpeechSession
	restartTimer *clock.Timer
}

func NewResolver(provider ports.SpeechCaptureProvider, onCommand func(domain.Command), cfg Config) *Resolver {
	if cfg.Keywords.Empty() {
		cfg.Keywords = keywords.Default()
	}
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = DefaultDebounceInterval
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = DefaultRestartDelay
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	r := &Resolver{
		provider:  provider,
		onCommand: onCommand,
		cfg:       cfg,
		policy:    policy{table: cfg.Keywords, debounce: cfg.DebounceInterval, rewrite: cfg.Corrections},
		state:     newMachine(),
	}
	r.queue = serial.New(r.handle)
	return r
}

// SetEnabled starts or stops listening. Enabling again after an error
// retries capture.
func (r *Resolver) SetEnabled(enabled bool) {
	if !enabled {
		r.queue.Post(event{kind: eventDisable})
		return
	}
	available := r.provider != nil && r.provider.Available()
	r.queue.Post(event{kind: eventEnable, available: available})
}

// Close stops capture for good.
func (r *Resolver) Close() {
	r.queue.Post(event{kind: eventClose})
}

// Status returns the current observable state.
func (r *Resolver) Status() domain.VoiceStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.status()
}

func (r *Resolver) handle(ev event) {
	r.mu.Lock()
	next, effects := transition(r.state, ev, r.policy)
	r.state = next
	r.mu.Unlock()

	for _, eff := range effects {
		r.apply(eff)
	}
}

func (r *Resolver) apply(eff effect) {
	switch eff.kind {
	case effectOpenSession:
		r.openSession(eff.generation)
	case effectRestartSession:
		if r.session == nil {
			return
		}
		r.cfg.Logger.Debug("restarting speech capture")
		if err := r.session.Start(); err != nil {
			r.queue.Post(event{kind: eventStartFailed, generation: eff.generation, err: fmt.Errorf("speech capture restart failed: %w", err)})
		}
	case effectStopSession:
		session := r.session
		r.session = nil
		if session != nil {
			if err := session.Stop(); err != nil {
				r.cfg.Logger.Debug("stopping speech capture", "error", err)
			}
		}
	case effectScheduleRestart:
		token := eff.token
		r.restartTimer = r.cfg.Clock.AfterFunc(r.cfg.RestartDelay, func() {
			r.queue.Post(event{kind: eventRestartDue, token: token})
		})
	case effectCancelRestart:
		r.restartTimer.Stop()
		r.restartTimer = nil
	case effectEmitCommand:
		r.cfg.Logger.Info("voice command resolved", "command", string(eff.command))
		if r.onCommand != nil {
			r.onCommand(eff.command)
		}
	case effectReportUnsupported:
		r.cfg.Logger.Error("speech recognition is not supported by this runtime")
	case effectReportError:
		r.cfg.Logger.Error("speech recognition error", "code", eff.code, "error", eff.err)
	case effectNotifyStatus:
		if r.cfg.OnStatusChange != nil {
			r.cfg.OnStatusChange(r.Status())
		}
	}
}

// openSession creates a capture session whose handlers are bound to
// generation, then starts it.
func (r *Resolver) openSession(generation uint64) {
	post := func(ev event) {
		ev.generation = generation
		r.queue.Post(ev)
	}

	session, err := r.provider.NewSession(ports.SpeechConfig{
		Language:       r.cfg.Language,
		Continuous:     true,
		InterimResults: false,
	}, ports.SpeechHandlers{
		OnStart: func() { post(event{kind: eventStarted}) },
		OnEnd:   func() { post(event{kind: eventEnded}) },
		OnError: func(code string, err error) {
			post(event{kind: eventErrored, code: code, err: err})
		},
		OnResult: func(result ports.SpeechResult) {
			if result.Final {
				r.cfg.Logger.Debug("voice heard", "text", keywords.Normalize(result.Transcript))
			}
			post(event{
				kind:       eventResult,
				transcript: result.Transcript,
				final:      result.Final,
				at:         r.cfg.Clock.Now(),
			})
		},
	})
	if err != nil {
		post(event{kind: eventStartFailed, err: fmt.Errorf("failed to create speech capture session: %w", err)})
		return
	}

	r.session = session
	if err := session.Start(); err != nil {
		post(event{kind: eventStartFailed, err: fmt.Errorf("failed to start speech capture: %w", err)})
	}
}
