package connection

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"assistctl/internal/clock"
	"assistctl/internal/domain"
	"assistctl/internal/ports"
	"assistctl/internal/serial"
)

// DefaultReconnectInterval is the fixed delay between reconnection attempts.
const DefaultReconnectInterval = 3 * time.Second

// ErrNotOpen is returned by Send when no connection is open. The message is
// dropped, not queued.
var ErrNotOpen = errors.New("connection is not open")

// Config controls callbacks and reconnection policy. Callbacks run on the
// manager's event queue, one at a time, and may call back into the manager.
type Config struct {
	OnOpen        func()
	OnClose       func(info domain.CloseInfo)
	OnError       func(err error)
	OnMessage     func(payload []byte)
	OnStateChange func(state domain.ReadyState)

	ReconnectInterval time.Duration

	// RetryOnConstructionFailure schedules a reconnect when the transport
	// rejects the URL outright. Off by default: a malformed URL will not
	// fix itself.
	RetryOnConstructionFailure bool

	Clock  clock.Clock
	Logger *slog.Logger
}

// Manager keeps one logical duplex connection alive across transient
// failures.
type Manager struct {
	provider ports.TransportProvider
	cfg      Config
	queue    *serial.Queue[event]

	mu          sync.Mutex
	state       machine
	conn        ports.TransportConn
	attemptID   string
	lastMessage []byte

	// retryTimer is only touched from the event queue.
	retryTimer *clock.Timer
}

func NewManager(provider ports.TransportProvider, cfg Config) *Manager {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	m := &Manager{
		provider: provider,
		cfg:      cfg,
		state:    newMachine(),
	}
	m.queue = serial.New(m.handle)
	return m
}

// Connect starts a connection attempt to rawURL. Calling Connect after
// Close re-enables reconnection.
func (m *Manager) Connect(rawURL string) {
	m.queue.Post(event{kind: eventConnect, url: rawURL})
}

// Close stops reconnection permanently and closes the current connection.
func (m *Manager) Close() {
	m.queue.Post(event{kind: eventTeardown})
}

// Send encodes message as JSON and writes it to the open connection. When
// the connection is not open the message is dropped with a warning and
// ErrNotOpen is returned.
func (m *Manager) Send(message any) error {
	m.mu.Lock()
	ready := m.state.ready
	conn := m.conn
	m.mu.Unlock()

	if ready != domain.ReadyStateOpen || conn == nil || conn.ReadyState() != domain.ReadyStateOpen {
		m.cfg.Logger.Warn("connection is not open; dropping message", "state", ready.String())
		return ErrNotOpen
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if err := conn.Send(payload); err != nil {
		m.cfg.Logger.Warn("failed to send message", "error", err)
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// SendCommand sends the command envelope for cmd.
func (m *Manager) SendCommand(cmd domain.Command) error {
	return m.Send(domain.NewCommandEnvelope(cmd))
}

// ReadyState returns the current connection state.
func (m *Manager) ReadyState() domain.ReadyState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ready
}

// LastMessage returns the most recently received payload, or nil.
func (m *Manager) LastMessage() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastMessage == nil {
		return nil
	}
	return append([]byte(nil), m.lastMessage...)
}

// Status returns an observational snapshot for the UI.
func (m *Manager) Status() domain.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.ConnectionStatus{
		ReadyState:  m.state.ready,
		State:       m.state.ready.String(),
		LastMessage: string(m.lastMessage),
	}
}

func (m *Manager) handle(ev event) {
	m.mu.Lock()
	next, effects := transition(m.state, ev, m.cfg.RetryOnConstructionFailure)
	m.state = next
	m.mu.Unlock()

	for _, eff := range effects {
		m.apply(eff)
	}
}

func (m *Manager) apply(eff effect) {
	switch eff.kind {
	case effectOpen:
		m.open(eff.generation)
	case effectRelease:
		m.mu.Lock()
		conn := m.conn
		m.conn = nil
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
	case effectCloseConn:
		m.mu.Lock()
		conn := m.conn
		m.mu.Unlock()
		if conn != nil {
			if err := conn.Close(); err != nil {
				m.cfg.Logger.Debug("closing connection", "error", err)
			}
		}
	case effectCancelRetry:
		m.retryTimer.Stop()
		m.retryTimer = nil
	case effectScheduleRetry:
		token := eff.token
		m.cfg.Logger.Info("reconnecting", "in", m.cfg.ReconnectInterval)
		m.retryTimer = m.cfg.Clock.AfterFunc(m.cfg.ReconnectInterval, func() {
			m.queue.Post(event{kind: eventRetryDue, token: token})
		})
	case effectStoreMessage:
		m.mu.Lock()
		m.lastMessage = eff.payload
		m.mu.Unlock()
	case effectNotifyState:
		state := m.ReadyState()
		if state == domain.ReadyStateClosed {
			m.mu.Lock()
			m.conn = nil
			m.mu.Unlock()
		}
		if m.cfg.OnStateChange != nil {
			m.cfg.OnStateChange(state)
		}
	case effectNotifyOpen:
		m.cfg.Logger.Info("connection open", "attempt", m.currentAttempt())
		if m.cfg.OnOpen != nil {
			m.cfg.OnOpen()
		}
	case effectNotifyMessage:
		if m.cfg.OnMessage != nil {
			m.cfg.OnMessage(eff.payload)
		}
	case effectNotifyError:
		m.cfg.Logger.Error("connection error", "attempt", m.currentAttempt(), "error", eff.err)
		if m.cfg.OnError != nil {
			m.cfg.OnError(eff.err)
		}
	case effectNotifyClose:
		m.cfg.Logger.Info("connection closed", "attempt", m.currentAttempt(), "code", eff.close.Code, "reason", eff.close.Reason)
		if m.cfg.OnClose != nil {
			m.cfg.OnClose(eff.close)
		}
	}
}

// open creates the transport for generation. Handlers are bound to the
// generation so a released connection can no longer drive the machine.
func (m *Manager) open(generation uint64) {
	m.mu.Lock()
	url := m.state.url
	m.attemptID = uuid.NewString()
	attempt := m.attemptID
	m.mu.Unlock()

	m.cfg.Logger.Info("connecting", "url", url, "attempt", attempt)

	conn, err := m.provider.Open(url, ports.TransportHandlers{
		OnOpen: func() {
			m.queue.Post(event{kind: eventOpened, generation: generation})
		},
		OnMessage: func(payload []byte) {
			m.queue.Post(event{kind: eventMessage, generation: generation, payload: append([]byte(nil), payload...)})
		},
		OnError: func(err error) {
			m.queue.Post(event{kind: eventErrored, generation: generation, err: err})
		},
		OnClose: func(info domain.CloseInfo) {
			m.queue.Post(event{kind: eventClosed, generation: generation, close: info})
		},
	})
	if err != nil {
		m.queue.Post(event{
			kind:       eventConstructionFailed,
			generation: generation,
			err:        fmt.Errorf("failed to create connection to %q: %w", url, err),
		})
		return
	}

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
}

func (m *Manager) currentAttempt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attemptID
}
