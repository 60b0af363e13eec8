package usecase

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"assistctl/internal/domain"
	"assistctl/internal/ports"
)

var (
	ErrNotConnected       = errors.New("remote controller is not connected")
	ErrVoiceNotConfigured = errors.New("voice control is not configured")
)

// CommandSender delivers commands to the remote controller.
type CommandSender interface {
	SendCommand(cmd domain.Command) error
	Status() domain.ConnectionStatus
}

// VoiceControl toggles the voice resolver.
type VoiceControl interface {
	SetEnabled(enabled bool)
	Status() domain.VoiceStatus
}

// Console dispatches operator commands from buttons and voice through one
// connection and mirrors everything observable to the UI.
type Console struct {
	sender CommandSender
	events ports.EventSink
	logger *slog.Logger

	mu          sync.Mutex
	voice       VoiceControl
	currentMode domain.Command
	lastCommand domain.Command
	lastSpoken  string
	voiceError  string
	unsupported bool
}

func NewConsole(sender CommandSender, events ports.EventSink, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Console{sender: sender, events: events, logger: logger}
}

// AttachVoice connects the voice resolver whose status the console reports.
func (c *Console) AttachVoice(voice VoiceControl) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.voice = voice
}

// Press dispatches a button command. Presses while disconnected are
// rejected without touching the connection.
func (c *Console) Press(cmd domain.Command) error {
	if !cmd.Valid() {
		return fmt.Errorf("unknown command %q", cmd)
	}
	if c.sender.Status().ReadyState != domain.ReadyStateOpen {
		c.logger.Warn("button press ignored while disconnected", "command", string(cmd))
		return ErrNotConnected
	}
	return c.dispatch(cmd, domain.CommandSourceButton)
}

// VoiceCommand dispatches a command resolved from speech.
func (c *Console) VoiceCommand(cmd domain.Command) {
	if err := c.dispatch(cmd, domain.CommandSourceVoice); err != nil {
		c.logger.Warn("voice command not delivered", "command", string(cmd), "error", err)
	}
}

func (c *Console) dispatch(cmd domain.Command, source domain.CommandSource) error {
	if err := c.sender.SendCommand(cmd); err != nil {
		c.events.ConsoleError(domain.ErrorCodeSend, err.Error())
		return fmt.Errorf("failed to send %s: %w", cmd, err)
	}

	c.mu.Lock()
	c.lastCommand = cmd
	if cmd.SwitchesMode() {
		c.currentMode = cmd
	}
	c.mu.Unlock()

	c.logger.Info("command dispatched", "command", string(cmd), "source", string(source))
	c.events.CommandDispatched(cmd, source)
	return nil
}

// SetVoiceEnabled turns listening on or off.
func (c *Console) SetVoiceEnabled(enabled bool) error {
	c.mu.Lock()
	voice := c.voice
	c.mu.Unlock()
	if voice == nil {
		return ErrVoiceNotConfigured
	}
	voice.SetEnabled(enabled)
	return nil
}

// HandleMessage forwards an inbound payload and picks up the fields the
// console tracks.
func (c *Console) HandleMessage(payload []byte) {
	if msg, ok := domain.DecodeInbound(payload); ok {
		c.mu.Lock()
		switch msg.Type {
		case domain.MessageTypeTTS, domain.MessageTypeOCRResult:
			if msg.Text != "" {
				c.lastSpoken = msg.Text
			}
		case domain.MessageTypeFrame:
			if msg.Mode.SwitchesMode() {
				c.currentMode = msg.Mode
			}
		}
		c.mu.Unlock()
	}
	c.events.MessageReceived(payload)
}

// HandleConnectionState reports a ready state transition.
func (c *Console) HandleConnectionState(state domain.ReadyState) {
	status := c.sender.Status()
	status.ReadyState = state
	status.State = state.String()
	c.events.ConnectionStateChanged(status)
}

// HandleTransportError reports a transport error. The connection recovers
// on its own.
func (c *Console) HandleTransportError(err error) {
	if err == nil {
		return
	}
	c.events.ConsoleError(domain.ErrorCodeTransport, err.Error())
}

// HandleVoiceStatus reports a resolver status change. Each distinct speech
// error is surfaced once.
func (c *Console) HandleVoiceStatus(status domain.VoiceStatus) {
	c.mu.Lock()
	reportUnsupported := !status.Supported && !c.unsupported
	if reportUnsupported {
		c.unsupported = true
	}
	reportError := status.Error != "" && status.Error != c.voiceError
	c.voiceError = status.Error
	c.mu.Unlock()

	c.events.VoiceStatusChanged(status)
	if reportUnsupported {
		c.events.ConsoleError(domain.ErrorCodeUnsupported, "speech recognition is not available")
	}
	if reportError {
		c.events.ConsoleError(domain.ErrorCodeSpeech, status.Error)
	}
}

// Status returns a snapshot for rendering.
func (c *Console) Status() domain.ConsoleStatus {
	c.mu.Lock()
	voice := c.voice
	status := domain.ConsoleStatus{
		CurrentMode: c.currentMode,
		LastCommand: c.lastCommand,
		LastSpoken:  c.lastSpoken,
	}
	c.mu.Unlock()

	status.Connection = c.sender.Status()
	if voice != nil {
		status.Voice = voice.Status()
	} else {
		status.Voice = domain.VoiceStatus{State: domain.VoiceStateDisabled}
	}
	return status
}
