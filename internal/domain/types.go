package domain

import (
	"fmt"
	"strings"
)

// Command is a mode command understood by the remote controller.
type Command string

const (
	CommandScan   Command = "SCAN"
	CommandGuide  Command = "GUIDE"
	CommandSelect Command = "SELECT"
	CommandRead   Command = "READ"
)

// Commands returns every command in canonical resolution order.
func Commands() []Command {
	return []Command{CommandScan, CommandGuide, CommandSelect, CommandRead}
}

// Valid reports whether c is one of the known commands.
func (c Command) Valid() bool {
	switch c {
	case CommandScan, CommandGuide, CommandSelect, CommandRead:
		return true
	default:
		return false
	}
}

// ParseCommand accepts a command name in any case.
func ParseCommand(value string) (Command, error) {
	cmd := Command(strings.ToUpper(strings.TrimSpace(value)))
	if !cmd.Valid() {
		return "", fmt.Errorf("unknown command %q", value)
	}
	return cmd, nil
}

// SwitchesMode reports whether the command changes the controller mode
// rather than triggering a one-shot action.
func (c Command) SwitchesMode() bool {
	return c == CommandScan || c == CommandGuide
}

// ReadyState mirrors the conventional websocket readyState codes.
type ReadyState int

const (
	ReadyStateConnecting ReadyState = 0
	ReadyStateOpen       ReadyState = 1
	ReadyStateClosing    ReadyState = 2
	ReadyStateClosed     ReadyState = 3
)

func (s ReadyState) String() string {
	switch s {
	case ReadyStateConnecting:
		return "connecting"
	case ReadyStateOpen:
		return "open"
	case ReadyStateClosing:
		return "closing"
	case ReadyStateClosed:
		return "closed"
	default:
		return fmt.Sprintf("ReadyState(%d)", int(s))
	}
}

// EnvelopeTypeCommand is the only outbound envelope type.
const EnvelopeTypeCommand = "command"

// Envelope is the outbound wire message.
type Envelope struct {
	Type    string  `json:"type"`
	Command Command `json:"command"`
}

func NewCommandEnvelope(cmd Command) Envelope {
	return Envelope{Type: EnvelopeTypeCommand, Command: cmd}
}

// CloseInfo describes why a transport connection closed.
type CloseInfo struct {
	Code   int    `json:"code"`
	Reason string `json:"reason,omitempty"`
}

// VoiceState models the speech capture lifecycle.
type VoiceState string

const (
	VoiceStateDisabled  VoiceState = "disabled"
	VoiceStateStarting  VoiceState = "starting"
	VoiceStateListening VoiceState = "listening"
	VoiceStateError     VoiceState = "error"
)

// Speech capture error codes reported by capability providers.
const (
	SpeechErrorNoSpeech     = "no-speech"
	SpeechErrorAudioCapture = "audio-capture"
	SpeechErrorNetwork      = "network"
	SpeechErrorNotAllowed   = "not-allowed"
	SpeechErrorAborted      = "aborted"
)

// CommandSource identifies where a dispatched command came from.
type CommandSource string

const (
	CommandSourceButton CommandSource = "button"
	CommandSourceVoice  CommandSource = "voice"
)

// ErrorCode identifies console errors surfaced to the UI.
type ErrorCode string

const (
	ErrorCodeStartup     ErrorCode = "startup"
	ErrorCodeTransport   ErrorCode = "transport"
	ErrorCodeSend        ErrorCode = "send"
	ErrorCodeSpeech      ErrorCode = "speech"
	ErrorCodeUnsupported ErrorCode = "speech_unsupported"
)

// VoiceStatus is the observable state of the voice resolver.
type VoiceStatus struct {
	State       VoiceState `json:"state"`
	Enabled     bool       `json:"enabled"`
	Listening   bool       `json:"listening"`
	Supported   bool       `json:"supported"`
	Transcript  string     `json:"transcript,omitempty"`
	LastCommand Command    `json:"lastCommand,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// ConnectionStatus is the observable state of the connection manager.
type ConnectionStatus struct {
	ReadyState  ReadyState `json:"readyState"`
	State       string     `json:"state"`
	LastMessage string     `json:"lastMessage,omitempty"`
}

// ConsoleStatus summarizes everything the operator UI renders.
type ConsoleStatus struct {
	Connection  ConnectionStatus `json:"connection"`
	Voice       VoiceStatus      `json:"voice"`
	CurrentMode Command          `json:"currentMode,omitempty"`
	LastCommand Command          `json:"lastCommand,omitempty"`
	LastSpoken  string           `json:"lastSpoken,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// TranscriptKind identifies whether a provider event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent is incremental output from a streaming transcription provider.
type TranscriptEvent struct {
	Kind          TranscriptKind `json:"kind"`
	Text          string         `json:"text"`
	IsSpeechFinal bool           `json:"isSpeechFinal"`
}
