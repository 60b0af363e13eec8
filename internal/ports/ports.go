package ports

import (
	"context"
	"io"

	"assistctl/internal/domain"
)

// TransportHandlers receive lifecycle events of one transport connection.
// Handlers may be invoked from any goroutine; a connection never invokes
// them concurrently with each other.
type TransportHandlers struct {
	OnOpen    func()
	OnMessage func(payload []byte)
	OnError   func(err error)
	OnClose   func(info domain.CloseInfo)
}

// TransportConn is a single duplex connection attempt.
type TransportConn interface {
	Send(payload []byte) error
	Close() error
	ReadyState() domain.ReadyState
}

// TransportProvider creates duplex connections. Open must not block on the
// network: it returns a connection in the connecting state and reports the
// outcome through the handlers. An error from Open means the connection
// could not be constructed at all (for example a malformed URL).
type TransportProvider interface {
	Open(rawURL string, handlers TransportHandlers) (TransportConn, error)
}

// SpeechConfig configures a speech capture session.
type SpeechConfig struct {
	Language       string
	Continuous     bool
	InterimResults bool
}

// SpeechResult is one recognized utterance.
type SpeechResult struct {
	Transcript string
	Final      bool
}

// SpeechHandlers receive lifecycle events of one capture session.
type SpeechHandlers struct {
	OnStart  func()
	OnEnd    func()
	OnError  func(code string, err error)
	OnResult func(result SpeechResult)
}

// SpeechSession is a restartable capture session. Start may be called again
// after the session ended.
type SpeechSession interface {
	Start() error
	Stop() error
}

// SpeechCaptureProvider creates speech capture sessions.
type SpeechCaptureProvider interface {
	Available() bool
	NewSession(cfg SpeechConfig, handlers SpeechHandlers) (SpeechSession, error)
}

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	Language       string
	InterimResults bool
}

// StreamingSession is an active provider websocket session.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider starts streaming transcription sessions.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// EventSink emits console state to the UI.
type EventSink interface {
	ConnectionStateChanged(status domain.ConnectionStatus)
	MessageReceived(payload []byte)
	VoiceStatusChanged(status domain.VoiceStatus)
	CommandDispatched(cmd domain.Command, source domain.CommandSource)
	ConsoleError(code domain.ErrorCode, detail string)
}
