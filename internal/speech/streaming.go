package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"assistctl/internal/domain"
	"assistctl/internal/ports"
)

const defaultChunkSize = 4096

// ErrSessionRunning is returned when Start is called on a session that has
// not ended yet.
var ErrSessionRunning = errors.New("speech session is already running")

// AudioSource is a microphone capture that can report whether it is usable.
type AudioSource interface {
	ports.AudioCapture
	Available() bool
}

// Transcriber is a streaming transcription provider that can report whether
// it has credentials.
type Transcriber interface {
	ports.TranscriptionProvider
	Configured() bool
}

// StreamingConfig controls how capture sessions talk to their audio source
// and transcriber.
type StreamingConfig struct {
	Audio     ports.AudioConfig
	Streaming ports.StreamingConfig
	ChunkSize int
	Logger    *slog.Logger
}

// StreamingCapture is a speech capture provider that pipes microphone audio
// into a streaming transcriber. Each session lasts until the transcription
// stream ends, after which it may be started again.
type StreamingCapture struct {
	audio       AudioSource
	transcriber Transcriber
	cfg         StreamingConfig
}

func NewStreamingCapture(audio AudioSource, transcriber Transcriber, cfg StreamingConfig) *StreamingCapture {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &StreamingCapture{audio: audio, transcriber: transcriber, cfg: cfg}
}

func (c *StreamingCapture) Available() bool {
	return c.audio != nil && c.transcriber != nil && c.audio.Available() && c.transcriber.Configured()
}

func (c *StreamingCapture) NewSession(cfg ports.SpeechConfig, handlers ports.SpeechHandlers) (ports.SpeechSession, error) {
	if !c.Available() {
		return nil, errors.New("streaming speech capture is not available")
	}
	streaming := c.cfg.Streaming
	streaming.InterimResults = cfg.InterimResults
	if cfg.Language != "" {
		streaming.Language = cfg.Language
	}
	return &streamingSession{
		capture:   c,
		streaming: streaming,
		interim:   cfg.InterimResults,
		handlers:  handlers,
	}, nil
}

type streamingSession struct {
	capture   *StreamingCapture
	streaming ports.StreamingConfig
	interim   bool
	handlers  ports.SpeechHandlers

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// Start begins capture in the background. Lifecycle is reported through the
// session handlers.
func (s *streamingSession) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSessionRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.cancel = cancel
	go s.run(ctx)
	return nil
}

// Stop aborts capture without waiting for the background work to drain.
// No error is reported for a stopped session.
func (s *streamingSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

func (s *streamingSession) run(ctx context.Context) {
	logger := s.capture.cfg.Logger
	defer func() {
		s.mu.Lock()
		s.running = false
		s.cancel()
		s.mu.Unlock()
		s.emitEnd()
	}()

	stream, err := s.capture.transcriber.StartStreaming(ctx, s.streaming)
	if err != nil {
		s.fail(ctx, domain.SpeechErrorNetwork, err)
		return
	}

	audio, err := s.capture.audio.Start(ctx, s.capture.cfg.Audio)
	if err != nil {
		_ = stream.Close()
		s.fail(ctx, domain.SpeechErrorAudioCapture, err)
		return
	}

	logger.Debug("speech capture started")
	if s.handlers.OnStart != nil {
		s.handlers.OnStart()
	}

	pumpDone := make(chan error, 1)
	go func() {
		pumpDone <- pumpAudio(audio, stream, s.capture.cfg.ChunkSize)
		_ = stream.CloseSend()
	}()

	for event := range stream.Events() {
		text := strings.TrimSpace(event.Text)
		if text == "" {
			continue
		}
		final := event.Kind == domain.TranscriptKindFinal
		if !final && !s.interim {
			continue
		}
		if s.handlers.OnResult != nil {
			s.handlers.OnResult(ports.SpeechResult{Transcript: text, Final: final})
		}
	}
	streamErr := stream.Wait()

	var pumpErr error
	pumpFinished := false
	select {
	case pumpErr = <-pumpDone:
		pumpFinished = true
	default:
	}
	if err := audio.Stop(); err != nil {
		logger.Debug("stopping audio capture", "error", err)
	}
	if !pumpFinished {
		<-pumpDone
	}

	var captureErr *captureError
	switch {
	case errors.As(pumpErr, &captureErr):
		s.fail(ctx, captureErr.code, captureErr.err)
	case streamErr != nil:
		s.fail(ctx, domain.SpeechErrorNetwork, streamErr)
	}
}

// fail reports err unless the session was stopped deliberately.
func (s *streamingSession) fail(ctx context.Context, code string, err error) {
	if ctx.Err() != nil {
		return
	}
	s.capture.cfg.Logger.Warn("speech capture failed", "code", code, "error", err)
	if s.handlers.OnError != nil {
		s.handlers.OnError(code, err)
	}
}

func (s *streamingSession) emitEnd() {
	if s.handlers.OnEnd != nil {
		s.handlers.OnEnd()
	}
}

type captureError struct {
	code string
	err  error
}

func (e *captureError) Error() string { return e.err.Error() }
func (e *captureError) Unwrap() error { return e.err }

// pumpAudio copies audio chunks into the stream until the capture ends.
func pumpAudio(audio ports.AudioSession, stream ports.StreamingSession, chunkSize int) error {
	if chunkSize < 256 {
		chunkSize = defaultChunkSize
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := audio.Read(buf)
		if n > 0 {
			if sendErr := stream.SendAudio(buf[:n]); sendErr != nil {
				return &captureError{code: domain.SpeechErrorNetwork, err: fmt.Errorf("failed to stream audio: %w", sendErr)}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return &captureError{code: domain.SpeechErrorAudioCapture, err: fmt.Errorf("audio capture error: %w", err)}
		}
	}
}
