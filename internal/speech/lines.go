package speech

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"sync"

	"assistctl/internal/domain"
	"assistctl/internal/ports"
)

const lineBacklog = 64

// ErrSourceExhausted is reported once a line source has been finished and
// every queued line has been delivered.
var ErrSourceExhausted = errors.New("speech source exhausted")

// LineSource is a speech capture provider fed with text lines. Every
// non-blank line is delivered as one final utterance.
type LineSource struct {
	lines chan string

	finishOnce sync.Once
	finished   chan struct{}
}

func NewLineSource() *LineSource {
	return &LineSource{
		lines:    make(chan string, lineBacklog),
		finished: make(chan struct{}),
	}
}

// Feed queues one utterance. It reports false when the line was dropped
// because the source is finished or the backlog is full.
func (s *LineSource) Feed(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" || s.isFinished() {
		return false
	}
	select {
	case s.lines <- line:
		return true
	default:
		return false
	}
}

// Finish marks the end of input. Queued lines are still delivered.
func (s *LineSource) Finish() {
	s.finishOnce.Do(func() { close(s.finished) })
}

// Consume feeds every line of r and finishes the source at EOF.
func (s *LineSource) Consume(r io.Reader) error {
	defer s.Finish()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.Feed(scanner.Text())
	}
	return scanner.Err()
}

func (s *LineSource) Available() bool {
	return !s.isFinished() || len(s.lines) > 0
}

func (s *LineSource) NewSession(_ ports.SpeechConfig, handlers ports.SpeechHandlers) (ports.SpeechSession, error) {
	return &lineSession{source: s, handlers: handlers}, nil
}

func (s *LineSource) isFinished() bool {
	select {
	case <-s.finished:
		return true
	default:
		return false
	}
}

type lineSession struct {
	source   *LineSource
	handlers ports.SpeechHandlers

	mu      sync.Mutex
	running bool
	stop    chan struct{}
}

func (s *lineSession) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSessionRunning
	}
	s.running = true
	s.stop = make(chan struct{})
	go s.run(s.stop)
	return nil
}

func (s *lineSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running && s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	return nil
}

func (s *lineSession) run(stop <-chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.stop = nil
		s.mu.Unlock()
		if s.handlers.OnEnd != nil {
			s.handlers.OnEnd()
		}
	}()

	if s.handlers.OnStart != nil {
		s.handlers.OnStart()
	}

	for {
		select {
		case <-stop:
			return
		case line := <-s.source.lines:
			s.deliver(line)
		case <-s.source.finished:
			s.drain()
			if s.handlers.OnError != nil {
				s.handlers.OnError(domain.SpeechErrorAborted, ErrSourceExhausted)
			}
			return
		}
	}
}

func (s *lineSession) drain() {
	for {
		select {
		case line := <-s.source.lines:
			s.deliver(line)
		default:
			return
		}
	}
}

func (s *lineSession) deliver(line string) {
	if s.handlers.OnResult != nil {
		s.handlers.OnResult(ports.SpeechResult{Transcript: line, Final: true})
	}
}
