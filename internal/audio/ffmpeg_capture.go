package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"assistctl/internal/ports"
)

const (
	defaultStartupProbe = 250 * time.Millisecond
	defaultStopGrace    = 1200 * time.Millisecond
)

// ErrCaptureExited is returned when ffmpeg dies before producing audio,
// usually because the input device is missing or busy.
var ErrCaptureExited = errors.New("ffmpeg exited before capture started")

// FFMPEGCapture streams microphone PCM audio using an ffmpeg subprocess.
type FFMPEGCapture struct {
	command      string
	startupProbe time.Duration
	stopGrace    time.Duration
}

func NewFFMPEGCapture(command string) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGCapture{
		command:      command,
		startupProbe: defaultStartupProbe,
		stopGrace:    defaultStopGrace,
	}
}

// Available reports whether the capture binary can be found.
func (c *FFMPEGCapture) Available() bool {
	_, err := exec.LookPath(c.command)
	return err == nil
}

func (c *FFMPEGCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	cmd := exec.CommandContext(ctx, c.command, captureArgs(cfg)...)
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	probe := time.NewTimer(c.startupProbe)
	defer probe.Stop()

	select {
	case err := <-waitErr:
		if detail := stderr.Trimmed(); detail != "" {
			return nil, fmt.Errorf("%w: %v: %s", ErrCaptureExited, err, detail)
		}
		return nil, ErrCaptureExited
	case <-ctx.Done():
		<-waitErr
		return nil, ctx.Err()
	case <-probe.C:
	}

	return &ffmpegSession{
		stdout:    stdout,
		stderr:    stderr,
		process:   cmd.Process,
		waitErr:   waitErr,
		stopGrace: c.stopGrace,
	}, nil
}

func captureArgs(cfg ports.AudioConfig) []string {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}

	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}
}

type ffmpegSession struct {
	stdout io.ReadCloser
	stderr *lockedBuffer

	process   *os.Process
	waitErr   <-chan error
	stopGrace time.Duration

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegSession) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *ffmpegSession) Close() error {
	return s.Stop()
}

func (s *ffmpegSession) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		grace := time.NewTimer(s.stopGrace)
		defer grace.Stop()

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-grace.C:
			if s.process != nil {
				_ = s.process.Kill()
			}
			if err, ok := <-s.waitErr; ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) && s.stopErr == nil {
			s.stopErr = closeErr
		}

		if s.stopErr != nil {
			if detail := s.stderr.Trimmed(); detail != "" {
				s.stopErr = fmt.Errorf("%w: %s", s.stopErr, detail)
			}
		}
	})

	return s.stopErr
}

// normalizeStopErr drops the exit status ffmpeg reports after being
// interrupted.
func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// lockedBuffer collects stderr written by the exec copier goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Trimmed() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(b.buf.String())
}
