package audio

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"assistctl/internal/ports"
)

func TestFFMPEGCaptureStartReadAndStop(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "capture.sh", "#!/usr/bin/env bash\nprintf 'hello'\nsleep 2\n")
	capture := NewFFMPEGCapture(script)

	session, err := capture.Start(context.Background(), ports.AudioConfig{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	buf := make([]byte, 8)
	n, readErr := session.Read(buf)
	if n <= 0 {
		t.Fatalf("expected audio bytes, got n=%d err=%v", n, readErr)
	}
	if !strings.Contains(string(buf[:n]), "hello") {
		t.Fatalf("unexpected bytes: %q", string(buf[:n]))
	}

	if err := session.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := session.Stop(); err != nil {
		t.Fatalf("second stop should be a no-op, got %v", err)
	}
}

func TestFFMPEGCaptureStartEarlyExit(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "fail.sh", "#!/usr/bin/env bash\necho 'no such device' 1>&2\nexit 1\n")
	capture := NewFFMPEGCapture(script)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := capture.Start(ctx, ports.AudioConfig{})
	if !errors.Is(err, ErrCaptureExited) {
		t.Fatalf("expected early exit error, got %v", err)
	}
	if !strings.Contains(err.Error(), "no such device") {
		t.Fatalf("expected stderr detail in error: %v", err)
	}
}

func TestFFMPEGCaptureAvailable(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "capture.sh", "#!/usr/bin/env bash\n")
	if !NewFFMPEGCapture(script).Available() {
		t.Fatalf("expected executable script to be available")
	}
	if NewFFMPEGCapture(filepath.Join(t.TempDir(), "missing")).Available() {
		t.Fatalf("expected missing binary to be unavailable")
	}
}

func TestCaptureArgsDefaults(t *testing.T) {
	t.Parallel()

	args := strings.Join(captureArgs(ports.AudioConfig{}), " ")
	for _, want := range []string{"-f pulse", "-i default", "-ac 1", "-ar 16000", "-f s16le"} {
		if !strings.Contains(args, want) {
			t.Fatalf("expected %q in args: %s", want, args)
		}
	}

	args = strings.Join(captureArgs(ports.AudioConfig{SampleRate: 48000, Channels: 2, InputFormat: "alsa", InputDevice: "hw:1"}), " ")
	for _, want := range []string{"-f alsa", "-i hw:1", "-ac 2", "-ar 48000"} {
		if !strings.Contains(args, want) {
			t.Fatalf("expected %q in args: %s", want, args)
		}
	}
}

func TestNormalizeStopErrExitErrorIsIgnored(t *testing.T) {
	t.Parallel()

	err := exec.Command("bash", "-c", "exit 1").Run()
	if err == nil {
		t.Fatalf("expected command to fail")
	}
	if got := normalizeStopErr(err); got != nil {
		t.Fatalf("expected nil for exit error, got %v", got)
	}
}

func writeScript(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o700); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}
