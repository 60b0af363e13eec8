package main

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"assistctl/internal/domain"
)

func TestParseLine(t *testing.T) {
	t.Parallel()

	cases := []struct {
		line string
		want input
	}{
		{line: "   ", want: input{kind: inputEmpty}},
		{line: " please start scan ", want: input{kind: inputUtterance, text: "please start scan"}},
		{line: "/scan", want: input{kind: inputPress, command: domain.CommandScan}},
		{line: "/READ", want: input{kind: inputPress, command: domain.CommandRead}},
		{line: "/status", want: input{kind: inputStatus}},
		{line: "/voice on", want: input{kind: inputVoice, enable: true}},
		{line: "/voice OFF", want: input{kind: inputVoice, enable: false}},
		{line: "/voice", want: input{kind: inputInvalid, text: "usage: /voice on|off"}},
		{line: "/voice maybe", want: input{kind: inputInvalid, text: "usage: /voice on|off"}},
		{line: "/quit", want: input{kind: inputQuit}},
		{line: "/?", want: input{kind: inputHelp}},
		{line: "/", want: input{kind: inputInvalid, text: "empty command"}},
		{line: "/dance", want: input{kind: inputInvalid, text: "unknown command /dance"}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.line, func(t *testing.T) {
			t.Parallel()
			if got := parseLine(tc.line); got != tc.want {
				t.Fatalf("parseLine(%q) = %+v, want %+v", tc.line, got, tc.want)
			}
		})
	}
}

func TestTerminalSinkFormatting(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	sink := &terminalSink{out: &out}

	sink.ConnectionStateChanged(domain.ConnectionStatus{ReadyState: domain.ReadyStateOpen, State: "open"})
	sink.CommandDispatched(domain.CommandGuide, domain.CommandSourceVoice)
	sink.MessageReceived([]byte(`{"type":"tts","text":"Door ahead"}`))
	sink.MessageReceived([]byte(`{"type":"frame","mode":"SCAN","detections":[{"class":"door"}]}`))
	sink.MessageReceived([]byte(`plain text`))
	sink.VoiceStatusChanged(domain.VoiceStatus{State: domain.VoiceStateListening})
	sink.VoiceStatusChanged(domain.VoiceStatus{State: domain.VoiceStateListening, Transcript: "guide me"})
	sink.ConsoleError(domain.ErrorCodeSend, "connection is not open")
	sink.printStatus(domain.ConsoleStatus{
		Connection: domain.ConnectionStatus{State: "open"},
		Voice:      domain.VoiceStatus{State: domain.VoiceStateListening},
	})

	want := []string{
		"* connection open",
		"> GUIDE (voice)",
		"< tts: Door ahead",
		"< frame mode=SCAN detections=1",
		"< plain text",
		"* voice listening",
		"! send: connection is not open",
		"connection=open voice=listening mode=- last=",
	}
	got := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(got) != len(want) {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRunRejectsArguments(t *testing.T) {
	var stderr bytes.Buffer
	if err := run([]string{"extra"}, strings.NewReader(""), &bytes.Buffer{}, &stderr); err == nil {
		t.Fatalf("expected unexpected argument error")
	}
}

func TestRunExitsOnEOF(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ASSISTCTL_LOG_FILE", "")
	t.Setenv("ASSISTCTL_KEYWORDS_FILE", "")

	var stdout syncBuffer
	var stderr bytes.Buffer
	err := run([]string{"--url", "ws://127.0.0.1:1/ws", "--speech", "none"}, strings.NewReader("/status\n"), &stdout, &stderr)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "connection=") {
		t.Fatalf("expected status line, got %q", stdout.String())
	}
}

// syncBuffer guards output written by connection goroutines that may
// outlive run.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
