// assistctl-term is a headless operator console. Typed lines are treated
// as spoken utterances; lines starting with a slash are console commands:
//
//	/scan /guide /select /read   press a mode button
//	/status                      print connection and voice state
//	/voice on|off                toggle voice commands
//	/quit                        exit
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/pflag"

	"assistctl/internal/bootstrap"
	"assistctl/internal/config"
	"assistctl/internal/domain"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer, stderr io.Writer) error {
	var remoteURL string
	var speechProvider string
	var noVoice bool

	flagSet := pflag.NewFlagSet("assistctl-term", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&remoteURL, "url", "", "controller websocket URL (default $ASSISTCTL_REMOTE_URL)")
	flagSet.StringVar(&speechProvider, "speech", config.SpeechProviderStdin, "utterance source: stdin, deepgram or none")
	flagSet.BoolVar(&noVoice, "no-voice", false, "start with voice commands disabled")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		fmt.Fprintln(stderr, "Usage: assistctl-term [flags]")
		flagSet.PrintDefaults()
		return nil
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	sink := &terminalSink{out: stdout}
	services, err := bootstrap.Build(sink, bootstrap.Options{
		RemoteURL:      remoteURL,
		SpeechProvider: speechProvider,
		DisableVoice:   noVoice,
		LogOutput:      stderr,
	})
	if err != nil {
		return err
	}
	defer services.Close()

	services.Start()

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupts)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-interrupts:
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(services, sink, line); quit {
				return nil
			}
		}
	}
}

// handleLine executes one typed line and reports whether the console
// should exit.
func handleLine(services *bootstrap.Services, sink *terminalSink, line string) bool {
	in := parseLine(line)
	switch in.kind {
	case inputEmpty:
	case inputQuit:
		return true
	case inputHelp:
		sink.printf("commands: /scan /guide /select /read /status /voice on|off /quit")
	case inputPress:
		if err := services.Console.Press(in.command); err != nil {
			sink.printf("! %s not sent: %v", in.command, err)
		}
	case inputStatus:
		sink.printStatus(services.Console.Status())
	case inputVoice:
		if err := services.Console.SetVoiceEnabled(in.enable); err != nil {
			sink.printf("! %v", err)
		}
	case inputUtterance:
		if services.Lines == nil {
			sink.printf("! typed utterances need --speech=stdin")
			return false
		}
		if !services.Lines.Feed(in.text) {
			sink.printf("! utterance dropped")
		}
	case inputInvalid:
		sink.printf("! %s", in.text)
	}
	return false
}

type inputKind int

const (
	inputEmpty inputKind = iota
	inputUtterance
	inputPress
	inputStatus
	inputVoice
	inputHelp
	inputQuit
	inputInvalid
)

type input struct {
	kind    inputKind
	command domain.Command
	enable  bool
	text    string
}

func parseLine(line string) input {
	line = strings.TrimSpace(line)
	if line == "" {
		return input{kind: inputEmpty}
	}
	if !strings.HasPrefix(line, "/") {
		return input{kind: inputUtterance, text: line}
	}

	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(fields) == 0 {
		return input{kind: inputInvalid, text: "empty command"}
	}
	name := strings.ToLower(fields[0])
	switch name {
	case "status":
		return input{kind: inputStatus}
	case "help", "?":
		return input{kind: inputHelp}
	case "quit", "exit":
		return input{kind: inputQuit}
	case "voice":
		if len(fields) != 2 {
			return input{kind: inputInvalid, text: "usage: /voice on|off"}
		}
		switch strings.ToLower(fields[1]) {
		case "on":
			return input{kind: inputVoice, enable: true}
		case "off":
			return input{kind: inputVoice, enable: false}
		default:
			return input{kind: inputInvalid, text: "usage: /voice on|off"}
		}
	}
	if cmd, err := domain.ParseCommand(name); err == nil {
		return input{kind: inputPress, command: cmd}
	}
	return input{kind: inputInvalid, text: "unknown command /" + name}
}

// terminalSink prints console events as single lines.
type terminalSink struct {
	mu        sync.Mutex
	out       io.Writer
	voiceSeen domain.VoiceState
}

func (s *terminalSink) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format+"\n", args...)
}

func (s *terminalSink) printStatus(status domain.ConsoleStatus) {
	mode := string(status.CurrentMode)
	if mode == "" {
		mode = "-"
	}
	s.printf("connection=%s voice=%s mode=%s last=%s", status.Connection.State, status.Voice.State, mode, status.LastCommand)
}

func (s *terminalSink) ConnectionStateChanged(status domain.ConnectionStatus) {
	s.printf("* connection %s", status.State)
}

func (s *terminalSink) MessageReceived(payload []byte) {
	msg, ok := domain.DecodeInbound(payload)
	if !ok {
		s.printf("< %s", payload)
		return
	}
	switch msg.Type {
	case domain.MessageTypeTTS, domain.MessageTypeOCRResult:
		s.printf("< %s: %s", msg.Type, msg.Text)
	case domain.MessageTypeFrame:
		s.printf("< frame mode=%s detections=%d", msg.Mode, len(msg.Detections))
	default:
		s.printf("< %s", payload)
	}
}

// VoiceStatusChanged prints voice state transitions only; transcripts are
// echoed by the operator's own typing.
func (s *terminalSink) VoiceStatusChanged(status domain.VoiceStatus) {
	s.mu.Lock()
	changed := status.State != s.voiceSeen
	s.voiceSeen = status.State
	s.mu.Unlock()
	if changed {
		s.printf("* voice %s", status.State)
	}
}

func (s *terminalSink) CommandDispatched(cmd domain.Command, source domain.CommandSource) {
	s.printf("> %s (%s)", cmd, source)
}

func (s *terminalSink) ConsoleError(code domain.ErrorCode, detail string) {
	s.printf("! %s: %s", code, detail)
}
