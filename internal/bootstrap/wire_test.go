package bootstrap

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"assistctl/internal/domain"
)

func TestBuildDefaultsToDeepgram(t *testing.T) {
	isolate(t)
	t.Setenv("DEEPGRAM_API_KEY", "test-key")

	services, err := Build(&recordingSink{}, Options{LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer services.Close()

	if services.Console == nil || services.Manager == nil {
		t.Fatalf("expected console and manager")
	}
	if services.Resolver == nil {
		t.Fatalf("expected voice resolver")
	}
	if services.Lines != nil {
		t.Fatalf("line source should only exist for stdin speech")
	}
	if got := services.Keywords.Phrases(domain.CommandScan); len(got) == 0 {
		t.Fatalf("expected default keyword table")
	}
}

func TestBuildWithoutVoice(t *testing.T) {
	isolate(t)

	services, err := Build(&recordingSink{}, Options{SpeechProvider: "none", LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer services.Close()

	if services.Resolver != nil {
		t.Fatalf("expected no resolver")
	}
	if err := services.Console.SetVoiceEnabled(true); err == nil {
		t.Fatalf("expected voice toggle to fail without resolver")
	}
}

func TestBuildFailsOnInvalidKeywords(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "keywords.yaml")
	if err := os.WriteFile(path, []byte("keywords:\n  DANCE: [dance]\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	t.Setenv("ASSISTCTL_KEYWORDS_FILE", path)

	_, err := Build(&recordingSink{}, Options{LogOutput: io.Discard})
	if err == nil {
		t.Fatalf("expected build error due to invalid keywords")
	}
}

func TestBuildFailsOnInvalidCorrections(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "corrections.rules")
	if err := os.WriteFile(path, []byte("not a rule\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	t.Setenv("ASSISTCTL_CORRECTIONS_FILE", path)

	_, err := Build(&recordingSink{}, Options{LogOutput: io.Discard})
	if err == nil {
		t.Fatalf("expected build error due to invalid corrections")
	}
}

func TestBuildFailsOnUnknownProvider(t *testing.T) {
	isolate(t)

	_, err := Build(&recordingSink{}, Options{SpeechProvider: "braille", LogOutput: io.Discard})
	if err == nil {
		t.Fatalf("expected unknown provider error")
	}
}

func TestServicesRelayTypedUtterance(t *testing.T) {
	isolate(t)

	received := make(chan string, 4)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"tts","text":"ready"}`))
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- string(payload)
		}
	}))
	defer server.Close()

	t.Setenv("ASSISTCTL_REMOTE_URL", "ws"+strings.TrimPrefix(server.URL, "http"))

	sink := &recordingSink{opened: make(chan struct{})}
	services, err := Build(sink, Options{SpeechProvider: "stdin", LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer services.Close()

	services.Start()
	select {
	case <-sink.opened:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for connection")
	}

	waitFor(t, func() bool { return services.Console.Status().Voice.Listening })
	services.Lines.Feed("please start scan now")

	select {
	case payload := <-received:
		if payload != `{"type":"command","command":"SCAN"}` {
			t.Fatalf("unexpected payload: %s", payload)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for voice command")
	}

	waitFor(t, func() bool { return services.Console.Status().LastSpoken == "ready" })
	if services.Console.Status().CurrentMode != domain.CommandScan {
		t.Fatalf("expected SCAN mode after dispatch")
	}
}

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{"ASSISTCTL_SPEECH_PROVIDER", "ASSISTCTL_KEYWORDS_FILE", "ASSISTCTL_CORRECTIONS_FILE", "ASSISTCTL_LOG_FILE", "ASSISTCTL_VOICE_ENABLED"} {
		t.Setenv(key, "")
	}
	return home
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

type recordingSink struct {
	opened chan struct{}
	once   sync.Once
}

func (s *recordingSink) ConnectionStateChanged(status domain.ConnectionStatus) {
	if status.ReadyState == domain.ReadyStateOpen && s.opened != nil {
		s.once.Do(func() { close(s.opened) })
	}
}

func (s *recordingSink) MessageReceived(_ []byte)                                   {}
func (s *recordingSink) VoiceStatusChanged(_ domain.VoiceStatus)                    {}
func (s *recordingSink) CommandDispatched(_ domain.Command, _ domain.CommandSource) {}
func (s *recordingSink) ConsoleError(_ domain.ErrorCode, _ string)                  {}
