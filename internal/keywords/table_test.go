package keywords

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"assistctl/internal/domain"
)

func TestDefaultTableResolve(t *testing.T) {
	t.Parallel()

	table := Default()
	cases := map[string]domain.Command{
		"please start scan now":   domain.CommandScan,
		"  SCANNING the room ":    domain.CommandScan,
		"give me guidance":        domain.CommandGuide,
		"choose that":             domain.CommandSelect,
		"select object":           domain.CommandSelect,
		"read it":                 domain.CommandRead,
		"guide me to the object":  domain.CommandGuide,
		"scan and then read text": domain.CommandScan,
	}
	for utterance, want := range cases {
		utterance := utterance
		want := want
		t.Run(utterance, func(t *testing.T) {
			t.Parallel()
			got, ok := table.Resolve(utterance)
			if !ok || got != want {
				t.Fatalf("resolve(%q) = %q, %v; want %q", utterance, got, ok, want)
			}
		})
	}
}

func TestResolveNoMatch(t *testing.T) {
	t.Parallel()

	table := Default()
	for _, utterance := range []string{"banana", "", "   ", "hello there"} {
		if cmd, ok := table.Resolve(utterance); ok {
			t.Fatalf("expected no command for %q, got %q", utterance, cmd)
		}
	}
}

func TestResolveSubstringAmbiguityIsPreserved(t *testing.T) {
	t.Parallel()

	cmd, ok := Default().Resolve("the objective is clear")
	if !ok || cmd != domain.CommandSelect {
		t.Fatalf("expected substring match on object, got %q %v", cmd, ok)
	}
}

func TestDefaultTableCoversEveryCommand(t *testing.T) {
	t.Parallel()

	table := Default()
	for _, cmd := range domain.Commands() {
		if len(table.Phrases(cmd)) == 0 {
			t.Fatalf("command %s has no keywords", cmd)
		}
	}
}

func TestNewRejectsCommandWithoutKeywords(t *testing.T) {
	t.Parallel()

	_, err := New([]Entry{
		{Command: domain.CommandScan, Phrases: []string{"scan"}},
		{Command: domain.CommandGuide, Phrases: []string{"guide"}},
		{Command: domain.CommandSelect, Phrases: []string{"  ", ""}},
		{Command: domain.CommandRead, Phrases: []string{"read"}},
	})
	if err == nil || !strings.Contains(err.Error(), "SELECT") {
		t.Fatalf("expected missing SELECT keywords error, got %v", err)
	}
}

func TestNewNormalizesAndOrders(t *testing.T) {
	t.Parallel()

	table, err := New([]Entry{
		{Command: domain.CommandRead, Phrases: []string{"Read", "read ", "READ TEXT"}},
		{Command: domain.CommandScan, Phrases: []string{"scan"}},
		{Command: domain.CommandSelect, Phrases: []string{"pick"}},
		{Command: domain.CommandGuide, Phrases: []string{"guide"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := table.Entries()
	if entries[0].Command != domain.CommandScan || entries[3].Command != domain.CommandRead {
		t.Fatalf("entries not in canonical order: %+v", entries)
	}
	phrases := table.Phrases(domain.CommandRead)
	if len(phrases) != 2 || phrases[0] != "read" || phrases[1] != "read text" {
		t.Fatalf("unexpected normalized phrases: %v", phrases)
	}
}

func TestNewRejectsUnknownCommand(t *testing.T) {
	t.Parallel()

	if _, err := New([]Entry{{Command: "JUMP", Phrases: []string{"jump"}}}); err == nil {
		t.Fatalf("expected unknown command error")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	table, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := table.Phrases(domain.CommandGuide); len(got) != 2 {
		t.Fatalf("expected default guide phrases, got %v", got)
	}

	table, err = Load("")
	if err != nil || table.Empty() {
		t.Fatalf("expected default table for empty path, err=%v", err)
	}
}

func TestLoadOverridesListedCommands(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "keywords.yaml")
	contents := "keywords:\n  scan: [look around, Scan]\n  READ:\n    - read aloud\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	table, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cmd, ok := table.Resolve("please look around"); !ok || cmd != domain.CommandScan {
		t.Fatalf("expected override phrase to resolve SCAN, got %q %v", cmd, ok)
	}
	if cmd, ok := table.Resolve("read aloud"); !ok || cmd != domain.CommandRead {
		t.Fatalf("expected READ, got %q %v", cmd, ok)
	}
	if _, ok := table.Resolve("read it"); ok {
		t.Fatalf("replaced READ phrases should no longer match")
	}
	if cmd, ok := table.Resolve("guidance"); !ok || cmd != domain.CommandGuide {
		t.Fatalf("unlisted command should keep defaults, got %q %v", cmd, ok)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cases := map[string]string{
		"unknown.yaml": "keywords:\n  JUMP: [jump]\n",
		"empty.yaml":   "keywords:\n  GUIDE: []\n",
		"broken.yaml":  "keywords: [unterminated\n",
	}
	for name, contents := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Fatalf("expected error for %s", name)
		}
	}
}
