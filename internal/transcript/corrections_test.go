package transcript

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCorrectionsWordAndRegexRules(t *testing.T) {
	t.Parallel()

	corrections, err := Parse(`
# mishearings
skan => scan
s/\bred (it|text)\b/read $1/
s/\s+/ /g
`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if corrections.Len() != 3 {
		t.Fatalf("expected 3 rules, got %d", corrections.Len())
	}

	if got := corrections.Apply("please   SKAN now"); got != "please scan now" {
		t.Fatalf("unexpected output: %q", got)
	}
	if got := corrections.Apply("red it to me"); got != "read it to me" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestCorrectionsMatchWholeWords(t *testing.T) {
	t.Parallel()

	corrections, err := Parse("gide => guide\n")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if got := corrections.Apply("gideon"); got != "gideon" {
		t.Fatalf("word rule rewrote part of a word: %q", got)
	}
	if got := corrections.Apply("gide me"); got != "guide me" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestCorrectionsIterateUntilStable(t *testing.T) {
	t.Parallel()

	corrections, err := Parse("b => c\na => b\n")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if got := corrections.Apply("a"); got != "c" {
		t.Fatalf("expected c, got %q", got)
	}
}

func TestCorrectionsPassLimitStopsGrowth(t *testing.T) {
	t.Parallel()

	corrections, err := Parse("scan => start scan\n")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	got := corrections.Apply("scan")
	if strings.Count(got, "start") != defaultPassLimit {
		t.Fatalf("expected growth bounded by pass limit, got %q", got)
	}
}

func TestCorrectionsRegexFlagsAndEscapes(t *testing.T) {
	t.Parallel()

	corrections, err := Parse(`s|a/b|slash|I` + "\n" + `s/x\/y/z/`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if got := corrections.Apply("A/B a/b"); got != "A/B slash" {
		t.Fatalf("case-sensitive rule misapplied: %q", got)
	}
	if got := corrections.Apply("x/y"); got != "z" {
		t.Fatalf("escaped delimiter not honored: %q", got)
	}
}

func TestParseReportsLineNumbers(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"ok => fine\njust words": "line 2",
		" => empty":              "line 1",
		"s/unterminated":         "line 1",
		"s/a/b/q":                "unsupported regex flag",
		"\n\ns/(/x/":             "line 3",
	}
	for input, want := range cases {
		_, err := Parse(input)
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("Parse(%q) error = %v, want %q", input, err, want)
		}
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	corrections, err := Load("")
	if err != nil || corrections.Len() != 0 {
		t.Fatalf("empty path should yield no corrections, got %v", err)
	}

	dir := t.TempDir()
	corrections, err = Load(filepath.Join(dir, "missing.rules"))
	if err != nil || corrections.Len() != 0 {
		t.Fatalf("missing file should yield no corrections, got %v", err)
	}

	path := filepath.Join(dir, "corrections.rules")
	if err := os.WriteFile(path, []byte("skan => scan\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	corrections, err = Load(path)
	if err != nil || corrections.Len() != 1 {
		t.Fatalf("expected one rule, got %d (%v)", corrections.Len(), err)
	}

	bad := filepath.Join(dir, "bad.rules")
	if err := os.WriteFile(bad, []byte("nonsense\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := Load(bad); err == nil || !strings.Contains(err.Error(), bad) {
		t.Fatalf("expected parse error naming the file, got %v", err)
	}
}

func TestNilCorrectionsPassThrough(t *testing.T) {
	t.Parallel()

	var corrections *Corrections
	if got := corrections.Apply("scan"); got != "scan" {
		t.Fatalf("nil corrections changed text: %q", got)
	}
}
