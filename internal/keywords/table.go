package keywords

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"assistctl/internal/domain"
)

// Entry lists the trigger phrases of one command.
type Entry struct {
	Command domain.Command
	Phrases []string
}

// Table maps utterances to commands. Entries are kept in canonical command
// order, which is also the resolution order.
type Table struct {
	entries []Entry
}

// Default returns the built-in phrase table.
func Default() Table {
	return Table{entries: []Entry{
		{Command: domain.CommandScan, Phrases: []string{"scan", "scanning", "start scan"}},
		{Command: domain.CommandGuide, Phrases: []string{"guide", "guidance"}},
		{Command: domain.CommandSelect, Phrases: []string{"select", "choose", "object", "select object"}},
		{Command: domain.CommandRead, Phrases: []string{"read", "read text", "read it"}},
	}}
}

// New builds a table from entries. Phrases are lowercased, trimmed and
// deduplicated; every command must end up with at least one phrase.
func New(entries []Entry) (Table, error) {
	byCommand := make(map[domain.Command][]string, len(entries))
	for _, entry := range entries {
		if !entry.Command.Valid() {
			return Table{}, fmt.Errorf("unknown command %q", entry.Command)
		}
		byCommand[entry.Command] = append(byCommand[entry.Command], entry.Phrases...)
	}

	ordered := make([]Entry, 0, len(byCommand))
	for _, cmd := range domain.Commands() {
		phrases := normalizePhrases(byCommand[cmd])
		if len(phrases) == 0 {
			return Table{}, fmt.Errorf("command %s has no keywords", cmd)
		}
		ordered = append(ordered, Entry{Command: cmd, Phrases: phrases})
	}
	return Table{entries: ordered}, nil
}

// Resolve returns the first command, in table order, with a phrase contained
// in the utterance. Matching is substring containment, so "reading" matches
// READ and "an object to guide" matches GUIDE only because GUIDE is checked
// before SELECT.
func (t Table) Resolve(utterance string) (domain.Command, bool) {
	text := Normalize(utterance)
	if text == "" {
		return "", false
	}
	for _, entry := range t.entries {
		for _, phrase := range entry.Phrases {
			if strings.Contains(text, phrase) {
				return entry.Command, true
			}
		}
	}
	return "", false
}

// Entries returns a copy of the table.
func (t Table) Entries() []Entry {
	return lo.Map(t.entries, func(entry Entry, _ int) Entry {
		return Entry{Command: entry.Command, Phrases: append([]string(nil), entry.Phrases...)}
	})
}

// Phrases returns the trigger phrases of cmd.
func (t Table) Phrases(cmd domain.Command) []string {
	entry, ok := lo.Find(t.entries, func(entry Entry) bool { return entry.Command == cmd })
	if !ok {
		return nil
	}
	return append([]string(nil), entry.Phrases...)
}

// Empty reports whether the table has no entries (zero value).
func (t Table) Empty() bool {
	return len(t.entries) == 0
}

// Normalize lowercases and trims an utterance.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func normalizePhrases(phrases []string) []string {
	return lo.Uniq(lo.Compact(lo.Map(phrases, func(phrase string, _ int) string {
		return Normalize(phrase)
	})))
}

type fileFormat struct {
	Keywords map[string][]string `yaml:"keywords"`
}

// Load reads phrase overrides from a YAML file:
//
//	keywords:
//	  SCAN: [scan, look around]
//	  READ: [read, read text]
//
// Commands not listed keep their default phrases. A missing file or empty
// path yields the default table.
func Load(path string) (Table, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Table{}, fmt.Errorf("failed to read keywords file %q: %w", path, err)
	}

	table, err := Parse(contents)
	if err != nil {
		return Table{}, fmt.Errorf("failed to parse keywords file %q: %w", path, err)
	}
	return table, nil
}

// Parse applies YAML phrase overrides on top of the default table.
func Parse(contents []byte) (Table, error) {
	var parsed fileFormat
	if err := yaml.Unmarshal(contents, &parsed); err != nil {
		return Table{}, err
	}

	overrides := make(map[domain.Command][]string, len(parsed.Keywords))
	for name, phrases := range parsed.Keywords {
		cmd, err := domain.ParseCommand(name)
		if err != nil {
			return Table{}, err
		}
		overrides[cmd] = phrases
	}

	entries := lo.Map(Default().entries, func(entry Entry, _ int) Entry {
		if phrases, ok := overrides[entry.Command]; ok {
			return Entry{Command: entry.Command, Phrases: phrases}
		}
		return entry
	})
	return New(entries)
}
