package transcript

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

const defaultPassLimit = 8

// Corrections rewrites recognized speech before it is matched against
// command phrases, for example to map a common mishearing ("skan") onto the
// intended word. Rules come from a plain text file, one per line:
//
//	skan => scan              whole-word, case-insensitive literal
//	s/\bred (it|text)\b/read $1/   sed-style regex, first match
//	s/\s+/ /g                 sed-style regex, every match
//
// Blank lines and lines starting with # are ignored. Rules run in file
// order and the whole list is re-applied until nothing changes or the pass
// limit is reached.
type Corrections struct {
	rules     []rule
	passLimit int
}

type rule interface {
	apply(input string) (string, bool)
}

// None returns a corrector that leaves text untouched.
func None() *Corrections {
	return &Corrections{passLimit: defaultPassLimit}
}

// Load reads correction rules from path. An empty path or a missing file
// yields no corrections.
func Load(path string) (*Corrections, error) {
	if strings.TrimSpace(path) == "" {
		return None(), nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return None(), nil
		}
		return nil, fmt.Errorf("failed to read corrections file %q: %w", path, err)
	}

	corrections, err := Parse(string(contents))
	if err != nil {
		return nil, fmt.Errorf("failed to parse corrections file %q: %w", path, err)
	}
	return corrections, nil
}

// Parse compiles correction rules from their text form.
func Parse(contents string) (*Corrections, error) {
	var rules []rule
	for index, raw := range strings.Split(contents, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var (
			r   rule
			err error
		)
		switch {
		case isRegexRule(line):
			r, err = parseRegexRule(line)
		case strings.Contains(line, "=>"):
			r, err = parseWordRule(line)
		default:
			err = errors.New("unsupported rule format")
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", index+1, err)
		}
		rules = append(rules, r)
	}
	return &Corrections{rules: rules, passLimit: defaultPassLimit}, nil
}

// Len reports the number of rules.
func (c *Corrections) Len() int {
	if c == nil {
		return 0
	}
	return len(c.rules)
}

// Apply rewrites text.
func (c *Corrections) Apply(text string) string {
	if c.Len() == 0 {
		return text
	}

	result := text
	for pass := 0; pass < c.passLimit; pass++ {
		changed := false
		for _, r := range c.rules {
			if next, ok := r.apply(result); ok {
				result = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return result
}

type wordRule struct {
	re          *regexp.Regexp
	replacement string
}

func parseWordRule(line string) (rule, error) {
	from, to, _ := strings.Cut(line, "=>")
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from == "" {
		return nil, errors.New("word rule source cannot be empty")
	}

	re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(from) + `\b`)
	if err != nil {
		return nil, fmt.Errorf("invalid word rule source: %w", err)
	}
	return wordRule{re: re, replacement: to}, nil
}

func (r wordRule) apply(input string) (string, bool) {
	output := r.re.ReplaceAllLiteralString(input, r.replacement)
	return output, output != input
}

type regexRule struct {
	re          *regexp.Regexp
	replacement string
	global      bool
}

func isRegexRule(line string) bool {
	return len(line) > 1 && line[0] == 's' && !isWordChar(line[1])
}

func parseRegexRule(line string) (rule, error) {
	delim := line[1]

	pattern, pos, err := readDelimited(line, 2, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	replacement, pos, err := readDelimited(line, pos, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex replacement: %w", err)
	}

	// Matching is case-insensitive unless the I flag asks otherwise.
	ignoreCase, global := true, false
	for _, flag := range strings.TrimSpace(line[pos:]) {
		switch flag {
		case 'i':
			ignoreCase = true
		case 'I':
			ignoreCase = false
		case 'g':
			global = true
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", flag)
		}
	}
	if ignoreCase {
		pattern = "(?i)" + pattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return regexRule{re: re, replacement: replacement, global: global}, nil
}

func (r regexRule) apply(input string) (string, bool) {
	if r.global {
		output := r.re.ReplaceAllString(input, r.replacement)
		return output, output != input
	}

	loc := r.re.FindStringSubmatchIndex(input)
	if loc == nil {
		return input, false
	}
	expanded := r.re.ExpandString(nil, r.replacement, input, loc)
	output := input[:loc[0]] + string(expanded) + input[loc[1]:]
	return output, output != input
}

// readDelimited returns the text up to the next unescaped delim. Escapes
// are kept so the regexp compiler sees them.
func readDelimited(line string, start int, delim byte) (string, int, error) {
	var builder bytes.Buffer
	escaped := false
	for index := start; index < len(line); index++ {
		char := line[index]
		switch {
		case escaped:
			escaped = false
			if char == delim {
				builder.Truncate(builder.Len() - 1)
			}
		case char == '\\':
			escaped = true
		case char == delim:
			return builder.String(), index + 1, nil
		}
		builder.WriteByte(char)
	}
	return "", 0, errors.New("unterminated expression")
}

func isWordChar(char byte) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9') ||
		char == ' ' || char == '\t' || char == '_'
}
