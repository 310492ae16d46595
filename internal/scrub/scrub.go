// Package scrub removes secrets from text before it reaches logs.
//
// A Scrubber is built once per process with the tokens it must hide and is
// then handed to whatever writes logs. It holds no global state.
package scrub

import (
	"io"
	"regexp"
	"sort"
	"strings"
)

// Mask replaces every scrubbed value.
const Mask = "***"

// minTokenLen skips tokens too short to be meaningful secrets.
const minTokenLen = 3

var patterns = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`PW='[^']*'`), "PW='" + Mask + "'"},
	{regexp.MustCompile(`PW=[^\s']+`), "PW=" + Mask},
	{regexp.MustCompile(`printf '%s\\n' '[^']*' \| sudo -S`), "printf '%s\\n' '" + Mask + "' | sudo -S"},
	{regexp.MustCompile(`(?i)("(?:password|passphrase)"\s*:\s*")[^"]*(")`), "${1}" + Mask + "${2}"},
}

// Scrubber masks a fixed set of tokens plus well known secret patterns.
// It is safe for concurrent use.
type Scrubber struct {
	tokens []string
}

// New returns a Scrubber for tokens. Empty and very short tokens are ignored.
func New(tokens ...string) *Scrubber {
	seen := make(map[string]struct{}, len(tokens))
	kept := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if len(t) < minTokenLen {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		kept = append(kept, t)
	}
	// Longest first so a token containing another is masked whole.
	sort.Slice(kept, func(i, j int) bool { return len(kept[i]) > len(kept[j]) })
	return &Scrubber{tokens: kept}
}

// Scrub returns s with all known secrets masked. A nil Scrubber still
// applies the generic patterns.
func (s *Scrubber) Scrub(raw string) string {
	if raw == "" {
		return raw
	}
	out := raw
	if s != nil {
		for _, t := range s.tokens {
			out = strings.ReplaceAll(out, t, Mask)
		}
	}
	for _, p := range patterns {
		out = p.re.ReplaceAllString(out, p.repl)
	}
	return out
}

// Len reports how many explicit tokens are registered.
func (s *Scrubber) Len() int {
	if s == nil {
		return 0
	}
	return len(s.tokens)
}

// Writer wraps w so every write is scrubbed first. Each Write call is
// scrubbed independently; callers such as zerolog write whole records.
func (s *Scrubber) Writer(w io.Writer) io.Writer {
	return &writer{s: s, w: w}
}

type writer struct {
	s *Scrubber
	w io.Writer
}

func (sw *writer) Write(p []byte) (int, error) {
	if _, err := io.WriteString(sw.w, sw.s.Scrub(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}
