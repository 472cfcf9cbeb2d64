// Package glossary loads bilingual term lists and finds their terms in
// transcripts.
//
// A glossary file holds one entry per line:
//
//	source term<TAB>variant one,variant two
//
// Everything is lower-cased on load. Lines without a tab are skipped, and a
// source term that appears on several lines collects the variants of all of
// them in file order.
package glossary

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Entry is one source term and its accepted target variants, in order.
type Entry struct {
	Source  string
	Targets []string
}

// Parse reads glossary lines from r.
func Parse(r io.Reader) ([]Entry, error) {
	var (
		entries []Entry
		index   = make(map[string]int)
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		src, rest, ok := strings.Cut(text, "\t")
		src = strings.ToLower(strings.TrimSpace(src))
		if !ok || src == "" {
			slog.Warn("glossary: skipping malformed line", "line", line)
			continue
		}
		var targets []string
		for _, t := range strings.Split(rest, ",") {
			if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
				targets = append(targets, t)
			}
		}
		if len(targets) == 0 {
			slog.Warn("glossary: skipping entry without targets", "line", line, "source", src)
			continue
		}
		if i, dup := index[src]; dup {
			entries[i].Targets = append(entries[i].Targets, targets...)
			continue
		}
		index[src] = len(entries)
		entries = append(entries, Entry{Source: src, Targets: targets})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("glossary: read: %w", err)
	}
	return entries, nil
}

// Load parses the glossary file at path.
func Load(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("glossary: open %q: %w", path, err)
	}
	defer f.Close()
	entries, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("glossary: %q: %w", path, err)
	}
	return entries, nil
}

// WriteFile writes entries to path in the glossary file format, replacing
// any existing file.
func WriteFile(path string, entries []Entry) error {
	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(e.Source)
		sb.WriteByte('\t')
		sb.WriteString(strings.Join(e.Targets, ","))
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o600); err != nil {
		return fmt.Errorf("glossary: write %q: %w", path, err)
	}
	return nil
}
