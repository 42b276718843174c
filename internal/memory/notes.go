// Package memory supplies the user's standing notes as per-exchange context.
// Notes live in a plain markdown file the user edits freely; the dashboard
// reads them on every master exchange and redacts anything secret-shaped
// before the text leaves the machine.
package memory

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	notesFileName   = "memory.md"
	defaultMaxRunes = 8000
)

type Notes struct {
	path     string
	maxRunes int
}

// NewNotes roots the notes file under the data dir.
func NewNotes(dataDir string) (*Notes, error) {
	dir := strings.TrimSpace(dataDir)
	if dir == "" {
		return nil, errors.New("data dir is required")
	}
	return &Notes{
		path:     filepath.Join(dir, notesFileName),
		maxRunes: defaultMaxRunes,
	}, nil
}

// Path returns the notes file location.
func (n *Notes) Path() string {
	if n == nil {
		return ""
	}
	return n.path
}

// Context reads, redacts, and truncates the notes. A missing file is empty
// context, not an error.
func (n *Notes) Context() (string, error) {
	if n == nil {
		return "", nil
	}
	data, err := os.ReadFile(n.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", nil
	}
	text, _ = Redact(text)
	return truncateRunes(text, n.maxRunes), nil
}

// Append adds one line to the notes file, skipping exact duplicates.
func (n *Notes) Append(line string) error {
	if n == nil {
		return errors.New("notes not configured")
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return errors.New("empty note")
	}
	existing, err := os.ReadFile(n.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	for _, have := range strings.Split(string(existing), "\n") {
		if strings.TrimSpace(have) == line {
			return nil
		}
	}
	if err := os.MkdirAll(filepath.Dir(n.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(n.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

func truncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxRunes])
}
