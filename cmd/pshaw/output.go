package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"
)

var (
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7768E"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#E0AF68"))
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#7AA2F7"))
	headerStyle   = lipgloss.NewStyle().Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#565F89"))
	attachedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ECE6A"))
)

// maxSuggestions caps the "did you mean" list.
const maxSuggestions = 3

// suggestLabels returns up to limit existing labels that fuzzy-match label,
// best match first.
func suggestLabels(label string, labels []string, limit int) []string {
	if label == "" || len(labels) == 0 {
		return nil
	}
	matches := fuzzy.Find(label, labels)
	if len(matches) == 0 {
		// Also try the other direction so "alpha2" suggests "alpha".
		for _, l := range labels {
			if strings.HasPrefix(label, l) || strings.HasPrefix(l, label) {
				matches = append(matches, fuzzy.Match{Str: l})
			}
		}
	}
	var out []string
	for _, m := range matches {
		if m.Str == label {
			continue
		}
		out = append(out, m.Str)
		if len(out) == limit {
			break
		}
	}
	return out
}

// shortenHome replaces the home directory prefix with ~.
func shortenHome(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" || path == "" {
		return path
	}
	if path == home {
		return "~"
	}
	if strings.HasPrefix(path, home+string(filepath.Separator)) {
		return "~" + path[len(home):]
	}
	return path
}
