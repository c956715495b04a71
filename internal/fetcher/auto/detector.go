package auto

import (
	"strings"
)

const defaultBodyThreshold = 2048

// Heuristic decides whether a statically fetched page needs a browser.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a detector; zero threshold uses 2048 bytes.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = defaultBodyThreshold
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

var spaMarkers = []string{
	`id="__next"`,
	`id="__nuxt"`,
	`id="root"`,
	`id="app"`,
	"data-reactroot",
	"ng-version=",
	"enable javascript",
	"javascript is required",
}

// ShouldPromote reports whether html looks client-rendered.
func (h *Heuristic) ShouldPromote(html string) bool {
	if strings.TrimSpace(html) == "" {
		return true
	}
	lower := strings.ToLower(html)
	if len(lower) < h.BodyLengthThreshold && scriptDensityHigh(lower) {
		return true
	}
	for _, marker := range spaMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// scriptDensityHigh expects lowercase input.
func scriptDensityHigh(lower string) bool {
	total := len(lower)
	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	coverage := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel
		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			// Malformed tag; the rest counts as script.
			coverage += total - start
			break
		}
		contentStart := start + tagClose + 1
		end := strings.Index(lower[contentStart:], closeTag)
		next := total
		if end != -1 {
			next = contentStart + end + len(closeTag)
		}
		coverage += next - start
		pos = next
	}
	return coverage > 0 && coverage*100/total >= 25
}
