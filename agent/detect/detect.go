package detect

import (
	"regexp"
	"strings"
)

// URLPattern is the permissive URL matcher applied to utterances.
const URLPattern = `http[s]?://(?:[a-zA-Z]|[0-9]|[$-_@.&+]|[!*\(\),]|(?:%[0-9a-fA-F][0-9a-fA-F]))+`

// DefaultImageHints are the substrings that mark an utterance as image-bearing.
var DefaultImageHints = []string{"jpg", "png", "jpeg", "gif"}

// URLDetector extracts an image URL candidate from an utterance.
type URLDetector interface {
	Detect(text string) (string, bool)
}

// RegexDetector is the keyword-gated regex heuristic.
type RegexDetector struct {
	pattern *regexp.Regexp
	hints   []string
}

// NewRegexDetector creates a detector. Empty hints use DefaultImageHints.
func NewRegexDetector(hints ...string) *RegexDetector {
	if len(hints) == 0 {
		hints = DefaultImageHints
	}
	lower := make([]string, len(hints))
	for i, h := range hints {
		lower[i] = strings.ToLower(h)
	}
	return &RegexDetector{
		pattern: regexp.MustCompile(URLPattern),
		hints:   lower,
	}
}

// Detect lower-cases text and, when it mentions "http" and an image hint,
// returns the first URL-shaped substring.
func (d *RegexDetector) Detect(text string) (string, bool) {
	lowered := strings.ToLower(text)
	if !strings.Contains(lowered, "http") || !d.mentionsImage(lowered) {
		return "", false
	}
	match := d.pattern.FindString(lowered)
	if match == "" {
		return "", false
	}
	return match, true
}

func (d *RegexDetector) mentionsImage(text string) bool {
	for _, h := range d.hints {
		if strings.Contains(text, h) {
			return true
		}
	}
	return false
}

// DetectorFunc adapts a function to URLDetector.
type DetectorFunc func(text string) (string, bool)

// Detect calls f.
func (f DetectorFunc) Detect(text string) (string, bool) { return f(text) }
