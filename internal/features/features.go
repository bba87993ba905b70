// Package features extracts lexical signals from one user utterance.
package features

import (
	"regexp"
	"strings"
)

// repetitionWindow is the number of trailing words inspected for restatement.
const repetitionWindow = 10

var (
	trailingConjunctionPattern = regexp.MustCompile(`(?i)\b(and|because|so|but|then|or)\b[.!\s]*$`)
	repairMarkerPattern        = regexp.MustCompile(`(?i)\b(i mean|sorry|no\s+wait|no,\s*wait|let me)\b`)
)

// Features is the pure lexical summary of one utterance.
type Features struct {
	WordCount              int
	HasTrailingConjunction bool
	HasRepairMarker        bool
	RepetitionScore        float64
	EndsWithPunctuation    bool
}

// Extract derives Features from raw transcript text.
func Extract(text string) Features {
	trimmed := strings.TrimSpace(text)
	words := strings.Fields(strings.ToLower(trimmed))

	return Features{
		WordCount:              len(words),
		HasTrailingConjunction: trailingConjunctionPattern.MatchString(trimmed),
		HasRepairMarker:        repairMarkerPattern.MatchString(trimmed),
		RepetitionScore:        repetitionScore(words),
		EndsWithPunctuation:    endsWithPunctuation(trimmed),
	}
}

// repetitionScore is (window size - distinct words) / window size over the trailing window.
func repetitionScore(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	tail := words
	if len(tail) > repetitionWindow {
		tail = tail[len(tail)-repetitionWindow:]
	}

	distinct := make(map[string]struct{}, len(tail))
	for _, word := range tail {
		distinct[word] = struct{}{}
	}
	return float64(len(tail)-len(distinct)) / float64(len(tail))
}

func endsWithPunctuation(text string) bool {
	if text == "" {
		return false
	}
	switch text[len(text)-1] {
	case '.', '!', '?':
		return true
	default:
		return false
	}
}
