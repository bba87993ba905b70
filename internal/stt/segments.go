package stt

import "strings"

// Assemble joins committed segments plus a trailing interim into one transcript.
func Assemble(committed []string, lastInterim string) string {
	return strings.Join(collectSegments(committed, lastInterim), " ")
}

// collectSegments appends a valid trailing interim segment when needed.
func collectSegments(committed []string, lastInterim string) []string {
	segments := append([]string(nil), committed...)
	if interim := cleanSegment(lastInterim); interim != "" {
		segments = appendSegment(segments, interim)
	}
	return segments
}

// appendSegment merges continuation segments so a growing hypothesis does not duplicate text.
func appendSegment(segments []string, transcript string) []string {
	transcript = cleanSegment(transcript)
	if transcript == "" {
		return segments
	}
	if len(segments) == 0 {
		return append(segments, transcript)
	}

	last := segments[len(segments)-1]
	switch {
	case transcript == last, strings.HasPrefix(last, transcript):
		return segments
	case strings.HasPrefix(transcript, last):
		segments[len(segments)-1] = transcript
		return segments
	default:
		return append(segments, transcript)
	}
}

// isInterimContinuation reports whether current still revises the same speech as previous.
// Half the shorter hypothesis sharing leading words, or most of it sharing trailing words,
// counts as a revision.
func isInterimContinuation(previous string, current string) bool {
	previous = cleanSegment(previous)
	current = cleanSegment(current)
	if previous == "" || current == "" {
		return true
	}
	if strings.HasPrefix(current, previous) || strings.HasPrefix(previous, current) ||
		strings.HasSuffix(previous, current) {
		return true
	}

	prevWords := strings.Fields(previous)
	currWords := strings.Fields(current)
	shorter := min(len(prevWords), len(currWords))
	return commonPrefixWords(prevWords, currWords)*2 >= shorter ||
		commonSuffixWords(prevWords, currWords)*2 > shorter
}

func commonPrefixWords(left []string, right []string) int {
	limit := min(len(left), len(right))
	for i := 0; i < limit; i++ {
		if left[i] != right[i] {
			return i
		}
	}
	return limit
}

func commonSuffixWords(left []string, right []string) int {
	limit := min(len(left), len(right))
	for i := 0; i < limit; i++ {
		if left[len(left)-1-i] != right[len(right)-1-i] {
			return i
		}
	}
	return limit
}

func cleanSegment(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}
