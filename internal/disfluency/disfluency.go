// Package disfluency detects repeat requests and strips spoken fillers from transcripts.
package disfluency

import (
	"regexp"
	"strings"
)

type RepeatIntent string

const (
	RepeatNone              RepeatIntent = "NONE"
	RepeatQuestion          RepeatIntent = "REPEAT_QUESTION"
	RepeatLastUtterance     RepeatIntent = "REPEAT_LAST_UTTERANCE"
	RepeatClarifyOrRephrase RepeatIntent = "CLARIFY_OR_REPHRASE"
)

var (
	repeatTriggers = []string{
		"repeat",
		"say again",
		"again please",
		"once more",
		"didn't hear",
		"did not hear",
		"didn't catch",
		"did not catch",
		"pardon",
		"sorry i didn't hear",
		"could you repeat",
	}

	// negativeRepeatSignals are complaints about repetition, checked before the triggers.
	negativeRepeatSignals = []string{
		"stop repeating",
		"don't repeat",
		"do not repeat",
		"keep repeating",
		"going in circles",
		"circles",
		"you repeating me",
		"you repeating",
		"were repeating me",
		"were repeating",
		"are repeating me",
		"are repeating",
		"why repeat",
		"why are you repeating",
		"why were you repeating",
		"why you repeating",
		"you don't have to repeat",
		"don't have to repeat",
		"don't need to repeat",
		"no need to repeat",
		"necessarily have to repeat",
		"move on from repeating",
		"move on with",
		"from repeating",
		"that's what i said",
		"what i said",
		"i just said",
		"i already said",
		"already told you",
		"just told you",
	}

	questionCues = []string{
		"question",
		"last part",
		"end of the sentence",
		"end of your sentence",
		"what did you say",
		"what you said",
	}

	acousticFillers  = []string{"um", "uh", "erm", "eh", "ah", "hmm", "umm"}
	discourseMarkers = []string{"you know", "i mean", "like", "sort of", "kinda", "kind of", "well"}

	llmFillerPattern      = fillerPattern(acousticFillers)
	analysisFillerPattern = fillerPattern(append(append([]string{}, acousticFillers...), discourseMarkers...))
)

// ClassifyRepeatIntent is conservative: complaints about repetition never count as requests,
// and an ambiguous request asks to clarify instead of replaying a long reply.
func ClassifyRepeatIntent(text string) RepeatIntent {
	low := strings.ToLower(strings.TrimSpace(text))
	if low == "" {
		return RepeatNone
	}
	if containsAny(low, negativeRepeatSignals) {
		return RepeatNone
	}
	if !containsAny(low, repeatTriggers) {
		return RepeatNone
	}
	if containsAny(low, questionCues) {
		return RepeatQuestion
	}
	return RepeatClarifyOrRephrase
}

// CleanForLLM removes acoustic fillers only; discourse markers carry intent and stay.
func CleanForLLM(text string) string {
	return removeFillers(text, llmFillerPattern)
}

// CleanForAnalysis also removes discourse markers.
func CleanForAnalysis(text string) string {
	return removeFillers(text, analysisFillerPattern)
}

func removeFillers(text string, pattern *regexp.Regexp) string {
	if text == "" {
		return ""
	}
	return strings.Join(strings.Fields(pattern.ReplaceAllString(text, "")), " ")
}

func fillerPattern(fillers []string) *regexp.Regexp {
	quoted := make([]string, 0, len(fillers))
	for _, filler := range fillers {
		quoted = append(quoted, regexp.QuoteMeta(filler))
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

func containsAny(text string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}
