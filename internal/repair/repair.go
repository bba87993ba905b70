// Package repair decides whether a turn's transcript can be trusted or needs special handling.
package repair

import (
	"encoding/binary"
	"strings"
	"unicode"
)

// Action is the repair verdict for one turn.
type Action string

const (
	ActionOK          Action = "OK"
	ActionNoSpeech    Action = "NO_SPEECH"
	ActionVeryShort   Action = "VERY_SHORT"
	ActionAffirmation Action = "AFFIRMATION"
	ActionExit        Action = "EXIT"
)

// Decision reasons.
const (
	ReasonExitKeyword  = "exit keyword"
	ReasonExitPhrase   = "exit phrase"
	ReasonAffirmation  = "user affirmation"
	ReasonTrustASR     = "enough text; trust ASR"
	ReasonShortAnswer  = "valid short answer"
	ReasonLowActivity  = "low speech activity"
	ReasonTooShort     = "utterance too short"
	ReasonSufficient   = "sufficient input"
	defaultFrameMS     = 30
	defaultAmplitude   = 700
	defaultNoSpeech    = 0.03
	defaultMinDuration = 0.5
	defaultTrustWords  = 3
	defaultShortWords  = 2
)

// Decision is the classifier output for one turn.
type Decision struct {
	Action      Action
	Reason      string
	SpeechRatio float64
	DurationSec float64
}

// Params tunes the audio and word-count thresholds.
type Params struct {
	FrameMS        int
	AmpThreshold   float64
	NoSpeechRatio  float64
	NoSpeechMinSec float64
	TrustASRWords  int
	VeryShortWords int
}

// DefaultParams returns the production thresholds.
func DefaultParams() Params {
	return Params{
		FrameMS:        defaultFrameMS,
		AmpThreshold:   defaultAmplitude,
		NoSpeechRatio:  defaultNoSpeech,
		NoSpeechMinSec: defaultMinDuration,
		TrustASRWords:  defaultTrustWords,
		VeryShortWords: defaultShortWords,
	}
}

var (
	exitKeywords = map[string]struct{}{
		"exit": {}, "quit": {}, "goodbye": {}, "bye": {}, "good bye": {}, "good night": {}, "stop": {},
	}

	exitPhrases = []string{
		"that's it for today", "that is it for today", "that's all for today",
		"we are done for today", "we're done for today", "we are done now", "we're done now",
		"let's stop here", "let us stop here", "i want to stop", "i want to finish",
		"i think that's it", "we can stop now", "we can finish now",
		"talk to you tomorrow", "we talk tomorrow", "we'll talk tomorrow", "we will talk tomorrow",
		"see you tomorrow",
	}

	affirmations = map[string]struct{}{
		"yes": {}, "yeah": {}, "yep": {}, "yup": {}, "uh huh": {}, "uhuh": {}, "mhm": {}, "mmhm": {}, "mm": {},
		"okay": {}, "ok": {}, "sure": {}, "right": {}, "true": {}, "exactly": {}, "indeed": {}, "absolutely": {},
		"of course": {}, "definitely": {}, "certainly": {},
	}

	affirmationLeads = []string{"yes ", "yeah ", "yep ", "okay ", "ok "}

	shortAnswers = map[string]struct{}{
		"yes": {}, "no": {}, "yeah": {}, "nope": {}, "yep": {}, "maybe": {}, "sometimes": {}, "often": {}, "rarely": {},
		"fine": {}, "good": {}, "okay": {}, "tired": {}, "happy": {}, "sad": {},
	}
)

// Classifier applies the ordered repair rules. It holds no per-turn state.
type Classifier struct {
	params Params
}

// NewClassifier builds a classifier; zero-valued params fall back to defaults.
func NewClassifier(params Params) Classifier {
	defaults := DefaultParams()
	if params.FrameMS <= 0 {
		params.FrameMS = defaults.FrameMS
	}
	if params.TrustASRWords <= 0 {
		params.TrustASRWords = defaults.TrustASRWords
	}
	if params.VeryShortWords <= 0 {
		params.VeryShortWords = defaults.VeryShortWords
	}
	return Classifier{params: params}
}

// Classify evaluates the rules in priority order; the first match wins.
func (c Classifier) Classify(transcript string, pcm []byte, sampleRate int) Decision {
	text := strings.TrimSpace(transcript)
	low := strings.ToLower(text)
	ratio, duration := SpeechRatio(pcm, sampleRate, c.params.FrameMS, c.params.AmpThreshold)

	decide := func(action Action, reason string) Decision {
		return Decision{Action: action, Reason: reason, SpeechRatio: ratio, DurationSec: duration}
	}

	if _, ok := exitKeywords[low]; ok {
		return decide(ActionExit, ReasonExitKeyword)
	}
	for _, phrase := range exitPhrases {
		if strings.Contains(low, phrase) {
			return decide(ActionExit, ReasonExitPhrase)
		}
	}

	if IsAffirmation(text) {
		return decide(ActionAffirmation, ReasonAffirmation)
	}

	words := strings.Fields(text)
	if len(words) >= c.params.TrustASRWords {
		return decide(ActionOK, ReasonTrustASR)
	}
	if isValidShortAnswer(low) {
		return decide(ActionOK, ReasonShortAnswer)
	}

	if ratio < c.params.NoSpeechRatio || duration < c.params.NoSpeechMinSec {
		return decide(ActionNoSpeech, ReasonLowActivity)
	}
	if len(words) <= c.params.VeryShortWords {
		return decide(ActionVeryShort, ReasonTooShort)
	}
	return decide(ActionOK, ReasonSufficient)
}

// IsAffirmation reports whether text is a bare agreement such as "yeah" or "ok!".
func IsAffirmation(text string) bool {
	low := strings.ToLower(strings.TrimSpace(text))
	if low == "" {
		return false
	}
	if _, ok := affirmations[low]; ok {
		return true
	}
	if stripped, ok := trimOneTerminal(low); ok {
		if _, found := affirmations[stripped]; found {
			return true
		}
	}
	for _, lead := range affirmationLeads {
		if strings.HasPrefix(low, lead) && len(strings.Fields(low)) <= 4 {
			return true
		}
	}
	return false
}

func trimOneTerminal(low string) (string, bool) {
	if strings.HasSuffix(low, ".") || strings.HasSuffix(low, "!") {
		return low[:len(low)-1], true
	}
	return low, false
}

func isValidShortAnswer(low string) bool {
	if low == "" {
		return false
	}
	if _, ok := shortAnswers[low]; ok {
		return true
	}
	words := strings.Fields(low)
	if len(words) > 2 {
		return false
	}
	for _, r := range strings.Join(words, "") {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// SpeechRatio frames PCM16LE mono audio and returns the voiced-frame fraction and the
// duration in seconds. A frame is voiced when its mean absolute amplitude exceeds threshold.
func SpeechRatio(pcm []byte, sampleRate int, frameMS int, threshold float64) (float64, float64) {
	samples := len(pcm) / 2
	if samples == 0 || sampleRate <= 0 {
		return 0, 0
	}

	frameLen := sampleRate * frameMS / 1000
	if frameLen < 1 {
		frameLen = 1
	}
	frames := samples / frameLen
	if frames < 1 {
		frames = 1
	}

	voiced := 0
	for f := 0; f < frames; f++ {
		start := f * frameLen
		end := start + frameLen
		if end > samples {
			end = samples
		}
		if meanAbs(pcm, start, end) > threshold {
			voiced++
		}
	}

	return float64(voiced) / float64(frames), float64(samples) / float64(sampleRate)
}

// MeanAbsAmplitude returns the mean absolute sample value of a PCM16LE buffer.
func MeanAbsAmplitude(pcm []byte) float64 {
	return meanAbs(pcm, 0, len(pcm)/2)
}

func meanAbs(pcm []byte, start, end int) float64 {
	if end <= start {
		return 0
	}
	var sum int64
	for i := start; i < end; i++ {
		sample := int64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		if sample < 0 {
			sample = -sample
		}
		sum += sample
	}
	return float64(sum) / float64(end-start)
}
