// Package policy turns the per-turn signals and conversation memory into a bounded reply directive.
package policy

import (
	"strings"

	"github.com/rbright/olivia/internal/dialogue"
	"github.com/rbright/olivia/internal/memory"
	"github.com/rbright/olivia/internal/nonfluency"
	"github.com/rbright/olivia/internal/repair"
)

const (
	openingTurns      = 3
	fastFluentTurns   = 4
	progressFromTurn  = 4
	progressEvery     = 3
	commentPressure   = 2
	pronounMaxWords   = 3
	ellipsis          = "..."
	oneSentence       = 1
	twoSentences      = 2
	noQuestions       = 0
	oneQuestionBudget = 1
)

var (
	fillerReplies = map[string]struct{}{
		"i'm": {}, "it was": {}, "i was": {}, "maybe": {}, "not sure": {},
	}
	vaguePronouns = map[string]struct{}{
		"it": {}, "that": {}, "this": {}, "he": {}, "she": {}, "they": {},
	}
)

// Input is the current turn's signals.
type Input struct {
	UserText      string
	RepairAction  repair.Action
	Nonfluency    nonfluency.Label
	RepeatRequest bool
	WasInterrupt  bool
}

// Decision is the directive handed to generation.
type Decision struct {
	Act            dialogue.Act
	QuestionBudget int
	PauseTier      dialogue.PauseTier
	MaxSentences   int
}

// Decide is a pure function of the memory snapshot and the current turn; rules are first-match-wins.
func Decide(mem *memory.State, in Input) Decision {
	tier := PauseTier(mem, in.Nonfluency)
	pressure := mem.QuestionPressure()
	base := BaseBudget(mem.TurnIndex, pressure)

	switch {
	case in.RepairAction == repair.ActionNoSpeech:
		return Decision{Act: dialogue.ActNudge, QuestionBudget: base, PauseTier: tier, MaxSentences: oneSentence}

	case in.RepairAction == repair.ActionVeryShort:
		return Decision{Act: dialogue.ActRepairGentle, QuestionBudget: oneQuestionBudget, PauseTier: dialogue.TierSlow, MaxSentences: oneSentence}

	case in.RepeatRequest || in.WasInterrupt || in.Nonfluency == nonfluency.Interrupted:
		return Decision{Act: dialogue.ActAnchorAndResume, QuestionBudget: pressureBudget(pressure), PauseTier: dialogue.TierSlow, MaxSentences: twoSentences}

	case NeedsClarification(in.UserText):
		return Decision{Act: dialogue.ActClarify, QuestionBudget: oneQuestionBudget, PauseTier: dialogue.TierSlow, MaxSentences: oneSentence}

	case in.Nonfluency == nonfluency.Hesitant || in.Nonfluency == nonfluency.SelfRepair:
		return Decision{Act: dialogue.ActComment, QuestionBudget: noQuestions, PauseTier: dialogue.TierSlow, MaxSentences: twoSentences}

	case mem.TurnIndex >= progressFromTurn && in.Nonfluency == nonfluency.Fluent:
		act := dialogue.ActComment
		if mem.TurnIndex%progressEvery == 0 {
			act = dialogue.ActProgressTopic
		}
		return Decision{Act: act, QuestionBudget: noQuestions, PauseTier: tier, MaxSentences: twoSentences}

	case pressure >= commentPressure:
		return Decision{Act: dialogue.ActComment, QuestionBudget: noQuestions, PauseTier: tier, MaxSentences: twoSentences}

	default:
		return Decision{Act: dialogue.ActElaborate, QuestionBudget: base, PauseTier: tier, MaxSentences: twoSentences}
	}
}

// PauseTier picks pacing from the current label and the sustained fluency in memory.
func PauseTier(mem *memory.State, label nonfluency.Label) dialogue.PauseTier {
	if label.IsNonfluent() {
		return dialogue.TierSlow
	}
	if mem.LastNonfluency == nonfluency.Fluent && mem.NonfluencyCounts[nonfluency.Fluent] >= fastFluentTurns {
		return dialogue.TierFast
	}
	return dialogue.TierMedium
}

// BaseBudget allows one question during the opening turns, then only when recent pressure is zero.
func BaseBudget(turnIndex int, pressure int) int {
	if turnIndex < openingTurns {
		return oneQuestionBudget
	}
	return pressureBudget(pressure)
}

func pressureBudget(pressure int) int {
	if pressure >= 1 {
		return noQuestions
	}
	return oneQuestionBudget
}

// NeedsClarification flags empty, filler-only, trailing-ellipsis and pronoun-dominated replies.
func NeedsClarification(userText string) bool {
	text := strings.TrimSpace(userText)
	if text == "" {
		return true
	}
	low := strings.ToLower(text)
	if _, ok := fillerReplies[low]; ok {
		return true
	}
	if strings.HasSuffix(text, ellipsis) {
		return true
	}

	words := strings.Fields(low)
	if len(words) > pronounMaxWords {
		return false
	}
	for _, word := range words {
		if _, ok := vaguePronouns[strings.Trim(word, ".,!?;:'\"")]; ok {
			return true
		}
	}
	return false
}
