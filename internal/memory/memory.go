// Package memory holds the per-session conversation state that keeps replies from repeating.
package memory

import (
	"maps"
	"slices"
	"strings"

	"github.com/rbright/olivia/internal/dialogue"
	"github.com/rbright/olivia/internal/nonfluency"
)

const (
	// DefaultSummaryChars bounds the rolling summary.
	DefaultSummaryChars = 900

	questionWindow = 3
	hintWords      = 8

	// ForceTopicChange is the staleness value set when the user signals frustration.
	ForceTopicChange  = 99
	staleTopicTurns   = 3
	summaryLinePrefix = "User mentioned: "
)

var frustrationPhrases = []string{"i told you", "already told", "stop asking", "move on"}

// State is owned by the turn loop. Callers mutate a Clone and swap it in once a turn succeeds.
type State struct {
	Summary            string
	TurnIndex          int
	QuestionCounts     []int
	LastBotAct         dialogue.Act
	LastNonfluency     nonfluency.Label
	PauseTier          dialogue.PauseTier
	LastUserTopicHint  string
	AskedTopics        map[string]struct{}
	BannedTopics       map[string]struct{}
	RecentBotQuestions []string
	TurnsOnTopic       int
	NonfluencyCounts   map[nonfluency.Label]int

	summaryChars int
}

// New returns a fresh session state. summaryChars <= 0 uses DefaultSummaryChars.
func New(summaryChars int) *State {
	if summaryChars <= 0 {
		summaryChars = DefaultSummaryChars
	}
	counts := make(map[nonfluency.Label]int, len(nonfluency.Labels))
	for _, label := range nonfluency.Labels {
		counts[label] = 0
	}
	return &State{
		LastNonfluency:   nonfluency.Fluent,
		PauseTier:        dialogue.TierMedium,
		AskedTopics:      map[string]struct{}{},
		BannedTopics:     map[string]struct{}{},
		NonfluencyCounts: counts,
		summaryChars:     summaryChars,
	}
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	out := *s
	out.QuestionCounts = slices.Clone(s.QuestionCounts)
	out.RecentBotQuestions = slices.Clone(s.RecentBotQuestions)
	out.AskedTopics = maps.Clone(s.AskedTopics)
	out.BannedTopics = maps.Clone(s.BannedTopics)
	out.NonfluencyCounts = maps.Clone(s.NonfluencyCounts)
	if out.AskedTopics == nil {
		out.AskedTopics = map[string]struct{}{}
	}
	if out.BannedTopics == nil {
		out.BannedTopics = map[string]struct{}{}
	}
	if out.NonfluencyCounts == nil {
		out.NonfluencyCounts = map[nonfluency.Label]int{}
	}
	return &out
}

// Update folds one completed turn into the state.
func (s *State) Update(userText string, botText string, act dialogue.Act, label nonfluency.Label) {
	s.TurnIndex++
	s.LastBotAct = act
	s.LastNonfluency = label
	if s.NonfluencyCounts == nil {
		s.NonfluencyCounts = map[nonfluency.Label]int{}
	}
	s.NonfluencyCounts[label]++

	s.QuestionCounts = pushBounded(s.QuestionCounts, strings.Count(botText, "?"), questionWindow)

	if s.AskedTopics == nil {
		s.AskedTopics = map[string]struct{}{}
	}
	for _, topic := range ExtractTopics(botText) {
		s.AskedTopics[topic] = struct{}{}
	}
	if strings.Contains(botText, "?") {
		s.RecentBotQuestions = pushBounded(s.RecentBotQuestions, strings.TrimSpace(botText), questionWindow)
	}

	userLow := strings.ToLower(userText)
	if containsAny(userLow, frustrationPhrases) {
		s.TurnsOnTopic = ForceTopicChange
	} else {
		s.TurnsOnTopic++
	}

	words := strings.Fields(userText)
	if len(words) > 0 {
		if len(words) > hintWords {
			words = words[len(words)-hintWords:]
		}
		s.LastUserTopicHint = strings.Join(words, " ")
	}

	var add string
	if trimmed := strings.TrimSpace(userText); trimmed != "" {
		add = summaryLinePrefix + trimmed + "\n"
	}
	s.Summary = tailRunes(strings.TrimSpace(s.Summary+"\n"+add), s.summaryLimit())
}

// QuestionPressure is the number of questions asked across the last three bot turns.
func (s *State) QuestionPressure() int {
	total := 0
	for _, count := range s.QuestionCounts {
		total += count
	}
	return total
}

// ShouldChangeTopic reports whether the conversation has lingered on one topic too long.
func (s *State) ShouldChangeTopic() bool {
	return s.TurnsOnTopic >= staleTopicTurns
}

func (s *State) ResetTopicCounter() {
	s.TurnsOnTopic = 0
}

// BanTopic records a topic the user complained about.
func (s *State) BanTopic(topic string) {
	topic = strings.ToLower(strings.TrimSpace(topic))
	if topic == "" {
		return
	}
	if s.BannedTopics == nil {
		s.BannedTopics = map[string]struct{}{}
	}
	s.BannedTopics[topic] = struct{}{}
}

// ResetForComplaint starts the conversation afresh after the user complained about repetition.
func (s *State) ResetForComplaint(banned ...string) {
	s.Summary = ""
	s.TurnsOnTopic = 0
	for _, topic := range banned {
		s.BanTopic(topic)
	}
}

// AvoidedTopics renders banned and already-asked topics as advisory prompt lines.
func (s *State) AvoidedTopics() string {
	parts := make([]string, 0, 2)
	if len(s.BannedTopics) > 0 {
		parts = append(parts, "BANNED TOPICS (user complained - NEVER mention these): "+joinSorted(s.BannedTopics))
	}
	if len(s.AskedTopics) > 0 {
		parts = append(parts, "Already discussed (don't repeat): "+joinSorted(s.AskedTopics))
	}
	return strings.Join(parts, "\n")
}

// LastQuestionCount returns the question count of the most recent bot turn.
func (s *State) LastQuestionCount() int {
	if len(s.QuestionCounts) == 0 {
		return 0
	}
	return s.QuestionCounts[len(s.QuestionCounts)-1]
}

func (s *State) summaryLimit() int {
	if s.summaryChars <= 0 {
		return DefaultSummaryChars
	}
	return s.summaryChars
}

func pushBounded[T any](items []T, item T, limit int) []T {
	items = append(items, item)
	if len(items) > limit {
		items = slices.Clone(items[len(items)-limit:])
	}
	return items
}

func tailRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[len(runes)-limit:])
}

func joinSorted(set map[string]struct{}) string {
	return strings.Join(slices.Sorted(maps.Keys(set)), ", ")
}

func containsAny(text string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}
