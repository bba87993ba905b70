package policy

import (
	"testing"

	"github.com/rbright/olivia/internal/dialogue"
	"github.com/rbright/olivia/internal/features"
	"github.com/rbright/olivia/internal/memory"
	"github.com/rbright/olivia/internal/nonfluency"
	"github.com/rbright/olivia/internal/repair"
	"github.com/stretchr/testify/require"
)

// memoryAt builds a state with the given turn index, fluent tally and question window.
func memoryAt(turn int, fluent int, questions ...int) *memory.State {
	mem := memory.New(0)
	mem.TurnIndex = turn
	mem.NonfluencyCounts[nonfluency.Fluent] = fluent
	mem.QuestionCounts = questions
	return mem
}

func fluentInput(text string) Input {
	return Input{UserText: text, RepairAction: repair.ActionOK, Nonfluency: nonfluency.Fluent}
}

func TestDecideRules(t *testing.T) {
	tests := []struct {
		name string
		mem  *memory.State
		in   Input
		want Decision
	}{
		{
			name: "no speech nudges with base budget",
			mem:  memoryAt(1, 0),
			in:   Input{RepairAction: repair.ActionNoSpeech, Nonfluency: nonfluency.Hesitant},
			want: Decision{Act: dialogue.ActNudge, QuestionBudget: 1, PauseTier: dialogue.TierSlow, MaxSentences: 1},
		},
		{
			name: "very short repairs gently",
			mem:  memoryAt(6, 0, 1, 1, 1),
			in:   Input{UserText: "42", RepairAction: repair.ActionVeryShort, Nonfluency: nonfluency.Hesitant},
			want: Decision{Act: dialogue.ActRepairGentle, QuestionBudget: 1, PauseTier: dialogue.TierSlow, MaxSentences: 1},
		},
		{
			name: "repeat request anchors",
			mem:  memoryAt(6, 0),
			in:   Input{UserText: "We went to the coast.", RepairAction: repair.ActionOK, Nonfluency: nonfluency.Fluent, RepeatRequest: true},
			want: Decision{Act: dialogue.ActAnchorAndResume, QuestionBudget: 1, PauseTier: dialogue.TierSlow, MaxSentences: 2},
		},
		{
			name: "interrupted label anchors without question under pressure",
			mem:  memoryAt(1, 0, 1),
			in:   Input{UserText: "We went to the coast.", RepairAction: repair.ActionOK, Nonfluency: nonfluency.Interrupted},
			want: Decision{Act: dialogue.ActAnchorAndResume, QuestionBudget: 0, PauseTier: dialogue.TierSlow, MaxSentences: 2},
		},
		{
			name: "ellipsis clarifies",
			mem:  memoryAt(6, 0),
			in:   fluentInput("We went to the coast and..."),
			want: Decision{Act: dialogue.ActClarify, QuestionBudget: 1, PauseTier: dialogue.TierSlow, MaxSentences: 1},
		},
		{
			name: "hesitant comments slowly",
			mem:  memoryAt(1, 0),
			in:   Input{UserText: "the old harbour wall", RepairAction: repair.ActionOK, Nonfluency: nonfluency.Hesitant},
			want: Decision{Act: dialogue.ActComment, QuestionBudget: 0, PauseTier: dialogue.TierSlow, MaxSentences: 2},
		},
		{
			name: "self repair comments slowly",
			mem:  memoryAt(1, 0),
			in:   Input{UserText: "It was Monday, I mean Tuesday.", RepairAction: repair.ActionOK, Nonfluency: nonfluency.SelfRepair},
			want: Decision{Act: dialogue.ActComment, QuestionBudget: 0, PauseTier: dialogue.TierSlow, MaxSentences: 2},
		},
		{
			name: "progress topic every third turn",
			mem:  memoryAt(6, 0),
			in:   fluentInput("We moved here in the spring."),
			want: Decision{Act: dialogue.ActProgressTopic, QuestionBudget: 0, PauseTier: dialogue.TierMedium, MaxSentences: 2},
		},
		{
			name: "comment on other late fluent turns",
			mem:  memoryAt(5, 0),
			in:   fluentInput("We moved here in the spring."),
			want: Decision{Act: dialogue.ActComment, QuestionBudget: 0, PauseTier: dialogue.TierMedium, MaxSentences: 2},
		},
		{
			name: "question pressure forces comment",
			mem:  memoryAt(3, 0, 1, 1),
			in:   fluentInput("We moved here in the spring."),
			want: Decision{Act: dialogue.ActComment, QuestionBudget: 0, PauseTier: dialogue.TierMedium, MaxSentences: 2},
		},
		{
			name: "elaborate during opening",
			mem:  memoryAt(0, 0),
			in:   fluentInput("We moved here in the spring."),
			want: Decision{Act: dialogue.ActElaborate, QuestionBudget: 1, PauseTier: dialogue.TierMedium, MaxSentences: 2},
		},
		{
			name: "elaborate after opening with light pressure",
			mem:  memoryAt(3, 0, 1),
			in:   fluentInput("We moved here in the spring."),
			want: Decision{Act: dialogue.ActElaborate, QuestionBudget: 0, PauseTier: dialogue.TierMedium, MaxSentences: 2},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Decide(tc.mem, tc.in))
		})
	}
}

func TestPauseTier(t *testing.T) {
	fluent := memoryAt(5, 4)
	require.Equal(t, dialogue.TierFast, PauseTier(fluent, nonfluency.Fluent))
	require.Equal(t, dialogue.TierSlow, PauseTier(fluent, nonfluency.Abandoned))

	fewFluent := memoryAt(5, 3)
	require.Equal(t, dialogue.TierMedium, PauseTier(fewFluent, nonfluency.Fluent))

	lastHesitant := memoryAt(5, 9)
	lastHesitant.LastNonfluency = nonfluency.Hesitant
	require.Equal(t, dialogue.TierMedium, PauseTier(lastHesitant, nonfluency.Fluent))
}

func TestBudgetAndTierVaryIndependently(t *testing.T) {
	in := fluentInput("We moved here in the spring.")

	// Same tier, budget driven by question pressure.
	open := Decide(memoryAt(3, 4), in)
	pressured := Decide(memoryAt(3, 4, 1), in)
	require.Equal(t, dialogue.TierFast, open.PauseTier)
	require.Equal(t, dialogue.TierFast, pressured.PauseTier)
	require.Equal(t, 1, open.QuestionBudget)
	require.Equal(t, 0, pressured.QuestionBudget)

	// Same budget rule, tier driven by fluency history.
	slow := memoryAt(3, 2)
	require.Equal(t, dialogue.TierMedium, Decide(slow, in).PauseTier)
	require.Equal(t, 1, Decide(slow, in).QuestionBudget)
}

func TestNeedsClarification(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{text: "", want: true},
		{text: "  ", want: true},
		{text: "Not sure", want: true},
		{text: "I was...", want: true},
		{text: "That one.", want: true},
		{text: "they did", want: true},
		{text: "Italy", want: false},
		{text: "the kitchen", want: false},
		{text: "I think it was a Tuesday", want: false},
	}

	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			require.Equal(t, tc.want, NeedsClarification(tc.text))
		})
	}
}

func TestScenarioSilentTurnNudges(t *testing.T) {
	decision := repair.NewClassifier(repair.DefaultParams()).Classify("", make([]byte, 16000*2*6), 16000)
	require.Equal(t, repair.ActionNoSpeech, decision.Action)

	label := nonfluency.Classify(features.Extract(""), decision.Action, false, false)
	require.Equal(t, nonfluency.Hesitant, label)

	got := Decide(memory.New(0), Input{RepairAction: decision.Action, Nonfluency: label})
	require.Equal(t, dialogue.ActNudge, got.Act)
}

func TestScenarioSustainedFluencyIsFast(t *testing.T) {
	mem := memoryAt(5, 4)
	require.Equal(t, dialogue.TierFast, Decide(mem, fluentInput("We moved here in the spring.")).PauseTier)
}
