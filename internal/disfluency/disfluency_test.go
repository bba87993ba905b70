package disfluency

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyRepeatIntent(t *testing.T) {
	tests := []struct {
		name string
		text string
		want RepeatIntent
	}{
		{name: "empty", text: "  ", want: RepeatNone},
		{name: "ordinary talk", text: "We went to the market.", want: RepeatNone},
		{name: "missed question", text: "Sorry, could you repeat the question?", want: RepeatQuestion},
		{name: "missed end", text: "I didn't catch the last part", want: RepeatQuestion},
		{name: "ambiguous", text: "Pardon?", want: RepeatClarifyOrRephrase},
		{name: "say again", text: "Say again please", want: RepeatClarifyOrRephrase},
		{name: "complaint", text: "Stop repeating me", want: RepeatNone},
		{name: "complaint with trigger", text: "Why are you repeating what I said? Repeat the question.", want: RepeatNone},
		{name: "circles", text: "we're going in circles, say again", want: RepeatNone},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ClassifyRepeatIntent(tc.text))
		})
	}
}

func TestNegativeSignalsAlwaysWin(t *testing.T) {
	for _, signal := range negativeRepeatSignals {
		t.Run(signal, func(t *testing.T) {
			require.Equal(t, RepeatNone, ClassifyRepeatIntent("could you repeat, "+signal))
		})
	}
}

func TestCleanForLLM(t *testing.T) {
	require.Equal(t, "I went, , you know, to the shop", CleanForLLM("Um I went, uh, you know, to the  shop hmm"))
	require.Equal(t, "Umbrella drum", CleanForLLM("Umbrella drum"))
	require.Equal(t, "", CleanForLLM(""))
}

func TestCleanForAnalysis(t *testing.T) {
	require.Equal(t, "I went, , , to the shop", CleanForAnalysis("Um I went, uh, you know, to the shop"))
	require.Equal(t, "it was nice", CleanForAnalysis("well it was kind of nice"))
	require.Equal(t, "likely", CleanForAnalysis("likely"))
}
