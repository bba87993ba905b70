package nonfluency

import (
	"testing"

	"github.com/rbright/olivia/internal/features"
	"github.com/rbright/olivia/internal/repair"
	"github.com/stretchr/testify/require"
)

func TestClassifyPriority(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		action    repair.Action
		repeat    bool
		interrupt bool
		want      Label
	}{
		{name: "interrupt wins", text: "We lived by the sea.", action: repair.ActionNoSpeech, repeat: true, interrupt: true, want: Interrupted},
		{name: "no speech", text: "", action: repair.ActionNoSpeech, repeat: true, want: Hesitant},
		{name: "repeat request", text: "say that again please.", action: repair.ActionOK, repeat: true, want: Interrupted},
		{name: "abandoned", text: "Yes and", action: repair.ActionOK, want: Abandoned},
		{name: "repair marker", text: "It was Monday, I mean Tuesday.", action: repair.ActionOK, want: SelfRepair},
		{name: "repetition", text: "the garden the garden was lovely.", action: repair.ActionOK, want: SelfRepair},
		{name: "short unpunctuated", text: "near the river", action: repair.ActionOK, want: Hesitant},
		{name: "fluent", text: "We moved here in the spring.", action: repair.ActionOK, want: Fluent},
		{name: "short punctuated", text: "Near the river.", action: repair.ActionOK, want: Fluent},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(features.Extract(tc.text), tc.action, tc.repeat, tc.interrupt)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestClassifyAbandonedForShortTrailingConjunctions(t *testing.T) {
	for _, text := range []string{"and", "but", "so...", "well because", "then or"} {
		t.Run(text, func(t *testing.T) {
			got := Classify(features.Extract(text), repair.ActionOK, false, false)
			require.Equal(t, Abandoned, got)
		})
	}
}

func TestIsNonfluent(t *testing.T) {
	require.False(t, Fluent.IsNonfluent())
	for _, label := range []Label{Hesitant, Abandoned, SelfRepair, Interrupted} {
		require.True(t, label.IsNonfluent())
	}
}
