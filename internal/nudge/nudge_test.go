package nudge

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

func seeded() *rand.Rand {
	return rand.New(rand.NewPCG(7, 11))
}

func TestNextCoversTopicPoolBeforeRepeating(t *testing.T) {
	s := NewSelector(seeded())

	seen := map[string]int{}
	for range Topic {
		seen[s.Next(1, false)]++
	}
	require.Len(t, seen, len(Topic))
	for _, item := range Topic {
		require.Equal(t, 1, seen[item], item)
	}

	require.Contains(t, Topic, s.Next(1, false))
}

func TestNextTopicChangeUsesOwnPool(t *testing.T) {
	s := NewSelector(seeded())

	first := s.Next(0, false)
	seen := map[string]struct{}{}
	for range TopicChange {
		choice := s.Next(0, true)
		require.Contains(t, TopicChange, choice)
		seen[choice] = struct{}{}
	}
	require.Len(t, seen, len(TopicChange))

	// The topic pool keeps its own history.
	for range len(Topic) - 1 {
		require.NotEqual(t, first, s.Next(0, false))
	}
}

func TestNextResetsExhaustedPool(t *testing.T) {
	s := NewSelectorWithPools(seeded(), []string{"a", "b"}, []string{"c"})

	got := []string{s.Next(1, false), s.Next(1, false)}
	require.ElementsMatch(t, []string{"a", "b"}, got)
	require.Contains(t, []string{"a", "b"}, s.Next(1, false))

	require.Equal(t, "c", s.Next(1, true))
	require.Equal(t, "c", s.Next(1, true))
}

func TestReleaseReturnsUnspokenNudge(t *testing.T) {
	s := NewSelectorWithPools(seeded(), []string{"a", "b"}, []string{"c", "d"})

	first := s.Next(1, false)
	s.Release(first)
	second := s.Next(1, false)
	third := s.Next(1, false)
	require.ElementsMatch(t, []string{"a", "b"}, []string{second, third})

	change := s.Next(1, true)
	s.Release(change)
	s.Release("never picked")
	require.ElementsMatch(t, []string{"c", "d"}, []string{s.Next(1, true), s.Next(1, true)})
}

func TestNextIgnoresQuestionBudget(t *testing.T) {
	withBudget := NewSelector(seeded())
	withoutBudget := NewSelector(seeded())
	for range Topic {
		require.Equal(t, withBudget.Next(1, false), withoutBudget.Next(0, false))
	}
}

func TestNextEmptyPool(t *testing.T) {
	s := NewSelectorWithPools(seeded(), nil, nil)
	require.Empty(t, s.Next(1, false))
}

func TestResetForgetsHistory(t *testing.T) {
	s := NewSelectorWithPools(seeded(), []string{"a", "b"}, nil)
	first := s.Next(1, false)
	s.Reset()

	seen := map[string]struct{}{first: {}}
	seen[s.Next(1, false)] = struct{}{}
	seen[s.Next(1, false)] = struct{}{}
	require.Len(t, seen, 2)
}

func TestNilRandIsSeeded(t *testing.T) {
	s := NewSelector(nil)
	require.Contains(t, Topic, s.Next(1, false))
}
