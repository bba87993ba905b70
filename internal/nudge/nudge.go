// Package nudge offers concrete conversation topics when the user has gone quiet.
package nudge

import (
	"math/rand/v2"
	"sync"
)

// Topic offers a fresh subject after a silent turn.
var Topic = []string{
	"Tell me about your family. Do you have children or grandchildren?",
	"What was your family like growing up?",
	"Where did your family come from originally?",
	"What kind of work did you do? Did you enjoy it?",
	"What was your working life like?",
	"Did you have a job you particularly enjoyed?",
	"What was your childhood like? Where did you grow up?",
	"Do you have any favorite memories from when you were young?",
	"What was school like for you?",
	"Do you have any hobbies or things you enjoy doing?",
	"What do you like to do in your free time?",
	"Is there something you've always enjoyed doing?",
	"What does a typical day look like for you?",
	"What have you been up to lately?",
	"Is there anything nice that happened recently?",
	"Have you traveled anywhere interesting in your life?",
	"Is there a place that's special to you?",
	"Where's your favorite place you've ever been?",
	"Is there anything you'd like to talk about?",
	"What's on your mind today?",
}

// TopicChange steers away from a topic the conversation has circled on.
var TopicChange = []string{
	"Let's talk about something different. What was your working life like?",
	"How about we switch topics? Tell me about your family.",
	"I'm curious about something else. Do you have any hobbies you enjoy?",
	"Let me ask you something different. Where did you grow up?",
	"I'd love to hear about a different part of your life. What do you like to do for fun?",
}

type pool struct {
	items []string
	used  map[string]struct{}
}

func newPool(items []string) *pool {
	return &pool{items: items, used: make(map[string]struct{}, len(items))}
}

func (p *pool) pick(rng *rand.Rand) string {
	available := make([]string, 0, len(p.items))
	for _, item := range p.items {
		if _, ok := p.used[item]; !ok {
			available = append(available, item)
		}
	}
	if len(available) == 0 {
		clear(p.used)
		available = append(available, p.items...)
	}
	if len(available) == 0 {
		return ""
	}

	choice := available[rng.IntN(len(available))]
	p.used[choice] = struct{}{}
	return choice
}

func (p *pool) release(item string) {
	delete(p.used, item)
}

// Selector is session-scoped; each pool is exhausted before any member repeats.
type Selector struct {
	mu     sync.Mutex
	rng    *rand.Rand
	topic  *pool
	change *pool
}

// NewSelector builds a selector over the default pools. A nil rng is seeded randomly.
func NewSelector(rng *rand.Rand) *Selector {
	return NewSelectorWithPools(rng, Topic, TopicChange)
}

// NewSelectorWithPools builds a selector over custom pools.
func NewSelectorWithPools(rng *rand.Rand, topic []string, change []string) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Selector{
		rng:    rng,
		topic:  newPool(topic),
		change: newPool(change),
	}
}

// Next picks an unused nudge from the topic-change pool when topicChange is set, else from the
// topic pool. The question budget does not change the pick.
func (s *Selector) Next(_ int, topicChange bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if topicChange {
		return s.change.pick(s.rng)
	}
	return s.topic.pick(s.rng)
}

// Release returns a nudge that was picked but never spoken to its pool.
func (s *Selector) Release(nudge string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topic.release(nudge)
	s.change.release(nudge)
}

// Reset forgets every used nudge.
func (s *Selector) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.topic.used)
	clear(s.change.used)
}
