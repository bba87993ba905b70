package memory

import (
	"slices"
	"strings"
)

// topicRule maps keyword membership in the lowercased bot text to a topic fingerprint.
// Matching is plain substring membership with no stemming or synonym folding.
type topicRule struct {
	topic string
	any   []string
	// all is an extra required group; one of its entries must also appear.
	all []string
}

var topicRules = []topicRule{
	{topic: "favorite", any: []string{"favorite"}},
	{topic: "spot", any: []string{"spot"}},
	{topic: "place", any: []string{"place"}},
	{topic: "memory", any: []string{"memory", "memories"}},
	{topic: "remember", any: []string{"remember"}},
	{topic: "activities", any: []string{"like to do", "do you do"}},
	{topic: "children", any: []string{"children", "kids"}},
	{topic: "spouse", any: []string{"wife", "husband", "spouse"}},
	{topic: "family", any: []string{"family"}},
	{topic: "tea", any: []string{"tea", "cup", "mug"}},
	{topic: "coffee", any: []string{"coffee"}},
	{topic: "weather", any: []string{"weather", "cold", "warm", "hot"}},
	{topic: "quiet", any: []string{"quiet", "silence", "peaceful"}},
	{topic: "relaxation", any: []string{"calm", "relax"}},
	{topic: "neighborhood", any: []string{"neighborhood", "neighbour"}},
	{topic: "changes", any: []string{"change"}},
	{topic: "living_duration", any: []string{"years"}, all: []string{"living", "lived"}},
	{topic: "adjustment", any: []string{"adjust"}},
	{topic: "new_neighbors", any: []string{"new people", "new neighbors", "more people"}},
}

// ExtractTopics returns the sorted topic fingerprints mentioned in a bot utterance.
func ExtractTopics(botText string) []string {
	low := strings.ToLower(botText)
	if strings.TrimSpace(low) == "" {
		return nil
	}

	var topics []string
	for _, rule := range topicRules {
		if !containsAny(low, rule.any) {
			continue
		}
		if len(rule.all) > 0 && !containsAny(low, rule.all) {
			continue
		}
		topics = append(topics, rule.topic)
	}
	slices.Sort(topics)
	return slices.Compact(topics)
}
