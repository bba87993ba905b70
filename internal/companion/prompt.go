package companion

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rbright/olivia/internal/dialogue"
	"github.com/rbright/olivia/internal/memory"
	"github.com/rbright/olivia/internal/persona"
	"github.com/rbright/olivia/internal/policy"
)

const (
	hintTrimSet   = " .,!?:;"
	hintMaxWords  = 3
	affirmSays    = "User said: "
	locationHintF = "\nContext hint (may be wrong): user may be from: %s\n"
)

var (
	questionPattern = regexp.MustCompile(`([^?.!]*\?)`)
	locationPattern = regexp.MustCompile(`(?i)\bfrom\s+([A-Za-z][A-Za-z\s\-]{1,40})\b`)
)

// lastQuestion returns the last question sentence in text, or "".
func lastQuestion(text string) string {
	matches := questionPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return ""
	}
	return strings.TrimSpace(matches[len(matches)-1])
}

// locationHint pulls "from <place>" out of an onboarding answer. Short answers are taken whole.
func locationHint(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if m := locationPattern.FindStringSubmatch(text); m != nil {
		return strings.Trim(m[1], hintTrimSet)
	}
	if len(strings.Fields(text)) <= hintMaxWords {
		return strings.Trim(text, hintTrimSet)
	}
	return ""
}

func withDirectives(system string, act dialogue.Act, questionBudget int, maxSentences int) string {
	return system + fmt.Sprintf("\nDIALOGUE_ACT: %s\nQUESTION_BUDGET: %d\nMAX_SENTENCES: %d\n", act, questionBudget, maxSentences)
}

func onboardingPrompt(p persona.Persona, userText string, act dialogue.Act, questionBudget int) string {
	system := p.OnboardingPrompt
	if hint := locationHint(userText); hint != "" {
		system += fmt.Sprintf(locationHintF, hint)
	}
	return withDirectives(system, act, questionBudget, 2)
}

func affirmationPrompt(p persona.Persona, mem *memory.State) string {
	var b strings.Builder
	b.WriteString(withDirectives(p.SystemPrompt, dialogue.ActElaborate, 1, 2))
	writeSummary(&b, mem)
	b.WriteString("\n")
	b.WriteString(p.AffirmationInstructions)
	return b.String()
}

// replyPrompt builds the system prompt for a regular reply. When the topic is stale the
// topic-change directive is added and mem's topic counter is reset.
func replyPrompt(p persona.Persona, mem *memory.State, decision policy.Decision) (string, bool) {
	var b strings.Builder
	b.WriteString(withDirectives(p.SystemPrompt, decision.Act, decision.QuestionBudget, decision.MaxSentences))
	writeSummary(&b, mem)
	if mem.LastUserTopicHint != "" {
		fmt.Fprintf(&b, "\nLast user topic hint: %s\n", mem.LastUserTopicHint)
	}
	if avoided := mem.AvoidedTopics(); avoided != "" {
		fmt.Fprintf(&b, "\n%s\n", avoided)
	}

	changed := mem.ShouldChangeTopic()
	if changed {
		b.WriteString("\n")
		b.WriteString(p.TopicChangeDirective)
		mem.ResetTopicCounter()
	}

	b.WriteString("\n")
	b.WriteString(p.StyleInjection)
	if guidance := p.Guidance(decision.Act); guidance != "" {
		fmt.Fprintf(&b, "\nAct guidance: %s\n", guidance)
	}
	return b.String(), changed
}

func writeSummary(b *strings.Builder, mem *memory.State) {
	if mem.Summary != "" {
		fmt.Fprintf(b, "\nConversation context (brief):\n%s\n", mem.Summary)
	}
}
