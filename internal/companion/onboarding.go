package companion

import (
	"context"
	"strings"

	"github.com/rbright/olivia/internal/dialogue"
	"github.com/rbright/olivia/internal/llm"
	"github.com/rbright/olivia/internal/nonfluency"
	"github.com/rbright/olivia/internal/sessionlog"
)

const (
	introUser = "[system_intro]"
	introNote = "onboarding_intro"
)

// onboard speaks the introduction, records one answer and replies to it.
// The machine stays in onboarding throughout; Run moves it on.
func (c *Companion) onboard(ctx context.Context) error {
	mem := c.mem
	next := mem.Clone()
	intro := strings.TrimSpace(c.deps.Persona.Intro)

	ttsDur, err := c.speak(ctx, intro, mem.PauseTier)
	if err != nil {
		return err
	}
	if err := c.commit(entry{
		rec: sessionlog.Record{
			User:  introUser,
			Bot:   intro,
			TTSMS: ttsDur.Milliseconds(),
			Note:  introNote,
		},
	}); err != nil {
		return err
	}

	listenStart := c.now()
	heard, err := c.deps.Listener.RecordUntilSilence(ctx, c.onboardingParams())
	if err != nil {
		return c.failure(StageListen, err)
	}
	text, err := c.deps.Recognizer.Recognize(ctx, heard.Audio, heard.SampleRate, c.cfg.STT.LanguageCode)
	if err != nil {
		return c.failure(StageRecognize, err)
	}
	sttDur := c.now().Sub(listenStart)
	c.deps.Metrics.StageDuration(string(StageRecognize), sttDur)
	text = strings.TrimSpace(text)

	act, budget, label := dialogue.ActNudge, 0, nonfluency.Hesitant
	input := c.deps.Persona.SilentUserInput
	if text != "" {
		act, budget, label = dialogue.ActComment, 1, nonfluency.Fluent
		input = text
	}

	bot, usage, llmDur, err := c.generate(ctx, llm.Request{
		System:      onboardingPrompt(c.deps.Persona, text, act, budget),
		User:        input,
		MaxTokens:   c.cfg.LLM.MaxTokensFor(act),
		Temperature: defaultTemperature,
	})
	if err != nil {
		return err
	}

	var guardUsage llm.Usage
	fixed := false
	if text != "" {
		checked, err := c.checkReply(ctx, text, bot)
		if err != nil {
			return err
		}
		bot, guardUsage, fixed = checked.Text, checked.Usage, checked.Fixed
	}

	ttsDur, err = c.speak(ctx, bot, next.PauseTier)
	if err != nil {
		return err
	}
	next.Update(text, bot, act, label)

	return c.commit(entry{
		rec: sessionlog.Record{
			User:           text,
			Bot:            bot,
			STTMS:          sttDur.Milliseconds(),
			LLMMS:          llmDur.Milliseconds(),
			TTSMS:          ttsDur.Milliseconds(),
			Note:           "onboarding",
			DialogueAct:    string(act),
			Nonfluency:     string(label),
			PauseTier:      string(next.PauseTier),
			QuestionBudget: budget,
			RepairAction:   repairOnboard,
		},
		next:       next,
		usage:      usage,
		guardUsage: guardUsage,
		fixed:      fixed,
	})
}
