package companion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rbright/olivia/internal/dialogue"
	"github.com/rbright/olivia/internal/disfluency"
	"github.com/rbright/olivia/internal/features"
	"github.com/rbright/olivia/internal/fsm"
	"github.com/rbright/olivia/internal/guard"
	"github.com/rbright/olivia/internal/llm"
	"github.com/rbright/olivia/internal/memory"
	"github.com/rbright/olivia/internal/nonfluency"
	"github.com/rbright/olivia/internal/policy"
	"github.com/rbright/olivia/internal/repair"
	"github.com/rbright/olivia/internal/sessionlog"
	"github.com/rbright/olivia/internal/turn"
)

const (
	// defaultTemperature defers to the generation client's configured temperature.
	defaultTemperature   = -1
	affirmationMaxTokens = 120

	repairRepeatRequest    = "REPEAT_REQUEST"
	repairComplaint        = "COMPLAINT_HANDLED"
	repairOnboard          = "ONBOARD"
	reasonIntentClassified = "llm_intent_classification"
)

// entry is everything a finished turn commits.
type entry struct {
	rec        sessionlog.Record
	next       *memory.State
	usage      llm.Usage
	guardUsage llm.Usage
	fixed      bool
	// keepQuestion leaves the remembered last question untouched.
	keepQuestion bool
}

// runTurn processes one user turn. Memory is committed only when every collaborator succeeded.
func (c *Companion) runTurn(ctx context.Context) (bool, error) {
	mem := c.mem
	next := mem.Clone()

	if c.cfg.Audio.Cues && c.deps.Cue != nil {
		if err := c.deps.Cue.Cue(ctx); err != nil {
			c.logWarn("listening cue failed", "error", err)
		}
	}

	listenStart := c.now()
	heard, err := c.deps.Listener.Listen(ctx, c.listenParams(c.cfg.Turn.Pause(mem.PauseTier)))
	if err != nil {
		return false, c.failure(StageListen, err)
	}
	sttDur := c.now().Sub(listenStart)
	c.deps.Metrics.StageDuration(string(StageListen), sttDur)
	c.transition(fsm.EventHeard)

	userText := strings.TrimSpace(heard.Transcript)
	decision := c.classifier.Classify(userText, heard.Audio, heard.SampleRate)
	base := sessionlog.Record{
		User:         userText,
		STTMS:        sttDur.Milliseconds(),
		RepairAction: string(decision.Action),
		RepairReason: decision.Reason,
	}

	if decision.Action == repair.ActionExit {
		say := c.deps.Persona.ExitReply
		ttsDur, err := c.reply(ctx, say, mem.PauseTier)
		if err != nil {
			return false, err
		}
		rec := base
		rec.Bot = say
		rec.TTSMS = ttsDur.Milliseconds()
		rec.Note = "exit"
		rec.DialogueAct = string(dialogue.ActComment)
		rec.Nonfluency = string(mem.LastNonfluency)
		rec.PauseTier = string(mem.PauseTier)
		if err := c.commit(entry{rec: rec}); err != nil {
			return false, err
		}
		c.transition(fsm.EventExit)
		return true, nil
	}

	guardStart := c.now()
	intent, intentUsage, err := c.deps.Guard.ClassifyIntent(ctx, userText)
	if err != nil {
		return false, c.failure(StageGuard, err)
	}
	c.deps.Metrics.StageDuration(string(StageGuard), c.now().Sub(guardStart))

	switch intent {
	case guard.IntentRepeatRequest:
		return false, c.repeatLastQuestion(ctx, base, mem, intentUsage)
	case guard.IntentComplaintAboutRepetition:
		return false, c.handleComplaint(ctx, base, next, intentUsage)
	}

	label := nonfluency.Classify(features.Extract(userText), decision.Action, false, false)
	pol := policy.Decide(mem, policy.Input{
		UserText:     userText,
		RepairAction: decision.Action,
		Nonfluency:   label,
	})
	next.PauseTier = pol.PauseTier

	switch decision.Action {
	case repair.ActionNoSpeech:
		return false, c.nudge(ctx, base, next, pol, intentUsage)
	case repair.ActionAffirmation:
		return false, c.continueAfterAffirmation(ctx, base, next, intentUsage)
	}
	return false, c.respond(ctx, base, next, pol, label, intentUsage)
}

func (c *Companion) repeatLastQuestion(ctx context.Context, base sessionlog.Record, mem *memory.State, intentUsage llm.Usage) error {
	say := c.deps.Persona.RepeatFallback
	if c.lastQuestion != "" {
		say = "Sure. " + c.lastQuestion
	}
	ttsDur, err := c.reply(ctx, say, mem.PauseTier)
	if err != nil {
		return err
	}

	rec := base
	rec.Bot = say
	rec.TTSMS = ttsDur.Milliseconds()
	rec.Note = "repeat_request;llm_classified"
	rec.DialogueAct = string(dialogue.ActAnchorAndResume)
	rec.Nonfluency = string(nonfluency.Interrupted)
	rec.PauseTier = string(dialogue.TierSlow)
	rec.RepairAction = repairRepeatRequest
	rec.RepairReason = reasonIntentClassified
	return c.commit(entry{rec: rec, guardUsage: intentUsage, keepQuestion: true})
}

func (c *Companion) handleComplaint(ctx context.Context, base sessionlog.Record, next *memory.State, intentUsage llm.Usage) error {
	offer := c.deps.Nudges.Next(1, true)
	say := strings.TrimSpace(c.deps.Persona.ComplaintPrefix + " " + offer)
	next.ResetForComplaint()

	ttsDur, err := c.reply(ctx, say, next.PauseTier)
	if err != nil {
		c.deps.Nudges.Release(offer)
		return err
	}

	rec := base
	rec.Bot = say
	rec.TTSMS = ttsDur.Milliseconds()
	rec.Note = "complaint_about_repetition;offered_new_topic"
	rec.DialogueAct = string(dialogue.ActProgressTopic)
	rec.Nonfluency = string(nonfluency.Fluent)
	rec.PauseTier = string(next.PauseTier)
	rec.QuestionBudget = 1
	rec.RepairAction = repairComplaint
	rec.RepairReason = reasonIntentClassified
	return c.commit(entry{rec: rec, next: next, guardUsage: intentUsage})
}

func (c *Companion) nudge(ctx context.Context, base sessionlog.Record, next *memory.State, pol policy.Decision, intentUsage llm.Usage) error {
	topicChange := next.ShouldChangeTopic()
	say := c.deps.Nudges.Next(pol.QuestionBudget, topicChange)
	if topicChange {
		next.ResetTopicCounter()
	}

	ttsDur, err := c.reply(ctx, say, next.PauseTier)
	if err != nil {
		c.deps.Nudges.Release(say)
		return err
	}
	next.Update(base.User, say, dialogue.ActNudge, nonfluency.Hesitant)

	rec := base
	rec.Bot = say
	rec.TTSMS = ttsDur.Milliseconds()
	rec.Note = fmt.Sprintf("topic_nudge;topic_change=%t", topicChange)
	rec.DialogueAct = string(dialogue.ActNudge)
	rec.Nonfluency = string(nonfluency.Hesitant)
	rec.PauseTier = string(next.PauseTier)
	rec.QuestionBudget = pol.QuestionBudget
	return c.commit(entry{rec: rec, next: next, guardUsage: intentUsage})
}

func (c *Companion) continueAfterAffirmation(ctx context.Context, base sessionlog.Record, next *memory.State, intentUsage llm.Usage) error {
	bot, usage, llmDur, err := c.generate(ctx, llm.Request{
		System:      affirmationPrompt(c.deps.Persona, next),
		User:        affirmSays + base.User,
		MaxTokens:   affirmationMaxTokens,
		Temperature: defaultTemperature,
	})
	if err != nil {
		return err
	}
	checked, err := c.checkReply(ctx, base.User, bot)
	if err != nil {
		return err
	}

	ttsDur, err := c.reply(ctx, checked.Text, next.PauseTier)
	if err != nil {
		return err
	}
	next.Update(base.User, checked.Text, dialogue.ActElaborate, nonfluency.Fluent)

	rec := base
	rec.Bot = checked.Text
	rec.LLMMS = llmDur.Milliseconds()
	rec.TTSMS = ttsDur.Milliseconds()
	rec.Note = "affirmation"
	rec.DialogueAct = string(dialogue.ActElaborate)
	rec.Nonfluency = string(nonfluency.Fluent)
	rec.PauseTier = string(next.PauseTier)
	rec.QuestionBudget = 1
	return c.commit(entry{rec: rec, next: next, usage: usage, guardUsage: intentUsage.Add(checked.Usage), fixed: checked.Fixed})
}

func (c *Companion) respond(
	ctx context.Context,
	base sessionlog.Record,
	next *memory.State,
	pol policy.Decision,
	label nonfluency.Label,
	intentUsage llm.Usage,
) error {
	system, topicChanged := replyPrompt(c.deps.Persona, next, pol)
	bot, usage, llmDur, err := c.generate(ctx, llm.Request{
		System:      system,
		User:        disfluency.CleanForLLM(base.User),
		MaxTokens:   c.cfg.LLM.MaxTokensFor(pol.Act),
		Temperature: defaultTemperature,
	})
	if err != nil {
		return err
	}
	checked, err := c.checkReply(ctx, base.User, bot)
	if err != nil {
		return err
	}

	ttsDur, err := c.reply(ctx, checked.Text, next.PauseTier)
	if err != nil {
		return err
	}
	next.Update(base.User, checked.Text, pol.Act, label)

	rec := base
	rec.Bot = checked.Text
	rec.LLMMS = llmDur.Milliseconds()
	rec.TTSMS = ttsDur.Milliseconds()
	rec.Note = fmt.Sprintf("parroting_fixed=%t;topic_change=%t", checked.Fixed, topicChanged)
	rec.DialogueAct = string(pol.Act)
	rec.Nonfluency = string(label)
	rec.PauseTier = string(next.PauseTier)
	rec.QuestionBudget = pol.QuestionBudget
	return c.commit(entry{rec: rec, next: next, usage: usage, guardUsage: intentUsage.Add(checked.Usage), fixed: checked.Fixed})
}

func (c *Companion) generate(ctx context.Context, req llm.Request) (string, llm.Usage, time.Duration, error) {
	start := c.now()
	resp, err := c.deps.Generator.Generate(ctx, req)
	if err != nil {
		return "", llm.Usage{}, 0, c.failure(StageGenerate, err)
	}
	elapsed := c.now().Sub(start)
	c.deps.Metrics.StageDuration(string(StageGenerate), elapsed)
	return strings.TrimSpace(resp.Text), resp.Usage, elapsed, nil
}

func (c *Companion) checkReply(ctx context.Context, userText string, botText string) (guard.Result, error) {
	start := c.now()
	result, err := c.deps.Guard.CheckAndFix(ctx, userText, botText)
	if err != nil {
		return guard.Result{}, c.failure(StageGuard, err)
	}
	c.deps.Metrics.StageDuration(string(StageGuard), c.now().Sub(start))
	return result, nil
}

// reply speaks text at the pacing of tier and returns the playback time.
func (c *Companion) reply(ctx context.Context, text string, tier dialogue.PauseTier) (time.Duration, error) {
	c.transition(fsm.EventReply)
	elapsed, err := c.speak(ctx, text, tier)
	if err != nil {
		return 0, err
	}
	c.transition(fsm.EventSpoken)
	return elapsed, nil
}

func (c *Companion) speak(ctx context.Context, text string, tier dialogue.PauseTier) (time.Duration, error) {
	start := c.now()
	if err := c.deps.Speaker.Speak(ctx, text, tier.SpeakingRate()); err != nil {
		return 0, c.failure(StageSynthesize, err)
	}
	elapsed := c.now().Sub(start)
	c.deps.Metrics.StageDuration(string(StageSynthesize), elapsed)
	return elapsed, nil
}

// commit appends the session record and then swaps in the next memory.
func (c *Companion) commit(e entry) error {
	rec := e.rec
	rec.SessionID = c.sessionID
	rec.LLMUsage = sessionlog.UsagePtr(e.usage)
	rec.GuardUsage = sessionlog.UsagePtr(e.guardUsage)
	if err := c.deps.Log.Append(rec); err != nil {
		return c.failure(StageLog, fmt.Errorf("append session record: %w", err))
	}

	if e.next != nil {
		c.mem = e.next
		c.turnIndex.Store(int64(e.next.TurnIndex))
	}
	if !e.keepQuestion {
		c.lastQuestion = lastQuestion(rec.Bot)
	}

	m := c.deps.Metrics
	if rec.DialogueAct != "" {
		m.Turn(rec.DialogueAct)
		m.RepairAction(rec.RepairAction)
		m.Nonfluency(rec.Nonfluency)
	}
	m.Usage(e.usage)
	m.Usage(e.guardUsage)
	if e.fixed {
		m.ParrotingFixed()
	}

	c.logInfo("turn complete",
		"turn", c.turnIndex.Load(),
		"act", rec.DialogueAct,
		"repair_action", rec.RepairAction,
		"nonfluency", rec.Nonfluency,
		"pause_tier", rec.PauseTier,
		"question_budget", rec.QuestionBudget,
		"stt_ms", rec.STTMS,
		"llm_ms", rec.LLMMS,
		"tts_ms", rec.TTSMS,
		"note", rec.Note,
	)
	return nil
}

func (c *Companion) listenParams(longPause time.Duration) turn.Params {
	t := c.cfg.Turn
	return turn.Params{
		SampleRate:      c.cfg.Audio.SampleRate,
		EnergyThreshold: t.EnergyThreshold,
		LongPause:       longPause,
		MinListen:       t.MinListen(),
		MaxTotal:        t.MaxTotal(),
		PreRoll:         t.Preroll(),
		NoTranscript:    t.NoTranscript(),
	}
}

func (c *Companion) onboardingParams() turn.Params {
	t := c.cfg.Turn
	return turn.Params{
		SampleRate:      c.cfg.Audio.SampleRate,
		EnergyThreshold: t.OnboardingEnergyThreshold,
		LongPause:       t.OnboardingPause(),
		MaxTotal:        t.OnboardingMax(),
	}
}
