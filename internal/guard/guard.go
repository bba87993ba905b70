// Package guard treats generated replies as untrusted: it classifies user intent and
// rewrites replies that restate the user.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rbright/olivia/internal/llm"
)

// Generator is the generation collaborator.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (llm.Response, error)
}

type Intent string

const (
	IntentRepeatRequest            Intent = "REPEAT_REQUEST"
	IntentComplaintAboutRepetition Intent = "COMPLAINT_ABOUT_REPETITION"
	IntentNormal                   Intent = "NORMAL"
)

const (
	intentMaxTokens  = 20
	checkMaxTokens   = 10
	rewriteMaxTokens = 150
	rewriteTemp      = 0.7

	intentSystem  = "You are a precise intent classifier. Respond with only the category name."
	checkSystem   = "You are a precise classifier. Answer only YES or NO."
	rewriteSystem = "You are Olivia, a warm companion. Rewrite the response without parroting."
)

const intentPrompt = `Analyze the user's message and classify their intent into exactly ONE category:

1. REPEAT_REQUEST - User wants the bot to repeat something they didn't hear
   Examples: "Can you say that again?", "I didn't hear you", "Please repeat", "What did you say?", "Pardon?"

2. COMPLAINT_ABOUT_REPETITION - User is frustrated that the bot keeps repeating/restating things
   Examples: "Stop repeating me", "Why do you keep saying what I said?", "Don't repeat everything", "You're going in circles", "Please do not repeat"

3. NORMAL - Any other message (user is just talking normally, even if they mention the word "repeat" in another context)

User message: %q

Respond with ONLY the category name (REPEAT_REQUEST, COMPLAINT_ABOUT_REPETITION, or NORMAL):`

const checkPrompt = `You are a conversation quality checker.

User said: %q
Bot responded: %q

Is the bot PARROTING (restating/echoing what the user said)?

Parroting includes:
- Starting with "It sounds like you..." or "That sounds like..."
- Repeating the user's words back to them
- Summarizing what the user just said instead of adding something new
- Saying "It must be nice/wonderful/lovely that..." followed by user's content

Answer YES if parroting, NO if the bot adds something genuinely new.

Answer (YES or NO):`

const rewritePrompt = `You are Olivia, a warm conversational companion for older adults.

User said: %q
Your original response: %q

This response parrots/restates what the user said. Rewrite it to:
1. NOT repeat or paraphrase what the user said
2. Add something NEW - a thought, observation, or gentle question
3. Move the conversation forward
4. Keep it to 1-2 short sentences
5. Be warm but not sycophantic

FORBIDDEN phrases: "It sounds like...", "That sounds like...", "It must be...", "That must be...", "How lovely that..."

Rewritten response:`

// Result is the outcome of CheckAndFix. Usage covers the guard's own calls only.
type Result struct {
	Text  string
	Fixed bool
	Usage llm.Usage
}

type Guard struct {
	gen    Generator
	logger *slog.Logger
}

func New(gen Generator, logger *slog.Logger) *Guard {
	return &Guard{gen: gen, logger: logger}
}

// ClassifyIntent asks the generator whether the user wants a repeat, is complaining about
// repetition, or is talking normally. Blank text is NORMAL without a call.
func (g *Guard) ClassifyIntent(ctx context.Context, userText string) (Intent, llm.Usage, error) {
	if strings.TrimSpace(userText) == "" {
		return IntentNormal, llm.Usage{}, nil
	}

	resp, err := g.gen.Generate(ctx, llm.Request{
		System:      intentSystem,
		User:        fmt.Sprintf(intentPrompt, userText),
		MaxTokens:   intentMaxTokens,
		Temperature: 0,
	})
	if err != nil {
		return IntentNormal, llm.Usage{}, fmt.Errorf("classify intent: %w", err)
	}

	answer := strings.ToUpper(strings.TrimSpace(resp.Text))
	intent := IntentNormal
	switch {
	case strings.Contains(answer, string(IntentRepeatRequest)):
		intent = IntentRepeatRequest
	case strings.Contains(answer, "COMPLAINT"):
		intent = IntentComplaintAboutRepetition
	}

	g.debug("intent classified", "intent", intent, "answer", answer)
	return intent, resp.Usage, nil
}

// CheckAndFix runs the parroting check and, only when it reports YES, one rewrite.
func (g *Guard) CheckAndFix(ctx context.Context, userText string, botText string) (Result, error) {
	if botText == "" || userText == "" {
		return Result{Text: botText}, nil
	}

	check, err := g.gen.Generate(ctx, llm.Request{
		System:      checkSystem,
		User:        fmt.Sprintf(checkPrompt, userText, botText),
		MaxTokens:   checkMaxTokens,
		Temperature: 0,
	})
	if err != nil {
		return Result{}, fmt.Errorf("check parroting: %w", err)
	}
	if !strings.Contains(strings.ToUpper(strings.TrimSpace(check.Text)), "YES") {
		return Result{Text: botText, Usage: check.Usage}, nil
	}

	rewrite, err := g.gen.Generate(ctx, llm.Request{
		System:      rewriteSystem,
		User:        fmt.Sprintf(rewritePrompt, userText, botText),
		MaxTokens:   rewriteMaxTokens,
		Temperature: rewriteTemp,
	})
	if err != nil {
		return Result{}, fmt.Errorf("rewrite parroting reply: %w", err)
	}

	g.debug("parroting rewritten", "original", botText)
	return Result{
		Text:  FilterLeadingParrot(strings.TrimSpace(rewrite.Text)),
		Fixed: true,
		Usage: check.Usage.Add(rewrite.Usage),
	}, nil
}

func (g *Guard) debug(msg string, args ...any) {
	if g.logger == nil {
		return
	}
	g.logger.Debug(msg, args...)
}
