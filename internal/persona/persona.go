// Package persona holds the companion's voice: prompts, canned replies and per-act guidance.
package persona

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rbright/olivia/internal/dialogue"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Persona is loaded from YAML. Every field of a user file is optional.
type Persona struct {
	Name                    string            `yaml:"name"`
	Intro                   string            `yaml:"intro"`
	SystemPrompt            string            `yaml:"system_prompt"`
	OnboardingPrompt        string            `yaml:"onboarding_prompt"`
	StyleInjection          string            `yaml:"style_injection"`
	AffirmationInstructions string            `yaml:"affirmation_instructions"`
	TopicChangeDirective    string            `yaml:"topic_change_directive"`
	ActGuidance             map[string]string `yaml:"act_guidance"`
	ExitReply               string            `yaml:"exit_reply"`
	RepeatFallback          string            `yaml:"repeat_fallback"`
	ComplaintPrefix         string            `yaml:"complaint_prefix"`
	SilentUserInput         string            `yaml:"silent_user_input"`
}

// Default returns a fresh copy of the embedded persona.
func Default() Persona {
	p, err := parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("parse embedded persona: %v", err))
	}
	return p
}

// Load overlays the non-empty fields of the YAML file at path on the default persona.
// An empty path returns the default.
func Load(path string) (Persona, error) {
	base := Default()
	if strings.TrimSpace(path) == "" {
		return base, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Persona{}, fmt.Errorf("read persona %q: %w", path, err)
	}
	overlay, err := parse(data)
	if err != nil {
		return Persona{}, fmt.Errorf("parse persona %q: %w", path, err)
	}
	return base.merge(overlay), nil
}

// Guidance returns the act guidance line for act, or "".
func (p Persona) Guidance(act dialogue.Act) string {
	return strings.TrimSpace(p.ActGuidance[string(act)])
}

func parse(data []byte) (Persona, error) {
	var p Persona
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return Persona{}, err
	}
	for key := range p.ActGuidance {
		if _, err := dialogue.ParseAct(key); err != nil {
			return Persona{}, fmt.Errorf("act_guidance: %w", err)
		}
	}
	return p, nil
}

func (p Persona) merge(overlay Persona) Persona {
	pick := func(base *string, next string) {
		if strings.TrimSpace(next) != "" {
			*base = next
		}
	}
	pick(&p.Name, overlay.Name)
	pick(&p.Intro, overlay.Intro)
	pick(&p.SystemPrompt, overlay.SystemPrompt)
	pick(&p.OnboardingPrompt, overlay.OnboardingPrompt)
	pick(&p.StyleInjection, overlay.StyleInjection)
	pick(&p.AffirmationInstructions, overlay.AffirmationInstructions)
	pick(&p.TopicChangeDirective, overlay.TopicChangeDirective)
	pick(&p.ExitReply, overlay.ExitReply)
	pick(&p.RepeatFallback, overlay.RepeatFallback)
	pick(&p.ComplaintPrefix, overlay.ComplaintPrefix)
	pick(&p.SilentUserInput, overlay.SilentUserInput)

	guidance := make(map[string]string, len(p.ActGuidance)+len(overlay.ActGuidance))
	for act, line := range p.ActGuidance {
		guidance[act] = line
	}
	for act, line := range overlay.ActGuidance {
		if strings.TrimSpace(line) != "" {
			guidance[act] = line
		}
	}
	p.ActGuidance = guidance
	return p
}
