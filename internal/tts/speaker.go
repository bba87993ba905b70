package tts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (Audio, error)
}

type AudioPlayer interface {
	Play(ctx context.Context, audio Audio) error
}

// Voice holds the per-session synthesis settings; only the speaking rate varies per reply.
// SpeakingRate is used when a caller passes no rate of its own.
type Voice struct {
	LanguageCode string
	Name         string
	SpeakingRate float64
	Pitch        float64
	GainDB       float64
	SampleRate   int
}

// Speaker composes synthesis and blocking playback.
type Speaker struct {
	synth  Synthesizer
	player AudioPlayer
	voice  Voice
	logger *slog.Logger
}

func NewSpeaker(synth Synthesizer, player AudioPlayer, voice Voice, logger *slog.Logger) *Speaker {
	return &Speaker{synth: synth, player: player, voice: voice, logger: logger}
}

// Speak says text at the given rate and returns once playback has settled. Blank text is a no-op.
func (s *Speaker) Speak(ctx context.Context, text string, speakingRate float64) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if speakingRate <= 0 {
		speakingRate = s.voice.SpeakingRate
	}

	audio, err := s.synth.Synthesize(ctx, Request{
		Text:         text,
		LanguageCode: s.voice.LanguageCode,
		Voice:        s.voice.Name,
		SpeakingRate: speakingRate,
		Pitch:        s.voice.Pitch,
		GainDB:       s.voice.GainDB,
		SampleRate:   s.voice.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("synthesize speech: %w", err)
	}

	if s.logger != nil {
		s.logger.Debug("speaking", "chars", len(text), "rate", speakingRate, "audio_ms", audio.Duration().Milliseconds())
	}

	if err := s.player.Play(ctx, audio); err != nil {
		return fmt.Errorf("play speech: %w", err)
	}
	return nil
}
