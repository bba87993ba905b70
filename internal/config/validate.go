package config

import (
	"fmt"
	"strings"

	"github.com/rbright/olivia/internal/dialogue"
	"github.com/rbright/olivia/internal/logging"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if cfg.Audio.SampleRate <= 0 {
		return nil, fmt.Errorf("audio.sample_rate must be > 0")
	}
	if cfg.Audio.FrameMS <= 0 {
		return nil, fmt.Errorf("audio.frame_ms must be > 0")
	}
	if 1000%cfg.Audio.FrameMS != 0 {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("audio.frame_ms=%d does not divide one second evenly", cfg.Audio.FrameMS)})
	}

	if err := validateTurn(cfg.Turn); err != nil {
		return nil, err
	}
	if cfg.Turn.MinListenSec > cfg.Turn.MaxTotalSec {
		warnings = append(warnings, Warning{Message: "turn.min_listen_sec exceeds turn.max_total_sec; turns end at the hard cap"})
	}

	if err := validateRepair(cfg.Repair); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.STT.LanguageCode) == "" {
		return nil, fmt.Errorf("stt.language_code must not be empty")
	}
	if strings.TrimSpace(cfg.STT.StreamURL) == "" {
		return nil, fmt.Errorf("stt.stream_url must not be empty")
	}
	if cfg.STT.DialTimeoutMS < 0 {
		return nil, fmt.Errorf("stt.dial_timeout_ms must be >= 0")
	}
	if cfg.STT.CloseTimeoutMS < 0 {
		return nil, fmt.Errorf("stt.close_timeout_ms must be >= 0")
	}

	if strings.TrimSpace(cfg.TTS.LanguageCode) == "" {
		return nil, fmt.Errorf("tts.language_code must not be empty")
	}
	if cfg.TTS.SampleRate <= 0 {
		return nil, fmt.Errorf("tts.sample_rate must be > 0")
	}
	if cfg.TTS.SpeakingRate <= 0 {
		return nil, fmt.Errorf("tts.speaking_rate must be > 0")
	}
	if cfg.TTS.TailMS < 0 || cfg.TTS.SettleMS < 0 {
		return nil, fmt.Errorf("tts.tail_ms and tts.settle_ms must be >= 0")
	}

	if err := validateLLM(cfg.LLM); err != nil {
		return nil, err
	}

	if cfg.Memory.SummaryChars <= 0 {
		return nil, fmt.Errorf("memory.summary_chars must be > 0")
	}
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}

	return warnings, nil
}

func validateTurn(turn TurnConfig) error {
	for _, tier := range dialogue.Tiers {
		sec, ok := turn.PauseTiersSec[tier]
		if !ok {
			return fmt.Errorf("turn.pause_tiers_sec is missing %s", tier)
		}
		if sec <= 0 {
			return fmt.Errorf("turn.pause_tiers_sec.%s must be > 0", tier)
		}
	}
	if turn.EnergyThreshold < 0 || turn.OnboardingEnergyThreshold < 0 {
		return fmt.Errorf("turn energy thresholds must be >= 0")
	}
	if turn.MinListenSec < 0 || turn.PrerollSec < 0 || turn.NoTranscriptSec < 0 {
		return fmt.Errorf("turn.min_listen_sec, turn.preroll_sec and turn.no_transcript_sec must be >= 0")
	}
	if turn.MaxTotalSec <= 0 {
		return fmt.Errorf("turn.max_total_sec must be > 0")
	}
	if turn.OnboardingPauseSec <= 0 || turn.OnboardingMaxSec <= 0 {
		return fmt.Errorf("turn.onboarding_pause_sec and turn.onboarding_max_sec must be > 0")
	}
	return nil
}

func validateRepair(r RepairConfig) error {
	if r.FrameMS <= 0 {
		return fmt.Errorf("repair.frame_ms must be > 0")
	}
	if r.AmpThreshold < 0 || r.NoSpeechRatio < 0 || r.NoSpeechMinSec < 0 {
		return fmt.Errorf("repair thresholds must be >= 0")
	}
	if r.TrustASRWords < 0 || r.VeryShortWords < 0 {
		return fmt.Errorf("repair word counts must be >= 0")
	}
	if r.VeryShortWords > r.TrustASRWords {
		return fmt.Errorf("repair.very_short_words (%d) must not exceed repair.trust_asr_words (%d)", r.VeryShortWords, r.TrustASRWords)
	}
	return nil
}

func validateLLM(l LLMConfig) error {
	if strings.ToLower(strings.TrimSpace(l.Provider)) != "openai" {
		return fmt.Errorf("llm.provider %q is not supported (only openai)", l.Provider)
	}
	if strings.TrimSpace(l.Model) == "" {
		return fmt.Errorf("llm.model must not be empty")
	}
	if l.RequestsPerSecond <= 0 {
		return fmt.Errorf("llm.requests_per_second must be > 0")
	}
	if l.MaxTokensDefault <= 0 {
		return fmt.Errorf("llm.max_tokens_default must be > 0")
	}
	for act, tokens := range l.MaxTokensByAct {
		if _, err := dialogue.ParseAct(string(act)); err != nil {
			return fmt.Errorf("llm.max_tokens_by_act: %w", err)
		}
		if tokens <= 0 {
			return fmt.Errorf("llm.max_tokens_by_act.%s must be > 0", act)
		}
	}
	if l.TimeoutMS < 0 {
		return fmt.Errorf("llm.timeout_ms must be >= 0")
	}
	return nil
}
