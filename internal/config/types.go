// Package config resolves, parses, validates, and defaults olivia configuration.
package config

import (
	"time"

	"github.com/rbright/olivia/internal/dialogue"
	"github.com/rbright/olivia/internal/repair"
)

// Config is the fully materialized runtime configuration used by olivia.
type Config struct {
	Audio       AudioConfig
	Turn        TurnConfig
	Repair      RepairConfig
	STT         STTConfig
	TTS         TTSConfig
	LLM         LLMConfig
	Memory      MemoryConfig
	SessionLog  SessionLogConfig
	Metrics     MetricsConfig
	PersonaFile string
	EnvFile     string
	Log         LogConfig
	Debug       DebugConfig
}

// AudioConfig controls input-source selection and capture framing.
type AudioConfig struct {
	Input      string
	Fallback   string
	SampleRate int
	FrameMS    int
	Cues       bool
}

// TurnConfig controls turn segmentation. Durations are seconds.
type TurnConfig struct {
	EnergyThreshold           float64
	MinListenSec              float64
	PrerollSec                float64
	MaxTotalSec               float64
	NoTranscriptSec           float64
	PauseTiersSec             map[dialogue.PauseTier]float64
	OnboardingPauseSec        float64
	OnboardingMaxSec          float64
	OnboardingEnergyThreshold float64
}

// RepairConfig mirrors repair.Params.
type RepairConfig struct {
	FrameMS        int
	AmpThreshold   float64
	NoSpeechRatio  float64
	NoSpeechMinSec float64
	TrustASRWords  int
	VeryShortWords int
}

// STTConfig controls the streaming and one-shot recognizers.
type STTConfig struct {
	StreamURL            string
	RecognizeURL         string
	LanguageCode         string
	Model                string
	AutomaticPunctuation bool
	APIKeyEnv            string
	HealthGRPC           string
	DialTimeoutMS        int
	CloseTimeoutMS       int
}

// TTSConfig controls synthesis voice and playback pacing.
type TTSConfig struct {
	URL          string
	LanguageCode string
	Voice        string
	SpeakingRate float64
	Pitch        float64
	GainDB       float64
	SampleRate   int
	TailMS       int
	SettleMS     int
	APIKeyEnv    string
}

// LLMConfig controls the chat-completions client.
type LLMConfig struct {
	Provider          string
	BaseURL           string
	Model             string
	Temperature       float64
	MaxTokensDefault  int
	MaxTokensByAct    map[dialogue.Act]int
	APIKeyEnv         string
	TimeoutMS         int
	RequestsPerSecond float64
}

type MemoryConfig struct {
	SummaryChars int
}

// SessionLogConfig controls the per-turn JSONL log. An empty path uses the state directory.
type SessionLogConfig struct {
	Path string
}

// MetricsConfig controls the Prometheus listener. An empty address disables it.
type MetricsConfig struct {
	Listen string
}

type LogConfig struct {
	Level string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	EnableAudioDump bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}

// Pause returns the long-pause threshold for tier, falling back to MEDIUM.
func (t TurnConfig) Pause(tier dialogue.PauseTier) time.Duration {
	if sec, ok := t.PauseTiersSec[tier]; ok {
		return seconds(sec)
	}
	return seconds(t.PauseTiersSec[dialogue.TierMedium])
}

func (t TurnConfig) MinListen() time.Duration       { return seconds(t.MinListenSec) }
func (t TurnConfig) Preroll() time.Duration         { return seconds(t.PrerollSec) }
func (t TurnConfig) MaxTotal() time.Duration        { return seconds(t.MaxTotalSec) }
func (t TurnConfig) NoTranscript() time.Duration    { return seconds(t.NoTranscriptSec) }
func (t TurnConfig) OnboardingPause() time.Duration { return seconds(t.OnboardingPauseSec) }
func (t TurnConfig) OnboardingMax() time.Duration   { return seconds(t.OnboardingMaxSec) }

// Params converts the section into classifier thresholds.
func (r RepairConfig) Params() repair.Params {
	return repair.Params{
		FrameMS:        r.FrameMS,
		AmpThreshold:   r.AmpThreshold,
		NoSpeechRatio:  r.NoSpeechRatio,
		NoSpeechMinSec: r.NoSpeechMinSec,
		TrustASRWords:  r.TrustASRWords,
		VeryShortWords: r.VeryShortWords,
	}
}

func (s STTConfig) DialTimeout() time.Duration  { return millis(s.DialTimeoutMS) }
func (s STTConfig) CloseTimeout() time.Duration { return millis(s.CloseTimeoutMS) }

func (t TTSConfig) Tail() time.Duration   { return millis(t.TailMS) }
func (t TTSConfig) Settle() time.Duration { return millis(t.SettleMS) }

func (l LLMConfig) Timeout() time.Duration { return millis(l.TimeoutMS) }

// MaxTokensFor returns the completion budget for act.
func (l LLMConfig) MaxTokensFor(act dialogue.Act) int {
	if n, ok := l.MaxTokensByAct[act]; ok && n > 0 {
		return n
	}
	return l.MaxTokensDefault
}

func seconds(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
