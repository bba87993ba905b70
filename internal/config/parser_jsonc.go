package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"strings"

	"github.com/rbright/olivia/internal/dialogue"
)

type jsoncConfig struct {
	Audio      *jsoncAudio      `json:"audio"`
	Turn       *jsoncTurn       `json:"turn"`
	Repair     *jsoncRepair     `json:"repair"`
	STT        *jsoncSTT        `json:"stt"`
	TTS        *jsoncTTS        `json:"tts"`
	LLM        *jsoncLLM        `json:"llm"`
	Memory     *jsoncMemory     `json:"memory"`
	SessionLog *jsoncSessionLog `json:"session_log"`
	Metrics    *jsoncMetrics    `json:"metrics"`
	Log        *jsoncLog        `json:"log"`
	Debug      *jsoncDebug      `json:"debug"`

	PersonaFile *string `json:"persona_file"`
	EnvFile     *string `json:"env_file"`
}

type jsoncAudio struct {
	Input      *string `json:"input"`
	Fallback   *string `json:"fallback"`
	SampleRate *int    `json:"sample_rate"`
	FrameMS    *int    `json:"frame_ms"`
	Cues       *bool   `json:"cues"`
}

type jsoncTurn struct {
	EnergyThreshold           *float64           `json:"energy_threshold"`
	MinListenSec              *float64           `json:"min_listen_sec"`
	PrerollSec                *float64           `json:"preroll_sec"`
	MaxTotalSec               *float64           `json:"max_total_sec"`
	NoTranscriptSec           *float64           `json:"no_transcript_sec"`
	PauseTiersSec             map[string]float64 `json:"pause_tiers_sec"`
	OnboardingPauseSec        *float64           `json:"onboarding_pause_sec"`
	OnboardingMaxSec          *float64           `json:"onboarding_max_sec"`
	OnboardingEnergyThreshold *float64           `json:"onboarding_energy_threshold"`
}

type jsoncRepair struct {
	FrameMS        *int     `json:"frame_ms"`
	AmpThreshold   *float64 `json:"amp_threshold"`
	NoSpeechRatio  *float64 `json:"no_speech_ratio"`
	NoSpeechMinSec *float64 `json:"no_speech_min_sec"`
	TrustASRWords  *int     `json:"trust_asr_words"`
	VeryShortWords *int     `json:"very_short_words"`
}

type jsoncSTT struct {
	StreamURL            *string `json:"stream_url"`
	RecognizeURL         *string `json:"recognize_url"`
	LanguageCode         *string `json:"language_code"`
	Model                *string `json:"model"`
	AutomaticPunctuation *bool   `json:"automatic_punctuation"`
	APIKeyEnv            *string `json:"api_key_env"`
	HealthGRPC           *string `json:"health_grpc"`
	DialTimeoutMS        *int    `json:"dial_timeout_ms"`
	CloseTimeoutMS       *int    `json:"close_timeout_ms"`
}

type jsoncTTS struct {
	URL          *string  `json:"url"`
	LanguageCode *string  `json:"language_code"`
	Voice        *string  `json:"voice"`
	SpeakingRate *float64 `json:"speaking_rate"`
	Pitch        *float64 `json:"pitch"`
	GainDB       *float64 `json:"gain_db"`
	SampleRate   *int     `json:"sample_rate"`
	TailMS       *int     `json:"tail_ms"`
	SettleMS     *int     `json:"settle_ms"`
	APIKeyEnv    *string  `json:"api_key_env"`
}

type jsoncLLM struct {
	Provider          *string        `json:"provider"`
	BaseURL           *string        `json:"base_url"`
	Model             *string        `json:"model"`
	Temperature       *float64       `json:"temperature"`
	MaxTokensDefault  *int           `json:"max_tokens_default"`
	MaxTokensByAct    map[string]int `json:"max_tokens_by_act"`
	APIKeyEnv         *string        `json:"api_key_env"`
	TimeoutMS         *int           `json:"timeout_ms"`
	RequestsPerSecond *float64       `json:"requests_per_second"`
}

type jsoncMemory struct {
	SummaryChars *int `json:"summary_chars"`
}

type jsoncSessionLog struct {
	Path *string `json:"path"`
}

type jsoncMetrics struct {
	Listen *string `json:"listen"`
}

type jsoncLog struct {
	Level *string `json:"level"`
}

type jsoncDebug struct {
	AudioDump *bool `json:"audio_dump"`
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	cfg.Turn.PauseTiersSec = maps.Clone(base.Turn.PauseTiersSec)
	cfg.LLM.MaxTokensByAct = maps.Clone(base.LLM.MaxTokensByAct)
	warnings, err := payload.applyTo(&cfg)
	if err != nil {
		return Config{}, nil, err
	}

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, validatedWarnings...)
	return cfg, warnings, nil
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setTrimmed(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func (payload jsoncConfig) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if a := payload.Audio; a != nil {
		setTrimmed(&cfg.Audio.Input, a.Input)
		setTrimmed(&cfg.Audio.Fallback, a.Fallback)
		setIf(&cfg.Audio.SampleRate, a.SampleRate)
		setIf(&cfg.Audio.FrameMS, a.FrameMS)
		setIf(&cfg.Audio.Cues, a.Cues)
	}

	if t := payload.Turn; t != nil {
		setIf(&cfg.Turn.EnergyThreshold, t.EnergyThreshold)
		setIf(&cfg.Turn.MinListenSec, t.MinListenSec)
		setIf(&cfg.Turn.PrerollSec, t.PrerollSec)
		setIf(&cfg.Turn.MaxTotalSec, t.MaxTotalSec)
		setIf(&cfg.Turn.NoTranscriptSec, t.NoTranscriptSec)
		setIf(&cfg.Turn.OnboardingPauseSec, t.OnboardingPauseSec)
		setIf(&cfg.Turn.OnboardingMaxSec, t.OnboardingMaxSec)
		setIf(&cfg.Turn.OnboardingEnergyThreshold, t.OnboardingEnergyThreshold)
		if len(t.PauseTiersSec) > 0 && cfg.Turn.PauseTiersSec == nil {
			cfg.Turn.PauseTiersSec = make(map[dialogue.PauseTier]float64, len(t.PauseTiersSec))
		}
		for name, sec := range t.PauseTiersSec {
			tier, err := parseTier(name)
			if err != nil {
				return nil, fmt.Errorf("turn.pause_tiers_sec: %w", err)
			}
			cfg.Turn.PauseTiersSec[tier] = sec
		}
	}

	if r := payload.Repair; r != nil {
		setIf(&cfg.Repair.FrameMS, r.FrameMS)
		setIf(&cfg.Repair.AmpThreshold, r.AmpThreshold)
		setIf(&cfg.Repair.NoSpeechRatio, r.NoSpeechRatio)
		setIf(&cfg.Repair.NoSpeechMinSec, r.NoSpeechMinSec)
		setIf(&cfg.Repair.TrustASRWords, r.TrustASRWords)
		setIf(&cfg.Repair.VeryShortWords, r.VeryShortWords)
	}

	if s := payload.STT; s != nil {
		setTrimmed(&cfg.STT.StreamURL, s.StreamURL)
		setTrimmed(&cfg.STT.RecognizeURL, s.RecognizeURL)
		setTrimmed(&cfg.STT.LanguageCode, s.LanguageCode)
		setTrimmed(&cfg.STT.Model, s.Model)
		setIf(&cfg.STT.AutomaticPunctuation, s.AutomaticPunctuation)
		setTrimmed(&cfg.STT.APIKeyEnv, s.APIKeyEnv)
		setTrimmed(&cfg.STT.HealthGRPC, s.HealthGRPC)
		setIf(&cfg.STT.DialTimeoutMS, s.DialTimeoutMS)
		setIf(&cfg.STT.CloseTimeoutMS, s.CloseTimeoutMS)
	}

	if t := payload.TTS; t != nil {
		setTrimmed(&cfg.TTS.URL, t.URL)
		setTrimmed(&cfg.TTS.LanguageCode, t.LanguageCode)
		setTrimmed(&cfg.TTS.Voice, t.Voice)
		setIf(&cfg.TTS.SpeakingRate, t.SpeakingRate)
		setIf(&cfg.TTS.Pitch, t.Pitch)
		setIf(&cfg.TTS.GainDB, t.GainDB)
		setIf(&cfg.TTS.SampleRate, t.SampleRate)
		setIf(&cfg.TTS.TailMS, t.TailMS)
		setIf(&cfg.TTS.SettleMS, t.SettleMS)
		setTrimmed(&cfg.TTS.APIKeyEnv, t.APIKeyEnv)
	}

	if l := payload.LLM; l != nil {
		setTrimmed(&cfg.LLM.Provider, l.Provider)
		setTrimmed(&cfg.LLM.BaseURL, l.BaseURL)
		setTrimmed(&cfg.LLM.Model, l.Model)
		setIf(&cfg.LLM.Temperature, l.Temperature)
		setIf(&cfg.LLM.MaxTokensDefault, l.MaxTokensDefault)
		setTrimmed(&cfg.LLM.APIKeyEnv, l.APIKeyEnv)
		setIf(&cfg.LLM.TimeoutMS, l.TimeoutMS)
		setIf(&cfg.LLM.RequestsPerSecond, l.RequestsPerSecond)
		if len(l.MaxTokensByAct) > 0 && cfg.LLM.MaxTokensByAct == nil {
			cfg.LLM.MaxTokensByAct = make(map[dialogue.Act]int, len(l.MaxTokensByAct))
		}
		for name, tokens := range l.MaxTokensByAct {
			act, err := dialogue.ParseAct(strings.ToUpper(strings.TrimSpace(name)))
			if err != nil {
				return nil, fmt.Errorf("llm.max_tokens_by_act: %w", err)
			}
			cfg.LLM.MaxTokensByAct[act] = tokens
		}
	}

	if payload.Memory != nil {
		setIf(&cfg.Memory.SummaryChars, payload.Memory.SummaryChars)
	}
	if payload.SessionLog != nil {
		setTrimmed(&cfg.SessionLog.Path, payload.SessionLog.Path)
	}
	if payload.Metrics != nil {
		setTrimmed(&cfg.Metrics.Listen, payload.Metrics.Listen)
	}
	if payload.Log != nil {
		setTrimmed(&cfg.Log.Level, payload.Log.Level)
	}
	if payload.Debug != nil {
		setIf(&cfg.Debug.EnableAudioDump, payload.Debug.AudioDump)
	}
	setTrimmed(&cfg.PersonaFile, payload.PersonaFile)
	setTrimmed(&cfg.EnvFile, payload.EnvFile)

	return warnings, nil
}

func parseTier(raw string) (dialogue.PauseTier, error) {
	name := strings.ToUpper(strings.TrimSpace(raw))
	for _, tier := range dialogue.Tiers {
		if string(tier) == name {
			return tier, nil
		}
	}
	return "", fmt.Errorf("unknown pause tier %q", raw)
}

func normalizeJSONC(content string) (string, error) {
	withoutComments, err := stripJSONCComments(content)
	if err != nil {
		return "", err
	}
	return stripJSONCTrailingCommas(withoutComments), nil
}

func stripJSONCComments(content string) (string, error) {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false
	lineComment := false
	blockComment := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if lineComment {
			if ch == '\n' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			if ch == '\r' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			out.WriteByte(' ')
			continue
		}

		if blockComment {
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				blockComment = false
				out.WriteString("  ")
				i++
				continue
			}
			if ch == '\n' || ch == '\r' || ch == '\t' {
				out.WriteByte(ch)
			} else {
				out.WriteByte(' ')
			}
			continue
		}

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == '/' && i+1 < len(content) {
			next := content[i+1]
			if next == '/' {
				lineComment = true
				out.WriteString("  ")
				i++
				continue
			}
			if next == '*' {
				blockComment = true
				out.WriteString("  ")
				i++
				continue
			}
		}

		out.WriteByte(ch)
	}

	if blockComment {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}

	return out.String(), nil
}

func stripJSONCTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == ',' {
			j := i + 1
			for j < len(content) && isJSONWhitespace(content[j]) {
				j++
			}
			if j < len(content) && (content[j] == '}' || content[j] == ']') {
				continue
			}
		}

		out.WriteByte(ch)
	}

	return out.String()
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
