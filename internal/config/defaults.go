package config

import "github.com/rbright/olivia/internal/dialogue"

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Audio: AudioConfig{
			Input:      "default",
			Fallback:   "default",
			SampleRate: 16000,
			FrameMS:    60,
		},
		Turn: TurnConfig{
			EnergyThreshold: 30,
			MinListenSec:    3.0,
			PrerollSec:      0.3,
			MaxTotalSec:     300,
			NoTranscriptSec: 20,
			PauseTiersSec: map[dialogue.PauseTier]float64{
				dialogue.TierFast:   2.5,
				dialogue.TierMedium: 3.5,
				dialogue.TierSlow:   5.5,
			},
			OnboardingPauseSec:        2.5,
			OnboardingMaxSec:          20,
			OnboardingEnergyThreshold: 50,
		},
		Repair: RepairConfig{
			FrameMS:        30,
			AmpThreshold:   700,
			NoSpeechRatio:  0.03,
			NoSpeechMinSec: 0.5,
			TrustASRWords:  3,
			VeryShortWords: 2,
		},
		STT: STTConfig{
			StreamURL:            "wss://api.deepgram.com/v1/listen",
			RecognizeURL:         "https://speech.googleapis.com/v1/speech:recognize",
			LanguageCode:         "en-US",
			Model:                "latest_long",
			AutomaticPunctuation: true,
			APIKeyEnv:            "STT_API_KEY",
			DialTimeoutMS:        3000,
			CloseTimeoutMS:       20000,
		},
		TTS: TTSConfig{
			URL:          "https://texttospeech.googleapis.com/v1/text:synthesize",
			LanguageCode: "en-GB",
			Voice:        "en-GB-Neural2-F",
			SpeakingRate: 0.90,
			Pitch:        -1.5,
			GainDB:       -1.0,
			SampleRate:   48000,
			TailMS:       150,
			SettleMS:     200,
			APIKeyEnv:    "TTS_API_KEY",
		},
		LLM: LLMConfig{
			Provider:         "openai",
			BaseURL:          "https://api.openai.com/v1",
			Model:            "gpt-4.1",
			Temperature:      0.6,
			MaxTokensDefault: 220,
			MaxTokensByAct: map[dialogue.Act]int{
				dialogue.ActComment:         120,
				dialogue.ActElaborate:       180,
				dialogue.ActSummarize:       170,
				dialogue.ActClarify:         110,
				dialogue.ActAnchorAndResume: 160,
				dialogue.ActRepairGentle:    130,
				dialogue.ActNudge:           110,
				dialogue.ActProgressTopic:   140,
			},
			APIKeyEnv:         "OPENAI_API_KEY",
			TimeoutMS:         30000,
			RequestsPerSecond: 2,
		},
		Memory: MemoryConfig{SummaryChars: 900},
		Log:    LogConfig{Level: "info"},
	}
}
