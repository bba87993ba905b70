package stt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rbright/olivia/internal/version"
)

const (
	DefaultRecognizeURL     = "https://speech.googleapis.com/v1/speech:recognize"
	defaultRecognizeTimeout = 30 * time.Second
	maxErrorBodyBytes       = 4096
)

type RecognizerConfig struct {
	URL                  string
	APIKey               string
	Model                string
	AutomaticPunctuation bool
	Timeout              time.Duration
}

// Recognizer transcribes a complete recording in one request.
type Recognizer struct {
	HTTPClient *http.Client

	cfg RecognizerConfig
}

func NewRecognizer(cfg RecognizerConfig) *Recognizer {
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = DefaultRecognizeURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRecognizeTimeout
	}
	return &Recognizer{
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
	}
}

type recognitionConfig struct {
	Encoding                   string `json:"encoding"`
	SampleRateHertz            int    `json:"sampleRateHertz"`
	LanguageCode               string `json:"languageCode"`
	EnableAutomaticPunctuation bool   `json:"enableAutomaticPunctuation"`
	Model                      string `json:"model,omitempty"`
}

type recognizeRequest struct {
	Config recognitionConfig `json:"config"`
	Audio  struct {
		Content string `json:"content"`
	} `json:"audio"`
}

type recognizeResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"results"`
}

// Recognize transcribes mono PCM16LE audio. Empty audio yields "" without a request.
func (r *Recognizer) Recognize(ctx context.Context, pcm []byte, sampleRate int, language string) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	if strings.TrimSpace(language) == "" {
		language = defaultLanguageCode
	}

	var payload recognizeRequest
	payload.Config = recognitionConfig{
		Encoding:                   "LINEAR16",
		SampleRateHertz:            sampleRate,
		LanguageCode:               language,
		EnableAutomaticPunctuation: r.cfg.AutomaticPunctuation,
		Model:                      strings.TrimSpace(r.cfg.Model),
	}
	payload.Audio.Content = base64.StdEncoding.EncodeToString(pcm)

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode recognize request: %w", err)
	}

	endpoint, err := withAPIKey(r.cfg.URL, r.cfg.APIKey)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build recognize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send recognize request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return "", fmt.Errorf("recognize status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode recognize response: %w", err)
	}

	parts := make([]string, 0, len(decoded.Results))
	for _, result := range decoded.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		if text := cleanSegment(result.Alternatives[0].Transcript); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

// withAPIKey appends the key query parameter used by Google REST endpoints.
func withAPIKey(raw string, key string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse recognize url: %w", err)
	}
	if key = strings.TrimSpace(key); key != "" {
		q := u.Query()
		q.Set("key", key)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
