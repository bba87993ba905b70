// Package tts synthesizes replies and plays them back through Pulse.
package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rbright/olivia/internal/version"
)

const (
	DefaultURL        = "https://texttospeech.googleapis.com/v1/text:synthesize"
	defaultTimeout    = 30 * time.Second
	maxErrorBodyBytes = 4096
)

var ErrEmptyAudio = errors.New("synthesis returned no audio")

// Request describes one utterance. Zero SampleRate lets the backend choose.
type Request struct {
	Text         string
	LanguageCode string
	Voice        string
	SpeakingRate float64
	Pitch        float64
	GainDB       float64
	SampleRate   int
}

// Audio is mono PCM16LE.
type Audio struct {
	PCM        []byte
	SampleRate int
}

func (a Audio) Duration() time.Duration {
	if a.SampleRate <= 0 {
		return 0
	}
	samples := len(a.PCM) / 2
	return time.Duration(samples) * time.Second / time.Duration(a.SampleRate)
}

type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Client speaks the Google text:synthesize REST API.
type Client struct {
	HTTPClient *http.Client

	cfg Config
}

func NewClient(cfg Config) *Client {
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
	}
}

type synthesizeInput struct {
	Text string `json:"text"`
}

type voiceSelection struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name,omitempty"`
}

type audioConfig struct {
	AudioEncoding   string  `json:"audioEncoding"`
	SpeakingRate    float64 `json:"speakingRate,omitempty"`
	Pitch           float64 `json:"pitch"`
	VolumeGainDB    float64 `json:"volumeGainDb"`
	SampleRateHertz int     `json:"sampleRateHertz,omitempty"`
}

type synthesizeRequest struct {
	Input       synthesizeInput `json:"input"`
	Voice       voiceSelection  `json:"voice"`
	AudioConfig audioConfig     `json:"audioConfig"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

// Synthesize returns raw PCM for req.Text. A RIFF header in the response is stripped.
func (c *Client) Synthesize(ctx context.Context, req Request) (Audio, error) {
	body, err := json.Marshal(synthesizeRequest{
		Input: synthesizeInput{Text: req.Text},
		Voice: voiceSelection{LanguageCode: req.LanguageCode, Name: req.Voice},
		AudioConfig: audioConfig{
			AudioEncoding:   "LINEAR16",
			SpeakingRate:    req.SpeakingRate,
			Pitch:           req.Pitch,
			VolumeGainDB:    req.GainDB,
			SampleRateHertz: req.SampleRate,
		},
	})
	if err != nil {
		return Audio{}, fmt.Errorf("encode synthesize request: %w", err)
	}

	endpoint, err := url.Parse(c.cfg.URL)
	if err != nil {
		return Audio{}, fmt.Errorf("parse synthesize url: %w", err)
	}
	if key := strings.TrimSpace(c.cfg.APIKey); key != "" {
		q := endpoint.Query()
		q.Set("key", key)
		endpoint.RawQuery = q.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return Audio{}, fmt.Errorf("build synthesize request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return Audio{}, fmt.Errorf("send synthesize request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return Audio{}, fmt.Errorf("synthesize status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded synthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Audio{}, fmt.Errorf("decode synthesize response: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(decoded.AudioContent)
	if err != nil {
		return Audio{}, fmt.Errorf("decode audio content: %w", err)
	}
	if len(raw) == 0 {
		return Audio{}, ErrEmptyAudio
	}

	pcm, rate := stripWAVHeader(raw)
	if rate == 0 {
		rate = req.SampleRate
	}
	return Audio{PCM: pcm, SampleRate: rate}, nil
}

// stripWAVHeader returns the data chunk and the fmt sample rate when raw is a RIFF/WAVE file.
// Anything else is returned unchanged with rate 0.
func stripWAVHeader(raw []byte) ([]byte, int) {
	if len(raw) < 12 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return raw, 0
	}

	rate := 0
	offset := 12
	for offset+8 <= len(raw) {
		id := string(raw[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(raw[offset+4 : offset+8]))
		body := offset + 8
		switch id {
		case "fmt ":
			if body+8 <= len(raw) {
				rate = int(binary.LittleEndian.Uint32(raw[body+4 : body+8]))
			}
		case "data":
			end := min(body+size, len(raw))
			return raw[body:end], rate
		}
		offset = body + size + size%2
	}
	return nil, rate
}
