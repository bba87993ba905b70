package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(Config{
		BaseURL:     srv.URL + "/v1/",
		APIKey:      "test-key",
		Model:       "gpt-4.1",
		Temperature: -1,
		Timeout:     time.Second,
	})
}

func TestGenerateSendsChatRequest(t *testing.T) {
	var got chatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.True(t, strings.HasPrefix(r.Header.Get("User-Agent"), "olivia/"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = w.Write([]byte(`{
			"model": "gpt-4.1-2025-04-14",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "  Hello there.  "}}],
			"usage": {"prompt_tokens": 1000, "completion_tokens": 500, "total_tokens": 1500}
		}`))
	})

	resp, err := client.Generate(context.Background(), Request{System: "sys", User: "hi", MaxTokens: 0, Temperature: -1})
	require.NoError(t, err)
	require.Equal(t, "Hello there.", resp.Text)

	require.Equal(t, "gpt-4.1", got.Model)
	require.Equal(t, DefaultMaxTokens, got.MaxTokens)
	require.InDelta(t, DefaultTemperature, got.Temperature, 1e-9)
	require.Equal(t, []chatMessage{{Role: "system", Content: "sys"}, {Role: "user", Content: "hi"}}, got.Messages)

	require.Equal(t, "gpt-4.1-2025-04-14", resp.Usage.Model)
	require.Equal(t, ProviderOpenAI, resp.Usage.Provider)
	require.Equal(t, 1500, resp.Usage.TotalTokens)
	require.InDelta(t, 0.006, resp.Usage.USDEstimate, 1e-9)
}

func TestGenerateExplicitTemperatureAndTokens(t *testing.T) {
	var got chatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"NO"}}]}`))
	})

	_, err := client.Generate(context.Background(), Request{System: "s", User: "u", MaxTokens: 10, Temperature: 0})
	require.NoError(t, err)
	require.Equal(t, 10, got.MaxTokens)
	require.Zero(t, got.Temperature)
}

func TestGenerateFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name: "api error message",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":{"message":"invalid api key","type":"auth"}}`))
			},
			want: "status 401: invalid api key",
		},
		{
			name: "plain error body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte("oops"))
			},
			want: "status 500: oops",
		},
		{
			name: "bad json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("not-json"))
			},
			want: "decode chat response",
		},
		{
			name: "empty choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"choices":[]}`))
			},
			want: ErrEmptyChoices.Error(),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, tc.handler)
			_, err := client.Generate(context.Background(), Request{User: "hi"})
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestGenerateMissingKey(t *testing.T) {
	client := NewClient(Config{})
	_, err := client.Generate(context.Background(), Request{User: "hi"})
	require.True(t, errors.Is(err, ErrMissingAPIKey))
}

func TestGenerateRespectsCanceledContextWhileRateLimited(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	})
	client.cfg.RequestsPerSecond = 0.001
	client.limiter.SetLimit(0.001)

	_, err := client.Generate(context.Background(), Request{User: "first"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.Generate(ctx, Request{User: "second"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "rate limit")
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(Config{Temperature: -1})
	require.Equal(t, DefaultModel, client.Model())
	require.Equal(t, DefaultBaseURL, client.cfg.BaseURL)
	require.Equal(t, DefaultMaxTokens, client.cfg.MaxTokens)
	require.InDelta(t, DefaultTemperature, client.cfg.Temperature, 1e-9)
}
