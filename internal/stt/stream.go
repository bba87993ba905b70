// Package stt talks to speech-recognition backends: a websocket stream for live turns and a
// one-shot HTTP recognizer for short recordings.
package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultStreamURL    = "wss://api.deepgram.com/v1/listen"
	defaultDialTimeout  = 3 * time.Second
	defaultCloseTimeout = 20 * time.Second
	defaultLanguageCode = "en-US"
	defaultSampleRate   = 16000
	closeStreamMessage  = `{"type":"CloseStream"}`
	resultsMessageType  = "Results"
	closeWriteDeadline  = time.Second
)

var ErrStreamClosed = errors.New("stream closed")

// StreamConfig controls one streaming recognition session.
type StreamConfig struct {
	URL                  string
	APIKey               string
	LanguageCode         string
	Model                string
	SampleRate           int
	AutomaticPunctuation bool
	DialTimeout          time.Duration
	CloseTimeout         time.Duration
	Logger               *slog.Logger
}

// Stream is one live recognition websocket. It is used for a single turn.
type Stream struct {
	conn         *websocket.Conn
	logger       *slog.Logger
	closeTimeout time.Duration

	recvDone chan struct{}
	writeMu  sync.Mutex
	hasText  atomic.Bool

	mu          sync.Mutex
	segments    []string
	lastInterim string
	recvErr     error
	closedSend  bool
	canceled    bool
}

type streamResult struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// Dial opens the websocket and starts the receive loop.
func Dial(ctx context.Context, cfg StreamConfig) (*Stream, error) {
	endpoint, err := streamURL(cfg)
	if err != nil {
		return nil, err
	}
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}

	header := http.Header{}
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		header.Set("Authorization", "Token "+key)
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, resp, err := dialer.DialContext(dialCtx, endpoint, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial stt stream: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial stt stream: %w", err)
	}

	closeTimeout := cfg.CloseTimeout
	if closeTimeout <= 0 {
		closeTimeout = defaultCloseTimeout
	}

	s := &Stream{
		conn:         conn,
		logger:       cfg.Logger,
		closeTimeout: closeTimeout,
		recvDone:     make(chan struct{}),
	}
	go s.recvLoop()
	return s, nil
}

func streamURL(cfg StreamConfig) (string, error) {
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		raw = DefaultStreamURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse stt stream url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("stt stream url %q must use ws or wss", raw)
	}

	language := strings.TrimSpace(cfg.LanguageCode)
	if language == "" {
		language = defaultLanguageCode
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = defaultSampleRate
	}

	q := u.Query()
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(rate))
	q.Set("channels", "1")
	q.Set("language", language)
	q.Set("punctuate", strconv.FormatBool(cfg.AutomaticPunctuation))
	q.Set("interim_results", "true")
	if model := strings.TrimSpace(cfg.Model); model != "" {
		q.Set("model", model)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Stream) recvLoop() {
	defer close(s.recvDone)

	for {
		msgType, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			expected := s.canceled || s.closedSend ||
				websocket.IsCloseError(err, websocket.CloseNormalClosure)
			if !expected {
				s.recvErr = err
			}
			s.mu.Unlock()
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		s.recordMessage(payload)
	}
}

// recordMessage merges final and interim hypotheses into stream state.
func (s *Stream) recordMessage(payload []byte) {
	var result streamResult
	if err := json.Unmarshal(payload, &result); err != nil {
		s.log("ignore undecodable stt message", "error", err)
		return
	}
	if result.Type != resultsMessageType || len(result.Channel.Alternatives) == 0 {
		return
	}
	transcript := cleanSegment(result.Channel.Alternatives[0].Transcript)
	if transcript == "" {
		return
	}
	s.hasText.Store(true)

	s.mu.Lock()
	defer s.mu.Unlock()

	if result.IsFinal {
		s.segments = appendSegment(s.segments, transcript)
		s.lastInterim = ""
		return
	}
	if !isInterimContinuation(s.lastInterim, transcript) {
		s.segments = appendSegment(s.segments, s.lastInterim)
	}
	s.lastInterim = transcript
}

// SendAudio sends one PCM chunk as a binary frame.
func (s *Stream) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.mu.Lock()
	closed := s.closedSend || s.canceled
	recvErr := s.recvErr
	s.mu.Unlock()

	if closed {
		return ErrStreamClosed
	}
	if recvErr != nil {
		return fmt.Errorf("stream receive loop failed: %w", recvErr)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, chunk)
}

// HasText reports whether any non-empty hypothesis has arrived.
func (s *Stream) HasText() bool {
	return s.hasText.Load()
}

// CloseAndCollect asks the server to flush, waits for the reader and returns the transcript.
// The wait is bounded by the stream's close timeout as well as ctx.
func (s *Stream) CloseAndCollect(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.canceled {
		s.mu.Unlock()
		return "", ErrStreamClosed
	}
	alreadyClosed := s.closedSend
	s.closedSend = true
	s.mu.Unlock()

	if !alreadyClosed {
		s.writeMu.Lock()
		err := s.conn.WriteMessage(websocket.TextMessage, []byte(closeStreamMessage))
		s.writeMu.Unlock()
		if err != nil {
			_ = s.conn.Close()
			return "", fmt.Errorf("send close stream: %w", err)
		}
	}

	closeCtx, cancel := context.WithTimeout(ctx, s.closeTimeout)
	defer cancel()

	select {
	case <-s.recvDone:
	case <-closeCtx.Done():
		_ = s.conn.Close()
		<-s.recvDone
		return "", fmt.Errorf("wait for final transcript: %w", closeCtx.Err())
	}
	s.closeConn()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recvErr != nil {
		return "", fmt.Errorf("receive transcript: %w", s.recvErr)
	}
	return Assemble(s.segments, s.lastInterim), nil
}

// Cancel drops the stream without waiting for pending results.
func (s *Stream) Cancel() {
	s.mu.Lock()
	if s.canceled {
		s.mu.Unlock()
		return
	}
	s.canceled = true
	s.mu.Unlock()

	s.closeConn()
}

func (s *Stream) closeConn() {
	s.writeMu.Lock()
	_ = s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeWriteDeadline),
	)
	s.writeMu.Unlock()
	_ = s.conn.Close()
}

func (s *Stream) log(msg string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Debug(msg, args...)
}
