package stt

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type handshake struct {
	query url.Values
	auth  string
}

type fakeStreamServer struct {
	handshakes chan handshake
	// interim is sent after each binary frame; final is sent when the client asks to close.
	interim []string
	final   string
	audio   chan int
	dropOn  int
	// stall swallows CloseStream and never answers or closes.
	stall bool
}

func newFakeStreamServer(t *testing.T, srv *fakeStreamServer) string {
	t.Helper()
	srv.handshakes = make(chan handshake, 1)
	srv.audio = make(chan int, 64)

	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srv.handshakes <- handshake{query: r.URL.Query(), auth: r.Header.Get("Authorization")}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		srv.serve(conn)
	}))
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func (s *fakeStreamServer) serve(conn *websocket.Conn) {
	frames := 0
	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType == websocket.BinaryMessage {
			frames++
			s.audio <- len(payload)
			if s.dropOn > 0 && frames == s.dropOn {
				return
			}
			if frames <= len(s.interim) {
				_ = conn.WriteMessage(websocket.TextMessage, resultJSON(s.interim[frames-1], false))
			}
			continue
		}
		if strings.Contains(string(payload), "CloseStream") {
			if s.stall {
				continue
			}
			if s.final != "" {
				_ = conn.WriteMessage(websocket.TextMessage, resultJSON(s.final, true))
			}
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func resultJSON(transcript string, final bool) []byte {
	return []byte(fmt.Sprintf(
		`{"type":"Results","is_final":%t,"channel":{"alternatives":[{"transcript":%q}]}}`,
		final, transcript,
	))
}

func TestDialStreamEndToEnd(t *testing.T) {
	srv := &fakeStreamServer{
		interim: []string{"we lived", "we lived by the"},
		final:   "we lived by the sea",
	}
	wsURL := newFakeStreamServer(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := Dial(ctx, StreamConfig{
		URL:                  wsURL,
		APIKey:               "secret",
		LanguageCode:         "en-GB",
		Model:                "nova-2",
		SampleRate:           16000,
		AutomaticPunctuation: true,
	})
	require.NoError(t, err)

	hs := <-srv.handshakes
	require.Equal(t, "Token secret", hs.auth)
	require.Equal(t, "linear16", hs.query.Get("encoding"))
	require.Equal(t, "16000", hs.query.Get("sample_rate"))
	require.Equal(t, "1", hs.query.Get("channels"))
	require.Equal(t, "en-GB", hs.query.Get("language"))
	require.Equal(t, "true", hs.query.Get("punctuate"))
	require.Equal(t, "true", hs.query.Get("interim_results"))
	require.Equal(t, "nova-2", hs.query.Get("model"))

	require.False(t, stream.HasText())
	require.NoError(t, stream.SendAudio(make([]byte, 320)))
	require.NoError(t, stream.SendAudio(nil))
	require.NoError(t, stream.SendAudio(make([]byte, 320)))
	require.Equal(t, 320, <-srv.audio)
	require.Equal(t, 320, <-srv.audio)
	require.Eventually(t, stream.HasText, time.Second, 10*time.Millisecond)

	text, err := stream.CloseAndCollect(ctx)
	require.NoError(t, err)
	require.Equal(t, "we lived by the sea", text)

	require.ErrorIs(t, stream.SendAudio([]byte{1, 2}), ErrStreamClosed)
}

func TestCloseAndCollectKeepsTrailingInterim(t *testing.T) {
	srv := &fakeStreamServer{interim: []string{"my brother"}}
	wsURL := newFakeStreamServer(t, srv)

	ctx := context.Background()
	stream, err := Dial(ctx, StreamConfig{URL: wsURL})
	require.NoError(t, err)

	hs := <-srv.handshakes
	require.Empty(t, hs.auth)
	require.Equal(t, "en-US", hs.query.Get("language"))
	require.Empty(t, hs.query.Get("model"))

	require.NoError(t, stream.SendAudio([]byte{0, 0}))
	require.Eventually(t, stream.HasText, time.Second, 10*time.Millisecond)

	text, err := stream.CloseAndCollect(ctx)
	require.NoError(t, err)
	require.Equal(t, "my brother", text)
}

func TestCloseAndCollectReportsAbruptDisconnect(t *testing.T) {
	srv := &fakeStreamServer{dropOn: 1}
	wsURL := newFakeStreamServer(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := Dial(ctx, StreamConfig{URL: wsURL})
	require.NoError(t, err)

	require.NoError(t, stream.SendAudio([]byte{0, 0}))
	<-srv.audio
	<-stream.recvDone

	_, err = stream.CloseAndCollect(ctx)
	require.Error(t, err)
}

func TestCloseAndCollectGivesUpOnStalledServer(t *testing.T) {
	srv := &fakeStreamServer{stall: true}
	wsURL := newFakeStreamServer(t, srv)

	stream, err := Dial(context.Background(), StreamConfig{URL: wsURL, CloseTimeout: 50 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, stream.SendAudio([]byte{0, 0}))
	<-srv.audio

	start := time.Now()
	_, err = stream.CloseAndCollect(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorContains(t, err, "wait for final transcript")
	require.Less(t, time.Since(start), 2*time.Second)

	select {
	case <-stream.recvDone:
	case <-time.After(2 * time.Second):
		t.Fatal("receive loop still running after close timeout")
	}
}

func TestCancelClosesStream(t *testing.T) {
	srv := &fakeStreamServer{}
	wsURL := newFakeStreamServer(t, srv)

	stream, err := Dial(context.Background(), StreamConfig{URL: wsURL})
	require.NoError(t, err)

	require.Equal(t, defaultCloseTimeout, stream.closeTimeout)

	stream.Cancel()
	stream.Cancel()

	select {
	case <-stream.recvDone:
	case <-time.After(2 * time.Second):
		t.Fatal("receive loop did not stop after cancel")
	}
	require.ErrorIs(t, stream.SendAudio([]byte{1, 2}), ErrStreamClosed)
	_, err = stream.CloseAndCollect(context.Background())
	require.ErrorIs(t, err, ErrStreamClosed)
	require.NoError(t, stream.recvErr)
}

func TestDialFailures(t *testing.T) {
	t.Run("rejects http scheme", func(t *testing.T) {
		_, err := Dial(context.Background(), StreamConfig{URL: "http://example.com/listen"})
		require.ErrorContains(t, err, "must use ws or wss")
	})

	t.Run("reports handshake status", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "bad key", http.StatusUnauthorized)
		}))
		defer ts.Close()

		_, err := Dial(context.Background(), StreamConfig{URL: "ws" + strings.TrimPrefix(ts.URL, "http")})
		require.ErrorContains(t, err, "status 401")
	})
}

func TestRecordMessageIgnoresNonResults(t *testing.T) {
	s := &Stream{}
	s.recordMessage([]byte(`{"type":"Metadata"}`))
	s.recordMessage([]byte(`not json`))
	s.recordMessage([]byte(`{"type":"Results","channel":{"alternatives":[]}}`))
	s.recordMessage(resultJSON("   ", false))
	require.False(t, s.HasText())
	require.Empty(t, s.segments)
	require.Empty(t, s.lastInterim)
}

func TestRecordMessageCommitsDivergentInterim(t *testing.T) {
	s := &Stream{}
	for _, msg := range []struct {
		text  string
		final bool
	}{
		{"first phrase", false},
		{"first phrase extended", false},
		{"second phrase", false},
		{"second phrase done", true},
		{"third", false},
	} {
		s.recordMessage(resultJSON(msg.text, msg.final))
	}

	require.True(t, s.HasText())
	require.Equal(t, []string{"first phrase extended", "second phrase done"}, s.segments)
	require.Equal(t, "third", s.lastInterim)
	require.Equal(t, "first phrase extended second phrase done third", Assemble(s.segments, s.lastInterim))
}
