package tts

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func wavOf(pcm []byte, rate int) []byte {
	out := make([]byte, 0, 44+len(pcm))
	out = append(out, "RIFF"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(36+len(pcm)))
	out = append(out, "WAVE"...)
	out = append(out, "fmt "...)
	out = binary.LittleEndian.AppendUint32(out, 16)
	out = binary.LittleEndian.AppendUint16(out, 1)
	out = binary.LittleEndian.AppendUint16(out, 1)
	out = binary.LittleEndian.AppendUint32(out, uint32(rate))
	out = binary.LittleEndian.AppendUint32(out, uint32(rate*2))
	out = binary.LittleEndian.AppendUint16(out, 2)
	out = binary.LittleEndian.AppendUint16(out, 16)
	out = append(out, "data"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(pcm)))
	return append(out, pcm...)
}

func TestSynthesizeStripsWAVHeader(t *testing.T) {
	pcm := []byte{1, 0, 2, 0, 3, 0}
	var got synthesizeRequest
	var key string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.URL.Query().Get("key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(synthesizeResponse{AudioContent: base64.StdEncoding.EncodeToString(wavOf(pcm, 24000))})
	}))
	defer ts.Close()

	client := NewClient(Config{URL: ts.URL, APIKey: "tts-key"})
	audio, err := client.Synthesize(context.Background(), Request{
		Text:         "Hello there.",
		LanguageCode: "en-GB",
		Voice:        "en-GB-Neural2-F",
		SpeakingRate: 0.98,
		Pitch:        -1.5,
		GainDB:       -1,
		SampleRate:   48000,
	})
	require.NoError(t, err)
	require.Equal(t, pcm, audio.PCM)
	require.Equal(t, 24000, audio.SampleRate)

	require.Equal(t, "tts-key", key)
	require.Equal(t, "Hello there.", got.Input.Text)
	require.Equal(t, voiceSelection{LanguageCode: "en-GB", Name: "en-GB-Neural2-F"}, got.Voice)
	require.Equal(t, audioConfig{
		AudioEncoding:   "LINEAR16",
		SpeakingRate:    0.98,
		Pitch:           -1.5,
		VolumeGainDB:    -1,
		SampleRateHertz: 48000,
	}, got.AudioConfig)
}

func TestSynthesizeRawPCMUsesRequestedRate(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"audioContent":"` + base64.StdEncoding.EncodeToString([]byte{9, 0}) + `"}`))
	}))
	defer ts.Close()

	audio, err := NewClient(Config{URL: ts.URL}).Synthesize(context.Background(), Request{Text: "x", SampleRate: 16000})
	require.NoError(t, err)
	require.Equal(t, []byte{9, 0}, audio.PCM)
	require.Equal(t, 16000, audio.SampleRate)
}

func TestSynthesizeErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
		wantIs  error
	}{
		{name: "status", status: http.StatusBadRequest, body: "invalid voice", wantErr: "synthesize status 400: invalid voice"},
		{name: "bad json", status: http.StatusOK, body: "{", wantErr: "decode synthesize response"},
		{name: "bad base64", status: http.StatusOK, body: `{"audioContent":"%%%"}`, wantErr: "decode audio content"},
		{name: "empty", status: http.StatusOK, body: `{}`, wantIs: ErrEmptyAudio},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer ts.Close()

			_, err := NewClient(Config{URL: ts.URL}).Synthesize(context.Background(), Request{Text: "x"})
			if tc.wantIs != nil {
				require.ErrorIs(t, err, tc.wantIs)
				return
			}
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestStripWAVHeader(t *testing.T) {
	pcm, rate := stripWAVHeader([]byte{1, 2, 3, 4})
	require.Equal(t, []byte{1, 2, 3, 4}, pcm)
	require.Zero(t, rate)

	truncated := wavOf([]byte{1, 0, 2, 0}, 16000)
	pcm, rate = stripWAVHeader(truncated[:len(truncated)-2])
	require.Equal(t, []byte{1, 0}, pcm)
	require.Equal(t, 16000, rate)
}

func TestAudioDuration(t *testing.T) {
	require.Equal(t, time.Second, Audio{PCM: make([]byte, 32000), SampleRate: 16000}.Duration())
	require.Equal(t, 500*time.Millisecond, Audio{PCM: make([]byte, 48000), SampleRate: 48000}.Duration())
	require.Zero(t, Audio{PCM: make([]byte, 10)}.Duration())
}

type recordingOutput struct {
	played []Audio
	err    error
}

func (o *recordingOutput) Play(_ context.Context, audio Audio) error {
	o.played = append(o.played, audio)
	return o.err
}

type fakeTimer struct {
	now    time.Time
	sleeps []time.Duration
}

func (f *fakeTimer) clock() time.Time { return f.now }

func (f *fakeTimer) sleep(_ context.Context, d time.Duration) error {
	f.sleeps = append(f.sleeps, d)
	if d > 0 {
		f.now = f.now.Add(d)
	}
	return nil
}

func newTestPlayer(out Output, timer *fakeTimer) *Player {
	p := newPlayer(out, PlayerConfig{Tail: 150 * time.Millisecond, Settle: 200 * time.Millisecond})
	p.now = timer.clock
	p.sleep = timer.sleep
	return p
}

func TestPlayerBlocksForDurationPlusTailThenSettles(t *testing.T) {
	out := &recordingOutput{}
	timer := &fakeTimer{now: time.Unix(0, 0)}
	player := newTestPlayer(out, timer)

	audio := Audio{PCM: make([]byte, 32000), SampleRate: 16000}
	require.NoError(t, player.Play(context.Background(), audio))
	require.Len(t, out.played, 1)
	require.Equal(t, []time.Duration{1150 * time.Millisecond, 200 * time.Millisecond}, timer.sleeps)
}

func TestPlayerSkipsEmptyAudio(t *testing.T) {
	out := &recordingOutput{}
	timer := &fakeTimer{}
	require.NoError(t, newTestPlayer(out, timer).Play(context.Background(), Audio{SampleRate: 16000}))
	require.Empty(t, out.played)
	require.Empty(t, timer.sleeps)
}

func TestPlayerWrapsOutputError(t *testing.T) {
	out := &recordingOutput{err: errors.New("sink gone")}
	err := newTestPlayer(out, &fakeTimer{}).Play(context.Background(), Audio{PCM: []byte{1, 0}, SampleRate: 16000})
	require.ErrorContains(t, err, "play audio: sink gone")
}

func TestPlayerCue(t *testing.T) {
	out := &recordingOutput{}
	timer := &fakeTimer{}
	require.NoError(t, newTestPlayer(out, timer).Cue(context.Background()))
	require.Len(t, out.played, 1)
	require.Equal(t, cueSampleRate, out.played[0].SampleRate)
	require.Equal(t, []time.Duration{out.played[0].Duration()}, timer.sleeps)
}

func TestListenCueShape(t *testing.T) {
	// Two 70ms tones with a 22ms gap.
	require.Len(t, listenCue.PCM, (1120+352+1120)*2)
	require.Zero(t, binary.LittleEndian.Uint16(listenCue.PCM[0:2]))
	require.Empty(t, synthesizeTone(toneSpec{frequencyHz: 0, duration: time.Second, volume: 1}))
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}

type fakeSynth struct {
	got   Request
	audio Audio
	err   error
	calls int
}

func (s *fakeSynth) Synthesize(_ context.Context, req Request) (Audio, error) {
	s.calls++
	s.got = req
	return s.audio, s.err
}

type fakePlayer struct {
	played []Audio
	err    error
}

func (p *fakePlayer) Play(_ context.Context, audio Audio) error {
	p.played = append(p.played, audio)
	return p.err
}

func TestSpeaker(t *testing.T) {
	voice := Voice{LanguageCode: "en-GB", Name: "en-GB-Neural2-F", Pitch: -1.5, GainDB: -1, SampleRate: 48000}

	t.Run("speaks trimmed text", func(t *testing.T) {
		synth := &fakeSynth{audio: Audio{PCM: []byte{1, 0}, SampleRate: 48000}}
		player := &fakePlayer{}
		require.NoError(t, NewSpeaker(synth, player, voice, nil).Speak(context.Background(), "  Hello.  ", 0.94))
		require.Equal(t, Request{
			Text:         "Hello.",
			LanguageCode: "en-GB",
			Voice:        "en-GB-Neural2-F",
			SpeakingRate: 0.94,
			Pitch:        -1.5,
			GainDB:       -1,
			SampleRate:   48000,
		}, synth.got)
		require.Len(t, player.played, 1)
	})

	t.Run("zero rate falls back to voice rate", func(t *testing.T) {
		synth := &fakeSynth{audio: Audio{PCM: []byte{1, 0}, SampleRate: 48000}}
		slow := voice
		slow.SpeakingRate = 0.9
		require.NoError(t, NewSpeaker(synth, &fakePlayer{}, slow, nil).Speak(context.Background(), "Hi", 0))
		require.Equal(t, 0.9, synth.got.SpeakingRate)
	})

	t.Run("blank text speaks nothing", func(t *testing.T) {
		synth := &fakeSynth{}
		player := &fakePlayer{}
		require.NoError(t, NewSpeaker(synth, player, voice, nil).Speak(context.Background(), " \n", 1))
		require.Zero(t, synth.calls)
		require.Empty(t, player.played)
	})

	t.Run("synthesis failure", func(t *testing.T) {
		synth := &fakeSynth{err: errors.New("quota")}
		err := NewSpeaker(synth, &fakePlayer{}, voice, nil).Speak(context.Background(), "Hi", 1)
		require.ErrorContains(t, err, "synthesize speech: quota")
	})

	t.Run("playback failure", func(t *testing.T) {
		synth := &fakeSynth{audio: Audio{PCM: []byte{1, 0}, SampleRate: 16000}}
		err := NewSpeaker(synth, &fakePlayer{err: errors.New("busy")}, voice, nil).Speak(context.Background(), "Hi", 1)
		require.ErrorContains(t, err, "play speech: busy")
	})
}
