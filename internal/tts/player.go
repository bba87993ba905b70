package tts

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/jfreymuth/pulse"
)

const (
	applicationName = "olivia"
	DefaultTail     = 150 * time.Millisecond
	DefaultSettle   = 200 * time.Millisecond
)

// Output renders PCM to a device. Play may return before the audio is audible.
type Output interface {
	Play(ctx context.Context, audio Audio) error
}

type PlayerConfig struct {
	Tail   time.Duration
	Settle time.Duration
}

// Player blocks for the full duration of each utterance so the microphone never hears it.
type Player struct {
	output Output
	tail   time.Duration
	settle time.Duration

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func NewPlayer(cfg PlayerConfig) *Player {
	return newPlayer(pulseOutput{}, cfg)
}

func newPlayer(output Output, cfg PlayerConfig) *Player {
	if cfg.Tail < 0 {
		cfg.Tail = DefaultTail
	}
	if cfg.Settle < 0 {
		cfg.Settle = DefaultSettle
	}
	return &Player{
		output: output,
		tail:   cfg.Tail,
		settle: cfg.Settle,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// Play returns no earlier than Duration()+tail after it started, then waits settle.
func (p *Player) Play(ctx context.Context, audio Audio) error {
	if len(audio.PCM) < 2 {
		return nil
	}
	start := p.now()
	if err := p.output.Play(ctx, audio); err != nil {
		return fmt.Errorf("play audio: %w", err)
	}

	remaining := audio.Duration() + p.tail - p.now().Sub(start)
	if err := p.sleep(ctx, remaining); err != nil {
		return err
	}
	return p.sleep(ctx, p.settle)
}

// Cue plays the short listening tone.
func (p *Player) Cue(ctx context.Context) error {
	if err := p.output.Play(ctx, listenCue); err != nil {
		return fmt.Errorf("play listen cue: %w", err)
	}
	return p.sleep(ctx, listenCue.Duration())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// pulseOutput opens one playback stream per utterance and drains it.
type pulseOutput struct{}

func (pulseOutput) Play(ctx context.Context, audio Audio) error {
	if audio.SampleRate <= 0 {
		return fmt.Errorf("invalid playback sample rate %d", audio.SampleRate)
	}

	client, err := pulse.NewClient(
		pulse.ClientApplicationName(applicationName),
		pulse.ClientApplicationIconName("audio-speakers"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	samples := pcmSamples(audio.PCM)
	cursor := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if cursor >= len(samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples[cursor:])
		cursor += n
		if cursor >= len(samples) {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(audio.SampleRate),
		pulse.PlaybackLatency(0.05),
		pulse.PlaybackMediaName("olivia speech"),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			stream.Close()
		case <-done:
		}
	}()

	stream.Start()
	stream.Drain()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play pulse stream: %w", err)
	}
	return nil
}

func pcmSamples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}
