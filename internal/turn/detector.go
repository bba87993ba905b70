// Package turn segments a live frame stream into user turns.
package turn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/rbright/olivia/internal/repair"
)

// Source yields fixed-size PCM16LE mono frames. io.EOF ends the stream.
type Source interface {
	ReadFrame(ctx context.Context) ([]byte, error)
}

// Recognizer is the streaming speech-recognition collaborator for one turn.
type Recognizer interface {
	SendAudio(chunk []byte) error
	HasText() bool
	CloseAndCollect(ctx context.Context) (string, error)
	Cancel()
}

type Outcome string

const (
	OutcomeLongPause    Outcome = "long_pause"
	OutcomeHardCap      Outcome = "hard_cap"
	OutcomeNoTranscript Outcome = "no_transcript"
	OutcomeSourceClosed Outcome = "source_closed"
)

// Turn is immutable once returned.
type Turn struct {
	Transcript string
	Audio      []byte
	SampleRate int
	Outcome    Outcome
	HeardVoice bool
	Duration   time.Duration
}

// Params configures one detection pass.
type Params struct {
	SampleRate      int
	EnergyThreshold float64
	LongPause       time.Duration
	MinListen       time.Duration
	MaxTotal        time.Duration
	PreRoll         time.Duration
	// NoTranscript aborts a turn when voice was heard but nothing was recognized; zero disables it.
	NoTranscript time.Duration
}

func (p Params) validate() error {
	switch {
	case p.SampleRate <= 0:
		return errors.New("sample rate must be > 0")
	case p.LongPause <= 0:
		return errors.New("long pause must be > 0")
	case p.MaxTotal <= 0:
		return errors.New("max total must be > 0")
	}
	return nil
}

// Detector is stateless between calls.
type Detector struct {
	params Params
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Detector)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		if now != nil {
			d.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		d.logger = logger
	}
}

func NewDetector(params Params, opts ...Option) (*Detector, error) {
	if err := params.validate(); err != nil {
		return nil, fmt.Errorf("invalid turn params: %w", err)
	}
	d := &Detector{params: params, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Detect reads frames until the turn ends. rec may be nil for energy-only recording.
//
// Silence is measured from the last voiced frame, or from the start of listening when no voice
// has been heard yet, so a silent speaker still ends the turn after the long pause.
func (d *Detector) Detect(ctx context.Context, src Source, rec Recognizer) (Turn, error) {
	p := d.params
	start := d.now()

	var audio []byte
	send := func(frame []byte) error {
		audio = append(audio, frame...)
		if rec == nil {
			return nil
		}
		if err := rec.SendAudio(frame); err != nil {
			return fmt.Errorf("send audio: %w", err)
		}
		return nil
	}

	abort := func(err error) (Turn, error) {
		if rec != nil {
			rec.Cancel()
		}
		return Turn{}, err
	}

	// Pre-roll frames are buffered before voice detection starts so speech onset is never clipped.
	var preroll [][]byte
	for d.now().Sub(start) < p.PreRoll {
		frame, err := src.ReadFrame(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return abort(fmt.Errorf("read pre-roll frame: %w", err))
		}
		if len(frame) > 0 {
			preroll = append(preroll, frame)
		}
	}
	for _, frame := range preroll {
		if err := send(frame); err != nil {
			return abort(err)
		}
	}

	var (
		heardVoice bool
		firstVoice time.Time
		lastVoice  = start
		outcome    Outcome
	)

	for outcome == "" {
		frame, err := src.ReadFrame(ctx)
		if errors.Is(err, io.EOF) {
			outcome = OutcomeSourceClosed
			break
		}
		if err != nil {
			return abort(fmt.Errorf("read frame: %w", err))
		}

		now := d.now()
		if len(frame) == 0 {
			if now.Sub(start) > p.MaxTotal {
				outcome = OutcomeHardCap
			}
			continue
		}

		if err := send(frame); err != nil {
			return abort(err)
		}

		if repair.MeanAbsAmplitude(frame) > p.EnergyThreshold {
			if !heardVoice {
				firstVoice = now
			}
			heardVoice = true
			lastVoice = now
		}

		elapsed := now.Sub(start)
		switch {
		case elapsed > p.MaxTotal:
			outcome = OutcomeHardCap
		case elapsed >= p.MinListen && now.Sub(lastVoice) >= p.LongPause:
			outcome = OutcomeLongPause
		case p.NoTranscript > 0 && rec != nil && heardVoice &&
			now.Sub(firstVoice) > p.NoTranscript && !rec.HasText():
			outcome = OutcomeNoTranscript
		}
	}

	turn := Turn{
		Audio:      audio,
		SampleRate: p.SampleRate,
		Outcome:    outcome,
		HeardVoice: heardVoice,
		Duration:   d.now().Sub(start),
	}
	d.log("turn ended", "outcome", string(outcome), "heard_voice", heardVoice, "audio_bytes", len(audio))

	if rec == nil {
		return turn, nil
	}
	if outcome == OutcomeNoTranscript {
		rec.Cancel()
		return turn, nil
	}

	text, err := rec.CloseAndCollect(ctx)
	if err != nil {
		return Turn{}, fmt.Errorf("collect transcript: %w", err)
	}
	turn.Transcript = text
	return turn, nil
}

func (d *Detector) log(msg string, args ...any) {
	if d.logger == nil {
		return
	}
	d.logger.Debug(msg, args...)
}
