// Package pipeline wires capture, streaming recognition and turn detection into one listen.
package pipeline

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/olivia/internal/audio"
	"github.com/rbright/olivia/internal/logging"
	"github.com/rbright/olivia/internal/stt"
	"github.com/rbright/olivia/internal/turn"
)

// recordFrameMS is the frame size for the plain energy recorder.
const recordFrameMS = 30

// Config describes the input device and the per-turn recognizer.
type Config struct {
	Input     string
	Fallback  string
	FrameMS   int
	Stream    stt.StreamConfig
	AudioDump bool
}

type frameSource interface {
	turn.Source
	Stop() error
}

// Listener owns one capture and one recognizer stream per listen.
type Listener struct {
	cfg    Config
	logger *slog.Logger

	openSource func(ctx context.Context, format audio.Format) (frameSource, error)
	dial       func(ctx context.Context, sampleRate int) (turn.Recognizer, error)
	debugDir   func() (string, error)
}

func NewListener(cfg Config, logger *slog.Logger) *Listener {
	l := &Listener{cfg: cfg, logger: logger, debugDir: defaultDebugDir}
	l.openSource = l.openCapture
	l.dial = l.dialStream
	return l
}

// Listen captures one turn while streaming it to the recognizer.
func (l *Listener) Listen(ctx context.Context, params turn.Params) (turn.Turn, error) {
	return l.run(ctx, params, l.cfg.FrameMS, true)
}

// RecordUntilSilence captures one turn with 30 ms frames and no recognizer.
func (l *Listener) RecordUntilSilence(ctx context.Context, params turn.Params) (turn.Turn, error) {
	return l.run(ctx, params, recordFrameMS, false)
}

func (l *Listener) run(ctx context.Context, params turn.Params, frameMS int, recognize bool) (turn.Turn, error) {
	detector, err := turn.NewDetector(params, turn.WithLogger(l.logger))
	if err != nil {
		return turn.Turn{}, err
	}

	src, err := l.openSource(ctx, audio.FormatFor(params.SampleRate, frameMS))
	if err != nil {
		return turn.Turn{}, err
	}
	defer func() { _ = src.Stop() }()

	var rec turn.Recognizer
	if recognize {
		rec, err = l.dial(ctx, params.SampleRate)
		if err != nil {
			return turn.Turn{}, fmt.Errorf("open stt stream: %w", err)
		}
	}

	result, err := detector.Detect(ctx, src, rec)
	if err != nil {
		return turn.Turn{}, err
	}
	l.writeDebugAudio(result.Audio, result.SampleRate)
	return result, nil
}

func (l *Listener) openCapture(ctx context.Context, format audio.Format) (frameSource, error) {
	selection, err := audio.SelectDevice(ctx, l.cfg.Input, l.cfg.Fallback)
	if err != nil {
		return nil, err
	}
	if selection.Warning != "" {
		l.logWarn(selection.Warning)
	}
	capture, err := audio.StartCapture(ctx, selection.Device, format)
	if err != nil {
		return nil, err
	}
	if l.logger != nil {
		l.logger.Debug("capture started", "device", describeDevice(selection.Device), "frame_bytes", format.FrameBytes)
	}
	return capture, nil
}

func (l *Listener) dialStream(ctx context.Context, sampleRate int) (turn.Recognizer, error) {
	cfg := l.cfg.Stream
	cfg.SampleRate = sampleRate
	cfg.Logger = l.logger
	stream, err := stt.Dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// describeDevice formats device metadata for logs.
func describeDevice(device audio.Device) string {
	description := strings.TrimSpace(device.Description)
	id := strings.TrimSpace(device.ID)
	if description == "" {
		return id
	}
	if id == "" {
		return description
	}
	return fmt.Sprintf("%s (%s)", description, id)
}

func (l *Listener) logWarn(message string) {
	if l.logger == nil {
		return
	}
	l.logger.Warn(message)
}

func defaultDebugDir() (string, error) {
	stateDir, err := logging.StateDir()
	if err != nil {
		return "", fmt.Errorf("resolve state dir: %w", err)
	}
	return filepath.Join(stateDir, "debug"), nil
}

// createDebugFile creates timestamped debug artifacts under dir.
func createDebugFile(dir string, prefix string, extension string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405.000")
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.%s", prefix, timestamp, extension))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open debug file %q: %w", path, err)
	}
	return file, nil
}

// writeDebugAudio writes one turn's PCM to WAV when debug.audio_dump is enabled.
func (l *Listener) writeDebugAudio(pcm []byte, sampleRate int) {
	if !l.cfg.AudioDump || len(pcm) == 0 {
		return
	}

	dir, err := l.debugDir()
	if err != nil {
		l.logWarn(fmt.Sprintf("unable to resolve debug dir: %v", err))
		return
	}
	file, err := createDebugFile(dir, "turn", "wav")
	if err != nil {
		l.logWarn(fmt.Sprintf("unable to create debug audio dump: %v", err))
		return
	}
	defer file.Close()

	if err := writePCM16WAV(file, pcm, sampleRate, 1); err != nil {
		l.logWarn(fmt.Sprintf("unable to write debug audio dump: %v", err))
	}
}

// writePCM16WAV writes raw little-endian PCM bytes with a minimal WAV header.
func writePCM16WAV(w io.Writer, pcm []byte, sampleRate int, channels int) error {
	if channels <= 0 {
		channels = 1
	}
	const bitsPerSample = 16
	byteRate := sampleRate * channels * (bitsPerSample / 8)
	blockAlign := channels * (bitsPerSample / 8)

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+len(pcm)))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(pcm)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(pcm)
	return err
}
