package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

// Format describes the mono PCM16LE frames a capture emits.
type Format struct {
	SampleRate int
	FrameBytes int
}

// FormatFor builds a Format whose frames last frameMS milliseconds.
func FormatFor(sampleRate int, frameMS int) Format {
	samples := sampleRate * frameMS / 1000
	if samples < 1 {
		samples = 1
	}
	return Format{SampleRate: sampleRate, FrameBytes: samples * 2}
}

func (f Format) validate() error {
	if f.SampleRate <= 0 {
		return errors.New("sample rate must be > 0")
	}
	if f.FrameBytes <= 0 || f.FrameBytes%2 != 0 {
		return errors.New("frame bytes must be a positive even number")
	}
	return nil
}

// Capture records one Pulse source and slices it into fixed-size frames.
type Capture struct {
	device Device
	format Format

	client *pulse.Client
	stream *pulse.RecordStream

	frames chan []byte
	stopCh chan struct{}

	mu      sync.Mutex
	pending []byte
	rawPCM  []byte
	stopped bool

	inflight sync.WaitGroup
	bytes    atomic.Int64
}

// StartCapture opens a record stream on the selected device. ctx cancellation stops it.
func StartCapture(ctx context.Context, selected Device, format Format) (*Capture, error) {
	if err := format.validate(); err != nil {
		return nil, fmt.Errorf("invalid capture format: %w", err)
	}

	client, err := newPulseClient("audio-input-microphone")
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(selected.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", selected.ID, err)
	}

	capture := newCapture(selected, format)
	capture.client = client

	writer := pulse.NewWriter(writerFunc(capture.onPCM), pulseproto.FormatInt16LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(format.SampleRate),
		pulse.RecordBufferFragmentSize(uint32(format.FrameBytes)),
		pulse.RecordMediaName("olivia listening"),
	)
	if err != nil {
		capture.Close()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}

	capture.stream = stream
	stream.Start()

	go func() {
		select {
		case <-ctx.Done():
			_ = capture.Stop()
		case <-capture.stopCh:
		}
	}()

	return capture, nil
}

func newCapture(device Device, format Format) *Capture {
	return &Capture{
		device: device,
		format: format,
		frames: make(chan []byte, 128),
		stopCh: make(chan struct{}),
	}
}

func (c *Capture) Device() Device {
	return c.device
}

func (c *Capture) Format() Format {
	return c.format
}

// ReadFrame blocks for the next frame. After Stop it drains buffered frames, including a
// shorter final flush, and then returns io.EOF.
func (c *Capture) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case frame, ok := <-c.frames:
		if !ok {
			return nil, io.EOF
		}
		return frame, nil
	}
}

// BytesCaptured reports total bytes accepted from Pulse.
func (c *Capture) BytesCaptured() int64 {
	return c.bytes.Load()
}

// RawPCM returns a snapshot of everything captured so far.
func (c *Capture) RawPCM() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.rawPCM...)
}

// Stop halts the stream, flushes the partial frame and closes the frame channel once.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	close(c.stopCh)
	c.mu.Unlock()

	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}
	if c.client != nil {
		c.client.Close()
	}

	c.inflight.Wait()

	c.mu.Lock()
	tail := c.pending
	c.pending = nil
	c.mu.Unlock()

	if len(tail) > 0 {
		select {
		case c.frames <- append([]byte(nil), tail...):
		default:
		}
	}

	close(c.frames)
	return nil
}

func (c *Capture) Close() {
	_ = c.Stop()
}

// onPCM receives Pulse buffers of arbitrary size and re-slices them into frames.
func (c *Capture) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, io.EOF
	}
	// Add under the same lock that guards stopped so Stop's Wait cannot race it.
	c.inflight.Add(1)
	defer c.inflight.Done()

	c.rawPCM = append(c.rawPCM, buffer...)
	c.pending = append(c.pending, buffer...)

	size := c.format.FrameBytes
	var ready [][]byte
	for len(c.pending) >= size {
		ready = append(ready, append([]byte(nil), c.pending[:size]...))
		c.pending = c.pending[size:]
	}
	c.mu.Unlock()

	c.bytes.Add(int64(len(buffer)))

	for _, frame := range ready {
		select {
		case <-c.stopCh:
			return 0, io.EOF
		case c.frames <- frame:
		}
	}
	return len(buffer), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
