package audio

import (
	"context"
	"io"
	"reflect"
	"testing"
	"time"

	pulseproto "github.com/jfreymuth/pulse/proto"
	"github.com/stretchr/testify/require"
)

func TestSelectFromList(t *testing.T) {
	tests := []struct {
		name         string
		devices      []Device
		input        string
		fallback     string
		wantID       string
		wantFallback bool
		wantWarning  string
		wantErr      string
	}{
		{
			name: "default device",
			devices: []Device{
				{ID: "elgato", Description: "Elgato Wave 3 Mono", Available: true, Default: true},
				{ID: "sony", Description: "Sony WH-1000XM6", Available: true},
			},
			input:    "default",
			fallback: "default",
			wantID:   "elgato",
		},
		{
			name: "named input by description",
			devices: []Device{
				{ID: "elgato", Description: "Elgato Wave 3 Mono", Available: true, Default: true},
				{ID: "alsa_input.usb", Description: "Sony WH-1000XM6", Available: true},
			},
			input:  "SONY",
			wantID: "alsa_input.usb",
		},
		{
			name: "muted primary uses fallback",
			devices: []Device{
				{ID: "elgato", Available: true, Muted: true, Default: true},
				{ID: "sony", Available: true},
			},
			input:        "elgato",
			fallback:     "sony",
			wantID:       "sony",
			wantFallback: true,
			wantWarning:  "muted",
		},
		{
			name: "unavailable primary falls back to default",
			devices: []Device{
				{ID: "elgato", Available: true, Default: true},
				{ID: "sony", Available: false},
			},
			input:        "sony",
			wantID:       "elgato",
			wantFallback: true,
			wantWarning:  "unavailable",
		},
		{
			name:     "muted default with no other option",
			devices:  []Device{{ID: "elgato", Available: true, Muted: true, Default: true}},
			input:    "default",
			fallback: "default",
			wantErr:  "muted",
		},
		{
			name:    "unknown input",
			devices: []Device{{ID: "elgato", Available: true, Default: true}},
			input:   "missing",
			wantErr: "did not match",
		},
		{
			name: "missing fallback",
			devices: []Device{
				{ID: "elgato", Available: false, Default: true},
			},
			input:    "default",
			fallback: "sony",
			wantErr:  "fallback \"sony\" not found",
		},
		{
			name:    "no devices",
			wantErr: "no audio input devices",
		},
		{
			name:    "no default source",
			devices: []Device{{ID: "elgato", Available: true}},
			wantErr: "default audio source is unavailable",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := selectFromList(tc.devices, tc.input, tc.fallback)
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantID, got.Device.ID)
			require.Equal(t, tc.wantFallback, got.Fallback)
			if tc.wantWarning == "" {
				require.Empty(t, got.Warning)
			} else {
				require.Contains(t, got.Warning, tc.wantWarning)
			}
		})
	}
}

func TestListDevicesFailsWhenPulseUnavailable(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")
	_, err := ListDevices(context.Background())
	require.Error(t, err)

	_, err = SelectDevice(context.Background(), "default", "default")
	require.Error(t, err)
}

func TestDevicesFromInfos(t *testing.T) {
	mic := &pulseproto.GetSourceInfoReply{SourceName: "mic", Device: "USB Mic", State: 1, Mute: true, ActivePortName: "in"}
	setSourcePorts(t, mic, []sourcePort{{name: "in", available: 2}})
	monitor := &pulseproto.GetSourceInfoReply{SourceName: "monitor", State: 7}

	got := devicesFromInfos(pulseproto.GetSourceInfoListReply{mic, nil, monitor}, "monitor")
	require.Equal(t, []Device{
		{ID: "mic", Description: "USB Mic", State: "idle", Available: true, Muted: true},
		{ID: "monitor", State: "unknown(7)", Available: true, Default: true},
	}, got)
	require.False(t, got[0].Usable())
	require.True(t, got[1].Usable())
}

func TestSourceAvailable(t *testing.T) {
	require.False(t, sourceAvailable(nil))
	require.True(t, sourceAvailable(&pulseproto.GetSourceInfoReply{}))

	unplugged := &pulseproto.GetSourceInfoReply{ActivePortName: "mic"}
	setSourcePorts(t, unplugged, []sourcePort{{name: "line", available: 2}, {name: "mic", available: 1}})
	require.False(t, sourceAvailable(unplugged))
}

func TestFormatFor(t *testing.T) {
	require.Equal(t, Format{SampleRate: 16000, FrameBytes: 1920}, FormatFor(16000, 60))
	require.Equal(t, Format{SampleRate: 16000, FrameBytes: 960}, FormatFor(16000, 30))
	require.Equal(t, 2, FormatFor(10, 1).FrameBytes)
}

func TestStartCaptureRejectsBadFormat(t *testing.T) {
	_, err := StartCapture(context.Background(), Device{ID: "mic"}, Format{SampleRate: 16000, FrameBytes: 3})
	require.ErrorContains(t, err, "invalid capture format")
}

func TestCaptureSlicesFramesAndFlushesTail(t *testing.T) {
	capture := newCapture(Device{ID: "mic-1"}, Format{SampleRate: 16000, FrameBytes: 4})

	n, err := capture.onPCM([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	require.NoError(t, err)
	require.Equal(t, 10, n)
	require.Equal(t, int64(10), capture.BytesCaptured())
	require.Len(t, capture.RawPCM(), 10)

	ctx := context.Background()
	frame, err := capture.ReadFrame(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, frame)

	require.NoError(t, capture.Stop())
	require.NoError(t, capture.Stop())

	frame, err = capture.ReadFrame(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte{5, 6, 7, 8}, frame)

	frame, err = capture.ReadFrame(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte{9, 10}, frame)

	_, err = capture.ReadFrame(ctx)
	require.ErrorIs(t, err, io.EOF)
}

func TestCaptureOnPCMAfterStop(t *testing.T) {
	capture := newCapture(Device{}, Format{SampleRate: 16000, FrameBytes: 4})
	capture.Close()

	n, err := capture.onPCM([]byte{1, 2})
	require.Zero(t, n)
	require.ErrorIs(t, err, io.EOF)
	require.Zero(t, capture.BytesCaptured())
}

func TestReadFrameHonorsContext(t *testing.T) {
	capture := newCapture(Device{}, Format{SampleRate: 16000, FrameBytes: 4})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := capture.ReadFrame(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 4, capture.Format().FrameBytes)
}

type sourcePort struct {
	name      string
	available uint32
}

func setSourcePorts(t *testing.T, reply *pulseproto.GetSourceInfoReply, ports []sourcePort) {
	t.Helper()

	sliceType := reflect.TypeOf(reply.Ports)
	sliceValue := reflect.MakeSlice(sliceType, len(ports), len(ports))
	for i, port := range ports {
		item := sliceValue.Index(i)
		item.FieldByName("Name").SetString(port.name)
		item.FieldByName("Available").SetUint(uint64(port.available))
	}
	reflect.ValueOf(reply).Elem().FieldByName("Ports").Set(sliceValue)
}
