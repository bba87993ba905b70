package tts

import (
	"encoding/binary"
	"math"
	"time"
)

const cueSampleRate = 16000

type toneSpec struct {
	frequencyHz float64
	duration    time.Duration
	volume      float64
}

// listenCue is a rising two-note chime played before each listen.
var listenCue = synthesizeCue([]toneSpec{
	{frequencyHz: 880, duration: 70 * time.Millisecond, volume: 0.18},
	{frequencyHz: 1175, duration: 70 * time.Millisecond, volume: 0.18},
})

func synthesizeCue(parts []toneSpec) Audio {
	gap := make([]int16, samplesForDuration(22*time.Millisecond))

	var samples []int16
	for i, part := range parts {
		samples = append(samples, synthesizeTone(part)...)
		if i < len(parts)-1 {
			samples = append(samples, gap...)
		}
	}

	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return Audio{PCM: pcm, SampleRate: cueSampleRate}
}

// synthesizeTone renders a sine with a short linear attack and release to avoid clicks.
func synthesizeTone(spec toneSpec) []int16 {
	n := samplesForDuration(spec.duration)
	if n <= 0 || spec.frequencyHz <= 0 || spec.volume <= 0 {
		return nil
	}

	ramp := max(min(n/10, cueSampleRate/200), 1)
	pcm := make([]int16, n)
	for i := range pcm {
		envelope := min(1.0, float64(i)/float64(ramp), float64(n-i-1)/float64(ramp))
		t := float64(i) / cueSampleRate
		sample := math.Sin(2 * math.Pi * spec.frequencyHz * t)
		pcm[i] = int16(math.Round(sample * spec.volume * envelope * 32767))
	}
	return pcm
}

func samplesForDuration(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}
