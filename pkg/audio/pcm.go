package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns e.g. "48000Hz stereo".
func (f Format) String() string {
	switch f.Channels {
	case 1:
		return fmt.Sprintf("%dHz mono", f.SampleRate)
	case 2:
		return fmt.Sprintf("%dHz stereo", f.SampleRate)
	default:
		return fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
	}
}

// BytesPerDuration returns the PCM byte count for ms milliseconds of audio.
func (f Format) BytesPerDuration(ms int) int {
	return f.SampleRate * ms / 1000 * f.Channels * 2
}

// Converter brings frames of any mono/stereo format to Target.
// Use one per stream; it is not safe for concurrent use.
type Converter struct {
	Target Format

	logOnce sync.Once
}

// Convert returns frame in the target format. Frames already in the target
// format are returned as-is. Frames with a trailing half sample are
// truncated to whole samples.
func (c *Converter) Convert(frame AudioFrame) AudioFrame {
	src := Format{SampleRate: frame.SampleRate, Channels: frame.Channels}
	data := frame.Data[:len(frame.Data)&^1]
	if src == c.Target {
		frame.Data = data
		return frame
	}

	c.logOnce.Do(func() {
		slog.Debug("audio: converting stream", "from", src.String(), "to", c.Target.String())
	})

	samples := decodeSamples(data)
	if src.SampleRate != c.Target.SampleRate {
		samples = resample(samples, src.Channels, src.SampleRate, c.Target.SampleRate)
	}
	if src.Channels != c.Target.Channels {
		samples = remix(samples, src.Channels, c.Target.Channels)
	}
	return AudioFrame{
		Data:       encodeSamples(samples),
		SampleRate: c.Target.SampleRate,
		Channels:   c.Target.Channels,
		Timestamp:  frame.Timestamp,
	}
}

func decodeSamples(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

func encodeSamples(s []int16) []byte {
	out := make([]byte, len(s)*2)
	for i, v := range s {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// resample changes the rate of interleaved samples by linear interpolation.
func resample(in []int16, channels, srcRate, dstRate int) []int16 {
	if channels <= 0 || srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return in
	}
	srcFrames := len(in) / channels
	if srcFrames == 0 {
		return nil
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	out := make([]int16, dstFrames*channels)
	step := float64(srcRate) / float64(dstRate)

	for i := range dstFrames {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)
		next := idx + 1
		if next >= srcFrames {
			next = srcFrames - 1
		}
		for ch := range channels {
			a := float64(in[idx*channels+ch])
			b := float64(in[next*channels+ch])
			out[i*channels+ch] = int16(a + (b-a)*frac)
		}
	}
	return out
}

// remix converts between mono and stereo. Other layouts are returned as-is.
func remix(in []int16, from, to int) []int16 {
	switch {
	case from == 1 && to == 2:
		out := make([]int16, len(in)*2)
		for i, v := range in {
			out[i*2] = v
			out[i*2+1] = v
		}
		return out
	case from == 2 && to == 1:
		out := make([]int16, len(in)/2)
		for i := range out {
			// int32 sum cannot overflow and the mean of two int16 fits int16.
			out[i] = int16((int32(in[i*2]) + int32(in[i*2+1])) / 2)
		}
		return out
	default:
		return in
	}
}
