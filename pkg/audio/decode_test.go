package audio_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/voicerelay/pkg/audio"
)

func TestDecode_PCMFrames(t *testing.T) {
	t.Parallel()

	f := audio.Format{SampleRate: 16000, Channels: 1}
	frameBytes := f.BytesPerDuration(20) // 640
	data := make([]byte, frameBytes*2+100)

	s, err := audio.Decode(context.Background(), audio.Clip{Data: data, Encoding: audio.EncodingPCM, Format: f})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if s.Format != f {
		t.Errorf("Format = %v, want %v", s.Format, f)
	}

	var sizes []int
	var stamps []time.Duration
	for fr := range s.Frames {
		sizes = append(sizes, len(fr.Data))
		stamps = append(stamps, fr.Timestamp)
		if fr.SampleRate != 16000 || fr.Channels != 1 {
			t.Errorf("frame format = %dHz %dch", fr.SampleRate, fr.Channels)
		}
	}
	if len(sizes) != 3 || sizes[0] != frameBytes || sizes[1] != frameBytes || sizes[2] != 100 {
		t.Errorf("frame sizes = %v, want [%d %d 100]", sizes, frameBytes, frameBytes)
	}
	if stamps[2] != 40*time.Millisecond {
		t.Errorf("third timestamp = %v, want 40ms", stamps[2])
	}
	if err := s.Err(); err != nil {
		t.Errorf("Err = %v, want nil", err)
	}
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		clip audio.Clip
	}{
		{"empty", audio.Clip{Encoding: audio.EncodingPCM, Format: audio.Format{SampleRate: 48000, Channels: 2}}},
		{"pcm without format", audio.Clip{Data: []byte{0, 0}, Encoding: audio.EncodingPCM}},
		{"garbage mp3", audio.Clip{Data: []byte("definitely not an mp3 stream"), Encoding: audio.EncodingMP3}},
		{"unknown encoding", audio.Clip{Data: []byte{0, 0}, Encoding: audio.Encoding(42)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := audio.Decode(context.Background(), tt.clip)
			if !errors.Is(err, audio.ErrPlayback) {
				t.Errorf("err = %v, want ErrPlayback", err)
			}
		})
	}
}

func TestDecode_CancelStopsProducer(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	f := audio.Format{SampleRate: 48000, Channels: 2}
	// Far more frames than the channel buffer holds.
	data := make([]byte, f.BytesPerDuration(20)*200)

	s, err := audio.Decode(ctx, audio.Clip{Data: data, Encoding: audio.EncodingPCM, Format: f})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	<-s.Frames
	cancel()

	done := make(chan struct{})
	go func() {
		audio.Drain(s.Frames)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Frames not closed after cancel")
	}
	if !errors.Is(s.Err(), context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", s.Err())
	}
}
