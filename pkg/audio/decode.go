package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

// FrameDuration is the length of each frame emitted by [Decode].
const FrameDuration = 20 * time.Millisecond

// Encoding identifies the container of a [Clip].
type Encoding int

const (
	// EncodingPCM is raw little-endian int16 PCM described by Clip.Format.
	EncodingPCM Encoding = iota

	// EncodingMP3 is an MPEG-1/2 layer III stream. go-mp3 always decodes to
	// 16-bit stereo at the stream's own sample rate.
	EncodingMP3
)

// String returns the human-readable name of the encoding.
func (e Encoding) String() string {
	switch e {
	case EncodingPCM:
		return "pcm"
	case EncodingMP3:
		return "mp3"
	default:
		return "unknown"
	}
}

// Clip is a complete synthesised audio payload.
type Clip struct {
	Data     []byte
	Encoding Encoding

	// Format describes PCM clips. It is ignored for MP3.
	Format Format
}

// Stream is a clip being decoded into frames.
type Stream struct {
	// Frames is closed when decoding finishes, fails, or ctx is cancelled.
	Frames <-chan AudioFrame

	// Format of every frame on Frames.
	Format Format

	err atomic.Pointer[error]
}

// Err returns the error that ended decoding early, or nil. Check it after
// Frames is closed.
func (s *Stream) Err() error {
	if p := s.err.Load(); p != nil {
		return *p
	}
	return nil
}

func (s *Stream) setErr(err error) {
	s.err.Store(&err)
}

// Decode starts decoding clip into [FrameDuration] frames. Header errors are
// returned immediately; errors later in the stream are reported by
// [Stream.Err]. The caller must either drain Frames or cancel ctx.
func Decode(ctx context.Context, clip Clip) (*Stream, error) {
	if len(clip.Data) == 0 {
		return nil, fmt.Errorf("%w: empty clip", ErrPlayback)
	}

	var (
		r      io.Reader
		format Format
	)
	switch clip.Encoding {
	case EncodingMP3:
		dec, err := mp3.NewDecoder(bytes.NewReader(clip.Data))
		if err != nil {
			return nil, fmt.Errorf("%w: mp3 decoder: %w", ErrPlayback, err)
		}
		r, format = dec, Format{SampleRate: dec.SampleRate(), Channels: 2}
	case EncodingPCM:
		if clip.Format.SampleRate <= 0 || clip.Format.Channels <= 0 {
			return nil, fmt.Errorf("%w: pcm clip without format", ErrPlayback)
		}
		r, format = bytes.NewReader(clip.Data), clip.Format
	default:
		return nil, fmt.Errorf("%w: unsupported encoding %s", ErrPlayback, clip.Encoding)
	}

	frames := make(chan AudioFrame, 16)
	s := &Stream{Frames: frames, Format: format}
	size := format.BytesPerDuration(int(FrameDuration / time.Millisecond))

	go func() {
		defer close(frames)
		var ts time.Duration
		for {
			if err := ctx.Err(); err != nil {
				s.setErr(err)
				return
			}
			buf := make([]byte, size)
			n, err := io.ReadFull(r, buf)
			if n > 0 {
				f := AudioFrame{Data: buf[:n], SampleRate: format.SampleRate, Channels: format.Channels, Timestamp: ts}
				select {
				case frames <- f:
				case <-ctx.Done():
					s.setErr(ctx.Err())
					return
				}
				ts += FrameDuration
			}
			switch {
			case err == nil:
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
				return
			default:
				s.setErr(fmt.Errorf("%w: decode: %w", ErrPlayback, err))
				return
			}
		}
	}()
	return s, nil
}

// Drain reads from ch until it is closed, discarding all values.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
