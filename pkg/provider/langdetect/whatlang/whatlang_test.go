package whatlang

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/voicerelay/pkg/provider/langdetect"
)

func TestDetector_Detect(t *testing.T) {
	t.Parallel()

	d := New(WithWhitelist("swe", "eng"))
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "swedish",
			text: "Jag tycker att vi borde spela en omgång till innan vi går och lägger oss ikväll.",
			want: "sv",
		},
		{
			name: "english",
			text: "I think we should play one more round before we all go to bed tonight.",
			want: "en",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := d.Detect(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("Detect: %v", err)
			}
			if got != tt.want {
				t.Errorf("Detect = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetector_UndeterminedBelowConfidence(t *testing.T) {
	t.Parallel()

	d := New(WithMinConfidence(1))
	got, err := d.Detect(context.Background(), "12345 67890 !!!")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if got != langdetect.Undetermined {
		t.Errorf("Detect = %q, want %q", got, langdetect.Undetermined)
	}
}

func TestDetector_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Detect(ctx, "some text that is long enough")
	if !errors.Is(err, langdetect.ErrDetection) {
		t.Errorf("err = %v, want ErrDetection", err)
	}
}
