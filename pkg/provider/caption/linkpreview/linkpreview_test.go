package linkpreview

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/voicerelay/pkg/provider/caption"
)

func serve(t *testing.T, contentType, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != userAgent {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "opengraph",
			html: `<html><head>
				<meta property="og:title" content="Go 1.26 släppt">
				<meta property="og:description" content="Nyheter i   den senaste versionen.">
				<title>ignored</title></head></html>`,
			want: "Go 1.26 släppt. Nyheter i den senaste versionen.",
		},
		{
			name: "title and meta description",
			html: `<html><head><title>
				Example Domain
			</title><meta name="description" content="For use in examples."></head></html>`,
			want: "Example Domain. For use in examples.",
		},
		{
			name: "title only",
			html: `<html><head><title>Just a title!</title></head><body>text</body></html>`,
			want: "Just a title!",
		},
		{
			name: "duplicate description collapses",
			html: `<html><head><title>Same</title><meta name="description" content="same"></head></html>`,
			want: "Same",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			u := serve(t, "text/html; charset=utf-8", tt.html)
			got, err := New().Summarize(context.Background(), u+"/page")
			if err != nil {
				t.Fatalf("Summarize: %v", err)
			}
			if got != tt.want {
				t.Errorf("summary = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSummarize_Truncates(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("ord ", 100)
	u := serve(t, "text/html", `<title>`+long+`</title>`)
	got, err := New(WithMaxRunes(20)).Summarize(context.Background(), u)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "ord ord ord ord ord…" {
		t.Errorf("summary = %q", got)
	}
}

func TestSummarize_Errors(t *testing.T) {
	t.Parallel()

	html := serve(t, "text/html", `<html><body>no metadata</body></html>`)
	img := serve(t, "image/png", "\x89PNG")

	tests := []struct {
		name string
		url  string
	}{
		{"invalid scheme", "ftp://example.com/file"},
		{"not a url", "::"},
		{"not found", html + "/missing"},
		{"not html", img},
		{"no metadata", html},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New().Summarize(context.Background(), tt.url)
			if !errors.Is(err, caption.ErrCaption) {
				t.Errorf("err = %v, want ErrCaption", err)
			}
		})
	}
}
