package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/voicerelay/pkg/provider/caption"
)

func newServer(t *testing.T, status int, body string, gotBody *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if gotBody != nil {
			b, _ := io.ReadAll(r.Body)
			*gotBody = string(b)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

const completion = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o-mini",
  "choices": [{
    "index": 0,
    "finish_reason": "stop",
    "message": {"role": "assistant", "content": "  En katt som sover i en soffa. "}
  }]
}`

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestCaption(t *testing.T) {
	t.Parallel()

	var body string
	srv := newServer(t, http.StatusOK, completion, &body)
	c, err := New("sk-test", WithBaseURL(srv.URL+"/v1/"), WithModel("vision-model"), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := c.Caption(context.Background(), caption.Image{
		URL:          "https://cdn.example.com/cat.png",
		LanguageCode: "sv-SE",
	})
	if err != nil {
		t.Fatalf("Caption: %v", err)
	}
	if got != "En katt som sover i en soffa." {
		t.Errorf("caption = %q", got)
	}

	var req struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content []struct {
				Type     string `json:"type"`
				Text     string `json:"text"`
				ImageURL struct {
					URL string `json:"url"`
				} `json:"image_url"`
			} `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("decode request: %v (%s)", err, body)
	}
	if req.Model != "vision-model" {
		t.Errorf("model = %q", req.Model)
	}
	if len(req.Messages) != 1 || len(req.Messages[0].Content) != 2 {
		t.Fatalf("unexpected message shape: %s", body)
	}
	parts := req.Messages[0].Content
	if !strings.Contains(parts[0].Text, "Swedish") {
		t.Errorf("prompt = %q, want Swedish", parts[0].Text)
	}
	if parts[1].Type != "image_url" || parts[1].ImageURL.URL != "https://cdn.example.com/cat.png" {
		t.Errorf("image part = %+v", parts[1])
	}
}

func TestCaption_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		url    string
	}{
		{"empty url", http.StatusOK, completion, ""},
		{"server error", http.StatusBadRequest, `{"error":{"message":"bad image","type":"invalid_request_error"}}`, "https://x/img.png"},
		{"no choices", http.StatusOK, `{"id":"x","object":"chat.completion","created":0,"model":"m","choices":[]}`, "https://x/img.png"},
		{"blank caption", http.StatusOK, `{"id":"x","object":"chat.completion","created":0,"model":"m","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  "}}]}`, "https://x/img.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := newServer(t, tt.status, tt.body, nil)
			c, err := New("sk-test", WithBaseURL(srv.URL+"/v1/"), WithMaxRetries(0))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			_, err = c.Caption(context.Background(), caption.Image{URL: tt.url})
			if !errors.Is(err, caption.ErrCaption) {
				t.Errorf("err = %v, want ErrCaption", err)
			}
		})
	}
}

func TestPrompt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code string
		want string
	}{
		{"sv-SE", "Swedish"},
		{"en-US", "English"},
		{"de-DE", "de-DE"},
		{"", "same language"},
	}
	for _, tt := range tests {
		if got := prompt(tt.code); !strings.Contains(got, tt.want) {
			t.Errorf("prompt(%q) = %q, want it to mention %q", tt.code, got, tt.want)
		}
	}
}
