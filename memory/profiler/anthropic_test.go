package profiler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m-mizutani/gt"

	"github.com/MichaelIeong/SAGE/memory/profiler"
)

func newServer(t *testing.T, status int, body string, seen *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.Equal(t, r.URL.Path, "/v1/messages")
		var req struct {
			Messages []struct {
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && seen != nil &&
			len(req.Messages) > 0 && len(req.Messages[0].Content) > 0 {
			*seen = req.Messages[0].Content[0].Text
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnthropic_Profile(t *testing.T) {
	var prompt string
	srv := newServer(t, http.StatusOK, `{
		"id": "msg_1", "type": "message", "role": "assistant", "model": "claude",
		"content": [{"type": "text", "text": " Alice watches TV in the evening. "}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 10, "output_tokens": 8}
	}`, &prompt)

	p := profiler.New([]option.RequestOption{
		option.WithAPIKey("test"),
		option.WithBaseURL(srv.URL),
		option.WithMaxRetries(0),
	})

	got, err := p.Profile(context.Background(), "alice", map[string][]string{
		"2024-01-02": {"dim the lights"},
		"2024-01-01": {"turn on tv"},
	})
	gt.NoError(t, err)
	gt.Equal(t, got, "Alice watches TV in the evening.")
	gt.Equal(t, prompt, "Resident: alice\n\n2024-01-01:\n- turn on tv\n\n2024-01-02:\n- dim the lights\n")
}

func TestAnthropic_ProfileError(t *testing.T) {
	srv := newServer(t, http.StatusInternalServerError,
		`{"type": "error", "error": {"type": "api_error", "message": "boom"}}`, nil)

	p := profiler.New([]option.RequestOption{
		option.WithAPIKey("test"),
		option.WithBaseURL(srv.URL),
		option.WithMaxRetries(0),
	})
	_, err := p.Profile(context.Background(), "alice", map[string][]string{"2024-01-01": {"turn on tv"}})
	gt.Error(t, err)
}

func TestAnthropic_EmptyProfile(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{
		"id": "msg_1", "type": "message", "role": "assistant", "model": "claude",
		"content": [], "stop_reason": "end_turn",
		"usage": {"input_tokens": 1, "output_tokens": 0}
	}`, nil)

	p := profiler.New([]option.RequestOption{
		option.WithAPIKey("test"),
		option.WithBaseURL(srv.URL),
		option.WithMaxRetries(0),
	})
	_, err := p.Profile(context.Background(), "alice", nil)
	gt.Error(t, err)
}
