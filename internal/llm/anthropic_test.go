package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fleveque/research-analyst/internal/analysis"
)

func TestAnthropicGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-sonnet-4-5",
			"content": [{"type": "text", "text": "{\"companies\": [{\"name\": \"Tesla\", \"symbol\": \"TSLA\", \"public\": true, \"sentiment\": -1, \"note\": \"recall\"}]}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 200, "output_tokens": 40}
		}`)
	}))
	defer srv.Close()

	client := NewAnthropicClient("sk-ant-test", "claude-sonnet-4-5", srv.URL)
	res, err := client.Generate(context.Background(), GenerateRequest{Parts: []Part{TextPart("transcript")}, Companies: true})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if res.Usage.Input != 200 || res.Usage.Output != 40 || res.Usage.Total != 240 {
		t.Errorf("expected 200 + 40 = 240 tokens, got %+v", res.Usage)
	}
	if len(res.Companies) != 1 || res.Companies[0].Symbol != "TSLA" || res.Companies[0].Sentiment != -1 {
		t.Errorf("unexpected companies %+v", res.Companies)
	}
}

func TestAnthropicGenerate_RejectsVideo(t *testing.T) {
	client := NewAnthropicClient("sk-ant-test", "claude-sonnet-4-5", "http://127.0.0.1:0")

	_, err := client.Generate(context.Background(), GenerateRequest{
		Parts: []Part{{FileURI: "https://www.youtube.com/watch?v=x"}},
	})

	var invalid *analysis.InvalidInputError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidInputError, got %v", err)
	}
}
