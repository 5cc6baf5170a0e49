package prompt

import (
	"strings"
	"testing"

	"github.com/fleveque/research-analyst/internal/model"
)

func TestDefaultsCoverEveryTaskAndMode(t *testing.T) {
	s, err := NewSet(nil)
	if err != nil {
		t.Fatalf("NewSet failed: %v", err)
	}
	for _, task := range model.AllTaskTypes {
		for _, mode := range []model.Mode{model.ModeSummary, model.ModeCompanies} {
			if s.Instruction(task, mode) == "" {
				t.Errorf("no instruction for %s/%s", task, mode)
			}
		}
	}
}

func TestOverrides(t *testing.T) {
	s, err := NewSet(map[string]string{"podcast.summary": "  Just list the tickers.  "})
	if err != nil {
		t.Fatalf("NewSet failed: %v", err)
	}
	if got := s.Instruction(model.TaskPodcast, model.ModeSummary); got != "Just list the tickers." {
		t.Errorf("override not applied, got %q", got)
	}
	if !strings.Contains(s.Instruction(model.TaskVideo, model.ModeSummary), "video") {
		t.Error("other instructions should keep their defaults")
	}

	// Overrides must not leak into other sets.
	fresh, _ := NewSet(nil)
	if fresh.Instruction(model.TaskPodcast, model.ModeSummary) == "Just list the tickers." {
		t.Error("override modified the shared defaults")
	}
}

func TestOverrides_Invalid(t *testing.T) {
	for _, key := range []string{"podcast", "poem.summary", "podcast.haiku", "podcast."} {
		if _, err := NewSet(map[string]string{key: "x"}); err == nil {
			t.Errorf("expected error for key %q", key)
		}
	}
	if _, err := NewSet(map[string]string{"video.summary": "  "}); err == nil {
		t.Error("expected error for empty override")
	}
}
