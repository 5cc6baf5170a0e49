package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"

	"github.com/fleveque/research-analyst/internal/model"
)

func TestRawInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chart.png")
	if err := os.WriteFile(path, []byte("png bytes"), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	opts := &analyzeOptions{file: path, symbol: "NVDA", period: "6mo", interval: "1d"}
	raw, err := opts.rawInput()
	if err != nil {
		t.Fatalf("rawInput failed: %v", err)
	}

	if string(raw.Data) != "png bytes" || raw.Filename != path || raw.Symbol != "NVDA" {
		t.Errorf("unexpected raw input %s", raw)
	}
	want := map[string]string{model.MetaPeriod: "6mo", model.MetaInterval: "1d"}
	if diff := cmp.Diff(want, raw.Metadata); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestRawInput_MissingFile(t *testing.T) {
	opts := &analyzeOptions{file: filepath.Join(t.TempDir(), "missing.mp3")}
	if _, err := opts.rawInput(); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestStatsCommand_EmptyLog(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ANALYST_STORAGE_DATABASE_PATH", filepath.Join(t.TempDir(), "db", "calls.db"))

	root := rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"stats"})

	if err := root.Execute(); err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if !strings.Contains(out.String(), "Calls: 0 (succeeded 0, failed 0)") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestAnalyzeCommand_RequiresTask(t *testing.T) {
	root := rootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"analyze"})

	if err := root.Execute(); err == nil {
		t.Error("expected an argument error")
	}
}

func TestPrintResult_ShowsRequestID(t *testing.T) {
	cmd := &cobra.Command{}
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)

	result := &model.DisplayResult{
		RequestID:    "7b0c8f9e-3f64-4a8e-9d5b-2b1c6e0f1a2b",
		RenderedText: "## Podcast Summary\n\nSummary...\n",
		UsageSummary: "Input Tokens: 1 | Output Tokens: 1 | Total Tokens: 2",
	}
	if err := printResult(cmd, &globalOptions{width: 80, style: "notty"}, result); err != nil {
		t.Fatalf("printResult failed: %v", err)
	}

	if strings.Contains(out.String(), result.RequestID) {
		t.Error("request ID should not be mixed into the result on stdout")
	}
	if !strings.Contains(errOut.String(), "analyst calls "+result.RequestID) {
		t.Errorf("expected the request ID on stderr, got %q", errOut.String())
	}
}
