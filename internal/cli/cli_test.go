package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// withQuietLogger restores the global logger after a test; Run installs
// its own handler.
func withQuietLogger(t *testing.T) {
	t.Helper()
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	withQuietLogger(t)

	cli := NewCLI()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	exitCode := cli.Run(append([]string{"playsync"}, args...), strings.NewReader(""), stdout, stderr)
	return exitCode, stdout.String(), stderr.String()
}

func TestNewCLI(t *testing.T) {
	cli := NewCLI()
	if cli == nil {
		t.Fatal("NewCLI returned nil")
	}
	if cli.rootCmd == nil {
		t.Fatal("CLI.rootCmd is nil")
	}
	if cli.rootCmd.Use != "playsync" {
		t.Errorf("rootCmd.Use = %q, want playsync", cli.rootCmd.Use)
	}
}

func TestVersionFlag(t *testing.T) {
	exitCode, stdout, _ := runCLI(t, "--version")
	if exitCode != 0 {
		t.Fatalf("exit code = %d, want 0", exitCode)
	}
	if !strings.Contains(stdout, Version) {
		t.Errorf("version output %q missing %q", stdout, Version)
	}
}

func TestPlaySimClipToCompletion(t *testing.T) {
	exitCode, stdout, stderr := runCLI(t, "play", "sim://clip?duration=200ms&width=640&height=360")
	if exitCode != 0 {
		t.Fatalf("exit code = %d, stderr: %s", exitCode, stderr)
	}
	if !strings.Contains(stdout, "completed") {
		t.Errorf("output missing completion: %s", stdout)
	}
	if !strings.Contains(stdout, "640x360") {
		t.Errorf("output missing frame size: %s", stdout)
	}
}

func TestPlayOpenFailureExitsNonZero(t *testing.T) {
	exitCode, _, _ := runCLI(t, "play", "sim://clip?failopen=1")
	if exitCode == 0 {
		t.Fatal("exit code = 0 for failed open")
	}
}

func TestPlayRejectsInvalidVolume(t *testing.T) {
	exitCode, _, stderr := runCLI(t, "play", "--volume", "2.5", "sim://clip?duration=100ms")
	if exitCode == 0 {
		t.Fatal("exit code = 0 for invalid volume")
	}
	if !strings.Contains(stderr, "volume") {
		t.Errorf("stderr missing volume complaint: %s", stderr)
	}
}

func TestProbeJSON(t *testing.T) {
	exitCode, stdout, stderr := runCLI(t, "probe", "--json", "sim://clip?duration=8s&width=1920&height=1080&rotation=90")
	if exitCode != 0 {
		t.Fatalf("exit code = %d, stderr: %s", exitCode, stderr)
	}

	var result probeResult
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		t.Fatalf("probe output is not JSON: %v\n%s", err, stdout)
	}
	if result.Duration != "8s" {
		t.Errorf("duration = %q, want 8s", result.Duration)
	}
	// Rotation 90 swaps the reported frame geometry.
	if result.Width != 1080 || result.Height != 1920 {
		t.Errorf("frame = %dx%d, want 1080x1920", result.Width, result.Height)
	}
	if len(result.Tracks) == 0 {
		t.Error("no tracks reported")
	}
}

func TestAnalyzeSummaryEmptyDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	exitCode, stdout, stderr := runCLI(t, "analyze", "summary", "--db", dbPath)
	if exitCode != 0 {
		t.Fatalf("exit code = %d, stderr: %s", exitCode, stderr)
	}
	if !strings.Contains(stdout, "sessions:") {
		t.Errorf("summary output missing sessions line: %s", stdout)
	}
}

func TestPlayWithTrackingThenAnalyze(t *testing.T) {
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "history.db")
	configPath := filepath.Join(tmp, "config.json")

	configJSON := fmt.Sprintf(`{"tracking": {"enabled": true, "database_path": %q}}`, dbPath)
	if err := os.WriteFile(configPath, []byte(configJSON), 0644); err != nil {
		t.Fatalf("write config failed: %v", err)
	}

	exitCode, _, stderr := runCLI(t, "play", "--config", configPath, "sim://clip?duration=200ms")
	if exitCode != 0 {
		t.Fatalf("play exit code = %d, stderr: %s", exitCode, stderr)
	}

	exitCode, stdout, stderr := runCLI(t, "analyze", "summary", "--db", dbPath, "--json")
	if exitCode != 0 {
		t.Fatalf("analyze exit code = %d, stderr: %s", exitCode, stderr)
	}

	var summary struct {
		Sessions int `json:"sessions"`
		Plays    int `json:"plays"`
	}
	if err := json.Unmarshal([]byte(stdout), &summary); err != nil {
		t.Fatalf("analyze output is not JSON: %v\n%s", err, stdout)
	}
	if summary.Sessions != 1 {
		t.Errorf("recorded sessions = %d, want 1", summary.Sessions)
	}
	if summary.Plays < 1 {
		t.Errorf("recorded plays = %d, want at least 1", summary.Plays)
	}
}

func TestProbeOpenFailure(t *testing.T) {
	exitCode, _, _ := runCLI(t, "probe", "sim://clip?failprepare=1")
	if exitCode == 0 {
		t.Fatal("exit code = 0 for failed probe")
	}
}

func TestUnknownCommand(t *testing.T) {
	exitCode, _, _ := runCLI(t, "frobnicate")
	if exitCode == 0 {
		t.Fatal("exit code = 0 for unknown command")
	}
}
