package captions

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func testCues() List {
	return NewList([]Cue{
		{Start: 1 * time.Second, End: 3 * time.Second, Text: "A"},
		{Start: 5 * time.Second, End: 7 * time.Second, Text: "B"},
	})
}

func TestCaptionLookup(t *testing.T) {
	cues := testCues()

	tests := []struct {
		name     string
		position time.Duration
		offset   time.Duration
		expected string
	}{
		{"inside first cue", 2 * time.Second, 0, "A"},
		{"in gap between cues", 4 * time.Second, 0, ""},
		{"offset shifts lookup into cue", 4 * time.Second, -2 * time.Second, "A"},
		{"positive offset reaches later cue", 4 * time.Second, time.Second, "B"},
		{"before first cue", 0, 0, ""},
		{"exact cue start", 5 * time.Second, 0, "B"},
		{"cue end is exclusive", 3 * time.Second, 0, ""},
		{"after everything", time.Minute, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cues.At(tt.position + tt.offset)
			if got != tt.expected {
				t.Errorf("At(%v + %v) = %q, want %q", tt.position, tt.offset, got, tt.expected)
			}
		})
	}
}

func TestDelayedLookupUsesPositionPlusOffset(t *testing.T) {
	// Captions delayed by one second: a +1s offset at position 4s lands
	// inside the first cue again.
	cues := NewList([]Cue{
		{Start: 4 * time.Second, End: 6 * time.Second, Text: "A"},
	})

	if got := cues.At(4*time.Second + time.Second); got != "A" {
		t.Errorf("expected delayed lookup to resolve A, got %q", got)
	}
}

func TestNewListSorts(t *testing.T) {
	cues := NewList([]Cue{
		{Start: 10 * time.Second, End: 12 * time.Second, Text: "later"},
		{Start: 1 * time.Second, End: 2 * time.Second, Text: "earlier"},
	})

	if cues[0].Text != "earlier" {
		t.Errorf("cues not sorted by start: first is %q", cues[0].Text)
	}
	if got := cues.At(11 * time.Second); got != "later" {
		t.Errorf("lookup after sort failed: got %q", got)
	}
}

func TestEmptyListLookup(t *testing.T) {
	var cues List
	if got := cues.At(5 * time.Second); got != "" {
		t.Errorf("empty list must resolve no caption, got %q", got)
	}
}

const sampleSRT = `1
00:00:01,000 --> 00:00:03,000
A

2
00:00:05,000 --> 00:00:07,000
B
line two
`

func TestParseSRT(t *testing.T) {
	cues, err := ParseSRT(strings.NewReader(sampleSRT))
	if err != nil {
		t.Fatalf("ParseSRT failed: %v", err)
	}

	if len(cues) != 2 {
		t.Fatalf("expected 2 cues, got %d", len(cues))
	}
	if cues[0].Start != time.Second || cues[0].End != 3*time.Second || cues[0].Text != "A" {
		t.Errorf("unexpected first cue: %+v", cues[0])
	}
	if cues[1].Text != "B\nline two" {
		t.Errorf("multi-line cue text mangled: %q", cues[1].Text)
	}
}

const sampleVTT = `WEBVTT

NOTE this block is ignored

intro
00:01.000 --> 00:03.000 align:start
A

00:00:05.500 --> 00:00:07.000
B
`

func TestParseWebVTT(t *testing.T) {
	cues, err := ParseWebVTT(strings.NewReader(sampleVTT))
	if err != nil {
		t.Fatalf("ParseWebVTT failed: %v", err)
	}

	if len(cues) != 2 {
		t.Fatalf("expected 2 cues, got %d", len(cues))
	}
	if cues[0].Start != time.Second || cues[0].Text != "A" {
		t.Errorf("unexpected first cue: %+v", cues[0])
	}
	if cues[1].Start != 5*time.Second+500*time.Millisecond {
		t.Errorf("fractional timestamp mis-parsed: %v", cues[1].Start)
	}
}

func TestParseWebVTTRejectsMissingHeader(t *testing.T) {
	_, err := ParseWebVTT(strings.NewReader("not a vtt file"))
	if err == nil {
		t.Error("expected error for missing WEBVTT header")
	}
}

func TestParseTimingLineRejectsGarbage(t *testing.T) {
	invalid := []string{
		"no arrow here",
		"abc --> def",
		"00:00:05,000 --> 00:00:01,000", // ends before it starts
	}
	for _, line := range invalid {
		if _, _, err := parseTimingLine(line); err == nil {
			t.Errorf("expected error for %q", line)
		}
	}
}

func TestLoadFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/subs/movie.srt", []byte(sampleSRT), 0644); err != nil {
		t.Fatal(err)
	}

	cues, err := LoadFile(fs, "/subs/movie.srt")
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if len(cues) != 2 {
		t.Errorf("expected 2 cues, got %d", len(cues))
	}
}

func TestLoadFileUnsupportedExtension(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/subs/movie.ass", []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFile(fs, "/subs/movie.ass"); err == nil {
		t.Error("expected error for unsupported caption format")
	}
}

func TestLoadFileMissing(t *testing.T) {
	fs := afero.NewMemMapFs()
	if _, err := LoadFile(fs, "/nope.srt"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseWebVTTStripsByteOrderMark(t *testing.T) {
	cues, err := ParseWebVTT(strings.NewReader("\uFEFF" + sampleVTT))
	if err != nil {
		t.Fatalf("ParseWebVTT failed on BOM-prefixed input: %v", err)
	}
	if len(cues) != 2 {
		t.Fatalf("expected 2 cues, got %d", len(cues))
	}
}
