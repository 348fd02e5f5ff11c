package captions

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// LoadFile reads a caption file and parses it based on its extension.
// Supported formats: SubRip (.srt) and WebVTT (.vtt).
func LoadFile(fs afero.Fs, path string) (List, error) {
	slog.Debug("loading caption file", "path", path)

	file, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open caption file: %w", err)
	}
	defer file.Close()

	var cues List
	switch strings.ToLower(filepath.Ext(path)) {
	case ".srt":
		cues, err = ParseSRT(file)
	case ".vtt":
		cues, err = ParseWebVTT(file)
	default:
		return nil, fmt.Errorf("unsupported caption format: %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	slog.Info("caption file loaded", "path", path, "cues", len(cues))
	return cues, nil
}

// ParseSRT parses SubRip captions: numbered blocks of a timing line
// followed by text lines, separated by blank lines.
func ParseSRT(r io.Reader) (List, error) {
	var cues []Cue

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		// Skip the optional block index line.
		if _, err := strconv.Atoi(line); err == nil {
			if !scanner.Scan() {
				break
			}
			line = strings.TrimSpace(scanner.Text())
		}

		start, end, err := parseTimingLine(line)
		if err != nil {
			return nil, err
		}

		text := collectCueText(scanner)
		cues = append(cues, Cue{Start: start, End: end, Text: text})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read captions: %w", err)
	}

	return NewList(cues), nil
}

// ParseWebVTT parses WebVTT captions. Cue settings after the timing
// line and NOTE/STYLE blocks are ignored.
func ParseWebVTT(r io.Reader) (List, error) {
	var cues []Cue

	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		return nil, fmt.Errorf("empty webvtt input")
	}
	header := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\uFEFF"))
	if !strings.HasPrefix(header, "WEBVTT") {
		return nil, fmt.Errorf("missing WEBVTT header")
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "NOTE") || strings.HasPrefix(line, "STYLE") || strings.HasPrefix(line, "REGION") {
			skipBlock(scanner)
			continue
		}

		// An optional cue identifier precedes the timing line.
		if !strings.Contains(line, "-->") {
			if !scanner.Scan() {
				break
			}
			line = strings.TrimSpace(scanner.Text())
		}

		start, end, err := parseTimingLine(line)
		if err != nil {
			return nil, err
		}

		text := collectCueText(scanner)
		cues = append(cues, Cue{Start: start, End: end, Text: text})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read captions: %w", err)
	}

	return NewList(cues), nil
}

// parseTimingLine extracts start and end from "HH:MM:SS,mmm --> HH:MM:SS,mmm"
// (SubRip) or "HH:MM:SS.mmm --> HH:MM:SS.mmm" (WebVTT, cue settings ignored).
func parseTimingLine(line string) (start, end time.Duration, err error) {
	parts := strings.SplitN(line, "-->", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid timing line: %q", line)
	}

	start, err = parseTimestamp(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}

	endField := strings.Fields(strings.TrimSpace(parts[1]))
	if len(endField) == 0 {
		return 0, 0, fmt.Errorf("invalid timing line: %q", line)
	}
	end, err = parseTimestamp(endField[0])
	if err != nil {
		return 0, 0, err
	}

	if end < start {
		return 0, 0, fmt.Errorf("cue ends before it starts: %q", line)
	}
	return start, end, nil
}

// parseTimestamp accepts HH:MM:SS.mmm, MM:SS.mmm, and the SubRip comma
// millisecond separator.
func parseTimestamp(ts string) (time.Duration, error) {
	ts = strings.ReplaceAll(ts, ",", ".")

	fields := strings.Split(ts, ":")
	if len(fields) < 2 || len(fields) > 3 {
		return 0, fmt.Errorf("invalid timestamp: %q", ts)
	}

	var hours int
	var err error
	if len(fields) == 3 {
		hours, err = strconv.Atoi(fields[0])
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp: %q", ts)
		}
		fields = fields[1:]
	}

	minutes, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp: %q", ts)
	}
	seconds, err := strconv.ParseFloat(fields[1], 64)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("invalid timestamp: %q", ts)
	}

	total := time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds*float64(time.Second))
	return total, nil
}

func collectCueText(scanner *bufio.Scanner) string {
	var lines []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			break
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func skipBlock(scanner *bufio.Scanner) {
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "" {
			return
		}
	}
}
