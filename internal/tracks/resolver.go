package tracks

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/lo"
)

// DefaultSeparator joins name fields for audio and subtitle tracks.
const DefaultSeparator = " · "

// unknownLabel is the fallback when no metadata field yields a name.
const unknownLabel = "Unknown"

// videoTiers maps bitrate ceilings (bits per second) to resolution-style
// display names. Checked in ascending order; the first ceiling at or
// above the bitrate wins.
var videoTiers = []struct {
	ceiling int64
	label   string
}{
	{300_000, "160p"},
	{400_000, "240p"},
	{530_000, "360p"},
	{700_000, "480p"},
	{1_600_000, "720p"},
	{2_800_000, "1080p"},
}

// Resolve turns raw stream metadata into a display-ready Descriptor.
// The result depends only on the arguments, never on other tracks.
func Resolve(kind Type, src Source, selected bool, separator string) Descriptor {
	if separator == "" {
		separator = DefaultSeparator
	}

	var name string
	switch kind {
	case TypeVideo:
		name = VideoDisplayName(src)
	default:
		name = labeledDisplayName(src, separator)
	}

	slog.Debug("resolved track descriptor",
		"track_id", src.ID,
		"track_type", kind.String(),
		"display_name", name,
		"selected", selected)

	return Descriptor{
		ID:           src.ID,
		Type:         kind,
		DisplayName:  name,
		Selected:     selected,
		Width:        src.Width,
		Height:       src.Height,
		Role:         src.Role,
		Language:     src.Language,
		Label:        src.Label,
		ChannelCount: src.ChannelCount,
		Bitrate:      src.Bitrate,
	}
}

// VideoDisplayName buckets the bitrate into a named tier, falling back
// to "{width}×{height}" with a formatted Mbps suffix when the bitrate
// clears every tier or is unknown.
func VideoDisplayName(src Source) string {
	if src.Bitrate > 0 {
		for _, tier := range videoTiers {
			if src.Bitrate <= tier.ceiling {
				return tier.label
			}
		}
	}

	if src.Width <= 0 || src.Height <= 0 {
		return unknownLabel
	}

	name := fmt.Sprintf("%d×%d", src.Width, src.Height)
	if src.Bitrate > 0 {
		name += " " + formatMbps(src.Bitrate)
	}
	return name
}

// labeledDisplayName names audio and subtitle tracks by joining, in
// order, the language (or label fallback), the channel layout, and the
// formatted average bitrate, skipping empty fields.
func labeledDisplayName(src Source, separator string) string {
	language := src.Language
	if language == "" {
		language = src.Label
	}

	fields := []string{
		language,
		ChannelLayoutName(src.ChannelCount),
	}
	if src.Bitrate > 0 {
		fields = append(fields, formatMbps(src.Bitrate))
	}

	fields = lo.Filter(fields, func(field string, _ int) bool {
		return strings.TrimSpace(field) != ""
	})
	if len(fields) == 0 {
		return unknownLabel
	}
	return strings.Join(fields, separator)
}

// ChannelLayoutName maps a channel count to its conventional layout
// name. Zero or negative counts mean unknown and yield an empty string.
func ChannelLayoutName(channels int) string {
	switch {
	case channels <= 0:
		return ""
	case channels == 1:
		return "mono"
	case channels == 2:
		return "stereo"
	default:
		return "surround"
	}
}

func formatMbps(bitrate int64) string {
	return fmt.Sprintf("%.1fMbps", float64(bitrate)/1_000_000)
}
