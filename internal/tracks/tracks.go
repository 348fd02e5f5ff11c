package tracks

// Type identifies the kind of stream a track carries.
type Type int

const (
	TypeVideo Type = iota
	TypeAudio
	TypeSubtitle
)

// String returns a human-readable label for the track type.
func (t Type) String() string {
	switch t {
	case TypeVideo:
		return "video"
	case TypeAudio:
		return "audio"
	case TypeSubtitle:
		return "subtitle"
	default:
		return "unknown"
	}
}

// Descriptor describes one selectable stream within an engine session.
// IDs are stable for the lifetime of a session and unique per Type.
type Descriptor struct {
	ID           int
	Type         Type
	DisplayName  string
	Selected     bool
	Width        int
	Height       int
	Role         string
	Language     string
	Label        string
	ChannelCount int
	Bitrate      int64
}

// Source carries the raw per-stream metadata the resolver names from.
// Zero values mean "unknown" and are skipped during naming.
type Source struct {
	ID           int
	Width        int
	Height       int
	Bitrate      int64
	Language     string
	Label        string
	Role         string
	ChannelCount int
}
