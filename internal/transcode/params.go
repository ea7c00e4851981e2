package transcode

import "time"

// Format is one of the output containers the encoder driver can produce.
type Format int

const (
	FormatMP3 Format = iota
	FormatOGGOpus
	FormatMatroskaOpus
	FormatOGGVorbis
	FormatWebMVorbis
)

// String returns a short identifier for the format, used in logs and as the
// basis for the MIME type table.
func (f Format) String() string {
	switch f {
	case FormatMP3:
		return "mp3"
	case FormatOGGOpus:
		return "ogg_opus"
	case FormatMatroskaOpus:
		return "matroska_opus"
	case FormatOGGVorbis:
		return "ogg_vorbis"
	case FormatWebMVorbis:
		return "webm_vorbis"
	default:
		return "unknown"
	}
}

// MimeType returns the canonical MIME type advertised on the response for
// this format (spec.md §6.1).
func (f Format) MimeType() string {
	switch f {
	case FormatMP3:
		return "audio/mpeg"
	case FormatOGGOpus, FormatOGGVorbis:
		return "audio/ogg"
	case FormatMatroskaOpus:
		return "audio/x-matroska"
	case FormatWebMVorbis:
		return "audio/webm"
	default:
		return "application/octet-stream"
	}
}

// Valid reports whether f is one of the known formats.
func (f Format) Valid() bool {
	return f >= FormatMP3 && f <= FormatWebMVorbis
}

// AllowedBitrates is the default snapping ladder, descending (spec.md §3).
// Overridable via the "allowed-bitrates" config key.
var AllowedBitrates = []int{320000, 256000, 192000, 160000, 128000, 96000, 64000, 32000}

// InputParameters describes the source audio to be transcoded.
type InputParameters struct {
	// TrackPath is the canonical absolute path to the source file.
	TrackPath string
	// Duration is the full duration of the source track.
	Duration time.Duration
	// Offset is the start offset within the source track.
	Offset time.Duration
}

// OutputParameters describes the desired transcoded output. Bitrate should
// be snapped via Snap before use in a Fingerprint.
type OutputParameters struct {
	Format        Format
	Bitrate       int
	Stream        *int // stream index to map, nil = auto-detect
	StripMetadata bool
}

// Snap returns a copy of p with Bitrate snapped onto the allowed-bitrate
// ladder: the highest rung less than or equal to the requested bitrate, or
// the lowest rung if the request falls below it. Snap is idempotent
// (spec.md P7).
//
// Panics if ladder is empty or p.Format is not one of the known formats —
// both are programmer errors per spec.md §4.1.
func (p OutputParameters) Snap(ladder []int) OutputParameters {
	if len(ladder) == 0 {
		panic("transcode: empty bitrate ladder")
	}
	if !p.Format.Valid() {
		panic("transcode: unknown output format")
	}
	if p.Bitrate <= 0 {
		panic("transcode: non-positive bitrate")
	}

	snapped := p
	lowest := ladder[0]
	for _, rate := range ladder {
		if rate < lowest {
			lowest = rate
		}
	}

	// Pick the highest rung <= requested bitrate; fall back to the lowest
	// rung if the request undershoots every rung.
	best := 0
	for _, rate := range ladder {
		if rate <= p.Bitrate && rate > best {
			best = rate
		}
	}
	if best == 0 {
		best = lowest
	}
	snapped.Bitrate = best
	return snapped
}

// EstimatedTotal returns the constant-bitrate projected byte length for the
// given snapped output bitrate and remaining duration (spec.md §4.2).
func EstimatedTotal(bitrateBps int, duration, offset time.Duration) int64 {
	remaining := duration - offset
	if remaining < 0 {
		remaining = 0
	}
	return int64(bitrateBps) / 8 * int64(remaining/time.Millisecond) / 1000
}
