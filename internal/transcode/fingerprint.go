package transcode

import (
	"fmt"
	"hash/fnv"
	"path/filepath"
)

// Fingerprint is a stable 64-bit digest of an (input, snapped-output)
// combination. Equal fingerprints imply byte-identical output (spec.md §3).
type Fingerprint uint64

// Compute derives the fingerprint from canonicalized input parameters and
// already-snapped output parameters. Callers MUST snap output parameters
// before computing a fingerprint (spec.md: "Snapping is performed before
// fingerprinting").
func Compute(input InputParameters, output OutputParameters) Fingerprint {
	h := fnv.New64a()

	abs, err := filepath.Abs(input.TrackPath)
	if err != nil {
		abs = input.TrackPath
	}

	fmt.Fprintf(h, "path=%s\x00dur=%d\x00off=%d\x00fmt=%d\x00br=%d\x00strip=%t\x00stream=",
		abs, int64(input.Duration), int64(input.Offset), output.Format, output.Bitrate, output.StripMetadata)
	if output.Stream != nil {
		fmt.Fprintf(h, "%d", *output.Stream)
	} else {
		fmt.Fprint(h, "auto")
	}

	return Fingerprint(h.Sum64())
}

// Hex returns the uppercase 16-hex-digit representation used as the cache
// file's base name (spec.md §6.3).
func (f Fingerprint) Hex() string {
	return fmt.Sprintf("%016X", uint64(f))
}

// CachePath returns "<cacheRoot>/<h0>/<H>" where H is the fingerprint's hex
// representation and h0 is its first character (spec.md §6.3).
func (f Fingerprint) CachePath(cacheRoot string) string {
	hex := f.Hex()
	return filepath.Join(cacheRoot, hex[:1], hex)
}
