package transcode

import (
	"testing"
	"time"
)

func sampleParams() (InputParameters, OutputParameters) {
	return InputParameters{TrackPath: "testdata/track.flac", Duration: 200 * time.Second},
		OutputParameters{Format: FormatMP3, Bitrate: 128000}
}

func TestComputeIsDeterministic(t *testing.T) {
	in, out := sampleParams()
	a := Compute(in, out)
	b := Compute(in, out)
	if a != b {
		t.Fatalf("expected equal fingerprints, got %v != %v", a, b)
	}
}

func TestComputeDiffersOnBitrate(t *testing.T) {
	in, out := sampleParams()
	a := Compute(in, out)
	out.Bitrate = 64000
	b := Compute(in, out)
	if a == b {
		t.Fatal("expected different fingerprints for different bitrates")
	}
}

func TestComputeDiffersOnOffset(t *testing.T) {
	in, out := sampleParams()
	a := Compute(in, out)
	in.Offset = 5 * time.Second
	b := Compute(in, out)
	if a == b {
		t.Fatal("expected different fingerprints for different offsets")
	}
}

func TestComputeDiffersOnStream(t *testing.T) {
	in, out := sampleParams()
	a := Compute(in, out)
	idx := 1
	out.Stream = &idx
	b := Compute(in, out)
	if a == b {
		t.Fatal("expected different fingerprints when stream index is set")
	}
}

func TestHexIsSixteenUppercaseDigits(t *testing.T) {
	in, out := sampleParams()
	fp := Compute(in, out)
	hex := fp.Hex()
	if len(hex) != 16 {
		t.Fatalf("expected 16 hex digits, got %d (%q)", len(hex), hex)
	}
	for _, r := range hex {
		if !(r >= '0' && r <= '9') && !(r >= 'A' && r <= 'F') {
			t.Fatalf("expected uppercase hex digit, got %q in %q", r, hex)
		}
	}
}

func TestCachePathShardsByFirstHexDigit(t *testing.T) {
	in, out := sampleParams()
	fp := Compute(in, out)
	path := fp.CachePath("/cache")
	hex := fp.Hex()
	want := "/cache/" + hex[:1] + "/" + hex
	if path != want {
		t.Fatalf("expected %q, got %q", want, path)
	}
}
