package transcode

import (
	"net/http"
	"testing"
)

func TestParseRangeNoHeaderIsFullOK(t *testing.T) {
	status, next, end, ok := parseRange("", 1000)
	if !ok || status != http.StatusOK || next != 0 || end != 1000 {
		t.Fatalf("got status=%d next=%d end=%d ok=%v", status, next, end, ok)
	}
}

func TestParseRangeOpenEndedNeverFails(t *testing.T) {
	// "bytes=0-" against an unknown (unbounded) total must suspend rather
	// than be rejected outright.
	status, next, end, ok := parseRange("bytes=0-", -1)
	if !ok || status != http.StatusPartialContent || next != 0 || end != -1 {
		t.Fatalf("got status=%d next=%d end=%d ok=%v", status, next, end, ok)
	}
}

func TestParseRangeLastByteOfEstimateIsSatisfiable(t *testing.T) {
	const total = int64(1000)
	status, next, end, ok := parseRange("bytes=999-999", total)
	if !ok || status != http.StatusPartialContent {
		t.Fatalf("expected satisfiable 206, got status=%d ok=%v", status, ok)
	}
	if next != 999 || end != 1000 {
		t.Fatalf("expected next=999 end=1000, got next=%d end=%d", next, end)
	}
}

func TestParseRangeBeyondEstimateIsUnsatisfiable(t *testing.T) {
	const total = int64(1000)
	status, _, _, ok := parseRange("bytes=1000-2000", total)
	if ok || status != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("expected 416, got status=%d ok=%v", status, ok)
	}
}

func TestParseRangeClampsLastToEstimate(t *testing.T) {
	const total = int64(1000)
	status, next, end, ok := parseRange("bytes=500-5000", total)
	if !ok || status != http.StatusPartialContent {
		t.Fatalf("expected satisfiable 206, got status=%d ok=%v", status, ok)
	}
	if next != 500 || end != total {
		t.Fatalf("expected range clamped to total, got next=%d end=%d", next, end)
	}
}

func TestParseRangeMultipleRangesFallsBackToFullOK(t *testing.T) {
	status, next, end, ok := parseRange("bytes=0-10,20-30", 1000)
	if !ok || status != http.StatusOK || next != 0 || end != 1000 {
		t.Fatalf("got status=%d next=%d end=%d ok=%v", status, next, end, ok)
	}
}

func TestParseRangeMalformedHeaderIsUnsatisfiable(t *testing.T) {
	status, _, _, ok := parseRange("bytes=abc-def", 1000)
	if ok || status != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("expected 416 for malformed header, got status=%d ok=%v", status, ok)
	}
}

func TestParseRangeSuffixFormUnsupportedTreatedAsMalformed(t *testing.T) {
	status, _, _, ok := parseRange("bytes=-500", 1000)
	if ok || status != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("expected 416 for unsupported suffix range, got status=%d ok=%v", status, ok)
	}
}

func TestParseByteRangesSingle(t *testing.T) {
	ranges, multi, ok := parseByteRanges("bytes=0-99")
	if !ok || multi || len(ranges) != 1 {
		t.Fatalf("got ranges=%v multi=%v ok=%v", ranges, multi, ok)
	}
	if ranges[0].first != 0 || !ranges[0].hasLast || ranges[0].last != 99 {
		t.Fatalf("unexpected range: %+v", ranges[0])
	}
}

func TestParseByteRangesMulti(t *testing.T) {
	ranges, multi, ok := parseByteRanges("bytes=0-99, 200-299")
	if !ok || !multi || len(ranges) != 2 {
		t.Fatalf("got ranges=%v multi=%v ok=%v", ranges, multi, ok)
	}
}

func TestParseStaticRangeUnsatisfiableWhenBeyondSize(t *testing.T) {
	_, _, _, ok := parseStaticRange("bytes=500-600", 100)
	if ok {
		t.Fatal("expected range beyond known file size to be unsatisfiable")
	}
}

func TestParseStaticRangeClampsToFileSize(t *testing.T) {
	start, end, status, ok := parseStaticRange("bytes=50-1000", 100)
	if !ok || status != http.StatusPartialContent || start != 50 || end != 100 {
		t.Fatalf("got start=%d end=%d status=%d ok=%v", start, end, status, ok)
	}
}
