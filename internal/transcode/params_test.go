package transcode

import (
	"testing"
	"time"
)

func TestSnapFallsToHighestRungAtOrBelowRequest(t *testing.T) {
	ladder := []int{320000, 256000, 192000, 128000, 64000}
	p := OutputParameters{Format: FormatMP3, Bitrate: 200000}

	snapped := p.Snap(ladder)

	if snapped.Bitrate != 192000 {
		t.Fatalf("expected snap to 192000, got %d", snapped.Bitrate)
	}
}

func TestSnapFallsToLowestRungWhenBelowEverything(t *testing.T) {
	ladder := []int{320000, 256000, 192000, 128000, 64000}
	p := OutputParameters{Format: FormatMP3, Bitrate: 8000}

	snapped := p.Snap(ladder)

	if snapped.Bitrate != 64000 {
		t.Fatalf("expected snap to lowest rung 64000, got %d", snapped.Bitrate)
	}
}

func TestSnapIsIdempotent(t *testing.T) {
	ladder := []int{320000, 256000, 192000, 128000, 64000}
	p := OutputParameters{Format: FormatMP3, Bitrate: 200000}

	once := p.Snap(ladder)
	twice := once.Snap(ladder)

	if once.Bitrate != twice.Bitrate {
		t.Fatalf("snap not idempotent: %d != %d", once.Bitrate, twice.Bitrate)
	}
}

func TestSnapExactRungIsUnchanged(t *testing.T) {
	ladder := []int{320000, 256000, 192000, 128000, 64000}
	p := OutputParameters{Format: FormatMP3, Bitrate: 128000}

	snapped := p.Snap(ladder)

	if snapped.Bitrate != 128000 {
		t.Fatalf("expected exact rung 128000 preserved, got %d", snapped.Bitrate)
	}
}

func TestSnapPanicsOnEmptyLadder(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on empty ladder")
		}
	}()
	p := OutputParameters{Format: FormatMP3, Bitrate: 128000}
	p.Snap(nil)
}

func TestEstimatedTotalScalesWithRemainingDuration(t *testing.T) {
	total := EstimatedTotal(128000, 10*time.Second, 0)
	want := int64(128000) / 8 * 10
	if total != want {
		t.Fatalf("expected %d, got %d", want, total)
	}
}

func TestEstimatedTotalAccountsForOffset(t *testing.T) {
	full := EstimatedTotal(128000, 10*time.Second, 0)
	fromHalf := EstimatedTotal(128000, 10*time.Second, 5*time.Second)
	if fromHalf >= full {
		t.Fatalf("expected offset to reduce estimate: full=%d fromHalf=%d", full, fromHalf)
	}
}

func TestEstimatedTotalNeverNegativeWhenOffsetExceedsDuration(t *testing.T) {
	total := EstimatedTotal(128000, 5*time.Second, 10*time.Second)
	if total != 0 {
		t.Fatalf("expected 0 when offset exceeds duration, got %d", total)
	}
}
