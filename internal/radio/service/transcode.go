package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/arung-agamani/denpa-radio/internal/playlist"
	"github.com/arung-agamani/denpa-radio/internal/transcode"
)

// ErrTrackNotFound is returned when a requested track ID has no library entry.
var ErrTrackNotFound = errors.New("track not found")

// TrackLookup is the minimal interface TranscodeService needs to resolve a
// track ID to its source file and duration. Using an interface here keeps
// this package free of a direct dependency on *playlist.MasterPlaylist's
// concrete internals.
type TrackLookup interface {
	GetByID(id int64) *playlist.Track
}

// TranscodeService wraps a transcode.Dispatcher with library lookups and
// the admin-facing janitor/status operations.
type TranscodeService struct {
	dispatcher *transcode.Dispatcher
	janitor    *transcode.Janitor
	library    TrackLookup
}

func NewTranscodeService(dispatcher *transcode.Dispatcher, janitor *transcode.Janitor, library TrackLookup) *TranscodeService {
	return &TranscodeService{dispatcher: dispatcher, janitor: janitor, library: library}
}

// StreamRequest is a parsed request for a transcoded stream.
type StreamRequest struct {
	TrackID       int64
	Format        transcode.Format
	Bitrate       int
	Offset        time.Duration
	Stream        *int
	StripMetadata bool
	WantEstimate  bool
}

// Resolve looks up req.TrackID and returns an http.Handler that will serve
// the transcoded (or cached, or direct-fallback) stream.
func (s *TranscodeService) Resolve(ctx context.Context, req StreamRequest) (http.Handler, transcode.Outcome, error) {
	track := s.library.GetByID(req.TrackID)
	if track == nil {
		return nil, 0, ErrTrackNotFound
	}

	input := transcode.InputParameters{
		TrackPath: track.FilePath,
		Duration:  time.Duration(track.Duration) * time.Second,
		Offset:    req.Offset,
	}
	output := transcode.OutputParameters{
		Format:        req.Format,
		Bitrate:       req.Bitrate,
		Stream:        req.Stream,
		StripMetadata: req.StripMetadata,
	}

	return s.dispatcher.Dispatch(ctx, input, output, req.WantEstimate)
}

// ActiveSessions reports the number of live transcode sessions, for the
// status endpoint.
func (s *TranscodeService) ActiveSessions() int {
	return s.dispatcher.ActiveSessionCount()
}

// SweepResult is re-exported so handlers don't need to import the transcode
// package directly.
type SweepResult = transcode.SweepResult

// Sweep triggers a manual cache sweep (admin-only, spec.md §9 eviction
// open question: no automatic policy).
func (s *TranscodeService) Sweep(maxAge time.Duration, maxBytes int64) (SweepResult, error) {
	return s.janitor.Sweep(maxAge, maxBytes)
}
