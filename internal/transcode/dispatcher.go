package transcode

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Dispatcher is the top-level entry point a stream handler calls on every
// request: it snaps output parameters, computes the fingerprint, and either
// attaches to a live session, reuses a completed cache file, or starts a new
// session (spec.md §4.1 "Algorithm").
type Dispatcher struct {
	registry    *Registry
	cacheRoot   string
	encoderPath string
	ladder      []int
	waitTimeout func() int
}

// NewDispatcher builds a Dispatcher rooted at cacheRoot, spawning encoders at
// encoderPath and snapping bitrates onto ladder. waitTimeout is consulted on
// every new client to size its safety timer (nil uses defaultWaitTimeout).
func NewDispatcher(cacheRoot, encoderPath string, ladder []int, waitTimeout func() int) *Dispatcher {
	return &Dispatcher{
		registry:    NewRegistry(),
		cacheRoot:   cacheRoot,
		encoderPath: encoderPath,
		ladder:      ladder,
		waitTimeout: waitTimeout,
	}
}

// Outcome is what Dispatch decided to do with a request, for logging/metrics.
type Outcome int

const (
	OutcomeAttached Outcome = iota
	OutcomeCreated
	OutcomeCacheHit
	OutcomeDirectFallback
)

// Dispatch resolves one request to an http.Handler: a live ClientAdapter
// (attached to a new or existing session), a CacheFileHandler serving a
// complete previously-cached file, or — if session construction fails — a
// DirectStream fallback (spec.md §4.1 steps 1-7). wantEstimate controls
// whether the client receives a Content-Length estimate while the session is
// still Working.
func (d *Dispatcher) Dispatch(ctx context.Context, input InputParameters, output OutputParameters, wantEstimate bool) (handler http.Handler, outcome Outcome, err error) {
	snapped := output.Snap(d.ladder)
	fp := Compute(input, snapped)
	cachePath := fp.CachePath(d.cacheRoot)

	// The entire find-or-create decision runs under one lock, matching the
	// original's jobMutex span across its find/cache-check/construct/emplace
	// block: two concurrent misses for the same fingerprint must never both
	// reach newSession (spec.md I3, §4.1).
	d.registry.mu.Lock()
	defer d.registry.mu.Unlock()

	if sess, ok := d.registry.sessions[fp]; ok {
		return sess.newClient(wantEstimate, d.waitTimeout), OutcomeAttached, nil
	}

	if info, statErr := os.Stat(cachePath); statErr == nil && info.Mode().IsRegular() {
		now := time.Now()
		if err := os.Chtimes(cachePath, now, now); err != nil {
			slog.Debug("transcode cache touch failed", "path", cachePath, "error", err)
		}
		return &CacheFileHandler{path: cachePath, mimeType: snapped.Format.MimeType(), size: info.Size()}, OutcomeCacheHit, nil
	}

	if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err != nil {
		return d.fallback(ctx, input, snapped, err)
	}

	sess, err := newSession(ctx, d.registry, fp, cachePath, d.encoderPath, input, snapped)
	if err != nil {
		return d.fallback(ctx, input, snapped, err)
	}

	d.registry.sessions[fp] = sess

	return sess.newClient(wantEstimate, d.waitTimeout), OutcomeCreated, nil
}

// fallback degrades to a non-caching direct stream when a session could not
// be constructed (spec.md §4.1 step 7: "construction failure never surfaces
// as a 500 if a direct stream can still be served").
func (d *Dispatcher) fallback(ctx context.Context, input InputParameters, output OutputParameters, cause error) (http.Handler, Outcome, error) {
	slog.Warn("transcode session creation failed, falling back to direct stream", "error", cause)
	direct, err := NewDirectStream(d.encoderPath, input, output)
	if err != nil {
		return nil, OutcomeDirectFallback, err
	}
	return direct, OutcomeDirectFallback, nil
}

// ActiveSessionCount exposes the registry's live session count for an admin
// debug endpoint (mirrors ActiveSessions but scoped to this dispatcher's
// registry, which matters once more than one Dispatcher exists in tests).
func (d *Dispatcher) ActiveSessionCount() int {
	d.registry.mu.Lock()
	defer d.registry.mu.Unlock()
	return len(d.registry.sessions)
}
