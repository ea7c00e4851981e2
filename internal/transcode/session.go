package transcode

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// chunkSize is the pump loop's read/serve buffer size (spec.md §4.3: "256
// KiB is a reasonable default").
const chunkSize = 256 * 1024

// Status is a session's lifecycle state (spec.md §3).
type Status int

const (
	StatusWorking Status = iota
	StatusDone
	StatusErrored
)

// activeSessions tracks live Session instances, ported from the LMS
// original's instCount debug counter (original_source CachingTranscoderSession.cpp).
var activeSessions atomic.Int64

// ActiveSessions returns the number of Sessions currently owned by the
// registry. Exposed for leak-detecting tests and an admin debug endpoint.
func ActiveSessions() int64 { return activeSessions.Load() }

// Session owns the encoder driver and cache file for one fingerprint and
// pumps encoder output into both the cache file and any attached clients
// (spec.md §4.3).
type Session struct {
	fingerprint Fingerprint
	cachePath   string
	mimeType    string

	estimatedTotal int64 // immutable after construction

	driver *Driver
	cache  *os.File

	fileMu        sync.Mutex
	producedBytes int64

	statusMu   sync.Mutex
	status     Status
	finalBytes int64 // valid once status != Working

	clientMu sync.Mutex
	clients  []*ClientAdapter

	registry *Registry
}

// newSession creates a Session backed by a fresh, truncated cache file and
// starts its pump loop. Errors here propagate to the dispatcher's fallback
// path (spec.md §4.1 step 7).
func newSession(ctx context.Context, reg *Registry, fp Fingerprint, cachePath, encoderPath string, input InputParameters, output OutputParameters) (*Session, error) {
	driver, err := NewDriver(ctx, encoderPath, input, output)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(cachePath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		driver.Close()
		return nil, err
	}

	s := &Session{
		fingerprint:    fp,
		cachePath:      cachePath,
		mimeType:       output.Format.MimeType(),
		estimatedTotal: EstimatedTotal(output.Bitrate, input.Duration, input.Offset),
		driver:         driver,
		cache:          f,
		registry:       reg,
	}

	activeSessions.Add(1)
	slog.Debug("transcode session created", "fingerprint", fp.Hex(), "estimated_total", s.estimatedTotal)

	go s.pump()

	return s, nil
}

// EstimatedTotal returns the immutable constant-bitrate projected byte
// length computed at construction (spec.md §4.2).
func (s *Session) EstimatedTotal() int64 { return s.estimatedTotal }

// MimeType returns the output container's canonical MIME type.
func (s *Session) MimeType() string { return s.mimeType }

// ProducedBytes returns the current monotonically non-decreasing produced
// byte count (spec.md I1).
func (s *Session) ProducedBytes() int64 {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	return s.producedBytes
}

// CurrentStatus returns the session's current status and, if it is no
// longer Working, the frozen final byte count (spec.md I2).
func (s *Session) CurrentStatus() (Status, int64) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status, s.finalBytes
}

// newClient creates a ClientAdapter attached to this session and delivers
// its first progress notification, mirroring
// CachingTranscoderSession::newClient in the original implementation.
func (s *Session) newClient(wantEstimate bool, waitTimeout func() int) *ClientAdapter {
	c := newClientAdapter(s, wantEstimate, waitTimeout)

	s.clientMu.Lock()
	s.clients = append(s.clients, c)
	s.clientMu.Unlock()

	status, _ := s.CurrentStatus()
	c.onUpdate(s.ProducedBytes(), status)

	return c
}

// pump repeatedly reads from the encoder and writes to the cache file,
// notifying clients of progress, until the encoder signals EOF or error
// (spec.md §4.3 "Pump loop").
func (s *Session) pump() {
	buf := make([]byte, chunkSize)

	for {
		if s.driver.Finished() {
			s.finish(StatusDone)
			return
		}

		done := make(chan int, 1)
		s.driver.AsyncRead(buf, func(n int) { done <- n })
		n := <-done

		if n > 0 {
			if err := s.writeChunk(buf[:n]); err != nil {
				slog.Warn("transcode cache write failed", "fingerprint", s.fingerprint.Hex(), "error", err)
				s.finish(StatusErrored)
				return
			}
		}

		s.notifyProgress()
	}
}

// writeChunk appends n bytes to the cache file at the current produced-bytes
// offset, under the file mutex (spec.md §4.3 step 3).
func (s *Session) writeChunk(p []byte) error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	if _, err := s.cache.Seek(s.producedBytes, 0); err != nil {
		return err
	}
	n, err := s.cache.Write(p)
	if err != nil {
		return err
	}
	s.producedBytes += int64(n)
	return nil
}

// serve reads up to min(maxLen, chunkSize) bytes starting at offset from the
// cache file and writes them to out, returning the number of bytes written,
// or -1 on a read error (spec.md §4.3 "serve").
//
// Reads go through their own file descriptor, opened fresh on every call,
// rather than through s.cache (the pump's write handle): finish() closes
// s.cache as soon as the encoder drains, but clients can still be lagging
// behind producedBytes at that point and must keep reading the completed
// file. A dedicated read descriptor means a client never races finish()'s
// close of the write side.
func (s *Session) serve(out io.Writer, offset int64, maxLen int64) int64 {
	if maxLen <= 0 {
		return 0
	}

	s.fileMu.Lock()
	produced := s.producedBytes
	s.fileMu.Unlock()
	if offset >= produced {
		return 0
	}

	want := maxLen
	if want > chunkSize {
		want = chunkSize
	}

	f, err := os.Open(s.cachePath)
	if err != nil {
		return -1
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return -1
	}
	scratch := make([]byte, want)
	n, err := f.Read(scratch)
	if err != nil && !errors.Is(err, io.EOF) {
		return -1
	}
	if n == 0 {
		return 0
	}

	written, werr := out.Write(scratch[:n])
	if werr != nil {
		return -1
	}
	return int64(written)
}

// finish transitions the session to a terminal status, notifies all clients
// once, removes the session from the registry, and (on success) leaves the
// complete cache file on disk. On error the partial cache file is deleted so
// a retried request re-transcodes instead of serving a truncated file
// (spec.md §9 open question, resolved in DESIGN.md).
func (s *Session) finish(status Status) {
	s.statusMu.Lock()
	if s.status != StatusWorking {
		s.statusMu.Unlock()
		return
	}
	s.status = status
	s.finalBytes = s.ProducedBytes()
	s.statusMu.Unlock()

	s.driver.Close()
	s.cache.Close() // closes the pump's write handle only; serve() reads independently

	if status == StatusErrored {
		if err := os.Remove(s.cachePath); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove partial cache file", "path", s.cachePath, "error", err)
		}
	}

	slog.Debug("transcode session finished", "fingerprint", s.fingerprint.Hex(), "status", status, "bytes", s.finalBytes)

	s.notifyTerminal(status)
	s.registry.remove(s.fingerprint)
	activeSessions.Add(-1)
}

// notifyProgress walks the client list invoking onUpdate(Working); clients
// that report death are removed (spec.md §4.3 "Client notification").
func (s *Session) notifyProgress() {
	produced := s.ProducedBytes()

	s.clientMu.Lock()
	defer s.clientMu.Unlock()

	live := s.clients[:0]
	for _, c := range s.clients {
		if c.onUpdate(produced, StatusWorking) {
			live = append(live, c)
		}
	}
	s.clients = live
}

// notifyTerminal walks the client list once with the terminal status and
// clears it (spec.md §4.3, §5 "terminal notification is the last").
func (s *Session) notifyTerminal(status Status) {
	produced := s.ProducedBytes()

	s.clientMu.Lock()
	defer s.clientMu.Unlock()

	for _, c := range s.clients {
		c.onUpdate(produced, status)
	}
	s.clients = nil
}
