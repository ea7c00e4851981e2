package transcode

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// clientState is one of the states in the ClientAdapter state machine
// (spec.md §4.5).
type clientState int

const (
	stateInit clientState = iota
	stateServing
	stateWaitingForData
	statePadding
	stateFinished
	stateDead
)

// defaultWaitTimeout is the per-client safety timer duration (spec.md §5,
// overridable via the client-wait-timeout-seconds config key).
const defaultWaitTimeout = 60 * time.Second

// activeClients mirrors the LMS original's client instCount debug counter.
var activeClients atomic.Int64

// ActiveClients returns the number of ClientAdapters currently attached to
// any session. Exposed for leak-detecting tests.
func ActiveClients() int64 { return activeClients.Load() }

// ClientAdapter mediates between one HTTP request and its session,
// implementing the state machine in spec.md §4.5.
type ClientAdapter struct {
	session     *Session
	waitTimeout time.Duration

	mu           sync.Mutex
	state        clientState
	wantEstimate bool

	nextOffset int64
	endOffset  int64 // -1 means unbounded (∞)

	headersSent bool
	statusCode  int

	// wake is signalled by onUpdate to cancel an active safety timer.
	wake chan struct{}
}

func newClientAdapter(s *Session, wantEstimate bool, waitTimeoutSeconds func() int) *ClientAdapter {
	timeout := defaultWaitTimeout
	if waitTimeoutSeconds != nil {
		if secs := waitTimeoutSeconds(); secs > 0 {
			timeout = time.Duration(secs) * time.Second
		}
	}
	activeClients.Add(1)
	return &ClientAdapter{
		session:      s,
		waitTimeout:  timeout,
		state:        stateInit,
		wantEstimate: wantEstimate,
		endOffset:    -1,
		wake:         make(chan struct{}, 1),
	}
}

// onUpdate is called by the session's pump on its own goroutine whenever
// produced_bytes advances or the session reaches a terminal status. It must
// never block; it only wakes a waiting ServeHTTP goroutine (spec.md §4.5
// "on_update contract"). Returns false once the client is dead.
func (c *ClientAdapter) onUpdate(producedBytes int64, status Status) bool {
	c.mu.Lock()
	dead := c.state == stateDead
	c.mu.Unlock()
	if dead {
		return false
	}

	if status == StatusErrored {
		c.mu.Lock()
		c.state = stateDead
		c.mu.Unlock()
		c.signal()
		return false
	}

	c.signal()
	return true
}

// signal wakes any goroutine blocked in wait() without blocking itself.
func (c *ClientAdapter) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Abort marks the client dead; the next progress notification will observe
// it and drop it from the session's list (spec.md §4.5 "Any → Dead").
func (c *ClientAdapter) Abort() {
	c.mu.Lock()
	c.state = stateDead
	c.mu.Unlock()
}

// ServeHTTP drives the full client lifecycle for one request: parses the
// range header, writes headers on first call, then loops writing bytes,
// waiting for data, or padding until the request is Finished or Dead.
func (c *ClientAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer activeClients.Add(-1)

	if !c.init(w, r) {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			c.Abort()
		default:
		}

		c.mu.Lock()
		state := c.state
		c.mu.Unlock()

		switch state {
		case stateFinished, stateDead:
			return
		case statePadding:
			if !c.pad(w) {
				return
			}
			continue
		}

		wrote, ok := c.serveOnce(w)
		if !ok {
			return
		}
		if canFlush && wrote {
			flusher.Flush()
		}
		if wrote {
			continue
		}

		// No bytes available right now; either wait or we're done/padding.
		c.mu.Lock()
		status, _ := c.session.CurrentStatus()
		switch {
		case status == StatusErrored:
			c.state = stateDead
			c.mu.Unlock()
			return
		case status == StatusDone:
			c.transitionOnDone()
			c.mu.Unlock()
			continue
		default:
			c.state = stateWaitingForData
			c.mu.Unlock()
		}

		if !c.wait(ctx) {
			return
		}
	}
}

// init parses the Range header, writes status/headers, and falls through to
// Serving (spec.md §4.5 "Init → Serving"). Returns false if the request was
// terminated in init (416).
func (c *ClientAdapter) init(w http.ResponseWriter, r *http.Request) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.wantEstimate {
		// A zero estimate (unknown duration) leaves the client unbounded.
		if est := c.session.EstimatedTotal(); est > 0 {
			c.endOffset = est
		}
	}

	status, nextOffset, endOffset, satisfiable := parseRange(r.Header.Get("Range"), c.endOffset)
	if !satisfiable {
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		c.state = stateFinished
		c.headersSent = true
		return false
	}

	c.nextOffset = nextOffset
	c.endOffset = endOffset
	c.statusCode = status

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", c.session.MimeType())

	if status == http.StatusPartialContent {
		finalStatus, finalBytes := c.session.CurrentStatus()
		total := "*"
		if finalStatus != StatusWorking {
			total = strconv.FormatInt(finalBytes, 10)
		} else if endOffset >= 0 {
			total = strconv.FormatInt(c.session.EstimatedTotal(), 10)
		}
		h.Set("Content-Range", "bytes "+strconv.FormatInt(nextOffset, 10)+"-"+strconv.FormatInt(endOffset-1, 10)+"/"+total)
	}
	if endOffset >= 0 {
		h.Set("Content-Length", strconv.FormatInt(endOffset-nextOffset, 10))
	}

	w.WriteHeader(status)
	c.headersSent = true
	c.state = stateServing
	return true
}

// serveOnce attempts one serve() call against the session and advances
// nextOffset. Returns (wroteAnyBytes, stillAlive).
func (c *ClientAdapter) serveOnce(w http.ResponseWriter) (bool, bool) {
	c.mu.Lock()
	produced := c.session.ProducedBytes()
	next := c.nextOffset
	end := c.endOffset
	c.mu.Unlock()

	if produced <= next || (end >= 0 && next >= end) {
		return false, true
	}

	want := produced - next
	if end >= 0 && end-next < want {
		want = end - next
	}

	n := c.session.serve(w, next, want)
	if n < 0 {
		c.mu.Lock()
		c.state = stateDead
		c.mu.Unlock()
		slog.Debug("transcode client cache read error, marking dead")
		return false, false
	}

	c.mu.Lock()
	c.nextOffset += n
	c.mu.Unlock()

	return n > 0, true
}

// transitionOnDone handles the Serving → Padding/Finished transitions once
// the session has reached Done. Caller holds c.mu.
func (c *ClientAdapter) transitionOnDone() {
	_, finalBytes := c.session.CurrentStatus()

	if c.nextOffset >= c.endOffset && c.endOffset >= 0 {
		c.state = stateFinished
		return
	}
	if c.endOffset < 0 {
		// No estimate was ever promised; end of stream ends the request.
		c.state = stateFinished
		return
	}
	if c.nextOffset >= finalBytes {
		c.state = statePadding
		return
	}
	// Session is Done but there are still bytes in [nextOffset, finalBytes)
	// this client hasn't been served; keep serving from the cache file.
	c.state = stateServing
}

// pad writes zero bytes until nextOffset reaches endOffset (spec.md §4.5
// "Serving → Padding").
func (c *ClientAdapter) pad(w http.ResponseWriter) bool {
	c.mu.Lock()
	padSize := c.endOffset - c.nextOffset
	c.mu.Unlock()

	if padSize <= 0 {
		c.mu.Lock()
		c.state = stateFinished
		c.mu.Unlock()
		return true
	}

	zeros := make([]byte, padSize)
	if _, err := w.Write(zeros); err != nil {
		c.mu.Lock()
		c.state = stateDead
		c.mu.Unlock()
		return false
	}

	c.mu.Lock()
	c.nextOffset = c.endOffset
	c.state = stateFinished
	c.mu.Unlock()
	return true
}

// wait suspends until a session notification wakes it or the safety timer
// expires (spec.md §4.5 "Serving → WaitingForData", §5 "Timeouts"). Returns
// false if the client died while waiting.
func (c *ClientAdapter) wait(ctx context.Context) bool {
	timer := time.NewTimer(c.waitTimeout)
	defer timer.Stop()

	select {
	case <-c.wake:
	case <-timer.C:
		slog.Warn("transcode client wait timer expired", "offset", c.nextOffset)
	case <-ctx.Done():
	}

	c.mu.Lock()
	dead := c.state == stateDead
	if !dead {
		c.state = stateServing
	}
	c.mu.Unlock()
	return !dead
}

// parseRange implements spec.md §4.5 "Range-parse rules". endOffsetHint is
// the session's estimated total if wantEstimate was set and available, or
// -1 if unbounded/unknown. Returns the HTTP status, next/end offsets
// (end=-1 means unbounded), and whether the request is satisfiable.
func parseRange(header string, endOffsetHint int64) (status int, nextOffset, endOffset int64, satisfiable bool) {
	if header == "" {
		return http.StatusOK, 0, endOffsetHint, true
	}

	ranges, multi, ok := parseByteRanges(header)
	if !ok {
		return http.StatusRequestedRangeNotSatisfiable, 0, 0, false
	}
	if multi || len(ranges) != 1 {
		return http.StatusOK, 0, endOffsetHint, true
	}

	rg := ranges[0]
	if endOffsetHint >= 0 && rg.first >= endOffsetHint {
		return http.StatusRequestedRangeNotSatisfiable, 0, 0, false
	}

	if rg.hasLast {
		last := rg.last
		if endOffsetHint >= 0 && last >= endOffsetHint {
			last = endOffsetHint - 1
		}
		if last < rg.first {
			return http.StatusRequestedRangeNotSatisfiable, 0, 0, false
		}
		return http.StatusPartialContent, rg.first, last + 1, true
	}

	return http.StatusPartialContent, rg.first, endOffsetHint, true
}

type byteRange struct {
	first   int64
	last    int64
	hasLast bool
}

// parseByteRanges parses an RFC 7233 "Range: bytes=a-b,c-d" header (suffix
// ranges like "bytes=-500" are not supported by this core; spec.md only
// requires "a-b" and "a-" forms). Returns the parsed ranges, whether more
// than one was specified, and whether parsing succeeded syntactically.
func parseByteRanges(header string) (ranges []byteRange, multi bool, ok bool) {
	const prefix = "bytes="
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return nil, false, false
	}
	spec := header[len(prefix):]

	parts := strings.Split(spec, ",")
	for _, raw := range parts {
		p := strings.TrimSpace(raw)
		dash := strings.IndexByte(p, '-')
		if dash < 0 {
			return nil, false, false
		}
		firstStr, lastStr := p[:dash], p[dash+1:]
		if firstStr == "" {
			return nil, false, false // suffix ranges unsupported
		}
		first, err := strconv.ParseInt(firstStr, 10, 64)
		if err != nil || first < 0 {
			return nil, false, false
		}
		if lastStr == "" {
			ranges = append(ranges, byteRange{first: first})
			continue
		}
		last, err := strconv.ParseInt(lastStr, 10, 64)
		if err != nil || last < first {
			return nil, false, false
		}
		ranges = append(ranges, byteRange{first: first, last: last, hasLast: true})
	}

	return ranges, len(ranges) > 1, len(ranges) > 0
}
