package transcode

import "net/http"

// DirectStream transcodes straight through to one client with no cache file
// and no session registry entry, used when a session could not be
// constructed (spec.md §4.1 step 7). It is grounded on the teacher's
// ffmpeg.Encoder.Stream: spawn, io.Copy stdout to the response, done — but
// built on the same Driver as the caching path so encoder argv stays in one
// place.
type DirectStream struct {
	encoderPath string
	input       InputParameters
	output      OutputParameters
}

// NewDirectStream never fails today; it just captures the parameters needed
// to spawn an encoder per request. The actual spawn, and any failure to
// resolve encoderPath, happens lazily in ServeHTTP via NewDriver, since each
// client needs its own child process.
func NewDirectStream(encoderPath string, input InputParameters, output OutputParameters) (*DirectStream, error) {
	return &DirectStream{encoderPath: encoderPath, input: input, output: output}, nil
}

// ServeHTTP implements http.Handler. Direct streams never honor Range —
// there is no cache file to seek within and no produced-bytes ledger to
// serve a suffix from, so every request gets the full stream from offset
// (spec.md §4.1 step 7: "best-effort, no partial-content support").
func (d *DirectStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	driver, err := NewDriver(r.Context(), d.encoderPath, d.input, d.output)
	if err != nil {
		http.Error(w, "transcoder unavailable", http.StatusServiceUnavailable)
		return
	}
	defer driver.Close()

	w.Header().Set("Content-Type", d.output.Format.MimeType())
	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)

	buf := make([]byte, chunkSize)
	for {
		select {
		case <-r.Context().Done():
			return
		default:
		}

		if driver.Finished() {
			return
		}

		done := make(chan int, 1)
		driver.AsyncRead(buf, func(n int) { done <- n })
		n := <-done

		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		}
	}
}
