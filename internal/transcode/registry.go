package transcode

import "sync"

// Registry is the process-wide mapping from fingerprint to live session
// (spec.md §4.1, §3 invariant I3). Creation and lookup are atomic with
// respect to each other for the same fingerprint.
type Registry struct {
	mu       sync.Mutex
	sessions map[Fingerprint]*Session
}

// NewRegistry returns an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[Fingerprint]*Session)}
}

// remove drops fp from the registry. Called by a session when it reaches a
// terminal status (spec.md I5).
func (r *Registry) remove(fp Fingerprint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, fp)
}
