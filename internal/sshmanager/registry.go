package sshmanager

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gluk-w/claworc/log-viewer/internal/sshconn"
)

// Target is the remote file a tail session is following. A Target is active
// exactly while it is present in the Registry under its endpoint.
type Target struct {
	Endpoint  sshconn.Endpoint `json:"endpoint"`
	Path      string           `json:"path"`
	SessionID string           `json:"session_id"`
	StartedAt time.Time        `json:"started_at"`

	// Seq is the request sequence reserved for the session with Reserve.
	Seq uint64 `json:"-"`
}

// Registry maps each endpoint to its single active tail target. Every read
// and write goes through the mutex; lookups are map hits with no I/O, so a
// tail loop can check its own entry on every poll cycle.
//
// Each entry carries a session ID. A loop that has been evicted by a newer
// session on the same endpoint sees its ID gone and stops, just as if its
// entry had been removed.
//
// Requests are ordered per endpoint by a sequence number taken with Reserve
// when the request arrives. Put refuses a target once a later request for
// the same endpoint has been reserved, so the most recent request wins no
// matter which connection completes first.
type Registry struct {
	mu      sync.RWMutex
	entries map[sshconn.Endpoint]Target
	seq     map[sshconn.Endpoint]uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[sshconn.Endpoint]Target),
		seq:     make(map[sshconn.Endpoint]uint64),
	}
}

// Reserve returns the next request sequence for ep.
func (r *Registry) Reserve(ep sshconn.Endpoint) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq[ep]++
	return r.seq[ep]
}

// Superseded reports whether a request for ep newer than seq was reserved.
func (r *Registry) Superseded(ep sshconn.Endpoint, seq uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.seq[ep] > seq
}

// TryRegister inserts path under ep with a fresh session ID and sequence,
// replacing any prior entry. It returns the new target and, if an entry was
// evicted, the previous path. Eviction only signals the old loop; it does
// not wait for it.
func (r *Registry) TryRegister(ep sshconn.Endpoint, path string) (target Target, previous string, evicted bool) {
	target = Target{
		Endpoint:  ep,
		Path:      path,
		SessionID: uuid.NewString(),
		StartedAt: time.Now(),
		Seq:       r.Reserve(ep),
	}
	previous, evicted, _ = r.Put(target)
	return target, previous, evicted
}

// Put inserts t under t.Endpoint, replacing any prior entry, and returns the
// evicted path if there was one. If a request newer than t.Seq has been
// reserved for the endpoint, Put changes nothing and ok is false.
func (r *Registry) Put(t Target) (previous string, evicted, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seq[t.Endpoint] > t.Seq {
		return "", false, false
	}
	if prev, found := r.entries[t.Endpoint]; found {
		previous, evicted = prev.Path, true
	}
	r.entries[t.Endpoint] = t
	return previous, evicted, true
}

// IsActive reports whether ep has an active target.
func (r *Registry) IsActive(ep sshconn.Endpoint) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[ep]
	return ok
}

// Holds reports whether the active entry for ep belongs to sessionID.
func (r *Registry) Holds(ep sshconn.Endpoint, sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.entries[ep]
	return ok && t.SessionID == sessionID
}

// Get returns the active target for ep.
func (r *Registry) Get(ep sshconn.Endpoint) (Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.entries[ep]
	return t, ok
}

// Unregister removes the entry for ep and returns its path. Removing an
// absent key is not an error; ok is false to tell the caller there was
// nothing to stop.
func (r *Registry) Unregister(ep sshconn.Endpoint) (path string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.entries[ep]
	if !ok {
		return "", false
	}
	delete(r.entries, ep)
	return t.Path, true
}

// Release removes the entry for ep only if it still belongs to sessionID,
// so a terminating loop never removes the session that evicted it.
func (r *Registry) Release(ep sshconn.Endpoint, sessionID string) bool {
	return r.ReleaseWith(ep, sessionID, nil)
}

// ReleaseWith is Release with fn called on the removed target while the
// registry is still locked. A loop checking Holds cannot observe the removal
// before fn returns.
func (r *Registry) ReleaseWith(ep sshconn.Endpoint, sessionID string, fn func(Target)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.entries[ep]
	if !ok || t.SessionID != sessionID {
		return false
	}
	if fn != nil {
		fn(t)
	}
	delete(r.entries, ep)
	return true
}

// FindByPath returns the first active target following path, in endpoint
// order.
func (r *Registry) FindByPath(path string) (Target, bool) {
	for _, t := range r.List() {
		if t.Path == path {
			return t, true
		}
	}
	return Target{}, false
}

// List returns all active targets sorted by host, then port.
func (r *Registry) List() []Target {
	r.mu.RLock()
	out := make([]Target, 0, len(r.entries))
	for _, t := range r.entries {
		out = append(out, t)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Endpoint.Host != out[j].Endpoint.Host {
			return out[i].Endpoint.Host < out[j].Endpoint.Host
		}
		return out[i].Endpoint.Port < out[j].Endpoint.Port
	})
	return out
}

// Len returns the number of active targets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
