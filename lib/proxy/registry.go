package proxy

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/kvproxy/lib/kv"
	"github.com/puzpuzpuz/xsync/v3"
)

// session is a live transaction owned by the registry.
// mu serializes calls on the same session and is held across the backend call.
type session struct {
	mu       sync.Mutex
	id       uint32
	txn      kv.ITxn
	mode     kv.Mode
	lastUsed atomic.Int64 // unix nanos
	done     bool         // set under mu once the session left the registry
}

func (s *session) touch(now time.Time) {
	s.lastUsed.Store(now.UnixNano())
}

func (s *session) idleSince() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

// arena stores sessions under ids it hands out itself. Implementations must
// be safe for concurrent use. Callers never see the synchronization used.
type arena interface {
	// Allocate stores s under a fresh id and returns that id.
	// ok is false if no free id could be reserved.
	Allocate(s *session) (id uint32, ok bool)
	// Lookup returns the session stored under id.
	Lookup(id uint32) (*session, bool)
	// Remove removes and returns the session stored under id.
	Remove(id uint32) (*session, bool)
	// Range calls f for every live session until f returns false.
	Range(f func(id uint32, s *session) bool)
	// Len returns the number of live sessions.
	Len() int
}

// registry is the default arena: a concurrent map keyed by ids from a
// fetch-and-increment counter. Ids start at 1, 0 is never handed out.
type registry struct {
	sessions *xsync.MapOf[uint32, *session]
	next     atomic.Uint32
}

func newRegistry() *registry {
	return &registry{sessions: xsync.NewMapOf[uint32, *session]()}
}

func (r *registry) Allocate(s *session) (uint32, bool) {
	id := r.next.Add(1)
	if id == 0 {
		// counter wrapped around
		id = r.next.Add(1)
	}
	s.id = id
	if _, loaded := r.sessions.LoadOrStore(id, s); loaded {
		// a session from the previous cycle of the counter is still alive
		return 0, false
	}
	return id, true
}

func (r *registry) Lookup(id uint32) (*session, bool) {
	return r.sessions.Load(id)
}

func (r *registry) Remove(id uint32) (*session, bool) {
	return r.sessions.LoadAndDelete(id)
}

func (r *registry) Range(f func(id uint32, s *session) bool) {
	r.sessions.Range(f)
}

func (r *registry) Len() int {
	return r.sessions.Size()
}
