package session

import (
	"container/list"
	"sync"
	"time"
)

// Config bounds the state manager's capacity and lifecycle policy.
type Config struct {
	// MaxSessions caps the number of live sessions. Above this, the
	// least-recently-accessed session is evicted before a new one is
	// created.
	MaxSessions int
	// MaxResourcesPerSession caps the number of tracked resource paths
	// within a single session. Above this, the least-recently-used
	// resource entry is evicted.
	MaxResourcesPerSession int
	// SessionTTL is the idle duration after which Sweep reclaims a
	// session.
	SessionTTL time.Duration
}

// resourceEntry is the value stored in a session's per-resource LRU list.
type resourceEntry struct {
	path    Path
	version Version
}

// Session tracks the resource versions last served to one client. All
// access goes through its own mutex; a Session never locks the Store
// it belongs to, so distinct sessions never contend with each other.
type Session struct {
	id ID

	mu           sync.Mutex
	resources    map[Path]*list.Element // value: *resourceEntry
	lru          *list.List             // front = most recently used
	lastAccessed time.Time
	maxResources int
}

func newSession(id ID, now time.Time, maxResources int) *Session {
	return &Session{
		id:           id,
		resources:    make(map[Path]*list.Element),
		lru:          list.New(),
		lastAccessed: now,
		maxResources: maxResources,
	}
}

// ID returns the session's identifier.
func (s *Session) ID() ID { return s.id }

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastAccessed = now
	s.mu.Unlock()
}

// LastAccessed returns the timestamp of the most recent lookup or
// write on this session.
func (s *Session) LastAccessed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccessed
}

// ResourceCount returns the number of resource paths currently tracked.
func (s *Session) ResourceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.resources)
}

func (s *Session) getVersion(path Path, now time.Time) (Version, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.resources[path]
	if !ok {
		return "", false
	}
	s.lru.MoveToFront(elem)
	s.lastAccessed = now
	return elem.Value.(*resourceEntry).version, true
}

func (s *Session) recordVersion(path Path, version Version, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastAccessed = now

	if elem, ok := s.resources[path]; ok {
		elem.Value.(*resourceEntry).version = version
		s.lru.MoveToFront(elem)
		return
	}

	if s.maxResources > 0 && len(s.resources) >= s.maxResources {
		s.evictOldestLocked()
	}

	elem := s.lru.PushFront(&resourceEntry{path: path, version: version})
	s.resources[path] = elem
}

func (s *Session) evictOldestLocked() {
	elem := s.lru.Back()
	if elem == nil {
		return
	}
	entry := elem.Value.(*resourceEntry)
	s.lru.Remove(elem)
	delete(s.resources, entry.path)
}

// Store is the concurrent, in-memory BPX state manager: a registry of
// sessions, each mapping resource paths to the version last served,
// with global session-count and per-session resource-count caps and
// TTL-based reclamation.
//
// mu guards the session map itself (creation, lookup, deletion);
// lruMu guards only the global least-recently-accessed ordering used
// for eviction. A session's own data lives behind its own mutex, so
// lruMu's O(1) pointer bookkeeping never blocks it.
type Store struct {
	cfg Config
	now func() time.Time

	mu       sync.RWMutex
	sessions map[ID]*Session

	lruMu  sync.Mutex
	lru    *list.List // value: ID, front = most recently accessed
	lruIdx map[ID]*list.Element
}

// NewStore creates an empty state manager using the wall clock.
func NewStore(cfg Config) *Store {
	return NewStoreWithClock(cfg, time.Now)
}

// NewStoreWithClock creates an empty state manager with an injectable
// clock, used by tests that exercise TTL reclamation deterministically.
func NewStoreWithClock(cfg Config, now func() time.Time) *Store {
	return &Store{
		cfg:      cfg,
		now:      now,
		sessions: make(map[ID]*Session),
		lru:      list.New(),
		lruIdx:   make(map[ID]*list.Element),
	}
}

// GetOrCreateSession returns the session for id if it is live, or
// mints a fresh one if id is empty or unknown. The returned bool
// reports whether a new session was created.
func (st *Store) GetOrCreateSession(id ID) (ID, bool) {
	if id != "" {
		st.mu.RLock()
		sess, ok := st.sessions[id]
		st.mu.RUnlock()
		if ok {
			sess.touch(st.now())
			st.touchLRU(id)
			return id, false
		}
	}

	newID := NewID()
	sess := newSession(newID, st.now(), st.cfg.MaxResourcesPerSession)

	st.mu.Lock()
	if st.cfg.MaxSessions > 0 && len(st.sessions) >= st.cfg.MaxSessions {
		st.evictOldestLocked()
	}
	st.sessions[newID] = sess
	st.mu.Unlock()

	st.touchLRU(newID)
	return newID, true
}

// GetVersion returns the version last recorded for (session, path), or
// false if the session is unknown or has no entry for that path.
func (st *Store) GetVersion(id ID, path Path) (Version, bool) {
	st.mu.RLock()
	sess, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return "", false
	}

	version, found := sess.getVersion(path, st.now())
	if found {
		st.touchLRU(id)
	}
	return version, found
}

// RecordVersion upserts the version recorded for (session, path). It
// is a no-op if the session is unknown: a caller must have obtained
// the session id via GetOrCreateSession first, and an evicted or
// expired id is simply dropped rather than silently resurrected.
func (st *Store) RecordVersion(id ID, path Path, version Version) {
	st.mu.RLock()
	sess, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return
	}

	sess.recordVersion(path, version, st.now())
	st.touchLRU(id)
}

// Len returns the current number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep removes every session whose last access is older than the
// configured TTL. It is intended to be called periodically by a
// background goroutine.
func (st *Store) Sweep() int {
	if st.cfg.SessionTTL <= 0 {
		return 0
	}
	cutoff := st.now().Add(-st.cfg.SessionTTL)

	st.mu.RLock()
	var expired []ID
	for id, sess := range st.sessions {
		if sess.LastAccessed().Before(cutoff) {
			expired = append(expired, id)
		}
	}
	st.mu.RUnlock()
	if len(expired) == 0 {
		return 0
	}

	removed := 0
	st.mu.Lock()
	for _, id := range expired {
		if sess, ok := st.sessions[id]; ok && sess.LastAccessed().Before(cutoff) {
			delete(st.sessions, id)
			removed++
		}
	}
	st.mu.Unlock()

	st.lruMu.Lock()
	for _, id := range expired {
		if elem, ok := st.lruIdx[id]; ok {
			st.lru.Remove(elem)
			delete(st.lruIdx, id)
		}
	}
	st.lruMu.Unlock()

	return removed
}

func (st *Store) touchLRU(id ID) {
	st.lruMu.Lock()
	defer st.lruMu.Unlock()
	if elem, ok := st.lruIdx[id]; ok {
		st.lru.MoveToFront(elem)
		return
	}
	st.lruIdx[id] = st.lru.PushFront(id)
}

// evictOldestLocked evicts the least-recently-accessed session. The
// caller must hold st.mu for writing.
func (st *Store) evictOldestLocked() {
	st.lruMu.Lock()
	elem := st.lru.Back()
	var oldest ID
	if elem != nil {
		oldest = elem.Value.(ID)
		st.lru.Remove(elem)
		delete(st.lruIdx, oldest)
	}
	st.lruMu.Unlock()

	if oldest != "" {
		delete(st.sessions, oldest)
	}
}
