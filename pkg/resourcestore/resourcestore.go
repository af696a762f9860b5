// Package resourcestore defines the external collaborator the Request
// Handler fetches resource bytes from, plus an in-memory reference
// implementation suitable for a demo server or handler tests.
package resourcestore

import (
	"errors"
	"sync"

	"bpx/pkg/session"
)

// ErrNotFound is returned by Get and GetAt when the path (or the
// specific version of it) is not known to the store.
var ErrNotFound = errors.New("resourcestore: not found")

// Store is the capability the Request Handler consumes: the current
// bytes and version for a path, and, for diff eligibility, the exact
// bytes a previously-issued version stood for.
type Store interface {
	// Get returns the current bytes and version for path.
	Get(path session.Path) ([]byte, session.Version, error)
	// GetAt returns the bytes a previously-served version of path
	// stood for, or ErrNotFound if that version is no longer retained.
	GetAt(path session.Path, version session.Version) ([]byte, error)
}

// VersionedStore is an optional extension a Store may implement to let
// the Request Handler persist the bytes behind a just-served version,
// so a later request quoting that version as its base can be diffed.
// Without this, X-Base-Version could never resolve to real bytes.
type VersionedStore interface {
	Store
	StoreVersion(path session.Path, version session.Version, content []byte)
}

// Memory is an in-memory reference Store. It holds a single "current"
// slot per path plus a bounded history of past versions, mirroring a
// real ResourceStore that might back onto a database with retention
// limits. It is safe for concurrent use.
type Memory struct {
	mu sync.RWMutex

	current  map[session.Path][]byte
	versions map[session.Path]map[session.Version][]byte

	// maxHistoryPerPath bounds how many past versions are retained per
	// path before the oldest is evicted. Zero means unbounded.
	maxHistoryPerPath int
	// order tracks insertion order of versions per path, oldest first,
	// to support bounded eviction without per-version timestamps.
	order map[session.Path][]session.Version
}

// NewMemory returns an empty in-memory resource store. maxHistoryPerPath
// caps the number of past versions retained per path; pass 0 for no
// cap.
func NewMemory(maxHistoryPerPath int) *Memory {
	return &Memory{
		current:           make(map[session.Path][]byte),
		versions:          make(map[session.Path]map[session.Version][]byte),
		order:             make(map[session.Path][]session.Version),
		maxHistoryPerPath: maxHistoryPerPath,
	}
}

// Set replaces the current content for path, minting a fresh
// content-addressed version and retaining the previous current
// content in history so it remains diffable as a base. Demo/test
// callers use this to simulate a resource changing between polls.
func (m *Memory) Set(path session.Path, content []byte) session.Version {
	version := session.VersionFromContent(content)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.current[path] = content
	m.storeVersionLocked(path, version, content)
	return version
}

// Get implements Store.
func (m *Memory) Get(path session.Path) ([]byte, session.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	content, ok := m.current[path]
	if !ok {
		return nil, "", ErrNotFound
	}
	return content, session.VersionFromContent(content), nil
}

// GetAt implements Store.
func (m *Memory) GetAt(path session.Path, version session.Version) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byVersion, ok := m.versions[path]
	if !ok {
		return nil, ErrNotFound
	}
	content, ok := byVersion[version]
	if !ok {
		return nil, ErrNotFound
	}
	return content, nil
}

// StoreVersion implements VersionedStore: it records the bytes a given
// version of path stood for, without altering the current slot. The
// Request Handler calls this after serving a response so the just-sent
// version becomes a valid future base.
func (m *Memory) StoreVersion(path session.Path, version session.Version, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeVersionLocked(path, version, content)
}

func (m *Memory) storeVersionLocked(path session.Path, version session.Version, content []byte) {
	byVersion, ok := m.versions[path]
	if !ok {
		byVersion = make(map[session.Version][]byte)
		m.versions[path] = byVersion
	}
	if _, exists := byVersion[version]; exists {
		return
	}

	byVersion[version] = content
	m.order[path] = append(m.order[path], version)

	if m.maxHistoryPerPath > 0 && len(m.order[path]) > m.maxHistoryPerPath {
		oldest := m.order[path][0]
		m.order[path] = m.order[path][1:]
		delete(byVersion, oldest)
	}
}

// ResourceCount returns the number of distinct paths tracked.
func (m *Memory) ResourceCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.current)
}

// VersionCount returns the total number of retained versions across
// all paths.
func (m *Memory) VersionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0
	for _, byVersion := range m.versions {
		total += len(byVersion)
	}
	return total
}
