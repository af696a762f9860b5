// Package session implements the BPX state manager: a concurrent,
// in-memory registry of client sessions, each mapping resource paths to
// the version identifier last served to that client. It enforces the
// global session cap, the per-session resource cap, and TTL-based
// reclamation.
package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ID is an opaque, URL-safe session identifier.
type ID string

// NewID mints a fresh, collision-resistant session id: "sess_"
// followed by 16 random bytes (128 bits) in hex.
func NewID() ID {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("session: reading random bytes: " + err.Error())
	}
	return ID("sess_" + hex.EncodeToString(b[:]))
}

// Version is an opaque version token. Two versions compare equal iff
// they refer to the same bytes for the same resource path.
type Version string

// NewVersion mints a fresh, never-reused version token.
func NewVersion() Version {
	return Version("v:" + uuid.NewString())
}

// VersionFromContent derives a deterministic, content-addressed
// version token. Identical bytes always produce the identical token,
// which lets a ResourceStore serve the same version twice without
// minting spurious new identifiers.
func VersionFromContent(content []byte) Version {
	sum := sha256.Sum256(content)
	return Version("v:" + hex.EncodeToString(sum[:8]))
}

// Path is a canonicalized resource path, used as the identity key for
// version tracking within a session.
type Path string

// CanonicalPath cleans a raw request path into its canonical form:
// leading slash enforced, no trailing slash except for root, and
// "." / ".." segments resolved.
func CanonicalPath(raw string) Path {
	if raw == "" {
		raw = "/"
	}
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	clean := path.Clean(raw)
	return Path(clean)
}

func (p Path) String() string { return string(p) }
