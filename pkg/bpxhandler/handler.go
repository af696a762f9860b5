// Package bpxhandler implements the BPX request-handling pipeline: it
// resolves a client's session, fetches current resource bytes from a
// ResourceStore, decides whether a binary delta or the full body is
// cheaper to send, and assembles the response. Any fault on the diff
// path degrades gracefully to serving the full resource.
package bpxhandler

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bpx/pkg/diff"
	"bpx/pkg/resourcestore"
	"bpx/pkg/session"
)

// Header names the handler consumes and produces.
const (
	HeaderSession         = "X-BPX-Session"
	HeaderBaseVersion     = "X-Base-Version"
	HeaderAcceptDiff      = "Accept-Diff"
	HeaderResourceVersion = "X-Resource-Version"
	HeaderDiffType        = "X-Diff-Type"
	HeaderOriginalSize    = "X-Original-Size"
	HeaderDiffSize        = "X-Diff-Size"
	HeaderCacheTTL        = "X-BPX-Cache-TTL"
)

// DiffFormat identifies a negotiated diff representation. Only
// binary-delta is ever emitted; the others are named so a client's
// Accept-Diff header can be parsed without surprise.
type DiffFormat string

const (
	FormatBinaryDelta DiffFormat = "binary-delta"
	FormatJSONPatch   DiffFormat = "json-patch"
	FormatBSDiff      DiffFormat = "bsdiff"

	diffTypeFull DiffFormat = "full"
)

func parseDiffFormat(token string) (DiffFormat, bool) {
	switch DiffFormat(strings.ToLower(strings.TrimSpace(token))) {
	case FormatBinaryDelta:
		return FormatBinaryDelta, true
	case FormatJSONPatch:
		return FormatJSONPatch, true
	case FormatBSDiff:
		return FormatBSDiff, true
	default:
		return "", false
	}
}

// Config bounds the diff-vs-full decision. The max-diff-size cap
// itself lives on the Diff Engine (it's the component that knows the
// encoded patch size); Config only carries what the handler decides
// with on top of that. CacheTTL is optional; zero means the
// X-BPX-Cache-TTL response header is omitted.
type Config struct {
	MinCompressionRatio float64
	CacheTTL            time.Duration
}

// Handler wires the State Manager and Diff Engine together behind a
// single entry point.
type Handler struct {
	sessions *session.Store
	engine   *diff.Engine
	store    resourcestore.Store
	cfg      Config
	logger   *log.Logger
}

// New returns a Handler. store may additionally implement
// resourcestore.VersionedStore; when it does, the handler persists
// each served version's bytes so later requests can diff against it.
func New(sessions *session.Store, engine *diff.Engine, store resourcestore.Store, cfg Config, logger *log.Logger) *Handler {
	return &Handler{sessions: sessions, engine: engine, store: store, cfg: cfg, logger: logger}
}

// ServeHTTP implements http.Handler, running the full BPX negotiation
// procedure for one request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := session.CanonicalPath(r.URL.Path)

	// Step 1: canonicalize path (above), parse headers.
	requestedSessionID := session.ID(strings.TrimSpace(r.Header.Get(HeaderSession)))
	baseVersion := session.Version(strings.TrimSpace(r.Header.Get(HeaderBaseVersion)))
	acceptedFormats := parseAcceptDiff(r.Header.Get(HeaderAcceptDiff))

	// Step 2: resolve or mint the session.
	sessionID, _ := h.sessions.GetOrCreateSession(requestedSessionID)

	// Step 3: fetch current bytes and version.
	currentContent, currentVersion, err := h.store.Get(path)
	if err != nil {
		if errors.Is(err, resourcestore.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Printf("bpxhandler: resource store error for %s: %v", path, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	// Step 4-5: decide full vs diff.
	format, body := h.negotiate(sessionID, path, baseVersion, acceptedFormats, currentContent, currentVersion)

	// Step 6: assemble and write the response.
	writeResponse(w, h.cfg, sessionID, currentVersion, format, currentContent, body)

	// Step 7: record the version just served.
	h.sessions.RecordVersion(sessionID, path, currentVersion)
	if versioned, ok := h.store.(resourcestore.VersionedStore); ok {
		versioned.StoreVersion(path, currentVersion, currentContent)
	}
}

// negotiate implements steps 4 and 5 of the procedure: it determines
// diff eligibility and, if eligible, whether the resulting patch is
// worth sending. It never returns an error — every failure mode
// degrades to (diffTypeFull, currentContent).
func (h *Handler) negotiate(sessionID session.ID, path session.Path, baseVersion session.Version, acceptedFormats map[DiffFormat]bool, currentContent []byte, currentVersion session.Version) (DiffFormat, []byte) {
	if baseVersion == "" || !acceptedFormats[FormatBinaryDelta] {
		return diffTypeFull, currentContent
	}

	recordedVersion, ok := h.sessions.GetVersion(sessionID, path)
	if !ok || recordedVersion != baseVersion {
		// UnknownBaseVersion / stale client state: serve full.
		return diffTypeFull, currentContent
	}
	if currentVersion == baseVersion {
		// Unchanged content: this deployment always serves full rather
		// than a bare 304-equivalent (see design notes).
		return diffTypeFull, currentContent
	}

	baseContent, err := h.store.GetAt(path, baseVersion)
	if err != nil {
		// ResourceStore can't produce the base bytes: fall back.
		return diffTypeFull, currentContent
	}

	patch, err := h.engine.Diff(baseContent, currentContent)
	if err != nil {
		// DiffOversized or a codec error: fall back.
		h.logger.Printf("bpxhandler: diff for %s fell back to full: %v", path, err)
		return diffTypeFull, currentContent
	}

	if !diff.IsWorthwhile(len(currentContent), len(patch), h.cfg.MinCompressionRatio) {
		return diffTypeFull, currentContent
	}

	return FormatBinaryDelta, patch
}

func writeResponse(w http.ResponseWriter, cfg Config, sessionID session.ID, currentVersion session.Version, format DiffFormat, currentContent, body []byte) {
	header := w.Header()
	header.Set(HeaderSession, string(sessionID))
	header.Set(HeaderResourceVersion, string(currentVersion))
	header.Set(HeaderDiffType, string(format))
	header.Set(HeaderOriginalSize, strconv.Itoa(len(currentContent)))
	if format == FormatBinaryDelta {
		header.Set(HeaderDiffSize, strconv.Itoa(len(body)))
	}
	if cfg.CacheTTL > 0 {
		header.Set(HeaderCacheTTL, strconv.Itoa(int(cfg.CacheTTL.Seconds())))
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// parseAcceptDiff splits a comma-separated Accept-Diff header into a
// set of recognized formats. Unrecognized tokens are ignored.
func parseAcceptDiff(header string) map[DiffFormat]bool {
	formats := make(map[DiffFormat]bool)
	if header == "" {
		return formats
	}
	for _, token := range strings.Split(header, ",") {
		if format, ok := parseDiffFormat(token); ok {
			formats[format] = true
		}
	}
	return formats
}
