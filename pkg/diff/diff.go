// Package diff computes and applies binary patches between two byte
// sequences, using the wire package for serialization. The engine
// diffs line-anchored text when both inputs are valid UTF-8, falling
// back to a byte-granularity diff otherwise.
package diff

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"

	"bpx/pkg/wire"
)

// ErrDiffOversized is returned by Diff when the encoded patch would
// exceed the configured maximum size. Callers treat this as a signal
// to fall back to serving the full resource.
var ErrDiffOversized = errors.New("diff: encoded patch exceeds max diff size")

// Engine computes and applies BPX binary diffs.
type Engine struct {
	// MaxDiffSize caps the encoded patch size Diff will return. A
	// non-positive value disables the cap.
	MaxDiffSize int
}

// New returns an Engine with the given maximum diff size. Pass 0 for
// no cap.
func New(maxDiffSize int) *Engine {
	return &Engine{MaxDiffSize: maxDiffSize}
}

// Diff computes a patch that, applied to base, reproduces target. It
// returns ErrDiffOversized (and no patch) if MaxDiffSize is exceeded;
// the caller is expected to fall back to a full response in that case.
func (e *Engine) Diff(base, target []byte) ([]byte, error) {
	var ops []wire.Op
	if utf8.Valid(base) && utf8.Valid(target) {
		ops = diffLines(base, target)
	} else {
		ops = diffBytes(base, target)
	}

	patch := wire.Encode(ops)
	if e.MaxDiffSize > 0 && len(patch) > e.MaxDiffSize {
		return nil, ErrDiffOversized
	}
	return patch, nil
}

// Apply reconstructs target bytes by replaying patch against base.
func (e *Engine) Apply(base, patch []byte) ([]byte, error) {
	return wire.Apply(base, patch)
}

// IsWorthwhile reports whether a patch of diffSize bytes is worth
// sending instead of the full resource (originalSize bytes), given the
// minimum compression ratio the deployment requires (0.2 means the
// patch must save at least 20%).
func IsWorthwhile(originalSize, diffSize int, minCompressionRatio float64) bool {
	if originalSize <= 0 {
		return false
	}
	maxAllowed := float64(originalSize) * (1 - minCompressionRatio)
	return float64(diffSize) <= maxAllowed
}

// diffLines runs a line-anchored sequence match over base and target,
// translating difflib opcodes into wire operations. Adjacent
// same-kind runs are coalesced by appendOp as they're built.
func diffLines(base, target []byte) []wire.Op {
	// Split keeping each line's terminator attached. Unlike
	// difflib.SplitLines, no newline is added to the final line, so the
	// line lengths sum to exactly len(base) and len(target).
	splitLines := func(b []byte) []string {
		lines := strings.SplitAfter(string(b), "\n")
		if lines[len(lines)-1] == "" {
			lines = lines[:len(lines)-1]
		}
		return lines
	}
	baseLines := splitLines(base)
	targetLines := splitLines(target)

	matcher := difflib.NewMatcher(baseLines, targetLines)
	var ops []wire.Op
	for _, oc := range matcher.GetOpCodes() {
		switch oc.Tag {
		case 'e':
			ops = appendOp(ops, linesLen(baseLines[oc.I1:oc.I2]), wire.OpCopy, nil)
		case 'd':
			ops = appendOp(ops, linesLen(baseLines[oc.I1:oc.I2]), wire.OpDelete, nil)
		case 'i':
			ops = appendOp(ops, 0, wire.OpInsert, []byte(joinLines(targetLines[oc.J1:oc.J2])))
		case 'r':
			// A replaced run is diffed at byte granularity rather than
			// wholesale delete+insert, so a one-character edit inside an
			// otherwise-unchanged line still yields a tight patch.
			oldSeg := []byte(joinLines(baseLines[oc.I1:oc.I2]))
			newSeg := []byte(joinLines(targetLines[oc.J1:oc.J2]))
			for _, op := range diffBytes(oldSeg, newSeg) {
				ops = appendOp(ops, op.Len, op.Code, op.Data)
			}
		}
	}
	return ops
}

// diffBytes computes a byte-granularity diff via common
// prefix/suffix extraction, used when either input is not valid
// UTF-8 and line-anchoring would be meaningless.
func diffBytes(base, target []byte) []wire.Op {
	prefix := commonPrefixLen(base, target)
	suffix := commonSuffixLen(base[prefix:], target[prefix:])

	baseMidEnd := len(base) - suffix
	targetMidEnd := len(target) - suffix

	var ops []wire.Op
	if prefix > 0 {
		ops = appendOp(ops, uint32(prefix), wire.OpCopy, nil)
	}
	if baseMidEnd > prefix {
		ops = appendOp(ops, uint32(baseMidEnd-prefix), wire.OpDelete, nil)
	}
	if targetMidEnd > prefix {
		ops = appendOp(ops, 0, wire.OpInsert, target[prefix:targetMidEnd])
	}
	if suffix > 0 {
		ops = appendOp(ops, uint32(suffix), wire.OpCopy, nil)
	}
	return ops
}

// appendOp appends a wire operation, coalescing it into the previous
// operation when they're the same kind.
func appendOp(ops []wire.Op, length uint32, code wire.Opcode, data []byte) []wire.Op {
	if code == wire.OpInsert && len(data) == 0 {
		return ops
	}
	if code != wire.OpInsert && length == 0 {
		return ops
	}

	if n := len(ops); n > 0 && ops[n-1].Code == code {
		switch code {
		case wire.OpInsert:
			ops[n-1].Data = append(ops[n-1].Data, data...)
			ops[n-1].Len = uint32(len(ops[n-1].Data))
		default:
			ops[n-1].Len += length
		}
		return ops
	}

	switch code {
	case wire.OpInsert:
		return append(ops, wire.Insert(data))
	case wire.OpCopy:
		return append(ops, wire.Copy(length))
	case wire.OpDelete:
		return append(ops, wire.Delete(length))
	}
	return ops
}

func linesLen(lines []string) uint32 {
	total := 0
	for _, l := range lines {
		total += len(l)
	}
	return uint32(total)
}

func joinLines(lines []string) string {
	total := 0
	for _, l := range lines {
		total += len(l)
	}
	b := make([]byte, 0, total)
	for _, l := range lines {
		b = append(b, l...)
	}
	return string(b)
}

func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func commonSuffixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[len(a)-1-i] == b[len(b)-1-i] {
		i++
	}
	return i
}
