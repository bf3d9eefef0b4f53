package env

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"

	"github.com/zclconf/go-cty/cty"
)

const displayPrefixLen = 16

// Fingerprint is the stable identity of an environment: a cryptographic
// digest over the canonical form of every registered key's effective
// value (explicit or schema default). Two environments with equal
// fingerprints are interchangeable for every purpose in this package.
type Fingerprint struct {
	full string // full sha256 hex digest, retained so equality is exact even if a truncated prefix collides
}

// Display returns a short, printable prefix suitable for diagnostics and
// filenames. Implementations must not rely on Display for equality — use
// Equal or compare Fingerprint values directly.
func (f Fingerprint) Display() string {
	if len(f.full) <= displayPrefixLen {
		return f.full
	}
	return f.full[:displayPrefixLen]
}

// String satisfies fmt.Stringer with the full digest, used as the memo key
// in the evaluation engine where exactness matters.
func (f Fingerprint) String() string {
	return f.full
}

// Equal reports exact fingerprint equality (full digest comparison, so a
// collision in the display prefix can never change semantics).
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.full == other.full
}

// Fingerprint computes e's fingerprint under s's registered schemas. Keys
// with no registered schema are ignored — they cannot have arrived through
// Apply, since Apply rejects unregistered keys, but Empty() environments
// built by hand in tests may carry stray entries.
func (s *Store) Fingerprint(e Env) Fingerprint {
	s.mu.RLock()
	names := make([]string, 0, len(s.schemas))
	for name := range s.schemas {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)

	h := sha256.New()
	for _, name := range names {
		sch, _ := s.Schema(name)
		v := s.Lookup(e, name)
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write(canonicalBytes(sch, v))
		h.Write([]byte{0})
	}
	return Fingerprint{full: hex.EncodeToString(h.Sum(nil))}
}

// canonicalBytes renders v under sch's canonical form: sets sort their
// elements and apply the schema's normalization function (if any); lists
// and scalars serialize as-is.
func canonicalBytes(sch KeySchema, v cty.Value) []byte {
	if !v.IsKnown() {
		return []byte("<unknown>")
	}
	if v.IsNull() {
		return []byte("<null>")
	}

	switch sch.Domain {
	case StringList:
		elems := elements(v)
		if sch.Normalize != nil {
			elems = sch.Normalize(elems)
		}
		return joinElements(elems)

	case StringSet:
		elems := elements(v)
		sort.Slice(elems, func(i, j int) bool {
			return elems[i].AsString() < elems[j].AsString()
		})
		if sch.Normalize != nil {
			elems = sch.Normalize(elems)
		}
		return joinElements(elems)

	case Enum, String:
		return []byte(v.AsString())

	case Bool:
		if v.True() {
			return []byte{1}
		}
		return []byte{0}

	case Int:
		bf := v.AsBigFloat()
		return []byte(bf.Text('f', -1))

	default:
		return []byte(strconv.Quote(v.GoString()))
	}
}

func joinElements(elems []cty.Value) []byte {
	var out []byte
	for i, e := range elems {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, []byte(e.AsString())...)
	}
	return out
}
