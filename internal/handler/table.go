// Package handler implements the o2lite address-to-callback registry:
// ordered registration, first-match-wins dispatch with full or prefix
// semantics (spec.md §4.2).
package handler

import "github.com/o2ensemble/o2lite-go/internal/wire"

// Func is the callback shape a registered handler implements. msg is the
// decoder positioned at the start of the payload for this dispatch; it must
// not be retained past the call (spec.md §3 ownership rule).
type Func func(msg *wire.Decoder, address string, typespec string, info any)

// Entry is one registered handler. Address has already had its leading '/'
// or '!' stripped at registration time, matching the teacher's pattern of
// normalizing once at the boundary rather than on every dispatch.
type Entry struct {
	Address  string
	Typespec string // empty means "any typespec"
	Full     bool
	Fn       Func
	Info     any
}

// Table is an ordered, append-only sequence of handler entries. Entries are
// never removed; dispatch always walks from the front so earlier
// registrations take priority, matching spec.md §4.2's "first match wins".
type Table struct {
	entries []Entry
}

// New returns an empty Table.
func New() *Table {
	return &Table{}
}

// Strip removes a single leading '/' or '!' from addr, if present. The
// endpoint applies this to an inbound message's address before calling
// Match, since registration strips it from the handler's address too.
func Strip(addr string) string {
	if len(addr) > 0 && (addr[0] == '/' || addr[0] == '!') {
		return addr[1:]
	}
	return addr
}

// Add registers a new handler. address may carry a leading '/' or '!', which
// is stripped before storing.
func (t *Table) Add(address, typespec string, full bool, fn Func, info any) {
	t.entries = append(t.entries, Entry{
		Address:  Strip(address),
		Typespec: typespec,
		Full:     full,
		Fn:       fn,
		Info:     info,
	})
}

// Match returns the first entry matching addr (already stripped of its
// leading '/' or '!') and typespec, or false if nothing matches.
//
// Full match: entry.Address == addr, and entry.Typespec is empty or equals
// typespec exactly.
//
// Prefix match: addr starts with entry.Address and the next byte in addr is
// '/' or end-of-string, so "/a/b" matches inbound "/a/b/c" but not
// "/a/bcd", with the same typespec rule.
func (t *Table) Match(addr, typespec string) (Entry, bool) {
	for _, e := range t.entries {
		if e.Typespec != "" && e.Typespec != typespec {
			continue
		}
		if e.Full {
			if e.Address == addr {
				return e, true
			}
			continue
		}
		if matchesPrefix(e.Address, addr) {
			return e, true
		}
	}
	return Entry{}, false
}

func matchesPrefix(prefix, addr string) bool {
	if len(addr) < len(prefix) || addr[:len(prefix)] != prefix {
		return false
	}
	if len(addr) == len(prefix) {
		return true
	}
	return addr[len(prefix)] == '/'
}

// Len reports how many entries are registered, mostly useful for tests.
func (t *Table) Len() int { return len(t.entries) }
