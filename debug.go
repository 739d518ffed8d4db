package o2lite

// DebugFlags is a bitset over the debug categories spec.md §6 names:
// `{b,s,r,d,g,a}`: bytes-of-messages, sends, receives, discovery, general,
// and all-except-bytes. Routed through the zap logger at Debug level
// (original_source/o2litepy prints these categories; o2lite logs them
// structured instead).
type DebugFlags uint8

const (
	DebugBytes DebugFlags = 1 << iota
	DebugSends
	DebugReceives
	DebugDiscovery
	DebugGeneral
)

// DebugAll is every category except DebugBytes, matching the Python
// reference's `'a'` = "all except bytes" semantics exactly: WithDebug("a")
// must not also imply WithDebug("b").
const DebugAll = DebugSends | DebugReceives | DebugDiscovery | DebugGeneral

// ParseDebugFlags builds a DebugFlags set from a string over the letters
// b, s, r, d, g, a. Unrecognized letters are ignored.
func ParseDebugFlags(s string) DebugFlags {
	var flags DebugFlags
	for _, c := range s {
		switch c {
		case 'b':
			flags |= DebugBytes
		case 's':
			flags |= DebugSends
		case 'r':
			flags |= DebugReceives
		case 'd':
			flags |= DebugDiscovery
		case 'g':
			flags |= DebugGeneral
		case 'a':
			flags |= DebugAll
		}
	}
	return flags
}

func (f DebugFlags) Has(bit DebugFlags) bool { return f&bit != 0 }
