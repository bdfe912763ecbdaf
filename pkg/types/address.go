package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Wildcard is the reserved value that matches every id at one address level
const Wildcard uint8 = 255

// Address identifies a component instance as subsystem.node.component.instance
type Address struct {
	Subsystem uint8
	Node      uint8
	Component uint8
	Instance  uint8
}

// Broadcast is the all-wildcard address
var Broadcast = Address{Wildcard, Wildcard, Wildcard, Wildcard}

// NewAddress builds an address from its four levels
func NewAddress(subsystem, node, component, instance uint8) Address {
	return Address{
		Subsystem: subsystem,
		Node:      node,
		Component: component,
		Instance:  instance,
	}
}

// ParseAddress parses the dotted "subsystem.node.component.instance" form
func ParseAddress(s string) (Address, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 4 {
		return Address{}, fmt.Errorf("invalid address %q: want 4 dotted levels", s)
	}

	var levels [4]uint8
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return Address{}, fmt.Errorf("invalid address %q: level %d: %w", s, i, err)
		}
		levels[i] = uint8(v)
	}
	return NewAddress(levels[0], levels[1], levels[2], levels[3]), nil
}

// MustParseAddress is ParseAddress that panics on error, for tests and constants
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the dotted form
func (a Address) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", a.Subsystem, a.Node, a.Component, a.Instance)
}

// IsBroadcast reports whether every level is the wildcard
func (a Address) IsBroadcast() bool {
	return a == Broadcast
}

// HasWildcard reports whether any level is the wildcard. Such an address
// names a group of components and can never identify a single one.
func (a Address) HasWildcard() bool {
	return a.Subsystem == Wildcard || a.Node == Wildcard ||
		a.Component == Wildcard || a.Instance == Wildcard
}

// Matches reports whether a falls inside pattern, honoring wildcards in pattern
func (a Address) Matches(pattern Address) bool {
	return levelMatches(a.Subsystem, pattern.Subsystem) &&
		levelMatches(a.Node, pattern.Node) &&
		levelMatches(a.Component, pattern.Component) &&
		levelMatches(a.Instance, pattern.Instance)
}

func levelMatches(v, pattern uint8) bool {
	return pattern == Wildcard || v == pattern
}

// InSubsystem reports whether a belongs to the given subsystem
func (a Address) InSubsystem(subsystem uint8) bool {
	return a.Subsystem == subsystem
}

// InNode reports whether a lives on the given node of the given subsystem
func (a Address) InNode(subsystem, node uint8) bool {
	return a.Subsystem == subsystem && a.Node == node
}

// Compare orders addresses level by level, subsystem first
func (a Address) Compare(b Address) int {
	switch {
	case a.Subsystem != b.Subsystem:
		return cmpUint8(a.Subsystem, b.Subsystem)
	case a.Node != b.Node:
		return cmpUint8(a.Node, b.Node)
	case a.Component != b.Component:
		return cmpUint8(a.Component, b.Component)
	default:
		return cmpUint8(a.Instance, b.Instance)
	}
}

// Less reports whether a sorts before b
func (a Address) Less(b Address) bool {
	return a.Compare(b) < 0
}

func cmpUint8(a, b uint8) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// MarshalText implements encoding.TextMarshaler
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
