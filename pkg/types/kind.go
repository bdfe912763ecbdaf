package types

import (
	"fmt"
	"strings"
)

// EventKind governs how often a provider intends to fire an event
type EventKind uint8

const (
	EventKindPeriodic EventKind = iota
	EventKindEveryChange
	EventKindFirstChange
	EventKindFirstChangeBoundaries
	EventKindPeriodicWithoutReplacement
	EventKindOneTime
)

var eventKindNames = map[EventKind]string{
	EventKindPeriodic:                   "periodic",
	EventKindEveryChange:                "every-change",
	EventKindFirstChange:                "first-change",
	EventKindFirstChangeBoundaries:      "first-change-boundaries",
	EventKindPeriodicWithoutReplacement: "periodic-without-replacement",
	EventKindOneTime:                    "one-time",
}

// String returns the kebab-case name of the kind
func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid reports whether k is one of the defined kinds
func (k EventKind) Valid() bool {
	_, ok := eventKindNames[k]
	return ok
}

// IsPeriodic reports whether the kind fires on a timer
func (k EventKind) IsPeriodic() bool {
	return k == EventKindPeriodic || k == EventKindPeriodicWithoutReplacement
}

// ParseEventKind accepts the names returned by String
func ParseEventKind(s string) (EventKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range eventKindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// BoundaryType selects the comparison a trigger condition applies
type BoundaryType uint8

const (
	BoundaryEqual BoundaryType = iota
	BoundaryNotEqual
	BoundaryInsideInclusive
	BoundaryInsideExclusive
	BoundaryOutsideInclusive
	BoundaryOutsideExclusive
	BoundaryGreaterOrEqual
	BoundaryGreater
	BoundaryLessOrEqual
	BoundaryLess
)

var boundaryNames = [...]string{
	"equal", "not-equal",
	"inside-inclusive", "inside-exclusive",
	"outside-inclusive", "outside-exclusive",
	"greater-or-equal", "greater", "less-or-equal", "less",
}

func (b BoundaryType) String() string {
	if int(b) < len(boundaryNames) {
		return boundaryNames[b]
	}
	return fmt.Sprintf("boundary(%d)", uint8(b))
}

// Valid reports whether b is one of the defined comparisons
func (b BoundaryType) Valid() bool {
	return int(b) < len(boundaryNames)
}

// ParseBoundaryType accepts the names returned by String
func ParseBoundaryType(s string) (BoundaryType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range boundaryNames {
		if name == s {
			return BoundaryType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown boundary type %q", s)
}
