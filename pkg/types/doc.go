/*
Package types defines the small value types shared by every herald package.

# Addressing

Every component on the network is named by a four-level Address:

	subsystem.node.component.instance

Each level is one byte. The value 255 (Wildcard) is reserved and matches any
id at that level; the all-wildcard address is Broadcast. Wildcard addresses
name groups, so they are accepted as destinations and match patterns but are
never stored as an event subscriber or used as a component's own identity.

Address is comparable and can be used directly as a map key. AddressSet is
the subscriber-set type used by produced events.

# Event Kinds

EventKind records how often a provider intends to fire an event:

  - periodic, periodic-without-replacement: fired from a timer at the
    negotiated rate (IsPeriodic returns true)
  - every-change, first-change, first-change-boundaries: fired by the
    producing application when its observed value changes
  - one-time: fired once right after the request is accepted

# Conditions

Conditions carries the optional trigger configuration of an event. Each
sub-field is a pointer because presence and value are independent on the
wire: an absent field and a field equal to zero are different requests.

	c := &types.Conditions{
		Boundary:   types.Ptr(types.BoundaryInsideInclusive),
		LowerLimit: types.Ptr(10.0),
		UpperLimit: types.Ptr(20.0),
	}
*/
package types
