package types

import "sort"

// AddressSet is an unordered set of component addresses
type AddressSet map[Address]struct{}

// NewAddressSet builds a set from the given addresses
func NewAddressSet(addrs ...Address) AddressSet {
	s := make(AddressSet, len(addrs))
	for _, a := range addrs {
		s[a] = struct{}{}
	}
	return s
}

// Add inserts a and reports whether it was not already present
func (s AddressSet) Add(a Address) bool {
	if _, ok := s[a]; ok {
		return false
	}
	s[a] = struct{}{}
	return true
}

// Remove deletes a and reports whether it was present
func (s AddressSet) Remove(a Address) bool {
	if _, ok := s[a]; !ok {
		return false
	}
	delete(s, a)
	return true
}

// Has reports membership
func (s AddressSet) Has(a Address) bool {
	_, ok := s[a]
	return ok
}

// RemoveFunc deletes every member for which fn returns true and returns how many went
func (s AddressSet) RemoveFunc(fn func(Address) bool) int {
	removed := 0
	for a := range s {
		if fn(a) {
			delete(s, a)
			removed++
		}
	}
	return removed
}

// Sorted returns the members in address order
func (s AddressSet) Sorted() []Address {
	out := make([]Address, 0, len(s))
	for a := range s {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Clone returns an independent copy
func (s AddressSet) Clone() AddressSet {
	out := make(AddressSet, len(s))
	for a := range s {
		out[a] = struct{}{}
	}
	return out
}
