package types

// Conditions is the optional trigger configuration of an event. Every field
// is independently optional; nil means absent on the wire.
type Conditions struct {
	Boundary   *BoundaryType `json:"boundary,omitempty" yaml:"boundary,omitempty"`
	LimitField *uint8        `json:"limit_field,omitempty" yaml:"limit_field,omitempty"`
	LowerLimit *float64      `json:"lower_limit,omitempty" yaml:"lower_limit,omitempty"`
	UpperLimit *float64      `json:"upper_limit,omitempty" yaml:"upper_limit,omitempty"`
	State      *float64      `json:"state,omitempty" yaml:"state,omitempty"`
}

// IsEmpty reports whether no sub-field is present
func (c *Conditions) IsEmpty() bool {
	return c == nil ||
		(c.Boundary == nil && c.LimitField == nil && c.LowerLimit == nil &&
			c.UpperLimit == nil && c.State == nil)
}

// Clone returns a deep copy, or nil when c is empty
func (c *Conditions) Clone() *Conditions {
	if c.IsEmpty() {
		return nil
	}
	return &Conditions{
		Boundary:   clonePtr(c.Boundary),
		LimitField: clonePtr(c.LimitField),
		LowerLimit: clonePtr(c.LowerLimit),
		UpperLimit: clonePtr(c.UpperLimit),
		State:      clonePtr(c.State),
	}
}

// Ptr returns a pointer to a copy of v
func Ptr[T any](v T) *T {
	return &v
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
