package reconcile

// Policy is the set of calendar names whose records are exempt from
// lifecycle reclassification. Institutionally managed calendars are
// regenerated wholesale on every fetch; without the exemption they
// would show constant spurious churn.
//
// A Policy is immutable after construction and safe for concurrent use.
type Policy struct {
	names map[string]struct{}
}

// NewPolicy builds a Policy from the given calendar names.
func NewPolicy(names ...string) Policy {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return Policy{names: set}
}

// Contains reports whether the calendar is exempt.
func (p Policy) Contains(calendarName string) bool {
	_, ok := p.names[calendarName]
	return ok
}

// Len returns the number of exempt calendars.
func (p Policy) Len() int {
	return len(p.names)
}
