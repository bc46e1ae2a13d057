package rules

// SessionRule is a single-day pattern detector evaluated against the
// connections of one device on the target date.
//
// Rules are stateless; the engine groups the day's connections into
// DaySessions and asks each rule whether a session matches.
type SessionRule interface {
	// Name is the unique rule name (e.g. "Loitering").
	Name() string

	// Description is a short text describing what the rule checks.
	Description() string

	// Match evaluates one device session. ok is false when the rule does
	// not fire.
	Match(s DaySession) (f Finding, ok bool)
}

// Finding is the output of a rule that fired for a session.
type Finding struct {
	Rule          string
	Session       DaySession
	DurationHours float64
	ArrivedHour   int
	DepartedHour  int
	Explanation   string
}
