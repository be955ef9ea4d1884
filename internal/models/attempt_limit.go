package models

import "strconv"

// AttemptLimitKind distinguishes the three shapes a chatbot usage ceiling can take.
type AttemptLimitKind int

const (
	AttemptsUnlimited AttemptLimitKind = iota
	AttemptsZeroAllowed
	AttemptsLimited
)

// AttemptLimit replaces the nullable max_attempts column. Unlimited is the zero value.
type AttemptLimit struct {
	kind AttemptLimitKind
	max  int
}

// Unlimited never denies.
func Unlimited() AttemptLimit { return AttemptLimit{kind: AttemptsUnlimited} }

// ZeroAllowed always denies, whatever has been used.
func ZeroAllowed() AttemptLimit { return AttemptLimit{kind: AttemptsZeroAllowed} }

// Limited allows n attempts. n <= 0 collapses to ZeroAllowed.
func Limited(n int) AttemptLimit {
	if n <= 0 {
		return ZeroAllowed()
	}
	return AttemptLimit{kind: AttemptsLimited, max: n}
}

// AttemptLimitFromNullable maps the stored column: NULL is unlimited, 0 is zero allowed.
func AttemptLimitFromNullable(v *int) AttemptLimit {
	if v == nil {
		return Unlimited()
	}
	return Limited(*v)
}

func (l AttemptLimit) Kind() AttemptLimitKind { return l.kind }

// Max returns the ceiling and whether one exists.
func (l AttemptLimit) Max() (int, bool) {
	switch l.kind {
	case AttemptsZeroAllowed:
		return 0, true
	case AttemptsLimited:
		return l.max, true
	default:
		return 0, false
	}
}

// Permits reports whether one more attempt may start when used attempts are already recorded.
func (l AttemptLimit) Permits(used int) bool {
	switch l.kind {
	case AttemptsUnlimited:
		return true
	case AttemptsZeroAllowed:
		return false
	default:
		return used < l.max
	}
}

// Nullable is the inverse of AttemptLimitFromNullable.
func (l AttemptLimit) Nullable() *int {
	max, ok := l.Max()
	if !ok {
		return nil
	}
	return &max
}

// Remaining returns the attempts left after used, or nil when unlimited.
func (l AttemptLimit) Remaining(used int) *int {
	max, ok := l.Max()
	if !ok {
		return nil
	}
	left := max - used
	if left < 0 {
		left = 0
	}
	return &left
}

func (l AttemptLimit) String() string {
	switch l.kind {
	case AttemptsUnlimited:
		return "unlimited"
	case AttemptsZeroAllowed:
		return "zero"
	default:
		return "limited(" + strconv.Itoa(l.max) + ")"
	}
}
