// internal/retry/policy.go
package retry

// DefaultCeiling is the number of verification cycles a phase gets.
const DefaultCeiling = 3

// Policy bounds how many verification cycles a phase may run. The caller
// counts every cycle, successful or not, so the ceiling is always reached
// after exactly Ceiling failed cycles.
type Policy struct {
	Ceiling int
}

// New returns a Policy, falling back to DefaultCeiling for non-positive values.
func New(ceiling int) Policy {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	return Policy{Ceiling: ceiling}
}

func (p Policy) ceiling() int {
	if p.Ceiling <= 0 {
		return DefaultCeiling
	}
	return p.Ceiling
}

// ShouldRetry reports whether another cycle is allowed: the target has not
// been reached and attempts remain.
func (p Policy) ShouldRetry(reached bool, attempts int) bool {
	return !reached && attempts < p.ceiling()
}

// Exhausted reports the terminal case of hitting the ceiling without success.
func (p Policy) Exhausted(reached bool, attempts int) bool {
	return !reached && attempts >= p.ceiling()
}
