package scheduler

import "fmt"

// UnknownPolicyError is returned by a policy family's constructor when the
// requested name is not in its registry. It is a distinct type (rather than
// a sentinel) so callers can report which family and name were involved.
type UnknownPolicyError struct {
	Family string // "dispatch", "pair-migration", or "scaling"
	Name   string
}

func (e *UnknownPolicyError) Error() string {
	return fmt.Sprintf("unknown %s policy %q", e.Family, e.Name)
}

// ErrNoCandidate is returned by a DispatchPolicy when it is asked to choose
// among zero candidates. It is a sentinel (not wrapped with context) because
// the only thing a caller can usefully do with it is retry with a non-empty
// fleet; there is nothing instance-specific to report.
var ErrNoCandidate = fmt.Errorf("dispatch: no candidate instances available")

// Must panics if err is non-nil, otherwise returns policy. Intended for
// callers that construct policies once at startup from a trusted
// configuration and want a fail-fast crash rather than a propagated error
// for what is, at that point, a programming or deployment mistake.
func Must[T any](policy T, err error) T {
	if err != nil {
		panic(err)
	}
	return policy
}
