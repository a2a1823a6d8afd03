package executor

import "errors"

var errEnvironmentGone = errors.New("sandbox stopped while the command was running")

// IsEnvironmentGone reports whether a Faulted outcome was caused by the
// environment dying rather than by the exec call failing.
func IsEnvironmentGone(err error) bool {
	return errors.Is(err, errEnvironmentGone)
}
