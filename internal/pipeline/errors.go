package pipeline

import "errors"

// ErrTickTimeout marks a tick that hit its hard deadline mid-flight.
// Whatever was posted before the deadline stays posted and recorded; the
// remainder of the candidate list is abandoned.
var ErrTickTimeout = errors.New("tick deadline exceeded")
