package routing

import "errors"

// ErrNoRoute reports that no route to a destination is available. The
// Engine does not return it; a discovery that times out is reported through
// DiscoveryResult.TimedOut.
var ErrNoRoute = errors.New("routing: no route to destination")

// ErrNoReverseRoute reports that a RouteReply cannot be forwarded toward its
// originator because no reverse route exists. HandleRouteReply does not
// return it; it logs and drops such replies.
var ErrNoReverseRoute = errors.New("routing: no reverse route to forward reply")

// ErrLimitedAnnounce is returned when a content announcement is denied by
// the per-hash rate limiter.
var ErrLimitedAnnounce = errors.New("routing: content announce rate-limited")
