package ratelimit

import "errors"

// ErrLimited is returned by callers that choose to surface rate-limit
// denials as an explicit error rather than a boolean.
var ErrLimited = errors.New("ratelimit: limited")
