package frame

import "errors"

// ErrMalformed indicates a frame too short or with an invalid field width.
var ErrMalformed = errors.New("frame: malformed")

// ErrOversized indicates a frame would exceed MaxFrameBytes once serialized.
var ErrOversized = errors.New("frame: oversized")
