package messaging

import "errors"

var (
	// ErrNoSession is returned when no established session exists for a
	// peer.
	ErrNoSession = errors.New("messaging: no session with peer")
	// ErrReplay is returned when a message's IV has already been observed
	// under its session.
	ErrReplay = errors.New("messaging: replayed iv")
	// ErrAuthTag is returned when AEAD decryption fails tag verification.
	ErrAuthTag = errors.New("messaging: auth tag mismatch")
	// ErrProofRejected is returned when an attached proof fails
	// verification during decrypt.
	ErrProofRejected = errors.New("messaging: attached proof rejected")
	// ErrUnknownProofKind is returned when an attachment names a proof
	// kind the dispatcher does not recognize.
	ErrUnknownProofKind = errors.New("messaging: unknown proof kind")
)
