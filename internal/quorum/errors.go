package quorum

import "errors"

var (
	// ErrClaimNotFound is returned when an operation names an unknown claim.
	ErrClaimNotFound = errors.New("quorum: claim not found")
	// ErrAlreadyFinalized is returned when a claim already in the Finalized
	// state is resubmitted or re-approved.
	ErrAlreadyFinalized = errors.New("quorum: claim already finalized")
	// ErrNotApproved is returned when Finalize is called on a claim that has
	// not reached the Approved state.
	ErrNotApproved = errors.New("quorum: claim not approved")
	// ErrNoEligibleVerifiers is returned when the candidate set contains no
	// peer meeting the uptime threshold.
	ErrNoEligibleVerifiers = errors.New("quorum: no eligible verifiers")
)
