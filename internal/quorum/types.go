package quorum

import (
	"encoding/json"
	"time"
)

// ClaimState is the lifecycle state of a RewardClaim.
type ClaimState string

const (
	StatePending   ClaimState = "pending"
	StateApproved  ClaimState = "approved"
	StateRejected  ClaimState = "rejected"
	StateFinalized ClaimState = "finalized"
)

// RewardClaim is a claimant's request for tokens earned through sharing,
// listening, bandwidth, uptime, or proximity activity, gated on quorum
// approval from a sample of verifier peers.
type RewardClaim struct {
	ClaimID       string          `json:"claim_id"`
	Claimant      string          `json:"claimant"`
	Kind          string          `json:"kind"`
	SubjectHash   string          `json:"subject_hash"`
	TokensClaimed float64         `json:"tokens_claimed"`
	ProofPayload  json.RawMessage `json:"proof_payload"`

	State ClaimState `json:"state"`

	ApprovedCount   int `json:"approved_count"`
	RejectedCount   int `json:"rejected_count"`
	ProofValidCount int `json:"proof_valid_count"`

	CreatedAt  time.Time `json:"created_at"`
	ApprovedAt time.Time `json:"approved_at,omitempty"`

	MintTxID string `json:"mint_tx_id,omitempty"`
}

// VerifierApproval is one verifier's signed verdict on a RewardClaim.
type VerifierApproval struct {
	ClaimID    string `json:"claim_id"`
	VerifierID string `json:"verifier_id"`
	Approve    bool   `json:"approve"`
	ProofValid bool   `json:"proof_valid"`
	Signature  string `json:"signature"`
}

// VerifiedClaim is emitted to the royalty/ledger sink once a claim reaches
// the Approved state.
type VerifiedClaim struct {
	ClaimID     string  `json:"claim_id"`
	Claimant    string  `json:"claimant"`
	Kind        string  `json:"kind"`
	Tokens      float64 `json:"tokens"`
	ProofDigest string  `json:"proof_digest"`
}

// MintResult is consumed from the royalty/ledger sink to transition an
// Approved claim to Finalized.
type MintResult struct {
	ClaimID string `json:"claim_id"`
	TxID    string `json:"tx_id"`
}
