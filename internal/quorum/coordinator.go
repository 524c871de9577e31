// Package quorum implements the M-of-N verifier-approval workflow gating
// reward-claim finalization: claim submission, eligible-verifier selection,
// approval accumulation, and VerifiedClaim emission to an external sink.
package quorum

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"

	"github.com/DCMX-Protocol/dcmx-mesh/internal/log"
)

// DefaultQuorumSize is N, the number of verifiers a claim is delivered to.
const DefaultQuorumSize = 4

// DefaultApprovalThreshold is M, the number of approvals (and of valid
// proof checks) required for a claim to transition to Approved.
const DefaultApprovalThreshold = 3

// eligibleMultiplier caps the eligible-verifier candidate pool at 2N.
const eligibleMultiplier = 2

// minUptimePercent is the last-seen uptime floor for verifier eligibility.
const minUptimePercent = 90.0

// UptimeSource reports a peer's most recently accepted uptime proof
// percentage, if any has been recorded.
type UptimeSource interface {
	LastKnownUptime(peerID string) (pct float64, ok bool)
}

// Config configures a Coordinator's quorum thresholds.
type Config struct {
	QuorumSize        int
	ApprovalThreshold int
}

func (c Config) withDefaults() Config {
	if c.QuorumSize <= 0 {
		c.QuorumSize = DefaultQuorumSize
	}
	if c.ApprovalThreshold <= 0 {
		c.ApprovalThreshold = DefaultApprovalThreshold
	}
	return c
}

// Coordinator runs the verifier-quorum state machine for one node's claims.
type Coordinator struct {
	cfg      Config
	uptime   UptimeSource
	clock    clockwork.Clock
	log      log.Logger
	verified chan *VerifiedClaim

	mu        sync.Mutex
	claims    map[string]*RewardClaim
	approvals map[string]map[string]VerifierApproval
}

// NewCoordinator constructs a Coordinator. uptime supplies the eligibility
// data used to pick verifier candidates; when it is nil, EligibleVerifiers
// finds no candidate eligible and returns ErrNoEligibleVerifiers.
func NewCoordinator(cfg Config, uptime UptimeSource, clock clockwork.Clock, logger log.Logger) *Coordinator {
	return &Coordinator{
		cfg:       cfg.withDefaults(),
		uptime:    uptime,
		clock:     clock,
		log:       logger.Named("quorum"),
		verified:  make(chan *VerifiedClaim, 1),
		claims:    make(map[string]*RewardClaim),
		approvals: make(map[string]map[string]VerifierApproval),
	}
}

// Verified is the channel on which VerifiedClaim events are emitted for an
// external royalty/ledger sink to mint against.
func (c *Coordinator) Verified() <-chan *VerifiedClaim {
	return c.verified
}

func validateClaimFields(claimant, kind, subjectHash string, tokensClaimed float64) error {
	var errs *multierror.Error
	if claimant == "" {
		errs = multierror.Append(errs, fmt.Errorf("claimant must not be empty"))
	}
	if kind == "" {
		errs = multierror.Append(errs, fmt.Errorf("kind must not be empty"))
	}
	if subjectHash == "" {
		errs = multierror.Append(errs, fmt.Errorf("subject_hash must not be empty"))
	}
	if tokensClaimed <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("tokens_claimed must be positive, got %f", tokensClaimed))
	}
	return errs.ErrorOrNil()
}

// SubmitClaim creates a new RewardClaim, or — when claimID names a claim
// already Pending or Approved — atomically replaces its proof payload and
// token amount. Resubmitting a Finalized claim is rejected.
func (c *Coordinator) SubmitClaim(claimID, claimant, kind, subjectHash string, tokensClaimed float64, proofPayload json.RawMessage) (*RewardClaim, error) {
	if err := validateClaimFields(claimant, kind, subjectHash, tokensClaimed); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if claimID != "" {
		if existing, ok := c.claims[claimID]; ok {
			if existing.State == StateFinalized {
				return nil, ErrAlreadyFinalized
			}
			existing.TokensClaimed = tokensClaimed
			existing.ProofPayload = proofPayload
			return cloneClaim(existing), nil
		}
	} else {
		claimID = uuid.New().String()
	}

	claim := &RewardClaim{
		ClaimID:       claimID,
		Claimant:      claimant,
		Kind:          kind,
		SubjectHash:   subjectHash,
		TokensClaimed: tokensClaimed,
		ProofPayload:  proofPayload,
		State:         StatePending,
		CreatedAt:     c.clock.Now(),
	}
	c.claims[claimID] = claim
	c.approvals[claimID] = make(map[string]VerifierApproval)

	c.log.Debugw("reward claim submitted", "claim_id", claimID, "claimant", claimant, "kind", kind)

	return cloneClaim(claim), nil
}

// EligibleVerifiers selects, from candidates, the peers whose last recorded
// uptime claim is at least minUptimePercent, sorted by uptime descending
// and capped at 2N entries.
func (c *Coordinator) EligibleVerifiers(candidates []string) ([]string, error) {
	type scored struct {
		id  string
		pct float64
	}

	var eligible []scored
	for _, id := range candidates {
		if c.uptime == nil {
			continue
		}
		pct, ok := c.uptime.LastKnownUptime(id)
		if !ok || pct < minUptimePercent {
			continue
		}
		eligible = append(eligible, scored{id: id, pct: pct})
	}

	if len(eligible) == 0 {
		return nil, ErrNoEligibleVerifiers
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].pct > eligible[j].pct
	})

	capped := c.cfg.QuorumSize * eligibleMultiplier
	if len(eligible) > capped {
		eligible = eligible[:capped]
	}

	out := make([]string, len(eligible))
	for i, e := range eligible {
		out[i] = e.id
	}
	return out, nil
}

// RecordApproval records one verifier's verdict on claimID. Duplicate
// approvals from the same verifier replace its prior verdict rather than
// double-counting. The claim transitions to Approved the first moment
// approved and proof_valid counts both reach M, or to Rejected once
// rejections reach M.
func (c *Coordinator) RecordApproval(approval VerifierApproval) (*RewardClaim, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	claim, ok := c.claims[approval.ClaimID]
	if !ok {
		return nil, ErrClaimNotFound
	}
	if claim.State == StateFinalized {
		return nil, ErrAlreadyFinalized
	}
	if claim.State == StateApproved || claim.State == StateRejected {
		return cloneClaim(claim), nil
	}

	c.approvals[claim.ClaimID][approval.VerifierID] = approval

	var approved, rejected, proofValid int
	for _, a := range c.approvals[claim.ClaimID] {
		if a.Approve {
			approved++
		} else {
			rejected++
		}
		if a.ProofValid {
			proofValid++
		}
	}
	claim.ApprovedCount = approved
	claim.RejectedCount = rejected
	claim.ProofValidCount = proofValid

	m := c.cfg.ApprovalThreshold
	switch {
	case approved >= m && proofValid >= m:
		claim.State = StateApproved
		claim.ApprovedAt = c.clock.Now()
		c.emitVerified(claim)
	case rejected >= m:
		claim.State = StateRejected
	}

	return cloneClaim(claim), nil
}

func (c *Coordinator) emitVerified(claim *RewardClaim) {
	vc := &VerifiedClaim{
		ClaimID:     claim.ClaimID,
		Claimant:    claim.Claimant,
		Kind:        claim.Kind,
		Tokens:      claim.TokensClaimed,
		ProofDigest: proofDigest(claim.ProofPayload),
	}
	c.log.Infow("reward claim approved by quorum", "claim_id", claim.ClaimID, "tokens", claim.TokensClaimed)

	select {
	case c.verified <- vc:
	default:
		// A prior VerifiedClaim is still unconsumed; drop and replace so the
		// sink always observes the latest pending emission rather than
		// blocking the coordinator.
		select {
		case <-c.verified:
		default:
		}
		c.verified <- vc
	}
}

// Finalize transitions an Approved claim to Finalized once the royalty sink
// confirms a mint. It is idempotent: finalizing an already-Finalized claim
// is a no-op that returns the claim unchanged rather than an error, so
// delivering the same MintResult twice produces no additional finalization.
func (c *Coordinator) Finalize(result MintResult) (*RewardClaim, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	claim, ok := c.claims[result.ClaimID]
	if !ok {
		return nil, ErrClaimNotFound
	}
	if claim.State == StateFinalized {
		return cloneClaim(claim), nil
	}
	if claim.State != StateApproved {
		return nil, ErrNotApproved
	}

	claim.State = StateFinalized
	claim.MintTxID = result.TxID

	return cloneClaim(claim), nil
}

// Claim returns a snapshot of claimID's current state.
func (c *Coordinator) Claim(claimID string) (*RewardClaim, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	claim, ok := c.claims[claimID]
	if !ok {
		return nil, ErrClaimNotFound
	}
	return cloneClaim(claim), nil
}

func cloneClaim(c *RewardClaim) *RewardClaim {
	clone := *c
	return &clone
}

func proofDigest(payload json.RawMessage) string {
	if len(payload) == 0 {
		return ""
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
