package proof

import (
	"github.com/DCMX-Protocol/dcmx-mesh/internal/routing"
)

// DefaultNonceChainDepth is the chain length used when the caller does not
// specify one; scenario coverage requires depth >= 2.
const DefaultNonceChainDepth = 5

// FreshnessProof attests that a message was produced recently without a
// centralized timestamp authority, via a hash chain anchored to the
// message.
//
// Chain is stored ascending: Chain[0] is a fresh random seed and
// Chain[i+1] == sha256(Chain[i]) for every i, with Chain[len-1] — the
// element requiring every prior hash to exist — the newest. TimestampProof
// binds the message hash to that newest element. This ordering is chosen
// over literally reversing the chain because a reversed array cannot
// satisfy a forward hash relation (hashing is not invertible); it is the
// only reading of the chain-construction text consistent with Testable
// Property #6.
type FreshnessProof struct {
	Commitment     Commitment `json:"commitment"`
	MessageHash    string     `json:"message_hash"`
	TimestampProof string     `json:"timestamp_proof"`
	Chain          []string   `json:"nonce_chain"`
}

// GenerateFreshnessProof builds a freshness proof over message with a
// chain of the given depth; a depth below 2 uses DefaultNonceChainDepth.
func (g *Generator) GenerateFreshnessProof(message string, depth int) (*FreshnessProof, error) {
	if depth < 2 {
		depth = DefaultNonceChainDepth
	}

	commitment, err := newCommitment(g.clock, KindFreshness)
	if err != nil {
		return nil, err
	}

	seed, err := randomHex(16)
	if err != nil {
		return nil, err
	}

	chain := make([]string, depth)
	chain[0] = seed
	for i := 1; i < depth; i++ {
		chain[i] = hexSHA256([]byte(chain[i-1]))
	}

	messageHash := hexSHA256([]byte(message))
	timestampProof := hexSHA256([]byte(messageHash + chain[len(chain)-1]))

	return &FreshnessProof{
		Commitment:     commitment,
		MessageHash:    messageHash,
		TimestampProof: timestampProof,
		Chain:          chain,
	}, nil
}

// ToClaim projects a FreshnessProof into the narrow wire shape
// internal/routing consumes for content announcements.
func (p *FreshnessProof) ToClaim() routing.FreshnessClaim {
	return routing.FreshnessClaim{
		MessageHash:    p.MessageHash,
		Chain:          append([]string(nil), p.Chain...),
		TimestampProof: p.TimestampProof,
		IssuedAt:       p.Commitment.IssuedAt,
	}
}

// VerifyFreshnessProof recomputes the hash chain end-to-end; any break, a
// chain shorter than 2, or an expired commitment rejects.
func (v *Verifier) VerifyFreshnessProof(p *FreshnessProof) bool {
	if p == nil {
		return false
	}
	if len(p.Chain) < 2 {
		return false
	}
	for i := 0; i < len(p.Chain)-1; i++ {
		if hexSHA256([]byte(p.Chain[i])) != p.Chain[i+1] {
			return false
		}
	}
	if len(p.MessageHash) != 64 {
		return false
	}
	if p.Commitment.expired(v.clock.Now()) {
		return false
	}
	return true
}

// VerifyFreshness implements routing.FreshnessVerifier over the narrow
// wire claim carried on a ContentAnnounce frame.
func (v *Verifier) VerifyFreshness(claim routing.FreshnessClaim, message string) bool {
	if len(claim.Chain) < 2 {
		return false
	}
	for i := 0; i < len(claim.Chain)-1; i++ {
		if hexSHA256([]byte(claim.Chain[i])) != claim.Chain[i+1] {
			return false
		}
	}
	if len(claim.MessageHash) != 64 {
		return false
	}
	if claim.MessageHash != hexSHA256([]byte(message)) {
		return false
	}
	c := Commitment{IssuedAt: claim.IssuedAt}
	if c.expired(v.clock.Now()) {
		return false
	}
	return true
}
