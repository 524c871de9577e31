package proof

// BandwidthProof attests bytes served without revealing which content was
// served: a Merkle root over the content hashes, plus challenge/response
// pairs recomputable only by holders of the generator's secret key.
type BandwidthProof struct {
	Commitment  Commitment `json:"commitment"`
	BytesServed uint64     `json:"byte_count"`
	MerkleRoot  string     `json:"merkle_root"`
	Challenges  []string   `json:"challenges"`
	Responses   []string   `json:"responses"`
}

// DefaultBandwidthChallengeCount is the number of challenge/response pairs
// generated when the caller does not specify one.
const DefaultBandwidthChallengeCount = 5

// GenerateBandwidthProof builds a bandwidth proof over bytesServed and the
// content hashes served, with challengeCount challenge/response pairs.
func (g *Generator) GenerateBandwidthProof(bytesServed uint64, contentHashes []string, challengeCount int) (*BandwidthProof, error) {
	if challengeCount <= 0 {
		challengeCount = DefaultBandwidthChallengeCount
	}

	commitment, err := newCommitment(g.clock, KindBandwidth)
	if err != nil {
		return nil, err
	}

	root := MerkleRoot(contentHashes)

	challenges := make([]string, challengeCount)
	responses := make([]string, challengeCount)
	for i := range challenges {
		c, err := randomHex(16)
		if err != nil {
			return nil, err
		}
		challenges[i] = c
		responses[i] = g.response(c, fmtUint(bytesServed), root)
	}

	return &BandwidthProof{
		Commitment:  commitment,
		BytesServed: bytesServed,
		MerkleRoot:  root,
		Challenges:  challenges,
		Responses:   responses,
	}, nil
}

// VerifyBandwidthProof rejects claims below minBytes, malformed Merkle
// roots, mismatched challenge/response vector lengths, or commitments past
// their one-hour lifetime. Acceptance attests only to structural
// well-formedness and freshness; the authoritative check is the verifier
// quorum.
func (v *Verifier) VerifyBandwidthProof(p *BandwidthProof, minBytes uint64) bool {
	if p == nil {
		return false
	}
	if p.BytesServed < minBytes {
		return false
	}
	if len(p.MerkleRoot) != 64 {
		return false
	}
	if len(p.Challenges) != len(p.Responses) {
		return false
	}
	if p.Commitment.expired(v.clock.Now()) {
		return false
	}
	return true
}
