package proof

import "fmt"

// ProximityProof attests that a node is within distance_upper_bound_km of
// an (undisclosed) location, via a hashed grid cell and a challenge bound
// to the generator's secret key.
type ProximityProof struct {
	Commitment            Commitment `json:"commitment"`
	DistanceUpperBoundKm   float64    `json:"distance_upper_bound_km"`
	RegionHash             string     `json:"region_hash"`
	ChallengeResponse      string     `json:"challenge_response"`
}

// GenerateProximityProof builds a proximity proof for (lat, lon) bounded
// by distanceBoundKm. The grid cell is sized max(1, floor(distanceBoundKm
// / 1.11)) hundredths of a degree — 0.01 degree is approximately 1.11 km.
func (g *Generator) GenerateProximityProof(lat, lon, distanceBoundKm float64) (*ProximityProof, error) {
	commitment, err := newCommitment(g.clock, KindProximity)
	if err != nil {
		return nil, err
	}

	gridSize := int64(distanceBoundKm / 1.11)
	if gridSize < 1 {
		gridSize = 1
	}

	latMin := int64(lat*100) - gridSize
	latMax := int64(lat*100) + gridSize
	lonMin := int64(lon*100) - gridSize
	lonMax := int64(lon*100) + gridSize

	salt, err := randomHex(16)
	if err != nil {
		return nil, err
	}
	regionData := fmt.Sprintf("%d,%d,%d,%d:%s", latMin, latMax, lonMin, lonMax, salt)
	regionHash := hexSHA256([]byte(regionData))

	challenge := hexSHA256([]byte(fmt.Sprintf("%d%d", latMin, lonMin)))
	response := g.response(challenge)

	return &ProximityProof{
		Commitment:           commitment,
		DistanceUpperBoundKm: distanceBoundKm,
		RegionHash:           regionHash,
		ChallengeResponse:    response,
	}, nil
}

// VerifyProximityProof rejects distance bounds outside (0, 10000] km and
// non-64-hex region hashes or challenge responses.
func (v *Verifier) VerifyProximityProof(p *ProximityProof) bool {
	if p == nil {
		return false
	}
	if p.DistanceUpperBoundKm <= 0 || p.DistanceUpperBoundKm > 10000 {
		return false
	}
	if len(p.RegionHash) != 64 {
		return false
	}
	if len(p.ChallengeResponse) != 64 {
		return false
	}
	if p.Commitment.expired(v.clock.Now()) {
		return false
	}
	return true
}
