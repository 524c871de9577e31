package proof

import "math"

// UptimeProof attests an uptime percentage over a measured period without
// revealing exact activity timestamps.
type UptimeProof struct {
	Commitment          Commitment `json:"commitment"`
	UptimePercentage    float64    `json:"uptime_percentage"`
	PeriodSeconds       int64      `json:"period_seconds"`
	BeaconRoot          string     `json:"beacon_root"`
	ParticipationCount  int        `json:"participation_count"`
	TotalBeacons        int        `json:"total_beacons"`
}

// GenerateUptimeProof builds an uptime proof from the beacon values heard
// over periodSeconds, claiming uptimePercentage.
func (g *Generator) GenerateUptimeProof(uptimePercentage float64, periodSeconds int64, beaconValues []string) (*UptimeProof, error) {
	commitment, err := newCommitment(g.clock, KindUptime)
	if err != nil {
		return nil, err
	}

	root := MerkleRoot(beaconValues)
	participation := len(beaconValues)
	totalBeacons := int(float64(participation)/(uptimePercentage/100.0) + 0.5)

	return &UptimeProof{
		Commitment:         commitment,
		UptimePercentage:   uptimePercentage,
		PeriodSeconds:      periodSeconds,
		BeaconRoot:         root,
		ParticipationCount: participation,
		TotalBeacons:       totalBeacons,
	}, nil
}

// VerifyUptimeProof rejects out-of-range claims, participation exceeding
// total beacons, or a derived uptime that disagrees with the claim by more
// than 5 percentage points.
func (v *Verifier) VerifyUptimeProof(p *UptimeProof) bool {
	if p == nil {
		return false
	}
	if p.UptimePercentage < 0 || p.UptimePercentage > 100 {
		return false
	}
	if p.ParticipationCount > p.TotalBeacons {
		return false
	}
	if p.TotalBeacons == 0 {
		return false
	}

	calculated := (float64(p.ParticipationCount) / float64(p.TotalBeacons)) * 100
	if math.Abs(calculated-p.UptimePercentage) > 5 {
		return false
	}
	if p.Commitment.expired(v.clock.Now()) {
		return false
	}
	return true
}
