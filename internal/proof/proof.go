// Package proof implements the commit-claim-response structural proofs
// used to attest bandwidth contribution, uptime, geographic proximity,
// message freshness, and node uniqueness. These are not zk-SNARKs: the
// verifier checks structural well-formedness and freshness, not a
// succinct cryptographic argument. The authoritative check on any reward
// claim is the verifier quorum in internal/quorum.
package proof

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// Kind tags which claim a proof attests.
type Kind string

const (
	KindBandwidth  Kind = "bandwidth"
	KindUptime     Kind = "uptime"
	KindProximity  Kind = "proximity"
	KindFreshness  Kind = "freshness"
	KindUniqueness Kind = "uniqueness"
)

// commitmentMaxAge is the lifetime after which a commitment is rejected by
// any verifier, regardless of proof kind.
const commitmentMaxAge = time.Hour

// Commitment is the shared structure embedded by every proof variant:
// commitment_hash = sha256(secret || nonce), recorded at issuance.
type Commitment struct {
	Hash     string `json:"commitment_hash"`
	Nonce    string `json:"nonce"`
	IssuedAt int64  `json:"issued_at"`
	Kind     Kind   `json:"proof_type"`
}

func newCommitment(clock clockwork.Clock, kind Kind) (Commitment, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return Commitment{}, err
	}
	nonceBytes := make([]byte, 16)
	if _, err := rand.Read(nonceBytes); err != nil {
		return Commitment{}, err
	}
	nonceHex := hex.EncodeToString(nonceBytes)

	h := sha256.New()
	h.Write(secret)
	h.Write([]byte(nonceHex))

	return Commitment{
		Hash:     hex.EncodeToString(h.Sum(nil)),
		Nonce:    nonceHex,
		IssuedAt: clock.Now().Unix(),
		Kind:     kind,
	}, nil
}

// expired reports whether the commitment is older than commitmentMaxAge as
// of now.
func (c Commitment) expired(now time.Time) bool {
	age := now.Sub(time.Unix(c.IssuedAt, 0))
	return age > commitmentMaxAge
}

func hexSHA256(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// MerkleRoot hashes each leaf with SHA-256, then combines adjacent pairs as
// sha256(left_hex || right_hex), duplicating the last hash at any odd
// level, until a single root remains. The empty list hashes as
// sha256("empty").
func MerkleRoot(leaves []string) string {
	if len(leaves) == 0 {
		return hexSHA256([]byte("empty"))
	}

	hashes := make([]string, len(leaves))
	for i, leaf := range leaves {
		hashes[i] = hexSHA256([]byte(leaf))
	}

	for len(hashes) > 1 {
		next := make([]string, 0, (len(hashes)+1)/2)
		for i := 0; i < len(hashes); i += 2 {
			var combined string
			if i+1 < len(hashes) {
				combined = hashes[i] + hashes[i+1]
			} else {
				combined = hashes[i] + hashes[i]
			}
			next = append(next, hexSHA256([]byte(combined)))
		}
		hashes = next
	}

	return hashes[0]
}

// Generator produces proofs on behalf of one node, signing challenge
// responses under a stable long-lived secret key distinct from each
// proof's single-use commitment secret.
type Generator struct {
	nodeID    string
	secretKey []byte
	secretHex string
	clock     clockwork.Clock
}

// NewGenerator constructs a proof generator for nodeID, signing responses
// under secretKey (expected to be 32 bytes, never transmitted).
func NewGenerator(nodeID string, secretKey []byte, clock clockwork.Clock) *Generator {
	return &Generator{
		nodeID:    nodeID,
		secretKey: secretKey,
		secretHex: hex.EncodeToString(secretKey),
		clock:     clock,
	}
}

func (g *Generator) response(parts ...string) string {
	input := ""
	for _, p := range parts {
		input += p
	}
	input += g.secretHex
	return hexSHA256([]byte(input))
}

func fmtUint(v uint64) string {
	return fmt.Sprintf("%d", v)
}
