// Package identity holds a node's long-term key material: a random secret
// used as the §4.4/§4.5 proof and session-key seed, and the derived node ID
// carried on the wire.
package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/DCMX-Protocol/dcmx-mesh/internal/frame"
)

// secretLen is the size of a freshly generated node secret.
const secretLen = 32

// NodeIdentity is the private/public pair for one node: a secret key kept
// off the wire entirely, and the NodeID/position broadcast to peers.
type NodeIdentity struct {
	ID        frame.NodeID
	SecretKey []byte
	Lat       float64
	Lon       float64
}

// New generates a fresh NodeIdentity with a random secret key and a node ID
// derived from it, at the given position.
func New(lat, lon float64) (*NodeIdentity, error) {
	secret := make([]byte, secretLen)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	return &NodeIdentity{
		ID:        deriveID(secret),
		SecretKey: secret,
		Lat:       lat,
		Lon:       lon,
	}, nil
}

// FromSecret builds a NodeIdentity from an existing secret (e.g. loaded
// from config), deriving the same NodeID New would have for that secret.
func FromSecret(secret []byte, lat, lon float64) *NodeIdentity {
	return &NodeIdentity{
		ID:        deriveID(secret),
		SecretKey: append([]byte(nil), secret...),
		Lat:       lat,
		Lon:       lon,
	}
}

// deriveID renders the first 8 bytes of sha256(secret) as a 16-character
// hex node ID, which exactly fills the wire's 16-byte null-padded NodeID
// field.
func deriveID(secret []byte) frame.NodeID {
	sum := sha256.Sum256(secret)
	return frame.NodeID(hex.EncodeToString(sum[:8]))
}

// SecretHex renders the secret key as a hex string for config persistence.
func (n *NodeIdentity) SecretHex() string {
	return hex.EncodeToString(n.SecretKey)
}

// ParseSecretHex decodes a hex-encoded secret key previously produced by
// SecretHex.
func ParseSecretHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("identity: invalid secret hex: %w", err)
	}
	return b, nil
}
