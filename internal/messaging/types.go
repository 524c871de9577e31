package messaging

import "encoding/json"

// ProofAttachment carries an optional internal/proof proof alongside a
// SecureMessage, tagged by kind so the recipient can dispatch to the
// matching verifier method.
type ProofAttachment struct {
	Kind string          `json:"kind"`
	Body json.RawMessage `json:"body"`
}

// SecureMessage is the wire shape of an encrypted peer-to-peer message:
// AES-256-GCM ciphertext and tag, hex-encoded, plus an optional proof
// attachment.
type SecureMessage struct {
	Sender        string           `json:"sender"`
	Recipient     string           `json:"recipient"`
	KindTag       string           `json:"kind_tag"`
	Ciphertext    string           `json:"ciphertext"`
	IV            string           `json:"iv"`
	AuthTag       string           `json:"auth_tag"`
	OptionalProof *ProofAttachment `json:"optional_proof,omitempty"`
	Timestamp     int64            `json:"timestamp"`
}
