package messaging

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/DCMX-Protocol/dcmx-mesh/internal/log"
	"github.com/DCMX-Protocol/dcmx-mesh/internal/proof"
)

const ivLen = 12 // 96-bit GCM IV

// Messenger is one node's secure-messaging state: established peer
// sessions, keyed by peer ID, each guarded independently of the others.
type Messenger struct {
	selfID string
	clock  clockwork.Clock
	verify *proof.Verifier
	log    log.Logger

	mu       sync.Mutex
	sessions map[string]*SessionContext
}

// NewMessenger constructs a messenger for selfID, verifying attached
// proofs with verify.
func NewMessenger(selfID string, clock clockwork.Clock, verify *proof.Verifier, logger log.Logger) *Messenger {
	return &Messenger{
		selfID:   selfID,
		clock:    clock,
		verify:   verify,
		log:      logger.Named("messaging"),
		sessions: make(map[string]*SessionContext),
	}
}

// Establish derives a session key from a fresh ephemeral secret through the
// PBKDF2-style KDF salted with sha256(self_id || peer_id), and installs the
// resulting SessionContext, replacing any prior session with peerID.
func (m *Messenger) Establish(peerID string) (*SessionContext, error) {
	ephemeral := make([]byte, 32)
	if _, err := rand.Read(ephemeral); err != nil {
		return nil, err
	}

	sessionKey := deriveSessionKey(m.selfID, peerID, ephemeral)
	ctx := newSessionContext(peerID, sessionKey)

	m.mu.Lock()
	m.sessions[peerID] = ctx
	m.mu.Unlock()

	return ctx, nil
}

// InstallSession installs a session for peerID using a session key agreed
// on through an out-of-band channel (e.g. a provisioning step that
// exchanged each side's ephemeral secret directly), replacing any prior
// session with peerID.
func (m *Messenger) InstallSession(peerID string, sessionKey []byte) *SessionContext {
	ctx := newSessionContext(peerID, sessionKey)

	m.mu.Lock()
	m.sessions[peerID] = ctx
	m.mu.Unlock()

	return ctx
}

// Session returns the established session for peerID, if any.
func (m *Messenger) Session(peerID string) *SessionContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[peerID]
}

// Authenticate verifies a uniqueness proof for peerID; on success the
// session is marked authenticated. Only authenticated peers may submit
// reward proofs — unauthenticated peers may still send opaque data frames
// subject to rate limits, a restriction enforced by callers, not here.
func (m *Messenger) Authenticate(peerID string, uniquenessProof *proof.UniquenessProof, difficultyBits int) bool {
	ctx := m.Session(peerID)
	if ctx == nil {
		return false
	}
	if !m.verify.VerifyUniquenessProof(uniquenessProof, difficultyBits) {
		return false
	}

	ctx.mu.Lock()
	ctx.Authenticated = true
	ctx.AuthMethod = "uniqueness"
	ctx.mu.Unlock()
	return true
}

// Encrypt serializes payload to JSON, encrypts it under the peer's session
// key with a fresh IV, and stamps the resulting SecureMessage.
func (m *Messenger) Encrypt(peerID, kindTag string, payload interface{}, attachedProof *ProofAttachment) (*SecureMessage, error) {
	ctx := m.Session(peerID)
	if ctx == nil {
		return nil, ErrNoSession
	}

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(ctx.SessionKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	tagLen := gcm.Overhead()
	ciphertext := sealed[:len(sealed)-tagLen]
	authTag := sealed[len(sealed)-tagLen:]

	msg := &SecureMessage{
		Sender:        m.selfID,
		Recipient:     peerID,
		KindTag:       kindTag,
		Ciphertext:    hex.EncodeToString(ciphertext),
		IV:            hex.EncodeToString(iv),
		AuthTag:       hex.EncodeToString(authTag),
		OptionalProof: attachedProof,
		Timestamp:     m.clock.Now().Unix(),
	}

	ctx.mu.Lock()
	ctx.TxCount++
	ctx.mu.Unlock()

	return msg, nil
}

// Decrypt validates the session and replay guard, GCM-decrypts, optionally
// verifies an attached proof, and returns the JSON payload bytes.
func (m *Messenger) Decrypt(msg *SecureMessage, verifyProof bool) ([]byte, error) {
	ctx := m.Session(msg.Sender)
	if ctx == nil {
		return nil, ErrNoSession
	}

	if ctx.seenOrRecord(msg.IV) {
		return nil, ErrReplay
	}

	iv, err := hex.DecodeString(msg.IV)
	if err != nil {
		return nil, ErrAuthTag
	}
	ciphertext, err := hex.DecodeString(msg.Ciphertext)
	if err != nil {
		return nil, ErrAuthTag
	}
	authTag, err := hex.DecodeString(msg.AuthTag)
	if err != nil {
		return nil, ErrAuthTag
	}

	block, err := aes.NewCipher(ctx.SessionKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	sealed := append(append([]byte(nil), ciphertext...), authTag...)
	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, ErrAuthTag
	}

	if verifyProof && msg.OptionalProof != nil {
		if !m.verifyAttachment(msg.OptionalProof) {
			return nil, ErrProofRejected
		}
	}

	ctx.mu.Lock()
	ctx.RxCount++
	ctx.mu.Unlock()

	return plaintext, nil
}

func (m *Messenger) verifyAttachment(att *ProofAttachment) bool {
	switch att.Kind {
	case string(proof.KindBandwidth):
		var p proof.BandwidthProof
		if json.Unmarshal(att.Body, &p) != nil {
			return false
		}
		return m.verify.VerifyBandwidthProof(&p, 0)
	case string(proof.KindUptime):
		var p proof.UptimeProof
		if json.Unmarshal(att.Body, &p) != nil {
			return false
		}
		return m.verify.VerifyUptimeProof(&p)
	case string(proof.KindProximity):
		var p proof.ProximityProof
		if json.Unmarshal(att.Body, &p) != nil {
			return false
		}
		return m.verify.VerifyProximityProof(&p)
	case string(proof.KindFreshness):
		var p proof.FreshnessProof
		if json.Unmarshal(att.Body, &p) != nil {
			return false
		}
		return m.verify.VerifyFreshnessProof(&p)
	case string(proof.KindUniqueness):
		var p proof.UniquenessProof
		if json.Unmarshal(att.Body, &p) != nil {
			return false
		}
		return m.verify.VerifyUniquenessProof(&p, 0)
	default:
		m.log.Debugw("unknown proof attachment kind", "kind", att.Kind)
		return false
	}
}
