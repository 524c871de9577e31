// Package messaging implements AEAD-encrypted, replay-guarded peer
// sessions and the proof-gated authentication handshake layered on top of
// internal/proof's uniqueness proof.
package messaging

import (
	"crypto/sha256"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/crypto/pbkdf2"
)

// kdfIterations matches the 100k-iteration PBKDF2-style session-key
// derivation.
const kdfIterations = 100_000

// sessionKeyLen is the AES-256 key length in bytes.
const sessionKeyLen = 32

// ivReplayCapacity bounds the per-session replay guard independent of any
// time-based eviction.
const ivReplayCapacity = 8192

// SessionContext is the per-peer security state: the derived session key,
// authentication status, counters, and the bounded IV replay guard.
type SessionContext struct {
	PeerID            string
	SessionKey        []byte
	Authenticated     bool
	AuthMethod        string
	TxCount           uint64
	RxCount           uint64

	mu      sync.Mutex
	seenIVs *lru.Cache
}

func deriveSessionKey(selfID, peerID string, ephemeralSecret []byte) []byte {
	salt := sha256.Sum256([]byte(selfID + peerID))
	return pbkdf2.Key(ephemeralSecret, salt[:], kdfIterations, sessionKeyLen, sha256.New)
}

func newSessionContext(peerID string, sessionKey []byte) *SessionContext {
	cache, err := lru.New(ivReplayCapacity)
	if err != nil {
		panic(err)
	}
	return &SessionContext{
		PeerID:     peerID,
		SessionKey: sessionKey,
		seenIVs:    cache,
	}
}

// seenOrRecord reports whether iv was already observed under this session,
// recording it if not.
func (s *SessionContext) seenOrRecord(iv string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seenIVs.Contains(iv) {
		return true
	}
	s.seenIVs.Add(iv, struct{}{})
	return false
}
