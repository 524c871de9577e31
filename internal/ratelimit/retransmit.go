package ratelimit

import (
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/DCMX-Protocol/dcmx-mesh/internal/frame"
)

// Defaults for the retransmission schedule: timeout = RetryTimeout *
// BackoffFactor^retries, evicted without further attempts at MaxRetries.
const (
	DefaultRetryTimeout   = 2 * time.Second
	DefaultBackoffFactor  = 1.5
	DefaultMaxRetries     = 3
)

// retransmitEntry tracks one frame awaiting acknowledgement.
type retransmitEntry struct {
	frame    *frame.Frame
	retries  int
	lastSent time.Time
}

// RetransmitManager tracks frames awaiting acknowledgement and, on a
// caller-driven schedule, returns those due for resend with exponential
// backoff. It is safe for concurrent use by the receive path, the send
// path, and a periodic retransmit worker.
type RetransmitManager struct {
	mu            sync.Mutex
	clock         clockwork.Clock
	entries       map[uint16]*retransmitEntry
	retryTimeout  time.Duration
	backoffFactor float64
	maxRetries    int
}

// NewRetransmitManager constructs a manager with the given schedule.
func NewRetransmitManager(clock clockwork.Clock, retryTimeout time.Duration, backoffFactor float64, maxRetries int) *RetransmitManager {
	return &RetransmitManager{
		clock:         clock,
		entries:       make(map[uint16]*retransmitEntry),
		retryTimeout:  retryTimeout,
		backoffFactor: backoffFactor,
		maxRetries:    maxRetries,
	}
}

// Track begins tracking f, indexed by its sequence number, with zero
// retries and last-sent set to now.
func (m *RetransmitManager) Track(f *frame.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[f.Seq] = &retransmitEntry{
		frame:    f,
		retries:  0,
		lastSent: m.clock.Now(),
	}
}

// Ack removes the tracked entry for seq, if any, reporting whether one
// existed.
func (m *RetransmitManager) Ack(seq uint16) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[seq]; !ok {
		return false
	}
	delete(m.entries, seq)
	return true
}

// Due scans the tracked entries and returns the frames whose per-attempt
// timeout has elapsed, bumping their retry count and last-sent timestamp.
// Entries that have exhausted MaxRetries are evicted without being
// returned — the caller has no further obligation toward them.
func (m *RetransmitManager) Due() []*frame.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	var due []*frame.Frame

	for seq, e := range m.entries {
		timeout := backoffTimeout(m.retryTimeout, m.backoffFactor, e.retries)
		if now.Sub(e.lastSent) < timeout {
			continue
		}

		if e.retries >= m.maxRetries {
			delete(m.entries, seq)
			continue
		}

		e.retries++
		e.lastSent = now
		due = append(due, e.frame)
	}

	return due
}

// Len reports the number of frames currently awaiting acknowledgement.
func (m *RetransmitManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func backoffTimeout(base time.Duration, factor float64, retries int) time.Duration {
	return time.Duration(float64(base) * math.Pow(factor, float64(retries)))
}
