package proof

import "github.com/jonboulle/clockwork"

// Verifier checks proofs without ever learning the generator's secrets —
// every Verify* method inspects only the fields transmitted on the wire.
type Verifier struct {
	clock clockwork.Clock
}

// NewVerifier constructs a verifier using clock to evaluate commitment
// freshness.
func NewVerifier(clock clockwork.Clock) *Verifier {
	return &Verifier{clock: clock}
}
