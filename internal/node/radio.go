package node

import (
	"github.com/DCMX-Protocol/dcmx-mesh/internal/frame"
	"github.com/DCMX-Protocol/dcmx-mesh/internal/metrics"
	"github.com/DCMX-Protocol/dcmx-mesh/internal/routing"
)

// RadioAdapter is the narrow external collaborator a node transmits
// through and receives from: already-framed bytes in, already-framed
// bytes (plus link-quality telemetry) out. Implementations own the
// narrowband modem, its duty-cycle limits, and any physical-layer
// retries; none of that is visible here.
type RadioAdapter interface {
	// Transmit hands frameBytes to the radio for delivery toward target
	// (frame.BroadcastID for a broadcast). Failures are reported but not
	// retried by the adapter — retransmission is this module's concern.
	Transmit(frameBytes []byte, target frame.NodeID) error

	// Receive blocks until a frame arrives, returning its raw bytes and
	// the link-quality telemetry the radio measured for it.
	Receive() (frameBytes []byte, rssi int32, snr float32, err error)
}

// radioTransport adapts a RadioAdapter to routing.Transport, performing
// frame encoding and FEC attachment on the send path.
type radioTransport struct {
	radio RadioAdapter
}

func newRadioTransport(radio RadioAdapter) *radioTransport {
	return &radioTransport{radio: radio}
}

func (t *radioTransport) encode(f *frame.Frame) ([]byte, error) {
	payload, fec := frame.FECEncode(f.Payload)
	f.Payload = payload
	f.FEC = fec
	return frame.Encode(f)
}

func (t *radioTransport) Broadcast(f *frame.Frame) error {
	b, err := t.encode(f)
	if err != nil {
		metrics.FramesDropped.WithLabelValues("oversized").Inc()
		return err
	}
	if err := t.radio.Transmit(b, frame.BroadcastID); err != nil {
		return err
	}
	metrics.FramesSent.WithLabelValues(f.Kind.String()).Inc()
	return nil
}

func (t *radioTransport) Unicast(f *frame.Frame, nextHop frame.NodeID) error {
	b, err := t.encode(f)
	if err != nil {
		metrics.FramesDropped.WithLabelValues("oversized").Inc()
		return err
	}
	if err := t.radio.Transmit(b, nextHop); err != nil {
		return err
	}
	metrics.FramesSent.WithLabelValues(f.Kind.String()).Inc()
	return nil
}

var _ routing.Transport = (*radioTransport)(nil)
