// Package frame implements the wire codec for mesh data-plane packets: a
// fixed header, null-padded node identifiers, a truncated SHA-256
// checksum, and an XOR-stripe forward-error-correction block.
package frame

import (
	"crypto/sha256"
	"encoding/binary"
)

// Kind identifies the type of a mesh frame.
type Kind uint8

// Frame kinds, matching the wire encoding exactly.
const (
	KindRouteRequest    Kind = 0x01
	KindRouteReply      Kind = 0x02
	KindRouteError      Kind = 0x03
	KindData            Kind = 0x04
	KindAck             Kind = 0x05
	KindBeacon          Kind = 0x06
	KindContentAnnounce Kind = 0x07
	KindBandwidthProof  Kind = 0x08
	KindUptimeProof     Kind = 0x09
)

func (k Kind) String() string {
	switch k {
	case KindRouteRequest:
		return "RouteRequest"
	case KindRouteReply:
		return "RouteReply"
	case KindRouteError:
		return "RouteError"
	case KindData:
		return "Data"
	case KindAck:
		return "Ack"
	case KindBeacon:
		return "Beacon"
	case KindContentAnnounce:
		return "ContentAnnounce"
	case KindBandwidthProof:
		return "BandwidthProof"
	case KindUptimeProof:
		return "UptimeProof"
	default:
		return "Unknown"
	}
}

// NodeID is the opaque per-process node identifier, rendered as ASCII text
// and truncated to idLen bytes on the wire.
type NodeID string

// BroadcastID is the reserved destination meaning "all neighbors."
const BroadcastID NodeID = "*broadcast*"

const (
	idLen          = 16
	headerLen      = 5 // kind(1) + seq(2) + hops(1) + ttl(1)
	checksumLen    = 8
	fecLenFieldLen = 2
	// minFrameLen is the wire size before FEC and payload bytes: header +
	// src + dst + checksum + fec_len.
	minFrameLen = headerLen + idLen*2 + checksumLen + fecLenFieldLen

	// MaxFrameBytes is the hard ceiling of the radio link on a whole encoded
	// frame: fixed fields, FEC block and payload together.
	MaxFrameBytes = 200
)

// Frame is a single mesh data-plane packet.
type Frame struct {
	Kind     Kind
	Src      NodeID
	Dst      NodeID
	Seq      uint16
	Hops     uint8
	TTL      uint8
	Payload  []byte
	FEC      []byte
	Checksum uint64
}

func padID(id NodeID) [idLen]byte {
	var out [idLen]byte
	b := []byte(id)
	if len(b) > idLen {
		b = b[:idLen]
	}
	copy(out[:], b)
	return out
}

func unpadID(b []byte) NodeID {
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	return NodeID(b[:n])
}

func header(kind Kind, seq uint16, hops, ttl uint8) [headerLen]byte {
	var h [headerLen]byte
	h[0] = byte(kind)
	binary.BigEndian.PutUint16(h[1:3], seq)
	h[3] = hops
	h[4] = ttl
	return h
}

// computeChecksum implements checksum == sha256(header || src || dst || payload)[:8].
func computeChecksum(kind Kind, seq uint16, hops, ttl uint8, src, dst NodeID, payload []byte) uint64 {
	h := header(kind, seq, hops, ttl)
	srcB := padID(src)
	dstB := padID(dst)

	hasher := sha256.New()
	hasher.Write(h[:])
	hasher.Write(srcB[:])
	hasher.Write(dstB[:])
	hasher.Write(payload)
	sum := hasher.Sum(nil)

	return binary.BigEndian.Uint64(sum[:8])
}

// Verify recomputes the checksum over the frame's fields and reports
// whether it matches the stored checksum. Never panics on adversarial
// input.
func Verify(f *Frame) bool {
	want := computeChecksum(f.Kind, f.Seq, f.Hops, f.TTL, f.Src, f.Dst, f.Payload)
	return want == f.Checksum
}

// Encode serializes a frame per the wire layout. The checksum field is
// recomputed from the frame's fields rather than trusted from the caller.
func Encode(f *Frame) ([]byte, error) {
	if len(f.FEC) > 0xFFFF {
		return nil, ErrOversized
	}

	checksum := computeChecksum(f.Kind, f.Seq, f.Hops, f.TTL, f.Src, f.Dst, f.Payload)

	total := minFrameLen + len(f.FEC) + len(f.Payload)
	if total > MaxFrameBytes {
		return nil, ErrOversized
	}

	out := make([]byte, 0, total)
	h := header(f.Kind, f.Seq, f.Hops, f.TTL)
	out = append(out, h[:]...)

	srcB := padID(f.Src)
	dstB := padID(f.Dst)
	out = append(out, srcB[:]...)
	out = append(out, dstB[:]...)

	var ckBuf [checksumLen]byte
	binary.BigEndian.PutUint64(ckBuf[:], checksum)
	out = append(out, ckBuf[:]...)

	var fecLenBuf [fecLenFieldLen]byte
	binary.BigEndian.PutUint16(fecLenBuf[:], uint16(len(f.FEC)))
	out = append(out, fecLenBuf[:]...)

	out = append(out, f.FEC...)
	out = append(out, f.Payload...)

	return out, nil
}

// Decode parses a frame from wire bytes. It validates minimum length and
// internal field widths but does not check the checksum — call Verify
// separately. Decode never panics on adversarial input.
func Decode(data []byte) (*Frame, error) {
	if len(data) < minFrameLen {
		return nil, ErrMalformed
	}

	kind := Kind(data[0])
	seq := binary.BigEndian.Uint16(data[1:3])
	hops := data[3]
	ttl := data[4]

	off := headerLen
	src := unpadID(data[off : off+idLen])
	off += idLen
	dst := unpadID(data[off : off+idLen])
	off += idLen

	checksum := binary.BigEndian.Uint64(data[off : off+checksumLen])
	off += checksumLen

	fecLen := int(binary.BigEndian.Uint16(data[off : off+fecLenFieldLen]))
	off += fecLenFieldLen

	if off+fecLen > len(data) {
		return nil, ErrMalformed
	}
	fec := append([]byte(nil), data[off:off+fecLen]...)
	off += fecLen

	payload := append([]byte(nil), data[off:]...)

	return &Frame{
		Kind:     kind,
		Src:      src,
		Dst:      dst,
		Seq:      seq,
		Hops:     hops,
		TTL:      ttl,
		Payload:  payload,
		FEC:      fec,
		Checksum: checksum,
	}, nil
}
