package bwm

// tags.go implements the out-of-band packet tags the queue discipline
// and the CAWC feedback side-channel key on. Grounded on
// tenant-id-tag.{h,cc}, flow-id-tag.{h,cc}, and
// flow-weight-tag.{h,cc} in src/bandwidth-manager/model/.
// ns-3's Tag::Serialize/Deserialize pair writes fixed-width
// fields through a TagBuffer; here the analogous operation is a plain
// byte-slice codec, matching mrnes's own small self-contained marshal
// helpers (compare mrnes's ReadXCfg/WriteToFile pattern of one file
// owning all wire-format concerns for one concept).

import (
	"encoding/binary"
	"fmt"
	"math"
)

// TenantIDTag carries the tenant identity of a packet out of band, so
// BwmQueueDisc's classifier can route without inspecting the packet
// payload.
type TenantIDTag struct {
	TenantID uint32
}

// Serialize writes the tag in the tags' common wire shape: big-to-
// little, i.e. the value is produced in native order and stored
// little-endian on the wire.
func (t TenantIDTag) Serialize() []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, t.TenantID)
	return buf
}

// DeserializeTenantIDTag parses the wire form written by Serialize.
func DeserializeTenantIDTag(b []byte) (TenantIDTag, error) {
	if len(b) < 4 {
		return TenantIDTag{}, fmt.Errorf("bwm: short TenantIDTag buffer (%d bytes)", len(b))
	}
	return TenantIDTag{TenantID: binary.LittleEndian.Uint32(b)}, nil
}

// FlowIDTag carries the flow identity of a packet out of band. It
// doubles as the "traceId" carrier CAWC feedback looks up flows by.
type FlowIDTag struct {
	FlowID uint32
}

// Serialize writes the tag's wire form.
func (t FlowIDTag) Serialize() []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, t.FlowID)
	return buf
}

// DeserializeFlowIDTag parses the wire form written by Serialize.
func DeserializeFlowIDTag(b []byte) (FlowIDTag, error) {
	if len(b) < 4 {
		return FlowIDTag{}, fmt.Errorf("bwm: short FlowIDTag buffer (%d bytes)", len(b))
	}
	return FlowIDTag{FlowID: binary.LittleEndian.Uint32(b)}, nil
}

// FlowWeightTag carries a per-packet WFQ weight override, consulted by
// WfqFlow in place of its static default weight when present.
type FlowWeightTag struct {
	Weight float64
}

// Serialize writes the tag's wire form as an 8-byte IEEE-754 double.
func (t FlowWeightTag) Serialize() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(t.Weight))
	return buf
}

// DeserializeFlowWeightTag parses the wire form written by Serialize.
func DeserializeFlowWeightTag(b []byte) (FlowWeightTag, error) {
	if len(b) < 8 {
		return FlowWeightTag{}, fmt.Errorf("bwm: short FlowWeightTag buffer (%d bytes)", len(b))
	}
	return FlowWeightTag{Weight: math.Float64frombits(binary.LittleEndian.Uint64(b))}, nil
}

// Tag is the minimal interface the queue discs and CAWC side-channel
// require of an out-of-band packet tag: a fixed wire representation.
// TenantIDTag, FlowIDTag and FlowWeightTag implement it; PacketTags
// does not.
type Tag interface {
	Serialize() []byte
}

// PacketTags bundles the out-of-band metadata a single simulated
// packet carries through the core: its tenant and flow identity, and
// an optional WFQ weight override. A nil WeightTag means "use the
// flow's static default weight".
type PacketTags struct {
	Tenant    TenantIDTag
	Flow      FlowIDTag
	WeightTag *FlowWeightTag

	// Protocol and TOS mirror the IP header fields the CAWC
	// side-channel keys on: protocol 0xFD and TOS 0x80 mark a CAWC
	// feedback datagram rather than ordinary traffic.
	Protocol byte
	TOS      byte

	// ECNCE marks that this packet was marked congestion-experienced
	// by the network, feeding the CAWC scoreboard's CEB counter.
	ECNCE bool

	// Size is an IP payload size in bytes carried with the tags. The
	// queue discs' byte accounting and the CAWC scoreboard's CEB/NMB
	// tally read Packet.Size, not this field.
	Size int
}

// CAWCProtocol and CAWCTOS are the reserved protocol number and TOS
// byte that mark a CAWC feedback datagram.
const (
	CAWCProtocol byte = 0xFD
	CAWCTOS      byte = 0x80
)

// IsCAWCFeedback reports whether these tags belong to a CAWC feedback
// datagram rather than ordinary tenant traffic.
func (p PacketTags) IsCAWCFeedback() bool {
	return p.Protocol == CAWCProtocol && p.TOS == CAWCTOS
}
