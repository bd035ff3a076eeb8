// Package event implements the 64-byte tagged event record and the
// expected/unexpected event rings that the endpoint posts them to,
// grounded on the teacher's api/events.go (typed event payloads) and
// internal/session's release/acquire discipline for cross-goroutine
// visibility without a lock on the read side.
package event

import "encoding/binary"

// RecordSize is the fixed size of every event record on the wire and in
// the mapped event queue.
const RecordSize = 64

// Type is the 8-bit event-kind tag stored in the last-but-one byte of a
// record.
type Type uint8

const (
	TypeNone Type = iota
	TypeIgnore
	TypeRecvConnectRequest
	TypeRecvConnectReply
	TypeRecvTiny
	TypeRecvSmall
	TypeRecvMediumFrag
	TypeRecvRndv
	TypeRecvNotify
	TypeRecvLibAck
	TypeRecvNackLib
	TypeSendMediumFragDone
	TypePullDone
)

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "None"
	case TypeIgnore:
		return "Ignore"
	case TypeRecvConnectRequest:
		return "RecvConnectRequest"
	case TypeRecvConnectReply:
		return "RecvConnectReply"
	case TypeRecvTiny:
		return "RecvTiny"
	case TypeRecvSmall:
		return "RecvSmall"
	case TypeRecvMediumFrag:
		return "RecvMediumFrag"
	case TypeRecvRndv:
		return "RecvRndv"
	case TypeRecvNotify:
		return "RecvNotify"
	case TypeRecvLibAck:
		return "RecvLibAck"
	case TypeRecvNackLib:
		return "RecvNackLib"
	case TypeSendMediumFragDone:
		return "SendMediumFragDone"
	case TypePullDone:
		return "PullDone"
	default:
		return "Unknown"
	}
}

// typeOffset/idOffset are the last two bytes of the record: the id is
// written last (a release store) so a reader polling for a nonzero id
// observes a fully written body, per the spec's event-id rule.
const (
	typeOffset = RecordSize - 2
	idOffset   = RecordSize - 1
)

// Record is a 64-byte tagged union. Payload fields are packed at offset 0
// by each event kind's own Encode/Decode helpers below.
type Record [RecordSize]byte

// ComputeID returns the nonzero slot id for ring index i: 1 + (i mod 255).
// The same slot never takes the same id in two consecutive laps around a
// 255-multiple-sized window, and 0 is reserved to mean "unfilled".
func ComputeID(index uint32) uint8 {
	return uint8(1 + (index % 255))
}

// Type returns the event type tag.
func (r *Record) Type() Type { return Type(r[typeOffset]) }

// ID returns the slot id; zero means the slot has not been (fully) written.
func (r *Record) ID() uint8 { return r[idOffset] }

// setHeader writes type then id last, matching the release-store ordering
// the spec requires: id must become nonzero only after the body is in place.
func (r *Record) setHeader(t Type, id uint8) {
	r[typeOffset] = byte(t)
	r[idOffset] = id // callers must ensure this assignment happens-after body writes
}

// PutUint32 / PutUint16 / PutUint64 are small helpers used by the
// per-event-kind encoders below to lay out fixed-width fields.
func putUint32(r *Record, off int, v uint32) { binary.BigEndian.PutUint32(r[off:off+4], v) }
func putUint16(r *Record, off int, v uint16) { binary.BigEndian.PutUint16(r[off:off+2], v) }
func getUint32(r *Record, off int) uint32    { return binary.BigEndian.Uint32(r[off : off+4]) }
func getUint16(r *Record, off int) uint16    { return binary.BigEndian.Uint16(r[off : off+2]) }

// RecvTinyPayload is the payload of a RecvTiny event: the message is
// inlined directly in the record since Tiny caps at 32 bytes.
type RecvTinyPayload struct {
	Peer       uint16
	SrcEndpoint uint8
	Seqnum     uint16
	PiggyAck   uint16
	Match      uint64
	Length     uint8
	Data       [32]byte
}

func EncodeRecvTiny(p RecvTinyPayload, id uint8) Record {
	var r Record
	putUint16(&r, 0, p.Peer)
	r[2] = p.SrcEndpoint
	putUint16(&r, 3, p.Seqnum)
	putUint16(&r, 5, p.PiggyAck)
	binary.BigEndian.PutUint64(r[7:15], p.Match)
	r[15] = p.Length
	copy(r[16:48], p.Data[:])
	r.setHeader(TypeRecvTiny, id)
	return r
}

func DecodeRecvTiny(r Record) RecvTinyPayload {
	var p RecvTinyPayload
	p.Peer = getUint16(&r, 0)
	p.SrcEndpoint = r[2]
	p.Seqnum = getUint16(&r, 3)
	p.PiggyAck = getUint16(&r, 5)
	p.Match = binary.BigEndian.Uint64(r[7:15])
	p.Length = r[15]
	copy(p.Data[:], r[16:48])
	return p
}

// RecvSmallPayload / RecvMediumFragPayload / RecvRndvPayload reference a
// reserved recvq slot by byte offset rather than inlining the payload.
type RecvWithRecvqPayload struct {
	Peer        uint16
	SrcEndpoint uint8
	Seqnum      uint16
	PiggyAck    uint16
	Match       uint64
	Length      uint32
	RecvqOffset uint32
}

func encodeRecvWithRecvq(t Type, p RecvWithRecvqPayload, id uint8) Record {
	var r Record
	putUint16(&r, 0, p.Peer)
	r[2] = p.SrcEndpoint
	putUint16(&r, 3, p.Seqnum)
	putUint16(&r, 5, p.PiggyAck)
	binary.BigEndian.PutUint64(r[7:15], p.Match)
	putUint32(&r, 15, p.Length)
	putUint32(&r, 19, p.RecvqOffset)
	r.setHeader(t, id)
	return r
}

func decodeRecvWithRecvq(r Record) RecvWithRecvqPayload {
	var p RecvWithRecvqPayload
	p.Peer = getUint16(&r, 0)
	p.SrcEndpoint = r[2]
	p.Seqnum = getUint16(&r, 3)
	p.PiggyAck = getUint16(&r, 5)
	p.Match = binary.BigEndian.Uint64(r[7:15])
	p.Length = getUint32(&r, 15)
	p.RecvqOffset = getUint32(&r, 19)
	return p
}

func EncodeRecvSmall(p RecvWithRecvqPayload, id uint8) Record {
	return encodeRecvWithRecvq(TypeRecvSmall, p, id)
}
func DecodeRecvSmall(r Record) RecvWithRecvqPayload { return decodeRecvWithRecvq(r) }

func EncodeRecvMediumFrag(p RecvWithRecvqPayload, id uint8) Record {
	return encodeRecvWithRecvq(TypeRecvMediumFrag, p, id)
}
func DecodeRecvMediumFrag(r Record) RecvWithRecvqPayload { return decodeRecvWithRecvq(r) }

func EncodeRecvRndv(p RecvWithRecvqPayload, id uint8) Record {
	return encodeRecvWithRecvq(TypeRecvRndv, p, id)
}
func DecodeRecvRndv(r Record) RecvWithRecvqPayload { return decodeRecvWithRecvq(r) }

// ConnectPayload is the body of RecvConnectRequest/RecvConnectReply.
type ConnectPayload struct {
	Peer             uint16
	SrcEndpoint      uint8
	Seqnum           uint16
	SrcSessionID     uint32
	AppKey           uint32
	TargetRecvSeqnum uint16
	ConnectSeqnum    uint8
	Status           uint8
}

func encodeConnect(t Type, p ConnectPayload, id uint8) Record {
	var r Record
	putUint16(&r, 0, p.Peer)
	r[2] = p.SrcEndpoint
	putUint16(&r, 3, p.Seqnum)
	putUint32(&r, 5, p.SrcSessionID)
	putUint32(&r, 9, p.AppKey)
	putUint16(&r, 13, p.TargetRecvSeqnum)
	r[15] = p.ConnectSeqnum
	r[16] = p.Status
	r.setHeader(t, id)
	return r
}

func decodeConnect(r Record) ConnectPayload {
	var p ConnectPayload
	p.Peer = getUint16(&r, 0)
	p.SrcEndpoint = r[2]
	p.Seqnum = getUint16(&r, 3)
	p.SrcSessionID = getUint32(&r, 5)
	p.AppKey = getUint32(&r, 9)
	p.TargetRecvSeqnum = getUint16(&r, 13)
	p.ConnectSeqnum = r[15]
	p.Status = r[16]
	return p
}

func EncodeRecvConnectRequest(p ConnectPayload, id uint8) Record {
	return encodeConnect(TypeRecvConnectRequest, p, id)
}
func DecodeRecvConnectRequest(r Record) ConnectPayload { return decodeConnect(r) }

func EncodeRecvConnectReply(p ConnectPayload, id uint8) Record {
	return encodeConnect(TypeRecvConnectReply, p, id)
}
func DecodeRecvConnectReply(r Record) ConnectPayload { return decodeConnect(r) }

// NotifyPayload is RecvNotify's body: reports the rdma id/seqnum the
// puller used, so the sender can retire its rndv advertisement.
type NotifyPayload struct {
	Peer         uint16
	SrcEndpoint  uint8
	Seqnum       uint16
	PullerRdmaID uint8
	PullerSeqnum uint8
	TotalLength  uint32
}

func EncodeRecvNotify(p NotifyPayload, id uint8) Record {
	var r Record
	putUint16(&r, 0, p.Peer)
	r[2] = p.SrcEndpoint
	putUint16(&r, 3, p.Seqnum)
	r[5] = p.PullerRdmaID
	r[6] = p.PullerSeqnum
	putUint32(&r, 7, p.TotalLength)
	r.setHeader(TypeRecvNotify, id)
	return r
}

func DecodeRecvNotify(r Record) NotifyPayload {
	var p NotifyPayload
	p.Peer = getUint16(&r, 0)
	p.SrcEndpoint = r[2]
	p.Seqnum = getUint16(&r, 3)
	p.PullerRdmaID = r[5]
	p.PullerSeqnum = r[6]
	p.TotalLength = getUint32(&r, 7)
	return p
}

// LibAckPayload is RecvLibAck/RecvNackLib's body.
type LibAckPayload struct {
	Peer      uint16
	AckNum    uint16
	LibSeqnum uint16
	SendSeq   uint16
	Resent    uint8
	NackType  uint8
}

func EncodeRecvLibAck(p LibAckPayload, id uint8) Record {
	var r Record
	putUint16(&r, 0, p.Peer)
	putUint16(&r, 2, p.AckNum)
	putUint16(&r, 4, p.LibSeqnum)
	putUint16(&r, 6, p.SendSeq)
	r[8] = p.Resent
	r.setHeader(TypeRecvLibAck, id)
	return r
}
func DecodeRecvLibAck(r Record) LibAckPayload {
	return LibAckPayload{
		Peer:      getUint16(&r, 0),
		AckNum:    getUint16(&r, 2),
		LibSeqnum: getUint16(&r, 4),
		SendSeq:   getUint16(&r, 6),
		Resent:    r[8],
	}
}

func EncodeRecvNackLib(p LibAckPayload, id uint8) Record {
	var r Record
	putUint16(&r, 0, p.Peer)
	putUint16(&r, 2, p.LibSeqnum)
	r[4] = p.NackType
	r.setHeader(TypeRecvNackLib, id)
	return r
}
func DecodeRecvNackLib(r Record) LibAckPayload {
	return LibAckPayload{Peer: getUint16(&r, 0), LibSeqnum: getUint16(&r, 2), NackType: r[4]}
}

// SendMediumFragDonePayload reports the sendq slot now free for reuse.
type SendMediumFragDonePayload struct {
	SendqOffset uint32
}

func EncodeSendMediumFragDone(p SendMediumFragDonePayload, id uint8) Record {
	var r Record
	putUint32(&r, 0, p.SendqOffset)
	r.setHeader(TypeSendMediumFragDone, id)
	return r
}
func DecodeSendMediumFragDone(r Record) SendMediumFragDonePayload {
	return SendMediumFragDonePayload{SendqOffset: getUint32(&r, 0)}
}

// PullDoneStatus enumerates the terminal outcomes of a pull, matching
// wire.NackType's values for the NACK-driven completions by construction
// (enforced in pull/handle.go's init-time assertion).
type PullDoneStatus uint8

const (
	PullDoneSuccess PullDoneStatus = iota
	PullDoneBadEndpoint
	PullDoneEndpointClosed
	PullDoneBadSession
	PullDoneBadRdmaWindow
	PullDoneAborted
	PullDoneTimeout
)

func (s PullDoneStatus) String() string {
	switch s {
	case PullDoneSuccess:
		return "Success"
	case PullDoneBadEndpoint:
		return "BadEndpoint"
	case PullDoneEndpointClosed:
		return "EndpointClosed"
	case PullDoneBadSession:
		return "BadSession"
	case PullDoneBadRdmaWindow:
		return "BadRdmaWindow"
	case PullDoneAborted:
		return "Aborted"
	case PullDoneTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// PullDonePayload is the sole mechanism by which the user learns a pull
// finished, successfully or not.
type PullDonePayload struct {
	SlotID uint32
	Status PullDoneStatus
}

func EncodePullDone(p PullDonePayload, id uint8) Record {
	var r Record
	putUint32(&r, 0, p.SlotID)
	r[4] = byte(p.Status)
	r.setHeader(TypePullDone, id)
	return r
}
func DecodePullDone(r Record) PullDonePayload {
	return PullDonePayload{SlotID: getUint32(&r, 0), Status: PullDoneStatus(r[4])}
}

// EncodeIgnore marks a cancelled reservation: spent, but skipped by readers.
func EncodeIgnore(id uint8) Record {
	var r Record
	r.setHeader(TypeIgnore, id)
	return r
}
