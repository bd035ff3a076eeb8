// Package classifier implements the per-packet-type receive-path dispatch,
// grounded on the teacher's lowlevel/server/handler_chain.go (an ordered,
// indexable table of handlers wrapping a common validation prelude)
// generalized from HTTP-style middleware to an 8-bit packet-type table.
package classifier

import (
	"encoding/binary"

	"github.com/ananos/omx-go/counters"
	"github.com/ananos/omx-go/endpoint"
	"github.com/ananos/omx-go/event"
	"github.com/ananos/omx-go/pull"
	"github.com/ananos/omx-go/wire"
)

// EndpointLookup resolves a destination endpoint index to a live endpoint,
// or nil if the slot is free/closed — the interface-layer slot table
// lives in package iface, so this is injected to avoid an import cycle.
type EndpointLookup func(index int) *endpoint.Endpoint

// PeerIndexCheck validates that the sender MAC matches the claimed sender
// peer index (check_recv_peer_index in spec.md §4.5); injected for the
// same reason as EndpointLookup.
type PeerIndexCheck func(senderPeerIndex uint16, srcMAC [6]byte) bool

// NackSender transmits a NackLib packet back to the sender of a
// message-type frame that failed endpoint/session validation.
type NackSender func(dstPeerIndex uint16, srcEndpoint, dstEndpoint uint8, libSeqnum uint16, session uint32, reason wire.NackType)

// PullRequestHandler generates and sends the PullReply stream for an
// incoming pull request; installed by the transport-wiring layer since it
// needs the region being pulled from.
type PullRequestHandler func(ep *endpoint.Endpoint, req wire.PullRequest, senderPeer uint16)

// HandleRegistry resolves a pull handle across all endpoints on an
// interface by wire slot id and magic.
type HandleRegistry func(slotID uint32, magic uint32) *pull.Handle

// Classifier dispatches received frames by packet type.
type Classifier struct {
	lookupEndpoint EndpointLookup
	checkPeer      PeerIndexCheck
	sendNack       NackSender
	onPullRequest  PullRequestHandler
	lookupHandle   HandleRegistry
	counters       *counters.Array

	handlers [256]func(c *Classifier, f wire.Frame)
}

// New builds a classifier with the per-type handler table installed.
func New(lookup EndpointLookup, peerCheck PeerIndexCheck, nack NackSender, onPullRequest PullRequestHandler, lookupHandle HandleRegistry, ctr *counters.Array) *Classifier {
	c := &Classifier{
		lookupEndpoint: lookup,
		checkPeer:      peerCheck,
		sendNack:       nack,
		onPullRequest:  onPullRequest,
		lookupHandle:   lookupHandle,
		counters:       ctr,
	}
	c.handlers[wire.PktConnect] = (*Classifier).handleConnect
	c.handlers[wire.PktTiny] = (*Classifier).handleTiny
	c.handlers[wire.PktSmall] = (*Classifier).handleSmall
	c.handlers[wire.PktMedium] = (*Classifier).handleMedium
	c.handlers[wire.PktRndv] = (*Classifier).handleRndv
	c.handlers[wire.PktNotify] = (*Classifier).handleNotify
	c.handlers[wire.PktTruc] = (*Classifier).handleTruc
	c.handlers[wire.PktNackLib] = (*Classifier).handleNackLib
	c.handlers[wire.PktPull] = (*Classifier).handlePullRequest
	c.handlers[wire.PktPullReply] = (*Classifier).handlePullReply
	c.handlers[wire.PktNackMcp] = (*Classifier).handleNackMcp
	c.handlers[wire.PktRaw] = (*Classifier).handleRaw
	c.handlers[wire.PktHostQuery] = (*Classifier).handleRaw
	c.handlers[wire.PktHostReply] = (*Classifier).handleRaw
	return c
}

// Dispatch is the receive-path entry point: steps 1-3 of spec.md §4.5
// live here; each handler performs step 4-5 itself.
func (c *Classifier) Dispatch(f wire.Frame) {
	if f.Type == wire.PktMfmNicReply {
		c.counters.Inc(counters.DropInvalidType)
		return
	}
	h := c.handlers[f.Type]
	if h == nil {
		c.counters.Inc(counters.DropUnknownType)
		return
	}
	if !c.checkPeer(f.Head.SenderPeerIdx, f.Head.Eth.SrcMAC) {
		c.counters.Inc(counters.DropBadPeerIndex)
		return
	}
	h(c, f)
}

// resolveEndpoint implements step 4's endpoint-acquire + session-check
// prelude shared by every per-message-type handler.
func (c *Classifier) resolveEndpoint(f wire.Frame, dstIndex uint8, srcEndpoint uint8, session uint32, libSeqnum uint16) *endpoint.Endpoint {
	ep := c.lookupEndpoint(int(dstIndex))
	if ep == nil {
		c.counters.Inc(counters.DropBadEndpoint)
		c.sendNack(f.Head.SenderPeerIdx, srcEndpoint, dstIndex, libSeqnum, session, wire.NackBadEndpoint)
		return nil
	}
	st := ep.Status()
	if st == endpoint.StatusClosing || st == endpoint.StatusFree {
		c.counters.Inc(counters.DropBadEndpoint)
		c.sendNack(f.Head.SenderPeerIdx, srcEndpoint, dstIndex, libSeqnum, session, wire.NackEndpointClosed)
		return nil
	}
	if ep.SessionID() != session {
		c.counters.Inc(counters.DropBadSession)
		c.sendNack(f.Head.SenderPeerIdx, srcEndpoint, dstIndex, libSeqnum, session, wire.NackBadSession)
		return nil
	}
	return ep
}

func (c *Classifier) handleConnect(f wire.Frame) {
	m, err := wire.DecodeConnect(f.Payload)
	if err != nil {
		c.counters.Inc(counters.DropBadDatalen)
		return
	}
	ep := c.lookupEndpoint(int(m.DstEndpoint))
	if ep == nil {
		c.counters.Inc(counters.DropBadEndpoint)
		return
	}
	payload := event.ConnectPayload{
		Peer:             f.Head.SenderPeerIdx,
		SrcEndpoint:      m.SrcEndpoint,
		Seqnum:           m.LibSeqnum,
		SrcSessionID:     m.SrcSessionID,
		AppKey:           m.AppKey,
		TargetRecvSeqnum: m.TargetRecvSeqnum,
		ConnectSeqnum:    m.ConnectSeqnum,
		Status:           uint8(m.Status),
	}
	var rec event.Record
	if m.IsReply {
		rec = event.EncodeRecvConnectReply(payload, 0)
	} else {
		rec = event.EncodeRecvConnectRequest(payload, 0)
	}
	_ = ep.NotifyUnexp(rec)
}

func (c *Classifier) handleTiny(f wire.Frame) {
	m, data, err := wire.DecodeMsgWithPayload(f.Payload)
	if err != nil || int(m.Length) > len(data) || m.Length > wire.TinyMax {
		c.counters.Inc(counters.DropBadDatalen)
		return
	}
	ep := c.resolveEndpoint(f, m.DstEndpoint, m.SrcEndpoint, m.Session, m.LibSeqnum)
	if ep == nil {
		return
	}
	p := event.RecvTinyPayload{
		Peer: f.Head.SenderPeerIdx, SrcEndpoint: m.SrcEndpoint, Seqnum: m.LibSeqnum,
		PiggyAck: m.PiggyAck, Match: uint64(m.MatchA)<<32 | uint64(m.MatchB), Length: uint8(m.Length),
	}
	copy(p.Data[:], data[:m.Length])
	_ = ep.NotifyUnexp(event.EncodeRecvTiny(p, 0))
}

func (c *Classifier) handleSmall(f wire.Frame) {
	m, data, err := wire.DecodeMsgWithPayload(f.Payload)
	if err != nil || int(m.Length) > len(data) || m.Length > wire.SmallMax {
		c.counters.Inc(counters.DropBadDatalen)
		return
	}
	c.recvWithRecvq(f, m, data[:m.Length], event.TypeRecvSmall)
}

func (c *Classifier) handleMedium(f wire.Frame) {
	mf, data, err := wire.DecodeMediumFragWithPayload(f.Payload)
	if err != nil || int(mf.FragLength) > len(data) {
		c.counters.Inc(counters.DropBadDatalen)
		return
	}
	c.recvWithRecvq(f, mf.Msg, data[:mf.FragLength], event.TypeRecvMediumFrag)
}

func (c *Classifier) handleRndv(f wire.Frame) {
	r, _, err := wire.DecodeRndvWithPayload(f.Payload)
	if err != nil {
		c.counters.Inc(counters.DropBadDatalen)
		return
	}
	c.recvWithRecvq(f, r.Msg, nil, event.TypeRecvRndv)
}

// recvWithRecvq implements Small/Medium/Rndv's shared tail: resolve the
// endpoint, reserve one recvq+unexp-event slot pair, copy payload into
// the recvq slot, and commit.
func (c *Classifier) recvWithRecvq(f wire.Frame, m wire.Msg, data []byte, typ event.Type) {
	ep := c.resolveEndpoint(f, m.DstEndpoint, m.SrcEndpoint, m.Session, m.LibSeqnum)
	if ep == nil {
		return
	}
	r, err := ep.PrepareNotifyUnexpWithRecvq()
	if err != nil {
		return
	}
	n := copy(r.RecvqBuf, data)
	p := event.RecvWithRecvqPayload{
		Peer: f.Head.SenderPeerIdx, SrcEndpoint: m.SrcEndpoint, Seqnum: m.LibSeqnum,
		PiggyAck: m.PiggyAck, Match: uint64(m.MatchA)<<32 | uint64(m.MatchB),
		Length: uint32(n), RecvqOffset: r.RecvqOff,
	}
	var rec event.Record
	switch typ {
	case event.TypeRecvSmall:
		rec = event.EncodeRecvSmall(p, 0)
	case event.TypeRecvMediumFrag:
		rec = event.EncodeRecvMediumFrag(p, 0)
	default:
		rec = event.EncodeRecvRndv(p, 0)
	}
	ep.CommitNotifyUnexpWithRecvq(r, rec)
}

func (c *Classifier) handleNotify(f wire.Frame) {
	m, err := wire.DecodeNotify(f.Payload)
	if err != nil {
		c.counters.Inc(counters.DropBadDatalen)
		return
	}
	ep := c.resolveEndpoint(f, m.DstEndpoint, m.SrcEndpoint, m.Session, m.LibSeqnum)
	if ep == nil {
		return
	}
	p := event.NotifyPayload{
		Peer: f.Head.SenderPeerIdx, SrcEndpoint: m.SrcEndpoint, Seqnum: m.LibSeqnum,
		PullerRdmaID: m.PullerRdmaID, PullerSeqnum: m.PullerSeqnum, TotalLength: m.TotalLength,
	}
	_ = ep.NotifyUnexp(event.EncodeRecvNotify(p, 0))
}

func (c *Classifier) handleTruc(f wire.Frame) {
	m, err := wire.DecodeTruc(f.Payload)
	if err != nil {
		c.counters.Inc(counters.DropBadDatalen)
		return
	}
	ep := c.resolveEndpoint(f, m.DstEndpoint, m.SrcEndpoint, m.Session, m.LibSeqnum)
	if ep == nil {
		return
	}
	p := event.LibAckPayload{Peer: f.Head.SenderPeerIdx, AckNum: m.AckNum, LibSeqnum: m.LibSeqnum, SendSeq: m.SendSeq, Resent: m.Resent}
	_ = ep.NotifyUnexp(event.EncodeRecvLibAck(p, 0))
}

func (c *Classifier) handleNackLib(f wire.Frame) {
	m, err := wire.DecodeNackLib(f.Payload)
	if err != nil {
		c.counters.Inc(counters.DropBadDatalen)
		return
	}
	ep := c.lookupEndpoint(int(m.DstEndpoint))
	if ep == nil {
		return
	}
	p := event.LibAckPayload{Peer: f.Head.SenderPeerIdx, LibSeqnum: m.LibSeqnum, NackType: uint8(m.NackType)}
	_ = ep.NotifyUnexp(event.EncodeRecvNackLib(p, 0))
}

func (c *Classifier) handlePullRequest(f wire.Frame) {
	// DstEndpoint/SrcEndpoint/Session sit at the same fixed offsets in
	// both wire profiles, so the endpoint (and hence the profile to
	// decode the rest with) can be resolved before the full decode.
	if len(f.Payload) < 6 {
		c.counters.Inc(counters.DropBadDatalen)
		return
	}
	dstEndpoint := f.Payload[0]
	srcEndpoint := f.Payload[1]
	session := binary.BigEndian.Uint32(f.Payload[2:6])
	ep := c.resolveEndpoint(f, dstEndpoint, srcEndpoint, session, 0)
	if ep == nil {
		return
	}
	req, err := wire.DecodePullRequestForProfile(f.Payload, ep.Profile())
	if err != nil {
		c.counters.Inc(counters.DropBadDatalen)
		return
	}
	if c.onPullRequest != nil {
		c.onPullRequest(ep, req, f.Head.SenderPeerIdx)
	}
}

func (c *Classifier) handlePullReply(f wire.Frame) {
	reply, err := wire.DecodePullReply(f.Payload)
	if err != nil {
		c.counters.Inc(counters.DropBadDatalen)
		return
	}
	if c.lookupHandle == nil {
		return
	}
	h := c.lookupHandle(reply.DstPullHandle, reply.DstMagic)
	if h == nil {
		c.counters.Inc(counters.DropPullReplyBadMagicEndpoint)
		return
	}
	h.HandleReply(pull.ReplyInput{
		SlotGeneration: pull.SlotID(reply.DstPullHandle).Generation(),
		Magic:          reply.DstMagic,
		FrameSeqnum:    reply.FrameSeqnum,
		FrameLength:    reply.FrameLength,
		MsgOffset:      reply.MsgOffset,
		Payload:        reply.Payload,
	})
}

func (c *Classifier) handleNackMcp(f wire.Frame) {
	m, err := wire.DecodeNackMcp(f.Payload)
	if err != nil {
		c.counters.Inc(counters.DropBadDatalen)
		return
	}
	if c.lookupHandle == nil {
		return
	}
	h := c.lookupHandle(m.DstPullHandle, m.DstMagic)
	if h == nil {
		c.counters.Inc(counters.DropNackMcpBadMagicEndpoint)
		return
	}
	h.Nack(m.NackType)
}

func (c *Classifier) handleRaw(f wire.Frame) {
	c.counters.Inc(counters.RecvRaw)
}
