package iface

import (
	"github.com/ananos/omx-go/api"
	"github.com/ananos/omx-go/counters"
	"github.com/ananos/omx-go/endpoint"
	"github.com/ananos/omx-go/event"
	"github.com/ananos/omx-go/wire"
)

// sendHeaderRoom is generous headroom for the fixed portion of any
// per-type record this file encodes; frames are always sliced down to the
// encoder's actual returned length before transmit; only the `+ payload`
// has to be exact.
const sendHeaderRoom = 48

// SendParams bundles the header fields every non-connect send operation
// takes, per spec.md §4.2: "the destination peer index plus destination
// endpoint, a session_id to be matched at the receiver, a 16-bit lib
// seqnum, and a 16-bit piggyack."
type SendParams struct {
	SenderPeerIdx uint16 // Head.SenderPeerIdx: this interface's peer index as known to the receiver
	SrcEndpoint   uint8
	DstEndpoint   uint8
	Session       uint32
	LibSeqnum     uint16
	PiggyAck      uint16
}

func (i *Interface) head(senderPeerIdx uint16) wire.Head {
	return wire.Head{
		Eth:           wire.EthHeader{DstMAC: i.MAC, SrcMAC: i.MAC, EtherType: wire.EtherTypeOMX},
		SenderPeerIdx: senderPeerIdx,
	}
}

// SendTiny implements spec.md §4.2's Tiny operation: the payload is
// inlined directly in the command and capped at TinyMax. Oversize payloads
// never reach the wire — a Nomem-equivalent error is returned and
// SendNomemSkb is bumped, mirroring the original's "frame allocation
// failed" counter semantics applied here to the size check that would
// otherwise have caused it.
func (i *Interface) SendTiny(p SendParams, match uint64, data []byte) error {
	if len(data) > wire.TinyMax {
		i.Counters.Inc(counters.SendNomemSkb)
		return api.NewError(api.ErrCodeNoMem, "sendtiny: payload exceeds TinyMax")
	}
	frame := make([]byte, wire.PktHeadSize+sendHeaderRoom+len(data))
	wire.EncodeHead(frame, i.head(p.SenderPeerIdx))
	n := wire.EncodeMsg(frame[wire.PktHeadSize:], wire.PktTiny, wire.Msg{
		DstEndpoint: p.DstEndpoint, SrcEndpoint: p.SrcEndpoint,
		Length: uint16(len(data)), LibSeqnum: p.LibSeqnum, PiggyAck: p.PiggyAck,
		MatchA: uint32(match >> 32), MatchB: uint32(match), Session: p.Session,
	})
	copy(frame[wire.PktHeadSize+n:], data)
	if err := i.Send(frame[:wire.PktHeadSize+n+len(data)]); err != nil {
		return err
	}
	i.Counters.Inc(counters.SendTiny)
	return nil
}

// SendSmall implements spec.md §4.2's Small operation: the payload is
// copied from the caller into a newly allocated frame and capped at
// SmallMax.
func (i *Interface) SendSmall(p SendParams, match uint64, data []byte) error {
	if len(data) > wire.SmallMax {
		i.Counters.Inc(counters.SendNomemSkb)
		return api.NewError(api.ErrCodeNoMem, "sendsmall: payload exceeds SmallMax")
	}
	frame := make([]byte, wire.PktHeadSize+sendHeaderRoom+len(data))
	wire.EncodeHead(frame, i.head(p.SenderPeerIdx))
	n := wire.EncodeMsg(frame[wire.PktHeadSize:], wire.PktSmall, wire.Msg{
		DstEndpoint: p.DstEndpoint, SrcEndpoint: p.SrcEndpoint,
		Length: uint16(len(data)), LibSeqnum: p.LibSeqnum, PiggyAck: p.PiggyAck,
		MatchA: uint32(match >> 32), MatchB: uint32(match), Session: p.Session,
	})
	copy(frame[wire.PktHeadSize+n:], data)
	if err := i.Send(frame[:wire.PktHeadSize+n+len(data)]); err != nil {
		return err
	}
	i.Counters.Inc(counters.SendSmall)
	return nil
}

// SendMediumSQ implements spec.md §4.2's MediumSQ operation: one fragment
// of up to the profile's MediumFragMax is sent from a sendq slot the
// caller already owns (via ep.AllocSendqSlot). Completion is posted to ep's
// expected event queue as SendMediumFragDone once the simulated NIC
// accepts the frame, reporting sendqOffset so the caller knows the slot is
// free for reuse again.
func (i *Interface) SendMediumSQ(ep *endpoint.Endpoint, p SendParams, sendqOffset uint32, fragSeqnum, fragPipeline uint8, data []byte) error {
	if len(data) > ep.Profile().MediumFragMax {
		i.Counters.Inc(counters.SendNomemSkb)
		return api.NewError(api.ErrCodeNoMem, "sendmediumsq: fragment exceeds MediumFragMax")
	}
	frame := make([]byte, wire.PktHeadSize+sendHeaderRoom+len(data))
	wire.EncodeHead(frame, i.head(p.SenderPeerIdx))
	n := wire.EncodeMediumFrag(frame[wire.PktHeadSize:], wire.MediumFrag{
		Msg: wire.Msg{
			DstEndpoint: p.DstEndpoint, SrcEndpoint: p.SrcEndpoint,
			Length: uint16(len(data)), LibSeqnum: p.LibSeqnum, PiggyAck: p.PiggyAck,
			Session: p.Session,
		},
		FragLength: uint16(len(data)), FragSeqnum: fragSeqnum, FragPipeline: fragPipeline,
	})
	copy(frame[wire.PktHeadSize+n:], data)
	if err := i.Send(frame[:wire.PktHeadSize+n+len(data)]); err != nil {
		i.Counters.Inc(counters.SendNomemMediumDefevent)
		return err
	}
	i.Counters.Inc(counters.SendMediumSQFrag)
	if err := ep.NotifyExp(event.EncodeSendMediumFragDone(event.SendMediumFragDonePayload{SendqOffset: sendqOffset}, 0)); err != nil {
		i.Counters.Inc(counters.SendNomemMediumDefevent)
		return err
	}
	return nil
}

// SendMediumVA implements spec.md §4.2's MediumVA operation: the source
// data is gathered from a user virtual segment vector rather than a single
// sendq slot, but lands on the wire in the same MediumFrag format.
func (i *Interface) SendMediumVA(ep *endpoint.Endpoint, p SendParams, fragSeqnum, fragPipeline uint8, segments [][]byte) error {
	total := 0
	for _, s := range segments {
		total += len(s)
	}
	if total > ep.Profile().MediumFragMax {
		i.Counters.Inc(counters.SendNomemSkb)
		return api.NewError(api.ErrCodeNoMem, "sendmediumva: gathered length exceeds MediumFragMax")
	}
	data := make([]byte, 0, total)
	for _, s := range segments {
		data = append(data, s...)
	}
	frame := make([]byte, wire.PktHeadSize+sendHeaderRoom+len(data))
	wire.EncodeHead(frame, i.head(p.SenderPeerIdx))
	n := wire.EncodeMediumFrag(frame[wire.PktHeadSize:], wire.MediumFrag{
		Msg: wire.Msg{
			DstEndpoint: p.DstEndpoint, SrcEndpoint: p.SrcEndpoint,
			Length: uint16(len(data)), LibSeqnum: p.LibSeqnum, PiggyAck: p.PiggyAck,
			Session: p.Session,
		},
		FragLength: uint16(len(data)), FragSeqnum: fragSeqnum, FragPipeline: fragPipeline,
	})
	copy(frame[wire.PktHeadSize+n:], data)
	if err := i.Send(frame[:wire.PktHeadSize+n+len(data)]); err != nil {
		return err
	}
	i.Counters.Inc(counters.SendMediumVAFrag)
	return nil
}

// SendRndv implements spec.md §4.2's Rndv operation: a short header
// advertising a registered local region id/offset the receiver later
// retrieves with a pull.
func (i *Interface) SendRndv(p SendParams, rdmaID uint32, rdmaSeqnum uint8, rdmaOffset uint32) error {
	frame := make([]byte, wire.PktHeadSize+sendHeaderRoom)
	wire.EncodeHead(frame, i.head(p.SenderPeerIdx))
	n := wire.EncodeRndv(frame[wire.PktHeadSize:], wire.Rndv{
		Msg: wire.Msg{
			DstEndpoint: p.DstEndpoint, SrcEndpoint: p.SrcEndpoint,
			LibSeqnum: p.LibSeqnum, PiggyAck: p.PiggyAck, Session: p.Session,
		},
		RdmaID: rdmaID, RdmaSeqnum: rdmaSeqnum, RdmaOffset: rdmaOffset,
	})
	if err := i.Send(frame[:wire.PktHeadSize+n]); err != nil {
		return err
	}
	i.Counters.Inc(counters.SendRndv)
	return nil
}

// SendNotify implements spec.md §4.2's Notify operation: sent by the
// puller once its own sink region has been fully filled, giving the
// sender the rdma id/seqnum it used so the sender can retire it.
func (i *Interface) SendNotify(p SendParams, pullerRdmaID, pullerSeqnum uint8, totalLength uint32) error {
	frame := make([]byte, wire.PktHeadSize+sendHeaderRoom)
	wire.EncodeHead(frame, i.head(p.SenderPeerIdx))
	n := wire.EncodeNotify(frame[wire.PktHeadSize:], wire.Notify{
		DstEndpoint: p.DstEndpoint, SrcEndpoint: p.SrcEndpoint, Session: p.Session,
		TotalLength: totalLength, PullerRdmaID: pullerRdmaID, PullerSeqnum: pullerSeqnum,
		LibSeqnum: p.LibSeqnum, PiggyAck: p.PiggyAck,
	})
	if err := i.Send(frame[:wire.PktHeadSize+n]); err != nil {
		return err
	}
	i.Counters.Inc(counters.SendNotify)
	return nil
}

// SendConnectRequest implements spec.md §4.2's connect-request operation.
func (i *Interface) SendConnectRequest(senderPeerIdx uint16, srcEndpoint, dstEndpoint uint8, libSeqnum uint16, srcSessionID, appKey uint32, targetRecvSeqnum uint16, connectSeqnum uint8) error {
	return i.sendConnect(senderPeerIdx, wire.Connect{
		DstEndpoint: dstEndpoint, SrcEndpoint: srcEndpoint, LibSeqnum: libSeqnum,
		SrcSessionID: srcSessionID, AppKey: appKey, TargetRecvSeqnum: targetRecvSeqnum,
		ConnectSeqnum: connectSeqnum, IsReply: false, Status: wire.ConnectSuccess,
	}, counters.SendConnectRequest)
}

// SendConnectReply implements spec.md §4.2's connect-reply operation,
// carrying the accept/reject status code (Success=0, BadKey=11).
func (i *Interface) SendConnectReply(senderPeerIdx uint16, srcEndpoint, dstEndpoint uint8, libSeqnum uint16, srcSessionID, appKey uint32, targetRecvSeqnum uint16, connectSeqnum uint8, status wire.ConnectStatus) error {
	return i.sendConnect(senderPeerIdx, wire.Connect{
		DstEndpoint: dstEndpoint, SrcEndpoint: srcEndpoint, LibSeqnum: libSeqnum,
		SrcSessionID: srcSessionID, AppKey: appKey, TargetRecvSeqnum: targetRecvSeqnum,
		ConnectSeqnum: connectSeqnum, IsReply: true, Status: status,
	}, counters.SendConnectReply)
}

func (i *Interface) sendConnect(senderPeerIdx uint16, c wire.Connect, ctr counters.Index) error {
	frame := make([]byte, wire.PktHeadSize+sendHeaderRoom)
	wire.EncodeHead(frame, i.head(senderPeerIdx))
	n := wire.EncodeConnect(frame[wire.PktHeadSize:], c)
	if err := i.Send(frame[:wire.PktHeadSize+n]); err != nil {
		return err
	}
	i.Counters.Inc(ctr)
	return nil
}

// SendLibAck implements spec.md §4.2's LibAck (Truc) operation: a
// piggybackable acknowledgement carrying acknum/lib_seqnum/send_seq/resent.
func (i *Interface) SendLibAck(p SendParams, ackNum, sendSeq uint16, resent uint8) error {
	frame := make([]byte, wire.PktHeadSize+sendHeaderRoom)
	wire.EncodeHead(frame, i.head(p.SenderPeerIdx))
	n := wire.EncodeTruc(frame[wire.PktHeadSize:], wire.Truc{
		DstEndpoint: p.DstEndpoint, SrcEndpoint: p.SrcEndpoint, Session: p.Session,
		AckNum: ackNum, LibSeqnum: p.LibSeqnum, SendSeq: sendSeq, Resent: resent,
	})
	if err := i.Send(frame[:wire.PktHeadSize+n]); err != nil {
		return err
	}
	i.Counters.Inc(counters.SendLibAck)
	return nil
}
