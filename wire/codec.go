package wire

import (
	"encoding/binary"
	"errors"
)

// ErrShortBuffer is returned by decoders when fewer bytes are available
// than the record requires.
var ErrShortBuffer = errors.New("wire: short buffer")

// EncodeHead writes the 16-byte common head to dst, returning the number
// of bytes written. dst must be at least PktHeadSize long.
func EncodeHead(dst []byte, h Head) int {
	copy(dst[0:6], h.Eth.DstMAC[:])
	copy(dst[6:12], h.Eth.SrcMAC[:])
	binary.BigEndian.PutUint16(dst[12:14], h.Eth.EtherType)
	binary.BigEndian.PutUint16(dst[14:16], h.SenderPeerIdx)
	return PktHeadSize
}

// DecodeHead parses the common head; src must hold at least PktHeadSize bytes.
func DecodeHead(src []byte) (Head, error) {
	if len(src) < PktHeadSize {
		return Head{}, ErrShortBuffer
	}
	var h Head
	copy(h.Eth.DstMAC[:], src[0:6])
	copy(h.Eth.SrcMAC[:], src[6:12])
	h.Eth.EtherType = binary.BigEndian.Uint16(src[12:14])
	h.SenderPeerIdx = binary.BigEndian.Uint16(src[14:16])
	return h, nil
}

// msgWireSize is the fixed-field size of omx_pkt_msg, excluding the
// variable-length payload that trails it.
const msgWireSize = 20

// EncodeMsg writes the Msg fixed fields (type byte included) to dst.
func EncodeMsg(dst []byte, ptype PacketType, m Msg) int {
	dst[0] = byte(ptype)
	dst[1] = m.DstEndpoint
	dst[2] = m.SrcEndpoint
	binary.BigEndian.PutUint16(dst[3:5], m.Length)
	binary.BigEndian.PutUint16(dst[5:7], m.LibSeqnum)
	binary.BigEndian.PutUint16(dst[7:9], m.PiggyAck)
	binary.BigEndian.PutUint32(dst[9:13], m.MatchA)
	binary.BigEndian.PutUint32(dst[13:17], m.MatchB)
	binary.BigEndian.PutUint32(dst[17:21], m.Session)
	return msgWireSize + 1
}

// DecodeMsg parses the Msg fixed fields from src (type byte already stripped
// by the caller, src starts at DstEndpoint).
func DecodeMsg(src []byte) (Msg, error) {
	if len(src) < msgWireSize {
		return Msg{}, ErrShortBuffer
	}
	var m Msg
	m.DstEndpoint = src[0]
	m.SrcEndpoint = src[1]
	m.Length = binary.BigEndian.Uint16(src[2:4])
	m.LibSeqnum = binary.BigEndian.Uint16(src[4:6])
	m.PiggyAck = binary.BigEndian.Uint16(src[6:8])
	m.MatchA = binary.BigEndian.Uint32(src[8:12])
	m.MatchB = binary.BigEndian.Uint32(src[12:16])
	m.Session = binary.BigEndian.Uint32(src[16:20])
	return m, nil
}

// DecodeMsgWithPayload is DecodeMsg plus the trailing inline/attached
// bytes after the fixed header, used by the classifier's Tiny/Small
// handlers so callers never need msgWireSize directly.
func DecodeMsgWithPayload(src []byte) (Msg, []byte, error) {
	m, err := DecodeMsg(src)
	if err != nil {
		return Msg{}, nil, err
	}
	return m, src[msgWireSize:], nil
}

// DecodeMediumFragWithPayload is DecodeMediumFrag plus the trailing
// fragment payload bytes.
func DecodeMediumFragWithPayload(src []byte) (MediumFrag, []byte, error) {
	mf, err := DecodeMediumFrag(src)
	if err != nil {
		return MediumFrag{}, nil, err
	}
	return mf, src[msgWireSize+mediumFragExtraSize:], nil
}

// DecodeRndvWithPayload is DecodeRndv plus whatever bytes follow the Rndv
// header. Rndv carries no payload of its own (the advertised region is
// pulled separately), so for a frame that ends at the header the slice is
// empty; the helper exists for symmetry with the other *WithPayload ones.
func DecodeRndvWithPayload(src []byte) (Rndv, []byte, error) {
	r, err := DecodeRndv(src)
	if err != nil {
		return Rndv{}, nil, err
	}
	return r, src[msgWireSize+rndvExtraSize:], nil
}

const mediumFragExtraSize = 4

// EncodeMediumFrag writes a full medium-fragment header.
func EncodeMediumFrag(dst []byte, mf MediumFrag) int {
	n := EncodeMsg(dst, PktMedium, mf.Msg)
	binary.BigEndian.PutUint16(dst[n:n+2], mf.FragLength)
	dst[n+2] = mf.FragSeqnum
	dst[n+3] = mf.FragPipeline
	return n + mediumFragExtraSize
}

// DecodeMediumFrag parses a full medium-fragment header (src starts right
// after the packet-type byte).
func DecodeMediumFrag(src []byte) (MediumFrag, error) {
	m, err := DecodeMsg(src)
	if err != nil {
		return MediumFrag{}, err
	}
	rest := src[msgWireSize:]
	if len(rest) < mediumFragExtraSize {
		return MediumFrag{}, ErrShortBuffer
	}
	return MediumFrag{
		Msg:          m,
		FragLength:   binary.BigEndian.Uint16(rest[0:2]),
		FragSeqnum:   rest[2],
		FragPipeline: rest[3],
	}, nil
}

const rndvExtraSize = 9

func EncodeRndv(dst []byte, r Rndv) int {
	n := EncodeMsg(dst, PktRndv, r.Msg)
	binary.BigEndian.PutUint32(dst[n:n+4], r.RdmaID)
	dst[n+4] = r.RdmaSeqnum
	binary.BigEndian.PutUint32(dst[n+5:n+9], r.RdmaOffset)
	return n + rndvExtraSize
}

func DecodeRndv(src []byte) (Rndv, error) {
	m, err := DecodeMsg(src)
	if err != nil {
		return Rndv{}, err
	}
	rest := src[msgWireSize:]
	if len(rest) < rndvExtraSize {
		return Rndv{}, ErrShortBuffer
	}
	return Rndv{
		Msg:        m,
		RdmaID:     binary.BigEndian.Uint32(rest[0:4]),
		RdmaSeqnum: rest[4],
		RdmaOffset: binary.BigEndian.Uint32(rest[5:9]),
	}, nil
}

const pullRequestWireSize = 37

// EncodePullRequest writes a native-profile pull request (32-bit rdma id
// and offset widths). The type byte is written first.
func EncodePullRequest(dst []byte, pr PullRequest) int {
	dst[0] = byte(PktPull)
	dst[1] = pr.DstEndpoint
	dst[2] = pr.SrcEndpoint
	binary.BigEndian.PutUint32(dst[3:7], pr.Session)
	binary.BigEndian.PutUint32(dst[7:11], pr.TotalLength)
	binary.BigEndian.PutUint32(dst[11:15], pr.PulledRdmaID)
	dst[15] = pr.PulledRdmaSeqnum
	binary.BigEndian.PutUint32(dst[16:20], pr.PulledRdmaOffset)
	binary.BigEndian.PutUint32(dst[20:24], pr.SrcPullHandle)
	binary.BigEndian.PutUint32(dst[24:28], pr.SrcMagic)
	binary.BigEndian.PutUint32(dst[28:32], pr.FirstFrameOffset)
	binary.BigEndian.PutUint32(dst[32:36], pr.BlockLength)
	binary.BigEndian.PutUint32(dst[36:40], pr.FrameIndex)
	return pullRequestWireSize + 3
}

func DecodePullRequest(src []byte) (PullRequest, error) {
	if len(src) < pullRequestWireSize+2 {
		return PullRequest{}, ErrShortBuffer
	}
	var pr PullRequest
	pr.DstEndpoint = src[0]
	pr.SrcEndpoint = src[1]
	pr.Session = binary.BigEndian.Uint32(src[2:6])
	pr.TotalLength = binary.BigEndian.Uint32(src[6:10])
	pr.PulledRdmaID = binary.BigEndian.Uint32(src[10:14])
	pr.PulledRdmaSeqnum = src[14]
	pr.PulledRdmaOffset = binary.BigEndian.Uint32(src[15:19])
	pr.SrcPullHandle = binary.BigEndian.Uint32(src[19:23])
	pr.SrcMagic = binary.BigEndian.Uint32(src[23:27])
	pr.FirstFrameOffset = binary.BigEndian.Uint32(src[27:31])
	pr.BlockLength = binary.BigEndian.Uint32(src[31:35])
	pr.FrameIndex = binary.BigEndian.Uint32(src[35:39])
	return pr, nil
}

const pullRequestMXWireSize = 29

// EncodePullRequestMX writes an MX-wire-compatible pull request: rdma id
// and offset are carried in 16 bits instead of 32, matching the fixed
// on-wire layout of the original MX driver so an MX-compat endpoint can
// interoperate with a peer that never heard of the native profile.
func EncodePullRequestMX(dst []byte, pr PullRequest) int {
	dst[0] = byte(PktPull)
	dst[1] = pr.DstEndpoint
	dst[2] = pr.SrcEndpoint
	binary.BigEndian.PutUint32(dst[3:7], pr.Session)
	binary.BigEndian.PutUint32(dst[7:11], pr.TotalLength)
	binary.BigEndian.PutUint16(dst[11:13], uint16(pr.PulledRdmaID))
	dst[13] = pr.PulledRdmaSeqnum
	binary.BigEndian.PutUint16(dst[14:16], uint16(pr.PulledRdmaOffset))
	binary.BigEndian.PutUint32(dst[16:20], pr.SrcPullHandle)
	binary.BigEndian.PutUint32(dst[20:24], pr.SrcMagic)
	binary.BigEndian.PutUint16(dst[24:26], uint16(pr.FirstFrameOffset))
	binary.BigEndian.PutUint16(dst[26:28], uint16(pr.BlockLength))
	dst[28] = byte(pr.FrameIndex)
	return pullRequestMXWireSize + 1
}

// DecodePullRequestMX is EncodePullRequestMX's inverse.
func DecodePullRequestMX(src []byte) (PullRequest, error) {
	if len(src) < pullRequestMXWireSize {
		return PullRequest{}, ErrShortBuffer
	}
	var pr PullRequest
	pr.DstEndpoint = src[0]
	pr.SrcEndpoint = src[1]
	pr.Session = binary.BigEndian.Uint32(src[2:6])
	pr.TotalLength = binary.BigEndian.Uint32(src[6:10])
	pr.PulledRdmaID = uint32(binary.BigEndian.Uint16(src[10:12]))
	pr.PulledRdmaSeqnum = src[12]
	pr.PulledRdmaOffset = uint32(binary.BigEndian.Uint16(src[13:15]))
	pr.SrcPullHandle = binary.BigEndian.Uint32(src[15:19])
	pr.SrcMagic = binary.BigEndian.Uint32(src[19:23])
	pr.FirstFrameOffset = uint32(binary.BigEndian.Uint16(src[23:25]))
	pr.BlockLength = uint32(binary.BigEndian.Uint16(src[25:27]))
	pr.FrameIndex = uint32(src[27])
	return pr, nil
}

// EncodePullRequestForProfile picks the 32-bit native or 16-bit MX-compat
// wire layout based on profile.MXWireCompat, so the pull engine never
// needs its own per-profile branch.
func EncodePullRequestForProfile(dst []byte, pr PullRequest, profile Profile) int {
	if profile.MXWireCompat {
		return EncodePullRequestMX(dst, pr)
	}
	return EncodePullRequest(dst, pr)
}

// DecodePullRequestForProfile is EncodePullRequestForProfile's inverse.
func DecodePullRequestForProfile(src []byte, profile Profile) (PullRequest, error) {
	if profile.MXWireCompat {
		return DecodePullRequestMX(src)
	}
	return DecodePullRequest(src)
}

const pullReplyHdrWireSize = 15

func EncodePullReply(dst []byte, pr PullReply) int {
	dst[0] = byte(PktPullReply)
	dst[1] = pr.FrameSeqnum
	binary.BigEndian.PutUint16(dst[2:4], pr.FrameLength)
	binary.BigEndian.PutUint32(dst[4:8], pr.MsgOffset)
	binary.BigEndian.PutUint32(dst[8:12], pr.DstPullHandle)
	binary.BigEndian.PutUint32(dst[12:16], pr.DstMagic)
	n := 16
	n += copy(dst[n:], pr.Payload)
	return n
}

func DecodePullReply(src []byte) (PullReply, error) {
	if len(src) < pullReplyHdrWireSize+1 {
		return PullReply{}, ErrShortBuffer
	}
	var pr PullReply
	pr.FrameSeqnum = src[0]
	pr.FrameLength = binary.BigEndian.Uint16(src[1:3])
	pr.MsgOffset = binary.BigEndian.Uint32(src[3:7])
	pr.DstPullHandle = binary.BigEndian.Uint32(src[7:11])
	pr.DstMagic = binary.BigEndian.Uint32(src[11:15])
	payload := src[15:]
	if int(pr.FrameLength) > len(payload) {
		return PullReply{}, ErrShortBuffer
	}
	pr.Payload = payload[:pr.FrameLength]
	return pr, nil
}

func EncodeNackMcp(dst []byte, n NackMcp) int {
	dst[0] = byte(PktNackMcp)
	binary.BigEndian.PutUint32(dst[1:5], n.DstPullHandle)
	binary.BigEndian.PutUint32(dst[5:9], n.DstMagic)
	dst[9] = byte(n.NackType)
	return 10
}

func DecodeNackMcp(src []byte) (NackMcp, error) {
	if len(src) < 9 {
		return NackMcp{}, ErrShortBuffer
	}
	return NackMcp{
		DstPullHandle: binary.BigEndian.Uint32(src[0:4]),
		DstMagic:      binary.BigEndian.Uint32(src[4:8]),
		NackType:      NackType(src[8]),
	}, nil
}

func EncodeNackLib(dst []byte, n NackLib) int {
	dst[0] = byte(PktNackLib)
	dst[1] = n.DstEndpoint
	dst[2] = n.SrcEndpoint
	binary.BigEndian.PutUint32(dst[3:7], n.Session)
	binary.BigEndian.PutUint16(dst[7:9], n.LibSeqnum)
	dst[9] = byte(n.NackType)
	return 10
}

func DecodeNackLib(src []byte) (NackLib, error) {
	if len(src) < 9 {
		return NackLib{}, ErrShortBuffer
	}
	return NackLib{
		DstEndpoint: src[0],
		SrcEndpoint: src[1],
		Session:     binary.BigEndian.Uint32(src[2:6]),
		LibSeqnum:   binary.BigEndian.Uint16(src[6:8]),
		NackType:    NackType(src[8]),
	}, nil
}

func EncodeTruc(dst []byte, t Truc) int {
	dst[0] = byte(PktTruc)
	dst[1] = t.DstEndpoint
	dst[2] = t.SrcEndpoint
	binary.BigEndian.PutUint32(dst[3:7], t.Session)
	binary.BigEndian.PutUint16(dst[7:9], t.AckNum)
	binary.BigEndian.PutUint16(dst[9:11], t.LibSeqnum)
	binary.BigEndian.PutUint16(dst[11:13], t.SendSeq)
	dst[13] = t.Resent
	return 14
}

func DecodeTruc(src []byte) (Truc, error) {
	if len(src) < 13 {
		return Truc{}, ErrShortBuffer
	}
	return Truc{
		DstEndpoint: src[0],
		SrcEndpoint: src[1],
		Session:     binary.BigEndian.Uint32(src[2:6]),
		AckNum:      binary.BigEndian.Uint16(src[6:8]),
		LibSeqnum:   binary.BigEndian.Uint16(src[8:10]),
		SendSeq:     binary.BigEndian.Uint16(src[10:12]),
		Resent:      src[12],
	}, nil
}

func EncodeNotify(dst []byte, n Notify) int {
	dst[0] = byte(PktNotify)
	dst[1] = n.DstEndpoint
	dst[2] = n.SrcEndpoint
	binary.BigEndian.PutUint32(dst[3:7], n.Session)
	binary.BigEndian.PutUint32(dst[7:11], n.TotalLength)
	dst[11] = n.PullerRdmaID
	dst[12] = n.PullerSeqnum
	binary.BigEndian.PutUint16(dst[13:15], n.LibSeqnum)
	binary.BigEndian.PutUint16(dst[15:17], n.PiggyAck)
	return 17
}

func DecodeNotify(src []byte) (Notify, error) {
	if len(src) < 16 {
		return Notify{}, ErrShortBuffer
	}
	return Notify{
		DstEndpoint:  src[0],
		SrcEndpoint:  src[1],
		Session:      binary.BigEndian.Uint32(src[2:6]),
		TotalLength:  binary.BigEndian.Uint32(src[6:10]),
		PullerRdmaID: src[10],
		PullerSeqnum: src[11],
		LibSeqnum:    binary.BigEndian.Uint16(src[12:14]),
		PiggyAck:     binary.BigEndian.Uint16(src[14:16]),
	}, nil
}

func EncodeConnect(dst []byte, c Connect) int {
	if c.IsReply {
		dst[0] = byte(PktConnect) // reply shares the Connect type; dst[17] carries the IsReply flag
	} else {
		dst[0] = byte(PktConnect)
	}
	dst[1] = c.DstEndpoint
	dst[2] = c.SrcEndpoint
	binary.BigEndian.PutUint16(dst[3:5], c.LibSeqnum)
	binary.BigEndian.PutUint32(dst[5:9], c.SrcSessionID)
	binary.BigEndian.PutUint32(dst[9:13], c.AppKey)
	binary.BigEndian.PutUint16(dst[13:15], c.TargetRecvSeqnum)
	dst[15] = c.ConnectSeqnum
	dst[16] = byte(c.Status)
	if c.IsReply {
		dst[17] = 1
	} else {
		dst[17] = 0
	}
	return 18
}

func DecodeConnect(src []byte) (Connect, error) {
	if len(src) < 17 {
		return Connect{}, ErrShortBuffer
	}
	c := Connect{
		DstEndpoint:      src[0],
		SrcEndpoint:      src[1],
		LibSeqnum:        binary.BigEndian.Uint16(src[2:4]),
		SrcSessionID:     binary.BigEndian.Uint32(src[4:8]),
		AppKey:           binary.BigEndian.Uint32(src[8:12]),
		TargetRecvSeqnum: binary.BigEndian.Uint16(src[12:14]),
		ConnectSeqnum:    src[14],
		Status:           ConnectStatus(src[15]),
	}
	if len(src) > 16 {
		c.IsReply = src[16] != 0
	}
	return c, nil
}
