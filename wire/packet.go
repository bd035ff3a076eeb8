package wire

// EthHeader is a minimal stand-in for the Ethernet header the real driver
// prepends to every frame: destination/source MAC and EtherType. The
// transport in this repository is an in-process simulated NIC (see
// iface.SendFunc), so only the fields the classifier and sender actually
// inspect are kept.
type EthHeader struct {
	DstMAC    [6]byte
	SrcMAC    [6]byte
	EtherType uint16
}

// Head is the 16-byte common packet head: Ethernet header plus the
// sender's peer index, present on every wire packet.
type Head struct {
	Eth           EthHeader
	SenderPeerIdx uint16
}

// Frame bundles a decoded Head, the raw packet-type byte, and the
// remaining payload bytes (per-type record plus any trailing data),
// exactly as the classifier sees it after linearization.
type Frame struct {
	Head    Head
	Type    PacketType
	Payload []byte // per-type record + inline/attached data
}

// Msg is the common prefix of Tiny/Small/Medium/Rndv messages
// (omx_pkt_msg in the original wire format).
type Msg struct {
	DstEndpoint uint8
	SrcEndpoint uint8
	Length      uint16
	LibSeqnum   uint16
	PiggyAck    uint16
	MatchA      uint32
	MatchB      uint32
	Session     uint32
}

// MediumFrag extends Msg with fragment-pipeline fields
// (omx_pkt_medium_frag).
type MediumFrag struct {
	Msg
	FragLength   uint16
	FragSeqnum   uint8
	FragPipeline uint8
}

// Rndv advertises a registered region id/offset that the receiver must
// later `pull` to retrieve the payload.
type Rndv struct {
	Msg
	RdmaID     uint32
	RdmaSeqnum uint8
	RdmaOffset uint32
}

// Notify is sent by the puller once its sink region is fully filled.
type Notify struct {
	DstEndpoint  uint8
	SrcEndpoint  uint8
	Session      uint32
	TotalLength  uint32
	PullerRdmaID uint8
	PullerSeqnum uint8
	LibSeqnum    uint16
	PiggyAck     uint16
}

// Connect carries the connect-request/reply handshake.
type Connect struct {
	DstEndpoint      uint8
	SrcEndpoint      uint8
	LibSeqnum        uint16
	SrcSessionID     uint32
	AppKey           uint32
	TargetRecvSeqnum uint16
	ConnectSeqnum    uint8
	IsReply          bool
	Status           ConnectStatus
}

// Truc carries a piggybackable library acknowledgement.
type Truc struct {
	DstEndpoint uint8
	SrcEndpoint uint8
	Session     uint32
	AckNum      uint16
	LibSeqnum   uint16
	SendSeq     uint16
	Resent      uint8
}

// PullRequest is the puller's request for one block of reply frames.
type PullRequest struct {
	DstEndpoint      uint8
	SrcEndpoint      uint8
	Session          uint32
	TotalLength      uint32
	PulledRdmaID     uint32
	PulledRdmaSeqnum uint8
	PulledRdmaOffset uint32
	SrcPullHandle    uint32 // slot_id
	SrcMagic         uint32 // endpoint_pull_magic
	FirstFrameOffset uint32
	BlockLength      uint32
	FrameIndex       uint32
}

// PullReply carries one reply frame's worth of sink data.
type PullReply struct {
	FrameSeqnum   uint8
	FrameLength   uint16
	MsgOffset     uint32
	DstPullHandle uint32
	DstMagic      uint32
	Payload       []byte
}

// NackLib/NackMcp report a delivery failure to the sender or the puller.
type NackLib struct {
	DstEndpoint uint8
	SrcEndpoint uint8
	Session     uint32
	LibSeqnum   uint16
	NackType    NackType
}

type NackMcp struct {
	DstPullHandle uint32
	DstMagic      uint32
	NackType      NackType
}

// HostQuery/HostReply are the raw side-channel discovery packets; only
// their framing is modeled here since peer discovery is out of scope.
type HostQuery struct {
	SrcDstPeerIndex uint16
	Magic           uint32
}

type HostReply struct {
	SrcDstPeerIndex uint16
	Magic           uint32
	Length          uint8
}
