// Package wire defines the on-the-wire packet formats of the OMX transport:
// a fixed Ethernet-style head, a per-type payload record, and the two ABI
// profiles (MX-wire-compatible and native) that size pull replies and
// medium fragments differently.
package wire

// PacketType is the 8-bit wire packet type tag.
type PacketType uint8

const (
	PktNone PacketType = iota
	PktRaw
	PktMfmNicReply // reserved / invalid: always dropped and counted separately
	PktHostQuery
	PktHostReply

	PktEtherUnicast   PacketType = 32
	PktEtherMulticast PacketType = 33
	PktEtherNative    PacketType = 34
	PktTruc           PacketType = 35
	PktConnect        PacketType = 36
	PktTiny           PacketType = 37
	PktSmall          PacketType = 38
	PktMedium         PacketType = 39
	PktRndv           PacketType = 40
	PktPull           PacketType = 41
	PktPullReply      PacketType = 42
	PktNotify         PacketType = 43
	PktNackLib        PacketType = 44
	PktNackMcp        PacketType = 45

	PktMax PacketType = 255
)

func (t PacketType) String() string {
	switch t {
	case PktNone:
		return "None"
	case PktRaw:
		return "Raw"
	case PktMfmNicReply:
		return "MfmNicReply"
	case PktHostQuery:
		return "HostQuery"
	case PktHostReply:
		return "HostReply"
	case PktEtherUnicast:
		return "EtherUnicast"
	case PktEtherMulticast:
		return "EtherMulticast"
	case PktEtherNative:
		return "EtherNative"
	case PktTruc:
		return "Truc"
	case PktConnect:
		return "Connect"
	case PktTiny:
		return "Tiny"
	case PktSmall:
		return "Small"
	case PktMedium:
		return "Medium"
	case PktRndv:
		return "Rndv"
	case PktPull:
		return "Pull"
	case PktPullReply:
		return "PullReply"
	case PktNotify:
		return "Notify"
	case PktNackLib:
		return "NackLib"
	case PktNackMcp:
		return "NackMcp"
	default:
		return "Unknown"
	}
}

// NackType enumerates causes a NackMcp (or NackLib) packet reports.
type NackType uint8

const (
	NackNone NackType = iota
	NackBadEndpoint
	NackEndpointClosed
	NackBadSession
	NackBadRdmaWindow
	NackMax
)

func (n NackType) String() string {
	switch n {
	case NackNone:
		return "None"
	case NackBadEndpoint:
		return "BadEndpoint"
	case NackEndpointClosed:
		return "EndpointClosed"
	case NackBadSession:
		return "BadSession"
	case NackBadRdmaWindow:
		return "BadRdmaWindow"
	default:
		return "Unknown"
	}
}

// ConnectStatus is the status code carried in a connect reply.
type ConnectStatus uint8

const (
	ConnectSuccess ConnectStatus = 0
	ConnectBadKey  ConnectStatus = 11
)

// Profile selects between the two wire ABIs the spec describes: MX-wire
// compatible (16-bit rdma ids/offsets, 4096-byte fragments) and native
// (32-bit rdma ids/offsets, MTU-sized fragments).
type Profile struct {
	Name           string
	MTU            int
	MXWireCompat   bool
	PullReplyMax   int // OMX_PULL_REPLY_LENGTH_MAX
	MediumFragMax  int // OMX_MEDIUM_FRAG_LENGTH_MAX
	PullReplyBlock int // OMX_PULL_REPLY_PER_BLOCK: frames per block
}

// NativeProfile is the default ABI used when no MX wire-compat is requested.
// PullReplyMax is the MTU minus the packet head and pull-reply header
// (8968 bytes for the 9000-byte default), and MediumFragMax is capped at
// 8192 bytes.
func NativeProfile(mtu int) Profile {
	if mtu <= 0 {
		mtu = 9000 // jumbo-frame friendly default
	}
	pullReplyMax := mtu - PktHeadSize - PullReplyHdrSize
	mediumFragMax := mtu - PktHeadSize - MediumFragHdrSize
	if mediumFragMax > 8192 {
		mediumFragMax = 8192
	}
	return Profile{
		Name:           "native",
		MTU:            mtu,
		MXWireCompat:   false,
		PullReplyMax:   pullReplyMax,
		MediumFragMax:  mediumFragMax,
		PullReplyBlock: 32,
	}
}

// MXCompatProfile matches the fixed MX wire layout: 4096-byte fragments
// regardless of MTU, 8 replies per pull block.
func MXCompatProfile() Profile {
	return Profile{
		Name:           "mx-compat",
		MTU:            PktHeadSize + PullReplyHdrSize + 4096,
		MXWireCompat:   true,
		PullReplyMax:   4096,
		MediumFragMax:  4096,
		PullReplyBlock: 8,
	}
}

// BitmapBits returns the width of the frames-missing bitmap: the smallest
// unsigned type whose bit count is >= PullReplyBlock (8 on MX-wire-compat,
// 32 on native).
func (p Profile) BitmapBits() int {
	if p.MXWireCompat {
		return 8
	}
	return 32
}

// PullBlockLengthMax is OMX_PULL_BLOCK_LENGTH_MAX: the max bytes carried by
// one fully-populated block of reply frames.
func (p Profile) PullBlockLengthMax() int {
	return p.PullReplyMax * p.PullReplyBlock
}

// Fixed structural sizes, independent of ABI profile.
const (
	PktHeadSize      = 16 // ethernet head + sender peer index
	PullReplyHdrSize = 16 // omx_pkt_pull_reply fixed portion
	MediumFragHdrSize = 32 // omx_pkt_medium_frag fixed portion (msg + frag fields)

	EndpointIndexMax = 256
	PeerIndexMax     = 65536

	// Ring sizing per spec.md §3.
	SendqEntries  = 1024
	RecvqEntries  = 1024
	ExpEventqLen  = 1024
	UnexpEventqLen = 1024
	EventRecordSize = 64

	PullSlotsMax      = 1024
	PullBlockDescsNr  = 4 // OMX_PULL_BLOCK_DESCS_NR

	TinyMax  = 32
	SmallMax = 128

	UserRegionsMax = 256

	// EtherTypeOMX tags every frame this transport emits, distinguishing
	// it from ordinary Ethernet traffic on a shared link.
	EtherTypeOMX uint16 = 0x86df
)
