// Package counters implements the fixed per-interface counter array
// (OMX_COUNTER_INDEX_MAX entries) exposed through GetCounters, grounded on
// the teacher's control/metrics.go registry but specialized to a fixed
// enum and atomic increments instead of a dynamic map, since the set of
// counters is closed and the hot path cannot afford a map lookup.
package counters

import "sync/atomic"

// Index enumerates every counter slot, mirroring the OMX_COUNTER_* enum.
type Index int

const (
	SendTiny Index = iota
	SendSmall
	SendMediumSQFrag
	SendMediumVAFrag
	SendRndv
	SendNotify
	SendConnectRequest
	SendConnectReply
	SendLibAck
	SendNackLib
	SendNackMcp
	SendPullReq
	SendPullReply
	SendRaw
	SendHostQuery
	SendHostReply

	RecvTiny
	RecvSmall
	RecvMediumFrag
	RecvRndv
	RecvNotify
	RecvConnectRequest
	RecvConnectReply
	RecvLibAck
	RecvNackLib
	RecvNackMcp
	RecvPullReq
	RecvPullReply
	RecvRaw
	RecvHostQuery
	RecvHostReply

	DMARecvMediumFrag
	DMARecvPartialMediumFrag
	DMARecvPullReply
	DMARecvPartialPullReply
	DMARecvPullReplyWaitDeferred

	RecvNonlinearHeader
	ExpEventqFull
	UnexpEventqFull
	SendNomemSkb
	SendNomemMediumDefevent
	MediumSQFragSendLinear
	PullNonfirstBlockDoneEarly
	PullRequestNotonlyfirstBlocks
	PullTimeoutHandlerFirstBlock
	PullTimeoutHandlerNonfirstBlock
	PullTimeoutAbort
	PullReplySendLinear
	PullReplyFillFailed

	DropBadHeaderDatalen
	DropBadDatalen
	DropBadSkblen
	DropBadPeerAddr
	DropBadPeerIndex
	DropBadEndpoint
	DropBadSession
	DropPullBadReplies
	DropPullBadRegion
	DropPullBadOffsetLength
	DropPullReplyBadMagicEndpoint
	DropPullReplyBadWireHandle
	DropPullReplyBadSeqnumWraparound
	DropPullReplyBadSeqnum
	DropPullReplyDuplicate
	DropNackMcpBadMagicEndpoint
	DropNackMcpBadWireHandle
	DropHostReplyBadMagic
	DropRawQueueFull
	DropRawTooLarge
	DropNosysType
	DropInvalidType
	DropUnknownType

	SharedTiny
	SharedSmall
	SharedMediumSQFrag
	SharedMediumVA
	SharedRndv
	SharedNotify
	SharedConnectRequest
	SharedConnectReply
	SharedLibAck
	SharedPull

	SharedDMAMediumFrag
	SharedDMALarge
	SharedDMAPartialLarge

	IndexMax
)

var names = [IndexMax]string{
	SendTiny:                 "send.tiny",
	SendSmall:                "send.small",
	SendMediumSQFrag:         "send.medium_sq_frag",
	SendMediumVAFrag:         "send.medium_va_frag",
	SendRndv:                 "send.rndv",
	SendNotify:               "send.notify",
	SendConnectRequest:       "send.connect_request",
	SendConnectReply:         "send.connect_reply",
	SendLibAck:               "send.lib_ack",
	SendNackLib:              "send.nack_lib",
	SendNackMcp:              "send.nack_mcp",
	SendPullReq:              "send.pull_request",
	SendPullReply:            "send.pull_reply",
	SendRaw:                  "send.raw",
	SendHostQuery:            "send.host_query",
	SendHostReply:            "send.host_reply",
	RecvTiny:                 "recv.tiny",
	RecvSmall:                "recv.small",
	RecvMediumFrag:           "recv.medium_frag",
	RecvRndv:                 "recv.rndv",
	RecvNotify:               "recv.notify",
	RecvConnectRequest:       "recv.connect_request",
	RecvConnectReply:         "recv.connect_reply",
	RecvLibAck:               "recv.lib_ack",
	RecvNackLib:              "recv.nack_lib",
	RecvNackMcp:              "recv.nack_mcp",
	RecvPullReq:              "recv.pull_request",
	RecvPullReply:            "recv.pull_reply",
	RecvRaw:                  "recv.raw",
	RecvHostQuery:            "recv.host_query",
	RecvHostReply:            "recv.host_reply",

	DMARecvMediumFrag:            "dma.recv_medium_frag",
	DMARecvPartialMediumFrag:     "dma.recv_partial_medium_frag",
	DMARecvPullReply:             "dma.recv_pull_reply",
	DMARecvPartialPullReply:      "dma.recv_partial_pull_reply",
	DMARecvPullReplyWaitDeferred: "dma.recv_pull_reply_wait_deferred",

	RecvNonlinearHeader:             "recv.nonlinear_header",
	ExpEventqFull:                   "eventq.exp_full",
	UnexpEventqFull:                 "eventq.unexp_full",
	SendNomemSkb:                    "send.nomem_skb",
	SendNomemMediumDefevent:         "send.nomem_medium_defevent",
	MediumSQFragSendLinear:          "send.medium_sq_frag_linear",
	PullNonfirstBlockDoneEarly:      "pull.nonfirst_block_done_early",
	PullRequestNotonlyfirstBlocks:   "pull.request_notonlyfirst_blocks",
	PullTimeoutHandlerFirstBlock:    "pull.timeout_handler_first_block",
	PullTimeoutHandlerNonfirstBlock: "pull.timeout_handler_nonfirst_block",
	PullTimeoutAbort:                "pull.timeout_abort",
	PullReplySendLinear:             "pull.reply_send_linear",
	PullReplyFillFailed:             "pull.reply_fill_failed",

	DropBadHeaderDatalen:             "drop.bad_header_datalen",
	DropBadDatalen:                   "drop.bad_datalen",
	DropBadSkblen:                    "drop.bad_skblen",
	DropBadPeerAddr:                  "drop.bad_peer_addr",
	DropBadPeerIndex:                 "drop.bad_peer_index",
	DropBadEndpoint:                  "drop.bad_endpoint",
	DropBadSession:                   "drop.bad_session",
	DropPullBadReplies:               "drop.pull_bad_replies",
	DropPullBadRegion:                "drop.pull_bad_region",
	DropPullBadOffsetLength:          "drop.pull_bad_offset_length",
	DropPullReplyBadMagicEndpoint:    "drop.pull_reply_bad_magic_endpoint",
	DropPullReplyBadWireHandle:       "drop.pull_reply_bad_wire_handle",
	DropPullReplyBadSeqnumWraparound: "drop.pull_reply_bad_seqnum_wraparound",
	DropPullReplyBadSeqnum:           "drop.pull_reply_bad_seqnum",
	DropPullReplyDuplicate:           "drop.pull_reply_duplicate",
	DropNackMcpBadMagicEndpoint:      "drop.nack_mcp_bad_magic_endpoint",
	DropNackMcpBadWireHandle:         "drop.nack_mcp_bad_wire_handle",
	DropHostReplyBadMagic:            "drop.host_reply_bad_magic",
	DropRawQueueFull:                 "drop.raw_queue_full",
	DropRawTooLarge:                  "drop.raw_too_large",
	DropNosysType:                    "drop.nosys_type",
	DropInvalidType:                  "drop.invalid_type",
	DropUnknownType:                  "drop.unknown_type",

	SharedTiny:           "shared.tiny",
	SharedSmall:          "shared.small",
	SharedMediumSQFrag:   "shared.medium_sq_frag",
	SharedMediumVA:       "shared.medium_va",
	SharedRndv:           "shared.rndv",
	SharedNotify:         "shared.notify",
	SharedConnectRequest: "shared.connect_request",
	SharedConnectReply:   "shared.connect_reply",
	SharedLibAck:         "shared.lib_ack",
	SharedPull:           "shared.pull",

	SharedDMAMediumFrag:  "shared.dma_medium_frag",
	SharedDMALarge:       "shared.dma_large",
	SharedDMAPartialLarge: "shared.dma_partial_large",
}

// String returns the human-readable name of a counter index.
func (i Index) String() string {
	if i < 0 || i >= IndexMax {
		return "unknown"
	}
	return names[i]
}

// Array is a fixed per-interface counter bank. Increments are plain
// atomic adds: the spec only requires they be "non-racy for statistics",
// not linearizable with the events they accompany.
type Array struct {
	counts [IndexMax]atomic.Uint64
}

// Inc bumps counter idx by one.
func (a *Array) Inc(idx Index) {
	if idx < 0 || idx >= IndexMax {
		return
	}
	a.counts[idx].Add(1)
}

// Snapshot copies every counter value into a fresh slice, optionally
// clearing the live counters afterward (GetCounters' `clear` parameter).
func (a *Array) Snapshot(clear bool) [IndexMax]uint64 {
	var out [IndexMax]uint64
	for i := range a.counts {
		if clear {
			out[i] = a.counts[i].Swap(0)
		} else {
			out[i] = a.counts[i].Load()
		}
	}
	return out
}
