// File: cmd/omxd/main.go
// Author: momentics <momentics@gmail.com>
//
// Minimal in-process loopback demonstrating the transport core end to
// end: one interface, two endpoints, a Tiny send/recv round trip, and a
// pull-based rendezvous transfer driven directly against a real region.
// There is no physical NIC here — Interface.Send hands the frame straight
// to the classifier of whichever endpoint's interface owns it, simulating
// a wire with zero latency, in the same spirit as the teacher's
// examples/reactor_echo loopback demos.
package main

import (
	"flag"
	"fmt"
	"log"
	"runtime"
	"time"

	"github.com/ananos/omx-go/affinity"
	"github.com/ananos/omx-go/classifier"
	"github.com/ananos/omx-go/counters"
	"github.com/ananos/omx-go/endpoint"
	"github.com/ananos/omx-go/event"
	"github.com/ananos/omx-go/iface"
	"github.com/ananos/omx-go/pool"
	"github.com/ananos/omx-go/pull"
	"github.com/ananos/omx-go/region"
	"github.com/ananos/omx-go/wire"
)

func main() {
	mxCompat := flag.Bool("mx-compat", false, "use the MX-wire-compatible profile instead of native")
	cpu := flag.Int("cpu", -1, "pin the interface's simulated NIC thread to this CPU core (-1 leaves it unpinned)")
	flag.Parse()

	profile := wire.NativeProfile(9000)
	if *mxCompat {
		profile = wire.MXCompatProfile()
	}

	if *cpu >= 0 {
		runtime.LockOSThread()
		if err := affinity.SetAffinity(*cpu); err != nil {
			log.Printf("affinity: %v (continuing unpinned)", err)
		}
	}

	bufferPool := pool.NewBufferPoolManager()
	b := newBoard(profile, bufferPool)
	defer b.close()

	if err := b.it.SendTiny(iface.SendParams{
		SrcEndpoint: 0,
		DstEndpoint: 1,
		Session:     b.it.Endpoint(1).SessionID(),
	}, 0, []byte("hello from endpoint 0")); err != nil {
		log.Fatalf("send tiny: %v", err)
	}
	b.drainUnexp(1)

	b.runMediumDemo()
	b.runConnectDemo()
	b.runPullDemo()
}

// board bundles one simulated interface and the two endpoints the demo
// exchanges traffic between; it owns the classifier and the callbacks
// the classifier needs (pull-request servicing, cross-endpoint handle
// lookup) since those require interface-wide knowledge the core packages
// deliberately don't have.
type board struct {
	it  *iface.Interface
	c   *classifier.Classifier
	ctr *counters.Array
}

func newBoard(profile wire.Profile, bufferPool *pool.BufferPoolManager) *board {
	b := &board{ctr: &counters.Array{}}
	b.it = iface.New(0, "omx0", "loopback", "demo-host", profile.MTU,
		[6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}, profile, b.send, bufferPool, -1)

	b.c = classifier.New(b.it.Endpoint, b.it.CheckRecvPeerIndex, b.sendNack, b.servicePull, b.lookupHandle, b.ctr)

	if _, err := b.it.OpenEndpoint(0, 0xcafe); err != nil {
		log.Fatalf("open endpoint 0: %v", err)
	}
	if _, err := b.it.OpenEndpoint(1, 0xbabe); err != nil {
		log.Fatalf("open endpoint 1: %v", err)
	}
	return b
}

func (b *board) close() {
	b.it.CloseEndpoint(0)
	b.it.CloseEndpoint(1)
}

// send is the simulated NIC: every frame handed to it is immediately
// decoded and dispatched, exactly as if it had been received off the
// wire by the interface it was sent on.
func (b *board) send(frame []byte) error {
	head, err := wire.DecodeHead(frame)
	if err != nil {
		return err
	}
	f := wire.Frame{Head: head, Type: wire.PacketType(frame[wire.PktHeadSize]), Payload: frame[wire.PktHeadSize+1:]}
	b.c.Dispatch(f)
	return nil
}

func (b *board) sendNack(dstPeerIdx uint16, srcEndpoint, dstEndpoint uint8, libSeqnum uint16, session uint32, reason wire.NackType) {
	fmt.Printf("nack: peer=%d reason=%v\n", dstPeerIdx, reason)
}

// drainUnexp prints every RecvTiny event posted to an endpoint's
// unexpected queue (other event types are skipped), then calls
// ReleaseUnexpSlots, mirroring the libopen-mx wait_event/release loop.
func (b *board) drainUnexp(endpointIndex uint8) {
	ep := b.it.Endpoint(int(endpointIndex))
	next := ep.NextUnexp()
	for i := uint32(0); i < next; i++ {
		rec := ep.PeekUnexp(i)
		if rec.Type() == event.TypeRecvTiny {
			p := event.DecodeRecvTiny(rec)
			fmt.Printf("endpoint %d recv tiny from endpoint %d: %q\n", endpointIndex, p.SrcEndpoint, p.Data[:p.Length])
		}
	}
	if err := ep.ReleaseUnexpSlots(); err != nil {
		log.Printf("release unexp slots: %v", err)
	}
}

// runMediumDemo sends one MediumSQ fragment out of endpoint 0's sendq and
// prints the SendMediumFragDone completion once it lands on the expected
// event queue, exercising the sendq-slot-reuse path spec.md §4.2 describes.
func (b *board) runMediumDemo() {
	src := b.it.Endpoint(0)
	dst := b.it.Endpoint(1)

	offset, buf := src.AllocSendqSlot()
	payload := []byte("medium fragment payload")
	copy(buf, payload)

	if err := b.it.SendMediumSQ(src, iface.SendParams{
		SrcEndpoint: 0,
		DstEndpoint: 1,
		Session:     dst.SessionID(),
	}, offset, 0, 0, buf[:len(payload)]); err != nil {
		log.Printf("send mediumSQ: %v", err)
		return
	}

	next := src.NextExp()
	rec := src.PeekExp(next - 1)
	if rec.Type() == event.TypeSendMediumFragDone {
		done := event.DecodeSendMediumFragDone(rec)
		fmt.Printf("endpoint 0 mediumSQ done: sendq offset %d free for reuse\n", done.SendqOffset)
	}
	if err := src.ReleaseExpSlots(); err != nil {
		log.Printf("release exp slots: %v", err)
	}
	b.drainUnexp(1)
}

// runConnectDemo exercises the connect request/reply handshake: endpoint 0
// asks to connect to endpoint 1, which replies with ConnectSuccess.
func (b *board) runConnectDemo() {
	if err := b.it.SendConnectRequest(0, 0, 1, 0, b.it.Endpoint(0).SessionID(), 0xcafebabe, 0, 0); err != nil {
		log.Printf("send connect request: %v", err)
		return
	}
	ep := b.it.Endpoint(1)
	next := ep.NextUnexp()
	if next == 0 {
		return
	}
	rec := ep.PeekUnexp(next - 1)
	if rec.Type() == event.TypeRecvConnectRequest {
		req := event.DecodeRecvConnectRequest(rec)
		if err := b.it.SendConnectReply(0, 1, 0, req.Seqnum, ep.SessionID(), req.AppKey, req.TargetRecvSeqnum, req.ConnectSeqnum, wire.ConnectSuccess); err != nil {
			log.Printf("send connect reply: %v", err)
		}
	}
	if err := ep.ReleaseUnexpSlots(); err != nil {
		log.Printf("release unexp slots: %v", err)
	}
	b.drainUnexp(0)
}

// servicePull is the classifier's PullRequestHandler: it reads the
// requested block directly out of the endpoint's region and transmits
// one PullReply frame per frame in the block.
func (b *board) servicePull(ep *endpoint.Endpoint, req wire.PullRequest, senderPeer uint16) {
	r := ep.Region(0)
	if r == nil {
		return
	}
	profile := ep.Profile()
	replyMax := profile.PullReplyMax
	cache := region.NewOffsetCache(r)
	cache.Seek(int64(req.FirstFrameOffset))

	remaining := int(req.BlockLength)
	frameIdx := req.FrameIndex
	offset := req.FirstFrameOffset
	for remaining > 0 {
		n := replyMax
		if n > remaining {
			n = remaining
		}
		buf := make([]byte, n)
		r.CopyOut(cache, buf)
		frame := make([]byte, wire.PktHeadSize+1+32+n)
		wire.EncodeHead(frame, wire.Head{Eth: wire.EthHeader{DstMAC: b.it.MAC, SrcMAC: b.it.MAC, EtherType: wire.EtherTypeOMX}, SenderPeerIdx: senderPeer})
		m := wire.EncodePullReply(frame[wire.PktHeadSize:], wire.PullReply{
			FrameSeqnum:   uint8(frameIdx),
			FrameLength:   uint16(n),
			MsgOffset:     offset,
			DstPullHandle: req.SrcPullHandle,
			DstMagic:      req.SrcMagic,
			Payload:       buf,
		})
		if err := b.it.Send(frame[:wire.PktHeadSize+m]); err != nil {
			log.Printf("pull reply send: %v", err)
		}
		remaining -= n
		offset += uint32(n)
		frameIdx++
	}
}

// lookupHandle resolves a pull handle by slot id/magic across every
// endpoint on the interface, since a PullReply/NackMcp does not itself
// say which endpoint owns the handle.
func (b *board) lookupHandle(slotID, magic uint32) *pull.Handle {
	for i := 0; i < wire.EndpointIndexMax; i++ {
		ep := b.it.Endpoint(i)
		if ep == nil || ep.PullMagic() != magic {
			continue
		}
		if h := ep.PullManager().Lookup(pull.SlotID(slotID)); h != nil {
			return h
		}
	}
	return nil
}

// runPullDemo pins a small region on endpoint 0, issues a pull handle on
// endpoint 1 for it, and lets the retransmit-free happy path run the
// reply stream through to completion.
func (b *board) runPullDemo() {
	srcEP := b.it.Endpoint(0)
	dstEP := b.it.Endpoint(1)

	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(i)
	}

	srcID, srcRegion, err := srcEP.CreateUserRegion(region.PinSynchronous, []region.SegmentSpec{{Length: int64(len(payload))}})
	if err != nil {
		log.Fatalf("create src region: %v", err)
	}
	srcRegion.CopyIn(region.NewOffsetCache(srcRegion), payload)

	dstID, dstRegion, err := dstEP.CreateUserRegion(region.PinSynchronous, []region.SegmentSpec{{Length: int64(len(payload))}})
	if err != nil {
		log.Fatalf("create dst region: %v", err)
	}
	dstRegion.MarkDirty()

	done := make(chan event.PullDonePayload, 1)
	h := dstEP.PullManager().Create(pull.Params{
		DstEndpoint:  0, // src region's owning endpoint
		SrcEndpoint:  1, // puller's own endpoint
		Session:      srcEP.SessionID(),
		PulledRdmaID: uint32(srcID),
		TotalLength:  uint32(len(payload)),
		Magic:        dstEP.PullMagic(),
		Profile:      dstEP.Profile(),
		Region:       dstRegion,
		Sender: func(req wire.PullRequest) {
			frame := make([]byte, wire.PktHeadSize+1+64)
			wire.EncodeHead(frame, wire.Head{Eth: wire.EthHeader{DstMAC: b.it.MAC, SrcMAC: b.it.MAC, EtherType: wire.EtherTypeOMX}, SenderPeerIdx: 0})
			n := wire.EncodePullRequestForProfile(frame[wire.PktHeadSize:], req, dstEP.Profile())
			if err := b.it.Send(frame[:wire.PktHeadSize+n]); err != nil {
				log.Printf("pull request send: %v", err)
			}
		},
		Notify: func(p event.PullDonePayload) { done <- p },
	}, time.Now().Add(time.Second))
	defer h.Close()

	select {
	case p := <-done:
		fmt.Printf("pull done: %v (region dirty=%v id=%d)\n", p.Status, dstRegion.Dirty(), dstID)
	case <-time.After(2 * time.Second):
		fmt.Println("pull demo timed out")
	}
}

