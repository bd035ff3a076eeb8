package wire_test

import (
	"testing"

	"github.com/ananos/omx-go/wire"
)

func TestHeadRoundTrip(t *testing.T) {
	h := wire.Head{
		Eth:           wire.EthHeader{DstMAC: [6]byte{1, 2, 3, 4, 5, 6}, SrcMAC: [6]byte{6, 5, 4, 3, 2, 1}, EtherType: 0x86df},
		SenderPeerIdx: 42,
	}
	buf := make([]byte, wire.PktHeadSize)
	n := wire.EncodeHead(buf, h)
	if n != wire.PktHeadSize {
		t.Fatalf("EncodeHead returned %d, want %d", n, wire.PktHeadSize)
	}
	got, err := wire.DecodeHead(buf)
	if err != nil {
		t.Fatalf("DecodeHead: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestDecodeHeadShortBuffer(t *testing.T) {
	if _, err := wire.DecodeHead(make([]byte, wire.PktHeadSize-1)); err != wire.ErrShortBuffer {
		t.Fatalf("want ErrShortBuffer, got %v", err)
	}
}

func TestMsgWithPayloadRoundTrip(t *testing.T) {
	m := wire.Msg{
		DstEndpoint: 3, SrcEndpoint: 7, Length: 5, LibSeqnum: 99,
		PiggyAck: 1, MatchA: 0xdeadbeef, MatchB: 0xcafef00d, Session: 0x1234,
	}
	buf := make([]byte, 64)
	n := wire.EncodeMsg(buf, wire.PktTiny, m)
	copy(buf[n:], []byte("hello"))

	gotMsg, gotPayload, err := wire.DecodeMsgWithPayload(buf[1:]) // caller strips the type byte first
	if err != nil {
		t.Fatalf("DecodeMsgWithPayload: %v", err)
	}
	if gotMsg != m {
		t.Fatalf("round trip mismatch: got %+v, want %+v", gotMsg, m)
	}
	if string(gotPayload[:5]) != "hello" {
		t.Fatalf("payload = %q, want hello", gotPayload[:5])
	}
}

func TestPullRequestNativeRoundTrip(t *testing.T) {
	pr := wire.PullRequest{
		DstEndpoint: 1, SrcEndpoint: 2, Session: 0xaabb, TotalLength: 4096,
		PulledRdmaID: 7, PulledRdmaSeqnum: 3, PulledRdmaOffset: 128,
		SrcPullHandle: 55, SrcMagic: 0x4f4d58, FirstFrameOffset: 0,
		BlockLength: 1024, FrameIndex: 2,
	}
	buf := make([]byte, 64)
	n := wire.EncodePullRequest(buf, pr)
	got, err := wire.DecodePullRequest(buf[1:n])
	if err != nil {
		t.Fatalf("DecodePullRequest: %v", err)
	}
	if got != pr {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, pr)
	}
}

func TestPullRequestMXCompatNarrowsWidths(t *testing.T) {
	pr := wire.PullRequest{
		DstEndpoint: 1, SrcEndpoint: 2, Session: 0xaabb, TotalLength: 4096,
		PulledRdmaID: 0x1234, PulledRdmaSeqnum: 3, PulledRdmaOffset: 0x2222,
		SrcPullHandle: 55, SrcMagic: 0x4f4d58, FirstFrameOffset: 10,
		BlockLength: 4096, FrameIndex: 2,
	}
	buf := make([]byte, 64)
	n := wire.EncodePullRequestMX(buf, pr)
	got, err := wire.DecodePullRequestMX(buf[1:n])
	if err != nil {
		t.Fatalf("DecodePullRequestMX: %v", err)
	}
	if got != pr {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, pr)
	}
}

func TestPullRequestForProfileDispatch(t *testing.T) {
	pr := wire.PullRequest{DstEndpoint: 1, SrcEndpoint: 2, Session: 1, SrcPullHandle: 9, SrcMagic: 9}
	buf := make([]byte, 64)

	native := wire.NativeProfile(9000)
	n := wire.EncodePullRequestForProfile(buf, pr, native)
	if _, err := wire.DecodePullRequestForProfile(buf[1:n], native); err != nil {
		t.Fatalf("native profile round trip: %v", err)
	}

	mx := wire.MXCompatProfile()
	n = wire.EncodePullRequestForProfile(buf, pr, mx)
	if _, err := wire.DecodePullRequestForProfile(buf[1:n], mx); err != nil {
		t.Fatalf("mx-compat profile round trip: %v", err)
	}
}

func TestProfileBitmapBitsAndBlockMax(t *testing.T) {
	native := wire.NativeProfile(9000)
	if native.BitmapBits() != 32 {
		t.Fatalf("native BitmapBits = %d, want 32", native.BitmapBits())
	}
	mx := wire.MXCompatProfile()
	if mx.BitmapBits() != 8 {
		t.Fatalf("mx-compat BitmapBits = %d, want 8", mx.BitmapBits())
	}
	if mx.PullBlockLengthMax() != mx.PullReplyMax*mx.PullReplyBlock {
		t.Fatalf("PullBlockLengthMax mismatch")
	}
}
