package control_test

import (
	"testing"
	"time"

	"github.com/ananos/omx-go/api"
	"github.com/ananos/omx-go/control"
	"github.com/ananos/omx-go/counters"
	"github.com/ananos/omx-go/iface"
	"github.com/ananos/omx-go/pool"
	"github.com/ananos/omx-go/wire"
)

func newTestBoard() (*control.Board, *iface.Interface) {
	i := iface.New(0, "omx0", "loopback", "seed-host", 1500,
		[6]byte{1, 2, 3, 4, 5, 6}, wire.MXCompatProfile(),
		func([]byte) error { return nil }, pool.NewBufferPoolManager(), -1)
	cfg := control.NewConfigStore()
	metrics := control.NewMetricsRegistry()
	return control.NewBoard(i, -1, cfg, metrics), i
}

func TestNewBoardSeedsHostnameFromInterface(t *testing.T) {
	// platformHostname() returns "" on Windows, in which case NewBoard
	// seeds the config from the interface itself;
	// on Linux it seeds from uname(2), so only assert it's non-empty.
	b, _ := newTestBoard()
	info := b.GetBoardInfo()
	if info.Hostname == "" {
		t.Fatalf("expected a seeded hostname")
	}
	if info.Iface != "omx0" || info.Driver != "loopback" {
		t.Fatalf("unexpected board info: %+v", info)
	}
}

func TestSetHostnameUpdatesBoardInfo(t *testing.T) {
	b, _ := newTestBoard()
	if err := b.SetHostname("newhost"); err != nil {
		t.Fatalf("SetHostname: %v", err)
	}
	if got := b.GetBoardInfo().Hostname; got != "newhost" {
		t.Fatalf("Hostname = %q, want newhost", got)
	}
}

func TestSetHostnameRejectsEmpty(t *testing.T) {
	b, _ := newTestBoard()
	if err := b.SetHostname(""); err != api.ErrInvalidArgument {
		t.Fatalf("want ErrInvalidArgument, got %v", err)
	}
}

func TestGetEndpointInfoReflectsOpenClose(t *testing.T) {
	b, i := newTestBoard()
	if !b.GetEndpointInfo(0).Closed {
		t.Fatalf("endpoint 0 should report closed before open")
	}
	if _, err := i.OpenEndpoint(0, 1); err != nil {
		t.Fatalf("OpenEndpoint: %v", err)
	}
	if b.GetEndpointInfo(0).Closed {
		t.Fatalf("endpoint 0 should report open after OpenEndpoint")
	}
}

func TestGetCountersPublishesNonzeroIntoMetrics(t *testing.T) {
	b, i := newTestBoard()
	i.Counters.Inc(counters.RecvTiny)
	i.Counters.Inc(counters.RecvTiny)

	snap := b.GetCounters(false)
	if snap[counters.RecvTiny] != 2 {
		t.Fatalf("RecvTiny = %d, want 2", snap[counters.RecvTiny])
	}

	metrics := control.NewMetricsRegistry()
	b2 := control.NewBoard(i, -1, control.NewConfigStore(), metrics)
	b2.GetCounters(false)
	if _, ok := metrics.GetSnapshot()["counter."+counters.RecvTiny.String()]; !ok {
		t.Fatalf("expected RecvTiny counter to be published into metrics")
	}
}

func TestConfigStoreOnReloadFiresOnSetConfig(t *testing.T) {
	cfg := control.NewConfigStore()
	fired := make(chan struct{}, 1)
	cfg.OnReload(func() { fired <- struct{}{} })
	cfg.SetConfig(map[string]any{"k": "v"})
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("reload listener never fired")
	}
}
