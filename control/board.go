// control/board.go
//
// Domain wiring of the control-plane surface (spec.md §6's GetBoardInfo /
// GetEndpointInfo / GetCounters / SetHostname) onto the generic
// ConfigStore / MetricsRegistry / DebugProbes already in this package:
// hostname lives in ConfigStore (so SetHostname participates in
// hot-reload the same way any other config key would), and each
// interface's counter snapshot is published into MetricsRegistry on
// request rather than polled continuously, matching the teacher's
// "read on demand, not push" metrics style.

package control

import (
	"github.com/ananos/omx-go/api"
	"github.com/ananos/omx-go/counters"
	"github.com/ananos/omx-go/iface"
)

const hostnameConfigKey = "iface.hostname"

// BoardInfo answers GetBoardInfo.
type BoardInfo struct {
	Addr     [6]byte
	MTU      int
	NUMA     int
	Status   string
	Hostname string
	Iface    string
	Driver   string
}

// EndpointInfo answers GetEndpointInfo.
type EndpointInfo struct {
	Closed bool
}

// Board adapts one iface.Interface onto the control-plane operations,
// keeping hostname in the shared ConfigStore so SetHostname fires the
// same reload hooks any other config write would.
type Board struct {
	iface   *iface.Interface
	numa    int
	cfg     *ConfigStore
	metrics *MetricsRegistry
}

// NewBoard wires one interface into the control surface. cfg/metrics may
// be shared across every board on the host.
func NewBoard(i *iface.Interface, numaNode int, cfg *ConfigStore, metrics *MetricsRegistry) *Board {
	b := &Board{iface: i, numa: numaNode, cfg: cfg, metrics: metrics}
	if _, ok := cfg.GetSnapshot()[hostnameConfigKey]; !ok {
		if host := platformHostname(); host != "" {
			cfg.SetConfig(map[string]any{hostnameConfigKey: host})
		} else {
			cfg.SetConfig(map[string]any{hostnameConfigKey: i.Hostname})
		}
	}
	return b
}

// GetBoardInfo answers the GetBoardInfo control operation.
func (b *Board) GetBoardInfo() BoardInfo {
	snap := b.cfg.GetSnapshot()
	hostname, _ := snap[hostnameConfigKey].(string)
	return BoardInfo{
		Addr:     b.iface.MAC,
		MTU:      b.iface.MTU,
		NUMA:     b.numa,
		Status:   "attached",
		Hostname: hostname,
		Iface:    b.iface.Name,
		Driver:   b.iface.Driver,
	}
}

// GetEndpointInfo answers GetEndpointInfo for one endpoint slot.
func (b *Board) GetEndpointInfo(index int) EndpointInfo {
	return EndpointInfo{Closed: b.iface.Endpoint(index) == nil}
}

// SetHostname implements SetHostname: it rejects an empty name with
// api.ErrInvalidArgument and otherwise stores the name in the config
// store. There is no Perm failure mode (the real driver's requires
// privilege separation this repository does not model).
func (b *Board) SetHostname(name string) error {
	if name == "" {
		return api.ErrInvalidArgument
	}
	b.cfg.SetConfig(map[string]any{hostnameConfigKey: name})
	return nil
}

// GetCounters answers GetCounters: a snapshot of the interface's counter
// array, optionally clearing it, additionally published into the shared
// MetricsRegistry under one key per nonzero counter so external
// dashboards built on MetricsRegistry.GetSnapshot see the same numbers.
func (b *Board) GetCounters(clear bool) [counters.IndexMax]uint64 {
	snap := b.iface.Counters.Snapshot(clear)
	for i, v := range snap {
		if v != 0 {
			b.metrics.Set("counter."+counters.Index(i).String(), v)
		}
	}
	return snap
}
