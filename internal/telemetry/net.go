package telemetry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rileyhilliard/beacon/internal/parsers"
)

const cmdInterfaceCounters = "netstat -ibn"

// InterfaceRate is one interface's traffic rate in bytes per second.
type InterfaceRate struct {
	Name   string
	InBps  float64
	OutBps float64
}

// netState is the previous byte counters per interface plus when they were
// taken.
type netState struct {
	counters map[string]parsers.InterfaceCounters
	taken    time.Time
}

// PollNetworkInterfaces returns per-interface byte rates since the previous
// poll. Loopback interfaces are excluded. The first poll reports every
// interface at zero and seeds the baseline.
func (e *Engine) PollNetworkInterfaces(ctx context.Context) ([]InterfaceRate, error) {
	out, _, err := e.runner.RunDetailed(ctx, cmdInterfaceCounters)
	if err != nil {
		return nil, err
	}

	now := e.now()
	current := make(map[string]parsers.InterfaceCounters)
	for _, iface := range parsers.ParseNetstatInterfaces(out) {
		if strings.HasPrefix(iface.Name, "lo") {
			continue
		}
		current[iface.Name] = iface
	}

	e.netMu.Lock()
	prev, prevTaken := e.net.counters, e.net.taken
	e.net.counters = current
	e.net.taken = now
	e.netMu.Unlock()

	rates := make([]InterfaceRate, 0, len(current))
	elapsed := now.Sub(prevTaken).Seconds()
	for name, cur := range current {
		rate := InterfaceRate{Name: name}
		if p, ok := prev[name]; ok && elapsed > 0 {
			rate.InBps = byteDelta(p.BytesIn, cur.BytesIn) / elapsed
			rate.OutBps = byteDelta(p.BytesOut, cur.BytesOut) / elapsed
		}
		rates = append(rates, rate)
	}
	sort.Slice(rates, func(i, j int) bool { return rates[i].Name < rates[j].Name })
	return rates, nil
}

// byteDelta clamps counter regressions (interface reset, wrap) to zero.
func byteDelta(prev, cur int64) float64 {
	if cur < prev {
		return 0
	}
	return float64(cur - prev)
}

// rate unit thresholds, binary (1024) steps.
var rateUnits = []string{"B/s", "KB/s", "MB/s", "GB/s"}

// FormatRate renders a byte rate with the largest unit that keeps the value
// above one, capping at GB/s.
func FormatRate(bps float64) string {
	if bps < 0 {
		bps = 0
	}
	unit := 0
	for bps >= 1024 && unit < len(rateUnits)-1 {
		bps /= 1024
		unit++
	}
	if unit == 0 {
		return fmt.Sprintf("%.0f %s", bps, rateUnits[unit])
	}
	return fmt.Sprintf("%.1f %s", bps, rateUnits[unit])
}
