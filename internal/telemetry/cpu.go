package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rileyhilliard/beacon/internal/errors"
	"github.com/rileyhilliard/beacon/internal/parsers"
)

// kern.cp_times reports a flat vector of cumulative scheduler ticks,
// categoriesPerCore entries per core: user, nice, system, interrupt, idle.
const categoriesPerCore = 5

const (
	cmdCoreCount = "sysctl -n hw.ncpu"
	cmdCPUTicks  = "sysctl -n kern.cp_times"
)

// cpuState is the previous tick vector, kept for delta computation.
type cpuState struct {
	ticks []uint64 // length = cores * categoriesPerCore, nil before first poll
}

// PollCPUCores returns per-core busy percentages since the previous poll.
// The first poll, and any poll after the core count changed, reports zeros
// for every core and seeds the baseline.
func (e *Engine) PollCPUCores(ctx context.Context) ([]float64, error) {
	countOut, _, err := e.runner.RunDetailed(ctx, cmdCoreCount)
	if err != nil {
		return nil, err
	}
	cores, err := strconv.Atoi(strings.TrimSpace(countOut))
	if err != nil || cores <= 0 {
		return nil, errors.New(errors.ErrParse,
			fmt.Sprintf("Unexpected core count from remote: %q", strings.TrimSpace(countOut)),
			"The host must expose hw.ncpu via sysctl")
	}

	ticksOut, _, err := e.runner.RunDetailed(ctx, cmdCPUTicks)
	if err != nil {
		return nil, err
	}
	ticks, err := parsers.ParseCounterVector(ticksOut)
	if err != nil {
		return nil, errors.Wrap(err, "Couldn't parse the CPU tick vector")
	}

	want := cores * categoriesPerCore
	if len(ticks) < want {
		return nil, errors.New(errors.ErrParse,
			fmt.Sprintf("CPU tick vector has %d entries, need %d for %d cores", len(ticks), want, cores),
			"kern.cp_times and hw.ncpu disagree; the host may be mid-reconfiguration")
	}
	// Extra trailing entries can appear when kern.cp_times rounds up to a
	// power of two; only the first cores*5 are real.
	ticks = ticks[:want]

	e.cpuMu.Lock()
	prev := e.cpu.ticks
	e.cpu.ticks = ticks
	e.cpuMu.Unlock()

	usage := make([]float64, cores)
	if len(prev) != len(ticks) {
		// First poll or core count changed: no valid baseline, report zeros.
		return usage, nil
	}

	for core := 0; core < cores; core++ {
		base := core * categoriesPerCore
		var busy, total float64
		for cat := 0; cat < categoriesPerCore; cat++ {
			d := tickDelta(prev[base+cat], ticks[base+cat])
			total += d
			if cat != categoriesPerCore-1 { // last category is idle
				busy += d
			}
		}
		if total > 0 {
			usage[core] = 100 * busy / total
		}
	}
	return usage, nil
}

// tickDelta clamps counter regressions (reboot, wrap) to zero.
func tickDelta(prev, cur uint64) float64 {
	if cur < prev {
		return 0
	}
	return float64(cur - prev)
}
