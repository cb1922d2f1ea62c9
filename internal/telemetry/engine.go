// Package telemetry computes host utilization from the cumulative counters
// a FreeBSD host exposes. Counter families (CPU ticks, interface bytes) are
// deltas between two polls, so the engine keeps exactly one previous sample
// per family; the slot is overwritten on every poll no matter what the
// computation produced.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/rileyhilliard/beacon/internal/logger"
	"github.com/rileyhilliard/beacon/internal/parsers"
)

// Runner is the slice of the executor the engine needs. Each poll runs its
// commands through the shared gate like any other batch command.
type Runner interface {
	RunDetailed(ctx context.Context, cmd string) (stdout, stderr string, err error)
}

// Engine polls one host and turns raw counters into rates and percentages.
// Not safe for concurrent polls of the same family; Snapshot serializes per
// family internally.
type Engine struct {
	runner Runner
	log    logger.Logger

	// now is swappable so rate math is testable with a fixed clock.
	now func() time.Time

	cpuMu sync.Mutex
	cpu   cpuState

	netMu sync.Mutex
	net   netState
}

// NewEngine creates an engine polling through the given runner.
func NewEngine(runner Runner) *Engine {
	return &Engine{
		runner: runner,
		log:    logger.Default(),
		now:    time.Now,
	}
}

// Snapshot is one combined poll of every metric family. Families that
// failed carry their error text; the others are still populated.
type Snapshot struct {
	Taken time.Time

	CPUCores []float64
	CPUErr   string

	Interfaces []InterfaceRate
	NetErr     string

	Disks   []parsers.DiskActivity
	DiskErr string
}

// TakeSnapshot polls CPU, network, and disk in parallel. Each family holds
// its own gate ticket via the runner, and one family failing never discards
// the others.
func (e *Engine) TakeSnapshot(ctx context.Context) *Snapshot {
	snap := &Snapshot{Taken: e.now()}

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		cores, err := e.PollCPUCores(ctx)
		if err != nil {
			snap.CPUErr = err.Error()
			return
		}
		snap.CPUCores = cores
	}()

	go func() {
		defer wg.Done()
		ifaces, err := e.PollNetworkInterfaces(ctx)
		if err != nil {
			snap.NetErr = err.Error()
			return
		}
		snap.Interfaces = ifaces
	}()

	go func() {
		defer wg.Done()
		disks, err := e.PollDiskIO(ctx)
		if err != nil {
			snap.DiskErr = err.Error()
			return
		}
		snap.Disks = disks
	}()

	wg.Wait()
	if snap.CPUErr != "" || snap.NetErr != "" || snap.DiskErr != "" {
		e.log.Debug("partial snapshot: cpu=%q net=%q disk=%q",
			snap.CPUErr, snap.NetErr, snap.DiskErr)
	}
	return snap
}
