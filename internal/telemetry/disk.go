package telemetry

import (
	"context"
	"strings"

	"github.com/rileyhilliard/beacon/internal/parsers"
)

const cmdDiskActivity = "iostat -d -x"

// PollDiskIO returns instantaneous read/write KB/s per disk device. iostat
// already reports rates, so this family is stateless. Pass-through devices
// (pass*, cd*) are excluded; they are SCSI enclosure and optical endpoints,
// not disks.
func (e *Engine) PollDiskIO(ctx context.Context) ([]parsers.DiskActivity, error) {
	out, _, err := e.runner.RunDetailed(ctx, cmdDiskActivity)
	if err != nil {
		return nil, err
	}

	all := parsers.ParseIostatDevices(out)
	disks := make([]parsers.DiskActivity, 0, len(all))
	for _, d := range all {
		if strings.HasPrefix(d.Name, "pass") || strings.HasPrefix(d.Name, "cd") {
			continue
		}
		disks = append(disks, d)
	}
	return disks, nil
}
