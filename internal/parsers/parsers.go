// Package parsers converts line-oriented text from remote commands into
// typed records. Every parser here is a pure function: same text in, same
// records out, no network or clock dependency (callers supply "now" where
// relative dates need reconstruction). Lines that don't match the expected
// shape are dropped, not treated as fatal — the remote's output format is
// not contractually guaranteed.
package parsers

import (
	"bufio"
	"strconv"
	"strings"
)

// InterfaceCounters holds cumulative byte/packet counters for one network
// interface, as reported by `netstat -ibn`.
type InterfaceCounters struct {
	Name     string
	BytesIn  int64
	BytesOut int64
}

// DiskActivity holds instantaneous per-device transfer rates, as reported
// by `iostat -d -x`.
type DiskActivity struct {
	Name      string
	ReadKBps  float64
	WriteKBps float64
}

// ParseCounterVector parses a flat whitespace-separated vector of
// non-negative integers, e.g. the output of `sysctl -n kern.cp_times`.
func ParseCounterVector(text string) ([]uint64, error) {
	fields := strings.Fields(text)
	ticks := make([]uint64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return nil, err
		}
		ticks = append(ticks, v)
	}
	return ticks, nil
}

// ParseNetstatInterfaces parses `netstat -ibn` output into per-interface
// cumulative counters. Only <Link#N> rows carry byte counts; per-address
// rows for the same interface are skipped, as are interfaces already seen.
// The address column is optional on link rows (lo0 usually omits it), so
// field positions are computed relative to the <Link#N> marker.
func ParseNetstatInterfaces(text string) []InterfaceCounters {
	var out []InterfaceCounters
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 7 {
			continue
		}

		linkIdx := -1
		for i, f := range fields {
			if strings.HasPrefix(f, "<Link#") {
				linkIdx = i
				break
			}
		}
		if linkIdx == -1 {
			continue
		}

		name := fields[0]
		if seen[name] {
			continue
		}

		rest := fields[linkIdx+1:]
		// With an address column: addr Ipkts Ierrs Idrop Ibytes Opkts Oerrs Obytes
		// Without:                     Ipkts Ierrs Idrop Ibytes Opkts Oerrs Obytes
		offset := 0
		if len(rest) > 0 {
			if _, err := strconv.ParseInt(rest[0], 10, 64); err != nil {
				offset = 1
			}
		}
		if len(rest) < offset+7 {
			continue
		}

		bytesIn, errIn := strconv.ParseInt(rest[offset+3], 10, 64)
		bytesOut, errOut := strconv.ParseInt(rest[offset+6], 10, 64)
		if errIn != nil || errOut != nil {
			continue
		}

		seen[name] = true
		out = append(out, InterfaceCounters{
			Name:     name,
			BytesIn:  bytesIn,
			BytesOut: bytesOut,
		})
	}

	return out
}

// ParseIostatDevices parses `iostat -d -x` output into per-device transfer
// rates. The rates are already instantaneous on the remote side; no delta
// computation happens here.
func ParseIostatDevices(text string) []DiskActivity {
	var out []DiskActivity

	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		// device r/s w/s kr/s kw/s ...
		if len(fields) < 5 {
			continue
		}
		if fields[0] == "device" || fields[0] == "extended" {
			continue
		}

		readKBps, errR := strconv.ParseFloat(fields[3], 64)
		writeKBps, errW := strconv.ParseFloat(fields[4], 64)
		if errR != nil || errW != nil {
			continue
		}

		out = append(out, DiskActivity{
			Name:      fields[0],
			ReadKBps:  readKBps,
			WriteKBps: writeKBps,
		})
	}

	return out
}
