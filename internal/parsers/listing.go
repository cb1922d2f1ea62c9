package parsers

import (
	"bufio"
	"strconv"
	"strings"
	"time"
)

// DirEntry is one row of `ls -l` output.
type DirEntry struct {
	Name    string
	Mode    string
	Owner   string
	Group   string
	Size    int64
	ModTime time.Time
	IsDir   bool
	IsLink  bool
}

// monthsByName maps ls month abbreviations to time.Month.
var monthsByName = map[string]time.Month{
	"Jan": time.January, "Feb": time.February, "Mar": time.March,
	"Apr": time.April, "May": time.May, "Jun": time.June,
	"Jul": time.July, "Aug": time.August, "Sep": time.September,
	"Oct": time.October, "Nov": time.November, "Dec": time.December,
}

// ParseLongListing parses `ls -l` output into directory entries.
// ls prints either a time of day (recent files) or a year (older files) in
// the timestamp column; the two are told apart by the presence of a colon.
// When only a time of day is present the year is reconstructed relative to
// now: ls never shows a future date, so a reconstructed date ahead of now
// means the file is from last year.
//
// Total lines, truncated lines, and rows that don't look like listings are
// dropped.
func ParseLongListing(now time.Time, text string) []DirEntry {
	var entries []DirEntry

	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "total ") {
			continue
		}

		fields := strings.Fields(line)
		// mode links owner group size month day time|year name...
		if len(fields) < 9 {
			continue
		}

		mode := fields[0]
		switch mode[0] {
		case '-', 'd', 'l', 'b', 'c', 's', 'p':
		default:
			continue
		}

		size, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			continue
		}

		month, ok := monthsByName[fields[5]]
		if !ok {
			continue
		}
		day, err := strconv.Atoi(fields[6])
		if err != nil {
			continue
		}

		modTime, ok := reconstructTime(now, month, day, fields[7])
		if !ok {
			continue
		}

		name := strings.Join(fields[8:], " ")
		if mode[0] == 'l' {
			// Strip the symlink target
			if idx := strings.Index(name, " -> "); idx >= 0 {
				name = name[:idx]
			}
		}

		entries = append(entries, DirEntry{
			Name:    name,
			Mode:    mode,
			Owner:   fields[2],
			Group:   fields[3],
			Size:    size,
			ModTime: modTime,
			IsDir:   mode[0] == 'd',
			IsLink:  mode[0] == 'l',
		})
	}

	return entries
}

// reconstructTime builds a timestamp from the month/day columns plus either
// an HH:MM time-of-day or a bare year.
func reconstructTime(now time.Time, month time.Month, day int, clockOrYear string) (time.Time, bool) {
	if strings.Contains(clockOrYear, ":") {
		parts := strings.SplitN(clockOrYear, ":", 2)
		hour, errH := strconv.Atoi(parts[0])
		minute, errM := strconv.Atoi(parts[1])
		if errH != nil || errM != nil {
			return time.Time{}, false
		}
		t := time.Date(now.Year(), month, day, hour, minute, 0, 0, now.Location())
		if t.After(now) {
			t = t.AddDate(-1, 0, 0)
		}
		return t, true
	}

	year, err := strconv.Atoi(clockOrYear)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(year, month, day, 0, 0, 0, 0, now.Location()), true
}
