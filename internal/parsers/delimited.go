package parsers

import (
	"bufio"
	"strings"
)

// ParseKeyValue parses key=value lines (sysctl -e style) into a map.
// Lines without an = sign are dropped. A value may itself contain = signs;
// only the first one splits.
func ParseKeyValue(text string) map[string]string {
	out := make(map[string]string)

	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		out[key] = strings.TrimSpace(line[idx+1:])
	}

	return out
}

// ParsePipeDelimited parses pipe-separated rows, e.g. the output of
// `pkg query '%n|%v|%c'`. Rows with fewer than minFields columns are
// dropped. Fields are trimmed of surrounding whitespace.
func ParsePipeDelimited(text string, minFields int) [][]string {
	return parseDelimited(text, "|", minFields)
}

// ParseTabDelimited parses tab-separated rows, e.g. the output of
// `zfs list -Hp`. Rows with fewer than minFields columns are dropped.
func ParseTabDelimited(text string, minFields int) [][]string {
	return parseDelimited(text, "\t", minFields)
}

func parseDelimited(text, sep string, minFields int) [][]string {
	var rows [][]string

	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, sep)
		if len(fields) < minFields {
			continue
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		rows = append(rows, fields)
	}

	return rows
}
