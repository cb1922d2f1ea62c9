package executor

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"

	"github.com/rileyhilliard/beacon/internal/util"
)

// exitSentinel marks the wrapper's trailing status line. It is a reserved
// token: a command that legitimately prints "EXIT_CODE:" will confuse status
// recovery. This is a documented limitation, not defended against.
const exitSentinel = "EXIT_CODE:"

var sentinelPattern = regexp.MustCompile(`EXIT_CODE:(\d+)`)

// WrapStreaming wraps cmd so it runs under a PTY (script keeps remote tools
// in line-buffered mode) and appends the exit status as a sentinel line.
// Single quotes inside cmd are escaped so the whole command survives the
// sh -c quoting.
func WrapStreaming(cmd string) string {
	return fmt.Sprintf("script -q /dev/null sh -c %s",
		util.ShellQuote(cmd+"; echo "+exitSentinel+"$?"))
}

// sentinelScanner separates command output from the trailing sentinel.
// Frames before the sentinel pass through unchanged. The frame containing
// the sentinel has its pre-sentinel prefix emitted; everything from the
// marker on is withheld and scanned for the status once the stream ends.
// A frame suffix that could be the start of the marker is carried over to
// the next frame, so a sentinel split across frame boundaries is still
// caught; Flush returns the carry when the stream ends without one.
type sentinelScanner struct {
	seen  bool
	carry []byte
	tail  bytes.Buffer
}

func newSentinelScanner() *sentinelScanner {
	return &sentinelScanner{}
}

// Feed processes one frame and returns the bytes to forward to the caller.
func (s *sentinelScanner) Feed(frame []byte) []byte {
	if s.seen {
		s.tail.Write(frame)
		return nil
	}

	marker := []byte(exitSentinel)
	data := frame
	if len(s.carry) > 0 {
		data = append(s.carry, frame...)
		s.carry = nil
	}

	if idx := bytes.Index(data, marker); idx != -1 {
		s.seen = true
		s.tail.Write(data[idx:])
		if idx == 0 {
			return nil
		}
		out := make([]byte, idx)
		copy(out, data[:idx])
		return out
	}

	hold := markerPrefixLen(data, marker)
	if hold > 0 {
		s.carry = append([]byte(nil), data[len(data)-hold:]...)
	}
	emit := data[:len(data)-hold]
	if len(emit) == 0 {
		return nil
	}
	out := make([]byte, len(emit))
	copy(out, emit)
	return out
}

// Flush returns any held-back suffix once the stream has ended without a
// sentinel; it was ordinary output after all and still belongs to the
// caller.
func (s *sentinelScanner) Flush() []byte {
	if s.seen || len(s.carry) == 0 {
		return nil
	}
	out := s.carry
	s.carry = nil
	return out
}

// markerPrefixLen returns the length of the longest data suffix that is a
// proper prefix of marker.
func markerPrefixLen(data, marker []byte) int {
	max := len(marker) - 1
	if max > len(data) {
		max = len(data)
	}
	for k := max; k > 0; k-- {
		if bytes.Equal(data[len(data)-k:], marker[:k]) {
			return k
		}
	}
	return 0
}

// ExitCode parses the withheld sentinel text. Returns -1 when no sentinel
// arrived, which the layers above treat as "couldn't determine status".
func (s *sentinelScanner) ExitCode() int {
	if !s.seen {
		return -1
	}
	m := sentinelPattern.FindSubmatch(s.tail.Bytes())
	if m == nil {
		return -1
	}
	code, err := strconv.Atoi(string(m[1]))
	if err != nil {
		return -1
	}
	return code
}
