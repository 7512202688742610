package htcondor

import (
	"context"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/harrypuuter/ram/pkg/backend"
)

// User log event blocks start with a numbered header and end with a
// line of three dots:
//
//	005 (042.000.000) 2024-01-01 12:10:00 Job terminated.
//		(1) Normal termination (return value 0)
//	...
var (
	eventHeaderRe = regexp.MustCompile(`^(\d{3}) \((\d+)\.(\d+)\.(\d+)\)`)
	normalTermRe  = regexp.MustCompile(`\(1\) Normal termination \(return value (-?\d+)\)`)
	signalTermRe  = regexp.MustCompile(`\(0\) Abnormal termination \(signal (\d+)\)`)
)

const eventTerminator = "..."

// Events tails the user log at logPath. It returns as soon as at least
// one complete event is available past fromOffset, or after wait with
// no events. The returned offset covers only complete events, so a
// block the schedd is still writing is re-read next call.
func (s *CLISchedd) Events(ctx context.Context, logPath string, fromOffset int64, wait time.Duration) ([]backend.Event, int64, error) {
	deadline := time.Now().Add(wait)
	for {
		data, err := readLogFrom(logPath, fromOffset)
		if err != nil {
			return nil, fromOffset, err
		}

		events, consumed := parseEvents(data)
		if len(events) > 0 {
			return events, fromOffset + consumed, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fromOffset, nil
		}
		sleep := eventPollInterval
		if remaining < sleep {
			sleep = remaining
		}
		select {
		case <-ctx.Done():
			return nil, fromOffset, ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// readLogFrom reads the log file past the given byte offset. A missing
// file is not an error; the schedd creates it on the first event.
func readLogFrom(path string, offset int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return nil, err
		}
	}
	return io.ReadAll(f)
}

// parseEvents extracts all complete event blocks from data and reports
// how many bytes they span.
func parseEvents(data []byte) ([]backend.Event, int64) {
	var (
		events   []backend.Event
		block    []string
		consumed int64
		pos      int64
	)

	text := string(data)
	for len(text) > 0 {
		line := text
		lineLen := len(text)
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			line = text[:i]
			lineLen = i + 1
		} else {
			// No trailing newline: the writer is mid-line.
			break
		}
		text = text[lineLen:]
		pos += int64(lineLen)

		if strings.TrimRight(line, " ") == eventTerminator {
			if ev, ok := parseEventBlock(block); ok {
				events = append(events, ev)
			}
			block = block[:0]
			consumed = pos
			continue
		}
		block = append(block, line)
	}

	return events, consumed
}

func parseEventBlock(lines []string) (backend.Event, bool) {
	if len(lines) == 0 {
		return backend.Event{}, false
	}
	m := eventHeaderRe.FindStringSubmatch(lines[0])
	if m == nil {
		return backend.Event{}, false
	}

	code, _ := strconv.Atoi(m[1])
	cluster, _ := strconv.ParseInt(m[2], 10, 64)
	proc, _ := strconv.Atoi(m[3])

	ev := backend.Event{
		Cluster: cluster,
		Proc:    proc,
		Type:    backend.EventType(code),
	}

	if ev.Type == backend.EventTerminated {
		for _, line := range lines[1:] {
			if tm := normalTermRe.FindStringSubmatch(line); tm != nil {
				ev.TerminatedNormally = true
				ev.ReturnValue, _ = strconv.Atoi(tm[1])
				break
			}
			if tm := signalTermRe.FindStringSubmatch(line); tm != nil {
				ev.TerminatedBySignal, _ = strconv.Atoi(tm[1])
				break
			}
		}
	}

	return ev, true
}
