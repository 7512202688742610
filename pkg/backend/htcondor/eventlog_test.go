package htcondor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrypuuter/ram/pkg/backend"
)

const sampleLog = `000 (042.000.000) 2024-01-01 12:00:00 Job submitted from host: <192.168.0.1:9618>
...
001 (042.000.000) 2024-01-01 12:00:05 Job executing on host: <192.168.0.2:9618>
...
006 (042.000.000) 2024-01-01 12:05:00 Image size of job updated: 1024
	1024  -  MemoryUsage of job (MB)
...
005 (042.000.000) 2024-01-01 12:10:00 Job terminated.
	(1) Normal termination (return value 0)
		Usr 0 00:01:02, Sys 0 00:00:03  -  Run Remote Usage
...
`

func TestParseEvents(t *testing.T) {
	events, consumed := parseEvents([]byte(sampleLog))
	require.Len(t, events, 4)
	assert.Equal(t, int64(len(sampleLog)), consumed)

	for _, ev := range events {
		assert.Equal(t, int64(42), ev.Cluster)
		assert.Equal(t, 0, ev.Proc)
	}
	assert.Equal(t, backend.EventSubmit, events[0].Type)
	assert.Equal(t, backend.EventExecute, events[1].Type)
	assert.Equal(t, backend.EventImageSize, events[2].Type)

	term := events[3]
	assert.Equal(t, backend.EventTerminated, term.Type)
	assert.True(t, term.TerminatedNormally)
	assert.Equal(t, 0, term.ReturnValue)
}

func TestParseEvents_NonZeroReturnValue(t *testing.T) {
	log := "005 (017.000.000) 2024-01-01 12:10:00 Job terminated.\n" +
		"\t(1) Normal termination (return value 2)\n" +
		"...\n"
	events, _ := parseEvents([]byte(log))
	require.Len(t, events, 1)
	assert.True(t, events[0].TerminatedNormally)
	assert.Equal(t, 2, events[0].ReturnValue)
}

func TestParseEvents_SignalTermination(t *testing.T) {
	log := "005 (017.000.000) 2024-01-01 12:10:00 Job terminated.\n" +
		"\t(0) Abnormal termination (signal 9)\n" +
		"...\n"
	events, _ := parseEvents([]byte(log))
	require.Len(t, events, 1)
	assert.False(t, events[0].TerminatedNormally)
	assert.Equal(t, 9, events[0].TerminatedBySignal)
}

func TestParseEvents_IncompleteBlockNotConsumed(t *testing.T) {
	partial := "000 (042.000.000) 2024-01-01 12:00:00 Job submitted from host: <x>\n" +
		"...\n" +
		"005 (042.000.000) 2024-01-01 12:10:00 Job terminated.\n"
	events, consumed := parseEvents([]byte(partial))
	require.Len(t, events, 1)
	assert.Equal(t, backend.EventSubmit, events[0].Type)

	// The trailing block has no terminator yet; re-reading from consumed
	// must pick it up once complete.
	rest := partial[consumed:] + "\t(1) Normal termination (return value 0)\n...\n"
	events2, _ := parseEvents([]byte(rest))
	require.Len(t, events2, 1)
	assert.Equal(t, backend.EventTerminated, events2[0].Type)
}

func TestEvents_ReadsFromOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	require.NoError(t, os.WriteFile(path, []byte(sampleLog), 0o644))

	s := NewCLISchedd()
	events, offset, err := s.Events(context.Background(), path, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, int64(len(sampleLog)), offset)

	// Nothing new past the offset.
	events, offset2, err := s.Events(context.Background(), path, offset, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, offset, offset2)

	// Append one more event and resume.
	more := "009 (042.000.000) 2024-01-01 12:20:00 Job was aborted by the user.\n...\n"
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(more)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	events, _, err = s.Events(context.Background(), path, offset, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, backend.EventAborted, events[0].Type)
}

func TestEvents_MissingFileIsNotAnError(t *testing.T) {
	s := NewCLISchedd()
	events, offset, err := s.Events(context.Background(), filepath.Join(t.TempDir(), "nope.log"), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Zero(t, offset)
}

func TestEvents_WaitStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	s := NewCLISchedd()
	_, _, err := s.Events(ctx, filepath.Join(t.TempDir(), "nope.log"), 0, 10*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
