// Package scheduler turns the probe manifest into a steady stream of
// job dispatches.
//
// A fixed pool of workers drains an unbounded queue; the pool is sized
// from the manifest so that even if every probe instance runs to its
// full timeout, there is always a free worker when the next dispatch is
// due. Overlapping instances of the same probe are allowed on purpose:
// a pool healthy enough to run jobs faster than the interval should
// not have probes silently skipped because an earlier instance is slow.
package scheduler

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harrypuuter/ram/internal/observability"
	"github.com/harrypuuter/ram/pkg/probeconfig"
)

// dispatchTick is how often due probes are checked.
const dispatchTick = 10 * time.Second

// WorkerCount sizes the pool: one spare worker plus, per probe, the
// maximum number of instances that can be in flight at once when every
// instance runs to its full timeout.
func WorkerCount(probes []probeconfig.Probe) int {
	n := 1
	for _, p := range probes {
		interval := p.Interval()
		if interval <= 0 {
			continue
		}
		n += int(math.Ceil(float64(p.Timeout()) / float64(interval)))
	}
	return n
}

// ExecuteFunc runs one dispatched probe to completion.
type ExecuteFunc func(ctx context.Context, item Item)

// Scheduler owns the dispatch queue and the worker pool.
type Scheduler struct {
	probes   []probeconfig.Probe
	queue    *Queue
	inflight *Registry
	tick     time.Duration
	log      *zap.Logger
}

func New(probes []probeconfig.Probe, inflight *Registry) *Scheduler {
	return &Scheduler{
		probes:   probes,
		queue:    NewQueue(),
		inflight: inflight,
		tick:     dispatchTick,
		log:      observability.Logger,
	}
}

// Run starts the worker pool and the dispatch loop and blocks until ctx
// is cancelled and all workers have drained.
//
// firstRun dispatches every probe immediately instead of waiting one
// interval; it is set when the job store is empty, so a fresh
// deployment starts probing right away.
func (s *Scheduler) Run(ctx context.Context, execute ExecuteFunc, firstRun bool) {
	workers := WorkerCount(s.probes)
	s.log.Info("Starting scheduler",
		zap.Int("probes", len(s.probes)),
		zap.Int("workers", workers))

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for {
				item, ok := s.queue.Pop()
				if !ok {
					return
				}
				execute(ctx, item)
			}
		}()
	}

	now := time.Now()
	lastDispatch := make(map[string]time.Time, len(s.probes))
	for _, p := range s.probes {
		lastDispatch[p.Name] = now
	}
	if firstRun {
		s.log.Info("Empty job store, dispatching all probes now")
		for _, p := range s.probes {
			s.dispatch(p)
		}
	}

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.queue.Close()
			wg.Wait()
			s.log.Info("Scheduler stopped")
			return
		case now := <-ticker.C:
			for _, p := range s.probes {
				if now.Sub(lastDispatch[p.Name]) >= p.Interval() {
					lastDispatch[p.Name] = now
					s.dispatch(p)
				}
			}
			s.log.Debug("Scheduler tick",
				zap.Int("inflight", s.inflight.Len()),
				zap.Int("queued", s.queue.Len()))
		}
	}
}

func (s *Scheduler) dispatch(p probeconfig.Probe) {
	item := Item{
		ID:       uuid.NewString(),
		Probe:    p,
		QueuedAt: time.Now().UTC(),
	}
	s.queue.Push(item)
	s.log.Debug("Dispatched probe",
		zap.String("probe", p.Name),
		zap.String("dispatch_id", item.ID),
		zap.Int("queued", s.queue.Len()))
}

// QueueLen exposes the backlog size for the status endpoint.
func (s *Scheduler) QueueLen() int {
	return s.queue.Len()
}
