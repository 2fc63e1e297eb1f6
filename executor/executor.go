// Package executor implements the Procedure Executor: a worker pool
// that runs multi-step procedures against named, lexicographically
// ordered locks, one step at a time, each step atomic against the
// state store. Modeled on the teacher's goroutine-per-worker
// background job patterns (server/server.go's periodic/background
// goroutines), generalized into an explicit queue-and-workers type
// rather than ad hoc `go func(){ for { ... } }()` loops.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/fabrikd/fabrikd/events"
	"github.com/fabrikd/fabrikd/metrics"
	"github.com/fabrikd/fabrikd/store"
)

// errShutdownCancelled is the terminal error recorded on a procedure
// aborted between steps by Shutdown.
var errShutdownCancelled = errors.New("executor: procedure cancelled by shutdown")

// Executor owns the worker pool and lock table. Construct with New and
// start workers with Run; Trigger enqueues procedures, and a running
// step chains further work in its own procedure by returning follow-up
// steps.
type Executor struct {
	gw      *store.Gateway
	bus     *events.Bus
	locks   *lockTable
	queue   chan *Procedure
	nextID  uint64
	workers int

	mu         sync.Mutex
	procedures map[string]*Procedure
	shutdown   bool
	wg         sync.WaitGroup
}

func New(gw *store.Gateway, bus *events.Bus, workers int) *Executor {
	if workers < 1 {
		workers = 1
	}
	return &Executor{
		gw:         gw,
		bus:        bus,
		locks:      newLockTable(),
		queue:      make(chan *Procedure, 256),
		workers:    workers,
		procedures: make(map[string]*Procedure),
	}
}

// Run starts the worker pool; it returns immediately, workers run
// until ctx is cancelled or Shutdown is called.
func (e *Executor) Run(ctx context.Context) {
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.work(ctx)
	}
}

// Shutdown stops dequeuing new procedures; workers finish their
// current step, then exit. It blocks until all workers have exited.
func (e *Executor) Shutdown() {
	e.mu.Lock()
	e.shutdown = true
	e.mu.Unlock()
	close(e.queue)
	e.wg.Wait()
}

func (e *Executor) isShuttingDown() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shutdown
}

func (e *Executor) work(ctx context.Context) {
	defer e.wg.Done()
	for proc := range e.queue {
		e.runProcedure(ctx, proc)
	}
}

// Trigger enqueues the entry step of a new procedure over the given
// lockable object names (group ids and/or shard-mapping ids) and
// returns immediately with the procedure's id.
func (e *Executor) Trigger(name string, lockNames []string, entry Step) *Procedure {
	id := fmt.Sprintf("%s-%d", name, atomic.AddUint64(&e.nextID, 1))
	proc := newProcedure(id, name, lockNames, entry)

	e.mu.Lock()
	e.procedures[id] = proc
	shutdown := e.shutdown
	e.mu.Unlock()

	if shutdown {
		proc.finish(StateFailed, nil, fmt.Errorf("executor is shutting down"))
		return proc
	}
	e.queue <- proc
	return proc
}

// runProcedure acquires the procedure's locks in lexicographic order,
// runs its steps strictly in order — a step may append further steps
// via its return value, never via call-stack recursion — and commits
// each step in its own transaction.
func (e *Executor) runProcedure(ctx context.Context, proc *Procedure) {
	waitStart := time.Now()
	e.locks.acquireAll(proc.LockNames)
	metrics.LockWaitDuration.WithLabelValues().Observe(time.Since(waitStart).Seconds())
	defer e.locks.releaseAll(proc.LockNames)

	procStart := time.Now()
	proc.state = StateRunning
	pending := []Step{proc.Entry}
	var records []StepRecord
	overallErr := error(nil)
	cancelled := false

	for len(pending) > 0 {
		if e.isShuttingDown() {
			cancelled = true
			break
		}

		step := pending[0]
		pending = pending[1:]

		rec, next, err := e.runStep(ctx, proc.ID, step)
		records = append(records, rec)
		if err != nil {
			overallErr = err
			break
		}
		pending = append(next, pending...)
	}

	state := StateDone
	outcome := "success"
	switch {
	case cancelled:
		state = StateCancelled
		outcome = "cancelled"
		overallErr = errShutdownCancelled
	case overallErr != nil:
		state = StateFailed
		outcome = "failure"
	}
	metrics.ProcedureDuration.WithLabelValues(proc.Name, outcome).Observe(time.Since(procStart).Seconds())
	proc.finish(state, records, overallErr)
}

// runStep executes one step inside its own state-store transaction:
// commit on success, rollback when the step returns an error.
// A step that holds its locks past HeartbeatBound emits a Degraded
// event rather than being killed, per spec.md §5.
func (e *Executor) runStep(ctx context.Context, procID string, step Step) (StepRecord, []Step, error) {
	stepStart := time.Now()
	tx, err := e.gw.Begin(ctx)
	if err != nil {
		return StepRecord{Success: false, State: StateFailed, Diagnosis: err.Error()}, nil, err
	}

	heartbeat := time.AfterFunc(HeartbeatBound, func() {
		metrics.DegradedProcedures.Inc()
		e.bus.Publish(events.Event{Kind: events.Degraded, ProcedureID: procID})
	})
	next, stepErr := step(ctx, tx)
	heartbeat.Stop()
	if stepErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.WithFields(log.Fields{"procedure_id": procID}).WithError(rbErr).Warn("executor: rollback after step failure also failed")
		}
		metrics.StepDuration.WithLabelValues("failure").Observe(time.Since(stepStart).Seconds())
		return StepRecord{Success: false, State: StateFailed, Diagnosis: stepErr.Error()}, nil, stepErr
	}

	if err := tx.Commit(); err != nil {
		metrics.StepDuration.WithLabelValues("failure").Observe(time.Since(stepStart).Seconds())
		return StepRecord{Success: false, State: StateFailed, Diagnosis: err.Error()}, nil, err
	}
	metrics.StepDuration.WithLabelValues("success").Observe(time.Since(stepStart).Seconds())
	return StepRecord{Success: true, State: StateDone}, next, nil
}

// WaitForProcedures implements spec.md §4.4's result contract: with
// synchronous false it returns immediately with the given procedures'
// ids; with synchronous true it blocks until every procedure reaches a
// terminal state.
func (e *Executor) WaitForProcedures(ctx context.Context, procs []*Procedure, synchronous bool) ([]*Procedure, error) {
	if !synchronous {
		return procs, nil
	}
	for _, p := range procs {
		if err := p.Wait(ctx); err != nil {
			return procs, err
		}
	}
	return procs, nil
}

// Get looks up a previously triggered procedure by id.
func (e *Executor) Get(id string) (*Procedure, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.procedures[id]
	return p, ok
}
