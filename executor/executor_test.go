package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/fabrikd/fabrikd/events"
	"github.com/fabrikd/fabrikd/store"
)

func newTestExecutor(t *testing.T, workers int) (*Executor, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	gw := store.OpenDB(sqlx.NewDb(db, "mysql"))

	mock.MatchExpectationsInOrder(false)
	return New(gw, events.NewBus(), workers), mock
}

func expectStepTx(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectCommit()
}

func TestTriggerRunsSingleStepProcedureToSuccess(t *testing.T) {
	ex, mock := newTestExecutor(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ex.Run(ctx)
	defer ex.Shutdown()

	expectStepTx(mock)
	ran := make(chan struct{})
	proc := ex.Trigger("noop", []string{"g1"}, func(ctx context.Context, tx *store.Tx) ([]Step, error) {
		close(ran)
		return nil, nil
	})

	<-ran
	require.NoError(t, proc.Wait(context.Background()))
	require.True(t, proc.Success())
	require.Equal(t, StateDone, proc.State())
}

func TestStepChainingAppendsFollowUpSteps(t *testing.T) {
	ex, mock := newTestExecutor(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ex.Run(ctx)
	defer ex.Shutdown()

	expectStepTx(mock)
	expectStepTx(mock)

	var order []string
	second := func(ctx context.Context, tx *store.Tx) ([]Step, error) {
		order = append(order, "second")
		return nil, nil
	}
	first := func(ctx context.Context, tx *store.Tx) ([]Step, error) {
		order = append(order, "first")
		return []Step{second}, nil
	}

	proc := ex.Trigger("chain", nil, first)
	require.NoError(t, proc.Wait(context.Background()))
	require.True(t, proc.Success())
	require.Equal(t, []string{"first", "second"}, order)
	require.Len(t, proc.Records(), 2)
}

func TestFailedStepFailsProcedureAndReleasesLocks(t *testing.T) {
	ex, mock := newTestExecutor(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ex.Run(ctx)
	defer ex.Shutdown()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	proc := ex.Trigger("fails", []string{"g1"}, func(ctx context.Context, tx *store.Tx) ([]Step, error) {
		return nil, boom
	})

	require.NoError(t, proc.Wait(context.Background()))
	require.False(t, proc.Success())
	require.Equal(t, StateFailed, proc.State())
	require.ErrorIs(t, proc.Err(), boom)

	// locks released: a fresh procedure over the same name must not block.
	expectStepTx(mock)
	again := ex.Trigger("retry", []string{"g1"}, func(ctx context.Context, tx *store.Tx) ([]Step, error) {
		return nil, nil
	})
	require.NoError(t, again.Wait(context.Background()))
	require.True(t, again.Success())
}

// TestLockOrderingSerializesOverlappingProcedures exercises spec.md
// §8 scenario S4: two procedures requesting overlapping lock sets must
// never run their steps concurrently, and a third procedure over a
// disjoint lock name may interleave freely.
func TestLockOrderingSerializesOverlappingProcedures(t *testing.T) {
	ex, mock := newTestExecutor(t, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ex.Run(ctx)
	defer ex.Shutdown()

	for i := 0; i < 4; i++ {
		expectStepTx(mock)
	}

	var mu = make(chan struct{}, 1)
	mu <- struct{}{}
	active := 0
	maxActive := 0
	enter := func() {
		<-mu
		active++
		if active > maxActive {
			maxActive = active
		}
		mu <- struct{}{}
	}
	leave := func() {
		<-mu
		active--
		mu <- struct{}{}
	}

	holdStep := func(ctx context.Context, tx *store.Tx) ([]Step, error) {
		enter()
		time.Sleep(20 * time.Millisecond)
		leave()
		return nil, nil
	}

	p1 := ex.Trigger("a", []string{"group-1"}, holdStep)
	p2 := ex.Trigger("b", []string{"group-1"}, holdStep)
	p3 := ex.Trigger("c", []string{"group-2"}, holdStep)
	p4 := ex.Trigger("d", []string{"group-2"}, holdStep)

	require.NoError(t, p1.Wait(context.Background()))
	require.NoError(t, p2.Wait(context.Background()))
	require.NoError(t, p3.Wait(context.Background()))
	require.NoError(t, p4.Wait(context.Background()))

	require.LessOrEqual(t, maxActive, 2, "procedures sharing a lock name must never run concurrently")
}

func TestWaitForProceduresSynchronousBlocksUntilTerminal(t *testing.T) {
	ex, mock := newTestExecutor(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ex.Run(ctx)
	defer ex.Shutdown()

	expectStepTx(mock)
	proc := ex.Trigger("noop", nil, func(ctx context.Context, tx *store.Tx) ([]Step, error) {
		return nil, nil
	})

	got, err := ex.WaitForProcedures(context.Background(), []*Procedure{proc}, true)
	require.NoError(t, err)
	require.True(t, got[0].Done())
}

// TestShutdownCancelsProcedureBetweenSteps exercises spec.md §4.4.5 /
// §5: a procedure whose first step has already committed must not run
// its follow-up step once Shutdown has been requested — it finishes
// CANCELLED instead.
func TestShutdownCancelsProcedureBetweenSteps(t *testing.T) {
	ex, mock := newTestExecutor(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ex.Run(ctx)

	expectStepTx(mock)

	started := make(chan struct{})
	proceed := make(chan struct{})
	var secondRan bool

	second := func(ctx context.Context, tx *store.Tx) ([]Step, error) {
		secondRan = true
		return nil, nil
	}
	first := func(ctx context.Context, tx *store.Tx) ([]Step, error) {
		close(started)
		<-proceed
		return []Step{second}, nil
	}

	proc := ex.Trigger("chain", nil, first)
	<-started

	shutdownDone := make(chan struct{})
	go func() {
		ex.Shutdown()
		close(shutdownDone)
	}()

	close(proceed)
	<-shutdownDone

	require.NoError(t, proc.Wait(context.Background()))
	require.Equal(t, StateCancelled, proc.State())
	require.False(t, proc.Success())
	require.ErrorIs(t, proc.Err(), errShutdownCancelled)
	require.False(t, secondRan, "the step queued after shutdown was requested must never run")
	require.Len(t, proc.Records(), 1)
}

func TestWaitForProceduresAsyncReturnsImmediately(t *testing.T) {
	ex, mock := newTestExecutor(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ex.Run(ctx)
	defer ex.Shutdown()

	expectStepTx(mock)
	block := make(chan struct{})
	proc := ex.Trigger("slow", nil, func(ctx context.Context, tx *store.Tx) ([]Step, error) {
		<-block
		return nil, nil
	})

	got, err := ex.WaitForProcedures(context.Background(), []*Procedure{proc}, false)
	require.NoError(t, err)
	require.False(t, got[0].Done())
	close(block)
	require.NoError(t, proc.Wait(context.Background()))
}
