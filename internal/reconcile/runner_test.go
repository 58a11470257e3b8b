package reconcile_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/vmunix/watchsync/internal/history"
	"github.com/vmunix/watchsync/internal/reconcile"
	"github.com/vmunix/watchsync/internal/reconcile/mocks"
	"github.com/vmunix/watchsync/internal/state"
	"github.com/vmunix/watchsync/internal/watchlist"
)

func TestRunner_PerUserIsolation(t *testing.T) {
	ctrl := gomock.NewController(t)
	rec := mocks.NewMockReconciler(ctrl)
	hist := mocks.NewMockRecorder(ctrl)

	users := []reconcile.User{{Username: "alice"}, {Username: "bob"}, {Username: "carol"}, {Username: "dave"}}
	prior := state.Watermarks{"alice": "a0", "bob": "b0", "carol": "c0"}

	gomock.InOrder(
		rec.EXPECT().Reconcile(gomock.Any(), users[0], "a0").
			Return(reconcile.Outcome{Phase: reconcile.PhaseMutating, Watermark: "a1"},
				&reconcile.PhaseError{Phase: reconcile.PhaseMutating, Err: errors.New("jellyfin down")}),
		rec.EXPECT().Reconcile(gomock.Any(), users[1], "b0").
			DoAndReturn(func(context.Context, reconcile.User, string) (reconcile.Outcome, error) {
				panic("nil map")
			}),
		rec.EXPECT().Reconcile(gomock.Any(), users[2], "c0").
			Return(reconcile.Outcome{Phase: reconcile.PhaseDone, Watermark: "c1", Scraped: 2, Complete: true}, nil),
		rec.EXPECT().Reconcile(gomock.Any(), users[3], "").
			Return(reconcile.Outcome{Phase: reconcile.PhaseDone, Complete: true}, nil),
	)

	var runs []*history.Run
	hist.EXPECT().Record(gomock.Any()).DoAndReturn(func(r *history.Run) error {
		runs = append(runs, r)
		return nil
	}).Times(4)

	runner := reconcile.NewRunner(rec, hist, testLogger())
	next, results := runner.Run(context.Background(), users, prior)

	assert.Equal(t, state.Watermarks{"alice": "a0", "bob": "b0", "carol": "c1"}, next)
	assert.Equal(t, state.Watermarks{"alice": "a0", "bob": "b0", "carol": "c0"}, prior, "prior must not be mutated")

	require.Len(t, results, 4)
	assert.Error(t, results[0].Err)
	assert.Equal(t, "a0", results[0].Outcome.Watermark)

	var pe *reconcile.PhaseError
	require.True(t, errors.As(results[1].Err, &pe))
	assert.Equal(t, reconcile.PhaseFailed, pe.Phase)
	assert.Contains(t, pe.Error(), "nil map")

	assert.NoError(t, results[2].Err)
	assert.NoError(t, results[3].Err)

	require.Len(t, runs, 4)
	runID := runs[0].RunID
	assert.NotEmpty(t, runID)
	for _, r := range runs {
		assert.Equal(t, runID, r.RunID, "one run id per sync")
	}
	assert.Equal(t, "mutating", runs[0].Phase)
	assert.Contains(t, runs[0].Error, "jellyfin down")
	assert.Equal(t, "b0", runs[1].WatermarkAfter)
	assert.Equal(t, "c0", runs[2].WatermarkBefore)
	assert.Equal(t, "c1", runs[2].WatermarkAfter)
	assert.True(t, runs[2].Complete)
	assert.Empty(t, runs[2].Error)
}

func TestRunner_HistoryFailureIsNotFatal(t *testing.T) {
	ctrl := gomock.NewController(t)
	rec := mocks.NewMockReconciler(ctrl)
	hist := mocks.NewMockRecorder(ctrl)

	rec.EXPECT().Reconcile(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(reconcile.Outcome{Phase: reconcile.PhaseDone, Watermark: "x1"}, nil).Times(2)
	hist.EXPECT().Record(gomock.Any()).Return(errors.New("disk full")).Times(2)

	runner := reconcile.NewRunner(rec, hist, testLogger())
	next, results := runner.Run(context.Background(),
		[]reconcile.User{{Username: "alice"}, {Username: "bob"}}, state.Watermarks{})

	assert.Len(t, results, 2)
	assert.Equal(t, state.Watermarks{"alice": "x1", "bob": "x1"}, next)
}

func TestRunner_NilHistory(t *testing.T) {
	ctrl := gomock.NewController(t)
	rec := mocks.NewMockReconciler(ctrl)
	rec.EXPECT().Reconcile(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(reconcile.Outcome{Phase: reconcile.PhaseDone, Watermark: "x1"}, nil)

	next, _ := reconcile.NewRunner(rec, nil, testLogger()).
		Run(context.Background(), []reconcile.User{{Username: "alice"}}, nil)
	assert.Equal(t, state.Watermarks{"alice": "x1"}, next)
}

func TestRunner_CanceledContextStops(t *testing.T) {
	ctrl := gomock.NewController(t)
	rec := mocks.NewMockReconciler(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	next, results := reconcile.NewRunner(rec, nil, testLogger()).
		Run(ctx, []reconcile.User{{Username: "alice"}}, state.Watermarks{"alice": "a0"})
	assert.Empty(t, results)
	assert.Equal(t, state.Watermarks{"alice": "a0"}, next)
}

// The first user fails while mutating and the second succeeds, so only the
// second user's watermark moves.
func TestRunner_WithEngine(t *testing.T) {
	f := newFixture(t)
	bob := reconcile.User{Username: "bob"}

	f.scraper.EXPECT().ScrapeSince(gomock.Any(), "alice", "a0").
		Return(watchlist.Result{IDs: []string{"a1"}, Complete: true})
	f.library.EXPECT().Lookup(gomock.Any(), "a1").Return(movie("a1", true, true))
	f.catalog.EXPECT().ResolveID(gomock.Any(), gomock.Any(), gomock.Any()).Return("jf-a1", true, nil)
	f.catalog.EXPECT().AddToCollection(gomock.Any(), gomock.Any(), "coll-alice").Return(errors.New("503"))

	f.scraper.EXPECT().ScrapeSince(gomock.Any(), "bob", "").
		Return(watchlist.Result{IDs: []string{"b1"}, Complete: true})
	f.library.EXPECT().Lookup(gomock.Any(), "b1").Return(nil)

	next, results := reconcile.NewRunner(f.engine, nil, testLogger()).
		Run(context.Background(), []reconcile.User{alice, bob}, state.Watermarks{"alice": "a0"})

	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, state.Watermarks{"alice": "a0", "bob": "b1"}, next)
}

func TestRunner_CanceledMidUserKeepsPriorWatermark(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.scraper.EXPECT().ScrapeSince(gomock.Any(), "alice", "a0").DoAndReturn(
		func(context.Context, string, string) watchlist.Result {
			cancel()
			return watchlist.Result{IDs: []string{"a2", "a1"}, Complete: true}
		})
	f.library.EXPECT().Lookup(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	next, results := reconcile.NewRunner(f.engine, nil, testLogger()).
		Run(ctx, []reconcile.User{alice, {Username: "bob"}}, state.Watermarks{"alice": "a0"})

	require.Len(t, results, 1, "remaining users are skipped once canceled")
	assert.ErrorIs(t, results[0].Err, context.Canceled)
	assert.Equal(t, state.Watermarks{"alice": "a0"}, next)
}
