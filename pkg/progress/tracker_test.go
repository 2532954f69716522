package progress

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tierone/installd/pkg/types"
)

func recorder(t *Tracker) *[]types.ProgressSnapshot {
	var got []types.ProgressSnapshot
	t.OnChange(func(s types.ProgressSnapshot) error {
		got = append(got, s)
		return nil
	})
	return &got
}

func TestTracker_EmptyIsFinished(t *testing.T) {
	tr := New()

	assert.Equal(t, types.ProgressSnapshot{Finished: true}, tr.Snapshot())
}

func TestTracker_Start(t *testing.T) {
	for _, n := range []int{1, 2, 10} {
		t.Run(fmt.Sprintf("%d steps", n), func(t *testing.T) {
			tr := New()
			require.NoError(t, tr.Start(n))

			assert.Equal(t, types.ProgressSnapshot{TotalSteps: n}, tr.Snapshot())
		})
	}
}

func TestTracker_StartZeroIsFinished(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Start(0))

	s := tr.Snapshot()
	assert.True(t, s.Finished)
	assert.Zero(t, s.CurrentStep)
}

func TestTracker_StartNegative(t *testing.T) {
	tr := New()
	got := recorder(tr)

	err := tr.Start(-1)
	assert.ErrorIs(t, err, ErrInvalidTotal)
	assert.Empty(t, *got)
}

func TestTracker_StepsUntilFinished(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Start(3))

	require.NoError(t, tr.Step("a"))
	require.NoError(t, tr.Step("b"))
	require.NoError(t, tr.Step("c"))

	want := types.ProgressSnapshot{TotalSteps: 3, CurrentStep: 3, Description: "c", Finished: true}
	assert.Equal(t, want, tr.Snapshot())

	err := tr.Step("d")
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.Equal(t, want, tr.Snapshot())
}

func TestTracker_StepWithoutStart(t *testing.T) {
	tr := New()
	got := recorder(tr)

	err := tr.Step("orphan")

	assert.True(t, errors.Is(err, ErrOutOfRange))
	assert.Empty(t, *got)
	assert.Equal(t, types.ProgressSnapshot{Finished: true}, tr.Snapshot())
}

func TestTracker_Finish(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Start(5))
	require.NoError(t, tr.Step("one"))

	tr.Finish()

	s := tr.Snapshot()
	assert.True(t, s.Finished)
	assert.Equal(t, 5, s.CurrentStep)
	assert.ErrorIs(t, tr.Step("six"), ErrOutOfRange)
}

func TestTracker_OneNotificationPerMutation(t *testing.T) {
	tr := New()
	first := recorder(tr)
	second := recorder(tr)

	require.NoError(t, tr.Start(2))
	require.NoError(t, tr.Step("step 1"))
	tr.Finish()
	tr.Finish()

	want := []types.ProgressSnapshot{
		{TotalSteps: 2},
		{TotalSteps: 2, CurrentStep: 1, Description: "step 1"},
		{TotalSteps: 2, CurrentStep: 2, Description: "step 1", Finished: true},
		{TotalSteps: 2, CurrentStep: 2, Description: "step 1", Finished: true},
	}
	assert.Equal(t, want, *first)
	assert.Equal(t, want, *second)
}

func TestTracker_ListenerSeesUpdatedSnapshot(t *testing.T) {
	tr := New()

	var seen []types.ProgressSnapshot
	tr.OnChange(func(types.ProgressSnapshot) error {
		seen = append(seen, tr.Snapshot())
		return nil
	})

	require.NoError(t, tr.Start(1))
	require.NoError(t, tr.Step("only"))

	require.Len(t, seen, 2)
	assert.Equal(t, 1, seen[1].CurrentStep)
	assert.True(t, seen[1].Finished)
}

func TestTracker_FailingListenerDoesNotCorruptState(t *testing.T) {
	tr := New()
	tr.OnChange(func(types.ProgressSnapshot) error {
		return errors.New("broken subscriber")
	})
	got := recorder(tr)

	require.NoError(t, tr.Start(2))
	require.NoError(t, tr.Step("a"))

	assert.Len(t, *got, 2)
	assert.Equal(t, 1, tr.Snapshot().CurrentStep)
}

func TestTracker_RemoveListener(t *testing.T) {
	tr := New()
	calls := 0
	h := tr.OnChange(func(types.ProgressSnapshot) error {
		calls++
		return nil
	})

	require.NoError(t, tr.Start(1))
	require.True(t, tr.RemoveListener(h))
	require.NoError(t, tr.Step("x"))

	assert.Equal(t, 1, calls)
}

func TestTracker_ConcurrentStepsAreOrdered(t *testing.T) {
	const n = 50
	tr := New()
	got := recorder(tr)
	require.NoError(t, tr.Start(n))

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = tr.Step(fmt.Sprintf("step %d", i))
			_ = tr.Snapshot()
		}(i)
	}
	wg.Wait()

	require.Len(t, *got, n+1)
	for i, s := range *got {
		assert.Equal(t, i, s.CurrentStep)
	}
	assert.True(t, tr.Finished())
}
