package notify

import (
	"errors"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_NotifyInOrder(t *testing.T) {
	r := NewRegistry[int]("test", logr.Discard())

	var calls []string
	r.Add(func(v int) error {
		calls = append(calls, "first")
		return nil
	})
	r.Add(func(v int) error {
		calls = append(calls, "second")
		return nil
	})

	failed := r.Notify(1)

	assert.Zero(t, failed)
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestRegistry_FailingListenersAreIsolated(t *testing.T) {
	r := NewRegistry[string]("test", logr.Discard())

	var got []string
	r.Add(func(v string) error {
		return errors.New("boom")
	})
	r.Add(func(v string) error {
		panic("listener exploded")
	})
	r.Add(func(v string) error {
		got = append(got, v)
		return nil
	})

	failed := r.Notify("changed")

	assert.Equal(t, 2, failed)
	assert.Equal(t, []string{"changed"}, got)
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry[int]("test", logr.Discard())

	count := 0
	h := r.Add(func(int) error {
		count++
		return nil
	})
	r.Add(func(int) error { return nil })

	require.True(t, r.Remove(h))
	assert.False(t, r.Remove(h))
	assert.Equal(t, 1, r.Len())

	r.Notify(0)
	assert.Zero(t, count)
}

func TestRegistry_AddDuringNotify(t *testing.T) {
	r := NewRegistry[int]("test", logr.Discard())

	late := 0
	r.Add(func(int) error {
		r.Add(func(int) error {
			late++
			return nil
		})
		return nil
	})

	r.Notify(1)
	assert.Zero(t, late)

	r.Notify(2)
	assert.Equal(t, 1, late)
}
