package status

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tierone/installd/pkg/types"
)

func TestPhaseHolder_NotifiesOnlyOnChange(t *testing.T) {
	h := NewPhaseHolder(logr.Discard())

	var got []types.Phase
	h.OnChange(func(p types.Phase) error {
		got = append(got, p)
		return nil
	})

	assert.Equal(t, types.PhaseStartup, h.Get())
	assert.False(t, h.Set(types.PhaseStartup))
	assert.True(t, h.Set(types.PhaseConfig))
	assert.False(t, h.Set(types.PhaseConfig))
	assert.True(t, h.Set(types.PhaseInstall))

	assert.Equal(t, []types.Phase{types.PhaseConfig, types.PhaseInstall}, got)
}

func TestServiceStatusHolder_TryAcquire(t *testing.T) {
	s := NewServiceStatusHolder(logr.Discard())

	var got []types.ServiceStatus
	s.OnChange(func(v types.ServiceStatus) error {
		got = append(got, v)
		return nil
	})

	require.True(t, s.TryAcquire())
	assert.True(t, s.IsBusy())
	assert.False(t, s.TryAcquire())

	s.Release()
	s.Release()
	assert.Equal(t, types.StatusIdle, s.Get())

	assert.Equal(t, []types.ServiceStatus{types.StatusBusy, types.StatusIdle}, got)
}

func TestServiceStatusHolder_ConcurrentAcquire(t *testing.T) {
	s := NewServiceStatusHolder(logr.Discard())

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.TryAcquire() {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
}

func TestBusyRegistry_Ordered(t *testing.T) {
	r := NewBusyRegistry(logr.Discard())

	var got [][]string
	r.OnChange(func(names []string) error {
		got = append(got, names)
		return nil
	})

	require.True(t, r.Mark("software"))
	require.True(t, r.Mark("network"))
	assert.False(t, r.Mark("software"))
	assert.Equal(t, []string{"software", "network"}, r.Names())
	assert.True(t, r.IsBusy("network"))

	require.True(t, r.Clear("software"))
	assert.False(t, r.Clear("software"))
	assert.Equal(t, []string{"network"}, r.Names())

	assert.Equal(t, [][]string{
		{"software"},
		{"software", "network"},
		{"network"},
	}, got)
}

func TestBusyRegistry_BusyWhileClearsOnError(t *testing.T) {
	r := NewBusyRegistry(logr.Discard())
	boom := errors.New("boom")

	err := r.BusyWhile("software", func() error {
		assert.Equal(t, []string{"software"}, r.Names())
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Empty(t, r.Names())
}

func TestBusyRegistry_BusyWhileClearsOnPanic(t *testing.T) {
	r := NewBusyRegistry(logr.Discard())

	assert.Panics(t, func() {
		_ = r.BusyWhile("network", func() error {
			panic("unexpected")
		})
	})
	assert.Zero(t, r.Len())
}

func TestBusyRegistry_BusyWhileRejectsReentry(t *testing.T) {
	r := NewBusyRegistry(logr.Discard())

	var inner error
	err := r.BusyWhile("software", func() error {
		inner = r.BusyWhile("software", func() error {
			t.Fatal("nested operation must not run")
			return nil
		})
		return nil
	})

	require.NoError(t, err)
	assert.ErrorIs(t, inner, ErrBusy)
	assert.Empty(t, r.Names())
}

func TestBusyRegistry_NamesIsACopy(t *testing.T) {
	r := NewBusyRegistry(logr.Discard())
	r.Mark("software")

	names := r.Names()
	names[0] = "tampered"

	assert.Equal(t, []string{"software"}, r.Names())
}
