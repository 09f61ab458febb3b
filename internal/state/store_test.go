package state

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestStoreObserversSeeEveryTransitionInOrder(t *testing.T) {
	var got []string
	store := NewStore(quietLogger(), func(prev, next State, a Action) {
		got = append(got, a.Type()+":"+string(next.Phase))
	})

	store.Dispatch(SignallingStart{})
	store.Dispatch(StartPlaying{})
	store.Dispatch(Stopping{})
	store.Dispatch(Stopped{})

	assert.Equal(t, []string{
		"SIGNALLING_START:SIGNALLING",
		"START_PLAYING:PLAYING",
		"STOPPING:STOPPING",
		"STOPPED:STOPPED",
	}, got)
	assert.Equal(t, PhaseStopped, store.State().Phase)
}

func TestStoreDispatchIfIsAtomic(t *testing.T) {
	store := NewStore(quietLogger())
	isStopped := func(s State) bool { return s.Phase == PhaseStopped }

	var wg sync.WaitGroup
	var mu sync.Mutex
	started := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := store.DispatchIf(isStopped, SignallingStart{}); ok {
				mu.Lock()
				started++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, started)
	assert.Equal(t, PhaseSignalling, store.State().Phase)
}

func TestStoreWatchCoalesces(t *testing.T) {
	store := NewStore(quietLogger())
	ch, cancel := store.Watch()
	defer cancel()

	store.Dispatch(SignallingStart{})
	store.Dispatch(SignallingTimeout{})

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a notification")
	}
	select {
	case <-ch:
		t.Fatal("expected bursts to coalesce")
	default:
	}

	cancel()
	store.Dispatch(Stopping{})
	select {
	case <-ch:
		t.Fatal("cancelled watcher must not be notified")
	default:
	}
	require.Equal(t, PhaseStopping, store.State().Phase)
}
