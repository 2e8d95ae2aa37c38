package distribution

import (
	"sync"
	"sync/atomic"

	"github.com/alexisbeaulieu97/melodium/internal/transmission"
)

// track is a runtime identity for one concurrent activation of the
// entrypoint treatment, reached through this distribution engine. It owns
// per-name sender/receiver pairs for every declared input and output of
// the entrypoint, plus the barrier used to synchronise "all I/O wired"
// before data flows.
type track struct {
	id uint64

	instanciated atomic.Bool
	failure      atomic.Pointer[string]
	barrier      chan struct{}
	barrierOnce  sync.Once

	mu      sync.Mutex
	inputs  map[string]*transmission.InputHandle  // engine's local end: what SendData reads to forward to the wire
	outputs map[string]*transmission.OutputHandle // engine's local end: what incoming output frames are forwarded into
}

func newTrack(id uint64) *track {
	return &track{id: id, barrier: make(chan struct{})}
}

// releaseBarrier unblocks every caller of awaitInstanciation, exactly once.
func (t *track) releaseBarrier(ok bool, failMsg string) {
	t.barrierOnce.Do(func() {
		t.instanciated.Store(ok)
		if !ok {
			t.failure.Store(&failMsg)
		}
		close(t.barrier)
	})
}

// awaitInstanciation blocks until InstanciateStatus arrives (or the engine
// fuses and releases every pending barrier), then reports success.
func (t *track) awaitInstanciation() (bool, string) {
	<-t.barrier
	if msg := t.failure.Load(); msg != nil {
		return false, *msg
	}
	return true, ""
}

// closeAll closes every input and output handle this track owns, used on
// teardown.
func (t *track) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, in := range t.inputs {
		in.Close()
	}
	for _, out := range t.outputs {
		_ = out.Close()
	}
}
