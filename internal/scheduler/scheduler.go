package scheduler

import (
	"sync"
	"time"
)

// Scheduler owns every timed continuation of a session, the global input
// lock and the theme-wave lock. All pending continuations can be canceled in
// one synchronous call, which is what makes leaving a room safe: no stale
// continuation survives to write into a document the client no longer owns.
type Scheduler struct {
	mu        sync.Mutex
	handles   map[uint64]*time.Timer
	nextID    uint64
	closed    bool
	inputGen  uint64
	locked    bool
	themeLock bool
	animating map[int]bool
}

// Handle is a cancelable reference to one scheduled continuation.
type Handle struct {
	cancel func()
}

func (that *Handle) Cancel() {
	if that != nil && that.cancel != nil {
		that.cancel()
	}
}

func New() *Scheduler {
	return &Scheduler{
		handles:   make(map[uint64]*time.Timer),
		animating: make(map[int]bool),
	}
}

// After runs task once after d. The task is dropped, not run, if the handle
// or the whole scheduler is canceled first. After a Close the scheduler
// accepts no new work.
func (that *Scheduler) After(d time.Duration, task func()) *Handle {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed {
		return &Handle{}
	}

	id := that.nextID
	that.nextID++

	timer := time.AfterFunc(d, func() {
		that.mu.Lock()
		_, pending := that.handles[id]
		delete(that.handles, id)
		that.mu.Unlock()

		// CancelAll may have won the race between timer fire and task run.
		if pending {
			task()
		}
	})
	that.handles[id] = timer

	return &Handle{cancel: func() {
		that.mu.Lock()
		defer that.mu.Unlock()
		if t, ok := that.handles[id]; ok {
			t.Stop()
			delete(that.handles, id)
		}
	}}
}

// CancelAll synchronously drops every pending continuation and clears all
// animation marks. Continuations whose timers already fired but have not yet
// run are dropped as well.
func (that *Scheduler) CancelAll() {
	that.mu.Lock()
	defer that.mu.Unlock()

	for id, timer := range that.handles {
		timer.Stop()
		delete(that.handles, id)
	}
	that.animating = make(map[int]bool)
}

// Close cancels everything and refuses further scheduling.
func (that *Scheduler) Close() {
	that.mu.Lock()
	that.closed = true
	that.mu.Unlock()
	that.CancelAll()
}

// LockInput acquires the global input lock and returns its release func.
// Acquiring again while locked transfers ownership: only the release of the
// most recent acquisition unlocks, and calling any release twice is a no-op.
// That gives each phase-changing action exactly one acquire and at most one
// effective release even when several continuations race to unlock.
func (that *Scheduler) LockInput() func() {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.locked = true
	that.inputGen++
	gen := that.inputGen

	return func() {
		that.mu.Lock()
		defer that.mu.Unlock()
		if that.locked && that.inputGen == gen {
			that.locked = false
		}
	}
}

func (that *Scheduler) InputLocked() bool {
	that.mu.Lock()
	defer that.mu.Unlock()
	return that.locked
}

// UnlockInput force-releases the lock regardless of owner. Used only by the
// snapshot path when a phase change carries no wave of its own.
func (that *Scheduler) UnlockInput() {
	that.mu.Lock()
	defer that.mu.Unlock()
	that.locked = false
}

// TryLockTheme claims the theme-wave lock. It fails while a wave is already
// running, which is what keeps two quickly-delivered snapshots of the same
// phase change from triggering two waves.
func (that *Scheduler) TryLockTheme() bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.themeLock {
		return false
	}
	that.themeLock = true
	return true
}

func (that *Scheduler) UnlockTheme() {
	that.mu.Lock()
	defer that.mu.Unlock()
	that.themeLock = false
}

// MarkAnimating claims a cell for one animation of duration d; it reports
// false if another animation already owns the cell. The mark clears itself
// when the duration elapses.
func (that *Scheduler) MarkAnimating(cell int, d time.Duration) bool {
	that.mu.Lock()
	if that.closed || that.animating[cell] {
		that.mu.Unlock()
		return false
	}
	that.animating[cell] = true
	that.mu.Unlock()

	that.After(d, func() {
		that.mu.Lock()
		delete(that.animating, cell)
		that.mu.Unlock()
	})

	return true
}

func (that *Scheduler) Animating(cell int) bool {
	that.mu.Lock()
	defer that.mu.Unlock()
	return that.animating[cell]
}
