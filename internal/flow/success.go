package flow

import (
	"context"
	"sync"
	"time"
)

// Stopper cancels a scheduled function. Stop reports whether the call was
// prevented.
type Stopper interface {
	Stop() bool
}

// AfterFunc schedules f to run once after d.
type AfterFunc func(d time.Duration, f func()) Stopper

// TimeAfterFunc is the production AfterFunc.
func TimeAfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

type successTimer struct {
	stop Stopper
	once sync.Once
}

// SuccessTimers holds the pending auto-advance of each session sitting on the
// success screen. Each mount runs its finish at most once, whether the timer
// fires or the user acts first.
type SuccessTimers struct {
	mu        sync.Mutex
	pending   map[string]*successTimer
	finishing map[string]*successTimer
	delay     time.Duration
	afterFunc AfterFunc
	finish    func(ctx context.Context, sid string)
}

func NewSuccessTimers(delay time.Duration, afterFunc AfterFunc, finish func(ctx context.Context, sid string)) *SuccessTimers {
	if afterFunc == nil {
		afterFunc = TimeAfterFunc
	}
	return &SuccessTimers{
		pending:   make(map[string]*successTimer),
		finishing: make(map[string]*successTimer),
		delay:     delay,
		afterFunc: afterFunc,
		finish:    finish,
	}
}

// Delay is the auto-advance delay.
func (t *SuccessTimers) Delay() time.Duration {
	return t.delay
}

// Mount schedules the auto-advance for sid, replacing one already pending.
func (t *SuccessTimers) Mount(sid string) {
	entry := &successTimer{}

	t.mu.Lock()
	if old, ok := t.pending[sid]; ok {
		old.stop.Stop()
	}
	t.pending[sid] = entry
	entry.stop = t.afterFunc(t.delay, func() {
		t.mu.Lock()
		if t.pending[sid] != entry {
			t.mu.Unlock()
			return
		}
		delete(t.pending, sid)
		t.finishing[sid] = entry
		t.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		t.run(ctx, sid, entry)
	})
	t.mu.Unlock()
}

// Unmount cancels the pending auto-advance of sid, if any.
func (t *SuccessTimers) Unmount(sid string) bool {
	t.mu.Lock()
	entry, ok := t.pending[sid]
	delete(t.pending, sid)
	t.mu.Unlock()

	if !ok {
		return false
	}
	return entry.stop.Stop()
}

// Finish runs the finish action now on behalf of the user and prevents the
// pending auto-advance from running it again. When the auto-advance is already
// running, Finish waits for it instead of finishing a second time.
func (t *SuccessTimers) Finish(ctx context.Context, sid string) {
	t.mu.Lock()
	entry, ok := t.pending[sid]
	if ok {
		delete(t.pending, sid)
		t.finishing[sid] = entry
	} else {
		entry, ok = t.finishing[sid]
	}
	t.mu.Unlock()

	if !ok {
		t.finish(ctx, sid)
		return
	}
	entry.stop.Stop()
	t.run(ctx, sid, entry)
}

func (t *SuccessTimers) run(ctx context.Context, sid string, entry *successTimer) {
	entry.once.Do(func() { t.finish(ctx, sid) })

	t.mu.Lock()
	if t.finishing[sid] == entry {
		delete(t.finishing, sid)
	}
	t.mu.Unlock()
}

// Pending reports whether an auto-advance is scheduled for sid.
func (t *SuccessTimers) Pending(sid string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[sid]
	return ok
}
