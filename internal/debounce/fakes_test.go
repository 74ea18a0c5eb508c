package debounce

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/archive-debouncer/internal/archive"
	"github.com/JakeFAU/archive-debouncer/internal/progress"
)

// fakeClock fires timers synchronously from Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock *fakeClock
	at    time.Time
	f     func()
	done  bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) archive.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

// Advance moves time forward and runs every due timer in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.done && !t.at.After(c.now) {
			t.done = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

// fakeArchiver records calls and optionally blocks until released.
type fakeArchiver struct {
	mu      sync.Mutex
	calls   []string
	result  bool
	started chan string
	release chan struct{}
}

func newFakeArchiver(result bool) *fakeArchiver {
	return &fakeArchiver{result: result}
}

func newBlockingArchiver(result bool) *fakeArchiver {
	return &fakeArchiver{
		result:  result,
		started: make(chan string, 8),
		release: make(chan struct{}),
	}
}

func (a *fakeArchiver) Archive(ctx context.Context, target string) bool {
	a.mu.Lock()
	a.calls = append(a.calls, target)
	a.mu.Unlock()
	if a.started != nil {
		a.started <- target
	}
	if a.release != nil {
		select {
		case <-a.release:
		case <-ctx.Done():
			return false
		}
	}
	return a.result
}

func (a *fakeArchiver) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

type panicArchiver struct{}

func (panicArchiver) Archive(context.Context, string) bool {
	panic("archiver exploded")
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("sub-%d", g.n), nil
}

type failingIDs struct{}

func (failingIDs) NewID() (string, error) {
	return "", errors.New("entropy exhausted")
}

// recordingEmitter keeps every event in emission order.
type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) Stages(token uint64) []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []progress.Stage
	for _, evt := range r.events {
		if evt.Token == token {
			out = append(out, evt.Stage)
		}
	}
	return out
}
