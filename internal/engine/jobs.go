package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// afterFunc schedules f after d and returns a stop function.
type afterFunc func(d time.Duration, f func()) (stop func() bool)

func realAfter(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

type job struct {
	id   uint64
	stop func() bool
}

// jobRunner keeps at most one job per name. Installing a name again
// replaces the previous job, so reinstalls never duplicate work.
type jobRunner struct {
	mu    sync.Mutex
	jobs  map[string]*job
	seq   uint64
	now   func() time.Time
	after afterFunc
}

func newJobRunner(now func() time.Time, after afterFunc) *jobRunner {
	return &jobRunner{jobs: map[string]*job{}, now: now, after: after}
}

// At runs fn once at t; a time in the past fires immediately.
func (r *jobRunner) At(name string, t time.Time, fn func()) {
	r.set(name, t.Sub(r.now()), func(id uint64) {
		r.finish(name, id)
		fn()
	})
}

// Every runs fn from start (or now, if later) every interval until the
// next run would fall after until.
func (r *jobRunner) Every(name string, start, until time.Time, interval time.Duration, fn func()) {
	now := r.now()
	if now.After(until) || interval <= 0 {
		r.Cancel(name)
		return
	}
	first := start
	if first.Before(now) {
		first = now
	}

	var tick func(id uint64)
	tick = func(id uint64) {
		fn()
		next := r.now().Add(interval)
		if next.After(until) {
			r.finish(name, id)
			return
		}
		r.reschedule(name, id, interval, tick)
	}
	r.set(name, first.Sub(now), tick)
}

// Daily runs fn every day at hh:mm in loc.
func (r *jobRunner) Daily(name, hhmm string, loc *time.Location, fn func()) error {
	clock, err := time.ParseInLocation("15:04", hhmm, loc)
	if err != nil {
		return fmt.Errorf("daily job %s: %w", name, err)
	}
	untilNext := func() time.Duration {
		now := r.now().In(loc)
		next := time.Date(now.Year(), now.Month(), now.Day(), clock.Hour(), clock.Minute(), 0, 0, loc)
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return next.Sub(now)
	}

	var tick func(id uint64)
	tick = func(id uint64) {
		fn()
		r.reschedule(name, id, untilNext(), tick)
	}
	r.set(name, untilNext(), tick)
	return nil
}

func (r *jobRunner) set(name string, d time.Duration, fn func(id uint64)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.jobs[name]; ok {
		old.stop()
	}
	r.seq++
	j := &job{id: r.seq}
	r.jobs[name] = j
	j.stop = r.arm(name, j.id, d, fn)
}

func (r *jobRunner) reschedule(name string, id uint64, d time.Duration, fn func(id uint64)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[name]
	if !ok || j.id != id {
		return
	}
	j.stop = r.arm(name, id, d, fn)
}

// arm must be called with r.mu held.
func (r *jobRunner) arm(name string, id uint64, d time.Duration, fn func(id uint64)) func() bool {
	return r.after(max(d, 0), func() {
		if r.live(name, id) {
			fn(id)
		}
	})
}

func (r *jobRunner) live(name string, id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[name]
	return ok && j.id == id
}

func (r *jobRunner) finish(name string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[name]; ok && j.id == id {
		delete(r.jobs, name)
	}
}

func (r *jobRunner) Cancel(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[name]; ok {
		j.stop()
		delete(r.jobs, name)
	}
}

func (r *jobRunner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, j := range r.jobs {
		j.stop()
		delete(r.jobs, name)
	}
}

// Names lists installed jobs in sorted order.
func (r *jobRunner) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
