// Package planner computes when the next outreach email may go out.
package planner

import (
	"math/rand/v2"
	"time"

	"gazette_outreach/internal/config"
)

// Random supplies the randomized offsets. Int64N returns a value in [0, n).
type Random interface {
	Int64N(n int64) int64
}

type globalRand struct{}

func (globalRand) Int64N(n int64) int64 { return rand.Int64N(n) }

// Planner places sends inside the configured business-hours window.
type Planner struct {
	rules config.Rules
	loc   *time.Location
	rnd   Random
}

// New creates a planner. A nil Random uses the global source.
func New(rules config.Rules, rnd Random) *Planner {
	loc := rules.Location
	if loc == nil {
		loc = time.UTC
	}
	if rnd == nil {
		rnd = globalRand{}
	}
	return &Planner{rules: rules, loc: loc, rnd: rnd}
}

// NextSendSlot returns the earliest permissible send time given the current
// time and the last send (nil when nothing has been sent yet).
//
// Outside the window the slot is the next window start plus a random offset.
// Inside it is max(now, last+MinDelay) plus jitter; a slot that falls past
// the window end rolls to the next window start.
func (p *Planner) NextSendSlot(now time.Time, last *time.Time) time.Time {
	now = now.In(p.loc)
	if !p.InWindow(now) {
		return p.nextWindowStart(now).Add(p.windowOffset())
	}

	slot := now
	if last != nil {
		if earliest := last.In(p.loc).Add(p.rules.MinDelay); earliest.After(slot) {
			slot = earliest
		}
	}
	slot = slot.Add(p.jitter())
	if !p.InWindow(slot) {
		return p.nextWindowStart(slot).Add(p.windowOffset())
	}
	return slot
}

// InWindow reports whether t is on a send day and within the send hours.
// The window end is exclusive.
func (p *Planner) InWindow(t time.Time) bool {
	t = t.In(p.loc)
	if !p.rules.SendDays.Contains(t.Weekday()) {
		return false
	}
	return !t.Before(p.rules.WindowStart.On(t)) && t.Before(p.rules.WindowEnd.On(t))
}

// nextWindowStart returns the first window start strictly after t.
func (p *Planner) nextWindowStart(t time.Time) time.Time {
	for i := 0; i < 8; i++ {
		day := t.AddDate(0, 0, i)
		start := p.rules.WindowStart.On(day)
		if p.rules.SendDays.Contains(day.Weekday()) && start.After(t) {
			return start
		}
	}
	// Unreachable with at least one send day configured.
	return p.rules.WindowStart.On(t.AddDate(0, 0, 7))
}

func (p *Planner) windowOffset() time.Duration {
	return p.between(0, p.rules.WindowOffsetMax)
}

func (p *Planner) jitter() time.Duration {
	return p.between(p.rules.JitterMin, p.rules.JitterMax)
}

// between returns a random duration in [lo, hi].
func (p *Planner) between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(p.rnd.Int64N(int64(hi-lo)+1))
}
