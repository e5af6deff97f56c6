// Package ttlwheel implements a hierarchical 4-level timing wheel for O(1)
// expiry scheduling: 60 second slots, 60 minute slots, 24 hour slots and
// 7 day slots, covering TTLs from one second to seven days.
//
// The wheel has no internal time source. Advance(now) is driven externally
// with bar timestamps, which keeps expiry processing fully deterministic.
package ttlwheel

import "time"

const (
	secSlots  = 60
	minSlots  = 60
	hourSlots = 24
	daySlots  = 7
)

// Item is an expired entry returned by Advance.
type Item struct {
	ID        string
	ExpiresAt time.Time
}

type entry struct {
	id        string
	expiresAt time.Time
	cancelled bool
}

// Wheel schedules string-keyed expiries. Not goroutine-safe: the pipeline is
// single-threaded per symbol.
type Wheel struct {
	now    time.Time
	wheels [4][][]*entry
	index  map[string]*entry
	due    []*entry // late-scheduled items awaiting the next Advance

	scheduled uint64
	expired   uint64
}

// New creates a wheel anchored at start (truncated to whole seconds).
func New(start time.Time) *Wheel {
	w := &Wheel{
		now:   start.UTC().Truncate(time.Second),
		index: make(map[string]*entry),
	}
	sizes := [4]int{secSlots, minSlots, hourSlots, daySlots}
	for level, n := range sizes {
		w.wheels[level] = make([][]*entry, n)
	}
	return w
}

// Now returns the wheel's current time.
func (w *Wheel) Now() time.Time { return w.now }

// Size returns the number of scheduled, not-yet-expired items.
func (w *Wheel) Size() int { return len(w.index) }

// Schedule inserts an expiry for id. Scheduling an id twice is refused.
// Late scheduling (expiresAt <= now) is legal: the item goes straight to the
// due list and is returned by the next Advance.
func (w *Wheel) Schedule(id string, expiresAt time.Time) bool {
	if _, ok := w.index[id]; ok {
		return false
	}
	e := &entry{id: id, expiresAt: expiresAt}
	w.index[id] = e
	w.scheduled++

	if !expiresAt.After(w.now) {
		w.due = append(w.due, e)
		return true
	}
	level, slot := w.position(expiresAt, w.now)
	w.wheels[level][slot] = append(w.wheels[level][slot], e)
	return true
}

// Cancel removes a scheduled expiry. O(1): the slot entry is tombstoned and
// skipped when its slot drains.
func (w *Wheel) Cancel(id string) bool {
	e, ok := w.index[id]
	if !ok {
		return false
	}
	e.cancelled = true
	delete(w.index, id)
	return true
}

// Advance moves the wheel clock forward to now and returns every item whose
// expiry fell in the elapsed interval, in expiry order. Advancing to a time
// at or before the current clock only drains the due list, so
// Advance(t1); Advance(t2) with t1 <= t2 is equivalent to Advance(t2).
func (w *Wheel) Advance(now time.Time) []Item {
	now = now.UTC()
	var out []Item
	out = w.drainDue(out)

	for !w.now.Add(time.Second).After(now) {
		w.now = w.now.Add(time.Second)
		out = w.advanceSecond(out)
	}
	return out
}

func (w *Wheel) drainDue(out []Item) []Item {
	for _, e := range w.due {
		if e.cancelled {
			continue
		}
		out = append(out, Item{ID: e.id, ExpiresAt: e.expiresAt})
		delete(w.index, e.id)
		w.expired++
	}
	w.due = w.due[:0]
	return out
}

// advanceSecond drains the slot of the second just entered and cascades
// coarser wheels on rollover boundaries.
func (w *Wheel) advanceSecond(out []Item) []Item {
	slot := w.now.Second()
	for _, e := range w.wheels[0][slot] {
		if e.cancelled {
			continue
		}
		out = append(out, Item{ID: e.id, ExpiresAt: e.expiresAt})
		delete(w.index, e.id)
		w.expired++
	}
	w.wheels[0][slot] = w.wheels[0][slot][:0]

	// Cascade ahead of the upcoming rollover so the next minute's items are
	// already spread across the finer wheels when we reach them.
	if slot == 59 {
		next := w.now.Add(time.Second)
		w.cascade(1, next.Minute(), next)
		if next.Minute() == 0 {
			w.cascade(2, next.Hour(), next)
			if next.Hour() == 0 {
				w.cascade(3, int(next.Weekday()), next)
			}
		}
	}
	return out
}

// cascade re-places a coarse slot's items relative to the reference time.
func (w *Wheel) cascade(level, slot int, ref time.Time) {
	items := w.wheels[level][slot]
	w.wheels[level][slot] = nil

	for _, e := range items {
		if e.cancelled {
			continue
		}
		delta := int(e.expiresAt.Sub(ref) / time.Second)
		if delta > 0 {
			l, s := w.position(e.expiresAt, ref)
			w.wheels[l][s] = append(w.wheels[l][s], e)
		} else {
			// Already due relative to the new reference: place it in the
			// reference second's slot so the next advance collects it.
			w.wheels[0][ref.Second()] = append(w.wheels[0][ref.Second()], e)
		}
	}
}

// position picks the finest wheel level whose span still covers the delta.
func (w *Wheel) position(expiresAt, ref time.Time) (level, slot int) {
	delta := int(expiresAt.Sub(ref) / time.Second)
	switch {
	case delta < secSlots:
		return 0, (ref.Second() + delta) % secSlots
	case delta < minSlots*60:
		return 1, (ref.Minute() + delta/60) % minSlots
	case delta < hourSlots*3600:
		return 2, (ref.Hour() + delta/3600) % hourSlots
	default:
		return 3, (int(ref.Weekday()) + delta/86400) % daySlots
	}
}
