package common

import (
	"errors"

	"github.com/holiman/uint256"
)

var ErrWindowIntervalInvalid = errors.New("window interval must be positive")

// WindowState captures the limiter counters at a point in time.
type WindowState struct {
	IntervalSeconds int64
	Limit           *uint256.Int
	WindowStart     int64
	Used            *uint256.Int
}

// Remaining reports how much volume still fits under the cap. A cap that was
// pushed below the used volume reports zero.
func (s WindowState) Remaining() *uint256.Int {
	out := new(uint256.Int)
	if s.Limit == nil || s.Used == nil || s.Used.Gt(s.Limit) {
		return out
	}
	return out.Sub(s.Limit, s.Used)
}

// Window bounds cumulative volume admitted over a trailing interval. The
// accounting window restarts lazily on the first call made at or after
// windowStart+interval, so there is no background tick.
//
// Window is not safe for concurrent use.
type Window struct {
	interval    int64
	limit       uint256.Int
	windowStart int64
	used        uint256.Int
}

// NewWindow constructs a limiter whose first window opens at start.
func NewWindow(intervalSeconds int64, limit *uint256.Int, start int64) (*Window, error) {
	if intervalSeconds <= 0 {
		return nil, ErrWindowIntervalInvalid
	}
	w := &Window{interval: intervalSeconds, windowStart: start}
	if limit != nil {
		w.limit.Set(limit)
	}
	return w, nil
}

func (w *Window) roll(now int64) {
	if now-w.windowStart >= w.interval {
		w.used.Clear()
		w.windowStart = now
	}
}

// Fits reports whether amount would be admitted at now without committing
// anything, including the window reset.
func (w *Window) Fits(now int64, amount *uint256.Int) bool {
	used := w.used
	if now-w.windowStart >= w.interval {
		used.Clear()
	}
	return fits(&used, &w.limit, amount)
}

// AddOperation applies the reset rule and then admits amount when the
// projected usage stays within the cap. A rejected call leaves the counters
// as they were after the reset.
func (w *Window) AddOperation(now int64, amount *uint256.Int) bool {
	w.roll(now)
	if !fits(&w.used, &w.limit, amount) {
		return false
	}
	if amount != nil {
		w.used.Add(&w.used, amount)
	}
	return true
}

func fits(used, limit, amount *uint256.Int) bool {
	if amount == nil {
		return !used.Gt(limit)
	}
	projected, overflow := new(uint256.Int).AddOverflow(used, amount)
	if overflow {
		return false
	}
	return !projected.Gt(limit)
}

// Rebase re-anchors an idle window so it opens at now. A window that has
// already admitted volume is left alone.
func (w *Window) Rebase(now int64) {
	if w.used.IsZero() {
		w.windowStart = now
	}
}

// SetLimit replaces the cap unconditionally.
func (w *Window) SetLimit(value *uint256.Int) {
	if value == nil {
		w.limit.Clear()
		return
	}
	w.limit.Set(value)
}

// TemporarilyIncreaseLimit raises the cap by delta, saturating at the maximum
// representable value. The operator is expected to reverse it later.
func (w *Window) TemporarilyIncreaseLimit(delta *uint256.Int) {
	if delta == nil {
		return
	}
	if _, overflow := w.limit.AddOverflow(&w.limit, delta); overflow {
		w.limit.SetAllOne()
	}
}

// TemporarilyDecreaseLimit lowers the cap by delta, saturating at zero. The
// cap may end up below the used volume, which blocks admissions until the
// window resets or the cap is raised.
func (w *Window) TemporarilyDecreaseLimit(delta *uint256.Int) {
	if delta == nil {
		return
	}
	if _, underflow := w.limit.SubOverflow(&w.limit, delta); underflow {
		w.limit.Clear()
	}
}

// Limit returns a copy of the current cap.
func (w *Window) Limit() *uint256.Int { return w.limit.Clone() }

// Snapshot reports the counters as the next call at now would observe them.
// It does not mutate the window.
func (w *Window) Snapshot(now int64) WindowState {
	state := WindowState{
		IntervalSeconds: w.interval,
		Limit:           w.limit.Clone(),
		WindowStart:     w.windowStart,
		Used:            w.used.Clone(),
	}
	if now-w.windowStart >= w.interval {
		state.WindowStart = now
		state.Used = new(uint256.Int)
	}
	return state
}
