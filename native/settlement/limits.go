package settlement

import (
	"errors"
	"log/slog"

	"github.com/holiman/uint256"

	"rfqdesk/core/events"
	nativecommon "rfqdesk/native/common"
	"rfqdesk/native/roles"
)

var errNilLimit = errors.New("settlement: limit value required")

// SetLimit replaces the limiter cap.
func (e *Engine) SetLimit(caller [20]byte, value *uint256.Int) error {
	return e.adjustLimit(caller, "set_limit", value, func() events.Event {
		e.limiter.SetLimit(value)
		return events.LimitChanged{Value: value.Clone()}
	})
}

// TemporarilyIncreaseLimit raises the cap by delta, saturating at the
// numeric maximum.
func (e *Engine) TemporarilyIncreaseLimit(caller [20]byte, delta *uint256.Int) error {
	return e.adjustLimit(caller, "increase_limit", delta, func() events.Event {
		e.limiter.TemporarilyIncreaseLimit(delta)
		return events.LimitAdjusted{Delta: delta.Clone(), Direction: events.DirectionIncrease}
	})
}

// TemporarilyDecreaseLimit lowers the cap by delta, saturating at zero.
func (e *Engine) TemporarilyDecreaseLimit(caller [20]byte, delta *uint256.Int) error {
	return e.adjustLimit(caller, "decrease_limit", delta, func() events.Event {
		e.limiter.TemporarilyDecreaseLimit(delta)
		return events.LimitAdjusted{Delta: delta.Clone(), Direction: events.DirectionDecrease}
	})
}

func (e *Engine) adjustLimit(caller [20]byte, op string, value *uint256.Int, apply func() events.Event) error {
	if e == nil {
		return errNilEngine
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.RequireRole(e.roles, roles.RoleLimitAdmin, caller); err != nil {
		return e.reject(op, err)
	}
	if value == nil {
		return e.reject(op, errNilLimit)
	}
	e.emit(apply())
	state := e.limiter.Snapshot(e.now())
	e.observer.LimiterUpdated(state)
	e.logger.Info("rfq limiter updated", slog.String("op", op), slog.String("value", value.Dec()), slog.String("limit", state.Limit.Dec()))
	return nil
}
