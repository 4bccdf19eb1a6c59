package settlement

import (
	"log/slog"

	"rfqdesk/core/events"
)

// Expire removes the request if its deadline has passed. Absent or live ids
// are ignored.
func (e *Engine) Expire(id uint64) bool {
	return len(e.ExpireMany([]uint64{id})) == 1
}

// ExpireMany removes every listed request whose deadline has passed and
// returns the removed ids in input order.
func (e *Engine) ExpireMany(ids []uint64) []uint64 {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	removed := make([]uint64, 0, len(ids))
	for _, id := range ids {
		req, ok := e.requests.Get(id)
		if !ok || !req.Expired(now) {
			continue
		}
		e.expireLocked(id, req)
		removed = append(removed, id)
	}
	return removed
}

// ExpireAll sweeps the whole registry.
func (e *Engine) ExpireAll() []uint64 {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sweepLocked(nil, e.now())
}

// ExpireAccount sweeps the expired requests owned by addr.
func (e *Engine) ExpireAccount(addr [20]byte) []uint64 {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sweepLocked(func(req *Request) bool { return req.Account == addr }, e.now())
}

func (e *Engine) sweepLocked(match func(*Request) bool, now int64) []uint64 {
	var removed []uint64
	for id, req := range e.requests.All() {
		if match != nil && !match(req) {
			continue
		}
		if !req.Expired(now) {
			continue
		}
		e.expireLocked(id, req)
		removed = append(removed, id)
	}
	return removed
}

func (e *Engine) expireLocked(id uint64, req *Request) {
	e.requests.Remove(id)
	e.emit(events.RequestCancelled{Account: req.Account, ID: id, Reason: events.CancelReasonExpired})
	e.observer.RequestRemoved(events.CancelReasonExpired)
	e.logger.Debug("rfq request expired", slog.Uint64("id", id), slog.Int64("deadline", req.Deadline))
}
