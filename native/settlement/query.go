package settlement

import nativecommon "rfqdesk/native/common"

// Request returns a copy of the pending request with the given id.
func (e *Engine) Request(id uint64) (*Request, bool) {
	if e == nil {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	req, ok := e.requests.Get(id)
	if !ok {
		return nil, false
	}
	return req.Clone(), true
}

// Requests lists pending requests in creation order.
func (e *Engine) Requests() []*Request {
	return e.filter(nil)
}

// RequestsOf lists the pending requests owned by addr in creation order.
func (e *Engine) RequestsOf(addr [20]byte) []*Request {
	return e.filter(func(req *Request) bool { return req.Account == addr })
}

func (e *Engine) filter(match func(*Request) bool) []*Request {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Request, 0, e.requests.Len())
	for _, req := range e.requests.All() {
		if match == nil || match(req) {
			out = append(out, req.Clone())
		}
	}
	return out
}

// Pending reports the number of live requests.
func (e *Engine) Pending() int {
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requests.Len()
}

// Limiter reports the limiter state as of now.
func (e *Engine) Limiter() nativecommon.WindowState {
	if e == nil {
		return nativecommon.WindowState{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.limiter.Snapshot(e.now())
}
