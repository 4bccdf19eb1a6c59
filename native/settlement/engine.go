package settlement

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"rfqdesk/core/events"
	"rfqdesk/native/bank"
	nativecommon "rfqdesk/native/common"
	"rfqdesk/native/registry"
	"rfqdesk/native/roles"
)

var (
	errNilEngine = errors.New("settlement: engine not configured")
	errNilBank   = errors.New("settlement: bank not configured")
)

// Bank moves value between accounts. Every move made through the supplied
// ValueMover is applied together or not at all.
type Bank interface {
	Atomically(fn func(bank.ValueMover) error) error
}

// PermitAuthorizer installs an allowance from a signed permit.
type PermitAuthorizer interface {
	PreAuthorize(asset string, owner, spender [20]byte, amount *big.Int, nonce uint64, deadline int64, signature []byte) error
}

// Whitelist reports whether an account may create requests.
type Whitelist interface {
	IsWhitelisted(addr [20]byte) bool
}

// Observer receives engine outcomes for metrics.
type Observer interface {
	RequestCreated(side string)
	RequestRemoved(reason string)
	RequestAccepted(side string, base, counter *big.Int)
	OperationRejected(op, reason string)
	LimiterUpdated(state nativecommon.WindowState)
}

type noopObserver struct{}

func (noopObserver) RequestCreated(string) {}
func (noopObserver) RequestRemoved(string) {}
func (noopObserver) RequestAccepted(string, *big.Int, *big.Int) {}
func (noopObserver) OperationRejected(string, string) {}
func (noopObserver) LimiterUpdated(nativecommon.WindowState) {}

// Engine owns the pending request registry and the volume limiter and
// settles accepted requests against the treasury. All operations are
// serialised by a single mutex. Emitters and observers are invoked while the
// lock is held and must not call back into the engine.
type Engine struct {
	mu        sync.Mutex
	params    Parameters
	requests  *registry.Registry[*Request]
	limiter   *nativecommon.Window
	bank      Bank
	roles     nativecommon.CapabilityView
	permits   PermitAuthorizer
	feed      PriceFeed
	whitelist Whitelist
	emitter   events.Emitter
	observer  Observer
	logger    *slog.Logger
	nowFn     func() int64
}

// NewEngine constructs an engine bound to the supplied bank and capability
// view. The limiter window starts at the current time.
func NewEngine(params Parameters, b Bank, view nativecommon.CapabilityView) (*Engine, error) {
	if b == nil {
		return nil, errNilBank
	}
	if params.MinTradeAmount == nil || params.LimiterCap == nil {
		return nil, fmt.Errorf("settlement: parameters not initialised")
	}
	e := &Engine{
		params:   params,
		requests: registry.New[*Request](),
		bank:     b,
		roles:    view,
		emitter:  events.NoopEmitter{},
		observer: noopObserver{},
		logger:   slog.Default(),
		nowFn:    func() int64 { return time.Now().Unix() },
	}
	limiter, err := nativecommon.NewWindow(e.params.LimiterInterval, e.params.LimiterCap, e.now())
	if err != nil {
		return nil, fmt.Errorf("settlement: limiter: %w", err)
	}
	e.limiter = limiter
	return e, nil
}

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetObserver configures the metrics observer.
func (e *Engine) SetObserver(observer Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if observer == nil {
		e.observer = noopObserver{}
		return
	}
	e.observer = observer
}

// SetPriceFeed enables the creation band check. A nil feed disables it.
func (e *Engine) SetPriceFeed(feed PriceFeed) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.feed = feed
}

// SetWhitelist restricts request creation to whitelisted accounts. A nil
// whitelist admits everyone.
func (e *Engine) SetWhitelist(w Whitelist) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.whitelist = w
}

func (e *Engine) SetPermits(p PermitAuthorizer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.permits = p
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// SetNowFunc overrides the time source, primarily used in tests. An idle
// limiter window is re-anchored at the new clock; consumed budget is kept.
func (e *Engine) SetNowFunc(now func() int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	e.nowFn = now
	e.limiter.Rebase(e.now())
}

func (e *Engine) now() int64 {
	if e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(evt events.Event) {
	if e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) reject(op string, err error) error {
	e.observer.OperationRejected(op, Reason(err))
	e.logger.Debug("rfq operation rejected", slog.String("op", op), slog.String("reason", Reason(err)), slog.Any("error", err))
	return err
}

// Parameters returns the engine configuration.
func (e *Engine) Parameters() Parameters {
	if e == nil {
		return Parameters{}
	}
	return e.params
}

// RequestTrade records a new pending request for caller. A positive amount
// buys the base asset at no more than price; a negative amount sells it at no
// less than price.
func (e *Engine) RequestTrade(caller [20]byte, price, amount *big.Int, deadline int64) (*Request, error) {
	if e == nil {
		return nil, errNilEngine
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	if err := e.validateRequest(caller, price, amount, deadline, now); err != nil {
		return nil, e.reject("request", err)
	}
	return e.create(caller, price, amount, deadline, now)
}

// RequestTradeWithPermit records a request after installing the allowance
// carried by auth. The permit covers the asset the requester pays: the
// counter asset for buys and the base asset for sells. Validation runs first
// so a rejected request does not consume the permit.
func (e *Engine) RequestTradeWithPermit(caller [20]byte, price, amount *big.Int, deadline int64, auth Authorization) (*Request, error) {
	if e == nil {
		return nil, errNilEngine
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.permits == nil {
		return nil, e.reject("request", ErrPermitsDisabled)
	}
	now := e.now()
	if err := e.validateRequest(caller, price, amount, deadline, now); err != nil {
		return nil, e.reject("request", err)
	}
	asset := e.params.CounterAsset
	if amount.Sign() < 0 {
		asset = e.params.BaseAsset
	}
	if err := e.permits.PreAuthorize(asset, caller, e.params.Treasury, auth.Amount, auth.Nonce, auth.Deadline, auth.Signature); err != nil {
		return nil, e.reject("request", err)
	}
	return e.create(caller, price, amount, deadline, now)
}

func (e *Engine) validateRequest(caller [20]byte, price, amount *big.Int, deadline, now int64) error {
	if e.whitelist != nil && !e.whitelist.IsWhitelisted(caller) {
		return ErrNotWhitelisted
	}
	if price == nil || price.Sign() < 0 {
		return ErrInvalidPrice
	}
	if deadline < now {
		return ErrDeadlineExpired
	}
	if deadline > now+e.params.MaxRequestDuration {
		return ErrDeadlineTooFar
	}
	if amount == nil || amount.Sign() == 0 || new(big.Int).Abs(amount).Cmp(e.params.MinTradeAmount) < 0 {
		return ErrAmountTooSmall
	}
	if e.feed == nil {
		return nil
	}
	reading, err := e.feed.LatestPrice()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
	}
	if reading.Price == nil || reading.Price.Sign() <= 0 {
		return ErrOracleUnavailable
	}
	if e.params.OracleMaxAge > 0 && now-reading.UpdatedAt.Unix() > e.params.OracleMaxAge {
		return ErrOracleStale
	}
	reference := RescalePrice(reading.Price, reading.Decimals, e.params.PriceDecimals)
	return CheckPriceBand(price, reference, e.params.PriceBandBps)
}

func (e *Engine) create(caller [20]byte, price, amount *big.Int, deadline, now int64) (*Request, error) {
	e.sweepLocked(func(req *Request) bool { return req.Account == caller }, now)
	req := &Request{
		Account:   caller,
		Price:     new(big.Int).Set(price),
		Amount:    new(big.Int).Set(amount),
		Deadline:  deadline,
		CreatedAt: now,
	}
	id, err := e.requests.Insert(req)
	if err != nil {
		return nil, e.reject("request", err)
	}
	req.ID = id
	e.emit(events.RequestCreated{
		Account:  caller,
		ID:       id,
		Price:    req.Price,
		Amount:   req.Amount,
		Deadline: deadline,
	})
	e.observer.RequestCreated(string(req.Side()))
	e.logger.Info("rfq request created",
		slog.Uint64("id", id),
		slog.String("side", string(req.Side())),
		slog.String("amount", amount.String()),
		slog.String("price", price.String()),
		slog.Int64("deadline", deadline))
	return req.Clone(), nil
}

// Cancel removes a pending request owned by caller.
func (e *Engine) Cancel(caller [20]byte, id uint64) error {
	if e == nil {
		return errNilEngine
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	req, ok := e.requests.Get(id)
	if !ok {
		return e.reject("cancel", ErrRequestNotFound)
	}
	if req.Account != caller {
		return e.reject("cancel", ErrUnauthorized)
	}
	e.requests.Remove(id)
	e.emit(events.RequestCancelled{Account: req.Account, ID: id, Reason: events.CancelReasonOwner})
	e.observer.RequestRemoved(events.CancelReasonOwner)
	e.logger.Info("rfq request cancelled", slog.Uint64("id", id))
	return nil
}

// Accept settles a pending request at price on behalf of the treasury. For
// buys the price may not exceed the request price and for sells it may not
// fall below it. Both legs move in one bank transaction; any failure leaves
// the registry, the limiter and balances unchanged.
func (e *Engine) Accept(caller [20]byte, id uint64, price *big.Int) (*Settlement, error) {
	if e == nil {
		return nil, errNilEngine
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.RequireRole(e.roles, roles.RoleAcceptor, caller); err != nil {
		return nil, e.reject("accept", err)
	}
	if price == nil || price.Sign() < 0 {
		return nil, e.reject("accept", ErrInvalidPrice)
	}
	req, ok := e.requests.Get(id)
	if !ok {
		return nil, e.reject("accept", ErrRequestNotFound)
	}
	now := e.now()
	if req.Expired(now) {
		return nil, e.reject("accept", ErrDeadlineExpired)
	}
	buy := req.Amount.Sign() > 0
	if buy && price.Cmp(req.Price) > 0 {
		return nil, e.reject("accept", &PriceError{Kind: PriceTooHigh, Price: new(big.Int).Set(price), Bound: new(big.Int).Set(req.Price)})
	}
	if !buy && price.Cmp(req.Price) < 0 {
		return nil, e.reject("accept", &PriceError{Kind: PriceTooLow, Price: new(big.Int).Set(price), Bound: new(big.Int).Set(req.Price)})
	}
	counter := CounterAmount(price, req.Amount, e.params.PriceDecimals)
	baseMagnitude := new(big.Int).Abs(req.Amount)
	volume, overflow := uint256.FromBig(baseMagnitude)
	if overflow || !e.limiter.Fits(now, volume) {
		return nil, e.reject("accept", ErrLimitExceeded)
	}
	counterMagnitude := new(big.Int).Abs(counter)
	treasury := e.params.Treasury
	err := e.bank.Atomically(func(tx bank.ValueMover) error {
		if buy {
			if err := tx.MoveValue(e.params.BaseAsset, treasury, req.Account, baseMagnitude); err != nil {
				return err
			}
			return tx.MoveValue(e.params.CounterAsset, req.Account, treasury, counterMagnitude)
		}
		if err := tx.MoveValue(e.params.BaseAsset, req.Account, treasury, baseMagnitude); err != nil {
			return err
		}
		return tx.MoveValue(e.params.CounterAsset, treasury, req.Account, counterMagnitude)
	})
	if err != nil {
		e.logger.Warn("rfq settlement transfer failed", slog.Uint64("id", id), slog.Any("error", err))
		return nil, e.reject("accept", fmt.Errorf("settlement: transfer: %w", err))
	}
	// Fits passed under the same lock, so the commit cannot be refused.
	e.limiter.AddOperation(now, volume)
	e.requests.Remove(id)
	e.emit(events.RequestAccepted{Account: req.Account, ID: id, Price: new(big.Int).Set(price)})
	e.observer.RequestAccepted(string(req.Side()), req.Amount, counter)
	e.observer.RequestRemoved("accepted")
	e.observer.LimiterUpdated(e.limiter.Snapshot(now))
	e.logger.Info("rfq request accepted",
		slog.Uint64("id", id),
		slog.String("side", string(req.Side())),
		slog.String("price", price.String()),
		slog.String("base", req.Amount.String()),
		slog.String("counter", counter.String()))
	return &Settlement{
		Request:       req.Clone(),
		Price:         new(big.Int).Set(price),
		BaseAmount:    new(big.Int).Set(req.Amount),
		CounterAmount: counter,
		SettledAt:     now,
	}, nil
}
