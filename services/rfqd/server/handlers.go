package server

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"rfqdesk/crypto"
	"rfqdesk/native/settlement"
	"rfqdesk/services/rfqd/storage"
)

const maxBodyBytes = 1 << 16

type requestView struct {
	ID        uint64 `json:"id"`
	Account   string `json:"account"`
	Side      string `json:"side"`
	Price     string `json:"price"`
	Amount    string `json:"amount"`
	Deadline  int64  `json:"deadline"`
	CreatedAt int64  `json:"created_at"`
}

func newRequestView(req *settlement.Request) requestView {
	return requestView{
		ID:        req.ID,
		Account:   crypto.FormatAccount(req.Account),
		Side:      string(req.Side()),
		Price:     req.Price.String(),
		Amount:    req.Amount.String(),
		Deadline:  req.Deadline,
		CreatedAt: req.CreatedAt,
	}
}

type permitBody struct {
	Amount    string `json:"amount"`
	Nonce     uint64 `json:"nonce"`
	Deadline  int64  `json:"deadline"`
	Signature string `json:"signature"`
}

type createRequestBody struct {
	Price    string      `json:"price"`
	Amount   string      `json:"amount"`
	Deadline int64       `json:"deadline"`
	Permit   *permitBody `json:"permit,omitempty"`
}

type acceptBody struct {
	Price string `json:"price"`
}

type settlementView struct {
	Request       requestView `json:"request"`
	Price         string      `json:"price"`
	BaseAmount    string      `json:"base_amount"`
	CounterAmount string      `json:"counter_amount"`
	SettledAt     int64       `json:"settled_at"`
}

type expireBody struct {
	IDs     []uint64 `json:"ids"`
	Account string   `json:"account"`
}

type limitBody struct {
	Value string `json:"value"`
}

type adjustBody struct {
	Delta     string `json:"delta"`
	Direction string `json:"direction"`
}

type limiterView struct {
	IntervalSeconds int64  `json:"interval_seconds"`
	Limit           string `json:"limit"`
	Used            string `json:"used"`
	Remaining       string `json:"remaining"`
	WindowStart     int64  `json:"window_start"`
}

type notificationView struct {
	Seq        uint              `json:"seq"`
	EventID    string            `json:"event_id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  int64             `json:"created_at"`
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

func parseInt(field, raw string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("%s must be a decimal integer", field)
	}
	return value, nil
}

func parseUint256(field, raw string) (*uint256.Int, error) {
	value, err := uint256.FromDecimal(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%s must be an unsigned decimal integer", field)
	}
	return value, nil
}

func parseID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid request id")
	}
	return id, nil
}

func mustCaller(w http.ResponseWriter, r *http.Request) ([20]byte, bool) {
	caller, ok := CallerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errMissingToken)
	}
	return caller, ok
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	caller, ok := mustCaller(w, r)
	if !ok {
		return
	}
	var body createRequestBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	price, err := parseInt("price", body.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseInt("amount", body.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req *settlement.Request
	if body.Permit != nil {
		auth, err := body.Permit.authorization()
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		req, err = s.engine.RequestTradeWithPermit(caller, price, amount, body.Deadline, auth)
		if err != nil {
			writeEngineError(w, err)
			return
		}
	} else {
		req, err = s.engine.RequestTrade(caller, price, amount, body.Deadline)
		if err != nil {
			writeEngineError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, newRequestView(req))
}

func (p *permitBody) authorization() (settlement.Authorization, error) {
	amount, err := parseInt("permit.amount", p.Amount)
	if err != nil {
		return settlement.Authorization{}, err
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(p.Signature), "0x"))
	if err != nil {
		return settlement.Authorization{}, fmt.Errorf("permit.signature must be hex")
	}
	return settlement.Authorization{Amount: amount, Nonce: p.Nonce, Deadline: p.Deadline, Signature: sig}, nil
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	var reqs []*settlement.Request
	if raw := strings.TrimSpace(r.URL.Query().Get("account")); raw != "" {
		account, err := crypto.ParseAccount(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		reqs = s.engine.RequestsOf(account)
	} else {
		reqs = s.engine.Requests()
	}
	out := make([]requestView, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, newRequestView(req))
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": out})
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req, ok := s.engine.Request(id)
	if !ok {
		writeEngineError(w, settlement.ErrRequestNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newRequestView(req))
}

func (s *Server) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	caller, ok := mustCaller(w, r)
	if !ok {
		return
	}
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.Cancel(caller, id); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	caller, ok := mustCaller(w, r)
	if !ok {
		return
	}
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var body acceptBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	price, err := parseInt("price", body.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	settled, err := s.engine.Accept(caller, id, price)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settlementView{
		Request:       newRequestView(settled.Request),
		Price:         settled.Price.String(),
		BaseAmount:    settled.BaseAmount.String(),
		CounterAmount: settled.CounterAmount.String(),
		SettledAt:     settled.SettledAt,
	})
}

func (s *Server) handleExpire(w http.ResponseWriter, r *http.Request) {
	var body expireBody
	if err := decodeBody(r, &body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var removed []uint64
	switch {
	case len(body.IDs) > 0:
		removed = s.engine.ExpireMany(body.IDs)
	case strings.TrimSpace(body.Account) != "":
		account, err := crypto.ParseAccount(strings.TrimSpace(body.Account))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		removed = s.engine.ExpireAccount(account)
	default:
		removed = s.engine.ExpireAll()
	}
	if removed == nil {
		removed = []uint64{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func (s *Server) handleLimiter(w http.ResponseWriter, r *http.Request) {
	state := s.engine.Limiter()
	writeJSON(w, http.StatusOK, limiterView{
		IntervalSeconds: state.IntervalSeconds,
		Limit:           state.Limit.Dec(),
		Used:            state.Used.Dec(),
		Remaining:       state.Remaining().Dec(),
		WindowStart:     state.WindowStart,
	})
}

func (s *Server) handleSetLimit(w http.ResponseWriter, r *http.Request) {
	caller, ok := mustCaller(w, r)
	if !ok {
		return
	}
	var body limitBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	value, err := parseUint256("value", body.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.SetLimit(caller, value); err != nil {
		writeEngineError(w, err)
		return
	}
	s.handleLimiter(w, r)
}

func (s *Server) handleAdjustLimit(w http.ResponseWriter, r *http.Request) {
	caller, ok := mustCaller(w, r)
	if !ok {
		return
	}
	var body adjustBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	delta, err := parseUint256("delta", body.Delta)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	switch strings.ToLower(strings.TrimSpace(body.Direction)) {
	case "increase":
		err = s.engine.TemporarilyIncreaseLimit(caller, delta)
	case "decrease":
		err = s.engine.TemporarilyDecreaseLimit(caller, delta)
	default:
		writeError(w, http.StatusBadRequest, errors.New("direction must be increase or decrease"))
		return
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.handleLimiter(w, r)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("archive not configured"))
		return
	}
	query := r.URL.Query()
	q := storage.Query{
		Type:    strings.TrimSpace(query.Get("type")),
		Account: strings.TrimSpace(query.Get("account")),
	}
	if raw := query.Get("request_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid request_id"))
			return
		}
		q.RequestID = id
	}
	if raw := query.Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid after"))
			return
		}
		q.AfterSeq = uint(after)
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid limit"))
			return
		}
		q.Limit = limit
	}
	rows, err := s.archive.List(r.Context(), q)
	if err != nil {
		s.logger.Error("list archive", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("archive unavailable"))
		return
	}
	out := make([]notificationView, 0, len(rows))
	for _, row := range rows {
		out = append(out, notificationView{
			Seq:        row.ID,
			EventID:    row.EventID,
			Type:       row.Type,
			Attributes: row.Decoded(),
			CreatedAt:  row.CreatedAt.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}
