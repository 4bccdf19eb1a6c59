package server

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"rfqdesk/core/events"
	"rfqdesk/crypto"
	"rfqdesk/native/bank"
	"rfqdesk/native/permit"
	"rfqdesk/native/roles"
	"rfqdesk/native/settlement"
	"rfqdesk/services/rfqd/storage"
)

const (
	testSecret = "test-secret"
	testNow    = int64(1_700_000_000)
)

var (
	treasury = [20]byte{0xF0}
	alice    = [20]byte{0xA1}
	bob      = [20]byte{0xB0}
	desk     = [20]byte{0xC0}
)

type fixture struct {
	srv     *httptest.Server
	engine  *settlement.Engine
	ledger  *bank.Ledger
	archive *storage.Archive
	hub     *Hub
}

func bech32(addr [20]byte) string {
	return crypto.FormatAccount(addr)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	params, err := settlement.Config{
		BaseAsset:      "BASE",
		CounterAsset:   "QUOTE",
		Treasury:       bech32(treasury),
		MinTradeAmount: "1000",
		LimiterCap:     "3000000000",
	}.Parameters()
	require.NoError(t, err)

	ledger := bank.NewLedger(treasury, "BASE", "QUOTE")
	require.NoError(t, ledger.Mint("BASE", treasury, big.NewInt(10_000000000)))
	require.NoError(t, ledger.Mint("QUOTE", treasury, big.NewInt(10_000000000)))

	store := roles.NewStore()
	require.NoError(t, store.SetRole(roles.RoleAcceptor, desk[:]))
	require.NoError(t, store.SetRole(roles.RoleLimitAdmin, desk[:]))

	engine, err := settlement.NewEngine(params, ledger, store)
	require.NoError(t, err)
	engine.SetNowFunc(func() int64 { return testNow })
	authorizer := permit.NewAuthorizer(1, ledger, permit.NewMemoryNonceStore())
	authorizer.SetNowFunc(func() time.Time { return time.Unix(testNow, 0) })
	engine.SetPermits(authorizer)

	archive, err := storage.OpenArchive(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = archive.Close() })
	hub := NewHub(8, nil)
	engine.SetEmitter(events.Multi{archive, hub})

	auth, err := NewAuthenticator(AuthConfig{HMACSecret: testSecret, Issuer: "rfqd-test"}, nil)
	require.NoError(t, err)
	srv, err := New(Config{RateLimit: RateLimit{}}, engine, auth, archive, hub, nil)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{srv: ts, engine: engine, ledger: ledger, archive: archive, hub: hub}
}

func token(t *testing.T, addr [20]byte) string {
	t.Helper()
	tok, err := IssueToken([]byte(testSecret), "rfqd-test", "", bech32(addr), time.Hour, time.Now())
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(t *testing.T, method, path string, caller *[20]byte, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, reader)
	require.NoError(t, err)
	if caller != nil {
		req.Header.Set("Authorization", "Bearer "+token(t, *caller))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func TestCreateAndAcceptFlow(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ledger.Mint("QUOTE", alice, big.NewInt(2_000000000)))
	require.NoError(t, f.ledger.Approve("QUOTE", alice, treasury, big.NewInt(2_000000000)))

	resp, body := f.do(t, http.MethodPost, "/v1/requests", &alice, map[string]any{
		"price": "1000000", "amount": "2000000000", "deadline": testNow + 60,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	require.Equal(t, float64(1), body["id"])
	require.Equal(t, "buy", body["side"])
	require.NotEmpty(t, resp.Header.Get(requestIDHeader))

	resp, body = f.do(t, http.MethodGet, "/v1/requests/1", &bob, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, bech32(alice), body["account"])

	resp, _ = f.do(t, http.MethodPost, "/v1/requests/1/accept", &alice, map[string]any{"price": "1000000"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = f.do(t, http.MethodPost, "/v1/requests/1/accept", &desk, map[string]any{"price": "1000000"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	require.Equal(t, "-2000000000", body["counter_amount"])
	require.Equal(t, int64(2_000000000), f.ledger.Balance("BASE", alice).Int64())

	resp, _ = f.do(t, http.MethodGet, "/v1/requests/1", &bob, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = f.do(t, http.MethodGet, "/v1/limiter", &bob, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "2000000000", body["used"])
	require.Equal(t, "1000000000", body["remaining"])

	resp, body = f.do(t, http.MethodGet, "/v1/events?request_id=1", &bob, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list, ok := body["events"].([]any)
	require.True(t, ok)
	require.Len(t, list, 2)
}

func TestErrorStatusMapping(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodGet, "/v1/requests", nil, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := f.do(t, http.MethodPost, "/v1/requests", &alice, map[string]any{
		"price": "1", "amount": "5000", "deadline": testNow - 1,
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Equal(t, "deadline_expired", body["reason"])

	resp, _ = f.do(t, http.MethodPost, "/v1/requests", &alice, map[string]any{
		"price": "abc", "amount": "5000", "deadline": testNow,
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodDelete, "/v1/requests/9", &alice, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/v1/requests", &alice, map[string]any{
		"price": "1000000", "amount": "-5000000000", "deadline": testNow + 60,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, body = f.do(t, http.MethodPost, "/v1/requests/1/accept", &desk, map[string]any{"price": "1000000"})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "limit_exceeded", body["reason"])

	resp, _ = f.do(t, http.MethodPut, "/v1/limiter", &desk, map[string]any{"value": "9000000000"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body = f.do(t, http.MethodPost, "/v1/requests/1/accept", &desk, map[string]any{"price": "1000000"})
	require.Equal(t, http.StatusConflict, resp.StatusCode, body)

	resp, _ = f.do(t, http.MethodDelete, "/v1/requests/1", &bob, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = f.do(t, http.MethodDelete, "/v1/requests/1", &alice, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestLimiterAdjustAndExpire(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodPost, "/v1/limiter/adjust", &desk, map[string]any{"delta": "500", "direction": "increase"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "3000000500", body["limit"])

	resp, _ = f.do(t, http.MethodPost, "/v1/limiter/adjust", &desk, map[string]any{"delta": "1", "direction": "sideways"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/v1/limiter/adjust", &alice, map[string]any{"delta": "1", "direction": "decrease"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = f.do(t, http.MethodPost, "/v1/requests/expire", &bob, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []any{}, body["removed"])
}

func TestCreateWithPermit(t *testing.T) {
	f := newFixture(t)
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	owner := key.Account()
	require.NoError(t, f.ledger.Mint("BASE", owner, big.NewInt(5_000)))

	grant := &permit.Permit{ChainID: 1, Asset: "BASE", Owner: owner, Spender: treasury, Amount: big.NewInt(5_000), Nonce: 3, Deadline: testNow + 60}
	require.NoError(t, grant.Sign(key.PrivateKey))
	payload := map[string]any{
		"price": "1000000", "amount": "-5000", "deadline": testNow + 60,
		"permit": map[string]any{
			"amount": "5000", "nonce": 3, "deadline": testNow + 60,
			"signature": "0x" + hex.EncodeToString(grant.Signature),
		},
	}
	resp, body := f.do(t, http.MethodPost, "/v1/requests", &owner, payload)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	require.Equal(t, int64(5_000), f.ledger.Allowance("BASE", owner, treasury).Int64())

	resp, _ = f.do(t, http.MethodPost, "/v1/requests", &owner, payload)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestWebsocketStream(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := strings.Replace(f.srv.URL, "http://", "ws://", 1) + "/v1/events/ws?access_token=" + token(t, bob)
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	require.Eventually(t, func() bool { return f.hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	_, err = f.engine.RequestTrade(alice, big.NewInt(1), big.NewInt(5_000), testNow+10)
	require.NoError(t, err)

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg StreamMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	require.Equal(t, events.TypeRequestCreated, msg.Type)
	require.Equal(t, "1", msg.Attributes["id"])
}

func TestRateLimiterThrottles(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 1, Burst: 1})
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, first.Code)
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestAuthenticatorRejectsBadTokens(t *testing.T) {
	auth, err := NewAuthenticator(AuthConfig{HMACSecret: testSecret, Issuer: "rfqd-test"}, nil)
	require.NoError(t, err)

	wrongIssuer, err := IssueToken([]byte(testSecret), "other", "", bech32(alice), time.Hour, time.Now())
	require.NoError(t, err)
	_, err = auth.Authenticate(wrongIssuer)
	require.Error(t, err)

	expired, err := IssueToken([]byte(testSecret), "rfqd-test", "", bech32(alice), time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, err = auth.Authenticate(expired)
	require.Error(t, err)

	badSubject, err := IssueToken([]byte(testSecret), "rfqd-test", "", "alice", time.Hour, time.Now())
	require.NoError(t, err)
	_, err = auth.Authenticate(badSubject)
	require.Error(t, err)

	good, err := IssueToken([]byte(testSecret), "rfqd-test", "", bech32(alice), time.Hour, time.Now())
	require.NoError(t, err)
	caller, err := auth.Authenticate(good)
	require.NoError(t, err)
	require.Equal(t, alice, caller)
}
