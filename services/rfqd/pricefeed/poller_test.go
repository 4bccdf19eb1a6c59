package pricefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTickCachesReading(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if code := int(status.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"price":"100000000","decimals":8,"updated_at":1700000000}`))
	}))
	defer srv.Close()

	p, err := New(srv.URL, time.Second, time.Second)
	require.NoError(t, err)

	_, err = p.LatestPrice()
	require.Error(t, err)

	require.NoError(t, p.Tick(context.Background()))
	reading, err := p.LatestPrice()
	require.NoError(t, err)
	require.Equal(t, int64(100_000000), reading.Price.Int64())
	require.Equal(t, uint8(8), reading.Decimals)
	require.Equal(t, int64(1_700_000_000), reading.UpdatedAt.Unix())

	status.Store(http.StatusBadGateway)
	require.Error(t, p.Tick(context.Background()))
	kept, err := p.LatestPrice()
	require.NoError(t, err)
	require.Equal(t, reading.UpdatedAt, kept.UpdatedAt)
}

func TestTickDefaultsTimestamp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"price":"42","decimals":0}`))
	}))
	defer srv.Close()
	fixed := time.Unix(1_800_000_000, 0)
	p, err := New(srv.URL, time.Second, time.Second, WithNowFunc(func() time.Time { return fixed }))
	require.NoError(t, err)
	require.NoError(t, p.Tick(context.Background()))
	reading, err := p.LatestPrice()
	require.NoError(t, err)
	require.Equal(t, fixed.Unix(), reading.UpdatedAt.Unix())
}

func TestTickRejectsInvalidPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"price":"-5"}`))
	}))
	defer srv.Close()
	p, err := New(srv.URL, time.Second, time.Second)
	require.NoError(t, err)
	require.ErrorContains(t, p.Tick(context.Background()), "invalid price")
	_, err = p.LatestPrice()
	require.ErrorContains(t, err, "invalid price")
}

func TestNewValidates(t *testing.T) {
	_, err := New(" ", time.Second, 0)
	require.Error(t, err)
	_, err = New("http://x", 0, 0)
	require.Error(t, err)
}
