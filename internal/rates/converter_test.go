package rates

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Moxx-Company/Nomadly2-sub000/internal/entities"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestToUSDLiveRate(t *testing.T) {
	var requests atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		require.Equal(t, "/crypto/fetch-prices", r.URL.Path)
		require.Equal(t, "LTC/USD", r.URL.Query().Get("pair"))
		fmt.Fprint(w, `{"price": 85.50}`)
	}))
	defer server.Close()

	converter := NewConverter(testLogger(), "test-key", server.URL, time.Second, time.Minute)

	usd, source := converter.ToUSD(context.Background(), "ltc", 2.0)
	require.Equal(t, entities.Cents(17100), usd)
	require.Equal(t, entities.RateSourceLive, source)

	// Second conversion within the TTL hits the cache.
	usd, source = converter.ToUSD(context.Background(), "ltc", 1.0)
	require.Equal(t, entities.Cents(8550), usd)
	require.Equal(t, entities.RateSourceLive, source)
	require.Equal(t, int64(1), requests.Load())
}

func TestToUSDNetworkSuffixStripped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "USDT/USD", r.URL.Query().Get("pair"))
		fmt.Fprint(w, `{"price": 1.0}`)
	}))
	defer server.Close()

	converter := NewConverter(testLogger(), "test-key", server.URL, time.Second, time.Minute)

	usd, source := converter.ToUSD(context.Background(), "usdt_trc20", 12.34)
	require.Equal(t, entities.Cents(1234), usd)
	require.Equal(t, entities.RateSourceLive, source)
}

func TestToUSDFallsBackOnServiceFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	converter := NewConverter(testLogger(), "test-key", server.URL, time.Second, time.Minute)

	usd, source := converter.ToUSD(context.Background(), "usdt_trc20", 12.00)
	require.Equal(t, entities.Cents(1200), usd, "fallback table prices usdt at parity")
	require.Equal(t, entities.RateSourceFallback, source)
}

func TestToUSDFallsBackWithoutAPIKey(t *testing.T) {
	converter := NewConverter(testLogger(), "", "", time.Second, time.Minute)

	usd, source := converter.ToUSD(context.Background(), "btc", 0.5)
	require.Equal(t, entities.Cents(3350000), usd)
	require.Equal(t, entities.RateSourceFallback, source)
}

func TestToUSDUnknownCurrencyDegradesToZero(t *testing.T) {
	converter := NewConverter(testLogger(), "", "", time.Second, time.Minute)

	usd, source := converter.ToUSD(context.Background(), "shibacoin", 1000)
	require.Equal(t, entities.Cents(0), usd)
	require.Equal(t, entities.RateSourceFallback, source)
}

func TestToUSDRejectsNonPositivePrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"price": 0}`)
	}))
	defer server.Close()

	converter := NewConverter(testLogger(), "test-key", server.URL, time.Second, time.Minute)

	usd, source := converter.ToUSD(context.Background(), "doge", 100)
	require.Equal(t, entities.RateSourceFallback, source)
	require.Equal(t, entities.Cents(32), usd)
}
