package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Moxx-Company/Nomadly2-sub000/internal/entities"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIssueAddress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ltc/create/", r.URL.Path)
		require.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		require.Equal(t, "ref-123", r.URL.Query().Get("ref"))
		require.Equal(t, "https://shop.example/callback", r.URL.Query().Get("callback"))
		fmt.Fprint(w, `{"status":"success","address_in":"LTC1qabc"}`)
	}))
	defer server.Close()

	client := NewClient(testLogger(), "test-key", server.URL, "https://shop.example/callback", time.Second)

	address, err := client.IssueAddress(context.Background(), "LTC", "ref-123")
	require.NoError(t, err)
	require.Equal(t, "LTC1qabc", address)
}

func TestIssueAddressGatewayRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status":"error","error":"invalid api key"}`)
	}))
	defer server.Close()

	client := NewClient(testLogger(), "bad-key", server.URL, "", time.Second)

	_, err := client.IssueAddress(context.Background(), "ltc", "ref-123")
	require.ErrorIs(t, err, entities.ErrGatewayUnavailable)
	require.Contains(t, err.Error(), "invalid api key")
}

func TestIssueAddressServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(testLogger(), "test-key", server.URL, "", time.Second)

	_, err := client.IssueAddress(context.Background(), "ltc", "ref-123")
	require.ErrorIs(t, err, entities.ErrGatewayUnavailable)
}

func TestGetObservations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/btc/logs/", r.URL.Path)
		require.Equal(t, "bc1qdef", r.URL.Query().Get("address"))
		fmt.Fprint(w, `{
			"status": "success",
			"callbacks": [
				{"txid": "tx-1", "value_coin": 0.0001792, "confirmations": 1, "timestamp": 1756100000},
				{"txid": "tx-2", "value_coin": 0.0000500, "confirmations": 0, "timestamp": 1756100100}
			]
		}`)
	}))
	defer server.Close()

	client := NewClient(testLogger(), "test-key", server.URL, "", time.Second)

	observations, err := client.GetObservations(context.Background(), "btc", "bc1qdef")
	require.NoError(t, err)
	require.Len(t, observations, 2)

	require.Equal(t, "tx-1", observations[0].GatewayReference)
	require.Equal(t, "bc1qdef", observations[0].Address)
	require.Equal(t, "btc", observations[0].Currency)
	require.InDelta(t, 0.0001792, observations[0].AmountCrypto, 1e-12)
	require.Equal(t, int64(1), observations[0].Confirmations)
	require.Equal(t, time.Unix(1756100000, 0).UTC(), observations[0].ObservedAt)

	require.Equal(t, int64(0), observations[1].Confirmations, "unconfirmed payments are reported too")
}

func TestGetObservationsUnavailable(t *testing.T) {
	client := NewClient(testLogger(), "test-key", "http://127.0.0.1:1", "", 100*time.Millisecond)

	_, err := client.GetObservations(context.Background(), "btc", "bc1qdef")
	require.ErrorIs(t, err, entities.ErrGatewayUnavailable)
}
