package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Moxx-Company/Nomadly2-sub000/internal/entities"
)

// Client talks to the BlockBee-style payment gateway: it issues fresh
// receive-addresses and reports payments observed on them. The gateway is the
// only source of blockchain data in the system.
type Client struct {
	logger      *slog.Logger
	apiKey      string
	apiURL      string
	callbackURL string
	client      *http.Client
}

func NewClient(logger *slog.Logger, apiKey, apiURL, callbackURL string, timeout time.Duration) *Client {
	if apiURL == "" {
		apiURL = "https://api.blockbee.io"
	}

	if apiKey == "" {
		logger.Warn("Payment gateway API key is empty, address issuance will fail")
	} else {
		logger.Info("Payment gateway client initialized", "api_url", apiURL)
	}

	return &Client{
		logger:      logger,
		apiKey:      apiKey,
		apiURL:      strings.TrimRight(apiURL, "/"),
		callbackURL: callbackURL,
		client:      &http.Client{Timeout: timeout},
	}
}

type issueAddressResponse struct {
	Status    string `json:"status"`
	AddressIn string `json:"address_in"`
	Error     string `json:"error"`
}

// IssueAddress requests a fresh receive-address for the currency. The
// callbackRef is echoed back by the gateway in payment reports so receipts
// can be matched to the order that minted the address.
func (c *Client) IssueAddress(ctx context.Context, currency, callbackRef string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/create/", c.apiURL, strings.ToLower(currency))

	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("callback", c.callbackURL)
	params.Set("ref", callbackRef)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create issue-address request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: issue address: %v", entities.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: issue address returned status %d", entities.ErrGatewayUnavailable, resp.StatusCode)
	}

	var result issueAddressResponse
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: failed to decode issue-address response: %v", entities.ErrGatewayUnavailable, err)
	}

	if result.Status != "success" || result.AddressIn == "" {
		return "", fmt.Errorf("%w: gateway rejected address issuance: %s", entities.ErrGatewayUnavailable, result.Error)
	}

	c.logger.InfoContext(ctx, "Issued receive address",
		"currency", currency, "address", result.AddressIn, "ref", callbackRef)

	return result.AddressIn, nil
}

type observationLog struct {
	TxID          string  `json:"txid"`
	ValueCoin     float64 `json:"value_coin"`
	Confirmations int64   `json:"confirmations"`
	Timestamp     int64   `json:"timestamp"`
}

type observationsResponse struct {
	Status    string           `json:"status"`
	Callbacks []observationLog `json:"callbacks"`
	Error     string           `json:"error"`
}

// GetObservations returns every payment the gateway has seen on the address,
// including ones below the confirmation threshold.
func (c *Client) GetObservations(ctx context.Context, currency, address string) ([]entities.PaymentObservation, error) {
	endpoint := fmt.Sprintf("%s/%s/logs/", c.apiURL, strings.ToLower(currency))

	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("address", address)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create observations request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: get observations: %v", entities.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: observations returned status %d", entities.ErrGatewayUnavailable, resp.StatusCode)
	}

	var result observationsResponse
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: failed to decode observations response: %v", entities.ErrGatewayUnavailable, err)
	}

	if result.Status != "success" {
		return nil, fmt.Errorf("%w: gateway observations error: %s", entities.ErrGatewayUnavailable, result.Error)
	}

	observations := make([]entities.PaymentObservation, 0, len(result.Callbacks))
	for _, cb := range result.Callbacks {
		observations = append(observations, entities.PaymentObservation{
			GatewayReference: cb.TxID,
			Address:          address,
			Currency:         currency,
			AmountCrypto:     cb.ValueCoin,
			Confirmations:    cb.Confirmations,
			ObservedAt:       time.Unix(cb.Timestamp, 0).UTC(),
		})
	}

	return observations, nil
}
