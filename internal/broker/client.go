package broker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// ClientConfig carries everything the API client needs.
type ClientConfig struct {
	BaseURL          string
	APIKey           string
	APISecret        string
	PositionsTimeout time.Duration
	CashTimeout      time.Duration
}

// Client talks to the broker's public equity API.
type Client struct {
	cfg        ClientConfig
	authHeader string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates an API client. A missing credential pair is allowed here;
// every request will then return ErrNoCredentials.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	var auth string
	if cfg.APIKey != "" && cfg.APISecret != "" {
		token := base64.StdEncoding.EncodeToString([]byte(cfg.APIKey + ":" + cfg.APISecret))
		auth = "Basic " + token
	}
	return &Client{
		cfg:        cfg,
		authHeader: auth,
		httpClient: &http.Client{},
		logger:     logger.Named("broker"),
	}
}

// GetPositions fetches the raw position items. Items are returned undecoded
// so that a malformed item can be skipped without failing the batch.
func (c *Client) GetPositions(ctx context.Context) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := c.getJSON(ctx, "/equity/positions", c.cfg.PositionsTimeout, &items); err != nil {
		return nil, err
	}
	c.logger.Debug("Fetched positions", zap.Int("count", len(items)))
	return items, nil
}

// GetCash fetches the free cash balance.
func (c *Client) GetCash(ctx context.Context) (float64, error) {
	var resp cashResponse
	if err := c.getJSON(ctx, "/equity/account/cash", c.cfg.CashTimeout, &resp); err != nil {
		return 0, err
	}
	cash := resp.balance()
	c.logger.Debug("Fetched cash balance", zap.Float64("cash", cash))
	return cash, nil
}

// getJSON performs one authenticated GET with a per-endpoint timeout.
// Transient failures (network errors, 5xx) are retried with exponential
// backoff inside the call; 4xx responses are permanent.
func (c *Client) getJSON(ctx context.Context, path string, timeout time.Duration, out interface{}) error {
	if c.authHeader == "" {
		return ErrNoCredentials
	}

	url := c.cfg.BaseURL + path
	body, err := backoff.Retry(ctx,
		func() ([]byte, error) {
			reqCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
			if err != nil {
				return nil, backoff.Permanent(&TransportError{Op: path, Err: err})
			}
			req.Header.Set("Authorization", c.authHeader)

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return nil, &TransportError{Op: path, Err: err}
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 500 {
				return nil, &TransportError{Op: path, StatusCode: resp.StatusCode}
			}
			if resp.StatusCode != http.StatusOK {
				return nil, backoff.Permanent(&TransportError{Op: path, StatusCode: resp.StatusCode})
			}

			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, &TransportError{Op: path, Err: err}
			}
			return data, nil
		},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3),
	)
	if err != nil {
		c.logger.Warn("Request failed", zap.String("path", path), zap.Error(err))
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("broker: decode %s response: %w", path, err)
	}
	return nil
}
