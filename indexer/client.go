// Copyright 2026 The walletcore Authors
// This file is part of the walletcore library.
//
// The walletcore library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The walletcore library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the walletcore library. If not, see <http://www.gnu.org/licenses/>.

// Package indexer is the HTTPS client for the external portfolio and
// transaction provider. Server failures are retried with exponential
// backoff; client errors surface directly.
package indexer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/log"

	"github.com/clearmesh/walletcore/walleterr"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultMaxAttempts = 3
)

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string

	// Timeout bounds each individual HTTP request. Defaults to 10s.
	Timeout time.Duration
	// MaxAttempts is the total number of tries for retriable failures.
	// Defaults to 3.
	MaxAttempts int

	HTTPClient *http.Client
	Logger     log.Logger
}

// Client talks to the indexer.
type Client struct {
	cfg    Config
	http   *http.Client
	auth   string
	log    log.Logger
}

// NewClient creates an indexer client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New("pkg", "indexer")
	}
	return &Client{
		cfg:  cfg,
		http: httpClient,
		auth: "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.APIKey+":")),
		log:  logger,
	}
}

// Portfolio returns the fungible positions of address. An empty chainID
// requests positions across all chains.
func (c *Client) Portfolio(ctx context.Context, address, chainID string) ([]Position, error) {
	q := url.Values{}
	if chainID != "" {
		q.Set("chain_ids", chainID)
	}
	var doc document[Position]
	path := fmt.Sprintf("/v1/wallets/%s/portfolio", url.PathEscape(address))
	if err := c.get(ctx, path, q, &doc); err != nil {
		return nil, err
	}
	return doc.Data, nil
}

// Transactions returns up to pageSize recent transactions of address. An
// empty chainID requests transactions across all chains.
func (c *Client) Transactions(ctx context.Context, address, chainID string, pageSize int) ([]Transaction, error) {
	q := url.Values{}
	if chainID != "" {
		q.Set("chain_ids", chainID)
	}
	if pageSize > 0 {
		q.Set("page[size]", strconv.Itoa(pageSize))
	}
	var doc document[Transaction]
	path := fmt.Sprintf("/v1/wallets/%s/transactions/", url.PathEscape(address))
	if err := c.get(ctx, path, q, &doc); err != nil {
		return nil, err
	}
	return doc.Data, nil
}

// get performs one GET with retries on 5xx and transport errors.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.cfg.BaseURL + path
	if enc := query.Encode(); enc != "" {
		u += "?" + enc
	}

	op := func() error {
		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(walleterr.Wrap(walleterr.ErrInternal, "build request: %v", err))
		}
		req.Header.Set("Authorization", c.auth)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(walleterr.Wrap(walleterr.ErrTimeout, "indexer request: %v", err))
			}
			return walleterr.Wrap(walleterr.ErrUnavailable, "indexer request: %v", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			return walleterr.Wrap(walleterr.ErrUnavailable, "read indexer response: %v", err)
		}
		switch {
		case resp.StatusCode >= 500:
			return walleterr.Wrap(walleterr.ErrUnavailable, "indexer returned %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			return backoff.Permanent(walleterr.Wrap(walleterr.ErrInvalidArgument, "indexer rejected request: %d %s", resp.StatusCode, truncate(body, 200)))
		}
		if err := json.Unmarshal(body, out); err != nil {
			return backoff.Permanent(walleterr.Wrap(walleterr.ErrInternal, "decode indexer response: %v", err))
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(newBackOff(), uint64(c.cfg.MaxAttempts-1)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		c.log.Warn("Indexer request failed", "url", u, "err", err)
		return err
	}
	return nil
}

func newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0
	return b
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
