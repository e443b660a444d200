// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package civic fetches the officials for an address from the civic-data
// API and decodes the loosely structured response into models.Official.
package civic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"github.com/civicpulse/pipeline/internal/models"
)

const (
	// DefaultBaseURL is the root of the civic information API.
	DefaultBaseURL = "https://www.googleapis.com/civicinfo/v2"

	// DefaultTimeout bounds a single representatives request.
	DefaultTimeout = 15 * time.Second

	// maxErrorBody caps how much of a failed response is read for diagnostics.
	maxErrorBody = 64 << 10
)

// Client retrieves officials from the civic-data API. It holds no per-call
// state and is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	timeout    time.Duration

	inflight singleflight.Group
}

// ClientConfig holds the configuration for the directory client.
type ClientConfig struct {
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
}

// NewClient creates a civic directory client.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		httpClient: cfg.HTTPClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		timeout:    cfg.Timeout,
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	return c
}

// Fetch returns the officials for addr using the configured API key.
func (c *Client) Fetch(ctx context.Context, addr models.Address) ([]models.Official, error) {
	return c.FetchWithKey(ctx, addr, c.apiKey)
}

// FetchWithKey returns the officials for addr, sorted by RankIndex. Every
// failure is a *Error. Identical concurrent calls share one request.
func (c *Client) FetchWithKey(ctx context.Context, addr models.Address, apiKey string) ([]models.Official, error) {
	reqURL, err := c.representativesURL(addr, apiKey)
	if err != nil {
		return nil, err
	}

	v, err, shared := c.inflight.Do(reqURL, func() (interface{}, error) {
		return c.fetch(ctx, reqURL)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.Debug("joined in-flight representatives request", "address", addr.SingleLine())
	}

	return models.CloneOfficials(v.([]models.Official)), nil
}

// representativesURL builds GET {base}/representatives?address=...&key=...
func (c *Client) representativesURL(addr models.Address, apiKey string) (string, error) {
	line := addr.SingleLine()
	if line == "" {
		return "", invalidArgument("address is empty")
	}
	if !utf8.ValidString(line) {
		return "", invalidArgument("address is not valid UTF-8")
	}

	params := url.Values{}
	params.Set("address", line)
	if apiKey != "" {
		params.Set("key", apiKey)
	}

	return fmt.Sprintf("%s/representatives?%s", c.baseURL, params.Encode()), nil
}

func (c *Client) fetch(ctx context.Context, reqURL string) ([]models.Official, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, invalidArgument(fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, requestFailed(fmt.Sprintf("timed out after %s", c.timeout), err)
		}
		return nil, requestFailed("fetch representatives", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, classifyStatus(resp.StatusCode, body)
	}

	// Read the whole body first so a timeout mid-body is a transport
	// failure rather than a decode failure.
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, requestFailed("read representatives response", err)
	}

	officials, err := DecodeOfficials(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	slog.Debug("representatives fetched", "officials", len(officials))
	return officials, nil
}

// apiErrorBody is the error envelope the API returns with non-2xx codes.
type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason  string `json:"reason"`
			Message string `json:"message"`
		} `json:"errors"`
		Details []struct {
			Reason string `json:"reason"`
		} `json:"details"`
	} `json:"error"`
}

// classifyStatus maps a non-200 response onto the error taxonomy.
func classifyStatus(status int, body []byte) error {
	var apiErr apiErrorBody
	_ = json.Unmarshal(body, &apiErr)

	message := apiErr.Error.Message
	if message == "" {
		message = http.StatusText(status)
	}
	detail := fmt.Sprintf("civic API returned HTTP %d: %s", status, message)

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return invalidAPIKey(detail)
	}
	if status == http.StatusBadRequest && isKeyRejection(apiErr) {
		return invalidAPIKey(detail)
	}

	slog.Warn("civic API error", "status", status, "message", message)
	return requestFailed(detail, nil)
}

func isKeyRejection(e apiErrorBody) bool {
	for _, r := range e.Error.Errors {
		if strings.EqualFold(r.Reason, "keyInvalid") {
			return true
		}
	}
	for _, d := range e.Error.Details {
		if strings.EqualFold(d.Reason, "API_KEY_INVALID") {
			return true
		}
	}
	return strings.Contains(strings.ToLower(e.Error.Message), "api key not valid")
}
