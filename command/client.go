// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-msgpack/codec"
)

const (
	// EnvAddress overrides the default agent address used by the API
	// commands.
	EnvAddress = "TRANSCODE_AUTOSCALER_ADDR"

	defaultAddress = "http://127.0.0.1:8080"

	// clientTimeout bounds a single API call.
	clientTimeout = 30 * time.Second
)

// apiClient is a minimal client of the agent HTTP API.
type apiClient struct {
	address string
	http    *http.Client
}

func newAPIClient(address string) *apiClient {
	if address == "" {
		address = os.Getenv(EnvAddress)
	}
	if address == "" {
		address = defaultAddress
	}

	c := cleanhttp.DefaultClient()
	c.Timeout = clientTimeout

	return &apiClient{
		address: strings.TrimRight(address, "/"),
		http:    c,
	}
}

// do performs the request and decodes a successful JSON response into out.
// Error responses carry a plain text message which is returned as the error.
func (c *apiClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := codec.NewEncoder(&buf, &codec.JsonHandle{}).Encode(in); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.address+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to query agent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected response code %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := codec.NewDecoder(resp.Body, &codec.JsonHandle{}).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
