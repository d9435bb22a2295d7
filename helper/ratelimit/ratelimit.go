// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ratelimit

import (
	"fmt"
	"net/http"
	"time"

	"github.com/armon/go-metrics"
	"github.com/hashicorp/go-cleanhttp"
	"golang.org/x/time/rate"
)

// Unlimited disables rate limiting when passed as the rate.
const Unlimited = -1

// instrumentedRoundTripper wraps an http.RoundTripper to emit request metrics
// and, when configured, wait on a rate limiter before each request.
type instrumentedRoundTripper struct {
	limiter *rate.Limiter
	source  string
	rt      http.RoundTripper
}

func (irt *instrumentedRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if irt.limiter != nil {
		if err := irt.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("transport: unable to ratelimit: %w", err)
		}
	}

	labels := []metrics.Label{
		{Name: "method", Value: req.Method},
		{Name: "source", Value: irt.source},
	}

	defer metrics.MeasureSinceWithLabels([]string{"http", "dur"}, time.Now(), labels)

	resp, err := irt.rt.RoundTrip(req)
	if err != nil {
		metrics.IncrCounterWithLabels([]string{"http", "error"}, 1, labels)
		return resp, err
	}
	metrics.IncrCounterWithLabels([]string{"http", "req"}, 1, labels)

	return resp, nil
}

// NewInstrumentedClient returns the provided HTTP client with request
// metrics and a limit of ratePerSec requests per second. If no client is
// provided a pooled github.com/hashicorp/go-cleanhttp client is used. Pass
// Unlimited to disable rate limiting; zero rejects every request. The source
// is used as a metrics label.
func NewInstrumentedClient(source string, ratePerSec int, client *http.Client) *http.Client {
	httpClient := cleanhttp.DefaultPooledClient()
	if client != nil {
		httpClient = client
	}

	rt := httpClient.Transport
	if rt == nil {
		rt = cleanhttp.DefaultPooledTransport()
	}
	if t, ok := rt.(*http.Transport); ok {
		t.MaxConnsPerHost = 50
	}

	irt := &instrumentedRoundTripper{
		rt:     rt,
		source: source,
	}

	if ratePerSec != Unlimited {
		irt.limiter = rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)
	}

	httpClient.Transport = irt
	return httpClient
}
