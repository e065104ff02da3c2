// Package external talks to the item registry and the token ledger over
// their JSON HTTP gateways.
package external

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hive-staking/internal/pkg/jsonx"
)

// StatusError is returned when a gateway answers with a non-2xx status.
type StatusError struct {
	Method string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Method, e.Status, e.Body)
}

// client posts JSON method calls to one gateway.
type client struct {
	url string
	// caller is sent as X-Caller-Id so the gateway can attribute the call.
	caller string
	c      *http.Client
}

func newClient(url, caller string, timeout time.Duration) *client {
	return &client{
		url:    strings.TrimRight(url, "/"),
		caller: caller,
		c:      &http.Client{Timeout: timeout},
	}
}

// call invokes method with args and decodes the response into out, if out is
// not nil. A JSON null response leaves out untouched and reports found=false.
func (c *client) call(ctx context.Context, method string, args, out interface{}) (found bool, err error) {
	data, err := jsonx.Marshal(args)
	if err != nil {
		return false, fmt.Errorf("%s: unable to marshal args - %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/"+method, bytes.NewReader(data))
	if err != nil {
		return false, fmt.Errorf("%s: unable to build request - %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.caller != "" {
		req.Header.Set("X-Caller-Id", c.caller)
	}

	resp, err := c.c.Do(req)
	if err != nil {
		return false, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, fmt.Errorf("%s: unable to read response - %w", method, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, &StatusError{Method: method, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return false, nil
	}
	if out != nil {
		if err := jsonx.Unmarshal(trimmed, out); err != nil {
			return false, fmt.Errorf("%s: unable to unmarshal response - %w", method, err)
		}
	}
	return true, nil
}
