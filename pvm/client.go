// Package pvm is an HTTP oracle client invoking the external PVM service's
// accumulate entry point for a single work-report's service items. When no
// service URL is configured it degrades to a local no-op transition,
// leaving state untouched — callers that need real accumulation semantics
// must configure a live PVM endpoint.
package pvm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jamnode/jam/state"
)

// DefaultTimeout bounds every call made by Client.
const DefaultTimeout = 10 * time.Second

// Client invokes /service/accumulate_json on a PVM service instance.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client pointed at baseURL. An empty baseURL yields a
// client whose Accumulate calls are always a no-op success.
func New(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: DefaultTimeout}}
}

type accumulateRequest struct {
	ServiceID uint32 `json:"service_id"`
	Payload   string `json:"payload_hash"`
	Gas       uint64 `json:"gas"`
}

type accumulateResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Accumulate invokes the PVM oracle once per work-item in report and
// returns the first item-level failure, if any.
func (c *Client) Accumulate(s *state.State, report state.WorkReport) error {
	if c.baseURL == "" {
		return nil
	}

	for _, item := range report.Results {
		req := accumulateRequest{
			ServiceID: item.ServiceID,
			Payload:   fmt.Sprintf("%x", item.PayloadHash[:]),
			Gas:       item.AccumulateGas,
		}
		var resp accumulateResponse
		if err := c.post("/service/accumulate_json", req, &resp); err != nil {
			return err
		}
		if !resp.OK {
			return fmt.Errorf("pvm: accumulate failed for service %d: %s", item.ServiceID, resp.Error)
		}
	}
	return nil
}

func (c *Client) post(path string, body, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()

	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("pvm: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pvm: unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
