// Package bandersnatch is an HTTP client for the external Bandersnatch
// ring-VRF service: ring commitment, IETF-VRF block seals, and batched
// ring-VRF ticket verification.
package bandersnatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jamnode/jam/state"
	"github.com/jamnode/jam/staterr"
	"github.com/jamnode/jam/types"
)

// DefaultTimeout bounds every call made by Client.
const DefaultTimeout = 10 * time.Second

// Client talks to the Bandersnatch prover/verifier service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client

	// handles is a map for prover handles keyed by (ring size, validator
	// index, hash of the ring's keys). No method of Client reads or fills
	// it, and Client makes no /prover/create call: Sign takes the prover
	// handle from its caller.
	handles map[handleKey]string
}

type handleKey struct {
	ringSize int
	index    int
	ringHash types.Hash
}

// New returns a client pointed at baseURL (e.g. "http://127.0.0.1:8090").
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: DefaultTimeout},
		handles: make(map[handleKey]string),
	}
}

// Commit requests a ring commitment over the given validator set's
// Bandersnatch keys via POST /compose_gamma_z.
func (c *Client) Commit(ring []state.ValidatorRecord) (types.Hash, error) {
	keys := make([]string, len(ring))
	for i, r := range ring {
		keys[i] = r.Bandersnatch.Hex()
	}

	var resp struct {
		Commitment string `json:"commitment"`
	}
	if err := c.post("/compose_gamma_z", map[string]any{"keys": keys}, &resp); err != nil {
		return types.Hash{}, err
	}
	return types.HexToHash(resp.Commitment), nil
}

// BatchVerify verifies all tickets against a ring commitment via
// POST /verifier/ring_vrf_verify_payload, returning each ticket's VRF
// output in input order.
func (c *Client) BatchVerify(commitment types.Hash, ring []state.ValidatorRecord, entropy types.Hash, tickets []state.Ticket) ([]types.Hash, error) {
	keys := make([]string, len(ring))
	for i, r := range ring {
		keys[i] = r.Bandersnatch.Hex()
	}

	type ticketReq struct {
		Attempt uint8  `json:"attempt"`
		Proof   string `json:"proof"`
	}
	req := make([]ticketReq, len(tickets))
	for i, t := range tickets {
		req[i] = ticketReq{Attempt: t.Index, Proof: fmt.Sprintf("%x", t.Proof)}
	}

	var resp struct {
		Outputs []string `json:"outputs"`
	}
	body := map[string]any{
		"commitment": commitment.Hex(),
		"keys":       keys,
		"entropy":    entropy.Hex(),
		"tickets":    req,
	}
	if err := c.post("/verifier/ring_vrf_verify_payload", body, &resp); err != nil {
		return nil, err
	}

	outputs := make([]types.Hash, len(resp.Outputs))
	for i, o := range resp.Outputs {
		outputs[i] = types.HexToHash(o)
	}
	return outputs, nil
}

// Sign requests an IETF-VRF block seal signature via
// POST /prover/ietf_vrf_sign.
func (c *Client) Sign(handle string, message []byte) (signature []byte, vrfOutput types.Hash, err error) {
	var resp struct {
		Signature string `json:"signature"`
		Output    string `json:"output"`
	}
	body := map[string]any{"handle": handle, "message": fmt.Sprintf("%x", message)}
	if err := c.post("/prover/ietf_vrf_sign", body, &resp); err != nil {
		return nil, types.Hash{}, err
	}
	return []byte(resp.Signature), types.HexToHash(resp.Output), nil
}

func (c *Client) post(path string, body any, out any) error {
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
		return staterr.ErrRustServerBatchVerifyFail
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return staterr.ErrRustServerBatchVerifyFail
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
