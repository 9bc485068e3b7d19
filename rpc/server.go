// Package rpc exposes the node's external HTTP surface: block submission
// and service authorization. It composes the hand-rolled middleware chain
// and token-bucket rate limiter from middleware.go/rate_limiter.go around a
// small REST dispatcher, and serves metrics in Prometheus text format.
package rpc

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"sync"

	"github.com/jamnode/jam/crypto"
	"github.com/jamnode/jam/log"
	"github.com/jamnode/jam/metrics"
	"github.com/jamnode/jam/types"
)

var logger = log.Default().Module("rpc")

// Backend is the node-facing surface the RPC server drives.
type Backend interface {
	// ProcessBlock submits a raw {header, extrinsic} block document and
	// returns either the resulting post-state document or a
	// {post_state, flow} object, or an error carrying the first structured
	// STF error encountered. The server copies post_state and flow of the
	// second form into the matching response fields.
	ProcessBlock(block json.RawMessage) (postState json.RawMessage, err error)

	// Authorize validates an authorization request against the current
	// service/authorizer state and returns an opaque auth_output.
	Authorize(pub types.Ed25519Pub, payload json.RawMessage) (authOutput json.RawMessage, err error)
}

// AuthRequest is the POST /authorize request body.
type AuthRequest struct {
	PublicKey types.Ed25519Pub `json:"public_key"`
	Signature types.Ed25519Sig `json:"signature"`
	Payload   json.RawMessage  `json:"payload"`
}

// AuthResponse is the POST /authorize response body.
type AuthResponse struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message,omitempty"`
	AuthOutput json.RawMessage `json:"auth_output,omitempty"`
}

// ProcessBlockRequest is the POST /process-block request body.
type ProcessBlockRequest struct {
	Block json.RawMessage `json:"block"`
}

// ProcessBlockResponse is the POST /process-block response body.
type ProcessBlockResponse struct {
	OK        bool            `json:"ok"`
	Err       string          `json:"err,omitempty"`
	PostState json.RawMessage `json:"post_state,omitempty"`
	Flow      json.RawMessage `json:"flow,omitempty"`
}

// noncePayload is the subset of an authorize payload the server inspects
// for replay protection; the remainder is opaque to the server and passed
// through to the Backend untouched.
type noncePayload struct {
	Nonce uint64 `json:"nonce"`
}

// NonceStore enforces strictly-increasing per-key nonces on the authorize
// endpoint.
type NonceStore struct {
	mu   sync.Mutex
	last map[types.Ed25519Pub]uint64
	seen map[types.Ed25519Pub]bool
}

// NewNonceStore returns an empty NonceStore.
func NewNonceStore() *NonceStore {
	return &NonceStore{
		last: make(map[types.Ed25519Pub]uint64),
		seen: make(map[types.Ed25519Pub]bool),
	}
}

// Advance reports whether nonce is acceptable (strictly greater than the
// last nonce seen for pub, or the first nonce seen for pub) and, if so,
// records it.
func (n *NonceStore) Advance(pub types.Ed25519Pub, nonce uint64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.seen[pub] && nonce <= n.last[pub] {
		return false
	}
	n.last[pub] = nonce
	n.seen[pub] = true
	return true
}

// Server serves the node's process-block and authorize endpoints.
type Server struct {
	backend     Backend
	nonces      *NonceStore
	rateLimiter *RPCRateLimiter
	exporter    *metrics.PrometheusExporter
	mux         *http.ServeMux
	logs        *LogStore
	metricsAuth AuthConfig
}

// NewServer builds a Server wired to backend, with default rate limiting
// and a Prometheus exporter over the default metrics registry. Requests
// are logged to an in-memory LogStore retrievable via RequestLog.
func NewServer(backend Backend) *Server {
	s := &Server{
		backend:     backend,
		nonces:      NewNonceStore(),
		rateLimiter: NewRPCRateLimiter(DefaultRPCRateLimitConfig()),
		exporter:    metrics.NewPrometheusExporter(metrics.DefaultRegistry, metrics.PrometheusConfig{}),
		mux:         http.NewServeMux(),
		logs:        NewLogStore(),
		metricsAuth: AuthConfig{AllowUnauthenticated: true},
	}
	s.mux.HandleFunc("/process-block", s.handleProcessBlock)
	s.mux.HandleFunc("/authorize", s.handleAuthorize)
	s.mux.Handle("/metrics", MiddlewareChain(s.exporter.Handler(), AuthMiddleware(s.metricsAuth)))
	return s
}

// RequireMetricsAPIKey restricts /metrics to requests carrying
// "Authorization: ApiKey <key>" matching one of keys. Call before Handler
// is first served; unset (the default) leaves /metrics open, matching a
// node run without --metrics.apikey.
func (s *Server) RequireMetricsAPIKey(keys ...string) {
	apiKeys := make(map[string]bool, len(keys))
	for _, k := range keys {
		apiKeys[k] = true
	}
	s.metricsAuth = AuthConfig{APIKeys: apiKeys}
	s.mux.Handle("/metrics", MiddlewareChain(s.exporter.Handler(), AuthMiddleware(s.metricsAuth)))
}

// RequestLog returns the logged request/response metadata recorded by
// LoggingMiddleware, most useful for tests and operator debugging.
func (s *Server) RequestLog() []LogEntry { return s.logs.Entries() }

// Handler returns the fully composed HTTP handler: CORS, rate limiting,
// compression, request logging, then the dispatcher above.
func (s *Server) Handler() http.Handler {
	return MiddlewareChain(s.mux,
		CORSMiddleware(DefaultCORSConfig()),
		s.rateLimitMiddleware(),
		CompressionMiddleware(),
		LoggingMiddleware(s.logs),
	)
}

func (s *Server) rateLimitMiddleware() HTTPMiddleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := extractClientIP(r)
			if !s.rateLimiter.Allow(ip, r.URL.Path) {
				metrics.RPCErrors.Inc()
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) handleProcessBlock(w http.ResponseWriter, r *http.Request) {
	metrics.RPCRequests.Inc()
	defer metrics.NewTimer(metrics.RPCLatency).Stop()
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeProcessBlockError(w, "malformed request body")
		return
	}

	var req ProcessBlockRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeProcessBlockError(w, "invalid JSON")
		return
	}

	postState, err := s.backend.ProcessBlock(req.Block)
	if err != nil {
		logger.Warn("process-block rejected", "err", err)
		s.writeProcessBlockError(w, err.Error())
		return
	}

	resp := ProcessBlockResponse{OK: true, PostState: postState}
	var split struct {
		PostState json.RawMessage `json:"post_state"`
		Flow      json.RawMessage `json:"flow"`
	}
	if json.Unmarshal(postState, &split) == nil && len(split.PostState) > 0 {
		resp.PostState, resp.Flow = split.PostState, split.Flow
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeProcessBlockError(w http.ResponseWriter, msg string) {
	metrics.RPCErrors.Inc()
	writeJSON(w, http.StatusInternalServerError, ProcessBlockResponse{OK: false, Err: msg})
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	metrics.RPCRequests.Inc()
	defer metrics.NewTimer(metrics.RPCLatency).Stop()
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeAuthError(w, "malformed request body")
		return
	}

	var req AuthRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeAuthError(w, "invalid JSON")
		return
	}

	canon, err := canonicalJSON(req.Payload)
	if err != nil {
		s.writeAuthError(w, "payload is not valid JSON")
		return
	}
	if !crypto.Ed25519Verify(req.PublicKey, canon, req.Signature) {
		s.writeAuthError(w, "bad_signature")
		return
	}

	var np noncePayload
	if err := json.Unmarshal(req.Payload, &np); err != nil {
		s.writeAuthError(w, "payload missing nonce")
		return
	}
	if !s.nonces.Advance(req.PublicKey, np.Nonce) {
		s.writeAuthError(w, "nonce must be strictly increasing")
		return
	}

	authOutput, err := s.backend.Authorize(req.PublicKey, req.Payload)
	if err != nil {
		s.writeAuthError(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Success: true, AuthOutput: authOutput})
}

func (s *Server) writeAuthError(w http.ResponseWriter, msg string) {
	metrics.RPCErrors.Inc()
	writeJSON(w, http.StatusOK, AuthResponse{Success: false, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// canonicalJSON re-serializes an arbitrary JSON document with object keys
// sorted at every level, giving the authorize endpoint's signed payload a
// single unambiguous byte representation independent of field order.
func canonicalJSON(raw json.RawMessage) ([]byte, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encodeCanonicalValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeCanonicalValue(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encodeCanonicalValue(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []interface{}:
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonicalValue(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}
