// Package node wires together the STF pipeline, the block builder, GRANDPA
// finality, and the RPC surface into a single running process, and manages
// their startup/shutdown lifecycle.
package node

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds all configuration for a node process.
type Config struct {
	// DataDir is the root directory for all persistent state: the
	// orchestrator's canonical-state document, the GRANDPA vote store, and
	// produced block files.
	DataDir string

	// Name is a human-readable node identifier (used in logs).
	Name string

	// ValidatorKeyPath points at the file holding this node's Ed25519 and
	// Bandersnatch validator key material. Empty means the node runs in
	// observer mode: it serves RPC but neither runs a GRANDPA service nor
	// builds blocks or submits tickets.
	ValidatorKeyPath string

	// NumCores is the number of execution cores the chain runs with.
	NumCores int

	// EpochLength is the number of slots per epoch.
	EpochLength uint64

	// ValidatorCount and GuarantorCount size the supermajority thresholds
	// the STF pipeline applies to disputes/guarantees. They describe the
	// validator set's cardinality, not the set itself -- the set itself
	// lives in the canonical state's kappa/lambda once genesis is seeded.
	ValidatorCount int
	GuarantorCount int

	// SelectorMode chooses how the block builder picks the leader for a
	// slot: "ticket" uses the sealing-key sequence from a completed ticket
	// contest (gamma_s), "fallback" uses the simple round-robin fallback
	// key sequence. See blockbuilder.SelectorMode.
	SelectorMode string

	// RPCPort is the HTTP port for the process-block/authorize/metrics
	// server.
	RPCPort int

	// P2PPort is the TCP port used for block and vote gossip.
	P2PPort int

	// MaxPeers is the maximum number of gossip peers.
	MaxPeers int

	// RingVRFAddr is the base URL of the external Bandersnatch ring-VRF
	// service (ring commitment, ticket verification, block sealing).
	RingVRFAddr string

	// SlotDuration is the wall-clock length of one slot, driving the
	// block builder's production loop.
	SlotDuration time.Duration

	// PrevoteTimeout and PrecommitTimeout bound how long a GRANDPA round
	// waits for 2/3 supermajority before moving on with whatever votes it
	// has seen. Zero makes each stage tally at once with the votes already
	// received (useful for deterministic tests).
	PrevoteTimeout   time.Duration
	PrecommitTimeout time.Duration

	// LogLevel controls log verbosity (debug, info, warn, error).
	LogLevel string

	// Verbosity controls numeric log level (0=silent, 1=error, 2=warn,
	// 3=info, 4=debug, 5=trace). When set, overrides LogLevel.
	Verbosity int

	// Metrics enables the periodic MetricsReporter, which logs the default
	// registry's snapshot. GET /metrics is served whether or not it is set.
	Metrics bool

	// MetricsAPIKey, if set, requires "Authorization: ApiKey <key>" on
	// GET /metrics. Empty leaves the endpoint open.
	MetricsAPIKey string
}

// defaultDataDir returns the platform-specific default data directory.
// Falls back to ".jam" in the current directory if the home directory
// cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".jam"
	}
	return filepath.Join(home, ".jam")
}

// DefaultConfig returns a Config with sensible defaults for a single-node
// development chain.
func DefaultConfig() Config {
	return Config{
		DataDir:          defaultDataDir(),
		Name:             "jamnode",
		NumCores:         2,
		EpochLength:      600,
		ValidatorCount:   6,
		GuarantorCount:   6,
		SelectorMode:     "ticket",
		RPCPort:          9090,
		P2PPort:          30333,
		MaxPeers:         50,
		RingVRFAddr:      "http://127.0.0.1:8090",
		SlotDuration:     6 * time.Second,
		PrevoteTimeout:   4 * time.Second,
		PrecommitTimeout: 4 * time.Second,
		LogLevel:         "info",
		Verbosity:        3,
		Metrics:          false,
	}
}

// Validate checks configuration values for correctness.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("config: datadir must not be empty")
	}
	if c.NumCores <= 0 {
		return fmt.Errorf("config: invalid num cores: %d", c.NumCores)
	}
	if c.EpochLength == 0 {
		return errors.New("config: epoch length must not be zero")
	}
	if c.RPCPort < 0 || c.RPCPort > 65535 {
		return fmt.Errorf("config: invalid rpc port: %d", c.RPCPort)
	}
	if c.P2PPort < 0 || c.P2PPort > 65535 {
		return fmt.Errorf("config: invalid p2p port: %d", c.P2PPort)
	}
	if c.MaxPeers < 0 {
		return fmt.Errorf("config: invalid max peers: %d", c.MaxPeers)
	}
	if c.SlotDuration <= 0 {
		return errors.New("config: slot duration must be positive")
	}
	if c.Verbosity < 0 || c.Verbosity > 5 {
		return fmt.Errorf("config: verbosity must be 0-5, got %d", c.Verbosity)
	}
	switch c.SelectorMode {
	case "ticket", "fallback":
	default:
		return fmt.Errorf("config: unknown selector mode %q", c.SelectorMode)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	return nil
}

// VerbosityToLogLevel converts a numeric verbosity level to a log level
// string, matching the --verbosity CLI flag to the LogLevel field.
func VerbosityToLogLevel(v int) string {
	switch {
	case v <= 0:
		return "error" // silent maps to error-only
	case v == 1:
		return "error"
	case v == 2:
		return "warn"
	case v == 3:
		return "info"
	default:
		return "debug" // 4 and 5 both map to debug
	}
}

// dataDirSubdirs lists subdirectories created inside the data directory.
var dataDirSubdirs = []string{
	"state",
	"blocks",
	"votes",
	"keystore",
}

// InitDataDir creates the data directory and its standard subdirectories
// if they do not already exist.
func (c *Config) InitDataDir() error {
	if c.DataDir == "" {
		return errors.New("config: datadir must not be empty")
	}

	if err := os.MkdirAll(c.DataDir, 0700); err != nil {
		return fmt.Errorf("config: create datadir: %w", err)
	}

	for _, sub := range dataDirSubdirs {
		dir := filepath.Join(c.DataDir, sub)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("config: create %s: %w", sub, err)
		}
	}
	return nil
}

// StateDir returns the directory holding the orchestrator's canonical-state
// document.
func (c *Config) StateDir() string { return filepath.Join(c.DataDir, "state") }

// BlocksDir returns the directory the block builder emits produced blocks
// into.
func (c *Config) BlocksDir() string { return filepath.Join(c.DataDir, "blocks") }

// VotesDir returns the directory backing the GRANDPA vote store.
func (c *Config) VotesDir() string { return filepath.Join(c.DataDir, "votes") }

// RPCAddr returns the listen address for the RPC server.
func (c *Config) RPCAddr() string { return fmt.Sprintf(":%d", c.RPCPort) }
