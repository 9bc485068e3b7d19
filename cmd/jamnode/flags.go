package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jamnode/jam/node"
)

// parseFlags parses CLI arguments into a Config. Returns the config, whether
// the caller should exit immediately, and the exit code.
func parseFlags(args []string) (node.Config, bool, int) {
	cfg := node.DefaultConfig()
	fs := newFlagSet(&cfg)

	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return cfg, true, 2
	}

	if *showVersion {
		fmt.Printf("jamnode %s (commit %s)\n", version, commit)
		return cfg, true, 0
	}

	return cfg, false, 0
}

// newFlagSet creates a flag.FlagSet that binds all CLI flags to the given
// Config. The FlagSet uses ContinueOnError so callers control the error
// handling behavior.
func newFlagSet(cfg *node.Config) *flag.FlagSet {
	fs := flag.NewFlagSet("jamnode", flag.ContinueOnError)
	fs.StringVar(&cfg.DataDir, "datadir", cfg.DataDir, "data directory path")
	fs.StringVar(&cfg.Name, "name", cfg.Name, "human-readable node identifier")
	fs.StringVar(&cfg.ValidatorKeyPath, "validatorkey", cfg.ValidatorKeyPath, "path to validator key file (empty: observer mode)")
	fs.IntVar(&cfg.NumCores, "numcores", cfg.NumCores, "number of execution cores")
	fs.Uint64Var(&cfg.EpochLength, "epochlength", cfg.EpochLength, "slots per epoch")
	fs.IntVar(&cfg.ValidatorCount, "validatorcount", cfg.ValidatorCount, "size of the validator set")
	fs.IntVar(&cfg.GuarantorCount, "guarantorcount", cfg.GuarantorCount, "size of the guarantor set")
	fs.StringVar(&cfg.SelectorMode, "selector", cfg.SelectorMode, "leader selector mode (ticket, fallback)")
	fs.IntVar(&cfg.RPCPort, "rpc.port", cfg.RPCPort, "RPC server port")
	fs.IntVar(&cfg.P2PPort, "p2p.port", cfg.P2PPort, "P2P listening port")
	fs.IntVar(&cfg.MaxPeers, "maxpeers", cfg.MaxPeers, "maximum number of P2P peers")
	fs.StringVar(&cfg.RingVRFAddr, "ringvrf.addr", cfg.RingVRFAddr, "Bandersnatch ring-VRF service base URL")
	fs.DurationVar(&cfg.SlotDuration, "slotduration", cfg.SlotDuration, "wall-clock slot length")
	fs.DurationVar(&cfg.PrevoteTimeout, "grandpa.prevotetimeout", cfg.PrevoteTimeout, "GRANDPA prevote stage timeout")
	fs.DurationVar(&cfg.PrecommitTimeout, "grandpa.precommittimeout", cfg.PrecommitTimeout, "GRANDPA precommit stage timeout")
	fs.IntVar(&cfg.Verbosity, "verbosity", cfg.Verbosity, "log level 0-5 (0=silent, 5=trace)")
	fs.BoolVar(&cfg.Metrics, "metrics", cfg.Metrics, "enable metrics collection")
	fs.StringVar(&cfg.MetricsAPIKey, "metrics.apikey", cfg.MetricsAPIKey, "require this API key on GET /metrics (empty: open)")
	return fs
}
