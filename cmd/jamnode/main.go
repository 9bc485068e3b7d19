// Command jamnode is the main entry point for a JAM protocol node: it
// runs the extrinsic STF pipeline, the GRANDPA finality engine, the RPC
// surface, and -- when a validator key is configured -- the block
// builder's per-slot production loop.
//
// Usage:
//
//	jamnode [flags]
//
// Flags:
//
//	--datadir         Data directory path (default: ~/.jam)
//	--rpc.port        RPC server port (default: 9090)
//	--p2p.port        P2P listening port (default: 30333)
//	--maxpeers        Max P2P peers (default: 50)
//	--numcores        Number of execution cores (default: 2)
//	--epochlength     Slots per epoch (default: 600)
//	--slotduration    Wall-clock slot length (default: 6s)
//	--selector        Leader selector mode: ticket, fallback (default: ticket)
//	--ringvrf.addr    Bandersnatch ring-VRF service base URL
//	--validatorkey    Path to this node's validator key file (empty: observer mode)
//	--verbosity       Log level 0-5 (default: 3)
//	--metrics         Enable metrics collection (default: false)
//	--metrics.apikey  Require this API key on GET /metrics (empty: open)
//	--version         Print version and exit
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jamnode/jam/bandersnatch"
	"github.com/jamnode/jam/blockbuilder"
	"github.com/jamnode/jam/crypto"
	"github.com/jamnode/jam/grandpa"
	"github.com/jamnode/jam/log"
	"github.com/jamnode/jam/node"
	"github.com/jamnode/jam/orchestrator"
	"github.com/jamnode/jam/types"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.2.0 -X main.commit=abc1234"
var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code. Accepts CLI
// arguments (without the program name) so it can be tested in isolation.
func run(args []string) int {
	cfg, exit, code := parseFlags(args)
	if exit {
		return code
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return 1
	}

	logger := log.Default().Module("main")
	logger.Info("jamnode starting", "version", version, "datadir", cfg.DataDir,
		"rpc_port", cfg.RPCPort, "p2p_port", cfg.P2PPort, "selector", cfg.SelectorMode,
		"verbosity", cfg.Verbosity)

	client := bandersnatch.New(cfg.RingVRFAddr)
	deps := orchestrator.Deps{
		Verifier:       client,
		Committer:      client,
		Oracle:         orchestrator.DefaultOracle{},
		AssureVerify:   crypto.Ed25519Verify,
		GuarantorCount: cfg.GuarantorCount,
		ValidatorCount: cfg.ValidatorCount,
	}

	orch, err := orchestrator.New(orchestrator.Config{
		StateDir: cfg.StateDir(),
		NumCores: cfg.NumCores,
		Deps:     deps,
	})
	if err != nil {
		logger.Error("failed to start orchestrator", "err", err)
		return 1
	}

	n, err := node.New(cfg, orch)
	if err != nil {
		logger.Error("failed to create node", "err", err)
		return 1
	}
	if err := n.Register(orch, 0); err != nil {
		logger.Error("failed to register orchestrator", "err", err)
		return 1
	}

	selector := blockbuilder.GammaS
	if cfg.SelectorMode == "fallback" {
		selector = blockbuilder.SimpleModulo
	}

	var stopProducing func()
	if cfg.ValidatorKeyPath != "" {
		key, err := loadValidatorKey(cfg.ValidatorKeyPath)
		if err != nil {
			logger.Error("failed to load validator key", "err", err)
			return 1
		}

		gcfg := grandpa.Config{PrevoteTimeout: cfg.PrevoteTimeout, PrecommitTimeout: cfg.PrecommitTimeout}
		gsvc, err := grandpa.NewService(gcfg, cfg.VotesDir(), orch.State().Kappa, key.Ed25519Priv, key.Ed25519Pub, grandpa.NewLoopbackNetwork())
		if err != nil {
			logger.Error("failed to create GRANDPA service", "err", err)
			return 1
		}
		if err := n.Register(gsvc, 1); err != nil {
			logger.Error("failed to register GRANDPA service", "err", err)
			return 1
		}

		builder := blockbuilder.New(blockbuilder.Leader{Mode: selector, Self: key.BandersnatchPub}, client, key.ProverHandle, deps)
		stopProducing = startProducing(orch, builder, gsvc, cfg.SlotDuration, cfg.BlocksDir(), logger)
	} else {
		logger.Info("no validator key configured, running in observer mode")
	}

	if err := n.Start(); err != nil {
		logger.Error("failed to start node", "err", err)
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig.String())

	if stopProducing != nil {
		stopProducing()
	}
	if err := n.Stop(); err != nil {
		logger.Error("error during shutdown", "err", err)
		return 1
	}

	logger.Info("shutdown complete")
	return 0
}

// startProducing runs a per-slot loop: if this validator leads the slot,
// it builds, seals, writes, and commits a candidate block, then records
// it with GRANDPA for finality voting. Returns a function that stops the
// loop and waits for it to exit.
func startProducing(orch *orchestrator.Orchestrator, builder *blockbuilder.Builder, gsvc *grandpa.Service, slotDuration time.Duration, blocksDir string, logger *log.Logger) func() {
	done := make(chan struct{})
	stop := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(slotDuration)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				produceSlot(orch, builder, gsvc, blocksDir, logger)
			}
		}
	}()

	return func() {
		close(stop)
		<-done
	}
}

// produceSlot builds a candidate for the next slot against the
// orchestrator's current canonical state, writes it to the blocks
// directory, commits it through the orchestrator's authoritative
// process-block path, and records it with GRANDPA.
func produceSlot(orch *orchestrator.Orchestrator, builder *blockbuilder.Builder, gsvc *grandpa.Service, blocksDir string, logger *log.Logger) {
	pre := orch.State()
	slot := pre.Tau + 1
	var parentHash types.Hash
	if n := len(pre.Beta); n > 0 {
		parentHash = pre.Beta[n-1].HeaderHash
	}

	cand, built, err := builder.Build(pre, slot, parentHash, orchestrator.Extrinsic{})
	if err != nil {
		logger.Error("block build failed", "slot", slot, "err", err)
		return
	}
	if !built {
		return
	}

	if err := blockbuilder.WriteBlock(blocksDir, slot, cand.Block); err != nil {
		logger.Error("failed to persist block", "slot", slot, "err", err)
		return
	}

	raw, err := json.Marshal(cand.Block)
	if err != nil {
		logger.Error("failed to marshal block", "slot", slot, "err", err)
		return
	}
	if _, err := orch.ProcessBlock(raw); err != nil {
		logger.Error("failed to commit built block", "slot", slot, "err", err)
		return
	}

	headerHash := orchestrator.HeaderHash(cand.Block.Header)
	gsvc.Engine().AddBlock(grandpa.CandidateBlock{
		Hash:       headerHash,
		ParentHash: parentHash,
		Height:     slot,
		StateRoot:  cand.Block.Header.StateRoot,
		Audited:    true,
	})

	logger.Info("produced block", "slot", slot, "hash", headerHash.Hex())
}
