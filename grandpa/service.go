package grandpa

import (
	"context"
	stded25519 "crypto/ed25519"

	"github.com/jamnode/jam/state"
	"github.com/jamnode/jam/types"
)

// Service wraps an Engine in a background round-running loop and
// implements node.Service (Name, Start, Stop) structurally, without
// importing the node package -- the same pattern orchestrator.Orchestrator
// uses to avoid an import cycle.
type Service struct {
	engine *Engine
	store  *VoteStore
	cancel context.CancelFunc
	done   chan struct{}
}

// NewService opens a VoteStore at storeDir and builds an Engine over it.
func NewService(cfg Config, storeDir string, validators []state.ValidatorRecord, selfPriv stded25519.PrivateKey, selfPub types.Ed25519Pub, network Network) (*Service, error) {
	store, err := OpenVoteStore(storeDir)
	if err != nil {
		return nil, err
	}
	engine, err := New(cfg, store, validators, selfPriv, selfPub, network)
	if err != nil {
		store.Close()
		return nil, err
	}
	return &Service{engine: engine, store: store}, nil
}

// Engine exposes the underlying Engine so a block builder or RPC layer
// can feed it newly-audited candidate blocks via AddBlock.
func (s *Service) Engine() *Engine { return s.engine }

func (s *Service) Name() string { return "grandpa" }

// Start launches the round loop: RunRound is called back-to-back until
// Stop cancels the context. Each round's prevote/precommit timeouts
// already bound its duration, so no extra pacing is needed between
// rounds.
func (s *Service) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		for {
			if ctx.Err() != nil {
				return
			}
			if _, err := s.engine.RunRound(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Error("round failed", "err", err)
			}
		}
	}()
	return nil
}

// Stop cancels the round loop, waits for it to return, and closes the
// vote store.
func (s *Service) Stop() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return s.store.Close()
}
