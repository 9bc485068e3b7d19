package blockbuilder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/jamnode/jam/orchestrator"
)

// WriteBlock emits a sealed block to dir/block-{slot}.json (slot
// zero-padded to 20 digits), guarded by an
// exclusive lock on the directory and written atomically via a
// temp-file rename -- the same shape the orchestrator uses to persist
// its canonical state document.
func WriteBlock(dir string, slot uint64, doc orchestrator.BlockDoc) error {
	lock := flock.New(filepath.Join(dir, ".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("blockbuilder: lock blocks dir: %w", err)
	}
	if !locked {
		return fmt.Errorf("blockbuilder: blocks dir %s is locked by another process", dir)
	}
	defer lock.Unlock()

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("blockbuilder: marshal block: %w", err)
	}

	final := filepath.Join(dir, fmt.Sprintf("block-%020d.json", slot))
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, raw, 0600); err != nil {
		return fmt.Errorf("blockbuilder: write temp file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("blockbuilder: rename temp file: %w", err)
	}
	return nil
}
