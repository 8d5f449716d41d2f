package web3

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

var checkpointKey = []byte("voteCast/lastBlock")

// Checkpoints persists the monitor's last scanned block so a restarted node
// resumes filtering where it left off instead of re-reading the chain from
// the head and missing the gap.
type Checkpoints struct {
	db *pebble.DB
}

// OpenCheckpoints opens (or creates) the checkpoint store at dir.
func OpenCheckpoints(dir string) (*Checkpoints, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	return &Checkpoints{db: db}, nil
}

// LastBlock returns the persisted block number, or (0, false) if nothing has
// been checkpointed yet.
func (c *Checkpoints) LastBlock() (uint64, bool, error) {
	value, closer, err := c.db.Get(checkpointKey)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	defer func() { _ = closer.Close() }()
	if len(value) != 8 {
		return 0, false, fmt.Errorf("corrupt checkpoint value of %d bytes", len(value))
	}
	return binary.BigEndian.Uint64(value), true, nil
}

// SetLastBlock durably records the block number.
func (c *Checkpoints) SetLastBlock(block uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], block)
	if err := c.db.Set(checkpointKey, buf[:], pebble.Sync); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

func (c *Checkpoints) Close() error {
	return c.db.Close()
}
