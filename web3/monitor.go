package web3

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/Coded483-max/smartvote-node/log"
)

// DefaultMonitorInterval is how often the VoteCast monitor polls for new
// blocks.
const DefaultMonitorInterval = 15 * time.Second

// VoteCastEvent is one decoded VoteCast log from the voting contract.
type VoteCastEvent struct {
	LedgerElectionID uint64
	CandidateField   *big.Int
	NullifierHash    *big.Int
	CommitmentHash   *big.Int
	TxHash           string
	BlockNumber      uint64
}

// MonitorVoteCast polls the chain for VoteCast events emitted by the voting
// contract and delivers them on the returned channel. The scan resumes from
// the persisted checkpoint when one exists. The channel is closed when ctx
// is cancelled.
func (c *Contracts) MonitorVoteCast(ctx context.Context, interval time.Duration) (<-chan *VoteCastEvent, error) {
	voteCastTopic := c.abi.Events["VoteCast"].ID

	if c.checkpoints != nil {
		block, ok, err := c.checkpoints.LastBlock()
		if err != nil {
			return nil, err
		}
		if ok {
			c.lastWatchBlock = block
		}
	}
	if c.lastWatchBlock == 0 {
		qctx, cancel := context.WithTimeout(ctx, web3QueryTimeout)
		head, err := c.cli.BlockNumber(qctx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to get head block: %w", err)
		}
		c.lastWatchBlock = head
	}

	ch := make(chan *VoteCastEvent)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Infow("exiting vote cast monitor")
				return
			case <-ticker.C:
				qctx, cancel := context.WithTimeout(ctx, web3QueryTimeout)
				end, err := c.cli.BlockNumber(qctx)
				cancel()
				if err != nil {
					log.Debugw("failed to get block number, retrying", "err", err)
					continue
				}
				if end <= c.lastWatchBlock {
					continue
				}
				qctx, cancel = context.WithTimeout(ctx, web3QueryTimeout)
				logs, err := c.cli.FilterLogs(qctx, ethereum.FilterQuery{
					FromBlock: new(big.Int).SetUint64(c.lastWatchBlock + 1),
					ToBlock:   new(big.Int).SetUint64(end),
					Addresses: []common.Address{c.votingAt},
					Topics:    [][]common.Hash{{voteCastTopic}},
				})
				cancel()
				if err != nil {
					log.Debugw("failed to filter vote cast logs, retrying", "err", err)
					continue
				}
				for i := range logs {
					event, err := c.decodeVoteCast(&logs[i])
					if err != nil {
						log.Errorw(err, "failed to decode vote cast event")
						continue
					}
					select {
					case ch <- event:
					case <-ctx.Done():
						return
					}
				}
				c.lastWatchBlock = end
				if c.checkpoints != nil {
					if err := c.checkpoints.SetLastBlock(end); err != nil {
						log.Warnw("failed to persist monitor checkpoint", "error", err.Error())
					}
				}
			}
		}
	}()
	return ch, nil
}

// decodeVoteCast unpacks one VoteCast log. The election id is the indexed
// topic; candidate field, nullifier and commitment are in the data segment.
func (c *Contracts) decodeVoteCast(l *gethtypes.Log) (*VoteCastEvent, error) {
	if len(l.Topics) < 2 {
		return nil, fmt.Errorf("vote cast log with %d topics", len(l.Topics))
	}
	values, err := c.abi.Events["VoteCast"].Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack vote cast data: %w", err)
	}
	if len(values) != 3 {
		return nil, fmt.Errorf("expected 3 data values, got %d", len(values))
	}
	candidate, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected candidate type %T", values[0])
	}
	nullifier, ok := values[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected nullifier type %T", values[1])
	}
	commitment, ok := values[2].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected commitment type %T", values[2])
	}
	return &VoteCastEvent{
		LedgerElectionID: new(big.Int).SetBytes(l.Topics[1].Bytes()).Uint64(),
		CandidateField:   candidate,
		NullifierHash:    nullifier,
		CommitmentHash:   commitment,
		TxHash:           l.TxHash.Hex(),
		BlockNumber:      l.BlockNumber,
	}, nil
}
