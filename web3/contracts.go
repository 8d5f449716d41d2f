// Package web3 binds the node to the on-chain voting contract: transaction
// submission for elections and votes, receipt lookups for public vote
// verification, and a polling monitor that feeds reconciliation with
// VoteCast events.
package web3

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/Coded483-max/smartvote-node/log"
	"github.com/Coded483-max/smartvote-node/prover"
	"github.com/Coded483-max/smartvote-node/types"
	"github.com/Coded483-max/smartvote-node/util"
)

const web3QueryTimeout = 10 * time.Second

// votingABI is the application binary interface of the deployed Voting
// contract. Candidate ids cross the wire as field elements so the contract
// can keep a per-candidate tally; proof points arrive as the four calldata
// groups produced by the Groth16 verifier generator, with input
// [nullifierHash, commitmentHash].
const votingABI = `[
	{"type":"function","name":"createElection","stateMutability":"nonpayable","inputs":[{"name":"electionId","type":"uint256"},{"name":"title","type":"string"},{"name":"startTime","type":"uint256"},{"name":"endTime","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"castVote","stateMutability":"nonpayable","inputs":[{"name":"electionId","type":"uint256"},{"name":"candidateId","type":"uint256"},{"name":"a","type":"uint256[2]"},{"name":"b","type":"uint256[2][2]"},{"name":"c","type":"uint256[2]"},{"name":"input","type":"uint256[2]"}],"outputs":[]},
	{"type":"function","name":"getVotes","stateMutability":"view","inputs":[{"name":"electionId","type":"uint256"},{"name":"candidateId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"event","name":"VoteCast","inputs":[{"name":"electionId","type":"uint256","indexed":true},{"name":"candidateId","type":"uint256","indexed":false},{"name":"nullifierHash","type":"uint256","indexed":false},{"name":"commitmentHash","type":"uint256","indexed":false}],"anonymous":false}
]`

// Contracts holds the client, the bound voting contract and the signing
// account.
type Contracts struct {
	ChainID uint64

	cli      *ethclient.Client
	votingAt common.Address
	voting   *bind.BoundContract
	abi      abi.ABI
	privKey  *ecdsa.PrivateKey
	address  common.Address

	checkpoints    *Checkpoints
	lastWatchBlock uint64
}

// New dials the RPC endpoint and binds the voting contract at the given
// address. checkpoints may be nil, in which case the monitor starts from the
// current head on every boot.
func New(ctx context.Context, rpcURL, contractAddr string, checkpoints *Checkpoints) (*Contracts, error) {
	cli, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial web3 endpoint: %w", err)
	}
	chainID, err := cli.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	parsedABI, err := abi.JSON(strings.NewReader(votingABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse voting contract ABI: %w", err)
	}
	addr := common.HexToAddress(contractAddr)
	return &Contracts{
		ChainID:     chainID.Uint64(),
		cli:         cli,
		votingAt:    addr,
		voting:      bind.NewBoundContract(addr, parsedABI, cli, cli, cli),
		abi:         parsedABI,
		checkpoints: checkpoints,
	}, nil
}

// Close releases the RPC connection and the checkpoint store.
func (c *Contracts) Close() {
	c.cli.Close()
	if c.checkpoints != nil {
		if err := c.checkpoints.Close(); err != nil {
			log.Warnw("failed to close checkpoint store", "error", err.Error())
		}
	}
}

// SetAccountPrivateKey sets the key used for signing transactions.
func (c *Contracts) SetAccountPrivateKey(hexPrivKey string) error {
	var err error
	c.privKey, err = crypto.HexToECDSA(util.TrimHex(hexPrivKey))
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}
	c.address = crypto.PubkeyToAddress(c.privKey.PublicKey)
	return nil
}

// AccountAddress returns the address of the signing account.
func (c *Contracts) AccountAddress() common.Address {
	return c.address
}

// authTransactOpts builds transact options from the configured key, with a
// fresh nonce and gas tip.
func (c *Contracts) authTransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if c.privKey == nil {
		return nil, fmt.Errorf("no private key set")
	}
	auth, err := bind.NewKeyedTransactorWithChainID(c.privKey, new(big.Int).SetUint64(c.ChainID))
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	qctx, cancel := context.WithTimeout(ctx, web3QueryTimeout)
	defer cancel()
	nonce, err := c.cli.PendingNonceAt(qctx, c.address)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	auth.Nonce = new(big.Int).SetUint64(nonce)
	if auth.GasTipCap, err = c.cli.SuggestGasTipCap(qctx); err != nil {
		return nil, fmt.Errorf("failed to get gas tip cap: %w", err)
	}
	auth.Context = ctx
	return auth, nil
}

// CreateElection registers a new election on the contract, with its title
// and voting window, and waits for the transaction to mine. The node assigns
// the ledger election id locally so the registration is idempotent.
func (c *Contracts) CreateElection(ctx context.Context, ledgerElectionID uint64,
	title string, startTime, endTime time.Time) (string, error) {
	opts, err := c.authTransactOpts(ctx)
	if err != nil {
		return "", err
	}
	tx, err := c.voting.Transact(opts, "createElection",
		new(big.Int).SetUint64(ledgerElectionID), title,
		new(big.Int).SetInt64(startTime.Unix()), new(big.Int).SetInt64(endTime.Unix()))
	if err != nil {
		return "", fmt.Errorf("failed to send createElection transaction: %w", err)
	}
	if _, err := bind.WaitMined(ctx, c.cli, tx); err != nil {
		return "", fmt.Errorf("createElection transaction not mined: %w", err)
	}
	log.Infow("election registered on ledger",
		"ledgerElectionId", ledgerElectionID, "tx", tx.Hash().Hex())
	return tx.Hash().Hex(), nil
}

// SubmitVote sends a proof-carrying vote transaction for one candidate and
// waits for it to mine. The candidate id is mapped into the field the same
// way the prover maps it, so the event stream and the proof commitment agree.
// Returns the transaction hash and the block it was included in.
func (c *Contracts) SubmitVote(ctx context.Context, ledgerElectionID uint64, candidateID string, proof *types.ZKProof) (string, uint64, error) {
	cd, err := proofToCalldata(proof)
	if err != nil {
		return "", 0, err
	}
	opts, err := c.authTransactOpts(ctx)
	if err != nil {
		return "", 0, err
	}
	tx, err := c.voting.Transact(opts, "castVote",
		new(big.Int).SetUint64(ledgerElectionID), prover.FieldFromID(candidateID),
		cd.A, cd.B, cd.C, cd.Input)
	if err != nil {
		return "", 0, fmt.Errorf("failed to send castVote transaction: %w", err)
	}
	receipt, err := bind.WaitMined(ctx, c.cli, tx)
	if err != nil {
		return "", 0, fmt.Errorf("castVote transaction not mined: %w", err)
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return "", 0, fmt.Errorf("castVote transaction %s reverted", tx.Hash().Hex())
	}
	return tx.Hash().Hex(), receipt.BlockNumber.Uint64(), nil
}

// GetVotes returns the on-chain vote count for one candidate of an election.
func (c *Contracts) GetVotes(ctx context.Context, ledgerElectionID uint64, candidateID string) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, web3QueryTimeout)
	defer cancel()
	var out []any
	err := c.voting.Call(&bind.CallOpts{Context: ctx}, &out, "getVotes",
		new(big.Int).SetUint64(ledgerElectionID), prover.FieldFromID(candidateID))
	if err != nil {
		return 0, fmt.Errorf("failed to call getVotes: %w", err)
	}
	count, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected getVotes return type %T", out[0])
	}
	return count.Uint64(), nil
}

// TxStatus is the publicly checkable state of a vote transaction.
type TxStatus struct {
	TxHash      string `json:"txHash"`
	Found       bool   `json:"found"`
	Mined       bool   `json:"mined"`
	Success     bool   `json:"success"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
	GasUsed     uint64 `json:"gasUsed,omitempty"`
}

// TransactionStatus looks up a transaction by hash. An unknown hash yields
// Found=false rather than an error, so voters can poll freely.
func (c *Contracts) TransactionStatus(ctx context.Context, txHash string) (*TxStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, web3QueryTimeout)
	defer cancel()
	hash := common.HexToHash(txHash)
	status := &TxStatus{TxHash: hash.Hex()}

	_, pending, err := c.cli.TransactionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return status, nil
		}
		return nil, fmt.Errorf("failed to look up transaction: %w", err)
	}
	status.Found = true
	if pending {
		return status, nil
	}
	receipt, err := c.cli.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return status, nil
		}
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	status.Mined = true
	status.Success = receipt.Status == gethtypes.ReceiptStatusSuccessful
	status.BlockNumber = receipt.BlockNumber.Uint64()
	status.GasUsed = receipt.GasUsed
	return status, nil
}
