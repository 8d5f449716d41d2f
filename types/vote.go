package types

import (
	"time"
)

// LedgerStatus tracks the best-effort relationship between an off-chain vote
// record and its on-chain submission.
type LedgerStatus string

const (
	// LedgerStatusPending means the ledger submission has been dispatched
	// but neither confirmed nor given up on.
	LedgerStatusPending LedgerStatus = "pending"
	// LedgerStatusUnconfirmed means the submission failed or timed out;
	// the record awaits reconciliation from the event stream.
	LedgerStatusUnconfirmed LedgerStatus = "unconfirmed"
	// LedgerStatusConfirmed means a transaction hash and block number have
	// been attached to the record.
	LedgerStatusConfirmed LedgerStatus = "confirmed"
)

// ProofData holds the three Groth16 curve-point groups as decimal strings,
// matching the rapidsnark proof wire format.
type ProofData struct {
	A        []string   `json:"pi_a"     bson:"a"`
	B        [][]string `json:"pi_b"     bson:"b"`
	C        []string   `json:"pi_c"     bson:"c"`
	Protocol string     `json:"protocol" bson:"protocol"`
}

// ZKProof is the zero-knowledge artifact attached to a vote entry. It is
// immutable once attached to a VoteRecord. Verified is set only after local
// self-verification against the known verification key succeeds.
type ZKProof struct {
	Proof          *ProofData `json:"proof"          bson:"proof"`
	PublicSignals  []string   `json:"publicSignals"  bson:"publicSignals"`
	NullifierHash  *BigInt    `json:"nullifierHash"  bson:"nullifierHash"`
	CommitmentHash *BigInt    `json:"commitmentHash" bson:"commitmentHash"`
	Verified       bool       `json:"verified"       bson:"verified"`
}

// VoteEntry is one per-position selection inside a VoteRecord.
type VoteEntry struct {
	PositionID  string    `json:"positionId"  bson:"positionId"`
	CandidateID string    `json:"candidateId" bson:"candidateId"`
	Proof       *ZKProof  `json:"zkProof"     bson:"zkProof"`
	Timestamp   time.Time `json:"timestamp"   bson:"timestamp"`
}

// VoteRecord is created exactly once per voter per election by the cast
// operation. It is never mutated afterward except for the narrow append-only
// ledger enrichment (TxHash, BlockNumber, LedgerStatus) once the on-chain
// submission confirms.
type VoteRecord struct {
	VoterID   string      `json:"voterId"   bson:"voterId"`
	Votes     []VoteEntry `json:"votes"     bson:"votes"`
	Timestamp time.Time   `json:"timestamp" bson:"timestamp"`

	TxHash       string       `json:"txHash,omitempty"       bson:"txHash,omitempty"`
	BlockNumber  uint64       `json:"blockNumber,omitempty"  bson:"blockNumber,omitempty"`
	LedgerStatus LedgerStatus `json:"ledgerStatus,omitempty" bson:"ledgerStatus,omitempty"`
}

// Nullifier binds (voter, election) in a one-way derived value. The pair
// (Hash, ElectionID) is unique across the entire system; this is the single
// source of truth preventing double voting, independent of any cache state.
// Nullifiers are created once per successful cast and never deleted or
// updated.
type Nullifier struct {
	Hash       string    `json:"hash"       bson:"hash"` // decimal field element
	ElectionID string    `json:"electionId" bson:"electionId"`
	VoterID    string    `json:"voterId"    bson:"voterId"`
	Timestamp  time.Time `json:"timestamp"  bson:"timestamp"`
}

// LedgerVote is a vote-cast event reconciled from the external ledger back
// into the document store. The transaction hash is the idempotency key.
type LedgerVote struct {
	TxHash           string    `json:"txHash"           bson:"_id"`
	LedgerElectionID uint64    `json:"ledgerElectionId" bson:"ledgerElectionId"`
	ElectionID       string    `json:"electionId"       bson:"electionId"`
	CandidateField   string    `json:"candidateField"   bson:"candidateField"`
	NullifierHash    string    `json:"nullifierHash"    bson:"nullifierHash"`
	CommitmentHash   string    `json:"commitmentHash"   bson:"commitmentHash"`
	BlockNumber      uint64    `json:"blockNumber"      bson:"blockNumber"`
	ReconciledAt     time.Time `json:"reconciledAt"     bson:"reconciledAt"`
}
