package prover

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"

	"github.com/Coded483-max/smartvote-node/util"
)

// FieldFromID maps an arbitrary identifier (voter, candidate or election id)
// into the BN254 scalar field: SHA-256 of the identifier, reduced into the
// field. The mapping is deterministic, so the same voter and election always
// derive the same nullifier.
func FieldFromID(id string) *big.Int {
	h := sha256.Sum256([]byte(id))
	return util.BigToFF(new(big.Int).SetBytes(h[:]))
}

// NewSalt draws a fresh cryptographically secure salt, reduced into the
// field. Salts are never reused across proofs.
func NewSalt() *big.Int {
	return util.BigToFF(new(big.Int).SetBytes(util.RandomBytes(32)))
}

// NullifierHash derives poseidon(voterField, electionField). It depends only
// on (voter, election) and not on the candidate: the same voter casting in
// the same election always produces the same nullifier, which is what lets
// prior-vote existence be checked without linking the vote to its choice.
func NullifierHash(voterField, electionField *big.Int) (*big.Int, error) {
	h, err := poseidon.Hash([]*big.Int{voterField, electionField})
	if err != nil {
		return nil, fmt.Errorf("failed to hash nullifier: %w", err)
	}
	return h, nil
}

// CommitmentHash derives poseidon(candidateField, salt). The salt hides the
// choice; the commitment alone is not sufficient to deanonymize it.
func CommitmentHash(candidateField, salt *big.Int) (*big.Int, error) {
	h, err := poseidon.Hash([]*big.Int{candidateField, salt})
	if err != nil {
		return nil, fmt.Errorf("failed to hash commitment: %w", err)
	}
	return h, nil
}

// witnessInputs is the circuit witness assignment, serialized with the
// signal names the circom circuit expects. All values are decimal strings.
type witnessInputs struct {
	VoterID        string `json:"voterId"`
	CandidateID    string `json:"candidateId"`
	ElectionID     string `json:"electionId"`
	Salt           string `json:"salt"`
	NullifierHash  string `json:"nullifierHash"`
	CommitmentHash string `json:"commitmentHash"`
}

func (w *witnessInputs) encode() ([]byte, error) {
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to encode witness inputs: %w", err)
	}
	return data, nil
}
