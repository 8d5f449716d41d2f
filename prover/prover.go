// Package prover implements the zero-knowledge proof pipeline: field
// encoding, nullifier and commitment derivation, circuit witness assembly,
// Groth16 proof generation with the external circom artifacts, and the
// mandatory local self-verification of every produced proof.
package prover

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/iden3/go-rapidsnark/prover"
	rapidtypes "github.com/iden3/go-rapidsnark/types"
	"github.com/iden3/go-rapidsnark/verifier"
	"github.com/iden3/go-rapidsnark/witness"

	"github.com/Coded483-max/smartvote-node/log"
	"github.com/Coded483-max/smartvote-node/types"
)

// Pipeline generates and verifies vote proofs. It is safe for concurrent
// use; proof generation itself is serialized because the rapidsnark Groth16
// prover is not safe for concurrent calls.
type Pipeline struct {
	artifacts *Artifacts
	proveMu   sync.Mutex
}

// New creates a proof pipeline over the given circuit artifacts.
func New(artifacts *Artifacts) *Pipeline {
	return &Pipeline{artifacts: artifacts}
}

// Generate produces a self-verified proof that the voter is casting a vote
// for the candidate in the election. The returned proof carries the
// nullifier hash (bound to voter and election only) and the commitment hash
// (bound to candidate and a fresh salt).
//
// The context deadline bounds the circuit execution; a deadline expiry means
// unknown outcome and the caller must re-check the nullifier ledger before
// any retry.
func (p *Pipeline) Generate(ctx context.Context, voterID, candidateID, electionID string) (*types.ZKProof, error) {
	if err := p.artifacts.LoadAll(); err != nil {
		return nil, err
	}

	voterField := FieldFromID(voterID)
	candidateField := FieldFromID(candidateID)
	electionField := FieldFromID(electionID)
	salt := NewSalt()

	nullifier, err := NullifierHash(voterField, electionField)
	if err != nil {
		return nil, err
	}
	commitment, err := CommitmentHash(candidateField, salt)
	if err != nil {
		return nil, err
	}

	inputs := &witnessInputs{
		VoterID:        voterField.String(),
		CandidateID:    candidateField.String(),
		ElectionID:     electionField.String(),
		Salt:           salt.String(),
		NullifierHash:  nullifier.String(),
		CommitmentHash: commitment.String(),
	}

	zkproof, err := p.proveWithContext(ctx, inputs)
	if err != nil {
		return nil, err
	}
	zkproof.NullifierHash = (*types.BigInt)(nullifier)
	zkproof.CommitmentHash = (*types.BigInt)(commitment)

	// Self-verify against the known verification key before trusting the
	// proof. This catches a mismatched or corrupted proving artifact; it is
	// not an optimization to skip.
	if err := p.Verify(zkproof); err != nil {
		return nil, fmt.Errorf("proof failed self-verification: %w", err)
	}
	zkproof.Verified = true
	return zkproof, nil
}

// proveWithContext runs witness calculation and proof generation in a
// goroutine so the caller's deadline is honored. On expiry the result is
// discarded when it eventually arrives.
func (p *Pipeline) proveWithContext(ctx context.Context, inputs *witnessInputs) (*types.ZKProof, error) {
	type result struct {
		proof *types.ZKProof
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		proof, err := p.prove(inputs)
		ch <- result{proof, err}
	}()
	select {
	case <-ctx.Done():
		log.Warnw("proof generation abandoned", "reason", ctx.Err().Error())
		return nil, fmt.Errorf("proof generation: %w", ctx.Err())
	case res := <-ch:
		return res.proof, res.err
	}
}

func (p *Pipeline) prove(inputs *witnessInputs) (*types.ZKProof, error) {
	encoded, err := inputs.encode()
	if err != nil {
		return nil, err
	}
	parsed, err := witness.ParseInputs(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to parse witness inputs: %w", err)
	}
	calc, err := witness.NewCircom2WitnessCalculator(p.artifacts.Wasm(), true)
	if err != nil {
		return nil, fmt.Errorf("failed to create witness calculator: %w", err)
	}
	wtns, err := calc.CalculateWTNSBin(parsed, true)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate witness: %w", err)
	}

	// The rapidsnark prover is not concurrent-safe.
	p.proveMu.Lock()
	proofJSON, pubJSON, err := prover.Groth16ProverRaw(p.artifacts.ProvingKey(), wtns)
	p.proveMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to generate proof: %w", err)
	}

	proofData := new(types.ProofData)
	if err := json.Unmarshal([]byte(proofJSON), proofData); err != nil {
		return nil, fmt.Errorf("failed to decode proof: %w", err)
	}
	var publicSignals []string
	if err := json.Unmarshal([]byte(pubJSON), &publicSignals); err != nil {
		return nil, fmt.Errorf("failed to decode public signals: %w", err)
	}
	return &types.ZKProof{
		Proof:         proofData,
		PublicSignals: publicSignals,
	}, nil
}

// Verify checks the proof against the known verification key. It does not
// mutate the proof; callers set Verified themselves after a nil return.
func (p *Pipeline) Verify(zkproof *types.ZKProof) error {
	if err := p.artifacts.LoadAll(); err != nil {
		return err
	}
	if zkproof == nil || zkproof.Proof == nil {
		return fmt.Errorf("missing proof data")
	}
	rapid := rapidtypes.ZKProof{
		Proof: &rapidtypes.ProofData{
			A:        zkproof.Proof.A,
			B:        zkproof.Proof.B,
			C:        zkproof.Proof.C,
			Protocol: zkproof.Proof.Protocol,
		},
		PubSignals: zkproof.PublicSignals,
	}
	if err := verifier.VerifyGroth16(rapid, p.artifacts.VerificationKey()); err != nil {
		return fmt.Errorf("groth16 verification failed: %w", err)
	}
	return nil
}
