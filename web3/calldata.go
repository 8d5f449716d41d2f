package web3

import (
	"fmt"
	"math/big"

	"github.com/Coded483-max/smartvote-node/types"
)

// Calldata is a Groth16 proof arranged the way the on-chain verifier expects
// it. Rapidsnark emits curve points with a trailing projective coordinate
// and the B point with its inner coordinates in circom order; both are
// normalized here.
type Calldata struct {
	A     [2]*big.Int
	B     [2][2]*big.Int
	C     [2]*big.Int
	Input [2]*big.Int
}

func parseFieldElement(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid field element %q", s)
	}
	return v, nil
}

// proofToCalldata converts a rapidsnark proof into verifier calldata. The
// inner coordinates of each B pair are swapped: circom emits them in
// (x_im, x_re) order while the EVM pairing precompile expects (x_re, x_im).
func proofToCalldata(proof *types.ZKProof) (*Calldata, error) {
	if proof == nil || proof.Proof == nil {
		return nil, fmt.Errorf("missing proof data")
	}
	p := proof.Proof
	if len(p.A) < 2 || len(p.C) < 2 || len(p.B) < 2 || len(p.B[0]) < 2 || len(p.B[1]) < 2 {
		return nil, fmt.Errorf("malformed proof: a=%d b=%d c=%d points", len(p.A), len(p.B), len(p.C))
	}
	cd := &Calldata{}
	var err error
	for i := 0; i < 2; i++ {
		if cd.A[i], err = parseFieldElement(p.A[i]); err != nil {
			return nil, fmt.Errorf("proof point a[%d]: %w", i, err)
		}
		if cd.C[i], err = parseFieldElement(p.C[i]); err != nil {
			return nil, fmt.Errorf("proof point c[%d]: %w", i, err)
		}
	}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			// note the 1-j: coordinate order swap
			if cd.B[i][j], err = parseFieldElement(p.B[i][1-j]); err != nil {
				return nil, fmt.Errorf("proof point b[%d][%d]: %w", i, j, err)
			}
		}
	}
	if proof.NullifierHash == nil || proof.CommitmentHash == nil {
		return nil, fmt.Errorf("missing public inputs")
	}
	cd.Input[0] = proof.NullifierHash.MathBigInt()
	cd.Input[1] = proof.CommitmentHash.MathBigInt()
	return cd, nil
}
