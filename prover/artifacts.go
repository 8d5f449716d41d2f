package prover

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Default artifact file names inside the artifacts directory. The circuit,
// proving key and verification key are external artifacts supplied to the
// node; they are not built here.
const (
	wasmFileName = "vote.wasm"
	zkeyFileName = "vote.zkey"
	vkeyFileName = "vote_vkey.json"
)

// Artifacts lazily loads the circuit wasm, the proving key and the
// verification key from a local directory. LoadAll is idempotent and safe
// for concurrent use.
type Artifacts struct {
	dir string

	mu              sync.Mutex
	loaded          bool
	wasm            []byte
	provingKey      []byte
	verificationKey []byte
}

// NewArtifacts creates an artifact loader rooted at dir.
func NewArtifacts(dir string) *Artifacts {
	return &Artifacts{dir: dir}
}

// LoadAll reads every artifact from disk. Subsequent calls are no-ops.
func (a *Artifacts) LoadAll() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loaded {
		return nil
	}
	var err error
	if a.wasm, err = readArtifact(a.dir, wasmFileName); err != nil {
		return err
	}
	if a.provingKey, err = readArtifact(a.dir, zkeyFileName); err != nil {
		return err
	}
	if a.verificationKey, err = readArtifact(a.dir, vkeyFileName); err != nil {
		return err
	}
	a.loaded = true
	return nil
}

func readArtifact(dir, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read circuit artifact %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("circuit artifact %s is empty", name)
	}
	return data, nil
}

// Wasm returns the circuit wasm. LoadAll must have succeeded first.
func (a *Artifacts) Wasm() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.wasm
}

// ProvingKey returns the Groth16 proving key.
func (a *Artifacts) ProvingKey() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.provingKey
}

// VerificationKey returns the Groth16 verification key.
func (a *Artifacts) VerificationKey() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.verificationKey
}
