// groth16.go - Groth16/BN254 proof backend built on gnark.
//
// Keys are cached on disk per circuit so repeated process starts skip the
// expensive trusted setup. Serialization uses gnark's WriteTo/ReadFrom.

package proofbackend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// Groth16Backend implements Backend with Groth16 over BN254.
type Groth16Backend struct {
	keyDir string
}

// NewGroth16Backend creates the backend. keyDir may be empty to disable the
// on-disk key cache (keys are then regenerated per Compile).
func NewGroth16Backend(keyDir string) *Groth16Backend {
	return &Groth16Backend{keyDir: keyDir}
}

// Tag identifies the proof family in envelopes.
func (b *Groth16Backend) Tag() string { return "SNARK" }

type groth16Keys struct {
	circuitID string
	ccs       constraint.ConstraintSystem
	pk        groth16.ProvingKey
	vk        groth16.VerifyingKey
}

func (k *groth16Keys) CircuitID() string { return k.circuitID }

// Compile builds the constraint system and generates or loads its keys.
func (b *Groth16Backend) Compile(circuitID string, circuit frontend.Circuit) (Keys, error) {
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, circuit)
	if err != nil {
		return nil, fmt.Errorf("%w: circuit %q compilation: %v", ErrSetupFailure, circuitID, err)
	}
	pk, vk, err := b.setupOrLoadKeys(circuitID, ccs)
	if err != nil {
		return nil, fmt.Errorf("%w: circuit %q key setup: %v", ErrSetupFailure, circuitID, err)
	}
	return &groth16Keys{circuitID: circuitID, ccs: ccs, pk: pk, vk: vk}, nil
}

// Prove generates a Groth16 proof for the full assignment.
func (b *Groth16Backend) Prove(ctx context.Context, keys Keys, assignment frontend.Circuit) ([]byte, error) {
	gk, ok := keys.(*groth16Keys)
	if !ok {
		return nil, fmt.Errorf("%w: keys were not produced by this backend", ErrSetupFailure)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("witness creation failed: %w", err)
	}
	proof, err := groth16.Prove(gk.ccs, gk.pk, w)
	if err != nil {
		return nil, fmt.Errorf("proof generation failed: %w", err)
	}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("proof marshaling failed: %w", err)
	}
	return buf.Bytes(), nil
}

// Verify checks a proof against the public inputs. Fails closed.
func (b *Groth16Backend) Verify(keys Keys, public frontend.Circuit, proofBytes []byte) error {
	gk, ok := keys.(*groth16Keys)
	if !ok {
		return fmt.Errorf("%w: keys were not produced by this backend", ErrSetupFailure)
	}
	w, err := frontend.NewWitness(public, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("%w: public witness creation: %v", ErrProofVerificationFailed, err)
	}
	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return fmt.Errorf("%w: proof unmarshaling: %v", ErrProofVerificationFailed, err)
	}
	if err := groth16.Verify(proof, gk.vk, w); err != nil {
		return fmt.Errorf("%w: %v", ErrProofVerificationFailed, err)
	}
	return nil
}

// setupOrLoadKeys loads cached keys for the circuit or generates and saves
// fresh ones.
func (b *Groth16Backend) setupOrLoadKeys(circuitID string, ccs constraint.ConstraintSystem) (groth16.ProvingKey, groth16.VerifyingKey, error) {
	if b.keyDir == "" {
		return groth16.Setup(ccs)
	}
	pkPath := filepath.Join(b.keyDir, circuitID+"_pk.bin")
	vkPath := filepath.Join(b.keyDir, circuitID+"_vk.bin")

	pk, pkErr := loadProvingKey(pkPath)
	vk, vkErr := loadVerifyingKey(vkPath)
	if pkErr == nil && vkErr == nil {
		return pk, vk, nil
	}

	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(b.keyDir, 0o755); err != nil {
		return nil, nil, err
	}
	if err := saveKey(pkPath, pk); err != nil {
		return nil, nil, err
	}
	if err := saveKey(vkPath, vk); err != nil {
		return nil, nil, err
	}
	return pk, vk, nil
}

func saveKey(path string, key io.WriterTo) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = key.WriteTo(f)
	return err
}

func loadProvingKey(path string) (groth16.ProvingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pk := groth16.NewProvingKey(ecc.BN254)
	_, err = pk.ReadFrom(f)
	return pk, err
}

func loadVerifyingKey(path string) (groth16.VerifyingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	vk := groth16.NewVerifyingKey(ecc.BN254)
	_, err = vk.ReadFrom(f)
	return vk, err
}
