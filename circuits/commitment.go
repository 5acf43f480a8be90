package circuits

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	nativemimc "github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/consensys/gnark/std/hash/mimc"
)

const (
	// ChunkSize bytes are packed per field element, so every chunk is
	// below the BN254 scalar modulus.
	ChunkSize = 31
	// DefaultMaxChunks bounds committed inputs to 1984 bytes.
	DefaultMaxChunks = 64
)

// CommitmentCircuit proves knowledge of the bytes behind Digest, the MiMC
// hash of their length followed by MaxChunks zero-padded 31-byte chunks.
// The verifier recomputes Digest from the public input bytes.
type CommitmentCircuit struct {
	Chunks []frontend.Variable
	Length frontend.Variable
	Digest frontend.Variable `gnark:",public"`
}

// NewCommitmentCircuit returns the blueprint for inputs of up to
// maxChunks*ChunkSize bytes.
func NewCommitmentCircuit(maxChunks int) *CommitmentCircuit {
	return &CommitmentCircuit{Chunks: make([]frontend.Variable, maxChunks)}
}

func (c *CommitmentCircuit) Define(api frontend.API) error {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	api.ToBinary(c.Length, 32)
	h.Write(c.Length)
	for _, chunk := range c.Chunks {
		api.ToBinary(chunk, 8*ChunkSize)
		h.Write(chunk)
	}
	api.AssertIsEqual(h.Sum(), c.Digest)
	return nil
}

func pack(data []byte, maxChunks int) ([]fr.Element, error) {
	n := (len(data) + ChunkSize - 1) / ChunkSize
	if n > maxChunks {
		return nil, fmt.Errorf("%d bytes exceed the %d byte commitment capacity", len(data), maxChunks*ChunkSize)
	}
	out := make([]fr.Element, maxChunks)
	for i := 0; i < n; i++ {
		end := min((i+1)*ChunkSize, len(data))
		out[i].SetBytes(data[i*ChunkSize : end])
	}
	return out, nil
}

// Digest is the native counterpart of the circuit hash.
func Digest(data []byte, maxChunks int) (*big.Int, error) {
	chunks, err := pack(data, maxChunks)
	if err != nil {
		return nil, err
	}

	h := nativemimc.NewMiMC()
	var length fr.Element
	length.SetUint64(uint64(len(data)))
	b := length.Bytes()
	_, _ = h.Write(b[:])
	for i := range chunks {
		b := chunks[i].Bytes()
		_, _ = h.Write(b[:])
	}

	var d fr.Element
	d.SetBytes(h.Sum(nil))
	return d.BigInt(new(big.Int)), nil
}

// CommitmentAssignment is the full witness for data.
func CommitmentAssignment(data []byte, maxChunks int) (*CommitmentCircuit, error) {
	chunks, err := pack(data, maxChunks)
	if err != nil {
		return nil, err
	}
	digest, err := Digest(data, maxChunks)
	if err != nil {
		return nil, err
	}
	a := &CommitmentCircuit{
		Chunks: make([]frontend.Variable, maxChunks),
		Length: len(data),
		Digest: digest,
	}
	for i := range chunks {
		a.Chunks[i] = chunks[i].BigInt(new(big.Int))
	}
	return a, nil
}

// Verifier checks commitment proofs.
type Verifier struct {
	VK        groth16.VerifyingKey
	MaxChunks int
}

// Verify checks proof against the public input bytes.
func (v *Verifier) Verify(data, proof []byte) error {
	digest, err := Digest(data, v.MaxChunks)
	if err != nil {
		return err
	}
	pub, err := frontend.NewWitness(&CommitmentCircuit{Digest: digest}, Curve().ScalarField(), frontend.PublicOnly())
	if err != nil {
		return err
	}
	p := groth16.NewProof(Curve())
	if _, err := p.ReadFrom(bytes.NewReader(proof)); err != nil {
		return fmt.Errorf("read proof: %w", err)
	}
	return groth16.Verify(p, v.VK, pub)
}

// Keys is a compiled commitment circuit with its groth16 keys.
type Keys struct {
	Verifier

	ccs constraint.ConstraintSystem
	pk  groth16.ProvingKey
}

func compile(maxChunks int) (constraint.ConstraintSystem, error) {
	if maxChunks <= 0 {
		return nil, fmt.Errorf("max chunks must be positive, got %d", maxChunks)
	}
	return frontend.Compile(Curve().ScalarField(), r1cs.NewBuilder, NewCommitmentCircuit(maxChunks))
}

// Setup compiles the circuit and runs a fresh (insecure, single party)
// groth16 setup.
func Setup(maxChunks int) (*Keys, error) {
	ccs, err := compile(maxChunks)
	if err != nil {
		return nil, err
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, err
	}
	return &Keys{Verifier: Verifier{VK: vk, MaxChunks: maxChunks}, ccs: ccs, pk: pk}, nil
}

const (
	pkFile = "commitment_pk.bin"
	vkFile = "commitment_vk.bin"
)

// LoadOrSetup reuses the keys cached in dir, running Setup and caching its
// output when there are none.
func LoadOrSetup(dir string, maxChunks int) (*Keys, error) {
	pkBytes, err := os.ReadFile(filepath.Join(dir, pkFile))
	if errors.Is(err, os.ErrNotExist) {
		k, err := Setup(maxChunks)
		if err != nil {
			return nil, err
		}
		return k, k.Save(dir)
	}
	if err != nil {
		return nil, err
	}

	ccs, err := compile(maxChunks)
	if err != nil {
		return nil, err
	}
	pk := groth16.NewProvingKey(Curve())
	if _, err := pk.ReadFrom(bytes.NewReader(pkBytes)); err != nil {
		return nil, fmt.Errorf("read %s: %w", pkFile, err)
	}
	vk, err := ReadVerifyingKey(filepath.Join(dir, vkFile))
	if err != nil {
		return nil, err
	}
	return &Keys{Verifier: Verifier{VK: vk, MaxChunks: maxChunks}, ccs: ccs, pk: pk}, nil
}

// ReadVerifyingKey loads a verifying key written by Save.
func ReadVerifyingKey(path string) (groth16.VerifyingKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	vk := groth16.NewVerifyingKey(Curve())
	if _, err := vk.ReadFrom(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return vk, nil
}

// Save writes both keys to dir.
func (k *Keys) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	var b bytes.Buffer
	if _, err := k.pk.WriteTo(&b); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, pkFile), b.Bytes(), 0o644); err != nil {
		return err
	}
	b.Reset()
	if _, err := k.VK.WriteTo(&b); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, vkFile), b.Bytes(), 0o644)
}

// Prove returns a serialized proof that data is behind its digest.
func (k *Keys) Prove(data []byte) ([]byte, error) {
	a, err := CommitmentAssignment(data, k.MaxChunks)
	if err != nil {
		return nil, err
	}
	w, err := frontend.NewWitness(a, Curve().ScalarField())
	if err != nil {
		return nil, err
	}
	proof, err := groth16.Prove(k.ccs, k.pk, w)
	if err != nil {
		return nil, err
	}
	var b bytes.Buffer
	if _, err := proof.WriteTo(&b); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
