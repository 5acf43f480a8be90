package circuits_test

import (
	"strings"
	"testing"

	"github.com/consensys/gnark/backend"
	"github.com/consensys/gnark/test"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/zkmint/circuits"
)

const testChunks = 4

func TestCommitmentCircuit(t *testing.T) {
	assert := test.NewAssert(t)
	opts := []test.TestingOption{test.WithCurves(circuits.Curve()), test.WithBackends(backend.GROTH16)}

	data := []byte(`{"mint":{"recipient":"neutron1abc","amount":"500000000000000000"}}`)
	good, err := circuits.CommitmentAssignment(data, testChunks)
	require.NoError(t, err)
	assert.ProverSucceeded(circuits.NewCommitmentCircuit(testChunks), good, opts...)

	bad, err := circuits.CommitmentAssignment(data, testChunks)
	require.NoError(t, err)
	bad.Length = len(data) + 1
	assert.ProverFailed(circuits.NewCommitmentCircuit(testChunks), bad, opts...)
}

func TestDigestBindsLengthAndContent(t *testing.T) {
	a, err := circuits.Digest([]byte("abc"), testChunks)
	require.NoError(t, err)
	b, err := circuits.Digest([]byte("abc\x00"), testChunks)
	require.NoError(t, err)
	c, err := circuits.Digest([]byte("abd"), testChunks)
	require.NoError(t, err)
	again, err := circuits.Digest([]byte("abc"), testChunks)
	require.NoError(t, err)

	require.NotEqual(t, a, b)
	require.NotEqual(t, a, c)
	require.Equal(t, a, again)

	_, err = circuits.Digest([]byte(strings.Repeat("x", testChunks*circuits.ChunkSize+1)), testChunks)
	require.Error(t, err)
}

func TestCommitmentProveVerify(t *testing.T) {
	keys, err := circuits.Setup(testChunks)
	require.NoError(t, err)

	data := []byte(`{"domain":"eth-mainnet"}`)
	proof, err := keys.Prove(data)
	require.NoError(t, err)

	require.NoError(t, keys.Verify(data, proof))
	require.Error(t, keys.Verify([]byte(`{"domain":"eth-sepolia"}`), proof))
	require.Error(t, keys.Verify(data, proof[:len(proof)/2]))
}

func TestLoadOrSetupCaches(t *testing.T) {
	dir := t.TempDir()

	first, err := circuits.LoadOrSetup(dir, testChunks)
	require.NoError(t, err)
	proof, err := first.Prove([]byte("hello"))
	require.NoError(t, err)

	second, err := circuits.LoadOrSetup(dir, testChunks)
	require.NoError(t, err)
	require.NoError(t, second.Verify([]byte("hello"), proof))

	vk, err := circuits.ReadVerifyingKey(dir + "/commitment_vk.bin")
	require.NoError(t, err)
	v := circuits.Verifier{VK: vk, MaxChunks: testChunks}
	require.NoError(t, v.Verify([]byte("hello"), proof))
}
