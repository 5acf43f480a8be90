package circuits_test

import (
	"testing"

	"github.com/consensys/gnark/backend"
	"github.com/consensys/gnark/test"
	"github.com/ethereum/go-ethereum/common"

	"github.com/yourorg/zkmint/circuits"
	"github.com/yourorg/zkmint/pkg/slot"
)

func TestSlotKeyCircuitMatchesDerive(t *testing.T) {
	assert := test.NewAssert(t)

	holder := common.HexToAddress("0x8d41bb082C6050893d1eC113A104cc4C087F2a2a")
	key := slot.Derive(holder, 9)

	assert.ProverSucceeded(
		new(circuits.SlotKeyCircuit),
		circuits.SlotKeyAssignment(holder, 9, key),
		test.WithCurves(circuits.Curve()),
		test.WithBackends(backend.GROTH16),
	)
}

func TestSlotKeyCircuitWrongIndex(t *testing.T) {
	assert := test.NewAssert(t)

	holder := common.HexToAddress("0x0000000000000000000000000000000000000001")
	key := slot.Derive(holder, 9)

	// the key of slot 9 does not open at slot 0
	assert.ProverFailed(
		new(circuits.SlotKeyCircuit),
		circuits.SlotKeyAssignment(holder, 0, key),
		test.WithCurves(circuits.Curve()),
		test.WithBackends(backend.GROTH16),
	)
}
