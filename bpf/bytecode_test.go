package bpf

import (
	"testing"

	"github.com/cilium/ebpf/asm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedirectInstructionsShape(t *testing.T) {
	insns := redirectInstructions(10, 11)
	require.NotEmpty(t, insns)

	// The program starts by reading rx_queue_index (offset 16 of xdp_md)
	// and spilling it to the stack.
	assert.Equal(t, asm.LoadMem(asm.R2, asm.R1, 16, asm.Word), insns[0])
	assert.Equal(t, asm.StoreMem(asm.RFP, -4, asm.R2, asm.Word), insns[1])

	// Both helpers are invoked.
	var helpers []asm.BuiltinFunc
	for _, ins := range insns {
		if ins.OpCode.JumpOp() == asm.Call {
			helpers = append(helpers, asm.BuiltinFunc(ins.Constant))
		}
	}
	assert.Contains(t, helpers, asm.FnMapLookupElem)
	assert.Contains(t, helpers, asm.FnRedirectMap)

	// Both branch targets exist, so no jump dangles.
	offsets, err := insns.SymbolOffsets()
	require.NoError(t, err)
	assert.Contains(t, offsets, "pass")
	assert.Contains(t, offsets, "abort")

	// Exactly two map loads, referencing the two file descriptors.
	var mapFDs []int64
	for _, ins := range insns {
		if ins.OpCode.IsDWordLoad() && ins.Src == asm.PseudoMapFD {
			mapFDs = append(mapFDs, ins.Constant)
		}
	}
	assert.Equal(t, []int64{10, 11}, mapFDs)
}
