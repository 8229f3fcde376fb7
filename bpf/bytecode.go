package bpf

import (
	"github.com/cilium/ebpf/asm"
)

// XDP return codes used by the redirect program.
const (
	xdpAborted = 0
	xdpPass    = 2
)

// redirectInstructions synthesizes the canonical xsk redirect program:
//
//	int xsk_redirect(struct xdp_md *ctx) {
//	    __u32 q = ctx->rx_queue_index;
//	    __u32 *enabled = bpf_map_lookup_elem(&queue_enable, &q);
//	    if (!enabled)
//	        return XDP_ABORTED;
//	    if (*enabled)
//	        return bpf_redirect_map(&queue_to_socket, q, 0);
//	    return XDP_PASS;
//	}
func redirectInstructions(queueEnableFD, queueToSocketFD int) asm.Instructions {
	return asm.Instructions{
		// r2 = ctx->rx_queue_index; spill the queue id to the stack so its
		// address can serve as the lookup key.
		asm.LoadMem(asm.R2, asm.R1, 16, asm.Word),
		asm.StoreMem(asm.RFP, -4, asm.R2, asm.Word),

		// r0 = bpf_map_lookup_elem(&queue_enable, &q)
		asm.LoadMapPtr(asm.R1, queueEnableFD),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, -4),
		asm.FnMapLookupElem.Call(),
		asm.JEq.Imm(asm.R0, 0, "abort"),

		// if (*enabled == 0) return XDP_PASS
		asm.LoadMem(asm.R1, asm.R0, 0, asm.Word),
		asm.JEq.Imm(asm.R1, 0, "pass"),

		// return bpf_redirect_map(&queue_to_socket, q, 0)
		asm.LoadMapPtr(asm.R1, queueToSocketFD),
		asm.LoadMem(asm.R2, asm.RFP, -4, asm.Word),
		asm.Mov.Imm(asm.R3, 0),
		asm.FnRedirectMap.Call(),
		asm.Return(),

		asm.Mov.Imm(asm.R0, xdpPass).WithSymbol("pass"),
		asm.Return(),

		asm.Mov.Imm(asm.R0, xdpAborted).WithSymbol("abort"),
		asm.Return(),
	}
}
