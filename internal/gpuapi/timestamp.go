package gpuapi

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vixen/internal/frame"
)

// QueryPool implements internal/frame.TimestampQueryPool over a single
// VkQueryPool sized 2 queries per frame slot (begin/end), per spec.md
// section 4.9. No teacher file grounds timestamp queries directly (the
// teacher has no GPU timing abstraction); this follows the same
// create/destroy/reset shape as every other handle-owning type in this
// package (Fence, Semaphore, CommandPool).
type QueryPool struct {
	ctx            *Context
	handle         vk.QueryPool
	queriesPerSlot uint32
}

// NewQueryPool creates a timestamp query pool sized for framesInFlight
// slots, 2 queries (begin, end) per slot per registered node. maxNodes
// bounds how many distinct timed nodes a single slot can hold.
func NewQueryPool(ctx *Context, framesInFlight, maxNodes int) (*QueryPool, error) {
	queriesPerSlot := uint32(maxNodes * 2)
	info := vk.QueryPoolCreateInfo{
		SType:      vk.StructureTypeQueryPoolCreateInfo,
		QueryType:  vk.QueryTypeTimestamp,
		QueryCount: queriesPerSlot * uint32(framesInFlight),
	}
	var handle vk.QueryPool
	if res := vk.CreateQueryPool(ctx.Device.Logical, &info, ctx.Allocator, &handle); res != vk.Success {
		return nil, fmt.Errorf("gpuapi: create query pool: result %d", res)
	}
	return &QueryPool{ctx: ctx, handle: handle, queriesPerSlot: queriesPerSlot}, nil
}

func (p *QueryPool) globalIndex(frameSlot int, queryIndex uint32) uint32 {
	return uint32(frameSlot)*p.queriesPerSlot + queryIndex
}

// WriteTimestamp records a vkCmdWriteTimestamp into cmd at the pipeline's
// bottom-of-pipe stage, the conservative choice that captures "this command
// buffer's work is entirely finished" rather than a specific stage.
func (p *QueryPool) WriteTimestamp(cmd frame.CommandBuffer, frameSlot int, queryIndex uint32) error {
	gcb, ok := cmd.(*CommandBuffer)
	if !ok {
		return fmt.Errorf("gpuapi: write timestamp: command buffer %T is not a gpuapi.CommandBuffer", cmd)
	}
	vk.CmdWriteTimestamp(gcb.handle, vk.PipelineStageBottomOfPipeBit, p.handle, p.globalIndex(frameSlot, queryIndex))
	return nil
}

// FetchResults reads back the begin/end ticks of frameSlot's first query
// pair (queries 0 and 1 of the slot), non-blocking: if the GPU
// hasn't finished writing them yet, available is false rather than
// stalling the caller.
func (p *QueryPool) FetchResults(frameSlot int) (beginTicks, endTicks uint64, available bool, err error) {
	base := p.globalIndex(frameSlot, 0)
	data := make([]uint64, 2)
	res := vk.GetQueryPoolResults(p.ctx.Device.Logical, p.handle, base, 2,
		vk.Size(len(data)*8), data, 8,
		vk.QueryResultFlags(vk.QueryResult64Bit))
	switch res {
	case vk.Success:
		return data[0], data[1], true, nil
	case vk.NotReady:
		return 0, 0, false, nil
	default:
		return 0, 0, false, fmt.Errorf("gpuapi: get query pool results: result %d", res)
	}
}

// Reset clears frameSlot's two queries so they can be written again next
// time that slot comes around the ring.
func (p *QueryPool) Reset(frameSlot int) error {
	vk.ResetQueryPoolEXT(p.ctx.Device.Logical, p.handle, p.globalIndex(frameSlot, 0), 2)
	return nil
}

// Destroy releases the underlying VkQueryPool.
func (p *QueryPool) Destroy() {
	if p.handle != nil {
		vk.DestroyQueryPool(p.ctx.Device.Logical, p.handle, p.ctx.Allocator)
		p.handle = nil
	}
}
