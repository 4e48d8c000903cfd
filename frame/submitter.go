package frame

import (
	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/framepipe/driver"
)

// PipelineState is everything bound before the clear and the draws.
// Indices and Uniform are optional.
type PipelineState struct {
	Pipeline  driver.Pipeline
	Vertices  driver.Buffer
	Indices   driver.Buffer
	IndexType driver.IndexType
	Uniform   driver.UniformBuffer
	Viewport  driver.Viewport
	Scissor   driver.Rect
}

// Submitter records the fixed per-frame command sequence and submits it.
type Submitter struct {
	sync  *Synchronizer
	clear driver.Color
}

// NewSubmitter returns a submitter clearing to clear.
func NewSubmitter(sync *Synchronizer, clear driver.Color) *Submitter {
	return &Submitter{sync: sync, clear: clear}
}

// Record re-records the slot's command buffer for image. The sequence is
// always: transition to render target, bind state, clear, draws, transition
// to presentable.
func (s *Submitter) Record(slot *Slot, chain driver.Swapchain, image int, state PipelineState, draws []driver.DrawCall) (driver.CommandBuffer, error) {
	if state.Pipeline == nil || state.Vertices == nil {
		return nil, errors.New("record: pipeline and vertex buffer are required")
	}
	cmd := slot.Commands
	if err := cmd.Begin(chain, image); err != nil {
		return nil, errors.Wrapf(err, "begin commands for image %d", image)
	}

	steps := []func() error{
		func() error { return cmd.Transition(driver.StatePresent, driver.StateRenderTarget) },
		func() error { return cmd.BindPipeline(state.Pipeline) },
		func() error { return cmd.SetViewport(state.Viewport) },
		func() error { return cmd.SetScissor(state.Scissor) },
		func() error { return cmd.BindVertexBuffer(state.Vertices) },
	}
	if state.Indices != nil {
		steps = append(steps, func() error { return cmd.BindIndexBuffer(state.Indices, state.IndexType) })
	}
	if state.Uniform != nil {
		steps = append(steps, func() error { return cmd.BindUniform(state.Pipeline, state.Uniform) })
	}
	steps = append(steps, func() error { return cmd.Clear(s.clear) })
	for _, d := range draws {
		d := d
		steps = append(steps, func() error { return cmd.Draw(d) })
	}
	steps = append(steps,
		func() error { return cmd.Transition(driver.StateRenderTarget, driver.StatePresent) },
		cmd.End,
	)

	for _, step := range steps {
		if err := step(); err != nil {
			return nil, errors.Wrapf(err, "record frame slot %d", slot.Index)
		}
	}
	return cmd, nil
}

// Submit enqueues cmd on queue. The submission waits for the slot's
// ImageAvailable semaphore, signals RenderFinished, and sets the slot fence
// to the returned value on completion.
func (s *Submitter) Submit(queue driver.Queue, slot *Slot, cmd driver.CommandBuffer) (uint64, error) {
	value := slot.Value + 1
	err := queue.Submit(cmd, driver.SubmitSync{
		Wait:       slot.ImageAvailable,
		Signal:     slot.RenderFinished,
		Fence:      slot.Fence,
		FenceValue: value,
	})
	if err != nil {
		return 0, errors.Wrapf(err, "submit frame slot %d", slot.Index)
	}
	if err := s.sync.EndFrame(slot.Index, value); err != nil {
		return 0, err
	}
	return value, nil
}
