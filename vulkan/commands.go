package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_swapchain"

	"github.com/vkngwrapper/framepipe/driver"
)

// CommandBuffer is a primary command buffer re-recorded once per frame.
// The command pool does not allow individual resets, so Begin frees the
// previous recording and allocates a fresh buffer; callers only Begin
// after the previous submission completed.
type CommandBuffer struct {
	dev    *Device
	buffer core1_0.CommandBuffer

	chain      *Swapchain
	image      int
	pipeline   *Pipeline
	renderPass bool
	recording  bool
}

func (c *CommandBuffer) release() {
	if c.buffer != nil {
		c.dev.device.FreeCommandBuffers([]core1_0.CommandBuffer{c.buffer})
		c.buffer = nil
	}
}

// Begin starts recording for one image of target.
func (c *CommandBuffer) Begin(target driver.Swapchain, image int) error {
	chain, ok := target.(*Swapchain)
	if !ok || chain.swapchain == nil {
		return errors.Newf("begin commands: not a live vulkan swapchain (%T)", target)
	}
	if chain.depth && len(chain.framebuffers) == 0 {
		return errors.New("begin commands: swapchain has no depth target attached")
	}
	if image < 0 || image >= len(chain.framebuffers) {
		return errors.Newf("begin commands: image %d out of %d", image, len(chain.framebuffers))
	}
	if c.recording {
		return errors.New("begin commands: already recording")
	}

	c.release()
	buffers, _, err := c.dev.device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        c.dev.commandPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return errors.Wrap(err, "allocate command buffer")
	}
	c.buffer = buffers[0]

	_, err = c.buffer.Begin(core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		return errors.Wrap(err, "begin command buffer")
	}

	c.chain, c.image, c.pipeline = chain, image, nil
	c.renderPass, c.recording = false, true
	return nil
}

func (c *CommandBuffer) check(op string) error {
	if !c.recording {
		return errors.Newf("%s outside Begin/End", op)
	}
	return nil
}

func (c *CommandBuffer) colorBarrier(oldLayout, newLayout core1_0.ImageLayout, srcStage, dstStage core1_0.PipelineStageFlags, srcAccess, dstAccess core1_0.AccessFlags) error {
	return c.buffer.CmdPipelineBarrier(srcStage, dstStage, 0, nil, nil, []core1_0.ImageMemoryBarrier{
		{
			OldLayout:           oldLayout,
			NewLayout:           newLayout,
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               c.chain.images[c.image],
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:     core1_0.ImageAspectColor,
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			SrcAccessMask: srcAccess,
			DstAccessMask: dstAccess,
		},
	})
}

// Transition records a layout change of the current image. Leaving the
// render-target state ends the render pass begun by Clear.
func (c *CommandBuffer) Transition(from, to driver.ImageState) error {
	if err := c.check("transition"); err != nil {
		return err
	}

	switch {
	case from == driver.StatePresent && to == driver.StateRenderTarget:
		// The previous contents are cleared, so the old layout is discarded.
		return c.colorBarrier(core1_0.ImageLayoutUndefined, core1_0.ImageLayoutColorAttachmentOptimal,
			core1_0.PipelineStageColorAttachmentOutput, core1_0.PipelineStageColorAttachmentOutput,
			0, core1_0.AccessColorAttachmentWrite)
	case from == driver.StateRenderTarget && to == driver.StatePresent:
		if c.renderPass {
			c.buffer.CmdEndRenderPass()
			c.renderPass = false
		}
		return c.colorBarrier(core1_0.ImageLayoutColorAttachmentOptimal, khr_swapchain.ImageLayoutPresentSrc,
			core1_0.PipelineStageColorAttachmentOutput, core1_0.PipelineStageBottomOfPipe,
			core1_0.AccessColorAttachmentWrite, 0)
	}
	return errors.Newf("unexpected image transition: %s -> %s", from, to)
}

func (c *CommandBuffer) BindPipeline(p driver.Pipeline) error {
	if err := c.check("bind pipeline"); err != nil {
		return err
	}
	pipeline, ok := p.(*Pipeline)
	if !ok || pipeline.pipeline == nil {
		return errors.Newf("bind pipeline: not a live vulkan pipeline (%T)", p)
	}
	c.buffer.CmdBindPipeline(core1_0.PipelineBindPointGraphics, pipeline.pipeline)
	c.pipeline = pipeline
	return nil
}

func (c *CommandBuffer) SetViewport(v driver.Viewport) error {
	if err := c.check("set viewport"); err != nil {
		return err
	}
	c.buffer.CmdSetViewport([]core1_0.Viewport{
		{
			X:        v.X,
			Y:        v.Y,
			Width:    v.Width,
			Height:   v.Height,
			MinDepth: v.MinDepth,
			MaxDepth: v.MaxDepth,
		},
	})
	return nil
}

func (c *CommandBuffer) SetScissor(r driver.Rect) error {
	if err := c.check("set scissor"); err != nil {
		return err
	}
	c.buffer.CmdSetScissor([]core1_0.Rect2D{
		{
			Offset: core1_0.Offset2D{X: r.X, Y: r.Y},
			Extent: core1_0.Extent2D{Width: r.Width, Height: r.Height},
		},
	})
	return nil
}

func (c *CommandBuffer) BindVertexBuffer(b driver.Buffer) error {
	if err := c.check("bind vertex buffer"); err != nil {
		return err
	}
	buffer, ok := b.(*Buffer)
	if !ok || buffer.buffer == nil {
		return errors.Newf("bind vertex buffer: not a live vulkan buffer (%T)", b)
	}
	c.buffer.CmdBindVertexBuffers(0, []core1_0.Buffer{buffer.buffer}, []int{0})
	return nil
}

func (c *CommandBuffer) BindIndexBuffer(b driver.Buffer, t driver.IndexType) error {
	if err := c.check("bind index buffer"); err != nil {
		return err
	}
	buffer, ok := b.(*Buffer)
	if !ok || buffer.buffer == nil {
		return errors.Newf("bind index buffer: not a live vulkan buffer (%T)", b)
	}
	c.buffer.CmdBindIndexBuffer(buffer.buffer, 0, toVkIndexType(t))
	return nil
}

func (c *CommandBuffer) BindUniform(p driver.Pipeline, u driver.UniformBuffer) error {
	if err := c.check("bind uniform"); err != nil {
		return err
	}
	pipeline, ok := p.(*Pipeline)
	if !ok || !pipeline.uniform {
		return errors.New("bind uniform: pipeline was built without a uniform block")
	}
	uniform, ok := u.(*UniformBuffer)
	if !ok {
		return errors.Newf("bind uniform: not a vulkan uniform buffer (%T)", u)
	}
	c.buffer.CmdBindDescriptorSets(core1_0.PipelineBindPointGraphics, pipeline.layout, []core1_0.DescriptorSet{
		uniform.set,
	}, nil)
	return nil
}

// Clear begins the render pass, which clears the image to color and any
// depth buffer to the far plane.
func (c *CommandBuffer) Clear(color driver.Color) error {
	if err := c.check("clear"); err != nil {
		return err
	}
	if c.renderPass {
		return errors.New("clear: render pass already begun")
	}

	clearValues := []core1_0.ClearValue{
		core1_0.ClearValueFloat{color.R, color.G, color.B, color.A},
	}
	if c.chain.depth {
		clearValues = append(clearValues, core1_0.ClearValueDepthStencil{Depth: 1.0, Stencil: 0})
	}

	err := c.buffer.CmdBeginRenderPass(core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  c.chain.renderPass,
			Framebuffer: c.chain.framebuffers[c.image],
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: c.chain.extent,
			},
			ClearValues: clearValues,
		})
	if err != nil {
		return errors.Wrap(err, "begin render pass")
	}
	c.renderPass = true
	return nil
}

func (c *CommandBuffer) Draw(d driver.DrawCall) error {
	if err := c.check("draw"); err != nil {
		return err
	}
	if !c.renderPass || c.pipeline == nil {
		return errors.New("draw: needs a bound pipeline inside the render pass")
	}

	if d.Indexed {
		c.buffer.CmdDrawIndexed(d.Count, d.InstanceCount, uint32(d.First), d.VertexOffset, 0)
	} else {
		c.buffer.CmdDraw(d.Count, d.InstanceCount, uint32(d.First), 0)
	}
	return nil
}

func (c *CommandBuffer) End() error {
	if err := c.check("end"); err != nil {
		return err
	}
	if c.renderPass {
		return errors.New("end: render pass still open")
	}
	c.recording = false
	_, err := c.buffer.End()
	return errors.Wrap(err, "end command buffer")
}

func (c *CommandBuffer) Destroy() {
	c.release()
	c.recording = false
}
