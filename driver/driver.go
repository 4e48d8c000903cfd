// Package driver defines the native-API-neutral contracts the frame pipeline
// is written against. A backend (see package vulkan) implements them on top
// of a real graphics API; package drivertest implements them in memory.
//
// Synchronization follows the monotonic fence model: a Fence carries a
// 64-bit value, a queue submission asks the GPU to set it to a new, larger
// value on completion, and the CPU waits for a value rather than for a
// boolean signal.
package driver

import "time"

// Instance is the root connection to the native API.
type Instance interface {
	// Adapters enumerates physical adapters in driver order.
	Adapters() ([]Adapter, error)
	// Surface returns the presentation surface bound to the window the
	// instance was created for.
	Surface() Surface
	Destroy()
}

// Adapter is one enumerated physical GPU.
type Adapter interface {
	Info() AdapterInfo
	// CreateDevice opens a logical device with graphics and present queues.
	CreateDevice(req Requirements) (Device, error)
}

// Surface is a platform presentation surface.
type Surface interface {
	Destroy()
}

// Device is a logical device. It is the factory for every other object.
type Device interface {
	Queue(kind QueueKind) Queue
	CreateSwapchain(desc SwapchainDesc) (Swapchain, error)
	CreatePipeline(desc PipelineDesc, target Swapchain) (Pipeline, error)
	// CreateDepthTarget builds a depth buffer sized to target, which must
	// have been created with SwapchainDesc.Depth. The target's images become
	// renderable only while a depth target is attached.
	CreateDepthTarget(target Swapchain) (DepthTarget, error)
	CreateFence() (Fence, error)
	CreateSemaphore() (Semaphore, error)
	CreateCommandBuffer() (CommandBuffer, error)
	// CreateStaticBuffer uploads data through a staging buffer into a
	// device-local buffer. The staging buffer is released before returning.
	CreateStaticBuffer(usage BufferUsage, data []byte) (Buffer, error)
	// CreateUniformBuffer creates a host-visible buffer bindable as the
	// pipeline's uniform block.
	CreateUniformBuffer(size int) (UniformBuffer, error)
	WaitIdle() error
	Destroy()
}

// Queue accepts command buffer submissions. Submissions on one queue
// execute in submission order; completion is only observable via fences.
type Queue interface {
	Submit(cmd CommandBuffer, sync SubmitSync) error
}

// SubmitSync holds the GPU-side dependencies of one submission. Wait and
// Signal may be nil. Fence, when set, reaches FenceValue on completion.
type SubmitSync struct {
	Wait       Semaphore
	Signal     Semaphore
	Fence      Fence
	FenceValue uint64
}

// Fence is a GPU-to-CPU completion counter.
type Fence interface {
	// Completed returns the last value the GPU has signaled.
	Completed() (uint64, error)
	// Wait blocks until Completed() >= value or the timeout elapses, in
	// which case it returns ErrWaitTimeout.
	Wait(value uint64, timeout time.Duration) error
	Destroy()
}

// DepthTarget is a depth buffer attached to one swapchain. Destroy detaches
// it.
type DepthTarget interface {
	Destroy()
}

// Semaphore is a GPU-to-GPU dependency between queue operations.
type Semaphore interface {
	Destroy()
}

// Swapchain is a ring of presentable images bound to one surface.
type Swapchain interface {
	ImageCount() int
	Format() Format
	Extent() Extent
	// Acquire returns the index of the next image to render to. The
	// semaphore is signaled once the presentation engine released it.
	Acquire(signal Semaphore, timeout time.Duration) (int, error)
	// Present queues the image for display once wait is signaled.
	Present(image int, wait Semaphore) error
	Destroy()
}

// Pipeline is a fixed graphics pipeline built for one swapchain's format.
type Pipeline interface {
	Destroy()
}

// Buffer is a device-resident buffer.
type Buffer interface {
	Size() int
	Destroy()
}

// UniformBuffer is a host-visible buffer holding per-frame shader data.
type UniformBuffer interface {
	Buffer
	Write(data []byte) error
}

// CommandBuffer records one frame's GPU work. Calls between Begin and End
// are recorded in order; End closes the recording for submission.
type CommandBuffer interface {
	Begin(target Swapchain, image int) error
	Transition(from, to ImageState) error
	BindPipeline(p Pipeline) error
	SetViewport(v Viewport) error
	SetScissor(r Rect) error
	BindVertexBuffer(b Buffer) error
	BindIndexBuffer(b Buffer, t IndexType) error
	BindUniform(p Pipeline, u UniformBuffer) error
	Clear(c Color) error
	Draw(d DrawCall) error
	End() error
	Destroy()
}
