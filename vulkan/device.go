package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_swapchain"

	"github.com/vkngwrapper/framepipe/driver"
)

// maxUniformBuffers bounds the descriptor pool. One uniform buffer exists
// per frame in flight.
const maxUniformBuffers = 16

// Device is a logical device with its graphics and present queues.
type Device struct {
	adapter *Adapter
	device  core1_0.Device

	graphicsQueue *Queue
	presentQueue  *Queue

	swapchainExtension khr_swapchain.Extension

	commandPool         core1_0.CommandPool
	descriptorSetLayout core1_0.DescriptorSetLayout
	descriptorPool      core1_0.DescriptorPool
	uniformSets         int
}

func newDevice(adapter *Adapter, device core1_0.Device) (dev *Device, err error) {
	dev = &Device{adapter: adapter, device: device}
	defer func() {
		if err != nil {
			dev.Destroy()
			dev = nil
		}
	}()

	dev.graphicsQueue = &Queue{dev: dev, queue: device.GetQueue(*adapter.indices.GraphicsFamily, 0)}
	dev.presentQueue = &Queue{dev: dev, queue: device.GetQueue(*adapter.indices.PresentFamily, 0)}
	dev.swapchainExtension = khr_swapchain.CreateExtensionFromDevice(device)

	dev.commandPool, _, err = device.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: *adapter.indices.GraphicsFamily,
	})
	if err != nil {
		return dev, errors.Wrap(err, "create command pool")
	}

	dev.descriptorSetLayout, _, err = device.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: []core1_0.DescriptorSetLayoutBinding{
			{
				Binding:         0,
				DescriptorType:  core1_0.DescriptorTypeUniformBuffer,
				DescriptorCount: 1,

				StageFlags: core1_0.StageVertex,
			},
		},
	})
	if err != nil {
		return dev, errors.Wrap(err, "create descriptor set layout")
	}

	dev.descriptorPool, _, err = device.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets: maxUniformBuffers,
		PoolSizes: []core1_0.DescriptorPoolSize{
			{
				Type:            core1_0.DescriptorTypeUniformBuffer,
				DescriptorCount: maxUniformBuffers,
			},
		},
	})
	if err != nil {
		return dev, errors.Wrap(err, "create descriptor pool")
	}

	driver.Logger().Info("logical device created", "adapter", adapter.info.Name,
		"graphicsFamily", *adapter.indices.GraphicsFamily, "presentFamily", *adapter.indices.PresentFamily)
	return dev, nil
}

func (d *Device) Queue(kind driver.QueueKind) driver.Queue {
	if kind == driver.QueuePresent {
		return d.presentQueue
	}
	return d.graphicsQueue
}

func (d *Device) CreateFence() (driver.Fence, error) {
	// Created signaled so the first wait on value 0 never blocks.
	fence, _, err := d.device.CreateFence(nil, core1_0.FenceCreateInfo{
		Flags: core1_0.FenceCreateSignaled,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create fence")
	}
	return &Fence{dev: d, fence: fence}, nil
}

func (d *Device) CreateSemaphore() (driver.Semaphore, error) {
	semaphore, _, err := d.device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return nil, errors.Wrap(err, "create semaphore")
	}
	return &Semaphore{semaphore: semaphore}, nil
}

func (d *Device) CreateCommandBuffer() (driver.CommandBuffer, error) {
	return &CommandBuffer{dev: d}, nil
}

// WaitIdle blocks until every queue of the device is idle.
func (d *Device) WaitIdle() error {
	_, err := d.device.WaitIdle()
	return errors.Wrap(err, "device wait idle")
}

// Destroy releases the device-level objects and the device. Every object
// created from the device must be destroyed first.
func (d *Device) Destroy() {
	if d.descriptorPool != nil {
		d.descriptorPool.Destroy(nil)
		d.descriptorPool = nil
	}

	if d.descriptorSetLayout != nil {
		d.descriptorSetLayout.Destroy(nil)
		d.descriptorSetLayout = nil
	}

	if d.commandPool != nil {
		d.commandPool.Destroy(nil)
		d.commandPool = nil
	}

	if d.device != nil {
		d.device.Destroy(nil)
		d.device = nil
	}
}

// Queue is a device queue.
type Queue struct {
	dev   *Device
	queue core1_0.Queue
}

// Submit enqueues one command buffer. When sync.Fence is set the fence is
// reset and will reach sync.FenceValue once the work completes.
func (q *Queue) Submit(cmd driver.CommandBuffer, sync driver.SubmitSync) error {
	buffer, ok := cmd.(*CommandBuffer)
	if !ok || buffer.buffer == nil {
		return errors.Newf("submit: not a recorded vulkan command buffer (%T)", cmd)
	}
	if buffer.recording {
		return errors.New("submit: command buffer still recording")
	}

	info := core1_0.SubmitInfo{
		CommandBuffers: []core1_0.CommandBuffer{buffer.buffer},
	}
	if sync.Wait != nil {
		info.WaitSemaphores = []core1_0.Semaphore{sync.Wait.(*Semaphore).semaphore}
		info.WaitDstStageMask = []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput}
	}
	if sync.Signal != nil {
		info.SignalSemaphores = []core1_0.Semaphore{sync.Signal.(*Semaphore).semaphore}
	}

	var fence core1_0.Fence
	var target *Fence
	if sync.Fence != nil {
		target = sync.Fence.(*Fence)
		if err := target.prepare(sync.FenceValue); err != nil {
			return err
		}
		fence = target.fence
	}

	_, err := q.queue.Submit(fence, []core1_0.SubmitInfo{info})
	if err != nil {
		return errors.Wrap(err, "queue submit")
	}
	if target != nil {
		target.submitted = sync.FenceValue
	}
	return nil
}

// Semaphore is a binary GPU-GPU semaphore.
type Semaphore struct {
	semaphore core1_0.Semaphore
}

func (s *Semaphore) Destroy() {
	if s.semaphore != nil {
		s.semaphore.Destroy(nil)
		s.semaphore = nil
	}
}
