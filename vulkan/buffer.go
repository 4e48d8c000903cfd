package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/framepipe/driver"
)

// Buffer is a device buffer with its own memory allocation.
type Buffer struct {
	buffer core1_0.Buffer
	memory core1_0.DeviceMemory
	size   int
}

func (b *Buffer) Size() int { return b.size }

func (b *Buffer) Destroy() {
	if b.buffer != nil {
		b.buffer.Destroy(nil)
		b.buffer = nil
	}

	if b.memory != nil {
		b.memory.Free(nil)
		b.memory = nil
	}
}

// UniformBuffer is a host-visible uniform buffer with a descriptor set
// pointing at it.
type UniformBuffer struct {
	Buffer
	set core1_0.DescriptorSet
}

// Write copies data to the start of the buffer.
func (u *UniformBuffer) Write(data []byte) error {
	if len(data) > u.size {
		return errors.Newf("%d bytes do not fit a %d byte uniform buffer", len(data), u.size)
	}
	return writeData(u.memory, 0, data)
}

func writeData(memory core1_0.DeviceMemory, offset int, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	memoryPtr, _, err := memory.Map(offset, len(data), 0)
	if err != nil {
		return errors.Wrap(err, "map memory")
	}
	defer memory.Unmap()

	dataBuffer := unsafe.Slice((*byte)(memoryPtr), len(data))
	copy(dataBuffer, data)
	return nil
}

func (d *Device) createBuffer(size int, usage core1_0.BufferUsageFlags, properties core1_0.MemoryPropertyFlags) (*Buffer, error) {
	buffer, _, err := d.device.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create buffer")
	}
	b := &Buffer{buffer: buffer, size: size}

	memRequirements := buffer.MemoryRequirements()
	memoryTypeIndex, err := d.findMemoryType(memRequirements.MemoryTypeBits, properties)
	if err != nil {
		b.Destroy()
		return nil, err
	}

	b.memory, _, err = d.device.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memRequirements.Size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		b.Destroy()
		return nil, errors.Wrap(err, "allocate buffer memory")
	}

	if _, err = buffer.BindBufferMemory(b.memory, 0); err != nil {
		b.Destroy()
		return nil, errors.Wrap(err, "bind buffer memory")
	}
	return b, nil
}

func (d *Device) findMemoryType(typeFilter uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	memProperties := d.adapter.physicalDevice.MemoryProperties()
	for i, memoryType := range memProperties.MemoryTypes {
		typeBit := uint32(1 << i)

		if (typeFilter&typeBit) != 0 && (memoryType.PropertyFlags&properties) == properties {
			return i, nil
		}
	}

	return 0, errors.Newf("no memory type with properties %s", properties)
}

// CreateStaticBuffer uploads data to device-local memory through a
// host-visible staging buffer. It blocks until the copy completed.
func (d *Device) CreateStaticBuffer(usage driver.BufferUsage, data []byte) (driver.Buffer, error) {
	if len(data) == 0 {
		return nil, errors.New("static buffer without data")
	}

	var usageFlags core1_0.BufferUsageFlags
	switch usage {
	case driver.BufferVertex:
		usageFlags = core1_0.BufferUsageVertexBuffer
	case driver.BufferIndex:
		usageFlags = core1_0.BufferUsageIndexBuffer
	default:
		return nil, errors.Newf("unknown buffer usage %d", usage)
	}

	staging, err := d.createBuffer(len(data), core1_0.BufferUsageTransferSrc, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return nil, errors.Wrap(err, "staging buffer")
	}
	defer staging.Destroy()

	if err := writeData(staging.memory, 0, data); err != nil {
		return nil, err
	}

	buffer, err := d.createBuffer(len(data), core1_0.BufferUsageTransferDst|usageFlags, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return nil, err
	}

	if err := d.copyBuffer(staging.buffer, buffer.buffer, len(data)); err != nil {
		buffer.Destroy()
		return nil, err
	}
	return buffer, nil
}

func (d *Device) copyBuffer(srcBuffer core1_0.Buffer, dstBuffer core1_0.Buffer, size int) error {
	buffers, _, err := d.device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        d.commandPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return errors.Wrap(err, "allocate transfer commands")
	}
	buffer := buffers[0]
	defer d.device.FreeCommandBuffers(buffers)

	_, err = buffer.Begin(core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		return errors.Wrap(err, "begin transfer commands")
	}

	err = buffer.CmdCopyBuffer(srcBuffer, dstBuffer, []core1_0.BufferCopy{
		{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      size,
		},
	})
	if err != nil {
		return errors.Wrap(err, "copy buffer")
	}

	if _, err = buffer.End(); err != nil {
		return errors.Wrap(err, "end transfer commands")
	}

	_, err = d.graphicsQueue.queue.Submit(nil, []core1_0.SubmitInfo{
		{
			CommandBuffers: []core1_0.CommandBuffer{buffer},
		},
	})
	if err != nil {
		return errors.Wrap(err, "submit transfer")
	}

	_, err = d.graphicsQueue.queue.WaitIdle()
	return errors.Wrap(err, "wait for transfer")
}

// CreateUniformBuffer creates a host-visible uniform buffer of size bytes
// bound to binding 0 of a fresh descriptor set.
func (d *Device) CreateUniformBuffer(size int) (driver.UniformBuffer, error) {
	if size <= 0 {
		return nil, errors.Newf("uniform buffer size %d", size)
	}
	if d.uniformSets >= maxUniformBuffers {
		return nil, errors.Newf("more than %d uniform buffers", maxUniformBuffers)
	}

	buffer, err := d.createBuffer(size, core1_0.BufferUsageUniformBuffer, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return nil, errors.Wrap(err, "uniform buffer")
	}

	sets, _, err := d.device.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: d.descriptorPool,
		SetLayouts:     []core1_0.DescriptorSetLayout{d.descriptorSetLayout},
	})
	if err != nil {
		buffer.Destroy()
		return nil, errors.Wrap(err, "allocate uniform descriptor set")
	}
	d.uniformSets++

	err = d.device.UpdateDescriptorSets([]core1_0.WriteDescriptorSet{
		{
			DstSet:          sets[0],
			DstBinding:      0,
			DstArrayElement: 0,

			DescriptorType: core1_0.DescriptorTypeUniformBuffer,

			BufferInfo: []core1_0.DescriptorBufferInfo{
				{
					Buffer: buffer.buffer,
					Offset: 0,
					Range:  size,
				},
			},
		},
	}, nil)
	if err != nil {
		buffer.Destroy()
		return nil, errors.Wrap(err, "update uniform descriptor set")
	}

	return &UniformBuffer{Buffer: *buffer, set: sets[0]}, nil
}
