package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/framepipe/driver"
)

var depthFormats = []core1_0.Format{
	core1_0.FormatD32SignedFloat,
	core1_0.FormatD32SignedFloatS8UnsignedInt,
	core1_0.FormatD24UnsignedNormalizedS8UnsignedInt,
}

func (d *Device) findDepthFormat() (core1_0.Format, error) {
	for _, format := range depthFormats {
		props := d.adapter.physicalDevice.FormatProperties(format)
		if props.OptimalTilingFeatures&core1_0.FormatFeatureDepthStencilAttachment == core1_0.FormatFeatureDepthStencilAttachment {
			return format, nil
		}
	}
	return 0, errors.Newf("%s offers no depth attachment format", d.adapter.info.Name)
}

// DepthTarget is a device-local depth image and view, attached to one
// swapchain's framebuffers.
type DepthTarget struct {
	chain  *Swapchain
	image  core1_0.Image
	memory core1_0.DeviceMemory
	view   core1_0.ImageView
}

// CreateDepthTarget builds a depth image matching target's extent and
// builds target's framebuffers around it.
func (d *Device) CreateDepthTarget(target driver.Swapchain) (driver.DepthTarget, error) {
	chain, ok := target.(*Swapchain)
	if !ok || chain.swapchain == nil {
		return nil, errors.Newf("create depth target: not a live vulkan swapchain (%T)", target)
	}
	if !chain.depth {
		return nil, errors.New("create depth target: swapchain was created without depth")
	}
	if len(chain.framebuffers) > 0 {
		return nil, errors.New("create depth target: swapchain already has a depth target")
	}

	t := &DepthTarget{}
	image, _, err := d.device.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  chain.extent.Width,
			Height: chain.extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        chain.depthFormat,
		Tiling:        core1_0.ImageTilingOptimal,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         core1_0.ImageUsageDepthStencilAttachment,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       core1_0.Samples1,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create depth image")
	}
	t.image = image

	memReqs := image.MemoryRequirements()
	memoryIndex, err := d.findMemoryType(memReqs.MemoryTypeBits, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		t.Destroy()
		return nil, err
	}

	t.memory, _, err = d.device.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memoryIndex,
	})
	if err != nil {
		t.Destroy()
		return nil, errors.Wrap(err, "allocate depth memory")
	}

	if _, err = image.BindImageMemory(t.memory, 0); err != nil {
		t.Destroy()
		return nil, errors.Wrap(err, "bind depth memory")
	}

	t.view, _, err = d.device.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    image,
		ViewType: core1_0.ImageViewType2D,
		Format:   chain.depthFormat,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     core1_0.ImageAspectDepth,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	if err != nil {
		t.Destroy()
		return nil, errors.Wrap(err, "create depth image view")
	}

	if err := chain.createFramebuffers(t.view); err != nil {
		t.Destroy()
		return nil, err
	}
	t.chain = chain
	return t, nil
}

// Destroy releases the chain's framebuffers, then the depth image.
func (t *DepthTarget) Destroy() {
	if t.chain != nil {
		t.chain.destroyFramebuffers()
		t.chain = nil
	}

	if t.view != nil {
		t.view.Destroy(nil)
		t.view = nil
	}

	if t.image != nil {
		t.image.Destroy(nil)
		t.image = nil
	}

	if t.memory != nil {
		t.memory.Free(nil)
		t.memory = nil
	}
}
