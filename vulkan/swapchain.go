package vulkan

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"
	"github.com/vkngwrapper/extensions/khr_swapchain"

	"github.com/vkngwrapper/framepipe/driver"
)

type swapchainSupportDetails struct {
	Capabilities *khr_surface.SurfaceCapabilities
	Formats      []khr_surface.SurfaceFormat
	PresentModes []khr_surface.PresentMode
}

func querySwapchainSupport(surface khr_surface.Surface, device core1_0.PhysicalDevice) (swapchainSupportDetails, error) {
	var details swapchainSupportDetails
	var err error

	details.Capabilities, _, err = surface.PhysicalDeviceSurfaceCapabilities(device)
	if err != nil {
		return details, err
	}

	details.Formats, _, err = surface.PhysicalDeviceSurfaceFormats(device)
	if err != nil {
		return details, err
	}

	details.PresentModes, _, err = surface.PhysicalDeviceSurfacePresentModes(device)
	return details, err
}

// Swapchain owns the VkSwapchainKHR together with one image view and one
// framebuffer per image, and the render pass they were built for. A chain
// created with depth gets its framebuffers only once a DepthTarget is
// attached, since every framebuffer references the depth view.
type Swapchain struct {
	dev       *Device
	swapchain khr_swapchain.Swapchain

	images       []core1_0.Image
	imageViews   []core1_0.ImageView
	framebuffers []core1_0.Framebuffer
	renderPass   core1_0.RenderPass

	imageFormat core1_0.Format
	extent      core1_0.Extent2D

	depth       bool
	depthFormat core1_0.Format
}

// CreateSwapchain builds a chain for desc.Surface. The surface may dictate
// a different extent; the image count is clamped to the surface limits.
func (d *Device) CreateSwapchain(desc driver.SwapchainDesc) (driver.Swapchain, error) {
	surface, ok := desc.Surface.(*Surface)
	if !ok || surface.surface == nil {
		return nil, errors.Newf("create swapchain: not a live vulkan surface (%T)", desc.Surface)
	}

	support, err := querySwapchainSupport(surface.surface, d.adapter.physicalDevice)
	if err != nil {
		return nil, errors.Wrap(err, "query swapchain support")
	}
	if len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		return nil, errors.New("surface offers no formats or present modes")
	}

	surfaceFormat := chooseSurfaceFormat(support.Formats, desc.Format)
	presentMode := choosePresentMode(support.PresentModes)
	extent := chooseExtent(support.Capabilities, desc.Extent)
	if extent.Width == 0 || extent.Height == 0 {
		return nil, errors.Newf("surface extent %dx%d has no area", extent.Width, extent.Height)
	}
	imageCount := chooseImageCount(support.Capabilities, desc.ImageCount)

	sharingMode := core1_0.SharingModeExclusive
	var queueFamilyIndices []int

	indices := d.adapter.indices
	if *indices.GraphicsFamily != *indices.PresentFamily {
		sharingMode = core1_0.SharingModeConcurrent
		queueFamilyIndices = append(queueFamilyIndices, *indices.GraphicsFamily, *indices.PresentFamily)
	}

	swapchain, _, err := d.swapchainExtension.CreateSwapchain(d.device, nil, khr_swapchain.SwapchainCreateInfo{
		Surface: surface.surface,

		MinImageCount:    imageCount,
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: queueFamilyIndices,

		PreTransform:   support.Capabilities.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    presentMode,
		Clipped:        true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create swapchain")
	}

	s := &Swapchain{
		dev:         d,
		swapchain:   swapchain,
		imageFormat: surfaceFormat.Format,
		extent:      extent,
		depth:       desc.Depth,
	}
	if s.depth {
		s.depthFormat, err = d.findDepthFormat()
		if err != nil {
			s.Destroy()
			return nil, err
		}
	}
	if err := s.build(); err != nil {
		s.Destroy()
		return nil, err
	}

	driver.Logger().Debug("vulkan swapchain", "images", len(s.images), "presentMode", presentMode, "extent", s.Extent().String())
	return s, nil
}

func (s *Swapchain) build() error {
	images, _, err := s.swapchain.SwapchainImages()
	if err != nil {
		return errors.Wrap(err, "swapchain images")
	}
	s.images = images

	for _, image := range images {
		view, _, err := s.dev.device.CreateImageView(nil, core1_0.ImageViewCreateInfo{
			Image:    image,
			ViewType: core1_0.ImageViewType2D,
			Format:   s.imageFormat,
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:     core1_0.ImageAspectColor,
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		})
		if err != nil {
			return errors.Wrap(err, "create swapchain image view")
		}
		s.imageViews = append(s.imageViews, view)
	}

	if err := s.createRenderPass(); err != nil {
		return err
	}

	if s.depth {
		return nil
	}
	return s.createFramebuffers(nil)
}

func (s *Swapchain) createFramebuffers(depthView core1_0.ImageView) error {
	for _, imageView := range s.imageViews {
		attachments := []core1_0.ImageView{imageView}
		if depthView != nil {
			attachments = append(attachments, depthView)
		}

		framebuffer, _, err := s.dev.device.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
			RenderPass:  s.renderPass,
			Layers:      1,
			Attachments: attachments,
			Width:       s.extent.Width,
			Height:      s.extent.Height,
		})
		if err != nil {
			s.destroyFramebuffers()
			return errors.Wrap(err, "create framebuffer")
		}
		s.framebuffers = append(s.framebuffers, framebuffer)
	}
	return nil
}

func (s *Swapchain) destroyFramebuffers() {
	for _, framebuffer := range s.framebuffers {
		framebuffer.Destroy(nil)
	}
	s.framebuffers = nil
}

// createRenderPass builds a single-subpass pass that clears the color
// attachment, and the depth attachment when the chain has one. Color layout
// changes into and out of the pass are recorded as explicit barriers by the
// command buffer, so the color attachment stays in color-attachment layout
// across the pass.
func (s *Swapchain) createRenderPass() error {
	info := core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         s.imageFormat,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutColorAttachmentOptimal,
				FinalLayout:    core1_0.ImageLayoutColorAttachmentOptimal,
			},
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 0,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
			},
		},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass: core1_0.SubpassExternal,
				DstSubpass: 0,

				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				SrcAccessMask: 0,

				DstStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				DstAccessMask: core1_0.AccessColorAttachmentWrite,
			},
		},
	}

	if s.depth {
		info.Attachments = append(info.Attachments, core1_0.AttachmentDescription{
			Format:         s.depthFormat,
			Samples:        core1_0.Samples1,
			LoadOp:         core1_0.AttachmentLoadOpClear,
			StoreOp:        core1_0.AttachmentStoreOpDontCare,
			StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
			StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
			InitialLayout:  core1_0.ImageLayoutUndefined,
			FinalLayout:    core1_0.ImageLayoutDepthStencilAttachmentOptimal,
		})
		info.Subpasses[0].DepthStencilAttachment = &core1_0.AttachmentReference{
			Attachment: 1,
			Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
		}

		dependency := &info.SubpassDependencies[0]
		dependency.SrcStageMask |= core1_0.PipelineStageEarlyFragmentTests
		dependency.DstStageMask |= core1_0.PipelineStageEarlyFragmentTests
		dependency.DstAccessMask |= core1_0.AccessDepthStencilAttachmentWrite
	}

	renderPass, _, err := s.dev.device.CreateRenderPass(nil, info)
	if err != nil {
		return errors.Wrap(err, "create render pass")
	}
	s.renderPass = renderPass
	return nil
}

func (s *Swapchain) ImageCount() int { return len(s.images) }

func (s *Swapchain) Format() driver.Format { return fromVkFormat(s.imageFormat) }

func (s *Swapchain) Extent() driver.Extent {
	return driver.Extent{Width: s.extent.Width, Height: s.extent.Height}
}

// Acquire returns the index of the next presentable image. signal is
// signaled once the presentation engine released the image. An out-of-date
// chain returns driver.ErrOutOfDate; a suboptimal one still hands out the
// image and is reported on Present.
func (s *Swapchain) Acquire(signal driver.Semaphore, timeout time.Duration) (int, error) {
	semaphore, ok := signal.(*Semaphore)
	if !ok {
		return 0, errors.Newf("acquire: not a vulkan semaphore (%T)", signal)
	}

	imageIndex, res, err := s.swapchain.AcquireNextImage(timeout, semaphore.semaphore, nil)
	switch {
	case res == khr_swapchain.VKErrorOutOfDate:
		return 0, errors.Wrap(driver.ErrOutOfDate, "acquire next image")
	case res == core1_0.VKTimeout:
		return 0, errors.Wrapf(driver.ErrWaitTimeout, "acquire next image after %s", timeout)
	case err != nil:
		return 0, errors.Wrap(err, "acquire next image")
	}
	return imageIndex, nil
}

// Present queues image for presentation once wait is signaled.
func (s *Swapchain) Present(image int, wait driver.Semaphore) error {
	info := khr_swapchain.PresentInfo{
		Swapchains:   []khr_swapchain.Swapchain{s.swapchain},
		ImageIndices: []int{image},
	}
	if wait != nil {
		info.WaitSemaphores = []core1_0.Semaphore{wait.(*Semaphore).semaphore}
	}

	res, err := s.dev.swapchainExtension.QueuePresent(s.dev.presentQueue.queue, info)
	switch {
	case res == khr_swapchain.VKErrorOutOfDate:
		return errors.Wrap(driver.ErrOutOfDate, "present")
	case res == khr_swapchain.VKSuboptimal:
		return errors.Wrap(driver.ErrSuboptimal, "present")
	case err != nil:
		return errors.Wrap(err, "present")
	}
	return nil
}

// Destroy releases framebuffers, render pass, image views and the chain.
func (s *Swapchain) Destroy() {
	s.destroyFramebuffers()

	if s.renderPass != nil {
		s.renderPass.Destroy(nil)
		s.renderPass = nil
	}

	for _, imageView := range s.imageViews {
		imageView.Destroy(nil)
	}
	s.imageViews = nil

	if s.swapchain != nil {
		s.swapchain.Destroy(nil)
		s.swapchain = nil
	}
	s.images = nil
}
