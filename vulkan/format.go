package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"

	"github.com/vkngwrapper/framepipe/driver"
)

var formats = map[driver.Format]core1_0.Format{
	driver.FormatB8G8R8A8SRGB:  core1_0.FormatB8G8R8A8SRGB,
	driver.FormatB8G8R8A8UNorm: core1_0.FormatB8G8R8A8UnsignedNormalized,
	driver.FormatR8G8B8A8SRGB:  core1_0.FormatR8G8B8A8SRGB,
	driver.FormatR8G8B8A8UNorm: core1_0.FormatR8G8B8A8UnsignedNormalized,
}

func toVkFormat(f driver.Format) core1_0.Format {
	return formats[f]
}

func fromVkFormat(f core1_0.Format) driver.Format {
	for k, v := range formats {
		if v == f {
			return k
		}
	}
	return driver.FormatUndefined
}

func toVkAttributeFormat(f driver.AttributeFormat) (core1_0.Format, error) {
	switch f {
	case driver.AttributeFloat2:
		return core1_0.FormatR32G32SignedFloat, nil
	case driver.AttributeFloat3:
		return core1_0.FormatR32G32B32SignedFloat, nil
	case driver.AttributeFloat4:
		return core1_0.FormatR32G32B32A32SignedFloat, nil
	}
	return 0, errors.Newf("unsupported vertex attribute format %d", f)
}

func toVkIndexType(t driver.IndexType) core1_0.IndexType {
	if t == driver.IndexUint32 {
		return core1_0.IndexTypeUInt32
	}
	return core1_0.IndexTypeUInt16
}

// chooseSurfaceFormat prefers want in the sRGB nonlinear color space and
// falls back to the first format the surface offers.
func chooseSurfaceFormat(available []khr_surface.SurfaceFormat, want driver.Format) khr_surface.SurfaceFormat {
	vkWant := toVkFormat(want)
	for _, format := range available {
		if format.Format == vkWant && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format
		}
	}
	for _, format := range available {
		if format.Format == core1_0.FormatB8G8R8A8SRGB && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format
		}
	}
	return available[0]
}

func choosePresentMode(available []khr_surface.PresentMode) khr_surface.PresentMode {
	for _, presentMode := range available {
		if presentMode == khr_surface.PresentModeMailbox {
			return presentMode
		}
	}

	return khr_surface.PresentModeFIFO
}

// chooseExtent uses the surface's current extent when it dictates one and
// otherwise clamps the requested extent to what the surface allows.
func chooseExtent(capabilities *khr_surface.SurfaceCapabilities, want driver.Extent) core1_0.Extent2D {
	if capabilities.CurrentExtent.Width != -1 {
		return capabilities.CurrentExtent
	}

	return core1_0.Extent2D{
		Width:  clamp(want.Width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width),
		Height: clamp(want.Height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height),
	}
}

// chooseImageCount clamps want to the surface limits. A MaxImageCount of 0
// means no upper limit.
func chooseImageCount(capabilities *khr_surface.SurfaceCapabilities, want int) int {
	count := want
	if count < capabilities.MinImageCount {
		count = capabilities.MinImageCount
	}
	if capabilities.MaxImageCount > 0 && count > capabilities.MaxImageCount {
		count = capabilities.MaxImageCount
	}
	return count
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func queueCapabilities(flags core1_0.QueueFlags) driver.Capability {
	var caps driver.Capability
	if flags&core1_0.QueueGraphics != 0 {
		caps |= driver.CapGraphics | driver.CapTransfer
	}
	if flags&core1_0.QueueCompute != 0 {
		caps |= driver.CapCompute | driver.CapTransfer
	}
	if flags&core1_0.QueueTransfer != 0 {
		caps |= driver.CapTransfer
	}
	return caps
}
