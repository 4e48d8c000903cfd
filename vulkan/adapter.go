package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_portability_subset"

	"github.com/vkngwrapper/framepipe/driver"
)

type queueFamilyIndices struct {
	GraphicsFamily *int
	PresentFamily  *int
}

func (i *queueFamilyIndices) IsComplete() bool {
	return i.GraphicsFamily != nil && i.PresentFamily != nil
}

// Adapter is a physical device as seen through the instance's surface.
type Adapter struct {
	inst           *Instance
	physicalDevice core1_0.PhysicalDevice
	info           driver.AdapterInfo
	indices        queueFamilyIndices
	extensions     map[string]bool
}

func newAdapter(inst *Instance, pd core1_0.PhysicalDevice) (*Adapter, error) {
	properties, err := pd.Properties()
	if err != nil {
		return nil, errors.Wrap(err, "physical device properties")
	}

	a := &Adapter{
		inst:           inst,
		physicalDevice: pd,
		extensions:     map[string]bool{},
		info: driver.AdapterInfo{
			Name:     properties.DriverName,
			Software: properties.DriverType == core1_0.PhysicalDeviceTypeCPU,
			Discrete: properties.DriverType == core1_0.PhysicalDeviceTypeDiscreteGPU,
			APIVersion: driver.Version{
				Major: int(properties.APIVersion.Major()),
				Minor: int(properties.APIVersion.Minor()),
				Patch: int(properties.APIVersion.Patch()),
			},
		},
	}

	extensions, _, err := pd.EnumerateDeviceExtensionProperties()
	if err != nil {
		return nil, errors.Wrapf(err, "device extensions of %s", a.info.Name)
	}
	for name := range extensions {
		a.extensions[name] = true
	}
	a.info.Extensions = sortedKeys(extensions)

	if err := a.findQueueFamilies(); err != nil {
		return nil, err
	}
	if a.indices.PresentFamily != nil {
		a.info.Capabilities |= driver.CapPresent
	}
	if a.swapchainAdequate() {
		a.info.Capabilities |= driver.CapSwapchain
	}
	return a, nil
}

// findQueueFamilies picks the first graphics family and the first family
// that can present to the surface, preferring one family that does both.
func (a *Adapter) findQueueFamilies() error {
	surface := a.inst.surface.surface
	for queueFamilyIdx, queueFamily := range a.physicalDevice.QueueFamilyProperties() {
		a.info.Capabilities |= queueCapabilities(queueFamily.QueueFlags)

		graphics := queueFamily.QueueFlags&core1_0.QueueGraphics != 0
		supported, _, err := surface.PhysicalDeviceSurfaceSupport(a.physicalDevice, queueFamilyIdx)
		if err != nil {
			return errors.Wrapf(err, "surface support of %s family %d", a.info.Name, queueFamilyIdx)
		}

		if graphics && supported {
			idx := queueFamilyIdx
			a.indices.GraphicsFamily = &idx
			a.indices.PresentFamily = &idx
			continue
		}
		if graphics && a.indices.GraphicsFamily == nil {
			idx := queueFamilyIdx
			a.indices.GraphicsFamily = &idx
		}
		if supported && a.indices.PresentFamily == nil {
			idx := queueFamilyIdx
			a.indices.PresentFamily = &idx
		}
	}
	return nil
}

func (a *Adapter) swapchainAdequate() bool {
	for _, ext := range requiredDeviceExtensions {
		if !a.extensions[ext] {
			return false
		}
	}

	support, err := querySwapchainSupport(a.inst.surface.surface, a.physicalDevice)
	if err != nil {
		driver.Logger().Warn("swapchain support query failed", "adapter", a.info.Name, "err", err)
		return false
	}
	return len(support.Formats) > 0 && len(support.PresentModes) > 0
}

func (a *Adapter) Info() driver.AdapterInfo {
	return a.info
}

// CreateDevice opens a logical device with one graphics and one present
// queue, the swapchain extension, and req's extensions.
func (a *Adapter) CreateDevice(req driver.Requirements) (driver.Device, error) {
	if !a.indices.IsComplete() {
		return nil, errors.Newf("%s has no graphics and present queue families", a.info.Name)
	}

	uniqueQueueFamilies := []int{*a.indices.GraphicsFamily}
	if uniqueQueueFamilies[0] != *a.indices.PresentFamily {
		uniqueQueueFamilies = append(uniqueQueueFamilies, *a.indices.PresentFamily)
	}

	var queueFamilyOptions []core1_0.DeviceQueueCreateInfo
	queuePriority := float32(1.0)
	for _, queueFamily := range uniqueQueueFamilies {
		queueFamilyOptions = append(queueFamilyOptions, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: queueFamily,
			QueuePriorities:  []float32{queuePriority},
		})
	}

	extensionNames := append([]string{}, requiredDeviceExtensions...)
	for _, ext := range req.Extensions {
		if !contains(extensionNames, ext) {
			extensionNames = append(extensionNames, ext)
		}
	}

	// Makes this compatible with vulkan portability, necessary to run on mobile & mac
	if a.extensions[khr_portability_subset.ExtensionName] {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	device, _, err := a.physicalDevice.CreateDevice(nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos:      queueFamilyOptions,
		EnabledFeatures:       &core1_0.PhysicalDeviceFeatures{},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create logical device on %s", a.info.Name)
	}

	return newDevice(a, device)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
