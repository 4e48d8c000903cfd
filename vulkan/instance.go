// Package vulkan implements package driver on top of vkngwrapper, rendering
// into an SDL2 window.
package vulkan

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/ext_debug_utils"
	"github.com/vkngwrapper/extensions/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/khr_surface"
	"github.com/vkngwrapper/extensions/khr_swapchain"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2"

	"github.com/vkngwrapper/framepipe/driver"
)

// DefaultValidationLayers are enabled when Options.EnableValidation is set
// and Options.ValidationLayers is empty.
var DefaultValidationLayers = []string{"VK_LAYER_KHRONOS_validation"}

// Options configures instance creation.
type Options struct {
	AppName          string
	EnableValidation bool
	ValidationLayers []string
}

// Instance is a driver.Instance bound to one SDL window surface.
type Instance struct {
	loader         core.Loader
	instance       core1_0.Instance
	debugMessenger ext_debug_utils.DebugUtilsMessenger
	surface        *Surface
}

// Surface wraps the window surface of an Instance.
type Surface struct {
	surface khr_surface.Surface
}

func (s *Surface) Destroy() {
	if s.surface != nil {
		s.surface.Destroy(nil)
		s.surface = nil
	}
}

// NewInstance creates a Vulkan instance with the extensions window needs,
// optionally with validation, and a presentation surface for window.
func NewInstance(window *sdl.Window, opts Options) (inst *Instance, err error) {
	inst = &Instance{}
	defer func() {
		if err != nil {
			inst.Destroy()
			inst = nil
		}
	}()

	inst.loader, err = core.CreateLoaderFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return inst, errors.Wrap(err, "create vulkan loader")
	}

	if err = inst.createInstance(window, opts); err != nil {
		return inst, err
	}

	if opts.EnableValidation {
		debugLoader := ext_debug_utils.CreateExtensionFromInstance(inst.instance)
		inst.debugMessenger, _, err = debugLoader.CreateDebugUtilsMessenger(inst.instance, nil, debugMessengerOptions())
		if err != nil {
			return inst, errors.Wrap(err, "create debug messenger")
		}
	}

	surfaceLoader := khr_surface.CreateExtensionFromInstance(inst.instance)
	surface, err := vkng_sdl2.CreateSurface(inst.instance, surfaceLoader, window)
	if err != nil {
		return inst, errors.Wrap(err, "create window surface")
	}
	inst.surface = &Surface{surface: surface}

	return inst, nil
}

func (i *Instance) createInstance(window *sdl.Window, opts Options) error {
	appName := opts.AppName
	if appName == "" {
		appName = "framepipe"
	}
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    appName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "framepipe",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	extensions, _, err := i.loader.AvailableExtensions()
	if err != nil {
		return errors.Wrap(err, "enumerate instance extensions")
	}

	for _, ext := range window.VulkanGetInstanceExtensions() {
		if _, hasExt := extensions[ext]; !hasExt {
			return errors.Newf("create instance: missing window extension %s", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	if opts.EnableValidation {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
	}

	if _, enumerationSupported := extensions[khr_portability_enumeration.ExtensionName]; enumerationSupported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if opts.EnableValidation {
		layers, _, err := i.loader.AvailableLayers()
		if err != nil {
			return errors.Wrap(err, "enumerate instance layers")
		}

		wanted := opts.ValidationLayers
		if len(wanted) == 0 {
			wanted = DefaultValidationLayers
		}
		for _, layer := range wanted {
			if _, hasValidation := layers[layer]; !hasValidation {
				return errors.Newf("create instance: validation layer %s not available- install the LunarG Vulkan SDK", layer)
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}

		instanceOptions.Next = debugMessengerOptions()
	}

	i.instance, _, err = i.loader.CreateInstance(nil, instanceOptions)
	if err != nil {
		return errors.Wrap(err, "create instance")
	}
	driver.Logger().Info("vulkan instance created", "app", appName, "validation", opts.EnableValidation)
	return nil
}

func debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    logDebug,
	}
}

func logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	log := driver.Logger()
	if severity&ext_debug_utils.SeverityError != 0 {
		log.Error("vulkan validation", "type", msgType.String(), "message", data.Message)
	} else {
		log.Warn("vulkan validation", "type", msgType.String(), "message", data.Message)
	}
	return false
}

// Surface returns the window surface.
func (i *Instance) Surface() driver.Surface {
	return i.surface
}

// Adapters enumerates physical devices in driver order.
func (i *Instance) Adapters() ([]driver.Adapter, error) {
	physicalDevices, _, err := i.instance.EnumeratePhysicalDevices()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate physical devices")
	}

	adapters := make([]driver.Adapter, 0, len(physicalDevices))
	for _, pd := range physicalDevices {
		adapter, err := newAdapter(i, pd)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, adapter)
	}
	return adapters, nil
}

// Destroy releases the surface, the debug messenger and the instance.
// Devices must be destroyed first.
func (i *Instance) Destroy() {
	if i.surface != nil {
		i.surface.Destroy()
		i.surface = nil
	}

	if i.debugMessenger != nil {
		i.debugMessenger.Destroy(nil)
		i.debugMessenger = nil
	}

	if i.instance != nil {
		i.instance.Destroy(nil)
		i.instance = nil
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var requiredDeviceExtensions = []string{khr_swapchain.ExtensionName}
