package frame

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkngwrapper/framepipe/driver"
	"github.com/vkngwrapper/framepipe/driver/drivertest"
)

func TestSelectDeviceSkipsSoftwareAndIntegrated(t *testing.T) {
	software := drivertest.HardwareAdapter("warp")
	software.Desc.Software = true
	integrated := drivertest.HardwareAdapter("igpu")
	integrated.Desc.Discrete = false
	discrete := drivertest.HardwareAdapter("dgpu")
	inst := drivertest.NewInstance(software, integrated, discrete)

	dev, info, err := SelectDevice(inst, driver.Requirements{RequireDiscrete: true})
	require.NoError(t, err)
	assert.Equal(t, "dgpu", info.Name)
	assert.Same(t, discrete.Device, dev)

	created := inst.Log.Filter(drivertest.OpCreate)
	require.Len(t, created, 1)
	assert.Equal(t, "device:dgpu", created[0].Object)
}

func TestSelectDeviceFirstMatchWins(t *testing.T) {
	first := drivertest.HardwareAdapter("first")
	first.Desc.Discrete = false
	second := drivertest.HardwareAdapter("second")
	inst := drivertest.NewInstance(first, second)

	_, info, err := SelectDevice(inst, driver.Requirements{})
	require.NoError(t, err)
	assert.Equal(t, "first", info.Name)
}

func TestSelectDeviceFallsThroughCreationFailure(t *testing.T) {
	broken := drivertest.HardwareAdapter("broken")
	broken.Fail = errors.New("feature level unsupported")
	good := drivertest.HardwareAdapter("good")
	inst := drivertest.NewInstance(broken, good)

	_, info, err := SelectDevice(inst, driver.Requirements{})
	require.NoError(t, err)
	assert.Equal(t, "good", info.Name)
	assert.Equal(t, 2, inst.Log.Count(drivertest.OpCreate))
}

func TestSelectDeviceMissingRequirements(t *testing.T) {
	a := drivertest.HardwareAdapter("a")
	a.Desc.Capabilities = driver.CapGraphics
	b := drivertest.HardwareAdapter("b")
	inst := drivertest.NewInstance(a, b)

	_, info, err := SelectDevice(inst, driver.Requirements{
		Capabilities: driver.CapGraphics | driver.CapPresent,
		Extensions:   []string{"VK_KHR_swapchain"},
	})
	require.NoError(t, err)
	assert.Equal(t, "b", info.Name)

	_, _, err = SelectDevice(inst, driver.Requirements{Extensions: []string{"VK_KHR_ray_query"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, driver.ErrNoSuitableAdapter))
}

func TestSelectDeviceNoneSuitable(t *testing.T) {
	software := drivertest.HardwareAdapter("llvmpipe")
	software.Desc.Software = true
	broken := drivertest.HardwareAdapter("broken")
	broken.Fail = errors.New("out of memory")
	inst := drivertest.NewInstance(software, broken)

	dev, _, err := SelectDevice(inst, driver.Requirements{})
	require.Error(t, err)
	assert.Nil(t, dev)
	assert.True(t, errors.Is(err, driver.ErrNoSuitableAdapter))
	assert.Contains(t, err.Error(), "2 adapter(s) enumerated")
}

func TestRejectReason(t *testing.T) {
	info := drivertest.HardwareAdapter("x").Desc
	assert.Empty(t, rejectReason(info, driver.Requirements{RequireDiscrete: true}))

	info.Capabilities = driver.CapGraphics
	assert.Equal(t, "missing capabilities Present", rejectReason(info, driver.Requirements{Capabilities: driver.CapGraphics | driver.CapPresent}))

	info.Extensions = nil
	assert.Equal(t, "missing extensions a, b", rejectReason(info, driver.Requirements{Extensions: []string{"a", "b"}}))
}
