package frame

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkngwrapper/framepipe/driver"
	"github.com/vkngwrapper/framepipe/driver/drivertest"
)

type syncFixture struct {
	dev   *drivertest.Device
	chain driver.Swapchain
	sync  *Synchronizer
	sub   *Submitter
}

func newSyncFixture(t *testing.T, frames int, timeout time.Duration) *syncFixture {
	inst := drivertest.NewInstance()
	dev := drivertest.NewDevice()
	chain, err := dev.CreateSwapchain(driver.SwapchainDesc{
		Surface:    inst.Surface(),
		ImageCount: 3,
		Extent:     driver.Extent{Width: 64, Height: 64},
	})
	require.NoError(t, err)
	s, err := NewSynchronizer(dev, frames, 0, timeout)
	require.NoError(t, err)
	return &syncFixture{dev: dev, chain: chain, sync: s, sub: NewSubmitter(s, driver.Color{})}
}

// submit runs one empty frame on slot i.
func (f *syncFixture) submit(t *testing.T, i, image int) {
	require.NoError(t, f.sync.BeginFrame(i))
	require.NoError(t, f.sync.ClaimImage(image, i))
	slot := f.sync.Slot(i)
	require.NoError(t, slot.Commands.Begin(f.chain, image))
	require.NoError(t, slot.Commands.End())
	_, err := f.sub.Submit(f.dev.Queue(driver.QueueGraphics), slot, slot.Commands)
	require.NoError(t, err)
	require.NoError(t, f.sync.Presented(i))
}

func TestSynchronizerBeginFrameWaitsForGPU(t *testing.T) {
	f := newSyncFixture(t, 1, time.Second)
	f.dev.GPULatency = 30 * time.Millisecond

	f.submit(t, 0, 0)
	assert.Equal(t, uint64(1), f.sync.Slot(0).Value)

	start := time.Now()
	require.NoError(t, f.sync.BeginFrame(0))
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)

	completed, err := f.sync.Slot(0).Fence.Completed()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, completed, uint64(1))
	assert.Equal(t, SlotRecording, f.sync.Slot(0).State)
}

func TestSynchronizerTimeoutIsDeviceLost(t *testing.T) {
	f := newSyncFixture(t, 1, 20*time.Millisecond)
	f.dev.Hang = true

	f.submit(t, 0, 0)
	err := f.sync.BeginFrame(0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, driver.ErrDeviceLost))
	assert.True(t, errors.Is(err, driver.ErrWaitTimeout))

	err = f.sync.Release()
	require.Error(t, err)
	assert.Zero(t, f.dev.Log.Count(drivertest.OpDestroy))
}

func TestSynchronizerSlotStates(t *testing.T) {
	f := newSyncFixture(t, 2, time.Second)

	assert.Error(t, f.sync.ClaimImage(0, 0))
	assert.Error(t, f.sync.EndFrame(0, 1))
	assert.Error(t, f.sync.Presented(0))
	assert.Error(t, f.sync.BeginFrame(2))

	require.NoError(t, f.sync.BeginFrame(0))
	assert.Error(t, f.sync.BeginFrame(0))
	assert.Error(t, f.sync.EndFrame(0, 0))
	require.NoError(t, f.sync.EndFrame(0, 1))
	assert.Equal(t, SlotSubmitted, f.sync.Slot(0).State)
	assert.Error(t, f.sync.BeginFrame(0))
	require.NoError(t, f.sync.Presented(0))
	assert.Equal(t, "present-pending", f.sync.Slot(0).State.String())

	require.NoError(t, f.sync.BeginFrame(1))
	require.NoError(t, f.sync.ClaimImage(2, 1))
	require.NoError(t, f.sync.Rewind(1))
	assert.Equal(t, SlotIdle, f.sync.Slot(1).State)
	assert.False(t, f.sync.owners[2].valid)
}

func TestSynchronizerFenceValuesIncrease(t *testing.T) {
	f := newSyncFixture(t, 2, time.Second)
	for frame := 0; frame < 6; frame++ {
		f.submit(t, frame%2, frame%3)
	}
	assert.Equal(t, uint64(3), f.sync.Slot(0).Value)
	assert.Equal(t, uint64(3), f.sync.Slot(1).Value)

	var last [2]uint64
	for _, c := range f.dev.Log.Filter(drivertest.OpSubmit) {
		i := 0
		if c.Object == "commands#1" {
			i = 1
		}
		assert.Greater(t, c.Value, last[i])
		last[i] = c.Value
	}
}

func TestSynchronizerClaimImageWaitsForOwner(t *testing.T) {
	f := newSyncFixture(t, 2, time.Second)
	f.dev.GPULatency = 50 * time.Millisecond

	f.submit(t, 0, 1)
	f.dev.Log.Reset()

	require.NoError(t, f.sync.BeginFrame(1))
	require.NoError(t, f.sync.ClaimImage(1, 1))

	waits := f.dev.Log.Filter(drivertest.OpWait)
	require.Len(t, waits, 1)
	assert.Equal(t, f.sync.Slot(0).Fence.(*drivertest.Fence).ID(), waits[0].Object)
	assert.Equal(t, uint64(1), waits[0].Value)
}

func TestSynchronizerDrainAndRelease(t *testing.T) {
	f := newSyncFixture(t, 2, time.Second)
	f.dev.GPULatency = 5 * time.Millisecond
	f.submit(t, 0, 0)
	f.submit(t, 1, 1)

	require.NoError(t, f.sync.BeginFrame(0))
	assert.True(t, errors.Is(f.sync.Drain(), driver.ErrNotDrained))
	require.NoError(t, f.sync.Rewind(0))

	require.NoError(t, f.sync.Release())
	require.NoError(t, f.sync.Release())
	for _, fence := range f.dev.Fences() {
		assert.False(t, fence.DestroyedPending, fence.ID())
		wait := f.dev.Log.Index(drivertest.OpWait, fence.ID(), 0)
		destroy := f.dev.Log.Index(drivertest.OpDestroy, fence.ID(), 0)
		require.NotEqual(t, -1, wait)
		assert.Less(t, wait, destroy)
	}
	assert.Error(t, f.sync.BeginFrame(0))
}

type failingCommandsDevice struct {
	*drivertest.Device
}

func (failingCommandsDevice) CreateCommandBuffer() (driver.CommandBuffer, error) {
	return nil, errors.New("out of command buffers")
}

func TestNewSynchronizerReleasesPartialSlot(t *testing.T) {
	dev := drivertest.NewDevice()

	var err error
	assert.NotPanics(t, func() {
		_, err = NewSynchronizer(failingCommandsDevice{dev}, 2, 0, time.Second)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of command buffers")

	for _, id := range []string{"fence#0", "semaphore#0", "semaphore#1"} {
		assert.NotEqual(t, -1, dev.Log.Index(drivertest.OpDestroy, id, 0), id)
	}
	assert.Len(t, dev.Fences(), 1)
}
