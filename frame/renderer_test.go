package frame

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkngwrapper/framepipe/driver"
	"github.com/vkngwrapper/framepipe/driver/drivertest"
)

func TestNewRendererValidatesConfig(t *testing.T) {
	inst := drivertest.NewInstance(drivertest.HardwareAdapter("gpu"))

	for name, mutate := range map[string]func(*Config){
		"single image":     func(c *Config) { c.ImageCount = 1 },
		"frames > images":  func(c *Config) { c.ImageCount, c.FramesInFlight = 2, 3 },
		"zero extent":      func(c *Config) { c.Extent = driver.Extent{} },
		"no geometry":      func(c *Config) { c.Geometry = nil },
		"no shaders":       func(c *Config) { c.Shaders = driver.ShaderSet{} },
		"update w/o block": func(c *Config) { c.Update = func(FrameInfo) ([]byte, error) { return nil, nil } },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			mutate(&cfg)
			_, err := NewRenderer(inst, cfg)
			assert.Error(t, err)
		})
	}
	assert.Zero(t, inst.Log.Count(drivertest.OpCreate))
}

func TestNewRendererNoAdapter(t *testing.T) {
	software := drivertest.HardwareAdapter("warp")
	software.Desc.Software = true
	_, err := NewRenderer(drivertest.NewInstance(software), testConfig())
	require.Error(t, err)
	assert.True(t, errors.Is(err, driver.ErrNoSuitableAdapter))
}

func TestNewRendererUploadsGeometryOnce(t *testing.T) {
	dev := drivertest.NewDevice()
	cfg := testConfig()
	cfg.Geometry = testGeometry{indexed: true}
	r, _ := newTestRenderer(t, dev, cfg)
	defer r.Close()

	uploads := dev.Log.Filter(drivertest.OpUpload)
	require.Len(t, uploads, 2)
	assert.Equal(t, uint64(32), uploads[0].Value)
	assert.Equal(t, uint64(12), uploads[1].Value)
	assert.Equal(t, []driver.DrawCall{{Indexed: true, Count: 6, InstanceCount: 1}}, r.draws)

	for i := 0; i < 4; i++ {
		_, err := r.RenderFrame()
		require.NoError(t, err)
	}
	assert.Len(t, dev.Log.Filter(drivertest.OpUpload), 2)
}

func TestRendererSteadyState(t *testing.T) {
	dev := drivertest.NewDevice()
	dev.GPULatency = time.Millisecond
	r, _ := newTestRenderer(t, dev, testConfig())
	assert.Equal(t, "gpu", r.Adapter().Name)

	for i := 0; i < 10; i++ {
		rendered, err := r.RenderFrame()
		require.NoError(t, err)
		require.True(t, rendered)
	}

	var images []uint64
	for _, c := range dev.Log.Filter(drivertest.OpAcquire) {
		images = append(images, c.Value)
	}
	assert.Equal(t, []uint64{0, 1, 2, 0, 1, 2, 0, 1, 2, 0}, images)
	assert.Len(t, dev.Log.Filter(drivertest.OpSubmit), 10)
	assert.Len(t, dev.Log.Filter(drivertest.OpPresent), 10)
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2, 0, 1, 2, 0}, dev.Swapchains()[0].Presented)

	stats := r.Stats()
	assert.Equal(t, uint64(10), stats.Frames)
	assert.Equal(t, 0, stats.LastImage)

	// Slot 0 rendered frames 0, 3, 6 and 9.
	assert.Equal(t, uint64(4), r.sync.Slot(0).Value)
	require.NoError(t, r.Close())
	assert.Equal(t, StateStopped, r.State())
}

func TestRendererFewerFramesThanImages(t *testing.T) {
	dev := drivertest.NewDevice()
	dev.GPULatency = time.Millisecond
	cfg := testConfig()
	cfg.FramesInFlight = 2
	r, _ := newTestRenderer(t, dev, cfg)
	defer r.Close()

	for i := 0; i < 7; i++ {
		_, err := r.RenderFrame()
		require.NoError(t, err)
	}
	var objects []string
	for _, c := range dev.Log.Filter(drivertest.OpSubmit) {
		objects = append(objects, c.Object)
	}
	assert.Equal(t, []string{"commands#0", "commands#1", "commands#0", "commands#1", "commands#0", "commands#1", "commands#0"}, objects)
}

func TestRendererSuspendOnZeroExtent(t *testing.T) {
	dev := drivertest.NewDevice()
	r, _ := newTestRenderer(t, dev, testConfig())
	defer r.Close()

	_, err := r.RenderFrame()
	require.NoError(t, err)

	require.NoError(t, r.Resize(driver.Extent{Width: 800, Height: 0}))
	assert.True(t, r.Suspended())
	for i := 0; i < 3; i++ {
		rendered, err := r.RenderFrame()
		require.NoError(t, err)
		assert.False(t, rendered)
	}
	assert.Len(t, dev.Log.Filter(drivertest.OpAcquire), 1)
	assert.Equal(t, uint64(3), r.Stats().Skipped)
	assert.Len(t, dev.Swapchains(), 1)

	require.NoError(t, r.Resize(driver.Extent{Width: 800, Height: 600}))
	assert.False(t, r.Suspended())
	assert.Len(t, dev.Swapchains(), 1)

	require.NoError(t, r.Resize(driver.Extent{Width: 1280, Height: 720}))
	chains := dev.Swapchains()
	require.Len(t, chains, 2)
	assert.True(t, chains[0].Destroyed())
	assert.Equal(t, driver.Extent{Width: 1280, Height: 720}, r.Swapchain().Extent())
	assert.Equal(t, uint64(1), r.Stats().Recreated)

	rendered, err := r.RenderFrame()
	require.NoError(t, err)
	assert.True(t, rendered)
}

func TestRendererResizeRebuildsPipeline(t *testing.T) {
	dev := drivertest.NewDevice()
	dev.GPULatency = 2 * time.Millisecond
	r, _ := newTestRenderer(t, dev, testConfig())
	defer r.Close()

	for i := 0; i < 3; i++ {
		_, err := r.RenderFrame()
		require.NoError(t, err)
	}
	require.NoError(t, r.Resize(driver.Extent{Width: 1024, Height: 768}))
	require.NoError(t, r.Resize(driver.Extent{Width: 1024, Height: 768}))

	calls := dev.Log.Calls()
	destroyOld := dev.Log.Index(drivertest.OpDestroy, "swapchain#0", 0)
	require.NotEqual(t, -1, destroyOld)
	for _, fence := range dev.Fences() {
		// Every in-flight frame drained before the old chain went away.
		last := -1
		for i, c := range calls[:destroyOld] {
			if c.Op == drivertest.OpWait && c.Object == fence.ID() {
				last = i
			}
		}
		assert.NotEqual(t, -1, last, fence.ID())
	}
	assert.Less(t, dev.Log.Index(drivertest.OpDestroy, "pipeline#0", 0), destroyOld)
	assert.Greater(t, dev.Log.Index(drivertest.OpCreate, "pipeline#1", 0), dev.Log.Index(drivertest.OpCreate, "swapchain#1", 0))
	assert.Len(t, dev.Swapchains(), 2)
	assert.Equal(t, 3, r.Swapchain().ImageCount())
}

func TestRendererOutOfDateAcquire(t *testing.T) {
	dev := drivertest.NewDevice()
	dev.AcquireErrs = []error{nil, errors.Wrap(driver.ErrOutOfDate, "acquire")}
	r, _ := newTestRenderer(t, dev, testConfig())
	defer r.Close()

	rendered, err := r.RenderFrame()
	require.NoError(t, err)
	assert.True(t, rendered)

	rendered, err = r.RenderFrame()
	require.NoError(t, err)
	assert.False(t, rendered)
	assert.Equal(t, SlotIdle, r.sync.Slot(1).State)
	assert.Len(t, dev.Log.Filter(drivertest.OpSubmit), 1)
	assert.Len(t, dev.Swapchains(), 2)
	assert.Equal(t, uint64(1), r.Stats().Recreated)

	rendered, err = r.RenderFrame()
	require.NoError(t, err)
	assert.True(t, rendered)
	assert.Equal(t, []int{0}, dev.Swapchains()[1].Presented)
}

func TestRendererSuboptimalPresent(t *testing.T) {
	dev := drivertest.NewDevice()
	dev.PresentErrs = []error{driver.ErrSuboptimal}
	r, _ := newTestRenderer(t, dev, testConfig())
	defer r.Close()

	rendered, err := r.RenderFrame()
	require.NoError(t, err)
	assert.True(t, rendered)
	assert.Equal(t, uint64(1), r.Stats().Recreated)
	assert.Len(t, dev.Swapchains(), 2)
}

func TestRendererPresentError(t *testing.T) {
	dev := drivertest.NewDevice()
	dev.PresentErrs = []error{errors.New("surface lost")}
	r, _ := newTestRenderer(t, dev, testConfig())

	_, err := r.RenderFrame()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "surface lost")
	require.NoError(t, r.Close())
}

func TestRendererUniformUpdate(t *testing.T) {
	dev := drivertest.NewDevice()
	cfg := testConfig()
	cfg.UniformSize = 64
	var infos []FrameInfo
	cfg.Update = func(info FrameInfo) ([]byte, error) {
		infos = append(infos, info)
		return []byte{byte(info.Frame), 1, 2, 3}, nil
	}
	r, _ := newTestRenderer(t, dev, cfg)
	defer r.Close()

	for i := 0; i < 4; i++ {
		_, err := r.RenderFrame()
		require.NoError(t, err)
	}
	require.Len(t, infos, 4)
	for i, info := range infos {
		assert.Equal(t, uint64(i), info.Frame)
		assert.Equal(t, i%3, info.Slot)
		assert.Equal(t, i%3, info.Image)
		assert.Equal(t, cfg.Extent, info.Extent)
	}
	assert.Zero(t, infos[0].Time)
	assert.GreaterOrEqual(t, infos[3].Time, infos[1].Time)

	u := r.sync.Slot(0).Uniform.(*drivertest.UniformBuffer)
	assert.Equal(t, 2, u.Writes)
	assert.Equal(t, byte(3), u.Data[0])
	assert.Equal(t, drivertest.CmdBindUniform, dev.CommandBuffers()[0].Ops[6])
}

func TestRendererUpdateError(t *testing.T) {
	dev := drivertest.NewDevice()
	cfg := testConfig()
	cfg.UniformSize = 16
	cfg.Update = func(FrameInfo) ([]byte, error) { return nil, errors.New("no camera") }
	r, _ := newTestRenderer(t, dev, cfg)

	_, err := r.RenderFrame()
	require.Error(t, err)
	assert.Equal(t, SlotIdle, r.sync.Slot(0).State)
	assert.Zero(t, dev.Log.Count(drivertest.OpSubmit))
	require.NoError(t, r.Close())
}

func TestRendererDeviceLost(t *testing.T) {
	dev := drivertest.NewDevice()
	dev.Hang = true
	cfg := testConfig()
	cfg.ImageCount, cfg.FramesInFlight = 2, 1
	cfg.WaitTimeout = 20 * time.Millisecond
	r, _ := newTestRenderer(t, dev, cfg)

	_, err := r.RenderFrame()
	require.NoError(t, err)
	_, err = r.RenderFrame()
	require.Error(t, err)
	assert.True(t, errors.Is(err, driver.ErrDeviceLost))

	require.Error(t, r.Close())
	assert.Equal(t, -1, dev.Log.Index(drivertest.OpDestroy, "fence#0", 0))
	assert.False(t, dev.Destroyed())
}

func TestRendererRunShutdownOrder(t *testing.T) {
	dev := drivertest.NewDevice()
	dev.GPULatency = 3 * time.Millisecond
	r, _ := newTestRenderer(t, dev, testConfig())

	events := &scriptedEvents{batches: idle(5)}
	require.NoError(t, r.Run(context.Background(), events))
	assert.Equal(t, StateStopped, r.State())
	assert.Equal(t, uint64(5), r.Stats().Frames)

	fences := dev.Fences()
	require.Len(t, fences, 3)
	calls := dev.Log.Calls()
	for _, fence := range fences {
		assert.False(t, fence.DestroyedPending, fence.ID())
		destroy := dev.Log.Index(drivertest.OpDestroy, fence.ID(), 0)
		require.NotEqual(t, -1, destroy, fence.ID())
		waited := false
		for _, c := range calls[:destroy] {
			if c.Op == drivertest.OpWait && c.Object == fence.ID() && c.Value == fence.Submitted() {
				waited = true
			}
		}
		assert.True(t, waited, "%s destroyed before its last value was waited on", fence.ID())
	}
	assert.True(t, dev.Destroyed())
	assert.Equal(t, drivertest.OpDestroy, calls[len(calls)-1].Op)
	assert.Equal(t, "device", calls[len(calls)-1].Object)

	assert.Error(t, r.Run(context.Background(), events))
	require.NoError(t, r.Close())
}

func TestRendererRunHandlesResizeEvents(t *testing.T) {
	dev := drivertest.NewDevice()
	r, _ := newTestRenderer(t, dev, testConfig())

	events := &scriptedEvents{batches: [][]Event{
		nil,
		{{Kind: EventResize, Extent: driver.Extent{}}},
		nil,
		{{Kind: EventResize, Extent: driver.Extent{Width: 640, Height: 480}}},
		nil,
	}}
	require.NoError(t, r.Run(context.Background(), events))

	stats := r.Stats()
	assert.Equal(t, uint64(3), stats.Frames)
	assert.Equal(t, uint64(2), stats.Skipped)
	assert.Equal(t, uint64(1), stats.Recreated)
	assert.Equal(t, 6, events.polls)
}

func TestRendererRunStopsOnContext(t *testing.T) {
	dev := drivertest.NewDevice()
	r, _ := newTestRenderer(t, dev, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	var polls int
	source := eventFunc(func() []Event {
		polls++
		if polls == 3 {
			cancel()
		}
		return nil
	})
	require.NoError(t, r.Run(ctx, source))
	assert.Equal(t, uint64(3), r.Stats().Frames)
	assert.Equal(t, StateStopped, r.State())
}

func TestRendererStopFromAnotherGoroutine(t *testing.T) {
	dev := drivertest.NewDevice()
	dev.GPULatency = time.Millisecond
	r, _ := newTestRenderer(t, dev, testConfig())

	go func() {
		time.Sleep(20 * time.Millisecond)
		r.Stop()
	}()
	require.NoError(t, r.Run(context.Background(), eventFunc(func() []Event { return nil })))
	assert.True(t, dev.Destroyed())
}

type eventFunc func() []Event

func (f eventFunc) Poll() []Event { return f() }

func TestRendererResizeAfterClose(t *testing.T) {
	dev := drivertest.NewDevice()
	r, _ := newTestRenderer(t, dev, testConfig())
	require.NoError(t, r.Close())

	assert.Error(t, r.Resize(driver.Extent{Width: 1024, Height: 768}))
	assert.Len(t, dev.Swapchains(), 1)
	assert.Equal(t, StateStopped, r.State())
}

func TestRendererDepthTargetFollowsSwapchain(t *testing.T) {
	dev := drivertest.NewDevice()
	cfg := testConfig()
	cfg.Depth = true
	r, _ := newTestRenderer(t, dev, cfg)

	pipeline, ok := r.pipeline.pipeline.(*drivertest.Pipeline)
	require.True(t, ok)
	assert.True(t, pipeline.Desc.DepthTest)

	createChain := dev.Log.Index(drivertest.OpCreate, "swapchain#0", 0)
	createDepth := dev.Log.Index(drivertest.OpCreate, "depth#0", 0)
	assert.Less(t, createChain, createDepth)
	assert.Less(t, createDepth, dev.Log.Index(drivertest.OpCreate, "pipeline#0", 0))

	rendered, err := r.RenderFrame()
	require.NoError(t, err)
	assert.True(t, rendered)

	require.NoError(t, r.Resize(driver.Extent{Width: 1024, Height: 768}))
	destroyPipeline := dev.Log.Index(drivertest.OpDestroy, "pipeline#0", 0)
	destroyDepth := dev.Log.Index(drivertest.OpDestroy, "depth#0", 0)
	destroyChain := dev.Log.Index(drivertest.OpDestroy, "swapchain#0", 0)
	require.NotEqual(t, -1, destroyDepth)
	assert.Less(t, destroyPipeline, destroyDepth)
	assert.Less(t, destroyDepth, destroyChain)
	assert.Greater(t, dev.Log.Index(drivertest.OpCreate, "depth#1", 0), dev.Log.Index(drivertest.OpCreate, "swapchain#1", 0))

	chains := dev.Swapchains()
	require.Len(t, chains, 2)
	require.NotNil(t, chains[1].Depth)
	assert.Equal(t, "depth#1", chains[1].Depth.ID())

	rendered, err = r.RenderFrame()
	require.NoError(t, err)
	assert.True(t, rendered)

	require.NoError(t, r.Close())
	assert.Less(t, dev.Log.Index(drivertest.OpDestroy, "depth#1", 0), dev.Log.Index(drivertest.OpDestroy, "swapchain#1", 0))
}
