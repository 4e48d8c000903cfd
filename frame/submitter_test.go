package frame

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkngwrapper/framepipe/driver"
	"github.com/vkngwrapper/framepipe/driver/drivertest"
)

func TestSubmitterRecordOrder(t *testing.T) {
	dev := drivertest.NewDevice()
	inst := drivertest.NewInstance()
	chain, err := dev.CreateSwapchain(driver.SwapchainDesc{Surface: inst.Surface(), ImageCount: 2, Extent: driver.Extent{Width: 32, Height: 32}})
	require.NoError(t, err)
	pipeline, err := dev.CreatePipeline(driver.PipelineDesc{Shaders: testShaders}, chain)
	require.NoError(t, err)
	vertices, err := dev.CreateStaticBuffer(driver.BufferVertex, make([]byte, 24))
	require.NoError(t, err)
	indices, err := dev.CreateStaticBuffer(driver.BufferIndex, make([]byte, 12))
	require.NoError(t, err)

	s, err := NewSynchronizer(dev, 1, 16, time.Second)
	require.NoError(t, err)
	sub := NewSubmitter(s, driver.Color{R: 1, A: 1})

	prefix := []string{
		drivertest.CmdBegin,
		drivertest.CmdTransition(driver.StatePresent, driver.StateRenderTarget),
		drivertest.CmdBindPipeline,
		drivertest.CmdViewport,
		drivertest.CmdScissor,
		drivertest.CmdBindVertex,
	}
	suffix := []string{
		drivertest.CmdTransition(driver.StateRenderTarget, driver.StatePresent),
		drivertest.CmdEnd,
	}

	for draws := 0; draws <= 3; draws++ {
		t.Run("plain", func(t *testing.T) {
			require.NoError(t, s.BeginFrame(0))
			calls := make([]driver.DrawCall, draws)
			for i := range calls {
				calls[i] = driver.DrawCall{Count: 3, InstanceCount: 1}
			}
			cmd, err := sub.Record(s.Slot(0), chain, 1, PipelineState{Pipeline: pipeline, Vertices: vertices}, calls)
			require.NoError(t, err)

			want := append(append([]string{}, prefix...), drivertest.CmdClear)
			for i := 0; i < draws; i++ {
				want = append(want, drivertest.CmdDraw)
			}
			want = append(want, suffix...)
			assert.Equal(t, want, cmd.(*drivertest.CommandBuffer).Ops)
			assert.Equal(t, 1, cmd.(*drivertest.CommandBuffer).Image)

			_, err = sub.Submit(dev.Queue(driver.QueueGraphics), s.Slot(0), cmd)
			require.NoError(t, err)
			require.NoError(t, s.Presented(0))
		})
	}

	require.NoError(t, s.BeginFrame(0))
	cmd, err := sub.Record(s.Slot(0), chain, 0, PipelineState{
		Pipeline:  pipeline,
		Vertices:  vertices,
		Indices:   indices,
		IndexType: driver.IndexUint16,
		Uniform:   s.Slot(0).Uniform,
	}, []driver.DrawCall{{Indexed: true, Count: 6, InstanceCount: 1}})
	require.NoError(t, err)
	want := append(append([]string{}, prefix...),
		drivertest.CmdBindIndex,
		drivertest.CmdBindUniform,
		drivertest.CmdClear,
		drivertest.CmdDrawIndexed,
	)
	assert.Equal(t, append(want, suffix...), cmd.(*drivertest.CommandBuffer).Ops)
}

func TestSubmitterRequiresPipeline(t *testing.T) {
	dev := drivertest.NewDevice()
	s, err := NewSynchronizer(dev, 1, 0, time.Second)
	require.NoError(t, err)
	_, err = NewSubmitter(s, driver.Color{}).Record(s.Slot(0), nil, 0, PipelineState{}, nil)
	assert.Error(t, err)
}

func TestSubmitterSubmitSignalsFence(t *testing.T) {
	f := newSyncFixture(t, 1, time.Second)
	f.submit(t, 0, 0)
	f.submit(t, 0, 1)

	submits := f.dev.Log.Filter(drivertest.OpSubmit)
	require.Len(t, submits, 2)
	assert.Equal(t, uint64(1), submits[0].Value)
	assert.Equal(t, uint64(2), submits[1].Value)
	assert.Equal(t, uint64(2), f.sync.Slot(0).Fence.(*drivertest.Fence).Submitted())
}
