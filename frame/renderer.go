package frame

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"

	"github.com/vkngwrapper/framepipe/driver"
)

// State is the lifecycle state of a Renderer.
type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting-down"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Stats counts what the renderer did so far.
type Stats struct {
	Frames    uint64
	Skipped   uint64
	Recreated uint64
	LastImage int
}

const suspendedPollInterval = 10 * time.Millisecond

// Renderer owns the device, the swapchain and the frame slots, and drives
// acquire → record → submit → present → advance once per frame.
//
// All methods except Stop must be called from the goroutine that created
// the renderer.
type Renderer struct {
	cfg     Config
	dev     driver.Device
	adapter driver.AdapterInfo

	graphics driver.Queue

	swapchains *SwapchainManager
	depth      *depthTarget
	pipeline   *pipelineTarget
	sync       *Synchronizer
	submitter  *Submitter

	vertices driver.Buffer
	indices  driver.Buffer
	draws    []driver.DrawCall

	cursor    int
	extent    driver.Extent
	suspended bool
	state     State
	stop      atomic.Bool

	started   bool
	startTime time.Duration
	lastTime  time.Duration
	stats     Stats
}

// NewRenderer selects a device on inst and builds every long-lived resource:
// static geometry, frame slots, the swapchain and the graphics pipeline.
// On failure everything created so far is released.
func NewRenderer(inst driver.Instance, cfg Config) (r *Renderer, err error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, errors.Wrap(err, "renderer config")
	}

	r = &Renderer{cfg: cfg, extent: cfg.Extent, stats: Stats{LastImage: -1}}
	defer func() {
		if err != nil {
			r.state = StateShuttingDown
			if rerr := r.release(); rerr != nil {
				err = errors.WithSecondaryError(err, rerr)
			}
			r.state = StateStopped
			r = nil
		}
	}()

	r.dev, r.adapter, err = SelectDevice(inst, cfg.Requirements)
	if err != nil {
		return r, err
	}
	r.graphics = r.dev.Queue(driver.QueueGraphics)

	if err = r.uploadGeometry(); err != nil {
		return r, err
	}

	r.sync, err = NewSynchronizer(r.dev, cfg.FramesInFlight, cfg.UniformSize, cfg.WaitTimeout)
	if err != nil {
		return r, errors.Wrap(err, "create frame slots")
	}
	r.submitter = NewSubmitter(r.sync, cfg.ClearColor)

	r.swapchains, err = NewSwapchainManager(r.dev, inst.Surface(), SwapchainConfig{
		ImageCount: cfg.ImageCount,
		Format:     cfg.Format,
		Depth:      cfg.Depth,
	})
	if err != nil {
		return r, err
	}
	if cfg.Depth {
		r.depth = &depthTarget{dev: r.dev}
		if err = r.swapchains.Register(r.depth); err != nil {
			return r, err
		}
	}
	r.pipeline = &pipelineTarget{dev: r.dev, desc: driver.PipelineDesc{
		Shaders:     cfg.Shaders,
		Layout:      cfg.Geometry.Layout(),
		UniformSize: cfg.UniformSize,
		DepthTest:   cfg.Depth,
	}}
	if err = r.swapchains.Register(r.pipeline); err != nil {
		return r, err
	}
	if err = r.swapchains.Create(cfg.Extent); err != nil {
		return r, err
	}
	if cfg.FramesInFlight > r.swapchains.ImageCount() {
		return r, errors.Newf("frames in flight %d exceed swapchain image count %d", cfg.FramesInFlight, r.swapchains.ImageCount())
	}
	return r, nil
}

func (r *Renderer) uploadGeometry() error {
	g := r.cfg.Geometry
	vertices, err := g.VertexData()
	if err != nil {
		return errors.Wrap(err, "vertex data")
	}
	r.vertices, err = r.dev.CreateStaticBuffer(driver.BufferVertex, vertices)
	if err != nil {
		return errors.Wrap(err, "upload vertex buffer")
	}

	indices, err := g.IndexData()
	if err != nil {
		return errors.Wrap(err, "index data")
	}
	if len(indices) > 0 {
		r.indices, err = r.dev.CreateStaticBuffer(driver.BufferIndex, indices)
		if err != nil {
			return errors.Wrap(err, "upload index buffer")
		}
	}

	r.draws = r.cfg.Draws
	if r.draws == nil {
		if r.indices != nil {
			r.draws = []driver.DrawCall{{Indexed: true, Count: g.IndexCount(), InstanceCount: 1}}
		} else {
			r.draws = []driver.DrawCall{{Count: g.VertexCount(), InstanceCount: 1}}
		}
	}
	return nil
}

// Device returns the selected device.
func (r *Renderer) Device() driver.Device { return r.dev }

// Adapter returns the descriptor of the selected adapter.
func (r *Renderer) Adapter() driver.AdapterInfo { return r.adapter }

// Swapchain returns the live swapchain, or nil while none exists.
func (r *Renderer) Swapchain() driver.Swapchain { return r.swapchains.Chain() }

// State returns the lifecycle state.
func (r *Renderer) State() State { return r.state }

// Suspended reports whether rendering is paused for a zero-area window.
func (r *Renderer) Suspended() bool { return r.suspended }

// Stats returns the frame counters.
func (r *Renderer) Stats() Stats { return r.stats }

// Stop asks Run to return after the current iteration. Safe to call from
// any goroutine.
func (r *Renderer) Stop() { r.stop.Store(true) }

// Run polls events and renders frames until a quit event, Stop, or ctx is
// done, then shuts the renderer down.
func (r *Renderer) Run(ctx context.Context, events EventSource) (err error) {
	if r.state != StateNotStarted {
		return errors.Newf("run in state %s", r.state)
	}
	r.state = StateRunning
	defer func() {
		if cerr := r.Close(); cerr != nil {
			err = errors.CombineErrors(err, cerr)
		}
	}()

	for !r.stop.Load() && ctx.Err() == nil {
		for _, ev := range events.Poll() {
			switch ev.Kind {
			case EventQuit:
				r.Stop()
			case EventResize:
				if err := r.Resize(ev.Extent); err != nil {
					return err
				}
			}
		}
		if r.stop.Load() {
			break
		}
		rendered, err := r.RenderFrame()
		if err != nil {
			return err
		}
		if !rendered && r.suspended {
			time.Sleep(suspendedPollInterval)
		}
	}
	return nil
}

// Resize reacts to a window size change. A zero extent suspends rendering;
// a non-zero extent resumes it, recreating the swapchain if it no longer
// matches.
func (r *Renderer) Resize(extent driver.Extent) error {
	switch r.state {
	case StateNotStarted, StateRunning:
	default:
		return errors.Newf("resize in state %s", r.state)
	}
	r.extent = extent
	if extent.Zero() {
		if !r.suspended {
			driver.Logger().Info("rendering suspended", "extent", extent.String())
		}
		r.suspended = true
		return nil
	}
	if r.suspended {
		driver.Logger().Info("rendering resumed", "extent", extent.String())
	}
	r.suspended = false
	if !r.swapchains.Stale(extent) {
		return nil
	}
	return r.recreate()
}

func (r *Renderer) recreate() error {
	if err := r.sync.Drain(); err != nil {
		return errors.Wrap(err, "drain before swapchain recreation")
	}
	status, err := r.swapchains.Recreate(r.extent)
	if err != nil {
		return err
	}
	if status == RecreateSkipped {
		r.suspended = true
		return nil
	}
	r.sync.ResetImages()
	r.stats.Recreated++
	driver.Logger().Warn("swapchain recreated", "extent", r.extent.String())
	return nil
}

// RenderFrame runs one acquire → record → submit → present cycle. It
// returns false without touching the GPU while suspended, and false when an
// out-of-date swapchain had to be recreated before anything was submitted.
func (r *Renderer) RenderFrame() (bool, error) {
	switch r.state {
	case StateNotStarted, StateRunning:
	default:
		return false, errors.Newf("render frame in state %s", r.state)
	}
	if r.suspended {
		r.stats.Skipped++
		return false, nil
	}

	slot := r.sync.Slot(r.cursor)
	if err := r.sync.BeginFrame(slot.Index); err != nil {
		return false, err
	}

	rendered, err := r.recordAndSubmit(slot)
	if err != nil || !rendered {
		if slot.State == SlotRecording {
			if rerr := r.sync.Rewind(slot.Index); rerr != nil && err == nil {
				err = rerr
			}
		}
		if err == nil {
			r.stats.Skipped++
			err = r.recreate()
		}
		return false, err
	}

	r.cursor = (r.cursor + 1) % r.sync.Len()
	r.stats.Frames++
	return true, nil
}

// recordAndSubmit returns false, nil when the swapchain reported it is out
// of date before submission.
func (r *Renderer) recordAndSubmit(slot *Slot) (bool, error) {
	chain := r.swapchains.Chain()
	image, err := chain.Acquire(slot.ImageAvailable, r.cfg.WaitTimeout)
	if errors.Is(err, driver.ErrOutOfDate) {
		driver.Logger().Warn("acquire reported out-of-date swapchain", "slot", slot.Index)
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "acquire swapchain image")
	}
	if err := r.sync.ClaimImage(image, slot.Index); err != nil {
		return false, err
	}

	info := r.frameInfo(slot.Index, image, chain.Extent())
	if r.cfg.Update != nil {
		data, err := r.cfg.Update(info)
		if err != nil {
			return false, errors.Wrap(err, "update uniforms")
		}
		if err := slot.Uniform.Write(data); err != nil {
			return false, errors.Wrap(err, "write uniforms")
		}
	}

	cmd, err := r.submitter.Record(slot, chain, image, PipelineState{
		Pipeline:  r.pipeline.pipeline,
		Vertices:  r.vertices,
		Indices:   r.indices,
		IndexType: r.cfg.Geometry.IndexType(),
		Uniform:   slot.Uniform,
		Viewport:  driver.FullViewport(chain.Extent()),
		Scissor:   driver.FullRect(chain.Extent()),
	}, r.draws)
	if err != nil {
		return false, err
	}
	if _, err := r.submitter.Submit(r.graphics, slot, cmd); err != nil {
		return false, err
	}

	presentErr := chain.Present(image, slot.RenderFinished)
	if err := r.sync.Presented(slot.Index); err != nil {
		return false, err
	}
	r.stats.LastImage = image
	driver.Logger().Debug("frame presented", "frame", info.Frame, "slot", slot.Index, "image", image)

	if errors.Is(presentErr, driver.ErrOutOfDate) || errors.Is(presentErr, driver.ErrSuboptimal) {
		// The frame was submitted; recreate for the next one.
		if err := r.recreate(); err != nil {
			return false, err
		}
		return true, nil
	}
	if presentErr != nil {
		return false, errors.Wrap(presentErr, "present")
	}
	return true, nil
}

func (r *Renderer) frameInfo(slot, image int, extent driver.Extent) FrameInfo {
	now := hrtime.Now()
	if !r.started {
		r.started = true
		r.startTime, r.lastTime = now, now
	}
	info := FrameInfo{
		Frame:  r.stats.Frames,
		Slot:   slot,
		Image:  image,
		Extent: extent,
		Time:   now - r.startTime,
		Delta:  now - r.lastTime,
	}
	r.lastTime = now
	return info
}

// Close drains every frame slot and then releases all resources, in reverse
// creation order. It is safe to call more than once.
func (r *Renderer) Close() error {
	if r.state == StateStopped {
		return nil
	}
	r.state = StateShuttingDown
	err := r.release()
	r.state = StateStopped
	if err == nil {
		driver.Logger().Info("renderer stopped", "frames", r.stats.Frames, "recreated", r.stats.Recreated)
	}
	return err
}

func (r *Renderer) release() error {
	if r.sync != nil {
		if err := r.sync.Release(); err != nil {
			// Work may still reference every other resource; leak them.
			return err
		}
	}
	if r.dev != nil {
		if err := r.dev.WaitIdle(); err != nil {
			return errors.Wrap(err, "wait for device idle")
		}
	}
	if r.swapchains != nil {
		r.swapchains.Destroy()
	}
	if r.indices != nil {
		r.indices.Destroy()
		r.indices = nil
	}
	if r.vertices != nil {
		r.vertices.Destroy()
		r.vertices = nil
	}
	if r.dev != nil {
		r.dev.Destroy()
		r.dev = nil
	}
	return nil
}

// pipelineTarget rebuilds the graphics pipeline for every swapchain.
type pipelineTarget struct {
	dev      driver.Device
	desc     driver.PipelineDesc
	pipeline driver.Pipeline
}

func (p *pipelineTarget) BuildTarget(chain driver.Swapchain) error {
	pipeline, err := p.dev.CreatePipeline(p.desc, chain)
	if err != nil {
		return errors.Wrap(err, "create graphics pipeline")
	}
	p.pipeline = pipeline
	return nil
}

func (p *pipelineTarget) ReleaseTarget() {
	if p.pipeline != nil {
		p.pipeline.Destroy()
		p.pipeline = nil
	}
}

// depthTarget gives every swapchain its own depth buffer.
type depthTarget struct {
	dev   driver.Device
	depth driver.DepthTarget
}

func (d *depthTarget) BuildTarget(chain driver.Swapchain) error {
	depth, err := d.dev.CreateDepthTarget(chain)
	if err != nil {
		return errors.Wrap(err, "create depth target")
	}
	d.depth = depth
	return nil
}

func (d *depthTarget) ReleaseTarget() {
	if d.depth != nil {
		d.depth.Destroy()
		d.depth = nil
	}
}
