package drivertest

import (
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/framepipe/driver"
)

type pendingSignal struct {
	value uint64
	at    time.Time
}

// Fence is an in-memory driver.Fence. Submitted values signal once the
// device's GPU latency has elapsed.
type Fence struct {
	id  string
	dev *Device

	mu        sync.Mutex
	completed uint64
	submitted uint64
	pending   []pendingSignal
	destroyed bool
	// DestroyedPending is set when Destroy ran before the last submitted
	// value was signaled.
	DestroyedPending bool
}

// ID returns the name the fence is logged under.
func (f *Fence) ID() string { return f.id }

// Submitted returns the highest value ever submitted on the fence.
func (f *Fence) Submitted() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitted
}

func (f *Fence) isDestroyed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.destroyed
}

func (f *Fence) schedule(value uint64, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if value > f.submitted {
		f.submitted = value
	}
	if f.dev.Hang {
		return
	}
	f.pending = append(f.pending, pendingSignal{value: value, at: at})
}

// advance must be called with mu held.
func (f *Fence) advance(now time.Time) {
	kept := f.pending[:0]
	for _, p := range f.pending {
		if !p.at.After(now) {
			if p.value > f.completed {
				f.completed = p.value
			}
			continue
		}
		kept = append(kept, p)
	}
	f.pending = kept
}

// next returns when the earliest pending signal reaching value fires.
func (f *Fence) next(value uint64) (time.Time, bool) {
	var at time.Time
	found := false
	for _, p := range f.pending {
		if p.value >= value && (!found || p.at.Before(at)) {
			at, found = p.at, true
		}
	}
	return at, found
}

func (f *Fence) Completed() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advance(time.Now())
	return f.completed, nil
}

func (f *Fence) Wait(value uint64, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		now := time.Now()
		f.mu.Lock()
		if f.destroyed {
			f.mu.Unlock()
			return errors.Newf("drivertest: wait on destroyed %s", f.id)
		}
		f.advance(now)
		if f.completed >= value {
			f.mu.Unlock()
			f.dev.Log.add(OpWait, f.id, value)
			return nil
		}
		at, ok := f.next(value)
		f.mu.Unlock()

		if !now.Before(deadline) {
			return errors.Wrapf(driver.ErrWaitTimeout, "%s value %d", f.id, value)
		}
		wake := deadline
		if ok && at.Before(deadline) {
			wake = at
		}
		time.Sleep(wake.Sub(now))
	}
}

func (f *Fence) Destroy() {
	f.mu.Lock()
	f.advance(time.Now())
	if f.completed < f.submitted {
		f.DestroyedPending = true
	}
	f.destroyed = true
	f.mu.Unlock()
	f.dev.Log.add(OpDestroy, f.id, 0)
}

// Semaphore is an in-memory driver.Semaphore.
type Semaphore struct {
	id  string
	log *Log
}

func (s *Semaphore) Destroy() { s.log.add(OpDestroy, s.id, 0) }

// Swapchain is an in-memory driver.Swapchain. Acquire hands out images
// round-robin starting at 0.
type Swapchain struct {
	id      string
	dev     *Device
	surface *Surface
	count   int
	format  driver.Format
	extent  driver.Extent
	depth   bool

	// Depth is the attached depth target, or nil.
	Depth *DepthTarget

	next      int
	destroyed bool
	// Presented lists every presented image index in order.
	Presented []int
}

// ID returns the name the swapchain is logged under.
func (s *Swapchain) ID() string { return s.id }

// Destroyed reports whether Destroy was called.
func (s *Swapchain) Destroyed() bool { return s.destroyed }

func (s *Swapchain) ImageCount() int       { return s.count }
func (s *Swapchain) Format() driver.Format { return s.format }
func (s *Swapchain) Extent() driver.Extent { return s.extent }

func (s *Swapchain) Acquire(signal driver.Semaphore, timeout time.Duration) (int, error) {
	if s.destroyed {
		return 0, errors.Newf("drivertest: acquire on destroyed %s", s.id)
	}
	if err := s.dev.popErr(&s.dev.AcquireErrs); err != nil {
		return 0, err
	}
	image := s.next
	s.next = (s.next + 1) % s.count
	s.dev.Log.add(OpAcquire, s.id, uint64(image))
	return image, nil
}

func (s *Swapchain) Present(image int, wait driver.Semaphore) error {
	if s.destroyed {
		return errors.Newf("drivertest: present on destroyed %s", s.id)
	}
	if image < 0 || image >= s.count {
		return errors.Newf("drivertest: present of image %d out of %d", image, s.count)
	}
	if err := s.dev.popErr(&s.dev.PresentErrs); err != nil {
		return err
	}
	s.Presented = append(s.Presented, image)
	s.dev.Log.add(OpPresent, s.id, uint64(image))
	return nil
}

func (s *Swapchain) Destroy() {
	if s.destroyed {
		return
	}
	s.destroyed = true
	s.dev.Log.add(OpDestroy, s.id, 0)
}

// DepthTarget is an in-memory driver.DepthTarget.
type DepthTarget struct {
	id     string
	log    *Log
	Target *Swapchain
}

// ID returns the name the depth target is logged under.
func (d *DepthTarget) ID() string { return d.id }

func (d *DepthTarget) Destroy() {
	if d.Target != nil && d.Target.Depth == d {
		d.Target.Depth = nil
	}
	d.log.add(OpDestroy, d.id, 0)
}

// Pipeline is an in-memory driver.Pipeline.
type Pipeline struct {
	id     string
	log    *Log
	Desc   driver.PipelineDesc
	Target *Swapchain
}

// ID returns the name the pipeline is logged under.
func (p *Pipeline) ID() string { return p.id }

func (p *Pipeline) Destroy() { p.log.add(OpDestroy, p.id, 0) }

// Buffer is an in-memory driver.Buffer.
type Buffer struct {
	id    string
	log   *Log
	Usage driver.BufferUsage
	Data  []byte
}

// ID returns the name the buffer is logged under.
func (b *Buffer) ID() string { return b.id }

func (b *Buffer) Size() int { return len(b.Data) }

func (b *Buffer) Destroy() { b.log.add(OpDestroy, b.id, 0) }

// UniformBuffer is an in-memory driver.UniformBuffer.
type UniformBuffer struct {
	Buffer
	Writes int
}

func (u *UniformBuffer) Write(data []byte) error {
	if len(data) > len(u.Data) {
		return errors.Newf("drivertest: %d bytes written to %d byte uniform", len(data), len(u.Data))
	}
	copy(u.Data, data)
	u.Writes++
	u.log.add(OpWriteData, u.id, uint64(len(data)))
	return nil
}

// Op names recorded by CommandBuffer.
const (
	CmdBegin        = "begin"
	CmdBindPipeline = "bind-pipeline"
	CmdViewport     = "viewport"
	CmdScissor      = "scissor"
	CmdBindVertex   = "bind-vertex"
	CmdBindIndex    = "bind-index"
	CmdBindUniform  = "bind-uniform"
	CmdClear        = "clear"
	CmdDraw         = "draw"
	CmdDrawIndexed  = "draw-indexed"
	CmdEnd          = "end"
)

// CmdTransition names a recorded state transition.
func CmdTransition(from, to driver.ImageState) string {
	return fmt.Sprintf("transition %s->%s", from, to)
}

// CommandBuffer is an in-memory driver.CommandBuffer. Ops holds the most
// recent recording.
type CommandBuffer struct {
	id  string
	log *Log

	recording bool
	ended     bool
	Ops       []string
	Image     int
	// Recordings counts completed Begin/End pairs.
	Recordings int
}

// ID returns the name the command buffer is logged under.
func (c *CommandBuffer) ID() string { return c.id }

func (c *CommandBuffer) record(op string) error {
	if !c.recording {
		return errors.Newf("drivertest: %s recorded outside Begin/End on %s", op, c.id)
	}
	c.Ops = append(c.Ops, op)
	return nil
}

func (c *CommandBuffer) Begin(target driver.Swapchain, image int) error {
	if c.recording {
		return errors.Newf("drivertest: %s already recording", c.id)
	}
	if target == nil || image < 0 || image >= target.ImageCount() {
		return errors.Newf("drivertest: begin on invalid image %d", image)
	}
	if sc, ok := target.(*Swapchain); ok && sc.depth && sc.Depth == nil {
		return errors.Newf("drivertest: begin on %s without a depth target", sc.id)
	}
	c.recording, c.ended = true, false
	c.Ops = []string{CmdBegin}
	c.Image = image
	return nil
}

func (c *CommandBuffer) Transition(from, to driver.ImageState) error {
	return c.record(CmdTransition(from, to))
}

func (c *CommandBuffer) BindPipeline(p driver.Pipeline) error {
	return c.record(CmdBindPipeline)
}

func (c *CommandBuffer) SetViewport(v driver.Viewport) error { return c.record(CmdViewport) }

func (c *CommandBuffer) SetScissor(r driver.Rect) error { return c.record(CmdScissor) }

func (c *CommandBuffer) BindVertexBuffer(b driver.Buffer) error { return c.record(CmdBindVertex) }

func (c *CommandBuffer) BindIndexBuffer(b driver.Buffer, t driver.IndexType) error {
	return c.record(CmdBindIndex)
}

func (c *CommandBuffer) BindUniform(p driver.Pipeline, u driver.UniformBuffer) error {
	return c.record(CmdBindUniform)
}

func (c *CommandBuffer) Clear(color driver.Color) error { return c.record(CmdClear) }

func (c *CommandBuffer) Draw(d driver.DrawCall) error {
	if d.Indexed {
		return c.record(CmdDrawIndexed)
	}
	return c.record(CmdDraw)
}

func (c *CommandBuffer) End() error {
	if err := c.record(CmdEnd); err != nil {
		return err
	}
	c.recording, c.ended = false, true
	c.Recordings++
	return nil
}

func (c *CommandBuffer) Destroy() { c.log.add(OpDestroy, c.id, 0) }
