package drivertest

import (
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/framepipe/driver"
)

// Instance is an in-memory driver.Instance.
type Instance struct {
	Log *Log

	adapters []*Adapter
	surface  *Surface
}

// NewInstance returns an instance enumerating the given adapters in order.
func NewInstance(adapters ...*Adapter) *Instance {
	inst := &Instance{Log: &Log{}, adapters: adapters}
	inst.surface = &Surface{log: inst.Log}
	for _, a := range adapters {
		a.log = inst.Log
	}
	return inst
}

func (i *Instance) Adapters() ([]driver.Adapter, error) {
	out := make([]driver.Adapter, 0, len(i.adapters))
	for _, a := range i.adapters {
		out = append(out, a)
	}
	return out, nil
}

func (i *Instance) Surface() driver.Surface { return i.surface }

func (i *Instance) Destroy() {
	i.Log.add(OpDestroy, "instance", 0)
}

// Surface is an in-memory driver.Surface.
type Surface struct {
	log   *Log
	chain *Swapchain
}

func (s *Surface) Destroy() {
	s.log.add(OpDestroy, "surface", 0)
}

// Adapter is an in-memory driver.Adapter. When Fail is set CreateDevice
// returns it; otherwise it opens Device, or a fresh device when Device is nil.
type Adapter struct {
	Desc   driver.AdapterInfo
	Fail   error
	Device *Device

	log *Log
}

// HardwareAdapter returns a discrete adapter with every capability.
func HardwareAdapter(name string) *Adapter {
	return &Adapter{Desc: driver.AdapterInfo{
		Name:         name,
		Discrete:     true,
		APIVersion:   driver.Version{Major: 1, Minor: 2},
		Capabilities: driver.CapGraphics | driver.CapPresent | driver.CapCompute | driver.CapTransfer | driver.CapSwapchain,
		Extensions:   []string{"VK_KHR_swapchain"},
	}}
}

func (a *Adapter) Info() driver.AdapterInfo { return a.Desc }

func (a *Adapter) CreateDevice(req driver.Requirements) (driver.Device, error) {
	a.log.add(OpCreate, "device:"+a.Desc.Name, 0)
	if a.Fail != nil {
		return nil, a.Fail
	}
	if a.Device == nil {
		a.Device = NewDevice()
	}
	a.Device.Log = a.log
	a.Device.Name = a.Desc.Name
	return a.Device, nil
}

// Device is an in-memory driver.Device.
//
// GPULatency is the delay between a submission and its fence signal. Hang
// makes fences never signal. AcquireErrs and PresentErrs are consumed in
// order, one per call, a nil entry meaning success. ImageCountOverride, when
// non-zero, makes created swapchains report that many images.
type Device struct {
	Log  *Log
	Name string

	GPULatency         time.Duration
	Hang               bool
	AcquireErrs        []error
	PresentErrs        []error
	ImageCountOverride int

	mu         sync.Mutex
	ids        map[string]int
	graphics   *Queue
	present    *Queue
	fences     []*Fence
	swapchains []*Swapchain
	commands   []*CommandBuffer
	destroyed  bool
}

// NewDevice returns a device with zero GPU latency.
func NewDevice() *Device {
	d := &Device{Log: &Log{}, ids: map[string]int{}}
	d.graphics = &Queue{dev: d, kind: driver.QueueGraphics}
	d.present = &Queue{dev: d, kind: driver.QueuePresent}
	return d
}

func (d *Device) nextID(kind string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ids == nil {
		d.ids = map[string]int{}
	}
	id := fmt.Sprintf("%s#%d", kind, d.ids[kind])
	d.ids[kind]++
	return id
}

func (d *Device) popErr(list *[]error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(*list) == 0 {
		return nil
	}
	err := (*list)[0]
	*list = (*list)[1:]
	return err
}

func (d *Device) Queue(kind driver.QueueKind) driver.Queue {
	if kind == driver.QueuePresent {
		return d.present
	}
	return d.graphics
}

// Fences returns every fence created on the device.
func (d *Device) Fences() []*Fence {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Fence(nil), d.fences...)
}

// Swapchains returns every swapchain created on the device, live or not.
func (d *Device) Swapchains() []*Swapchain {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Swapchain(nil), d.swapchains...)
}

// CommandBuffers returns every command buffer created on the device.
func (d *Device) CommandBuffers() []*CommandBuffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*CommandBuffer(nil), d.commands...)
}

// Destroyed reports whether Destroy was called.
func (d *Device) Destroyed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed
}

func (d *Device) CreateSwapchain(desc driver.SwapchainDesc) (driver.Swapchain, error) {
	surface, ok := desc.Surface.(*Surface)
	if !ok {
		return nil, errors.Newf("drivertest: foreign surface %T", desc.Surface)
	}
	if surface.chain != nil && !surface.chain.destroyed {
		return nil, errors.Newf("drivertest: surface already bound to live %s", surface.chain.id)
	}
	if desc.Extent.Zero() {
		return nil, errors.Newf("drivertest: zero swapchain extent %s", desc.Extent)
	}
	count := desc.ImageCount
	if d.ImageCountOverride > 0 {
		count = d.ImageCountOverride
	}
	sc := &Swapchain{
		id:      d.nextID("swapchain"),
		dev:     d,
		surface: surface,
		count:   count,
		format:  desc.Format,
		extent:  desc.Extent,
		depth:   desc.Depth,
	}
	surface.chain = sc
	d.mu.Lock()
	d.swapchains = append(d.swapchains, sc)
	d.mu.Unlock()
	d.Log.add(OpCreate, sc.id, uint64(count))
	return sc, nil
}

func (d *Device) CreatePipeline(desc driver.PipelineDesc, target driver.Swapchain) (driver.Pipeline, error) {
	sc, ok := target.(*Swapchain)
	if !ok || sc.destroyed {
		return nil, errors.New("drivertest: pipeline target is not a live swapchain")
	}
	if len(desc.Shaders.Vertex) == 0 || len(desc.Shaders.Fragment) == 0 {
		return nil, errors.New("drivertest: pipeline without shaders")
	}
	if desc.DepthTest && !sc.depth {
		return nil, errors.Newf("drivertest: depth-tested pipeline on %s without depth", sc.id)
	}
	p := &Pipeline{id: d.nextID("pipeline"), log: d.Log, Desc: desc, Target: sc}
	d.Log.add(OpCreate, p.id, 0)
	return p, nil
}

func (d *Device) CreateDepthTarget(target driver.Swapchain) (driver.DepthTarget, error) {
	sc, ok := target.(*Swapchain)
	if !ok || sc.destroyed {
		return nil, errors.New("drivertest: depth target for a dead swapchain")
	}
	if !sc.depth {
		return nil, errors.Newf("drivertest: %s was created without depth", sc.id)
	}
	if sc.Depth != nil {
		return nil, errors.Newf("drivertest: %s already has %s", sc.id, sc.Depth.id)
	}
	dt := &DepthTarget{id: d.nextID("depth"), log: d.Log, Target: sc}
	sc.Depth = dt
	d.Log.add(OpCreate, dt.id, 0)
	return dt, nil
}

func (d *Device) CreateFence() (driver.Fence, error) {
	f := &Fence{id: d.nextID("fence"), dev: d}
	d.mu.Lock()
	d.fences = append(d.fences, f)
	d.mu.Unlock()
	d.Log.add(OpCreate, f.id, 0)
	return f, nil
}

func (d *Device) CreateSemaphore() (driver.Semaphore, error) {
	s := &Semaphore{id: d.nextID("semaphore"), log: d.Log}
	d.Log.add(OpCreate, s.id, 0)
	return s, nil
}

func (d *Device) CreateCommandBuffer() (driver.CommandBuffer, error) {
	cb := &CommandBuffer{id: d.nextID("commands"), log: d.Log}
	d.mu.Lock()
	d.commands = append(d.commands, cb)
	d.mu.Unlock()
	d.Log.add(OpCreate, cb.id, 0)
	return cb, nil
}

func (d *Device) CreateStaticBuffer(usage driver.BufferUsage, data []byte) (driver.Buffer, error) {
	if len(data) == 0 {
		return nil, errors.New("drivertest: empty static buffer")
	}
	staging := d.nextID("staging")
	d.Log.add(OpCreate, staging, uint64(len(data)))
	b := &Buffer{id: d.nextID("buffer"), log: d.Log, Usage: usage, Data: append([]byte(nil), data...)}
	d.Log.add(OpCreate, b.id, uint64(len(data)))
	d.Log.add(OpUpload, b.id, uint64(len(data)))
	d.Log.add(OpDestroy, staging, 0)
	return b, nil
}

func (d *Device) CreateUniformBuffer(size int) (driver.UniformBuffer, error) {
	if size <= 0 {
		return nil, errors.Newf("drivertest: invalid uniform size %d", size)
	}
	u := &UniformBuffer{Buffer: Buffer{id: d.nextID("uniform"), log: d.Log, Data: make([]byte, size)}}
	d.Log.add(OpCreate, u.id, uint64(size))
	return u, nil
}

func (d *Device) WaitIdle() error {
	d.Log.add(OpWaitIdle, "device", 0)
	for _, f := range d.Fences() {
		if f.isDestroyed() {
			continue
		}
		if err := f.Wait(f.Submitted(), time.Minute); err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) Destroy() {
	d.mu.Lock()
	d.destroyed = true
	d.mu.Unlock()
	d.Log.add(OpDestroy, "device", 0)
}

// Queue is an in-memory driver.Queue.
type Queue struct {
	dev  *Device
	kind driver.QueueKind
}

func (q *Queue) Submit(cmd driver.CommandBuffer, sync driver.SubmitSync) error {
	cb, ok := cmd.(*CommandBuffer)
	if !ok {
		return errors.Newf("drivertest: foreign command buffer %T", cmd)
	}
	if cb.recording || !cb.ended {
		return errors.Newf("drivertest: %s submitted while not closed", cb.id)
	}
	q.dev.Log.add(OpSubmit, cb.id, sync.FenceValue)
	if sync.Fence != nil {
		f, ok := sync.Fence.(*Fence)
		if !ok {
			return errors.Newf("drivertest: foreign fence %T", sync.Fence)
		}
		f.schedule(sync.FenceValue, time.Now().Add(q.dev.GPULatency))
	}
	return nil
}
