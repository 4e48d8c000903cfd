package frame

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/framepipe/driver"
)

const (
	DefaultImageCount  = 3
	DefaultWaitTimeout = 5 * time.Second
)

// Geometry supplies the static vertex and optional index data uploaded once
// at startup. IndexData returns nil when the geometry is not indexed.
type Geometry interface {
	Layout() driver.VertexLayout
	VertexData() ([]byte, error)
	VertexCount() int
	IndexData() ([]byte, error)
	IndexCount() int
	IndexType() driver.IndexType
}

// FrameInfo describes the frame about to be recorded.
type FrameInfo struct {
	Frame  uint64
	Slot   int
	Image  int
	Extent driver.Extent
	// Time is measured from the renderer's first frame; Delta from the
	// previous frame.
	Time  time.Duration
	Delta time.Duration
}

// UpdateFunc produces the uniform block for a frame. The returned slice is
// copied into the slot's uniform buffer before recording.
type UpdateFunc func(info FrameInfo) ([]byte, error)

// Config is the construction input of a Renderer.
type Config struct {
	Requirements driver.Requirements

	// ImageCount is the number of swapchain images, fixed for the life of
	// the renderer. FramesInFlight defaults to ImageCount and may not
	// exceed it.
	ImageCount     int
	FramesInFlight int
	Format         driver.Format
	Extent         driver.Extent

	ClearColor  driver.Color
	WaitTimeout time.Duration

	Shaders  driver.ShaderSet
	Geometry Geometry
	// Draws overrides the single draw covering Geometry.
	Draws []driver.DrawCall

	UniformSize int
	Update      UpdateFunc

	// Depth gives every swapchain a depth buffer and enables depth testing.
	Depth bool
}

func (c Config) withDefaults() Config {
	if c.ImageCount == 0 {
		c.ImageCount = DefaultImageCount
	}
	if c.FramesInFlight == 0 {
		c.FramesInFlight = c.ImageCount
	}
	if c.Format == driver.FormatUndefined {
		c.Format = driver.FormatB8G8R8A8SRGB
	}
	if c.WaitTimeout == 0 {
		c.WaitTimeout = DefaultWaitTimeout
	}
	if c.ClearColor == (driver.Color{}) {
		c.ClearColor = driver.Color{A: 1}
	}
	return c
}

func (c Config) validate() error {
	switch {
	case c.ImageCount < 2:
		return errors.Newf("image count %d: at least 2 images are required", c.ImageCount)
	case c.FramesInFlight < 1 || c.FramesInFlight > c.ImageCount:
		return errors.Newf("frames in flight %d: must be between 1 and the image count %d", c.FramesInFlight, c.ImageCount)
	case c.Extent.Zero():
		return errors.Newf("initial extent %s has no area", c.Extent)
	case c.Geometry == nil:
		return errors.New("no geometry")
	case len(c.Shaders.Vertex) == 0 || len(c.Shaders.Fragment) == 0:
		return errors.New("vertex and fragment shaders are required")
	case c.UniformSize < 0:
		return errors.Newf("negative uniform size %d", c.UniformSize)
	case c.Update != nil && c.UniformSize == 0:
		return errors.New("an update function needs a uniform size")
	}
	return nil
}

// EventKind is the type of a windowing event.
type EventKind int

const (
	EventQuit EventKind = iota
	EventResize
)

// Event is one input from the windowing collaborator. Extent is set for
// EventResize; a zero extent means the window was minimized.
type Event struct {
	Kind   EventKind
	Extent driver.Extent
}

// EventSource is polled once per loop iteration.
type EventSource interface {
	Poll() []Event
}
