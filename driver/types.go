package driver

import (
	"fmt"
	"strings"
)

// Extent is a width × height size in pixels.
type Extent struct {
	Width, Height int
}

// Zero reports whether the extent has no area, as for a minimized window.
func (e Extent) Zero() bool {
	return e.Width <= 0 || e.Height <= 0
}

func (e Extent) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// Format is a presentable pixel format.
type Format int

const (
	FormatUndefined Format = iota
	FormatB8G8R8A8SRGB
	FormatB8G8R8A8UNorm
	FormatR8G8B8A8SRGB
	FormatR8G8B8A8UNorm
)

var formatNames = map[Format]string{
	FormatUndefined:     "Undefined",
	FormatB8G8R8A8SRGB:  "B8G8R8A8_SRGB",
	FormatB8G8R8A8UNorm: "B8G8R8A8_UNORM",
	FormatR8G8B8A8SRGB:  "R8G8B8A8_SRGB",
	FormatR8G8B8A8UNorm: "R8G8B8A8_UNORM",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// Capability is a bit set of adapter features the selector can require.
type Capability uint32

const (
	CapGraphics Capability = 1 << iota
	CapPresent
	CapCompute
	CapTransfer
	CapSwapchain
)

var capabilityNames = []struct {
	bit  Capability
	name string
}{
	{CapGraphics, "Graphics"},
	{CapPresent, "Present"},
	{CapCompute, "Compute"},
	{CapTransfer, "Transfer"},
	{CapSwapchain, "Swapchain"},
}

// Has reports whether every bit of want is set.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

func (c Capability) String() string {
	if c == 0 {
		return "None"
	}
	var parts []string
	for _, n := range capabilityNames {
		if c&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Version is a packed major.minor.patch API version.
type Version struct {
	Major, Minor, Patch int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// AdapterInfo describes one enumerated physical adapter. It is immutable.
type AdapterInfo struct {
	Name         string
	Software     bool
	Discrete     bool
	APIVersion   Version
	Capabilities Capability
	Extensions   []string
}

// HasExtension reports whether the adapter advertises the named extension.
func (i AdapterInfo) HasExtension(name string) bool {
	for _, ext := range i.Extensions {
		if ext == name {
			return true
		}
	}
	return false
}

// Requirements is the capability predicate evaluated by device selection.
type Requirements struct {
	RequireDiscrete bool
	Extensions      []string
	Capabilities    Capability
}

// QueueKind identifies one of the device queues.
type QueueKind int

const (
	QueueGraphics QueueKind = iota
	QueuePresent
)

func (k QueueKind) String() string {
	switch k {
	case QueueGraphics:
		return "graphics"
	case QueuePresent:
		return "present"
	}
	return fmt.Sprintf("QueueKind(%d)", int(k))
}

// ImageState is the usage state of a swapchain image.
type ImageState int

const (
	StateUndefined ImageState = iota
	StatePresent
	StateRenderTarget
)

func (s ImageState) String() string {
	switch s {
	case StateUndefined:
		return "undefined"
	case StatePresent:
		return "present"
	case StateRenderTarget:
		return "render-target"
	}
	return fmt.Sprintf("ImageState(%d)", int(s))
}

// Color is a linear RGBA clear color.
type Color struct {
	R, G, B, A float32
}

// Viewport maps normalized device coordinates onto the render target.
type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// FullViewport covers the whole extent with a [0,1] depth range.
func FullViewport(e Extent) Viewport {
	return Viewport{Width: float32(e.Width), Height: float32(e.Height), MaxDepth: 1}
}

// Rect is an integer scissor rectangle.
type Rect struct {
	X, Y          int
	Width, Height int
}

// FullRect covers the whole extent.
func FullRect(e Extent) Rect {
	return Rect{Width: e.Width, Height: e.Height}
}

// BufferUsage selects how a static buffer is bound.
type BufferUsage int

const (
	BufferVertex BufferUsage = iota
	BufferIndex
)

// IndexType is the element type of an index buffer.
type IndexType int

const (
	IndexUint16 IndexType = iota
	IndexUint32
)

// AttributeFormat is the element format of one vertex attribute.
type AttributeFormat int

const (
	AttributeFloat2 AttributeFormat = iota
	AttributeFloat3
	AttributeFloat4
)

// VertexAttribute is one shader input location inside a vertex.
type VertexAttribute struct {
	Location int
	Format   AttributeFormat
	Offset   int
}

// VertexLayout is the interleaved layout of a single vertex binding.
type VertexLayout struct {
	Stride     int
	Attributes []VertexAttribute
}

// ShaderSet holds compiled vertex and fragment bytecode.
type ShaderSet struct {
	Vertex   []uint32
	Fragment []uint32
}

// PipelineDesc describes the fixed graphics pipeline. UniformSize is the size
// in bytes of the single vertex-stage uniform block, or 0 for none.
//
// DepthTest enables depth testing and writes against the target's depth
// buffer.
type PipelineDesc struct {
	Shaders     ShaderSet
	Layout      VertexLayout
	UniformSize int
	DepthTest   bool
}

// DrawCall is one non-indexed or indexed draw.
type DrawCall struct {
	Indexed       bool
	Count         int
	InstanceCount int
	First         int
	VertexOffset  int
}

// SwapchainDesc is the construction input of a swapchain.
// Depth prepares the chain for a depth target.
type SwapchainDesc struct {
	Surface    Surface
	ImageCount int
	Format     Format
	Extent     Extent
	Depth      bool
}
