// Package geometry builds the static meshes drawn by the example programs.
package geometry

import (
	"bytes"
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/common"

	"github.com/vkngwrapper/framepipe/driver"
)

// Vertex2D is a colored vertex in the z = 0 plane.
type Vertex2D struct {
	Position mgl32.Vec2
	Color    mgl32.Vec3
}

// Vertex3D is a colored vertex in model space.
type Vertex3D struct {
	Position mgl32.Vec3
	Color    mgl32.Vec3
}

func layout2D() driver.VertexLayout {
	v := Vertex2D{}
	return driver.VertexLayout{
		Stride: int(unsafe.Sizeof(v)),
		Attributes: []driver.VertexAttribute{
			{Location: 0, Format: driver.AttributeFloat2, Offset: int(unsafe.Offsetof(v.Position))},
			{Location: 1, Format: driver.AttributeFloat3, Offset: int(unsafe.Offsetof(v.Color))},
		},
	}
}

func layout3D() driver.VertexLayout {
	v := Vertex3D{}
	return driver.VertexLayout{
		Stride: int(unsafe.Sizeof(v)),
		Attributes: []driver.VertexAttribute{
			{Location: 0, Format: driver.AttributeFloat3, Offset: int(unsafe.Offsetof(v.Position))},
			{Location: 1, Format: driver.AttributeFloat3, Offset: int(unsafe.Offsetof(v.Color))},
		},
	}
}

// Mesh is vertex data with an optional index list. Indices are encoded as
// 16-bit values when every vertex is addressable that way.
type Mesh struct {
	layout      driver.VertexLayout
	vertices    any
	vertexCount int
	indices     []uint32
}

func New2D(vertices []Vertex2D, indices []uint32) *Mesh {
	return &Mesh{layout: layout2D(), vertices: vertices, vertexCount: len(vertices), indices: indices}
}

func New3D(vertices []Vertex3D, indices []uint32) *Mesh {
	return &Mesh{layout: layout3D(), vertices: vertices, vertexCount: len(vertices), indices: indices}
}

func (m *Mesh) Layout() driver.VertexLayout { return m.layout }

func (m *Mesh) VertexCount() int { return m.vertexCount }

func (m *Mesh) VertexData() ([]byte, error) {
	return encode(m.vertices)
}

func (m *Mesh) IndexCount() int { return len(m.indices) }

func (m *Mesh) IndexType() driver.IndexType {
	if m.vertexCount > math.MaxUint16+1 {
		return driver.IndexUint32
	}
	return driver.IndexUint16
}

// IndexData returns nil for a mesh without indices.
func (m *Mesh) IndexData() ([]byte, error) {
	if len(m.indices) == 0 {
		return nil, nil
	}
	for _, index := range m.indices {
		if int(index) >= m.vertexCount {
			return nil, errors.Newf("index %d out of range for %d vertices", index, m.vertexCount)
		}
	}

	if m.IndexType() == driver.IndexUint32 {
		return encode(m.indices)
	}
	short := make([]uint16, len(m.indices))
	for i, index := range m.indices {
		short[i] = uint16(index)
	}
	return encode(short)
}

func encode(data any) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, common.ByteOrder, data); err != nil {
		return nil, errors.Wrap(err, "encode mesh data")
	}
	return buf.Bytes(), nil
}

// Triangle is a single red, green and blue triangle.
func Triangle() *Mesh {
	return New2D([]Vertex2D{
		{Position: mgl32.Vec2{0, -0.5}, Color: mgl32.Vec3{1, 0, 0}},
		{Position: mgl32.Vec2{0.5, 0.5}, Color: mgl32.Vec3{0, 1, 0}},
		{Position: mgl32.Vec2{-0.5, 0.5}, Color: mgl32.Vec3{0, 0, 1}},
	}, nil)
}

// Quad is an indexed unit quad centered on the origin.
func Quad() *Mesh {
	return New2D([]Vertex2D{
		{Position: mgl32.Vec2{-0.5, -0.5}, Color: mgl32.Vec3{1, 0, 0}},
		{Position: mgl32.Vec2{0.5, -0.5}, Color: mgl32.Vec3{0, 1, 0}},
		{Position: mgl32.Vec2{0.5, 0.5}, Color: mgl32.Vec3{0, 0, 1}},
		{Position: mgl32.Vec2{-0.5, 0.5}, Color: mgl32.Vec3{1, 1, 1}},
	}, []uint32{0, 1, 2, 2, 3, 0})
}
