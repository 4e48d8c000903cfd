package geometry

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkngwrapper/framepipe/driver"
)

func TestTriangle(t *testing.T) {
	mesh := Triangle()
	assert.Equal(t, 3, mesh.VertexCount())
	assert.Equal(t, 20, mesh.Layout().Stride)
	assert.Equal(t, []driver.VertexAttribute{
		{Location: 0, Format: driver.AttributeFloat2, Offset: 0},
		{Location: 1, Format: driver.AttributeFloat3, Offset: 8},
	}, mesh.Layout().Attributes)

	data, err := mesh.VertexData()
	require.NoError(t, err)
	require.Len(t, data, 3*20)
	assert.Equal(t, float32(-0.5), math.Float32frombits(binary.LittleEndian.Uint32(data[4:])))
	assert.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(data[8:])))

	indices, err := mesh.IndexData()
	require.NoError(t, err)
	assert.Nil(t, indices)
	assert.Zero(t, mesh.IndexCount())
}

func TestQuadIndices(t *testing.T) {
	mesh := Quad()
	assert.Equal(t, 6, mesh.IndexCount())
	assert.Equal(t, driver.IndexUint16, mesh.IndexType())

	data, err := mesh.IndexData()
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 1, 0, 2, 0, 2, 0, 3, 0, 0, 0}, data)
}

func TestIndexOutOfRange(t *testing.T) {
	mesh := New2D(Triangle().vertices.([]Vertex2D), []uint32{0, 1, 3})
	_, err := mesh.IndexData()
	assert.Error(t, err)
}

func TestWideIndices(t *testing.T) {
	vertices := make([]Vertex3D, math.MaxUint16+2)
	mesh := New3D(vertices, []uint32{0, 1, math.MaxUint16 + 1})
	assert.Equal(t, driver.IndexUint32, mesh.IndexType())
	assert.Equal(t, 24, mesh.Layout().Stride)

	data, err := mesh.IndexData()
	require.NoError(t, err)
	require.Len(t, data, 12)
	assert.Equal(t, uint32(math.MaxUint16+1), binary.LittleEndian.Uint32(data[8:]))
}

func TestTransformBytes(t *testing.T) {
	transform := Spin(1, 90, driver.Extent{Width: 800, Height: 600})
	data, err := transform.Bytes()
	require.NoError(t, err)
	assert.Len(t, data, TransformSize)

	expected := mgl32.HomogRotate3D(mgl32.DegToRad(90), mgl32.Vec3{0, 0, 1})
	assert.True(t, transform.Model.ApproxEqual(expected))
}

func TestPerspectiveFlipsY(t *testing.T) {
	proj := Perspective(mgl32.DegToRad(90), driver.Extent{Width: 100, Height: 100}, 0.1, 10)
	assert.InDelta(t, 1, proj.At(0, 0), 1e-5)
	assert.InDelta(t, -1, proj.At(1, 1), 1e-5)
	assert.Equal(t, float32(-1), proj.At(3, 2))
}
