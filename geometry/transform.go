package geometry

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/vkngwrapper/framepipe/driver"
)

// Transform is the model/view/projection uniform block shared by the
// uniform shaders.
type Transform struct {
	Model mgl32.Mat4
	View  mgl32.Mat4
	Proj  mgl32.Mat4
}

// TransformSize is the encoded size of a Transform in bytes.
const TransformSize = 3 * 16 * 4

// Bytes encodes t in the layout the shaders expect.
func (t *Transform) Bytes() ([]byte, error) {
	return encode(t)
}

// Perspective is a right-handed projection into Vulkan clip space, with
// depth in [0,1] and y pointing down.
func Perspective(fovy float32, extent driver.Extent, near, far float32) mgl32.Mat4 {
	aspectRatio := float32(extent.Width) / float32(extent.Height)
	fmn := far - near
	f := float32(1. / math.Tan(float64(fovy)/2.0))

	return mgl32.Mat4{f / aspectRatio, 0, 0, 0, 0, -f, 0, 0, 0, 0, -far / fmn, -1, 0, 0, -(far * near) / fmn, 0}
}

// Spin rotates about the z axis by degreesPerSecond over elapsed seconds and
// views the origin from (2,2,2).
func Spin(elapsed float64, degreesPerSecond float32, extent driver.Extent) Transform {
	angle := float32(math.Mod(elapsed*float64(degreesPerSecond), 360))
	return Transform{
		Model: mgl32.HomogRotate3D(mgl32.DegToRad(angle), mgl32.Vec3{0, 0, 1}),
		View:  mgl32.LookAt(2, 2, 2, 0, 0, 0, 0, 0, 1),
		Proj:  Perspective(mgl32.DegToRad(45), extent, 0.1, 10),
	}
}
