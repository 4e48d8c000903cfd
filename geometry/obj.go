package geometry

import (
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"
)

type objVertexKey struct {
	vertex   int
	material string
}

// LoadOBJ decodes a Wavefront OBJ mesh. Faces are triangulated as fans and
// vertices take the diffuse color of their face's material, or white.
// mtl may be nil.
func LoadOBJ(objFile, mtlFile io.Reader) (*Mesh, error) {
	if mtlFile == nil {
		mtlFile = strings.NewReader("")
	}

	decoder, err := obj.DecodeReader(objFile, mtlFile)
	if err != nil {
		return nil, errors.Wrap(err, "decode obj")
	}

	var vertices []Vertex3D
	var indices []uint32
	unique := make(map[objVertexKey]uint32)

	addVertex := func(face obj.Face, faceIndex int) error {
		vertInd := face.Vertices[faceIndex]
		if vertInd < 0 || vertInd*3+2 >= len(decoder.Vertices) {
			return errors.Newf("face references missing vertex %d", vertInd)
		}

		key := objVertexKey{vertex: vertInd, material: face.Material}
		index, ok := unique[key]
		if !ok {
			vert := Vertex3D{
				Position: mgl32.Vec3{
					decoder.Vertices[vertInd*3],
					decoder.Vertices[vertInd*3+1],
					decoder.Vertices[vertInd*3+2],
				},
				Color: mgl32.Vec3{1, 1, 1},
			}
			if mat, ok := decoder.Materials[face.Material]; ok && mat != nil {
				vert.Color = mgl32.Vec3{mat.Diffuse.R, mat.Diffuse.G, mat.Diffuse.B}
			}

			index = uint32(len(vertices))
			vertices = append(vertices, vert)
			unique[key] = index
		}
		indices = append(indices, index)
		return nil
	}

	for _, decodedObj := range decoder.Objects {
		for _, face := range decodedObj.Faces {
			for i := 2; i < len(face.Vertices); i++ {
				for _, corner := range []int{0, i - 1, i} {
					if err := addVertex(face, corner); err != nil {
						return nil, err
					}
				}
			}
		}
	}

	if len(indices) == 0 {
		return nil, errors.New("obj contains no faces")
	}
	return New3D(vertices, indices), nil
}
