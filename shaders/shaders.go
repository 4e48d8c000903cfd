// Package shaders loads compiled SPIR-V for the renderer. The GLSL sources
// live in src/; run `go generate` with glslc on the PATH to rebuild them.
package shaders

import (
	"encoding/binary"
	"io/fs"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/framepipe/driver"
)

//go:generate glslc src/triangle.vert -o triangle.vert.spv
//go:generate glslc src/triangle.frag -o triangle.frag.spv
//go:generate glslc src/ubo.vert -o ubo.vert.spv
//go:generate glslc src/ubo.frag -o ubo.frag.spv
//go:generate glslc src/model.vert -o model.vert.spv
//go:generate glslc src/model.frag -o model.frag.spv

const spirvMagic = 0x07230203

var ErrInvalidShader = errors.New("invalid SPIR-V module")

// Load reads one SPIR-V module from fsys.
func Load(fsys fs.FS, path string) ([]uint32, error) {
	b, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read shader %s", path)
	}
	code, err := Decode(b)
	return code, errors.Wrapf(err, "shader %s", path)
}

// Decode converts little-endian SPIR-V bytes to words.
func Decode(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errors.Wrapf(ErrInvalidShader, "length %d is not a positive multiple of 4", len(b))
	}

	code := make([]uint32, len(b)/4)
	for i := range code {
		code[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	if code[0] != spirvMagic {
		return nil, errors.Wrapf(ErrInvalidShader, "bad magic %#08x", code[0])
	}
	return code, nil
}

// LoadPair loads a vertex and a fragment module.
func LoadPair(fsys fs.FS, vert, frag string) (driver.ShaderSet, error) {
	var set driver.ShaderSet
	var err error

	set.Vertex, err = Load(fsys, vert)
	if err != nil {
		return driver.ShaderSet{}, err
	}
	set.Fragment, err = Load(fsys, frag)
	if err != nil {
		return driver.ShaderSet{}, err
	}
	return set, nil
}
