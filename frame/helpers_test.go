package frame

import (
	"encoding/binary"
	"time"

	"github.com/vkngwrapper/framepipe/driver"
	"github.com/vkngwrapper/framepipe/driver/drivertest"
)

var testShaders = driver.ShaderSet{
	Vertex:   []uint32{0x07230203, 1},
	Fragment: []uint32{0x07230203, 2},
}

type testGeometry struct {
	indexed bool
}

func (g testGeometry) Layout() driver.VertexLayout {
	return driver.VertexLayout{Stride: 8, Attributes: []driver.VertexAttribute{
		{Location: 0, Format: driver.AttributeFloat2},
	}}
}

func (g testGeometry) VertexData() ([]byte, error) { return make([]byte, 8*g.VertexCount()), nil }

func (g testGeometry) VertexCount() int {
	if g.indexed {
		return 4
	}
	return 3
}

func (g testGeometry) IndexData() ([]byte, error) {
	if !g.indexed {
		return nil, nil
	}
	out := make([]byte, 0, 12)
	for _, i := range []uint16{0, 1, 2, 2, 3, 0} {
		out = binary.LittleEndian.AppendUint16(out, i)
	}
	return out, nil
}

func (g testGeometry) IndexCount() int {
	if g.indexed {
		return 6
	}
	return 0
}

func (g testGeometry) IndexType() driver.IndexType { return driver.IndexUint16 }

func testConfig() Config {
	return Config{
		Extent:      driver.Extent{Width: 800, Height: 600},
		Shaders:     testShaders,
		Geometry:    testGeometry{},
		WaitTimeout: time.Second,
	}
}

func newTestRenderer(t testingT, dev *drivertest.Device, cfg Config) (*Renderer, *drivertest.Instance) {
	adapter := drivertest.HardwareAdapter("gpu")
	adapter.Device = dev
	inst := drivertest.NewInstance(adapter)
	r, err := NewRenderer(inst, cfg)
	if err != nil {
		t.Fatalf("new renderer: %+v", err)
	}
	return r, inst
}

type testingT interface {
	Fatalf(format string, args ...any)
}

// scriptedEvents returns one batch per Poll and then nothing; after the
// script runs out it reports quit.
type scriptedEvents struct {
	batches [][]Event
	polls   int
}

func (s *scriptedEvents) Poll() []Event {
	s.polls++
	if len(s.batches) == 0 {
		return []Event{{Kind: EventQuit}}
	}
	next := s.batches[0]
	s.batches = s.batches[1:]
	return next
}

func idle(n int) [][]Event {
	return make([][]Event, n)
}
