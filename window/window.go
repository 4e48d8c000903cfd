// Package window owns the SDL window the renderer presents into and turns
// SDL events into frame events.
package window

import (
	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/vkngwrapper/framepipe/driver"
	"github.com/vkngwrapper/framepipe/frame"
)

// Window is an SDL window with a Vulkan surface the renderer presents into.
type Window struct {
	window *sdl.Window
}

// New initializes SDL video and opens a resizable Vulkan-capable window.
func New(title string, width, height int) (*Window, error) {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, errors.Wrap(err, "init sdl")
	}

	window, err := sdl.CreateWindow(title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED, int32(width), int32(height), sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.Quit()
		return nil, errors.Wrap(err, "create window")
	}
	return &Window{window: window}, nil
}

// SDL returns the underlying window for surface creation.
func (w *Window) SDL() *sdl.Window { return w.window }

// DrawableExtent is the size of the drawable area in pixels, which differs
// from the window size on high-DPI displays. It is zero while minimized.
func (w *Window) DrawableExtent() driver.Extent {
	if w.window.GetFlags()&sdl.WINDOW_MINIMIZED != 0 {
		return driver.Extent{}
	}
	width, height := w.window.VulkanGetDrawableSize()
	return driver.Extent{Width: int(width), Height: int(height)}
}

// Poll drains the SDL event queue.
func (w *Window) Poll() []frame.Event {
	var events []frame.Event
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		if ev, ok := translate(event, w.DrawableExtent); ok {
			events = append(events, ev)
		}
	}
	return events
}

func translate(event sdl.Event, extent func() driver.Extent) (frame.Event, bool) {
	switch e := event.(type) {
	case *sdl.QuitEvent:
		return frame.Event{Kind: frame.EventQuit}, true
	case *sdl.WindowEvent:
		switch e.Event {
		case sdl.WINDOWEVENT_CLOSE:
			return frame.Event{Kind: frame.EventQuit}, true
		case sdl.WINDOWEVENT_MINIMIZED:
			return frame.Event{Kind: frame.EventResize}, true
		case sdl.WINDOWEVENT_RESTORED, sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED:
			return frame.Event{Kind: frame.EventResize, Extent: extent()}, true
		}
	}
	return frame.Event{}, false
}

func (w *Window) Destroy() {
	if w.window != nil {
		w.window.Destroy()
		w.window = nil
	}
	sdl.Quit()
}
