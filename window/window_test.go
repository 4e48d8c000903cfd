package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/vkngwrapper/framepipe/driver"
	"github.com/vkngwrapper/framepipe/frame"
)

func TestTranslate(t *testing.T) {
	size := driver.Extent{Width: 1280, Height: 720}
	extent := func() driver.Extent { return size }

	testCases := []struct {
		name  string
		event sdl.Event
		want  frame.Event
		ok    bool
	}{
		{"quit", &sdl.QuitEvent{}, frame.Event{Kind: frame.EventQuit}, true},
		{"close", &sdl.WindowEvent{Event: sdl.WINDOWEVENT_CLOSE}, frame.Event{Kind: frame.EventQuit}, true},
		{"minimized", &sdl.WindowEvent{Event: sdl.WINDOWEVENT_MINIMIZED}, frame.Event{Kind: frame.EventResize}, true},
		{"restored", &sdl.WindowEvent{Event: sdl.WINDOWEVENT_RESTORED}, frame.Event{Kind: frame.EventResize, Extent: size}, true},
		{"resized", &sdl.WindowEvent{Event: sdl.WINDOWEVENT_RESIZED}, frame.Event{Kind: frame.EventResize, Extent: size}, true},
		{"size changed", &sdl.WindowEvent{Event: sdl.WINDOWEVENT_SIZE_CHANGED}, frame.Event{Kind: frame.EventResize, Extent: size}, true},
		{"focus", &sdl.WindowEvent{Event: sdl.WINDOWEVENT_FOCUS_GAINED}, frame.Event{}, false},
		{"key", &sdl.KeyboardEvent{}, frame.Event{}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := translate(tc.event, extent)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMinimizedResizeSuspends(t *testing.T) {
	ev, ok := translate(&sdl.WindowEvent{Event: sdl.WINDOWEVENT_MINIMIZED}, func() driver.Extent {
		t.Fatal("minimize must not query the drawable size")
		return driver.Extent{}
	})
	assert.True(t, ok)
	assert.True(t, ev.Extent.Zero())
}
