package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"github.com/vkngwrapper/framepipe/driver"
	"github.com/vkngwrapper/framepipe/frame"
	"github.com/vkngwrapper/framepipe/geometry"
	"github.com/vkngwrapper/framepipe/shaders"
	"github.com/vkngwrapper/framepipe/vulkan"
	"github.com/vkngwrapper/framepipe/window"
)

const (
	enableValidationLayers = true
	MaxFramesInFlight      = 2
)

func updateUniformBuffer(info frame.FrameInfo) ([]byte, error) {
	ubo := geometry.Spin(info.Time.Seconds(), 90, info.Extent)
	return ubo.Bytes()
}

func run() error {
	win, err := window.New("Rotating Quad", 800, 600)
	if err != nil {
		return err
	}
	defer win.Destroy()

	inst, err := vulkan.NewInstance(win.SDL(), vulkan.Options{
		AppName:          "Rotating Quad",
		EnableValidation: enableValidationLayers,
	})
	if err != nil {
		return err
	}
	defer inst.Destroy()

	shaderSet, err := shaders.LoadPair(os.DirFS("shaders"), "ubo.vert.spv", "ubo.frag.spv")
	if err != nil {
		return err
	}

	renderer, err := frame.NewRenderer(inst, frame.Config{
		Requirements: driver.Requirements{
			RequireDiscrete: true,
			Capabilities:    driver.CapGraphics | driver.CapPresent | driver.CapSwapchain,
		},
		FramesInFlight: MaxFramesInFlight,
		Extent:         win.DrawableExtent(),
		ClearColor:     driver.Color{R: 0.1, G: 0.1, B: 0.15, A: 1},
		Shaders:        shaderSet,
		Geometry:       geometry.Quad(),
		UniformSize:    geometry.TransformSize,
		Update:         updateUniformBuffer,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err = renderer.Run(ctx, win)
	stats := renderer.Stats()
	driver.Logger().Info("done", "frames", stats.Frames, "skipped", stats.Skipped, "recreated", stats.Recreated)
	return err
}

func main() {
	driver.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	err := run()
	if err != nil {
		log.Fatalf("%+v\n", err)
	}
}
