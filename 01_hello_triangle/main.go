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

const enableValidationLayers = true

func run() error {
	win, err := window.New("Hello Triangle", 800, 600)
	if err != nil {
		return err
	}
	defer win.Destroy()

	inst, err := vulkan.NewInstance(win.SDL(), vulkan.Options{
		AppName:          "Hello Triangle",
		EnableValidation: enableValidationLayers,
	})
	if err != nil {
		return err
	}
	defer inst.Destroy()

	shaderSet, err := shaders.LoadPair(os.DirFS("shaders"), "triangle.vert.spv", "triangle.frag.spv")
	if err != nil {
		return err
	}

	renderer, err := frame.NewRenderer(inst, frame.Config{
		Requirements: driver.Requirements{
			Capabilities: driver.CapGraphics | driver.CapPresent | driver.CapSwapchain,
		},
		Extent:   win.DrawableExtent(),
		Shaders:  shaderSet,
		Geometry: geometry.Triangle(),
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
