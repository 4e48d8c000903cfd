package main

import (
	"context"
	"embed"
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

//go:embed meshes
var fileSystem embed.FS

const enableValidationLayers = true

func loadModel() (*geometry.Mesh, error) {
	meshFile, err := fileSystem.Open("meshes/cube.obj")
	if err != nil {
		return nil, err
	}
	defer meshFile.Close()

	matFile, err := fileSystem.Open("meshes/cube.mtl")
	if err != nil {
		return nil, err
	}
	defer matFile.Close()

	return geometry.LoadOBJ(meshFile, matFile)
}

func run() error {
	model, err := loadModel()
	if err != nil {
		return err
	}

	win, err := window.New("Model Loading", 800, 600)
	if err != nil {
		return err
	}
	defer win.Destroy()

	inst, err := vulkan.NewInstance(win.SDL(), vulkan.Options{
		AppName:          "Model Loading",
		EnableValidation: enableValidationLayers,
	})
	if err != nil {
		return err
	}
	defer inst.Destroy()

	shaderSet, err := shaders.LoadPair(os.DirFS("shaders"), "model.vert.spv", "model.frag.spv")
	if err != nil {
		return err
	}

	renderer, err := frame.NewRenderer(inst, frame.Config{
		Requirements: driver.Requirements{
			Capabilities: driver.CapGraphics | driver.CapPresent | driver.CapSwapchain,
		},
		Extent:      win.DrawableExtent(),
		Shaders:     shaderSet,
		Geometry:    model,
		UniformSize: geometry.TransformSize,
		Depth:       true,
		Update: func(info frame.FrameInfo) ([]byte, error) {
			ubo := geometry.Spin(info.Time.Seconds(), 45, info.Extent)
			return ubo.Bytes()
		},
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
	driver.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))

	err := run()
	if err != nil {
		log.Fatalf("%+v\n", err)
	}
}
