package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/framepipe/driver"
)

// Pipeline is a graphics pipeline built against one swapchain's render
// pass. Viewport and scissor are dynamic.
type Pipeline struct {
	layout   core1_0.PipelineLayout
	pipeline core1_0.Pipeline
	uniform  bool
}

func (p *Pipeline) Destroy() {
	if p.pipeline != nil {
		p.pipeline.Destroy(nil)
		p.pipeline = nil
	}

	if p.layout != nil {
		p.layout.Destroy(nil)
		p.layout = nil
	}
}

func (d *Device) createShaderModule(code []uint32) (core1_0.ShaderModule, error) {
	module, _, err := d.device.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: code,
	})
	return module, err
}

// CreatePipeline builds a triangle-list pipeline for desc, rendering into
// target's render pass. With desc.UniformSize > 0 the layout carries the
// device's uniform descriptor set layout at set 0.
func (d *Device) CreatePipeline(desc driver.PipelineDesc, target driver.Swapchain) (driver.Pipeline, error) {
	chain, ok := target.(*Swapchain)
	if !ok || chain.renderPass == nil {
		return nil, errors.Newf("create pipeline: not a live vulkan swapchain (%T)", target)
	}
	if desc.DepthTest && !chain.depth {
		return nil, errors.New("create pipeline: depth test on a swapchain without depth")
	}

	vertShader, err := d.createShaderModule(desc.Shaders.Vertex)
	if err != nil {
		return nil, errors.Wrap(err, "create vertex shader module")
	}
	defer vertShader.Destroy(nil)

	fragShader, err := d.createShaderModule(desc.Shaders.Fragment)
	if err != nil {
		return nil, errors.Wrap(err, "create fragment shader module")
	}
	defer fragShader.Destroy(nil)

	var attributes []core1_0.VertexInputAttributeDescription
	for _, attr := range desc.Layout.Attributes {
		format, err := toVkAttributeFormat(attr.Format)
		if err != nil {
			return nil, err
		}
		attributes = append(attributes, core1_0.VertexInputAttributeDescription{
			Binding:  0,
			Location: attr.Location,
			Format:   format,
			Offset:   attr.Offset,
		})
	}

	vertexInput := &core1_0.PipelineVertexInputStateCreateInfo{
		VertexBindingDescriptions: []core1_0.VertexInputBindingDescription{
			{
				Binding:   0,
				Stride:    desc.Layout.Stride,
				InputRate: core1_0.VertexInputRateVertex,
			},
		},
		VertexAttributeDescriptions: attributes,
	}

	inputAssembly := &core1_0.PipelineInputAssemblyStateCreateInfo{
		Topology:               core1_0.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: false,
	}

	vertStage := core1_0.PipelineShaderStageCreateInfo{
		Stage:  core1_0.StageVertex,
		Module: vertShader,
		Name:   "main",
	}

	fragStage := core1_0.PipelineShaderStageCreateInfo{
		Stage:  core1_0.StageFragment,
		Module: fragShader,
		Name:   "main",
	}

	// Counts only; the values are set per frame.
	viewport := &core1_0.PipelineViewportStateCreateInfo{
		Viewports: []core1_0.Viewport{
			{
				Width:    float32(chain.extent.Width),
				Height:   float32(chain.extent.Height),
				MinDepth: 0,
				MaxDepth: 1,
			},
		},
		Scissors: []core1_0.Rect2D{
			{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: chain.extent,
			},
		},
	}

	dynamic := &core1_0.PipelineDynamicStateCreateInfo{
		DynamicStates: []core1_0.DynamicState{
			core1_0.DynamicStateViewport,
			core1_0.DynamicStateScissor,
		},
	}

	rasterization := &core1_0.PipelineRasterizationStateCreateInfo{
		DepthClampEnable:        false,
		RasterizerDiscardEnable: false,

		// No culling: geometry sources do not agree on winding. Closed
		// meshes rely on the depth test instead.
		PolygonMode: core1_0.PolygonModeFill,
		CullMode:    0,
		FrontFace:   core1_0.FrontFaceCounterClockwise,

		DepthBiasEnable: false,

		LineWidth: 1.0,
	}

	multisample := &core1_0.PipelineMultisampleStateCreateInfo{
		SampleShadingEnable:  false,
		RasterizationSamples: core1_0.Samples1,
		MinSampleShading:     1.0,
	}

	var depthStencil *core1_0.PipelineDepthStencilStateCreateInfo
	if desc.DepthTest {
		depthStencil = &core1_0.PipelineDepthStencilStateCreateInfo{
			DepthTestEnable:  true,
			DepthWriteEnable: true,
			DepthCompareOp:   core1_0.CompareOpLess,
		}
	}

	colorBlend := &core1_0.PipelineColorBlendStateCreateInfo{
		LogicOpEnabled: false,
		LogicOp:        core1_0.LogicOpCopy,

		BlendConstants: [4]float32{0, 0, 0, 0},
		Attachments: []core1_0.PipelineColorBlendAttachmentState{
			{
				BlendEnabled:   false,
				ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
			},
		},
	}

	p := &Pipeline{uniform: desc.UniformSize > 0}
	layoutInfo := core1_0.PipelineLayoutCreateInfo{}
	if p.uniform {
		layoutInfo.SetLayouts = []core1_0.DescriptorSetLayout{d.descriptorSetLayout}
	}
	p.layout, _, err = d.device.CreatePipelineLayout(nil, layoutInfo)
	if err != nil {
		return nil, errors.Wrap(err, "create pipeline layout")
	}

	pipelines, _, err := d.device.CreateGraphicsPipelines(nil, nil, []core1_0.GraphicsPipelineCreateInfo{
		{
			Stages: []core1_0.PipelineShaderStageCreateInfo{
				vertStage,
				fragStage,
			},
			VertexInputState:   vertexInput,
			InputAssemblyState: inputAssembly,
			ViewportState:      viewport,
			RasterizationState: rasterization,
			MultisampleState:   multisample,
			DepthStencilState:  depthStencil,
			ColorBlendState:    colorBlend,
			DynamicState:       dynamic,
			Layout:             p.layout,
			RenderPass:         chain.renderPass,
			Subpass:            0,
			BasePipelineIndex:  -1,
		},
	})
	if err != nil {
		p.Destroy()
		return nil, errors.Wrap(err, "create graphics pipeline")
	}
	p.pipeline = pipelines[0]

	return p, nil
}
