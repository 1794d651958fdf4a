package device

import (
	"fmt"

	"github.com/openfluke/webgpu/wgpu"
)

// Module is a compiled kernel module: WGSL source text turned into a
// shader module holding one or more named entry points.
type Module struct {
	ctx    *Context
	shader *wgpu.ShaderModule
}

// LoadModule compiles WGSL source text into a Module. Compile errors
// wrap ErrCompileFailed and carry the compiler diagnostic. Modules are
// not cached: compiling the same source twice yields two independent
// modules.
func (c *Context) LoadModule(source string) (*Module, error) {
	shader, err := c.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "kiln_module",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: source},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompileFailed, err)
	}
	if shader == nil {
		return nil, fmt.Errorf("%w: compiler returned no module", ErrCompileFailed)
	}
	return &Module{ctx: c, shader: shader}, nil
}

// Release frees the shader module. Kernels resolved from it stay valid
// only while their cached pipelines do; resolve before releasing.
func (m *Module) Release() {
	if m.shader != nil {
		m.shader.Release()
		m.shader = nil
	}
}

// Kernel is a resolved entry point of a Module. It carries the
// device's execution-lane width and the maximum thread-group size that
// bounds launch geometry.
type Kernel struct {
	ctx   *Context
	mod   *Module
	entry string

	// pipeline is the compute pipeline built at resolution, reused by
	// every Launch while the pipeline cache is enabled. Nil when the
	// cache is disabled.
	pipeline *wgpu.ComputePipeline

	laneWidth  int
	maxThreads int
}

// Kernel resolves a named entry point. The compute pipeline is built
// eagerly, which both validates that the entry point exists and seeds
// the pipeline cache. A missing or malformed entry point wraps
// ErrNoSuchKernel.
func (m *Module) Kernel(name string) (*Kernel, error) {
	if m.shader == nil {
		return nil, fmt.Errorf("%w: %q: module is released", ErrNoSuchKernel, name)
	}
	p, err := m.ctx.buildPipeline(m.shader, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrNoSuchKernel, name, err)
	}
	k := &Kernel{
		ctx:        m.ctx,
		mod:        m,
		entry:      name,
		laneWidth:  m.ctx.laneWidth,
		maxThreads: int(m.ctx.limits.MaxComputeInvocationsPerWorkgroup),
	}
	if m.ctx.cachePipelines {
		k.pipeline = p
	} else {
		p.Release()
	}
	return k, nil
}

// Name returns the entry-point name this kernel was resolved from.
func (k *Kernel) Name() string { return k.entry }

// LaneWidth reports the execution-lane width the kernel will run at.
func (k *Kernel) LaneWidth() int { return k.laneWidth }

// MaxThreadsPerGroup reports the upper bound on thread_x*thread_y*thread_z
// for launches of this kernel.
func (k *Kernel) MaxThreadsPerGroup() int { return k.maxThreads }

// Release frees the kernel's cached pipeline, if any.
func (k *Kernel) Release() {
	if k.pipeline != nil {
		k.pipeline.Release()
		k.pipeline = nil
	}
}

// buildPipeline creates a compute pipeline for one entry point with an
// automatic layout derived from the shader's binding declarations.
func (c *Context) buildPipeline(shader *wgpu.ShaderModule, entry string) (*wgpu.ComputePipeline, error) {
	p, err := c.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "kiln_" + entry,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     shader,
			EntryPoint: entry,
		},
	})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("pipeline creation returned nil")
	}
	return p, nil
}
