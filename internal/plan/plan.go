// Package plan loads and executes launch plans: YAML manifests that
// declare buffers, WGSL kernels and a sequence of dispatch steps. A
// plan is the command-line integration surface for generated kernels —
// what a code generator would drive through the API, written down as
// data.
package plan

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrInvalidPlan marks any validation failure in a parsed plan.
var ErrInvalidPlan = errors.New("plan: invalid launch plan")

// Plan is a parsed launch-plan manifest.
type Plan struct {
	// Capacity overrides the context batch capacity. Zero means the
	// runner's default.
	Capacity int `yaml:"capacity"`

	Kernels []KernelSpec `yaml:"kernels"`
	Buffers []BufferSpec `yaml:"buffers"`
	Steps   []Step       `yaml:"steps"`
}

// KernelSpec names one entry point of a WGSL module. Source is inline
// WGSL text; File loads it from a path relative to the plan file.
// Exactly one of the two must be set.
type KernelSpec struct {
	Name   string `yaml:"name"`
	Entry  string `yaml:"entry"` // defaults to Name
	Source string `yaml:"source"`
	File   string `yaml:"file"`
}

// BufferSpec declares one device buffer. Size is in bytes; when F32 or
// U32 initial contents are given, Size may be omitted and is derived.
type BufferSpec struct {
	Name string    `yaml:"name"`
	Size int       `yaml:"size"`
	F32  []float32 `yaml:"f32"`
	U32  []uint32  `yaml:"u32"`
}

// Step is one action in the plan. Exactly one field is set per step.
type Step struct {
	Launch *LaunchStep `yaml:"launch,omitempty"`
	Submit bool        `yaml:"submit,omitempty"`
	Sync   bool        `yaml:"sync,omitempty"`
	Dump   *DumpStep   `yaml:"dump,omitempty"`
}

// LaunchStep dispatches a kernel over blocks×threads geometry with the
// named buffers bound as sequential argument slots.
type LaunchStep struct {
	Kernel  string    `yaml:"kernel"`
	Args    []string  `yaml:"args"`
	Blocks  [3]uint32 `yaml:"blocks"`
	Threads [3]uint32 `yaml:"threads"`
}

// DumpStep prints buffer contents after execution. As selects the
// element view: "f32", "u32" or "bytes" (default). Limit truncates the
// output; zero prints everything.
type DumpStep struct {
	Buffer string `yaml:"buffer"`
	As     string `yaml:"as"`
	Limit  int    `yaml:"limit"`
}

// Parse decodes a manifest. Unknown fields are rejected so typos in
// hand-written plans fail loudly.
func Parse(data []byte) (*Plan, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var p Plan
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Load reads, parses and validates a plan file, resolving kernel File
// references relative to the plan's directory.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	for i := range p.Kernels {
		k := &p.Kernels[i]
		if k.File == "" {
			continue
		}
		src, err := os.ReadFile(filepath.Join(dir, k.File))
		if err != nil {
			return nil, fmt.Errorf("%w: kernel %q: %v", ErrInvalidPlan, k.Name, err)
		}
		k.Source = string(src)
		k.File = ""
	}
	return p, nil
}

// Validate checks internal consistency: unique names, resolvable
// references, sane geometry. It does not touch the device.
func (p *Plan) Validate() error {
	if p.Capacity < 0 {
		return fmt.Errorf("%w: capacity must not be negative", ErrInvalidPlan)
	}

	kernels := make(map[string]bool, len(p.Kernels))
	for _, k := range p.Kernels {
		if k.Name == "" {
			return fmt.Errorf("%w: kernel without a name", ErrInvalidPlan)
		}
		if kernels[k.Name] {
			return fmt.Errorf("%w: duplicate kernel %q", ErrInvalidPlan, k.Name)
		}
		if (k.Source == "") == (k.File == "") {
			return fmt.Errorf("%w: kernel %q needs exactly one of source or file",
				ErrInvalidPlan, k.Name)
		}
		kernels[k.Name] = true
	}

	buffers := make(map[string]bool, len(p.Buffers))
	for _, b := range p.Buffers {
		if b.Name == "" {
			return fmt.Errorf("%w: buffer without a name", ErrInvalidPlan)
		}
		if buffers[b.Name] {
			return fmt.Errorf("%w: duplicate buffer %q", ErrInvalidPlan, b.Name)
		}
		if len(b.F32) > 0 && len(b.U32) > 0 {
			return fmt.Errorf("%w: buffer %q has both f32 and u32 contents",
				ErrInvalidPlan, b.Name)
		}
		if b.Size < 0 {
			return fmt.Errorf("%w: buffer %q has negative size", ErrInvalidPlan, b.Name)
		}
		if b.Size == 0 && len(b.F32) == 0 && len(b.U32) == 0 {
			return fmt.Errorf("%w: buffer %q has no size and no contents",
				ErrInvalidPlan, b.Name)
		}
		if n := b.contentSize(); n != 0 && b.Size != 0 && b.Size != n {
			return fmt.Errorf("%w: buffer %q size %d does not match contents (%d bytes)",
				ErrInvalidPlan, b.Name, b.Size, n)
		}
		buffers[b.Name] = true
	}

	for i, s := range p.Steps {
		set := 0
		if s.Launch != nil {
			set++
		}
		if s.Submit {
			set++
		}
		if s.Sync {
			set++
		}
		if s.Dump != nil {
			set++
		}
		if set != 1 {
			return fmt.Errorf("%w: step %d must set exactly one action", ErrInvalidPlan, i)
		}
		if l := s.Launch; l != nil {
			if !kernels[l.Kernel] {
				return fmt.Errorf("%w: step %d launches unknown kernel %q",
					ErrInvalidPlan, i, l.Kernel)
			}
			for _, a := range l.Args {
				if !buffers[a] {
					return fmt.Errorf("%w: step %d references unknown buffer %q",
						ErrInvalidPlan, i, a)
				}
			}
			for _, d := range [2][3]uint32{l.Blocks, l.Threads} {
				if d[0] == 0 || d[1] == 0 || d[2] == 0 {
					return fmt.Errorf("%w: step %d has zero launch dimension (use 1)",
						ErrInvalidPlan, i)
				}
			}
		}
		if d := s.Dump; d != nil {
			if !buffers[d.Buffer] {
				return fmt.Errorf("%w: step %d dumps unknown buffer %q",
					ErrInvalidPlan, i, d.Buffer)
			}
			switch d.As {
			case "", "bytes", "f32", "u32":
			default:
				return fmt.Errorf("%w: step %d has unknown dump view %q",
					ErrInvalidPlan, i, d.As)
			}
		}
	}
	return nil
}

// byteSize returns the buffer's allocation size in bytes.
func (b *BufferSpec) byteSize() int {
	if n := b.contentSize(); n > 0 {
		return n
	}
	return b.Size
}

func (b *BufferSpec) contentSize() int {
	if len(b.F32) > 0 {
		return 4 * len(b.F32)
	}
	if len(b.U32) > 0 {
		return 4 * len(b.U32)
	}
	return 0
}
