package plan

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/kiln-ml/kiln/internal/device"
	"github.com/kiln-ml/kiln/internal/logger"
)

// DefaultCapacity is the batch capacity used when a plan does not set
// its own.
const DefaultCapacity = 8

// Runner executes plans against a device context it owns.
type Runner struct {
	ctx *device.Context
	log logger.Logger
	out io.Writer
}

// NewRunner opens a context sized for the plan and prepares execution.
// The caller must Close the runner.
func NewRunner(p *Plan, opts device.Options, out io.Writer) (*Runner, error) {
	if opts.BatchCapacity == 0 {
		opts.BatchCapacity = DefaultCapacity
	}
	if p.Capacity > 0 {
		opts.BatchCapacity = p.Capacity
	}
	log := opts.Logger
	if log == nil {
		log = logger.Default()
		opts.Logger = log
	}
	ctx, err := device.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Runner{ctx: ctx, log: log, out: out}, nil
}

// Close releases the runner's device context.
func (r *Runner) Close() {
	r.ctx.Release()
}

// Run executes the plan: allocate and fill buffers, compile modules,
// resolve kernels, then walk the steps in order. A trailing Sync is
// issued so dumps and buffer reads observe device writes even when the
// plan forgot one.
func (r *Runner) Run(p *Plan) error {
	kernels := make(map[string]*device.Kernel, len(p.Kernels))
	for _, ks := range p.Kernels {
		mod, err := r.ctx.LoadModule(ks.Source)
		if err != nil {
			return fmt.Errorf("kernel %q: %w", ks.Name, err)
		}
		entry := ks.Entry
		if entry == "" {
			entry = ks.Name
		}
		k, err := mod.Kernel(entry)
		if err != nil {
			return fmt.Errorf("kernel %q: %w", ks.Name, err)
		}
		kernels[ks.Name] = k
		r.log.Debug("kernel resolved", "name", ks.Name, "entry", entry,
			"max_threads", k.MaxThreadsPerGroup())
	}

	buffers := make(map[string]device.Buffer, len(p.Buffers))
	for _, bs := range p.Buffers {
		h, err := r.ctx.Alloc(bs.byteSize())
		if err != nil {
			return fmt.Errorf("buffer %q: %w", bs.Name, err)
		}
		buffers[bs.Name] = h
		if init := bs.encode(); len(init) > 0 {
			if err := r.ctx.Copy(h, init, len(init), device.CopyHostToDevice); err != nil {
				return fmt.Errorf("buffer %q: %w", bs.Name, err)
			}
		}
	}

	for i, s := range p.Steps {
		switch {
		case s.Launch != nil:
			l := s.Launch
			args := make([]device.Buffer, len(l.Args))
			for j, a := range l.Args {
				args[j] = buffers[a]
			}
			err := r.ctx.Launch(kernels[l.Kernel], args,
				device.Dim3{X: l.Blocks[0], Y: l.Blocks[1], Z: l.Blocks[2]},
				device.Dim3{X: l.Threads[0], Y: l.Threads[1], Z: l.Threads[2]})
			if err != nil {
				return fmt.Errorf("step %d: launch %q: %w", i, l.Kernel, err)
			}
		case s.Submit:
			if err := r.ctx.Submit(); err != nil {
				return fmt.Errorf("step %d: submit: %w", i, err)
			}
		case s.Sync:
			if err := r.ctx.Sync(); err != nil {
				return fmt.Errorf("step %d: sync: %w", i, err)
			}
		case s.Dump != nil:
			// Dumps observe results only after completed work; flush
			// anything still batched before reading.
			if err := r.ctx.Sync(); err != nil {
				return fmt.Errorf("step %d: sync before dump: %w", i, err)
			}
			if err := r.dump(s.Dump, buffers[s.Dump.Buffer]); err != nil {
				return fmt.Errorf("step %d: dump %q: %w", i, s.Dump.Buffer, err)
			}
		}
	}

	if err := r.ctx.Sync(); err != nil {
		return fmt.Errorf("final sync: %w", err)
	}

	for name, h := range buffers {
		if err := r.ctx.Free(h); err != nil {
			return fmt.Errorf("buffer %q: %w", name, err)
		}
	}
	return nil
}

func (r *Runner) dump(d *DumpStep, h device.Buffer) error {
	data, err := r.ctx.HostBytes(h)
	if err != nil {
		return err
	}
	switch d.As {
	case "f32":
		n := len(data) / 4
		if d.Limit > 0 && d.Limit < n {
			n = d.Limit
		}
		fmt.Fprintf(r.out, "%s:", d.Buffer)
		for i := 0; i < n; i++ {
			bits := binary.LittleEndian.Uint32(data[4*i:])
			fmt.Fprintf(r.out, " %g", math.Float32frombits(bits))
		}
		fmt.Fprintln(r.out)
	case "u32":
		n := len(data) / 4
		if d.Limit > 0 && d.Limit < n {
			n = d.Limit
		}
		fmt.Fprintf(r.out, "%s:", d.Buffer)
		for i := 0; i < n; i++ {
			fmt.Fprintf(r.out, " %d", binary.LittleEndian.Uint32(data[4*i:]))
		}
		fmt.Fprintln(r.out)
	default:
		n := len(data)
		if d.Limit > 0 && d.Limit < n {
			n = d.Limit
		}
		fmt.Fprintf(r.out, "%s: %x\n", d.Buffer, data[:n])
	}
	return nil
}

// encode serializes the declared initial contents little-endian, the
// byte order WebGPU buffers use on every supported platform.
func (b *BufferSpec) encode() []byte {
	switch {
	case len(b.F32) > 0:
		out := make([]byte, 4*len(b.F32))
		for i, v := range b.F32 {
			binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
		}
		return out
	case len(b.U32) > 0:
		out := make([]byte, 4*len(b.U32))
		for i, v := range b.U32 {
			binary.LittleEndian.PutUint32(out[4*i:], v)
		}
		return out
	default:
		return nil
	}
}
