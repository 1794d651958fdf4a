package device

import (
	"sync"

	"github.com/openfluke/webgpu/wgpu"
)

// Staging buffers are pooled by size category so a Sync readback does
// not allocate a fresh MapRead buffer per touched allocation.
const (
	smallStagingThreshold  = 4 * 1024
	mediumStagingThreshold = 1024 * 1024
	maxStagingPerCategory  = 16
)

type stagingBuffer struct {
	buf  *wgpu.Buffer
	size uint64
}

// stagingPool manages MapRead|CopyDst staging buffers for readback.
// It has its own lock because release can be reached from buffer map
// callbacks.
type stagingPool struct {
	device *wgpu.Device

	mu     sync.Mutex
	small  []*stagingBuffer
	medium []*stagingBuffer
	large  []*stagingBuffer

	hits   uint64
	misses uint64
}

func newStagingPool(device *wgpu.Device) *stagingPool {
	return &stagingPool{device: device}
}

func stagingCategory(size uint64) int {
	switch {
	case size < smallStagingThreshold:
		return 0
	case size < mediumStagingThreshold:
		return 1
	default:
		return 2
	}
}

func (p *stagingPool) pool(category int) *[]*stagingBuffer {
	switch category {
	case 0:
		return &p.small
	case 1:
		return &p.medium
	default:
		return &p.large
	}
}

// acquire returns a staging buffer of at least size bytes, reusing a
// pooled one when possible.
func (p *stagingPool) acquire(size uint64) (*stagingBuffer, error) {
	p.mu.Lock()
	pool := p.pool(stagingCategory(size))
	for i, sb := range *pool {
		if sb.size >= size {
			*pool = append((*pool)[:i], (*pool)[i+1:]...)
			p.hits++
			p.mu.Unlock()
			return sb, nil
		}
	}
	p.misses++
	p.mu.Unlock()

	buf, err := p.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "kiln_staging",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	return &stagingBuffer{buf: buf, size: size}, nil
}

// release returns a staging buffer to the pool, or frees it when the
// category is full.
func (p *stagingPool) release(sb *stagingBuffer) {
	p.mu.Lock()
	pool := p.pool(stagingCategory(sb.size))
	if len(*pool) < maxStagingPerCategory {
		*pool = append(*pool, sb)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	sb.buf.Release()
}

// clear frees every pooled buffer. Called at context teardown.
func (p *stagingPool) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pool := range []*[]*stagingBuffer{&p.small, &p.medium, &p.large} {
		for _, sb := range *pool {
			sb.buf.Release()
		}
		*pool = (*pool)[:0]
	}
}

// stats reports pool hit/miss counts and the pooled buffer total.
func (p *stagingPool) stats() (hits, misses uint64, pooled int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits, p.misses, len(p.small) + len(p.medium) + len(p.large)
}
