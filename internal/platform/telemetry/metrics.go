package telemetry

import (
	"math"
	"sync"
	"sync/atomic"
)

// histogram keeps non-cumulative bucket counts; cumulative counts are
// computed at export time.
type histogram struct {
	boundaries   []float64
	bucketCounts []int64
	count        int64
	sum          uint64 // math.Float64bits
	mu           sync.Mutex
}

func newHistogram(boundaries []float64) *histogram {
	return &histogram{
		boundaries:   boundaries,
		bucketCounts: make([]int64, len(boundaries)),
	}
}

func (h *histogram) Observe(v float64) {
	atomic.AddInt64(&h.count, 1)
	atomicAddFloat64(&h.sum, v)

	h.mu.Lock()
	defer h.mu.Unlock()
	for i, b := range h.boundaries {
		if v <= b {
			h.bucketCounts[i]++
			return
		}
	}
}

func (h *histogram) Count() int64 {
	return atomic.LoadInt64(&h.count)
}

func (h *histogram) Sum() float64 {
	return math.Float64frombits(atomic.LoadUint64(&h.sum))
}

func (h *histogram) cumulativeBuckets() []int64 {
	h.mu.Lock()
	raw := make([]int64, len(h.bucketCounts))
	copy(raw, h.bucketCounts)
	h.mu.Unlock()

	cum := make([]int64, len(raw))
	var running int64
	for i, c := range raw {
		running += c
		cum[i] = running
	}
	return cum
}

func atomicAddFloat64(addr *uint64, delta float64) {
	for {
		old := atomic.LoadUint64(addr)
		next := math.Float64frombits(old) + delta
		if atomic.CompareAndSwapUint64(addr, old, math.Float64bits(next)) {
			return
		}
	}
}

// histogramVec holds one histogram per label key.
type histogramVec struct {
	boundaries []float64
	mu         sync.RWMutex
	items      map[string]*histogram
}

func newHistogramVec(boundaries []float64) *histogramVec {
	return &histogramVec{boundaries: boundaries, items: make(map[string]*histogram)}
}

func (v *histogramVec) with(key string) *histogram {
	v.mu.RLock()
	h, ok := v.items[key]
	v.mu.RUnlock()
	if ok {
		return h
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if h, ok = v.items[key]; !ok {
		h = newHistogram(v.boundaries)
		v.items[key] = h
	}
	return h
}

func (v *histogramVec) snapshot() map[string]*histogram {
	v.mu.RLock()
	defer v.mu.RUnlock()
	cp := make(map[string]*histogram, len(v.items))
	for k, h := range v.items {
		cp[k] = h
	}
	return cp
}

// int64Vec backs both counters and gauges.
type int64Vec struct {
	mu    sync.RWMutex
	items map[string]*int64
}

func newInt64Vec() *int64Vec {
	return &int64Vec{items: make(map[string]*int64)}
}

func (v *int64Vec) ptr(key string) *int64 {
	v.mu.RLock()
	p, ok := v.items[key]
	v.mu.RUnlock()
	if ok {
		return p
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if p, ok = v.items[key]; !ok {
		p = new(int64)
		v.items[key] = p
	}
	return p
}

func (v *int64Vec) add(key string, delta int64) { atomic.AddInt64(v.ptr(key), delta) }
func (v *int64Vec) set(key string, val int64)   { atomic.StoreInt64(v.ptr(key), val) }

func (v *int64Vec) get(key string) int64 {
	v.mu.RLock()
	p, ok := v.items[key]
	v.mu.RUnlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(p)
}

func (v *int64Vec) snapshot() map[string]int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	cp := make(map[string]int64, len(v.items))
	for k, p := range v.items {
		cp[k] = atomic.LoadInt64(p)
	}
	return cp
}
