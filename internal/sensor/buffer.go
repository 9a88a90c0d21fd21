package sensor

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownSource is returned when a buffer lookup names a source that was
// never added.
var ErrUnknownSource = errors.New("unknown sensor source")

// DataBuffer keeps the samples of each source in arrival order. It is owned by
// the single polling goroutine and is not safe for concurrent use.
type DataBuffer struct {
	data map[Source][]Sample
}

// NewDataBuffer returns an empty buffer.
func NewDataBuffer() *DataBuffer {
	return &DataBuffer{data: make(map[Source][]Sample)}
}

// Add appends samples to the sequence for src, registering src if needed.
// Adding zero samples still registers the source.
func (b *DataBuffer) Add(src Source, samples ...Sample) {
	b.data[src] = append(b.data[src], samples...)
}

// ExpireOlderThan drops, for every source, the leading samples whose
// timestamp is strictly less than threshold. Sequences are assumed to be in
// time order, so each scan stops at the first sample that is kept.
func (b *DataBuffer) ExpireOlderThan(threshold float64) {
	for src, samples := range b.data {
		i := 0
		for i < len(samples) && samples[i].Timestamp() < threshold {
			i++
		}
		if i == 0 {
			continue
		}
		// copy so the expired prefix does not stay reachable through the
		// backing array
		kept := make([]Sample, len(samples)-i)
		copy(kept, samples[i:])
		b.data[src] = kept
	}
}

// Samples returns the buffered samples for src. The slice is shared with the
// buffer and must not be modified.
func (b *DataBuffer) Samples(src Source) ([]Sample, error) {
	samples, ok := b.data[src]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, src)
	}
	return samples, nil
}

// Len returns the number of samples held for src, zero when unknown.
func (b *DataBuffer) Len(src Source) int {
	return len(b.data[src])
}

// Sources returns the registered source names in sorted order.
func (b *DataBuffer) Sources() []Source {
	out := make([]Source, 0, len(b.data))
	for src := range b.data {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Clear forgets every source and sample.
func (b *DataBuffer) Clear() {
	b.data = make(map[Source][]Sample)
}

// AddBatch appends a polling cycle's samples under their own sources. Every
// known source is registered even when the batch holds nothing for it.
func (b *DataBuffer) AddBatch(batch Batch) {
	b.Add(SourceGPS, toSamples(batch.GPS)...)
	b.Add(SourceIMU, toSamples(batch.IMU)...)
	b.Add(SourceCAN, toSamples(batch.CAN)...)
}

// Typed returns the samples buffered for src that have concrete type T.
func Typed[T Sample](b *DataBuffer, src Source) ([]T, error) {
	samples, err := b.Samples(src)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(samples))
	for _, s := range samples {
		if v, ok := s.(T); ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func toSamples[T Sample](in []T) []Sample {
	out := make([]Sample, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
