package activpal

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// Header lengths for the two sibling on-disk layouts.
const (
	headerLenDat  = 1023
	headerLenDatx = 1024
)

// gScale converts a raw device byte to acceleration in g.
func gScale(raw uint8) float64 {
	return (float64(raw) - 127) / 63
}

// Recording is a decoded activPAL file: the header metadata plus the
// g-scaled signal series with synthesized timestamps. Timestamps start at
// the header's start time and advance by exactly 1000/hz ms per row; they
// are deliberately not reconciled against the header's stop time.
//
// Accessors return copies, so a Recording cannot be mutated through the
// slices it hands out. The root-sum-of-squares channel is computed on
// first access and cached; a Recording is otherwise immutable and safe to
// share once built, but the first RSS call must not race with another.
type Recording struct {
	meta     Metadata
	x, y, z  []float64
	start    time.Time
	interval time.Duration
	rss      []float64 // nil until first RSS call
}

// Load reads and decodes a .dat or .datx file in one shot. The whole
// file is pulled into memory; multi-day single-device logs stay well
// within reasonable bounds, so no streaming is attempted.
func Load(path string) (*Recording, error) {
	var headerLen int
	switch ext := filepath.Ext(path); ext {
	case ".datx":
		headerLen = headerLenDatx
	case ".dat":
		headerLen = headerLenDat
	default:
		return nil, fmt.Errorf("%w %q for file %q", ErrUnsupportedFormat, ext, path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", path, err)
	}
	if len(raw) < headerLen {
		return nil, fmt.Errorf("%w: file %q holds %d bytes, header needs %d",
			ErrHeaderTooShort, path, len(raw), headerLen)
	}

	meta, err := ExtractMetadata(raw[:headerLen])
	if err != nil {
		return nil, fmt.Errorf("header of %q: %w", path, err)
	}
	if meta.Hz == 0 {
		return nil, fmt.Errorf("header of %q reports zero sample rate", path)
	}

	samples, err := DecodeBody(raw[headerLen:], meta.Firmware, headerLen == headerLenDatx)
	if err != nil {
		return nil, fmt.Errorf("body of %q: %w", path, err)
	}

	x := make([]float64, len(samples))
	y := make([]float64, len(samples))
	z := make([]float64, len(samples))
	for i, s := range samples {
		x[i] = gScale(s.X)
		y[i] = gScale(s.Y)
		z[i] = gScale(s.Z)
	}

	return &Recording{
		meta:     meta,
		x:        x,
		y:        y,
		z:        z,
		start:    meta.StartTime,
		interval: time.Duration(float64(time.Second) / float64(meta.Hz)),
	}, nil
}

// Meta returns the decoded header metadata.
func (r *Recording) Meta() Metadata { return r.meta }

// Len returns the number of decoded rows.
func (r *Recording) Len() int { return len(r.x) }

// Interval returns the synthesized spacing between consecutive rows.
func (r *Recording) Interval() time.Duration { return r.interval }

// X returns a copy of the x-axis series in g.
func (r *Recording) X() []float64 { return copySeries(r.x) }

// Y returns a copy of the y-axis series in g.
func (r *Recording) Y() []float64 { return copySeries(r.y) }

// Z returns a copy of the z-axis series in g.
func (r *Recording) Z() []float64 { return copySeries(r.z) }

// RSS returns a copy of the root-sum-of-squares magnitude channel,
// computing and caching it on first call.
func (r *Recording) RSS() []float64 {
	if r.rss == nil {
		rss := make([]float64, len(r.x))
		for i := range rss {
			rss[i] = math.Sqrt(r.x[i]*r.x[i] + r.y[i]*r.y[i] + r.z[i]*r.z[i])
		}
		r.rss = rss
	}
	return copySeries(r.rss)
}

// TimeAt returns the synthesized timestamp of row i.
func (r *Recording) TimeAt(i int) time.Time {
	return r.start.Add(time.Duration(i) * r.interval)
}

// Timestamps returns the synthesized timestamp of every row.
func (r *Recording) Timestamps() []time.Time {
	ts := make([]time.Time, len(r.x))
	for i := range ts {
		ts[i] = r.TimeAt(i)
	}
	return ts
}

// IsNotFound reports whether err stems from a missing input file.
func IsNotFound(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

func copySeries(s []float64) []float64 {
	out := make([]float64, len(s))
	copy(out, s)
	return out
}
