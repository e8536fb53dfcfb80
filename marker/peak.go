// Package marker holds the annotation side of palflow: locating signal
// peaks near a chosen sample and persisting marked points to CSV.
package marker

// Defaults match the activPAL marking workflow: search 1200 samples
// either side of the chosen point and only trust a peak when the window
// swings by more than 0.25 g.
const (
	DefaultZoneWidth = 1200
	DefaultMinSwing  = 0.25

	// peakOrder is how many neighbours on each side a local maximum must
	// strictly exceed.
	peakOrder = 3
)

// PeakFinder locates the local maximum nearest a chosen sample inside a
// bounded search window.
type PeakFinder struct {
	ZoneWidth int
	MinSwing  float64
}

// NewPeakFinder returns a PeakFinder, substituting the defaults for
// non-positive parameters.
func NewPeakFinder(zoneWidth int, minSwing float64) PeakFinder {
	if zoneWidth <= 0 {
		zoneWidth = DefaultZoneWidth
	}
	if minSwing <= 0 {
		minSwing = DefaultMinSwing
	}
	return PeakFinder{ZoneWidth: zoneWidth, MinSwing: minSwing}
}

// Nearest returns the index of the local maximum closest to sample within
// the search window. When the window holds no qualifying peak, or its
// peak-to-trough swing does not exceed MinSwing, sample itself is
// returned so a click on flat signal marks the clicked point.
func (p PeakFinder) Nearest(signal []float64, sample int) int {
	if len(signal) == 0 {
		return sample
	}

	zoneStart := sample - p.ZoneWidth
	if zoneStart < 0 {
		zoneStart = 0
	}
	zoneEnd := sample + p.ZoneWidth
	if zoneEnd > len(signal) {
		zoneEnd = len(signal)
	}
	if zoneStart >= zoneEnd {
		return sample
	}

	low, high := signal[zoneStart], signal[zoneStart]
	for _, v := range signal[zoneStart:zoneEnd] {
		if v < low {
			low = v
		}
		if v > high {
			high = v
		}
	}
	if high-low <= p.MinSwing {
		return sample
	}

	best := -1
	bestDist := 0
	for i := zoneStart; i < zoneEnd; i++ {
		if !isLocalMax(signal, i, zoneStart, zoneEnd-1) {
			continue
		}
		dist := i - sample
		if dist < 0 {
			dist = -dist
		}
		if best == -1 || dist < bestDist {
			best = i
			bestDist = dist
		}
	}
	if best == -1 {
		return sample
	}
	return best
}

// isLocalMax reports whether signal[i] strictly exceeds its peakOrder
// neighbours on each side. Neighbour indices are clamped to [lo, hi], so
// a point just inside the window edge compares against the edge sample
// and can still qualify, while the edge sample itself never does.
func isLocalMax(signal []float64, i, lo, hi int) bool {
	for k := 1; k <= peakOrder; k++ {
		left := i - k
		if left < lo {
			left = lo
		}
		right := i + k
		if right > hi {
			right = hi
		}
		if signal[left] >= signal[i] || signal[right] >= signal[i] {
			return false
		}
	}
	return true
}

// NearestPeak runs a PeakFinder with the default window and swing gate.
func NearestPeak(signal []float64, sample int) int {
	return NewPeakFinder(0, 0).Nearest(signal, sample)
}
