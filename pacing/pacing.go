// Package pacing splits a narration-audio duration across visual units.
package pacing

import (
	"errors"
	"math"
)

// DefaultFloor is the shortest duration, in seconds, a unit is given.
const DefaultFloor = 1.5

// Epsilon is the tolerance used when comparing summed durations.
const Epsilon = 1e-9

// ErrFloorUnsatisfiable is returned alongside a usable allocation when the
// floors alone exceed the target total. Every entry then sits at the floor and
// the allocation is longer than requested.
var ErrFloorUnsatisfiable = errors.New("duration floor unsatisfiable")

// Allocate distributes total seconds across len(weights) units in proportion
// to their weights, guaranteeing that every unit gets at least floor seconds
// and that the durations sum to total whenever len(weights)*floor <= total.
//
// Entries pushed up to the floor are taken out of the unclamped entries in
// proportion to their current share; this repeats until no entry is newly
// clamped. Negative weights count as zero and an all-zero weight vector is
// treated as uniform.
func Allocate(total float64, weights []float64, floor float64) ([]float64, error) {
	n := len(weights)
	if n == 0 {
		return nil, nil
	}
	if floor < 0 {
		floor = 0
	}

	w := make([]float64, n)
	var sum float64
	for i, v := range weights {
		if v > 0 && !math.IsInf(v, 1) {
			w[i] = v
			sum += v
		}
	}
	if sum == 0 {
		for i := range w {
			w[i] = 1
		}
		sum = float64(n)
	}

	d := make([]float64, n)
	target := math.Max(total, 0)
	for i := range w {
		d[i] = target * w[i] / sum
	}

	clamped := make([]bool, n)
	// Each pass that does not terminate clamps at least one new entry, so
	// n+1 passes always suffice.
	for pass := 0; pass <= n; pass++ {
		newly := 0
		for i := range d {
			if !clamped[i] && d[i] < floor {
				d[i] = floor
				clamped[i] = true
				newly++
			}
		}
		if newly == 0 {
			break
		}

		var current, free float64
		for i := range d {
			current += d[i]
			if !clamped[i] {
				free += d[i]
			}
		}
		excess := current - target
		if free <= 0 || excess <= 0 {
			break
		}
		if excess >= free {
			// Nothing left to give: every remaining entry drops to zero and is
			// clamped on the next pass.
			for i := range d {
				if !clamped[i] {
					d[i] = 0
				}
			}
			continue
		}
		scale := 1 - excess/free
		for i := range d {
			if !clamped[i] {
				d[i] *= scale
			}
		}
	}

	if Sum(d) > target+tolerance(target) {
		return d, ErrFloorUnsatisfiable
	}
	return d, nil
}

// Sum adds up durations.
func Sum(d []float64) float64 {
	var s float64
	for _, v := range d {
		s += v
	}
	return s
}

func tolerance(total float64) float64 {
	return math.Max(Epsilon, math.Abs(total)*1e-9)
}
