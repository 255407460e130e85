package mbtrn

import (
	"math"
	"sort"

	"github.com/samber/lo"
)

// FilterParams parameterizes the Sounding Filter (spec.md §4.4).
type FilterParams struct {
	// SwathWidth is the full swath angle in radians; the trim threshold
	// is tan(SwathWidth/2), mirroring mbtrnpp.c's
	// `tan(DTR * 0.5 * swath_width)`.
	SwathWidth float64
	// AlongTrack is n_along, normally equal to the Ping Ring depth D.
	AlongTrack int
	// AcrossTrack is n_across, the across-track median neighborhood.
	AcrossTrack int
	// Threshold is τ ∈ (0,1], the median rejection fraction.
	Threshold float64
	// TargetCount is K, the desired output sounding count.
	TargetCount int
}

// Apply runs the swath trim / decimation / median filter policy on the
// ring's current process-slot ping, using the ring's resident window as
// the along-track population for the median filter. It returns the
// selected beam indices in original beam order; selection is recorded by
// mutating ping.FilterFlags in place.
func Apply(window []*Ping, ping *Ping, params FilterParams) []int {
	n := ping.Beams
	if n == 0 {
		return nil
	}

	tanThreshold := math.Tan(params.SwathWidth / 2)

	beamStart, beamEnd := n, -1
	for j := 0; j < n; j++ {
		if ping.FilterFlags[j] != OK {
			continue
		}
		denom := ping.Soundings[j].Bath - ping.Pose.Depth
		tangent := ping.Soundings[j].AcrossTrack / denom
		if math.Abs(tangent) > tanThreshold {
			ping.FilterFlags[j] = FlaggedFilter
			continue
		}
		if j < beamStart {
			beamStart = j
		}
		if j > beamEnd {
			beamEnd = j
		}
	}

	if beamEnd < beamStart {
		// no OK beams survived the trim: zero-sounding output is valid.
		return nil
	}

	stride := (beamEnd-beamStart+1)/params.TargetCount + 1
	dj := params.AcrossTrack / 2
	minPopulation := (params.AlongTrack * params.AcrossTrack) / 2

	selected := make([]int, 0, params.TargetCount+1)
	for j := beamStart; j <= beamEnd; j++ {
		if ping.FilterFlags[j] != OK {
			continue
		}
		if (j-beamStart)%stride != 0 {
			ping.FilterFlags[j] = FlaggedFilter
			continue
		}

		if params.AlongTrack*params.AcrossTrack > 1 {
			jj0 := lo.Max([]int{beamStart, j - dj})
			jj1 := lo.Min([]int{beamEnd, j + dj})

			population := make([]float64, 0, len(window)*(jj1-jj0+1))
			for _, wp := range window {
				if wp == nil {
					continue
				}
				for jj := jj0; jj <= jj1 && jj < wp.Beams; jj++ {
					// the raw (sensor) flag, not FilterFlags: downstream
					// filter decisions on other pings must not leak into
					// this ping's population.
					if wp.Soundings[jj].Flag == OK {
						population = append(population, wp.Soundings[jj].Bath)
					}
				}
			}

			if len(population) < minPopulation {
				ping.FilterFlags[j] = FlaggedFilter
				continue
			}

			sort.Float64s(population)
			median := population[len(population)/2]
			if math.Abs(ping.Soundings[j].Bath-median) > params.Threshold*median {
				ping.FilterFlags[j] = FlaggedFilter
				continue
			}
		}

		selected = append(selected, j)
	}

	return selected
}
