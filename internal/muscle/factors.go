package muscle

import (
	"github.com/Faultbox/muscle-surface/internal/meshdata"
	"github.com/Faultbox/muscle-surface/pkg/math"
)

// Factors are the blend factors of the five muscle shapes for one vertex.
type Factors struct {
	Fit           float32
	Max           float32
	Flex          float32
	BreastFull    float32
	BreastFullMax float32
}

// ComputeFactors evaluates the fit/max crossfade, the mass-gated flex factor
// and the breast-presence shapes.
//
// Below fitThreshold only the fit shape applies, scaling toward 1. Above it
// the max shape ramps from 0 to 1 at mass 1 while the fit shape fades out by
// the same amount, so Fit+Max never exceeds 1.
func ComputeFactors(mass, flex, fitThreshold, flexThreshold, breastPresence float32) Factors {
	var maxFactor float32
	if fitThreshold < 1 {
		maxFactor = max(0, (mass-fitThreshold)/(1-fitThreshold))
	}
	fade := 1 - min(1, maxFactor)

	f := Factors{
		Fit:  ratio(mass, fitThreshold) * fade,
		Max:  maxFactor,
		Flex: ratio(mass, flexThreshold) * flex,
	}

	bp := math.Clamp(breastPresence, 0, 2)
	f.BreastFull = fade * bp
	f.BreastFullMax = min(1, maxFactor) * bp
	return f
}

// ratio is saturate(x / threshold) with a zero threshold treated as a step.
func ratio(x, threshold float32) float32 {
	if threshold <= 0 {
		if x > 0 {
			return 1
		}
		return 0
	}
	return math.Saturate(x / threshold)
}

// Blend returns the combined delta of a group's five shapes for vertex v,
// already scaled by the group's per-vertex weight.
func (g *SurfaceGroup) Blend(v int, f Factors) meshdata.Delta {
	var d meshdata.Delta
	w := g.Weights[v]
	if w == 0 {
		return d
	}
	d = addTable(d, g.Fit, v, f.Fit*w)
	d = addTable(d, g.Max, v, f.Max*w)
	d = addTable(d, g.Flex, v, f.Flex*w)
	d = addTable(d, g.BreastFull, v, f.BreastFull*w)
	d = addTable(d, g.BreastFullMax, v, f.BreastFullMax*w)
	return d
}

func addTable(d meshdata.Delta, table []meshdata.Delta, v int, s float32) meshdata.Delta {
	if table == nil || s == 0 {
		return d
	}
	return d.AddScaled(table[v], s)
}
