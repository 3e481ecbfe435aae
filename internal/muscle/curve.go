package muscle

import "github.com/Faultbox/muscle-surface/pkg/math"

// ResponseCurve maps a muscle value to a 0..1 response.
//
// The curve ramps linearly from 0 at Min to 1 at Max. Invert flips the
// result. Revert multiplies it by a falling ramp between RevertMin and
// RevertMax, so the response rises and then falls back to zero.
type ResponseCurve struct {
	Min       float32 `yaml:"min" toml:"min"`
	Max       float32 `yaml:"max" toml:"max"`
	Invert    bool    `yaml:"invert" toml:"invert"`
	Revert    bool    `yaml:"revert" toml:"revert"`
	RevertMin float32 `yaml:"revert_min" toml:"revert_min"`
	RevertMax float32 `yaml:"revert_max" toml:"revert_max"`
}

// Evaluate returns the response at x. A nil curve always responds 1.
func (c *ResponseCurve) Evaluate(x float32) float32 {
	if c == nil {
		return 1
	}
	t := ramp(x, c.Min, c.Max)
	if c.Invert {
		t = 1 - t
	}
	if c.Revert {
		t *= 1 - ramp(x, c.RevertMin, c.RevertMax)
	}
	return t
}

func ramp(x, lo, hi float32) float32 {
	if hi == lo {
		if x >= lo {
			return 1
		}
		return 0
	}
	return math.Saturate((x - lo) / (hi - lo))
}

// ShapeTarget receives blend-shape weights computed from muscle values.
type ShapeTarget interface {
	SetBlendShapeWeight(shape int, weight float32)
}

// DependentShape drives one blend-shape weight from a group's values. The
// weight is the product of the mass, flex and pump curves; a nil curve does
// not contribute.
type DependentShape struct {
	Target ShapeTarget
	Shape  int
	Mass   *ResponseCurve
	Flex   *ResponseCurve
	Pump   *ResponseCurve
}

// Weight returns the shape weight for the given group values.
func (d *DependentShape) Weight(info Info) float32 {
	return d.Mass.Evaluate(info.Mass) * d.Flex.Evaluate(info.Flex) * d.Pump.Evaluate(info.Pump)
}
