package muscle

import "testing"

func TestResponseCurveEvaluate(t *testing.T) {
	tests := []struct {
		name  string
		curve *ResponseCurve
		x     float32
		want  float32
	}{
		{"nil", nil, 0.3, 1},
		{"below", &ResponseCurve{Min: 0.2, Max: 0.6}, 0.1, 0},
		{"mid", &ResponseCurve{Min: 0.2, Max: 0.6}, 0.4, 0.5},
		{"above", &ResponseCurve{Min: 0.2, Max: 0.6}, 0.9, 1},
		{"inverted", &ResponseCurve{Min: 0, Max: 1, Invert: true}, 0.25, 0.75},
		{"step", &ResponseCurve{Min: 0.5, Max: 0.5}, 0.5, 1},
		{"step below", &ResponseCurve{Min: 0.5, Max: 0.5}, 0.49, 0},
		{"revert rising", &ResponseCurve{Min: 0, Max: 0.5, Revert: true, RevertMin: 0.5, RevertMax: 1}, 0.25, 0.5},
		{"revert peak", &ResponseCurve{Min: 0, Max: 0.5, Revert: true, RevertMin: 0.5, RevertMax: 1}, 0.5, 1},
		{"revert falling", &ResponseCurve{Min: 0, Max: 0.5, Revert: true, RevertMin: 0.5, RevertMax: 1}, 0.75, 0.5},
		{"revert end", &ResponseCurve{Min: 0, Max: 0.5, Revert: true, RevertMin: 0.5, RevertMax: 1}, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.curve.Evaluate(tt.x); !approx(got, tt.want) {
				t.Errorf("Evaluate(%v) = %v, want %v", tt.x, got, tt.want)
			}
		})
	}
}

func TestDependentShapeWeight(t *testing.T) {
	d := DependentShape{
		Mass: &ResponseCurve{Min: 0, Max: 1},
		Flex: &ResponseCurve{Min: 0, Max: 0.5},
	}
	if got := d.Weight(Info{Mass: 0.5, Flex: 0.25, Pump: 0}); !approx(got, 0.25) {
		t.Errorf("Weight = %v, want 0.25", got)
	}
	if got := (&DependentShape{}).Weight(Info{}); got != 1 {
		t.Errorf("curveless weight = %v, want 1", got)
	}
}
