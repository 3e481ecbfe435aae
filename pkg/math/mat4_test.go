package math

import (
	"math"
	"testing"
)

func TestIdentity(t *testing.T) {
	m := Identity()
	if m[0] != 1 || m[5] != 1 || m[10] != 1 || m[15] != 1 {
		t.Error("Identity diagonal should be 1")
	}
	if m[1] != 0 || m[4] != 0 {
		t.Error("Identity off-diagonal should be 0")
	}
}

func TestMulIdentity(t *testing.T) {
	m := Translate(1, 2, 3)
	result := m.Mul(Identity())

	for i := 0; i < 16; i++ {
		if result[i] != m[i] {
			t.Errorf("M * I should equal M, element %d: got %f, want %f", i, result[i], m[i])
		}
	}
}

func TestTranslate(t *testing.T) {
	m := Translate(5, 10, 15)
	if m[12] != 5 || m[13] != 10 || m[14] != 15 {
		t.Errorf("Translate: got (%f, %f, %f), want (5, 10, 15)", m[12], m[13], m[14])
	}
	if got := m.Translation(); got != (Vec3{5, 10, 15}) {
		t.Errorf("Translation() = %v", got)
	}
}

func TestTransformPoint(t *testing.T) {
	tests := []struct {
		name string
		m    Mat4
		p    Vec3
		want Vec3
	}{
		{"translate", Translate(10, 20, 30), Vec3{1, 2, 3}, Vec3{11, 22, 33}},
		{"scale", Scale(2, 2, 2), Vec3{1, 2, 3}, Vec3{2, 4, 6}},
		{"identity", Identity(), Vec3{-1, 0, 4}, Vec3{-1, 0, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.TransformPoint(tt.p); got != tt.want {
				t.Errorf("TransformPoint: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTransformDirectionIgnoresTranslation(t *testing.T) {
	m := Translate(10, 20, 30)
	d := Vec3{0, 1, 0}
	if got := m.TransformDirection(d); got != d {
		t.Errorf("TransformDirection: got %v, want %v", got, d)
	}
}

func TestAddScaledBlendsMatrices(t *testing.T) {
	var acc Mat4
	acc = acc.AddScaled(Translate(2, 0, 0), 0.5)
	acc = acc.AddScaled(Translate(0, 4, 0), 0.5)

	got := acc.TransformPoint(Vec3{})
	want := Vec3{1, 2, 0}
	if !got.ApproxEqual(want, 1e-6) {
		t.Errorf("blended origin = %v, want %v", got, want)
	}
}

func TestAffinePointKeepsWeightScale(t *testing.T) {
	// Weights summing to 0.5 scale the result instead of being renormalized.
	var acc Mat4
	acc = acc.AddScaled(Identity(), 0.5)

	got := acc.TransformPoint(Vec3{2, 4, 6})
	want := Vec3{1, 2, 3}
	if !got.ApproxEqual(want, 1e-6) {
		t.Errorf("half-weight point = %v, want %v", got, want)
	}
}

func TestInverse(t *testing.T) {
	m := TRS(Vec3{1, 2, 3}, QuatFromAxisAngle(Vec3{Y: 1}, float32(math.Pi/3)), Vec3{2, 2, 2})
	got := m.Mul(m.Inverse())
	if !got.ApproxEqual(Identity(), 1e-4) {
		t.Errorf("M * M^-1 = %v, want identity", got)
	}

	var singular Mat4
	if singular.Inverse() != Identity() {
		t.Error("singular matrix should invert to identity")
	}
}
