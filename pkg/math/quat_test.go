package math

import (
	"math"
	"testing"
)

func TestQuatIdentity(t *testing.T) {
	q := QuatIdentity()
	if q.X != 0 || q.Y != 0 || q.Z != 0 || q.W != 1 {
		t.Errorf("Identity quaternion should be (0,0,0,1), got (%v,%v,%v,%v)", q.X, q.Y, q.Z, q.W)
	}
}

func TestQuatNormalize(t *testing.T) {
	q := Quat{X: 1, Y: 2, Z: 3, W: 4}
	n := q.Normalize()

	length := float32(math.Sqrt(float64(n.X*n.X + n.Y*n.Y + n.Z*n.Z + n.W*n.W)))
	if math.Abs(float64(length-1.0)) > 0.0001 {
		t.Errorf("Normalized quaternion length should be 1, got %v", length)
	}

	if got := (Quat{}).Normalize(); got != QuatIdentity() {
		t.Errorf("zero quaternion should normalize to identity, got %v", got)
	}
}

func TestQuatToMat4(t *testing.T) {
	m := QuatIdentity().ToMat4()
	if !m.ApproxEqual(Identity(), 0.0001) {
		t.Errorf("Identity quat should produce identity matrix, got %v", m)
	}

	// 90 degrees around Z maps +X onto +Y
	r := QuatFromAxisAngle(Vec3{Z: 1}, float32(math.Pi/2)).ToMat4()
	got := r.TransformDirection(Vec3{X: 1})
	if !got.ApproxEqual(Vec3{Y: 1}, 0.0001) {
		t.Errorf("RotZ(90) * X = %v, want (0,1,0)", got)
	}
}

func TestQuatFromAxisAngle(t *testing.T) {
	q := QuatFromAxisAngle(Vec3{X: 0, Y: 1, Z: 0}, float32(math.Pi/2))

	expectedW := float32(math.Cos(math.Pi / 4))
	expectedY := float32(math.Sin(math.Pi / 4))

	if math.Abs(float64(q.W-expectedW)) > 0.001 {
		t.Errorf("QuatFromAxisAngle W: expected %v, got %v", expectedW, q.W)
	}
	if math.Abs(float64(q.Y-expectedY)) > 0.001 {
		t.Errorf("QuatFromAxisAngle Y: expected %v, got %v", expectedY, q.Y)
	}
}

func TestQuatMulComposes(t *testing.T) {
	half := QuatFromAxisAngle(Vec3{Y: 1}, float32(math.Pi/4))
	full := QuatFromAxisAngle(Vec3{Y: 1}, float32(math.Pi/2))

	got := half.Mul(half)
	if math.Abs(float64(got.W-full.W)) > 0.0001 || math.Abs(float64(got.Y-full.Y)) > 0.0001 {
		t.Errorf("45deg * 45deg = %v, want %v", got, full)
	}
}
