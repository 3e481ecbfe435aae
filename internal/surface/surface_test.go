package surface

import (
	"testing"

	"github.com/Faultbox/muscle-surface/internal/meshdata"
	"github.com/Faultbox/muscle-surface/internal/muscle"
	"github.com/Faultbox/muscle-surface/internal/skeleton"
	"github.com/Faultbox/muscle-surface/internal/worker"
	"github.com/Faultbox/muscle-surface/pkg/math"
)

const eps = 1e-5

func vec(x, y, z float32) math.Vec3 { return math.Vec3{X: x, Y: y, Z: z} }

// testAsset has six vertices along X, each bound fully to bone 0 except
// vertex 5 which is split between bones 1 and 2.
func testAsset(name string, shapes ...meshdata.BlendShape) *meshdata.StaticAsset {
	a := &meshdata.StaticAsset{Name: name}
	for i := 0; i < 6; i++ {
		a.Positions = append(a.Positions, vec(float32(i), 0, 0))
		a.VertexNormals = append(a.VertexNormals, vec(0, 1, 0))
	}
	a.WeightCounts = []int{1, 1, 1, 1, 1, 2}
	a.Weights = []meshdata.BoneWeight{
		{Bone: 0, Weight: 1}, {Bone: 0, Weight: 1}, {Bone: 0, Weight: 1},
		{Bone: 0, Weight: 1}, {Bone: 0, Weight: 1},
		{Bone: 1, Weight: 0.5}, {Bone: 2, Weight: 0.25},
	}
	a.Shapes = shapes
	return a
}

func uniformDeltas(n int, d math.Vec3) []meshdata.Delta {
	out := make([]meshdata.Delta, n)
	for i := range out {
		out[i].Vertex = d
	}
	return out
}

func testSkeleton() *skeleton.Skeleton {
	s := skeleton.New([]skeleton.Bone{
		{Name: "root", Parent: -1},
		{Name: "arm", Parent: 0},
		{Name: "hand", Parent: 1},
	})
	s.BindInverses()
	return s
}

func TestGetOrCreateSampleIdempotent(t *testing.T) {
	s := New("body", meshdata.Build(testAsset(t.Name())), Options{})

	a := s.GetOrCreateSample(2)
	b := s.GetOrCreateSample(2)
	if a != b {
		t.Errorf("handles differ: %v %v", a, b)
	}
	if s.SampleCount() != 1 {
		t.Errorf("SampleCount = %d, want 1", s.SampleCount())
	}
	p := s.GetSample(a)
	if p.VertexIndex != 2 || p.BaseVertex != vec(2, 0, 0) {
		t.Errorf("sample = %+v", p)
	}
}

func TestGetOrCreateSampleInvalid(t *testing.T) {
	s := New("body", meshdata.Build(testAsset(t.Name())), Options{})
	if h := s.GetOrCreateSample(99); !h.IsZero() {
		t.Error("out of range vertex should return the zero handle")
	}
	if s.SampleCount() != 0 {
		t.Error("out of range vertex was added")
	}

	empty := New("empty", nil, Options{})
	if h := empty.GetOrCreateSample(0); !h.IsZero() {
		t.Error("surface without mesh should return the zero handle")
	}
	if empty.Schedule(worker.Completed()) != worker.Completed() {
		t.Error("surface without mesh should pass the dependency through")
	}
}

func TestSafeRemoval(t *testing.T) {
	s := New("body", meshdata.Build(testAsset(t.Name())), Options{})

	handles := make([]SampleIndex, 5)
	for i := range handles {
		handles[i] = s.GetOrCreateSample(i)
	}

	if !s.StopSampling(handles[2]) {
		t.Fatal("StopSampling failed")
	}
	if s.StopSampling(handles[2]) {
		t.Error("second StopSampling should report false")
	}
	if s.SampleCount() != 4 {
		t.Errorf("SampleCount = %d, want 4", s.SampleCount())
	}

	for i, h := range handles {
		if i == 2 {
			continue
		}
		if got := s.GetSample(h).VertexIndex; got != i {
			t.Errorf("handle %d resolves to vertex %d", i, got)
		}
	}

	stale := s.GetSample(handles[2])
	if stale.VertexIndex != -1 || stale.LocalToWorld != math.Identity() {
		t.Errorf("stale handle returned %+v, want default", stale)
	}
}

func TestSampleBeforeRegistration(t *testing.T) {
	s := New("body", meshdata.Build(testAsset(t.Name())), Options{})
	p := s.GetSample(SampleIndex{})
	if p != DefaultSamplePoint() {
		t.Errorf("got %+v, want default sample point", p)
	}
}

func TestSamplingTracksBones(t *testing.T) {
	sampler := skeleton.NewSampler(testSkeleton(), nil)
	s := New("body", meshdata.Build(testAsset(t.Name())), Options{Sampler: sampler})

	a := s.GetOrCreateSample(0)
	b := s.GetOrCreateSample(5)
	if !sampler.Tracked(0) || !sampler.Tracked(1) || !sampler.Tracked(2) {
		t.Fatal("referenced bones should be tracked")
	}

	s.StopSampling(b)
	if sampler.Tracked(1) || sampler.Tracked(2) {
		t.Error("bones of stopped sample should be untracked")
	}
	s.StopSampling(a)
	if sampler.TrackedCount() != 0 {
		t.Errorf("TrackedCount = %d, want 0", sampler.TrackedCount())
	}
}

func TestShapeDeltaInterpolation(t *testing.T) {
	d0 := uniformDeltas(6, vec(1, 0, 0))
	d1 := uniformDeltas(6, vec(3, 0, 0))
	mesh := meshdata.Build(testAsset(t.Name(),
		meshdata.BlendShape{Name: "two", Frames: []meshdata.BlendShapeFrame{{Weight: 0, Deltas: d0}, {Weight: 1, Deltas: d1}}},
		meshdata.BlendShape{Name: "late", Frames: []meshdata.BlendShapeFrame{{Weight: 0.5, Deltas: d0}, {Weight: 1, Deltas: d1}}},
		meshdata.BlendShape{Name: "three", Frames: []meshdata.BlendShapeFrame{
			{Weight: 0.2, Deltas: d0},
			{Weight: 0.5, Deltas: d1},
			{Weight: 1, Deltas: uniformDeltas(6, vec(7, 0, 0))},
		}},
	))

	tests := []struct {
		name  string
		shape int
		w     float32
		want  math.Vec3
	}{
		{"first frame exact", 0, 0, vec(1, 0, 0)},
		{"midpoint", 0, 0.5, vec(2, 0, 0)},
		{"last frame exact", 0, 1, vec(3, 0, 0)},
		{"clamped above last", 0, 2, vec(3, 0, 0)},
		{"below first frame", 1, 0.25, vec(0.5, 0, 0)},
		{"at first frame", 1, 0.5, vec(1, 0, 0)},
		{"between frames", 1, 0.75, vec(2, 0, 0)},
		{"three frames below first", 2, 0.1, vec(0.5, 0, 0)},
		{"three frames lower pair", 2, 0.3, vec(1+2.0/3, 0, 0)},
		{"three frames middle exact", 2, 0.5, vec(3, 0, 0)},
		{"three frames upper pair", 2, 0.7, vec(4.6, 0, 0)},
		{"three frames last", 2, 1, vec(7, 0, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := shapeDelta(mesh, tt.shape, 3, tt.w).Vertex
			if !got.ApproxEqual(tt.want, eps) {
				t.Errorf("shapeDelta(%v) = %v, want %v", tt.w, got, tt.want)
			}
		})
	}

	if got := shapeDelta(mesh, 7, 3, 1); got != (meshdata.Delta{}) {
		t.Errorf("unknown shape delta = %+v", got)
	}
}

func TestBlendShapesApplyAndReshape(t *testing.T) {
	shape := meshdata.BlendShape{Name: "bulge", Frames: []meshdata.BlendShapeFrame{
		{Weight: 1, Deltas: uniformDeltas(6, vec(0, 2, 0))},
	}}
	pool := worker.NewPool(2)
	defer pool.Close()
	s := New("body", meshdata.Build(testAsset(t.Name(), shape)), Options{Pool: pool, BatchSize: 1})

	h := s.GetOrCreateSample(1)
	s.GetOrCreateSample(2)

	s.Schedule(worker.Completed())
	if p := s.GetSample(h); p.IsReshaped() {
		t.Errorf("zero weight should not reshape, got %+v", p.Vertex)
	}

	s.SetBlendShapeWeight(0, 0.5)
	s.SetBlendShapeWeight(9, 1)
	s.Schedule(worker.Completed())
	p := s.GetSample(h)
	if !p.IsReshaped() {
		t.Error("expected reshaped point")
	}
	if !p.Vertex.ApproxEqual(vec(1, 1, 0), eps) || !p.WorldPosition.ApproxEqual(vec(1, 1, 0), eps) {
		t.Errorf("vertex = %v world = %v, want (1,1,0)", p.Vertex, p.WorldPosition)
	}
	if p.BaseVertex != vec(1, 0, 0) {
		t.Error("base vertex must not change")
	}
	if !p.Normal.ApproxEqual(vec(0, 1, 0), eps) {
		t.Errorf("normal = %v", p.Normal)
	}
}

func TestIsReshapedAnyComponent(t *testing.T) {
	p := SamplePoint{BaseVertex: vec(1, 2, 3), Vertex: vec(1, 2, 3.5)}
	if !p.IsReshaped() {
		t.Error("a single differing component should count as reshaped")
	}
	p.Vertex = p.BaseVertex
	p.SurfaceNormal = vec(0, 0, 1)
	if !p.IsReshaped() {
		t.Error("surface normal change should count as reshaped")
	}
	p.SurfaceNormal = p.BaseSurfaceNormal
	if p.IsReshaped() {
		t.Error("identical values reported as reshaped")
	}
}

func TestBoneWeightsNotRenormalized(t *testing.T) {
	sampler := skeleton.NewSampler(testSkeleton(), nil)
	s := New("body", meshdata.Build(testAsset(t.Name())), Options{Sampler: sampler})
	h := s.GetOrCreateSample(5)

	s.Schedule(sampler.Refresh(worker.Completed()))
	p := s.GetSample(h)

	// weights 0.5 + 0.25 on identity bones scale the point by 0.75
	if !p.WorldPosition.ApproxEqual(vec(3.75, 0, 0), eps) {
		t.Errorf("world position = %v, want (3.75,0,0)", p.WorldPosition)
	}
	if math.Abs(p.LocalToWorld[0]-0.75) > eps {
		t.Errorf("skin matrix scale = %v, want 0.75", p.LocalToWorld[0])
	}
}

func TestSkinningFollowsPose(t *testing.T) {
	skel := testSkeleton()
	pool := worker.NewPool(2)
	defer pool.Close()
	sampler := skeleton.NewSampler(skel, pool)
	s := New("body", meshdata.Build(testAsset(t.Name())), Options{Pool: pool, Sampler: sampler})
	h := s.GetOrCreateSample(3)

	skel.SetLocalTranslation(0, vec(0, 2, 0))
	s.Schedule(sampler.Refresh(worker.Completed()))
	p := s.GetSample(h)

	if !p.WorldPosition.ApproxEqual(vec(3, 2, 0), eps) {
		t.Errorf("world position = %v, want (3,2,0)", p.WorldPosition)
	}
	if !p.LocalToWorld.Translation().ApproxEqual(vec(0, 2, 0), eps) {
		t.Errorf("local to world translation = %v", p.LocalToWorld.Translation())
	}
	if !p.WorldNormal.ApproxEqual(vec(0, 1, 0), eps) {
		t.Errorf("world normal = %v", p.WorldNormal)
	}
}

// bicepData has one group with zero fit deltas, so only the max and flex
// shapes move vertex 0.
func bicepData() *muscle.Data {
	n := 6
	weights := make([]float32, n)
	weights[0] = 1
	d := &muscle.Data{
		Groups:        []muscle.Group{{Name: "Bicep_L", Mirror: muscle.NoMirror}},
		FitThreshold:  0.35,
		FlexThreshold: 0.5,
		Surfaces: []muscle.SurfaceData{{
			Name:        "body",
			VertexCount: n,
			Groups: []muscle.SurfaceGroup{{
				Group:   0,
				Weights: weights,
				Fit:     make([]meshdata.Delta, n),
				Max:     uniformDeltas(n, vec(0, 1, 0)),
				Flex:    uniformDeltas(n, vec(0, 0, 1)),
			}},
		}},
	}
	d.Validate()
	return d
}

func TestBicepFlexScenario(t *testing.T) {
	pool := worker.NewPool(0)
	defer pool.Close()

	state := muscle.NewState(bicepData())
	s := New("body", meshdata.Build(testAsset(t.Name())), Options{Pool: pool})
	s.EnableMuscles(state)
	h := s.GetOrCreateSample(0)
	other := s.GetOrCreateSample(1)

	g := state.GroupIndex("Bicep_L")
	state.SetMass(g, 0.6, true, false)
	state.SetFlex(g, 1.0, true, false)

	s.Schedule(worker.Completed())
	p := s.GetSample(h)

	maxFactor := float32(0.6-0.35) / 0.65
	want := vec(0, maxFactor, 1)
	if !p.Vertex.ApproxEqual(want, eps) {
		t.Errorf("vertex = %v, want %v", p.Vertex, want)
	}
	if q := s.GetSample(other); q.IsReshaped() {
		t.Errorf("vertex without group weight moved to %v", q.Vertex)
	}
}

func TestMuscleValuesCapturedAtSchedule(t *testing.T) {
	state := muscle.NewState(bicepData())
	s := New("body", meshdata.Build(testAsset(t.Name())), Options{})
	s.EnableMuscles(state)
	h := s.GetOrCreateSample(0)

	state.SetMass(0, 1, false, false)
	s.Schedule(worker.Completed())
	state.SetMass(0, 0, false, false)

	if got := s.GetSample(h).Vertex; !got.ApproxEqual(vec(0, 1, 0), eps) {
		t.Errorf("vertex = %v, want values from schedule time", got)
	}
}

func TestMirroredFallback(t *testing.T) {
	n := 6
	weights := make([]float32, n)
	weights[0], weights[1] = 1, 1
	midline := make([]float32, n)
	midline[0] = 1

	data := &muscle.Data{
		Groups: []muscle.Group{
			{Name: "Pec_L", Mirror: 1},
			{Name: "Pec_R", Mirror: 0},
		},
		Surfaces: []muscle.SurfaceData{{
			Name:    "body",
			Midline: midline,
			Groups: []muscle.SurfaceGroup{{
				Group:   0,
				Weights: weights,
				Max:     uniformDeltas(n, vec(0, 1, 0)),
			}},
		}},
	}
	data.Validate()

	state := muscle.NewState(data)
	s := New("body", meshdata.Build(testAsset(t.Name())), Options{})
	s.EnableMuscles(state)
	seam := s.GetOrCreateSample(0)
	side := s.GetOrCreateSample(1)

	state.SetMass(1, 1, false, false)
	state.SetMass(0, 0, false, false)
	s.Schedule(worker.Completed())

	if got := s.GetSample(seam).Vertex; !got.ApproxEqual(vec(0, 1, 0), eps) {
		t.Errorf("midline vertex = %v, want full deformation", got)
	}
	if got := s.GetSample(side).Vertex; !got.ApproxEqual(vec(1, 0, 0), eps) {
		t.Errorf("side vertex = %v, want no deformation", got)
	}
}

func TestMismatchedMuscleTableSkipped(t *testing.T) {
	data := bicepData()
	data.Surfaces[0].VertexCount = 0
	data.Surfaces[0].Groups[0].Weights = []float32{1, 1}

	state := muscle.NewState(data)
	s := New("body", meshdata.Build(testAsset(t.Name())), Options{})
	s.EnableMuscles(state)
	h := s.GetOrCreateSample(0)

	state.SetMass(0, 1, false, false)
	s.Schedule(worker.Completed())
	if p := s.GetSample(h); p.IsReshaped() {
		t.Errorf("mismatched table should have no influence, vertex %v", p.Vertex)
	}
	if !s.Muscular() {
		t.Error("surface should stay muscular with skipped tables")
	}
}

func TestDependentShapeDrivesSurface(t *testing.T) {
	shape := meshdata.BlendShape{Name: "vein", Frames: []meshdata.BlendShapeFrame{
		{Weight: 1, Deltas: uniformDeltas(6, vec(0, 0, 1))},
	}}
	s := New("body", meshdata.Build(testAsset(t.Name(), shape)), Options{})
	state := muscle.NewState(bicepData())
	state.AddDependentShape(0, muscle.DependentShape{
		Target: s,
		Shape:  s.Mesh().ShapeIndex("vein"),
		Pump:   &muscle.ResponseCurve{Min: 0, Max: 1},
	})
	h := s.GetOrCreateSample(4)

	state.SetPump(0, 0.5, true, false)
	if w := s.BlendShapeWeight(0); w != 0.5 {
		t.Fatalf("shape weight = %v, want 0.5", w)
	}
	s.Schedule(worker.Completed())
	if got := s.GetSample(h).Vertex; !got.ApproxEqual(vec(4, 0, 0.5), eps) {
		t.Errorf("vertex = %v, want (4,0,0.5)", got)
	}
}

func TestPointsSnapshot(t *testing.T) {
	s := New("body", meshdata.Build(testAsset(t.Name())), Options{})
	s.GetOrCreateSample(4)
	s.GetOrCreateSample(1)

	pts := s.Points()
	if len(pts) != 2 || pts[0].VertexIndex != 4 || pts[1].VertexIndex != 1 {
		t.Fatalf("Points = %+v", pts)
	}
	pts[0].VertexIndex = 99
	if s.Points()[0].VertexIndex != 4 {
		t.Error("Points must return a copy")
	}
}
