package character

import (
	"testing"

	"github.com/Faultbox/muscle-surface/internal/meshdata"
	"github.com/Faultbox/muscle-surface/internal/muscle"
	"github.com/Faultbox/muscle-surface/internal/skeleton"
	"github.com/Faultbox/muscle-surface/internal/worker"
	"github.com/Faultbox/muscle-surface/pkg/math"
)

const eps = 1e-5

func testConfig(t *testing.T, pool *worker.Pool) Config {
	t.Helper()
	skel := skeleton.New([]skeleton.Bone{
		{Name: "root", Parent: -1},
		{Name: "spine", Parent: 0},
	})
	skel.BindInverses()

	n := 4
	asset := &meshdata.StaticAsset{
		Name:         t.Name() + "/body",
		Positions:    []math.Vec3{{X: 0}, {X: 1}, {X: 2}, {X: 3}},
		WeightCounts: []int{1, 1, 1, 1},
		Weights: []meshdata.BoneWeight{
			{Bone: 0, Weight: 1}, {Bone: 1, Weight: 1}, {Bone: 1, Weight: 1}, {Bone: 1, Weight: 1},
		},
	}
	weights := []float32{0, 1, 0, 0}
	maxDeltas := make([]meshdata.Delta, n)
	maxDeltas[1].Vertex = math.Vec3{Z: 1}

	data := &muscle.Data{
		Groups: []muscle.Group{{Name: "Chest", Mirror: muscle.NoMirror}},
		Surfaces: []muscle.SurfaceData{{
			Name:   "body",
			Groups: []muscle.SurfaceGroup{{Group: 0, Weights: weights, Max: maxDeltas}},
		}},
	}
	data.Validate()

	return Config{
		Name:    "hero",
		Pose:    skel,
		Meshes:  map[string]meshdata.Asset{"body": asset},
		Muscles: data,
		Pool:    pool,
		Cache:   meshdata.NewCache(),
	}
}

func TestCreateAssignsIdentity(t *testing.T) {
	a := Create(nil, testConfig(t, nil))
	b := Create(nil, testConfig(t, nil))
	if a.ID() == b.ID() {
		t.Error("characters share an ID")
	}
	if a.Name() != "hero" || a.Destroyed() {
		t.Errorf("unexpected state name=%q destroyed=%v", a.Name(), a.Destroyed())
	}
}

func TestSurfaceLazyCreation(t *testing.T) {
	c := Create(nil, testConfig(t, nil))
	if len(c.Surfaces()) != 0 {
		t.Fatal("surfaces created eagerly")
	}
	s := c.Surface("body")
	if s == nil || c.Surface("body") != s {
		t.Fatal("Surface should create once and return the same instance")
	}
	if !s.Muscular() {
		t.Error("muscle data should enable the muscular kernel")
	}
	if c.Surface("hair") != nil {
		t.Error("unknown surface should be nil")
	}
	if len(c.Surfaces()) != 1 {
		t.Errorf("Surfaces = %d, want 1", len(c.Surfaces()))
	}
}

func TestSharedMeshDataAcrossCharacters(t *testing.T) {
	cfg := testConfig(t, nil)
	a := Create(nil, cfg)
	b := Create(nil, cfg)
	if a.Surface("body").Mesh() != b.Surface("body").Mesh() {
		t.Error("characters using the same asset should share mesh data")
	}
	if cfg.Cache.Len() != 1 {
		t.Errorf("cache Len = %d, want 1", cfg.Cache.Len())
	}
}

func TestRefreshDeformsAfterPose(t *testing.T) {
	pool := worker.NewPool(2)
	defer pool.Close()

	cfg := testConfig(t, pool)
	c := Create(nil, cfg)
	s := c.Surface("body")
	h := s.GetOrCreateSample(1)

	cfg.Pose.(*skeleton.Skeleton).SetLocalTranslation(0, math.Vec3{Y: 5})
	c.Muscles().SetMass(0, 1, true, false)

	c.Refresh(false).Complete()
	p := s.GetSampleUnsafe(h)
	want := math.Vec3{X: 1, Y: 5, Z: 1}
	if !p.WorldPosition.ApproxEqual(want, eps) {
		t.Errorf("world position = %v, want %v", p.WorldPosition, want)
	}
	c.CompleteJobs()
}

func TestRefreshOncePerFrameUnlessForced(t *testing.T) {
	c := Create(nil, testConfig(t, nil))
	s := c.Surface("body")
	h := s.GetOrCreateSample(1)

	c.Refresh(false)
	c.Muscles().SetMass(0, 1, false, false)
	c.Refresh(false)
	if s.GetSample(h).IsReshaped() {
		t.Error("unforced second refresh should not recompute")
	}

	c.Refresh(true)
	if !s.GetSample(h).IsReshaped() {
		t.Error("forced refresh should recompute with the latest values")
	}

	c.CompleteJobs()
	c.Muscles().SetMass(0, 0, false, false)
	c.Refresh(false)
	c.CompleteJobs()
	if s.GetSample(h).IsReshaped() {
		t.Error("next frame should pick up the reset mass")
	}
}

func TestChildFollowsOwner(t *testing.T) {
	parent := Create(nil, testConfig(t, nil))
	childCfg := testConfig(t, nil)
	childCfg.Name = "head"
	child := Create(parent, childCfg)

	if child.Parent() != parent || len(parent.Children()) != 1 {
		t.Fatal("child not attached")
	}

	cs := child.Surface("body")
	h := cs.GetOrCreateSample(1)

	parent.Muscles().SetMass(0, 1, true, false)
	if child.Muscles().Info(0).Mass != 1 {
		t.Error("child muscle value should follow the owner")
	}

	parent.Refresh(false)
	parent.CompleteJobs()
	if !cs.GetSampleUnsafe(h).IsReshaped() {
		t.Error("owner refresh should cover the child")
	}

	child.Destroy()
	if len(parent.Children()) != 0 {
		t.Error("destroyed child still attached")
	}
	parent.Muscles().SetMass(0, 0.5, true, false)
	if child.Muscles().Info(0).Mass != 1 {
		t.Error("destroyed child still follows the owner")
	}
}

func TestChildSharesOwnerSkeleton(t *testing.T) {
	pool := worker.NewPool(4)
	defer pool.Close()

	cfg := testConfig(t, pool)
	cfg.Pose.(*skeleton.Skeleton).SetLocalTranslation(0, math.Vec3{Y: 2})
	parent := Create(nil, cfg)
	child := Create(parent, cfg)

	ps := parent.Surface("body")
	cs := child.Surface("body")
	ph := ps.GetOrCreateSample(0)
	ch := cs.GetOrCreateSample(2)

	for i := 0; i < 200; i++ {
		parent.Refresh(true)
		parent.CompleteJobs()

		if got := ps.GetSampleUnsafe(ph).WorldPosition; !got.ApproxEqual(math.Vec3{Y: 2}, eps) {
			t.Fatalf("iteration %d: parent position = %v, want (0,2,0)", i, got)
		}
		if got := cs.GetSampleUnsafe(ch).WorldPosition; !got.ApproxEqual(math.Vec3{X: 2, Y: 2}, eps) {
			t.Fatalf("iteration %d: child position = %v, want (2,2,0)", i, got)
		}
	}
}

func TestDestroy(t *testing.T) {
	owner := Create(nil, testConfig(t, nil))
	c := Create(owner, testConfig(t, nil))
	grandchild := Create(c, testConfig(t, nil))
	c.Surface("body").GetOrCreateSample(0)

	calls := 0
	owner.Muscles().AddListener(0, c, func(int, muscle.Info) { calls++ })

	owner.Destroy()
	owner.Destroy()

	if !owner.Destroyed() || !c.Destroyed() || !grandchild.Destroyed() {
		t.Fatal("Destroy should cascade to children")
	}
	if c.Surface("body") != nil {
		t.Error("destroyed character should not create surfaces")
	}
	if !c.Refresh(true).IsCompleted() {
		t.Error("destroyed character refresh should be a no-op")
	}

	owner.Muscles().SetMass(0, 1, true, false)
	if calls != 0 {
		t.Error("listener owned by a destroyed character was called")
	}
	if owner.Muscles().ListenerCount(0) != 0 {
		t.Error("listener owned by a destroyed character was not pruned")
	}

	late := Create(owner, testConfig(t, nil))
	if late.Parent() != nil {
		t.Error("destroyed owner should not adopt children")
	}
}

func TestWithoutOptionalData(t *testing.T) {
	c := Create(nil, Config{
		Name:   "prop",
		Meshes: map[string]meshdata.Asset{"rock": &meshdata.StaticAsset{Name: t.Name(), Positions: []math.Vec3{{X: 1}}}},
	})
	if c.Muscles() != nil || c.Sampler() != nil {
		t.Fatal("optional parts should be nil")
	}
	s := c.Surface("rock")
	h := s.GetOrCreateSample(0)
	c.Refresh(false)
	c.CompleteJobs()

	p := s.GetSample(h)
	if p.WorldPosition != (math.Vec3{X: 1}) || s.Muscular() {
		t.Errorf("sample = %+v", p)
	}
}
