package surface

import (
	"go.uber.org/zap"

	"github.com/Faultbox/muscle-surface/internal/logger"
	"github.com/Faultbox/muscle-surface/internal/meshdata"
	"github.com/Faultbox/muscle-surface/internal/muscle"
	"github.com/Faultbox/muscle-surface/internal/skeleton"
	"github.com/Faultbox/muscle-surface/internal/worker"
)

// DefaultBatchSize is the number of points deformed per parallel chunk.
const DefaultBatchSize = 32

// Options configures a Surface.
type Options struct {
	Pool      *worker.Pool
	Sampler   *skeleton.Sampler
	BatchSize int
}

// Surface samples vertices of one renderable mesh. All methods except
// GetSampleUnsafe must be called from the orchestrating goroutine.
type Surface struct {
	name    string
	mesh    *meshdata.SharedMeshData
	pool    *worker.Pool
	sampler *skeleton.Sampler
	batch   int
	log     *zap.Logger

	set     SampleSet
	weights []float32

	muscles     *muscle.State
	muscleData  *muscle.SurfaceData
	tables      []muscle.SurfaceGroup
	mirrors     []int
	frameGroups []muscle.Info

	frameWeights []float32
	pending      worker.Handle
}

// New creates a surface over shared mesh data. A nil mesh yields a surface
// whose sampling calls are no-ops.
func New(name string, mesh *meshdata.SharedMeshData, opts Options) *Surface {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	s := &Surface{
		name:    name,
		mesh:    mesh,
		pool:    opts.Pool,
		sampler: opts.Sampler,
		batch:   batch,
		log:     logger.Named("surface").With(zap.String("surface", name)),
	}
	if mesh != nil {
		s.weights = make([]float32, mesh.BlendShapeCount())
	}
	return s
}

// Name returns the surface name.
func (s *Surface) Name() string { return s.name }

// Mesh returns the shared mesh data, possibly nil.
func (s *Surface) Mesh() *meshdata.SharedMeshData { return s.mesh }

// SampleCount returns the number of tracked vertices.
func (s *Surface) SampleCount() int { return s.set.Len() }

// EnableMuscles switches the surface to the muscular kernel, reading the
// muscle tables authored for this surface's name. Tables that do not match
// the mesh are skipped. A nil state restores the base kernel.
func (s *Surface) EnableMuscles(state *muscle.State) {
	s.pending.Complete()
	s.muscles, s.muscleData, s.tables, s.mirrors = nil, nil, nil, nil
	if state == nil || s.mesh == nil {
		return
	}

	data := state.Data()
	s.muscles = state
	s.muscleData = data.Surface(s.name)
	s.tables = s.muscleData.TablesFor(s.mesh.VertexCount(), state.GroupCount())
	s.mirrors = make([]int, state.GroupCount())
	for g := range s.mirrors {
		s.mirrors[g] = data.Mirror(g)
	}
	s.log.Debug("muscles enabled", zap.Int("tables", len(s.tables)))
}

// Muscular reports whether the muscular kernel is active.
func (s *Surface) Muscular() bool { return s.muscles != nil }

// GetOrCreateSample starts sampling vertex v and returns its handle. Sampling
// the same vertex twice returns the same handle. Out-of-range vertices and
// surfaces without mesh data return the zero handle.
func (s *Surface) GetOrCreateSample(v int) SampleIndex {
	if s.mesh == nil {
		return SampleIndex{}
	}
	if h, ok := s.set.Find(v); ok {
		return h
	}
	if v < 0 || v >= s.mesh.VertexCount() {
		s.log.Warn("sample vertex out of range", zap.Int("vertex", v), zap.Int("vertices", s.mesh.VertexCount()))
		return SampleIndex{}
	}

	s.pending.Complete()
	p := newSamplePoint(s.mesh, v)
	for _, bw := range p.Influences() {
		if bw.Weight != 0 {
			s.sampler.Track(bw.Bone)
		}
	}
	h := s.set.Add(p)
	s.log.Debug("sampling vertex", zap.Int("vertex", v), zap.Int("bones", p.BoneCount))
	return h
}

// StopSampling stops sampling the point behind h. It returns false if h was
// already stopped or never issued.
func (s *Surface) StopSampling(h SampleIndex) bool {
	if !s.set.Contains(h) {
		return false
	}
	s.pending.Complete()
	p, _ := s.set.Remove(h)
	for _, bw := range p.Influences() {
		if bw.Weight != 0 {
			s.sampler.Untrack(bw.Bone)
		}
	}
	return true
}

// GetSample completes any pending deformation and returns the point behind h.
// Stale handles return DefaultSamplePoint.
func (s *Surface) GetSample(h SampleIndex) SamplePoint {
	s.pending.Complete()
	return s.GetSampleUnsafe(h)
}

// GetSampleUnsafe returns the point behind h without waiting for pending
// deformation. The caller must have completed the surface's handle.
func (s *Surface) GetSampleUnsafe(h SampleIndex) SamplePoint {
	p, ok := s.set.Get(h)
	if !ok {
		return DefaultSamplePoint()
	}
	return p
}

// Points completes pending work and returns a copy of every tracked point.
func (s *Surface) Points() []SamplePoint {
	s.pending.Complete()
	return append([]SamplePoint(nil), s.set.Points()...)
}

// SetBlendShapeWeight sets the weight of a generic blend shape. Weights use
// the same units as the authored frame weights.
func (s *Surface) SetBlendShapeWeight(shape int, weight float32) {
	if shape < 0 || shape >= len(s.weights) {
		return
	}
	s.weights[shape] = weight
}

// BlendShapeWeight returns the weight of a generic blend shape.
func (s *Surface) BlendShapeWeight(shape int) float32 {
	if shape < 0 || shape >= len(s.weights) {
		return 0
	}
	return s.weights[shape]
}

// Handle returns the completion handle of the last scheduled deformation.
func (s *Surface) Handle() worker.Handle { return s.pending }

// Complete blocks until the last scheduled deformation has finished.
func (s *Surface) Complete() { s.pending.Complete() }

// Schedule deforms every tracked point after dependsOn, which must cover the
// bone sampler's pose computation. Inputs are captured now, so weights and
// muscle values changed afterwards apply to the next frame.
func (s *Surface) Schedule(dependsOn worker.Handle) worker.Handle {
	s.pending.Complete()
	if s.mesh == nil || s.set.Len() == 0 {
		s.pending = dependsOn
		return dependsOn
	}

	s.frameWeights = append(s.frameWeights[:0], s.weights...)
	k := &Kernel{
		Mesh:         s.mesh,
		ShapeWeights: s.frameWeights,
		Bones:        s.sampler.BoneMatrices(),
	}
	if s.muscles != nil {
		s.frameGroups = s.muscles.Snapshot(s.frameGroups)
		data := s.muscles.Data()
		k.Muscles = &MuscleInputs{
			Tables:         s.tables,
			Surface:        s.muscleData,
			Groups:         s.frameGroups,
			Mirrors:        s.mirrors,
			FitThreshold:   data.FitThreshold,
			FlexThreshold:  data.FlexThreshold,
			BreastPresence: s.muscles.BreastPresence(),
		}
	}

	points := s.set.Points()
	s.pending = s.pool.ParallelFor(dependsOn, len(points), s.batch, func(start, end int) {
		for i := start; i < end; i++ {
			k.Deform(&points[i])
		}
	})
	return s.pending
}

var _ muscle.ShapeTarget = (*Surface)(nil)
