package meshdata

import (
	"sort"

	"go.uber.org/zap"

	"github.com/Faultbox/muscle-surface/internal/logger"
	"github.com/Faultbox/muscle-surface/pkg/math"
)

// SharedMeshData is the flattened, read-only form of a mesh asset. It is
// built once per mesh identity and read concurrently without locking.
type SharedMeshData struct {
	id          string
	vertexCount int

	vertices       []math.Vec3
	normals        []math.Vec3
	surfaceNormals []math.Vec3

	// weightStart[v]..weightStart[v+1] indexes weights for vertex v.
	weightStart []int
	weights     []BoneWeight

	shapeNames []string
	// shapeFrameStart[s]..shapeFrameStart[s+1] indexes frameWeights for shape s.
	shapeFrameStart []int
	frameWeights    []float32
	// deltas[frame*vertexCount+v]
	deltas []Delta
}

// Build flattens an asset. Missing or short arrays degrade to zero values.
func Build(a Asset) *SharedMeshData {
	log := logger.Named("meshdata")

	vc := max(a.VertexCount(), 0)
	d := &SharedMeshData{
		id:          a.ID(),
		vertexCount: vc,
	}

	d.vertices = fill(a.Vertices(), vc)
	d.normals = fill(a.Normals(), vc)
	if sn := a.SurfaceNormals(); sn != nil {
		d.surfaceNormals = fill(sn, vc)
	} else {
		d.surfaceNormals = d.normals
	}

	d.buildWeights(a.BoneWeightCounts(), a.BoneWeights())
	d.buildShapes(a.BlendShapes())

	log.Debug("built shared mesh data",
		zap.String("mesh", d.id),
		zap.Int("vertices", vc),
		zap.Int("weights", len(d.weights)),
		zap.Int("blendShapes", len(d.shapeNames)),
		zap.Int("frames", len(d.frameWeights)))
	return d
}

func fill(src []math.Vec3, n int) []math.Vec3 {
	out := make([]math.Vec3, n)
	copy(out, src)
	return out
}

func (d *SharedMeshData) buildWeights(counts []int, flat []BoneWeight) {
	d.weightStart = make([]int, d.vertexCount+1)
	d.weights = make([]BoneWeight, 0, min(len(flat), d.vertexCount*MaxBoneInfluences))

	truncated := 0
	offset := 0
	for v := 0; v < d.vertexCount; v++ {
		d.weightStart[v] = len(d.weights)

		n := 0
		if v < len(counts) {
			n = max(counts[v], 0)
		}
		end := min(offset+n, len(flat))
		run := flat[min(offset, len(flat)):end]
		offset += n

		if len(run) > MaxBoneInfluences {
			// keep the strongest influences
			run = append([]BoneWeight(nil), run...)
			sort.SliceStable(run, func(i, j int) bool { return run[i].Weight > run[j].Weight })
			run = run[:MaxBoneInfluences]
			truncated++
		}
		d.weights = append(d.weights, run...)
	}
	d.weightStart[d.vertexCount] = len(d.weights)

	if truncated > 0 {
		logger.Named("meshdata").Warn("vertices exceed bone influence limit, extra influences dropped",
			zap.String("mesh", d.id), zap.Int("vertices", truncated), zap.Int("limit", MaxBoneInfluences))
	}
}

func (d *SharedMeshData) buildShapes(shapes []BlendShape) {
	d.shapeNames = make([]string, len(shapes))
	d.shapeFrameStart = make([]int, len(shapes)+1)

	total := 0
	for _, s := range shapes {
		total += len(s.Frames)
	}
	d.frameWeights = make([]float32, 0, total)
	d.deltas = make([]Delta, total*d.vertexCount)

	frame := 0
	for si, s := range shapes {
		d.shapeNames[si] = s.Name
		d.shapeFrameStart[si] = frame

		frames := s.Frames
		if !sort.SliceIsSorted(frames, func(i, j int) bool { return frames[i].Weight < frames[j].Weight }) {
			logger.Named("meshdata").Warn("blend shape frames out of order, sorting by weight",
				zap.String("mesh", d.id), zap.String("shape", s.Name))
			frames = append([]BlendShapeFrame(nil), frames...)
			sort.SliceStable(frames, func(i, j int) bool { return frames[i].Weight < frames[j].Weight })
		}

		for _, f := range frames {
			d.frameWeights = append(d.frameWeights, f.Weight)
			copy(d.deltas[frame*d.vertexCount:(frame+1)*d.vertexCount], f.Deltas)
			frame++
		}
	}
	d.shapeFrameStart[len(shapes)] = frame
}

// ID returns the mesh identity.
func (d *SharedMeshData) ID() string { return d.id }

// VertexCount returns the number of vertices.
func (d *SharedMeshData) VertexCount() int { return d.vertexCount }

// Vertex returns the base vertex, normal and surface normal of v. ok is false
// for out-of-range indices, in which case zero vectors are returned.
func (d *SharedMeshData) Vertex(v int) (vertex, normal, surfaceNormal math.Vec3, ok bool) {
	if v < 0 || v >= d.vertexCount {
		return math.Vec3{}, math.Vec3{}, math.Vec3{}, false
	}
	return d.vertices[v], d.normals[v], d.surfaceNormals[v], true
}

// BoneWeights returns the influences of v. The slice aliases shared data and
// must not be modified.
func (d *SharedMeshData) BoneWeights(v int) []BoneWeight {
	if v < 0 || v >= d.vertexCount {
		return nil
	}
	return d.weights[d.weightStart[v]:d.weightStart[v+1]]
}

// BlendShapeCount returns the number of blend shapes.
func (d *SharedMeshData) BlendShapeCount() int { return len(d.shapeNames) }

// ShapeName returns the name of blend shape s.
func (d *SharedMeshData) ShapeName(s int) string {
	if s < 0 || s >= len(d.shapeNames) {
		return ""
	}
	return d.shapeNames[s]
}

// ShapeIndex returns the index of the named blend shape, or -1.
func (d *SharedMeshData) ShapeIndex(name string) int {
	for i, n := range d.shapeNames {
		if n == name {
			return i
		}
	}
	return -1
}

// ShapeFrames returns the global frame range [start, end) of blend shape s.
func (d *SharedMeshData) ShapeFrames(s int) (start, end int) {
	if s < 0 || s >= len(d.shapeNames) {
		return 0, 0
	}
	return d.shapeFrameStart[s], d.shapeFrameStart[s+1]
}

// FrameWeight returns the weight threshold of global frame f.
func (d *SharedMeshData) FrameWeight(f int) float32 {
	return d.frameWeights[f]
}

// Delta returns the offset of vertex v in global frame f.
func (d *SharedMeshData) Delta(f, v int) Delta {
	return d.deltas[f*d.vertexCount+v]
}
