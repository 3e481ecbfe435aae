// Package surface tracks individual vertices of a skinned, blend-shaped mesh
// and recomputes their deformed positions every frame on the worker pool.
package surface

import (
	"github.com/Faultbox/muscle-surface/internal/meshdata"
	"github.com/Faultbox/muscle-surface/pkg/math"
)

// SamplePoint is one tracked vertex.
type SamplePoint struct {
	VertexIndex int
	BoneCount   int
	BoneWeights [meshdata.MaxBoneInfluences]meshdata.BoneWeight

	BaseVertex        math.Vec3
	BaseNormal        math.Vec3
	BaseSurfaceNormal math.Vec3

	// Local values after blend shapes, before skinning.
	Vertex        math.Vec3
	Normal        math.Vec3
	SurfaceNormal math.Vec3

	WorldPosition math.Vec3
	WorldNormal   math.Vec3
	LocalToWorld  math.Mat4
}

// DefaultSamplePoint is returned for stale or unknown handles.
func DefaultSamplePoint() SamplePoint {
	return SamplePoint{VertexIndex: -1, LocalToWorld: math.Identity()}
}

// IsReshaped reports whether blend shapes moved the point away from its
// base values in any component.
func (p SamplePoint) IsReshaped() bool {
	return p.Vertex.AnyDiffers(p.BaseVertex) ||
		p.Normal.AnyDiffers(p.BaseNormal) ||
		p.SurfaceNormal.AnyDiffers(p.BaseSurfaceNormal)
}

// Influences returns the point's bone weights.
func (p SamplePoint) Influences() []meshdata.BoneWeight {
	return p.BoneWeights[:p.BoneCount]
}

func newSamplePoint(mesh *meshdata.SharedMeshData, v int) SamplePoint {
	p := SamplePoint{VertexIndex: v, LocalToWorld: math.Identity()}
	p.BaseVertex, p.BaseNormal, p.BaseSurfaceNormal, _ = mesh.Vertex(v)
	p.BoneCount = copy(p.BoneWeights[:], mesh.BoneWeights(v))

	p.Vertex, p.Normal, p.SurfaceNormal = p.BaseVertex, p.BaseNormal, p.BaseSurfaceNormal
	p.WorldPosition, p.WorldNormal = p.BaseVertex, p.BaseNormal
	return p
}
