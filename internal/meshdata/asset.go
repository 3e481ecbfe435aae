// Package meshdata holds the immutable per-mesh data shared by every
// character instance that uses the same mesh asset.
package meshdata

import "github.com/Faultbox/muscle-surface/pkg/math"

// MaxBoneInfluences is the number of bones that may influence one vertex.
const MaxBoneInfluences = 8

// BoneWeight is one bone influence on a vertex.
type BoneWeight struct {
	Bone   int     `yaml:"bone" toml:"bone"`
	Weight float32 `yaml:"weight" toml:"weight"`
}

// Delta is a blend-shape offset for one vertex.
type Delta struct {
	Vertex        math.Vec3
	Normal        math.Vec3
	SurfaceNormal math.Vec3
}

// Add returns d + other.
func (d Delta) Add(other Delta) Delta {
	return Delta{
		Vertex:        d.Vertex.Add(other.Vertex),
		Normal:        d.Normal.Add(other.Normal),
		SurfaceNormal: d.SurfaceNormal.Add(other.SurfaceNormal),
	}
}

// Scale returns d * s.
func (d Delta) Scale(s float32) Delta {
	return Delta{
		Vertex:        d.Vertex.Scale(s),
		Normal:        d.Normal.Scale(s),
		SurfaceNormal: d.SurfaceNormal.Scale(s),
	}
}

// AddScaled returns d + other*s.
func (d Delta) AddScaled(other Delta, s float32) Delta {
	return Delta{
		Vertex:        d.Vertex.AddScaled(other.Vertex, s),
		Normal:        d.Normal.AddScaled(other.Normal, s),
		SurfaceNormal: d.SurfaceNormal.AddScaled(other.SurfaceNormal, s),
	}
}

// Lerp interpolates between d and other.
func (d Delta) Lerp(other Delta, t float32) Delta {
	return Delta{
		Vertex:        d.Vertex.Lerp(other.Vertex, t),
		Normal:        d.Normal.Lerp(other.Normal, t),
		SurfaceNormal: d.SurfaceNormal.Lerp(other.SurfaceNormal, t),
	}
}

// BlendShapeFrame is one authored frame of a blend shape. Weight is the
// shape weight at which Deltas apply in full.
type BlendShapeFrame struct {
	Weight float32
	Deltas []Delta
}

// BlendShape is a named sequence of frames with increasing weights.
type BlendShape struct {
	Name   string
	Frames []BlendShapeFrame
}

// Asset is the mesh asset source consumed when building SharedMeshData.
// Slices shorter than VertexCount are zero-filled.
type Asset interface {
	// ID is the stable mesh identity used as cache key.
	ID() string
	VertexCount() int
	Vertices() []math.Vec3
	Normals() []math.Vec3
	// SurfaceNormals returns the recalculated normals used for surface
	// orientation. nil falls back to Normals.
	SurfaceNormals() []math.Vec3
	// BoneWeightCounts returns the number of influences per vertex; the
	// influences themselves are stored back to back in BoneWeights.
	BoneWeightCounts() []int
	BoneWeights() []BoneWeight
	BlendShapes() []BlendShape
}

// StaticAsset is an in-memory Asset.
type StaticAsset struct {
	Name          string
	Count         int
	Positions     []math.Vec3
	VertexNormals []math.Vec3
	SurfaceNorms  []math.Vec3
	WeightCounts  []int
	Weights       []BoneWeight
	Shapes        []BlendShape
}

func (a *StaticAsset) ID() string                  { return a.Name }
func (a *StaticAsset) Vertices() []math.Vec3       { return a.Positions }
func (a *StaticAsset) Normals() []math.Vec3        { return a.VertexNormals }
func (a *StaticAsset) SurfaceNormals() []math.Vec3 { return a.SurfaceNorms }
func (a *StaticAsset) BoneWeightCounts() []int     { return a.WeightCounts }
func (a *StaticAsset) BoneWeights() []BoneWeight   { return a.Weights }
func (a *StaticAsset) BlendShapes() []BlendShape   { return a.Shapes }

// VertexCount returns Count, or the number of positions when Count is unset.
func (a *StaticAsset) VertexCount() int {
	if a.Count > 0 {
		return a.Count
	}
	return len(a.Positions)
}
