package surface

import (
	"github.com/Faultbox/muscle-surface/internal/meshdata"
	"github.com/Faultbox/muscle-surface/internal/muscle"
	"github.com/Faultbox/muscle-surface/pkg/math"
)

// Kernel deforms sample points from one frame's inputs. Its inputs are
// read-only while it runs; Deform only writes the point it is given.
type Kernel struct {
	Mesh         *meshdata.SharedMeshData
	ShapeWeights []float32
	Bones        []math.Mat4

	// Muscles enables the muscular variant when non-nil.
	Muscles *MuscleInputs
}

// MuscleInputs is one frame's muscle state for a surface.
type MuscleInputs struct {
	Tables         []muscle.SurfaceGroup
	Surface        *muscle.SurfaceData
	Groups         []muscle.Info
	Mirrors        []int
	FitThreshold   float32
	FlexThreshold  float32
	BreastPresence float32
}

// Deform recomputes p from its base values.
func (k *Kernel) Deform(p *SamplePoint) {
	acc := meshdata.Delta{
		Vertex:        p.BaseVertex,
		Normal:        p.BaseNormal,
		SurfaceNormal: p.BaseSurfaceNormal,
	}

	// Muscles first, generic shapes on top. Unknown vertices keep the base.
	if v := p.VertexIndex; k.Mesh != nil && v >= 0 && v < k.Mesh.VertexCount() {
		if k.Muscles != nil {
			acc = acc.Add(k.Muscles.accumulate(v))
		}
		acc = k.blendShapes(v, acc)
	}

	// Summed deltas leave normals unnormalized
	p.Vertex = acc.Vertex
	p.Normal = acc.Normal.Normalize()
	p.SurfaceNormal = acc.SurfaceNormal.Normalize()

	// Skin the reshaped values, not the base ones
	skin := k.skinMatrix(p)
	p.LocalToWorld = skin
	p.WorldPosition = skin.TransformPoint(p.Vertex)
	p.WorldNormal = skin.TransformDirection(p.Normal).Normalize()
}

func (k *Kernel) blendShapes(v int, acc meshdata.Delta) meshdata.Delta {
	n := min(len(k.ShapeWeights), k.Mesh.BlendShapeCount())
	for s := 0; s < n; s++ {
		w := k.ShapeWeights[s]
		if w == 0 {
			continue
		}
		acc = acc.Add(shapeDelta(k.Mesh, s, v, w))
	}
	return acc
}

// shapeDelta interpolates the delta of shape s at weight w between the two
// frames bracketing w. Below the first frame the lower frame is zero; at or
// above the last frame the last frame applies in full.
func shapeDelta(mesh *meshdata.SharedMeshData, s, v int, w float32) meshdata.Delta {
	start, end := mesh.ShapeFrames(s)
	if start >= end {
		return meshdata.Delta{}
	}

	// Below the first frame, fade in from the undeformed mesh.
	first := mesh.FrameWeight(start)
	if w < first {
		if first <= 0 {
			return meshdata.Delta{}
		}
		return meshdata.Delta{}.Lerp(mesh.Delta(start, v), w/first)
	}

	last := end - 1
	if w >= mesh.FrameWeight(last) {
		return mesh.Delta(last, v)
	}

	// Frames are sorted by weight; find the pair bracketing w.
	f := start
	for f+1 < last && mesh.FrameWeight(f+1) <= w {
		f++
	}
	lo, hi := mesh.FrameWeight(f), mesh.FrameWeight(f+1)
	if hi <= lo {
		return mesh.Delta(f+1, v)
	}
	return mesh.Delta(f, v).Lerp(mesh.Delta(f+1, v), (w-lo)/(hi-lo))
}

// skinMatrix sums the influencing bone matrices scaled by their weights.
// Weights are used as authored. Influences naming bones outside the pose are
// skipped; with no usable influence the point stays in local space.
func (k *Kernel) skinMatrix(p *SamplePoint) math.Mat4 {
	var m math.Mat4
	applied := false
	for _, bw := range p.BoneWeights[:p.BoneCount] {
		if bw.Bone < 0 || bw.Bone >= len(k.Bones) {
			continue
		}
		m = m.AddScaled(k.Bones[bw.Bone], bw.Weight)
		applied = true
	}
	if !applied {
		return math.Identity()
	}
	return m
}

func (in *MuscleInputs) accumulate(v int) meshdata.Delta {
	var d meshdata.Delta
	mid := in.Surface.MidlineFor(v)
	for i := range in.Tables {
		t := &in.Tables[i]
		if t.Weights[v] == 0 {
			continue
		}
		info := in.Groups[t.Group]
		mass, flex := info.Mass, info.Flex
		if j := in.Mirrors[t.Group]; j >= 0 && j < len(in.Groups) {
			mass = max(mass, in.Groups[j].Mass*mid)
			flex = max(flex, in.Groups[j].Flex*mid)
		}
		f := muscle.ComputeFactors(mass, flex, in.FitThreshold, in.FlexThreshold, in.BreastPresence)
		d = d.Add(t.Blend(v, f))
	}
	return d
}
