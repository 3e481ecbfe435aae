package authoring

import (
	"github.com/Faultbox/muscle-surface/internal/meshdata"
	"github.com/Faultbox/muscle-surface/internal/muscle"
	"github.com/Faultbox/muscle-surface/internal/skeleton"
	"github.com/Faultbox/muscle-surface/pkg/math"
)

// Vec returns v as a math vector.
func (v Vec3) Vec() math.Vec3 { return math.Vec3{X: v[0], Y: v[1], Z: v[2]} }

// BuildSkeleton builds the authored skeleton with the authored pose as rest
// pose. It returns nil when the document has no bones.
func (d *Document) BuildSkeleton() *skeleton.Skeleton {
	if len(d.Skeleton) == 0 {
		return nil
	}
	index := d.boneIndex()
	bones := make([]skeleton.Bone, len(d.Skeleton))
	for i, b := range d.Skeleton {
		bones[i] = skeleton.Bone{
			Name:        b.Name,
			Parent:      -1,
			Translation: b.Translation.Vec(),
		}
		if p, ok := index[b.Parent]; ok {
			bones[i].Parent = p
		}
		if b.Rotation != nil {
			r := *b.Rotation
			bones[i].Rotation = math.Quat{X: r[0], Y: r[1], Z: r[2], W: r[3]}.Normalize()
		}
		if b.Scale != nil {
			bones[i].Scale = b.Scale.Vec()
		}
	}
	s := skeleton.New(bones)
	s.BindInverses()
	return s
}

func (d *Document) boneIndex() map[string]int {
	index := make(map[string]int, len(d.Skeleton))
	for i, b := range d.Skeleton {
		index[b.Name] = i
	}
	return index
}

// MeshID returns the cache identity of a surface's mesh.
func (d *Document) MeshID(surface string) string {
	return d.Name + "/" + surface
}

// Asset returns the mesh asset of the named surface, or nil.
func (d *Document) Asset(surface string) *meshdata.StaticAsset {
	for i := range d.Surfaces {
		if d.Surfaces[i].Name == surface {
			return d.asset(&d.Surfaces[i], d.boneIndex())
		}
	}
	return nil
}

// Assets returns the mesh asset of every surface keyed by surface name.
func (d *Document) Assets() map[string]meshdata.Asset {
	index := d.boneIndex()
	out := make(map[string]meshdata.Asset, len(d.Surfaces))
	for i := range d.Surfaces {
		out[d.Surfaces[i].Name] = d.asset(&d.Surfaces[i], index)
	}
	return out
}

func (d *Document) asset(s *SurfaceDoc, bones map[string]int) *meshdata.StaticAsset {
	n := len(s.Vertices)
	a := &meshdata.StaticAsset{
		Name:          d.MeshID(s.Name),
		Count:         n,
		Positions:     vecs(s.Vertices),
		VertexNormals: vecs(s.Normals),
		SurfaceNorms:  vecs(s.SurfaceNormals),
		WeightCounts:  make([]int, n),
	}
	for v := 0; v < n && v < len(s.Weights); v++ {
		a.WeightCounts[v] = len(s.Weights[v])
		for _, w := range s.Weights[v] {
			a.Weights = append(a.Weights, meshdata.BoneWeight{Bone: bones[w.Bone], Weight: w.Weight})
		}
	}
	for _, sh := range s.BlendShapes {
		shape := meshdata.BlendShape{Name: sh.Name}
		for _, f := range sh.Frames {
			shape.Frames = append(shape.Frames, meshdata.BlendShapeFrame{
				Weight: f.Weight,
				Deltas: denseDeltas(f.Deltas, n),
			})
		}
		a.Shapes = append(a.Shapes, shape)
	}
	return a
}

// MuscleDefaults supplies thresholds the document leaves unset.
type MuscleDefaults struct {
	FitThreshold  float32
	FlexThreshold float32
}

// MuscleData builds the shared muscle data, or nil when the document has no
// muscle section. Mirror links are validated.
func (d *Document) MuscleData(defaults MuscleDefaults) *muscle.Data {
	m := d.Muscles
	if m == nil {
		return nil
	}

	data := &muscle.Data{
		FitThreshold:  m.FitThreshold,
		FlexThreshold: m.FlexThreshold,
		Groups:        make([]muscle.Group, len(m.Groups)),
	}
	if data.FitThreshold == 0 {
		data.FitThreshold = defaults.FitThreshold
	}
	if data.FlexThreshold == 0 {
		data.FlexThreshold = defaults.FlexThreshold
	}

	groups := make(map[string]int, len(m.Groups))
	for i, g := range m.Groups {
		groups[g.Name] = i
	}
	for i, g := range m.Groups {
		data.Groups[i] = muscle.Group{Name: g.Name, Mirror: muscle.NoMirror}
		if j, ok := groups[g.Mirror]; ok {
			data.Groups[i].Mirror = j
		}
	}

	vertexCounts := make(map[string]int, len(d.Surfaces))
	for _, s := range d.Surfaces {
		vertexCounts[s.Name] = len(s.Vertices)
	}
	for _, ms := range m.Surfaces {
		n := vertexCounts[ms.Surface]
		sd := muscle.SurfaceData{
			Name:        ms.Surface,
			VertexCount: n,
			Midline:     denseValues(ms.Midline, n),
		}
		for _, t := range ms.Tables {
			sd.Groups = append(sd.Groups, muscle.SurfaceGroup{
				Group:         groups[t.Group],
				Weights:       denseValues(t.Weights, n),
				Fit:           optionalDeltas(t.Fit, n),
				Max:           optionalDeltas(t.Max, n),
				Flex:          optionalDeltas(t.Flex, n),
				BreastFull:    optionalDeltas(t.BreastFull, n),
				BreastFullMax: optionalDeltas(t.BreastFullMax, n),
			})
		}
		data.Surfaces = append(data.Surfaces, sd)
	}

	data.Validate()
	return data
}

func vecs(in []Vec3) []math.Vec3 {
	if in == nil {
		return nil
	}
	out := make([]math.Vec3, len(in))
	for i, v := range in {
		out[i] = v.Vec()
	}
	return out
}

func denseDeltas(in []DeltaDoc, n int) []meshdata.Delta {
	out := make([]meshdata.Delta, n)
	for _, d := range in {
		if d.Index < 0 || d.Index >= n {
			continue
		}
		out[d.Index] = meshdata.Delta{
			Vertex:        d.Vertex.Vec(),
			Normal:        d.Normal.Vec(),
			SurfaceNormal: d.SurfaceNormal.Vec(),
		}
	}
	return out
}

func optionalDeltas(in []DeltaDoc, n int) []meshdata.Delta {
	if len(in) == 0 {
		return nil
	}
	return denseDeltas(in, n)
}

func denseValues(in []VertexValueDoc, n int) []float32 {
	out := make([]float32, n)
	for _, v := range in {
		if v.Index >= 0 && v.Index < n {
			out[v.Index] = v.Value
		}
	}
	return out
}
