// Package muscle holds the muscle-group authoring data and the per-character
// mass/flex/pump state that drives materials, dependent blend shapes and
// listeners.
package muscle

import (
	"cmp"
	"slices"

	"go.uber.org/zap"

	"github.com/Faultbox/muscle-surface/internal/logger"
	"github.com/Faultbox/muscle-surface/internal/meshdata"
)

// NoMirror marks a group without a bilateral counterpart.
const NoMirror = -1

// Default thresholds used when authoring data leaves them unset.
const (
	DefaultFitThreshold  float32 = 0.35
	DefaultFlexThreshold float32 = 0.5
)

// Group is a named muscle group with an optional mirrored counterpart.
type Group struct {
	Name   string
	Mirror int
}

// SurfaceGroup is one group's per-vertex authoring table on one surface.
// Delta slices may be nil when the shape is not authored.
type SurfaceGroup struct {
	Group         int
	Weights       []float32
	Fit           []meshdata.Delta
	Max           []meshdata.Delta
	Flex          []meshdata.Delta
	BreastFull    []meshdata.Delta
	BreastFullMax []meshdata.Delta
}

// SurfaceData is the muscle authoring data of one renderable surface.
type SurfaceData struct {
	Name        string
	VertexCount int
	// Midline is the per-vertex weight of how strongly a vertex sits on the
	// bilateral seam (0..1).
	Midline []float32
	Groups  []SurfaceGroup
}

// Data is the muscle authoring data shared by every character using it.
// It must not be modified once handed to a State.
type Data struct {
	Groups        []Group
	FitThreshold  float32
	FlexThreshold float32
	Surfaces      []SurfaceData
}

// Validate fills unset thresholds and repairs mirror links so that
// groups[i].Mirror == j implies groups[j].Mirror == i. It returns the number
// of links that were changed.
func (d *Data) Validate() int {
	log := logger.Named("muscle")

	if d.FitThreshold <= 0 || d.FitThreshold >= 1 {
		d.FitThreshold = DefaultFitThreshold
	}
	if d.FlexThreshold <= 0 {
		d.FlexThreshold = DefaultFlexThreshold
	}

	repaired := 0
	for i := range d.Groups {
		j := d.Groups[i].Mirror
		switch {
		case j == NoMirror:
		case j < 0 || j >= len(d.Groups) || j == i:
			log.Warn("mirror index out of range, clearing",
				zap.String("group", d.Groups[i].Name), zap.Int("mirror", j))
			d.Groups[i].Mirror = NoMirror
			repaired++
		case d.Groups[j].Mirror == NoMirror:
			d.Groups[j].Mirror = i
			repaired++
		case d.Groups[j].Mirror != i:
			log.Warn("asymmetric mirror link, clearing",
				zap.String("group", d.Groups[i].Name), zap.String("mirror", d.Groups[j].Name))
			d.Groups[i].Mirror = NoMirror
			repaired++
		}
	}
	return repaired
}

// GroupIndex returns the index of the named group, or -1.
func (d *Data) GroupIndex(name string) int {
	if d == nil {
		return -1
	}
	for i := range d.Groups {
		if d.Groups[i].Name == name {
			return i
		}
	}
	return -1
}

// Mirror returns the mirrored group of g, or NoMirror.
func (d *Data) Mirror(g int) int {
	if d == nil || g < 0 || g >= len(d.Groups) {
		return NoMirror
	}
	return d.Groups[g].Mirror
}

// Surface returns the authoring data for the named surface.
func (d *Data) Surface(name string) *SurfaceData {
	if d == nil {
		return nil
	}
	for i := range d.Surfaces {
		if d.Surfaces[i].Name == name {
			return &d.Surfaces[i]
		}
	}
	return nil
}

// TablesFor returns the group tables usable on a mesh with vertexCount
// vertices. Tables whose length disagrees with the mesh are logged and
// skipped, leaving those groups without influence. The result is ordered
// by group index.
func (s *SurfaceData) TablesFor(vertexCount int, groupCount int) []SurfaceGroup {
	if s == nil {
		return nil
	}
	log := logger.Named("muscle")

	if s.VertexCount != 0 && s.VertexCount != vertexCount {
		log.Warn("muscle surface vertex count mismatch, skipping surface",
			zap.String("surface", s.Name), zap.Int("authored", s.VertexCount), zap.Int("mesh", vertexCount))
		return nil
	}

	out := make([]SurfaceGroup, 0, len(s.Groups))
	for _, g := range s.Groups {
		if g.Group < 0 || g.Group >= groupCount {
			log.Warn("muscle table references unknown group, skipping",
				zap.String("surface", s.Name), zap.Int("group", g.Group))
			continue
		}
		if len(g.Weights) != vertexCount || !deltaLenOK(vertexCount, g.Fit, g.Max, g.Flex, g.BreastFull, g.BreastFullMax) {
			log.Warn("muscle weight table does not match mesh vertex count, skipping",
				zap.String("surface", s.Name), zap.Int("group", g.Group),
				zap.Int("weights", len(g.Weights)), zap.Int("mesh", vertexCount))
			continue
		}
		out = append(out, g)
	}
	slices.SortStableFunc(out, func(a, b SurfaceGroup) int { return cmp.Compare(a.Group, b.Group) })
	return out
}

// MidlineFor returns the midline weight of vertex v, 0 when unauthored.
func (s *SurfaceData) MidlineFor(v int) float32 {
	if s == nil || v < 0 || v >= len(s.Midline) {
		return 0
	}
	return s.Midline[v]
}

func deltaLenOK(n int, tables ...[]meshdata.Delta) bool {
	for _, t := range tables {
		if t != nil && len(t) != n {
			return false
		}
	}
	return true
}
