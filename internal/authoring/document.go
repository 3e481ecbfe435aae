// Package authoring loads characters authored as YAML or TOML documents:
// skeleton, surface meshes with blend shapes, and muscle tables.
package authoring

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Authoring document errors.
var (
	ErrUnsupportedFormat = errors.New("unsupported authoring format")
	ErrInvalidDocument   = errors.New("invalid authoring document")
)

// Format is the encoding of an authoring document.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFromPath derives the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Vec3 is an authored vector.
type Vec3 [3]float32

// Quat is an authored rotation as x, y, z, w.
type Quat [4]float32

// Document is one authored character.
type Document struct {
	Name     string       `yaml:"name" toml:"name"`
	Skeleton []BoneDoc    `yaml:"skeleton" toml:"skeleton"`
	Surfaces []SurfaceDoc `yaml:"surfaces" toml:"surfaces"`
	Muscles  *MusclesDoc  `yaml:"muscles,omitempty" toml:"muscles,omitempty"`
}

// BoneDoc is one bone. An empty parent marks a root.
type BoneDoc struct {
	Name        string `yaml:"name" toml:"name"`
	Parent      string `yaml:"parent,omitempty" toml:"parent,omitempty"`
	Translation Vec3   `yaml:"translation" toml:"translation"`
	Rotation    *Quat  `yaml:"rotation,omitempty" toml:"rotation,omitempty"`
	Scale       *Vec3  `yaml:"scale,omitempty" toml:"scale,omitempty"`
}

// SurfaceDoc is one renderable mesh.
type SurfaceDoc struct {
	Name           string        `yaml:"name" toml:"name"`
	Vertices       []Vec3        `yaml:"vertices" toml:"vertices"`
	Normals        []Vec3        `yaml:"normals,omitempty" toml:"normals,omitempty"`
	SurfaceNormals []Vec3        `yaml:"surface_normals,omitempty" toml:"surface_normals,omitempty"`
	Weights        [][]WeightDoc `yaml:"weights,omitempty" toml:"weights,omitempty"`
	BlendShapes    []ShapeDoc    `yaml:"blend_shapes,omitempty" toml:"blend_shapes,omitempty"`
}

// WeightDoc is a bone influence referencing a bone by name.
type WeightDoc struct {
	Bone   string  `yaml:"bone" toml:"bone"`
	Weight float32 `yaml:"weight" toml:"weight"`
}

// ShapeDoc is a blend shape.
type ShapeDoc struct {
	Name   string     `yaml:"name" toml:"name"`
	Frames []FrameDoc `yaml:"frames" toml:"frames"`
}

// FrameDoc is a blend-shape frame with sparse per-vertex deltas.
type FrameDoc struct {
	Weight float32    `yaml:"weight" toml:"weight"`
	Deltas []DeltaDoc `yaml:"deltas" toml:"deltas"`
}

// DeltaDoc is the offset of one vertex.
type DeltaDoc struct {
	Index         int  `yaml:"index" toml:"index"`
	Vertex        Vec3 `yaml:"vertex" toml:"vertex"`
	Normal        Vec3 `yaml:"normal,omitempty" toml:"normal,omitempty"`
	SurfaceNormal Vec3 `yaml:"surface_normal,omitempty" toml:"surface_normal,omitempty"`
}

// MusclesDoc holds the muscle groups and their per-surface tables.
type MusclesDoc struct {
	FitThreshold  float32            `yaml:"fit_threshold,omitempty" toml:"fit_threshold,omitempty"`
	FlexThreshold float32            `yaml:"flex_threshold,omitempty" toml:"flex_threshold,omitempty"`
	Groups        []GroupDoc         `yaml:"groups" toml:"groups"`
	Surfaces      []MuscleSurfaceDoc `yaml:"surfaces" toml:"surfaces"`
}

// GroupDoc is a muscle group with an optional mirrored group name.
type GroupDoc struct {
	Name   string `yaml:"name" toml:"name"`
	Mirror string `yaml:"mirror,omitempty" toml:"mirror,omitempty"`
}

// MuscleSurfaceDoc holds the muscle tables of one surface.
type MuscleSurfaceDoc struct {
	Surface string           `yaml:"surface" toml:"surface"`
	Midline []VertexValueDoc `yaml:"midline,omitempty" toml:"midline,omitempty"`
	Tables  []MuscleTableDoc `yaml:"tables" toml:"tables"`
}

// VertexValueDoc is a sparse per-vertex scalar.
type VertexValueDoc struct {
	Index int     `yaml:"index" toml:"index"`
	Value float32 `yaml:"value" toml:"value"`
}

// MuscleTableDoc is one group's weights and shapes on a surface.
type MuscleTableDoc struct {
	Group         string           `yaml:"group" toml:"group"`
	Weights       []VertexValueDoc `yaml:"weights" toml:"weights"`
	Fit           []DeltaDoc       `yaml:"fit,omitempty" toml:"fit,omitempty"`
	Max           []DeltaDoc       `yaml:"max,omitempty" toml:"max,omitempty"`
	Flex          []DeltaDoc       `yaml:"flex,omitempty" toml:"flex,omitempty"`
	BreastFull    []DeltaDoc       `yaml:"breast_full,omitempty" toml:"breast_full,omitempty"`
	BreastFullMax []DeltaDoc       `yaml:"breast_full_max,omitempty" toml:"breast_full_max,omitempty"`
}

// Parse decodes a document and checks its references.
func Parse(data []byte, format Format) (*Document, error) {
	var doc Document
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
		}
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Load reads and parses the document at path, choosing the format from the
// file extension.
func Load(path string) (*Document, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading authoring document: %w", err)
	}
	doc, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if doc.Name == "" {
		doc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return doc, nil
}

// Marshal encodes the document in the given format.
func (d *Document) Marshal(format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(d)
	case FormatTOML:
		return toml.Marshal(d)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// Validate checks that names are unique and every reference resolves.
func (d *Document) Validate() error {
	bones := make(map[string]bool, len(d.Skeleton))
	for _, b := range d.Skeleton {
		if b.Name == "" || bones[b.Name] {
			return invalid("bone name %q is empty or duplicated", b.Name)
		}
		bones[b.Name] = true
	}
	for _, b := range d.Skeleton {
		if b.Parent != "" && !bones[b.Parent] {
			return invalid("bone %q has unknown parent %q", b.Name, b.Parent)
		}
	}

	surfaces := make(map[string]int, len(d.Surfaces))
	for _, s := range d.Surfaces {
		if s.Name == "" {
			return invalid("surface without name")
		}
		if _, dup := surfaces[s.Name]; dup {
			return invalid("duplicate surface %q", s.Name)
		}
		surfaces[s.Name] = len(s.Vertices)

		for v, ws := range s.Weights {
			for _, w := range ws {
				if !bones[w.Bone] {
					return invalid("surface %q vertex %d references unknown bone %q", s.Name, v, w.Bone)
				}
			}
		}
		for _, sh := range s.BlendShapes {
			for _, f := range sh.Frames {
				if err := checkDeltas(f.Deltas, len(s.Vertices)); err != nil {
					return invalid("surface %q shape %q: %v", s.Name, sh.Name, err)
				}
			}
		}
	}

	if d.Muscles == nil {
		return nil
	}
	groups := make(map[string]bool, len(d.Muscles.Groups))
	for _, g := range d.Muscles.Groups {
		if g.Name == "" || groups[g.Name] {
			return invalid("muscle group name %q is empty or duplicated", g.Name)
		}
		groups[g.Name] = true
	}
	for _, g := range d.Muscles.Groups {
		if g.Mirror != "" && !groups[g.Mirror] {
			return invalid("muscle group %q mirrors unknown group %q", g.Name, g.Mirror)
		}
	}
	for _, ms := range d.Muscles.Surfaces {
		n, ok := surfaces[ms.Surface]
		if !ok {
			return invalid("muscle tables for unknown surface %q", ms.Surface)
		}
		if err := checkValues(ms.Midline, n); err != nil {
			return invalid("surface %q midline: %v", ms.Surface, err)
		}
		for _, t := range ms.Tables {
			if !groups[t.Group] {
				return invalid("surface %q table references unknown group %q", ms.Surface, t.Group)
			}
			if err := checkValues(t.Weights, n); err != nil {
				return invalid("surface %q group %q weights: %v", ms.Surface, t.Group, err)
			}
			for _, deltas := range [][]DeltaDoc{t.Fit, t.Max, t.Flex, t.BreastFull, t.BreastFullMax} {
				if err := checkDeltas(deltas, n); err != nil {
					return invalid("surface %q group %q: %v", ms.Surface, t.Group, err)
				}
			}
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDocument, fmt.Sprintf(format, args...))
}

func checkDeltas(deltas []DeltaDoc, n int) error {
	for _, d := range deltas {
		if d.Index < 0 || d.Index >= n {
			return fmt.Errorf("delta index %d out of range [0,%d)", d.Index, n)
		}
	}
	return nil
}

func checkValues(values []VertexValueDoc, n int) error {
	for _, v := range values {
		if v.Index < 0 || v.Index >= n {
			return fmt.Errorf("vertex index %d out of range [0,%d)", v.Index, n)
		}
	}
	return nil
}
