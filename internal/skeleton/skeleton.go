// Package skeleton computes per-frame bone-to-world skinning matrices and
// tracks which bones the sampled surfaces depend on.
package skeleton

import (
	"go.uber.org/zap"

	"github.com/Faultbox/muscle-surface/internal/logger"
	"github.com/Faultbox/muscle-surface/pkg/math"
)

// Bone is one joint of a skeleton with its local rest transform.
type Bone struct {
	Name        string
	Parent      int // -1 for roots
	Translation math.Vec3
	Rotation    math.Quat
	Scale       math.Vec3
	InverseBind math.Mat4
}

// PoseSource produces skinning matrices (bone world * inverse bind) for the
// bones accepted by include. Entries for excluded bones are left untouched.
// Intermediate world matrices live in scratch, so one source can be posed
// by several concurrent jobs as long as each passes its own Scratch.
type PoseSource interface {
	BoneCount() int
	ComputePose(out []math.Mat4, scratch *Scratch, include func(bone int) bool)
}

// Scratch holds the world matrices of one pose evaluation. A Scratch must
// not be shared between concurrent ComputePose calls.
type Scratch struct {
	world    []math.Mat4
	computed []bool
}

// NewScratch returns scratch space sized for bones.
func NewScratch(bones int) *Scratch {
	return &Scratch{
		world:    make([]math.Mat4, bones),
		computed: make([]bool, bones),
	}
}

// reset grows the scratch to n bones and marks every matrix stale.
func (sc *Scratch) reset(n int) {
	if cap(sc.world) < n {
		sc.world = make([]math.Mat4, n)
		sc.computed = make([]bool, n)
	}
	sc.world = sc.world[:n]
	sc.computed = sc.computed[:n]
	clear(sc.computed)
}

// Skeleton is a bone hierarchy posed on the CPU. It implements PoseSource.
// The local pose must only be changed between frames, never while a pose job
// is running.
type Skeleton struct {
	bones []Bone
	root  math.Mat4
}

// New creates a skeleton. Parents that are out of range or point at the bone
// itself are logged and treated as roots.
func New(bones []Bone) *Skeleton {
	s := &Skeleton{
		bones: make([]Bone, len(bones)),
		root:  math.Identity(),
	}
	copy(s.bones, bones)

	for i := range s.bones {
		b := &s.bones[i]
		if b.Parent >= len(s.bones) || b.Parent == i || b.Parent < -1 {
			logger.Named("skeleton").Warn("bone parent out of range, treating as root",
				zap.String("bone", b.Name), zap.Int("parent", b.Parent))
			b.Parent = -1
		}
		if b.Scale == (math.Vec3{}) {
			b.Scale = math.Vec3{X: 1, Y: 1, Z: 1}
		}
		if b.Rotation == (math.Quat{}) {
			b.Rotation = math.QuatIdentity()
		}
		if b.InverseBind == (math.Mat4{}) {
			b.InverseBind = math.Identity()
		}
	}
	return s
}

// BoneCount returns the number of bones.
func (s *Skeleton) BoneCount() int {
	return len(s.bones)
}

// BoneIndex returns the index of the named bone, or -1.
func (s *Skeleton) BoneIndex(name string) int {
	for i := range s.bones {
		if s.bones[i].Name == name {
			return i
		}
	}
	return -1
}

// Bone returns a copy of bone i.
func (s *Skeleton) Bone(i int) (Bone, bool) {
	if i < 0 || i >= len(s.bones) {
		return Bone{}, false
	}
	return s.bones[i], true
}

// SetRoot sets the character's local-to-world transform applied above every root bone.
func (s *Skeleton) SetRoot(m math.Mat4) {
	s.root = m
}

// SetLocalRotation replaces the local rotation of bone i.
func (s *Skeleton) SetLocalRotation(i int, q math.Quat) bool {
	if i < 0 || i >= len(s.bones) {
		return false
	}
	s.bones[i].Rotation = q
	return true
}

// SetLocalTranslation replaces the local translation of bone i.
func (s *Skeleton) SetLocalTranslation(i int, t math.Vec3) bool {
	if i < 0 || i >= len(s.bones) {
		return false
	}
	s.bones[i].Translation = t
	return true
}

// BindInverses derives every bone's inverse bind matrix from the current
// local pose, making the current pose the rest pose.
func (s *Skeleton) BindInverses() {
	sc := NewScratch(len(s.bones))
	for i := range s.bones {
		w := s.worldMatrix(sc, i, 0)
		s.bones[i].InverseBind = w.Inverse()
	}
}

// ComputePose writes world * inverseBind for every included bone. Ancestors
// are evaluated as needed even when they are not included themselves. A nil
// scratch allocates a temporary one.
func (s *Skeleton) ComputePose(out []math.Mat4, scratch *Scratch, include func(bone int) bool) {
	if scratch == nil {
		scratch = NewScratch(len(s.bones))
	}
	scratch.reset(len(s.bones))

	n := min(len(out), len(s.bones))
	for i := 0; i < n; i++ {
		if include != nil && !include(i) {
			continue
		}
		out[i] = s.worldMatrix(scratch, i, 0).Mul(s.bones[i].InverseBind)
	}
}

// worldMatrix returns root * parent chain * local for bone i. depth guards
// against cycles introduced through malformed parent links.
func (s *Skeleton) worldMatrix(sc *Scratch, i, depth int) math.Mat4 {
	if sc.computed[i] {
		return sc.world[i]
	}

	b := &s.bones[i]
	local := math.TRS(b.Translation, b.Rotation, b.Scale)

	// Roots hang below the character transform.
	parent := s.root
	if b.Parent >= 0 && depth < len(s.bones) {
		parent = s.worldMatrix(sc, b.Parent, depth+1)
	}

	sc.world[i] = parent.Mul(local)
	sc.computed[i] = true
	return sc.world[i]
}
