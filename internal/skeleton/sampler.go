package skeleton

import (
	"go.uber.org/zap"

	"github.com/Faultbox/muscle-surface/internal/logger"
	"github.com/Faultbox/muscle-surface/internal/worker"
	"github.com/Faultbox/muscle-surface/pkg/math"
)

// Sampler reference-counts the bones that sampled surfaces depend on and
// recomputes only those bones each frame.
//
// Track and Untrack must be called from the orchestrating goroutine between
// frames. A nil *Sampler is valid: it tracks nothing and its pose is empty.
type Sampler struct {
	source PoseSource
	pool   *worker.Pool

	refs     []int32
	include  []bool
	matrices []math.Mat4
	scratch  *Scratch
	handle   worker.Handle
}

// NewSampler creates a sampler over source. Matrices start as identity.
func NewSampler(source PoseSource, pool *worker.Pool) *Sampler {
	n := 0
	if source != nil {
		n = source.BoneCount()
	}
	s := &Sampler{
		source:   source,
		pool:     pool,
		refs:     make([]int32, n),
		include:  make([]bool, n),
		matrices: make([]math.Mat4, n),
		scratch:  NewScratch(n),
	}
	for i := range s.matrices {
		s.matrices[i] = math.Identity()
	}
	return s
}

// BoneCount returns the number of bones known to the sampler.
func (s *Sampler) BoneCount() int {
	if s == nil {
		return 0
	}
	return len(s.refs)
}

// Track adds a reference to bone. Unknown bones are ignored and reported as false.
func (s *Sampler) Track(bone int) bool {
	if s == nil {
		return false
	}
	if bone < 0 || bone >= len(s.refs) {
		logger.Named("skeleton").Debug("ignoring track of unknown bone", zap.Int("bone", bone))
		return false
	}
	s.refs[bone]++
	return true
}

// Untrack drops a reference to bone. Once the count reaches zero the bone is
// no longer posed.
func (s *Sampler) Untrack(bone int) bool {
	if s == nil || bone < 0 || bone >= len(s.refs) || s.refs[bone] == 0 {
		return false
	}
	s.refs[bone]--
	return true
}

// Tracked reports whether at least one reference to bone is held.
func (s *Sampler) Tracked(bone int) bool {
	if s == nil || bone < 0 || bone >= len(s.refs) {
		return false
	}
	return s.refs[bone] > 0
}

// TrackedCount returns the number of bones with a nonzero reference count.
func (s *Sampler) TrackedCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, r := range s.refs {
		if r > 0 {
			n++
		}
	}
	return n
}

// Refresh schedules pose computation for the tracked bones after dependsOn
// and returns its completion handle. BoneMatrices is valid once the handle
// completes.
func (s *Sampler) Refresh(dependsOn worker.Handle) worker.Handle {
	if s == nil || s.source == nil {
		return dependsOn
	}

	// The previous pose may still be read by last frame's consumers.
	s.handle.Complete()

	// Snapshot the tracked set; Track may run again once this returns.
	anyTracked := false
	for i, r := range s.refs {
		s.include[i] = r > 0
		anyTracked = anyTracked || s.include[i]
	}
	if !anyTracked {
		s.handle = dependsOn
		return dependsOn
	}

	s.handle = s.pool.Schedule(dependsOn, func() {
		s.source.ComputePose(s.matrices, s.scratch, func(bone int) bool { return s.include[bone] })
	})
	return s.handle
}

// Handle returns the completion handle of the last Refresh.
func (s *Sampler) Handle() worker.Handle {
	if s == nil {
		return worker.Completed()
	}
	return s.handle
}

// BoneMatrices returns the skinning matrices of the last completed Refresh.
// The slice is shared and must be treated as read-only.
func (s *Sampler) BoneMatrices() []math.Mat4 {
	if s == nil {
		return nil
	}
	return s.matrices
}
