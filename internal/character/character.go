// Package character coordinates the sampled surfaces, bone sampler and
// muscle state of one character instance.
package character

import (
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Faultbox/muscle-surface/internal/logger"
	"github.com/Faultbox/muscle-surface/internal/meshdata"
	"github.com/Faultbox/muscle-surface/internal/muscle"
	"github.com/Faultbox/muscle-surface/internal/skeleton"
	"github.com/Faultbox/muscle-surface/internal/surface"
	"github.com/Faultbox/muscle-surface/internal/worker"
)

// Config describes a character instance.
type Config struct {
	Name string
	// Pose is the skeleton driving the character. Without one every
	// surface stays in local space.
	Pose skeleton.PoseSource
	// Meshes maps surface names to mesh assets.
	Meshes map[string]meshdata.Asset
	// Muscles enables the muscular kernel on every surface. It is shared
	// between characters and must not be modified.
	Muscles *muscle.Data

	Pool      *worker.Pool
	Cache     *meshdata.Cache
	BatchSize int
}

// Character owns the per-instance state built on shared mesh and muscle
// data. Create and Destroy bracket its lifetime; all methods must be called
// from the orchestrating goroutine except Destroyed.
type Character struct {
	id     uuid.UUID
	name   string
	cfg    Config
	parent *Character
	log    *zap.Logger

	sampler  *skeleton.Sampler
	muscles  *muscle.State
	surfaces map[string]*surface.Surface
	order    []string
	children []*Character

	handle    worker.Handle
	scheduled bool
	destroyed atomic.Bool
}

// Create builds a character. A non-nil owner attaches the new character as
// its child: the owner's refresh covers it and its muscle values follow the
// owner's groups by name.
func Create(owner *Character, cfg Config) *Character {
	if cfg.Cache == nil {
		cfg.Cache = meshdata.Shared()
	}
	c := &Character{
		id:       uuid.New(),
		name:     cfg.Name,
		cfg:      cfg,
		surfaces: make(map[string]*surface.Surface),
	}
	c.log = logger.Named("character").With(zap.String("character", c.name), zap.String("id", c.id.String()))

	if cfg.Pose != nil {
		c.sampler = skeleton.NewSampler(cfg.Pose, cfg.Pool)
	}
	if cfg.Muscles != nil {
		c.muscles = muscle.NewState(cfg.Muscles)
	}

	if owner != nil && !owner.Destroyed() {
		c.parent = owner
		owner.children = append(owner.children, c)
		if owner.muscles != nil && c.muscles != nil {
			owner.muscles.AddChild(c.muscles)
		}
	}

	c.log.Debug("character created",
		zap.Int("meshes", len(cfg.Meshes)),
		zap.Bool("muscular", c.muscles != nil),
		zap.Bool("child", c.parent != nil))
	return c
}

// ID returns the character's unique identity.
func (c *Character) ID() uuid.UUID { return c.id }

// Name returns the configured name.
func (c *Character) Name() string { return c.name }

// Destroyed reports whether Destroy was called. Characters can therefore own
// muscle listeners.
func (c *Character) Destroyed() bool { return c.destroyed.Load() }

// Muscles returns the muscle state, or nil when the character has none.
func (c *Character) Muscles() *muscle.State { return c.muscles }

// Sampler returns the bone sampler, or nil without a skeleton.
func (c *Character) Sampler() *skeleton.Sampler { return c.sampler }

// Parent returns the owning character, or nil.
func (c *Character) Parent() *Character { return c.parent }

// Children returns the attached child characters.
func (c *Character) Children() []*Character { return c.children }

// Surface returns the named surface, creating it on first use. It returns
// nil for unknown names and after Destroy.
func (c *Character) Surface(name string) *surface.Surface {
	if c.Destroyed() {
		return nil
	}
	if s, ok := c.surfaces[name]; ok {
		return s
	}
	asset, ok := c.cfg.Meshes[name]
	if !ok || asset == nil {
		c.log.Debug("no mesh for surface", zap.String("surface", name))
		return nil
	}

	s := surface.New(name, c.cfg.Cache.GetOrBuild(asset), surface.Options{
		Pool:      c.cfg.Pool,
		Sampler:   c.sampler,
		BatchSize: c.cfg.BatchSize,
	})
	if c.muscles != nil {
		s.EnableMuscles(c.muscles)
	}
	c.surfaces[name] = s
	c.order = append(c.order, name)
	c.log.Debug("surface created", zap.String("surface", name))
	return s
}

// Surfaces returns the surfaces created so far in creation order.
func (c *Character) Surfaces() []*surface.Surface {
	out := make([]*surface.Surface, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.surfaces[name])
	}
	return out
}

// Refresh schedules this frame's pose and surface deformation, including
// child characters, and returns a handle covering all of it. Without force a
// second call in the same frame returns the pending handle.
func (c *Character) Refresh(force bool) worker.Handle {
	if c.Destroyed() {
		return worker.Completed()
	}
	if c.scheduled && !force {
		return c.handle
	}

	// Kernels of a previous refresh still read the bone matrices.
	c.handle.Complete()

	pose := c.sampler.Refresh(worker.Completed())
	handles := make([]worker.Handle, 0, len(c.order)+len(c.children)+1)
	handles = append(handles, pose)
	for _, name := range c.order {
		handles = append(handles, c.surfaces[name].Schedule(pose))
	}
	for _, child := range c.children {
		handles = append(handles, child.Refresh(force))
	}

	c.handle = worker.Combine(handles...)
	c.scheduled = true
	return c.handle
}

// CompleteJobs waits for every scheduled job of this frame, including child
// characters. It is called once per frame whether or not values were read.
func (c *Character) CompleteJobs() {
	c.handle.Complete()
	c.sampler.Handle().Complete()
	for _, name := range c.order {
		c.surfaces[name].Complete()
	}
	for _, child := range c.children {
		child.CompleteJobs()
	}
	c.scheduled = false
}

// Destroy completes outstanding work, destroys child characters and detaches
// from the owner. Listeners owned by the character are dropped on their
// next update. Destroy is idempotent.
func (c *Character) Destroy() {
	if c.Destroyed() {
		return
	}
	c.CompleteJobs()

	for _, child := range append([]*Character(nil), c.children...) {
		child.Destroy()
	}

	if p := c.parent; p != nil {
		for i, sib := range p.children {
			if sib == c {
				p.children = append(p.children[:i], p.children[i+1:]...)
				break
			}
		}
		if p.muscles != nil && c.muscles != nil {
			p.muscles.RemoveChild(c.muscles)
		}
		c.parent = nil
	}

	c.surfaces = map[string]*surface.Surface{}
	c.order = nil
	c.destroyed.Store(true)
	c.log.Debug("character destroyed")
}

var _ muscle.Owner = (*Character)(nil)
