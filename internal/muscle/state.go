package muscle

import (
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/muscle-surface/internal/logger"
	"github.com/Faultbox/muscle-surface/pkg/math"
)

// Material parameter names written by UpdateDependencies.
const (
	MassParamPrefix     = "Mass_"
	FlexParamPrefix     = "Flex_"
	PumpParamPrefix     = "Pump_"
	BreastPresenceParam = "BreastPresence"
)

// Info holds the current values of one muscle group.
type Info struct {
	Mass float32
	Flex float32
	Pump float32
}

// Material receives muscle values as named float parameters.
type Material interface {
	SetFloat(name string, value float32)
}

// Owner is the lifetime anchor of a listener. Listeners whose owner reports
// Destroyed are dropped the next time their group updates.
type Owner interface {
	Destroyed() bool
}

// Listener is notified after a group's dependencies were updated.
type Listener func(group int, info Info)

// Muscular is implemented by anything that can mirror a parent's muscle
// values, such as attached child characters.
type Muscular interface {
	GroupIndex(name string) int
	SetMass(group int, value float32, propagate, forceUpdate bool) bool
	SetFlex(group int, value float32, propagate, forceUpdate bool) bool
	SetPump(group int, value float32, propagate, forceUpdate bool) bool
	SetBreastPresence(value float32)
	UpdateDependencies(group int)
}

type listenerEntry struct {
	owner Owner
	fn    Listener
}

type field int

const (
	fieldMass field = iota
	fieldFlex
	fieldPump
)

// State is the per-character muscle state. Setters and UpdateDependencies
// run on the orchestrating goroutine; Snapshot may be called concurrently.
type State struct {
	data *Data
	log  *zap.Logger

	mu             sync.RWMutex
	info           []Info
	breastPresence float32

	materials  []Material
	dependents [][]DependentShape
	listeners  [][]listenerEntry
	children   []Muscular
}

// NewState creates a state for the given shared data with every group at
// zero. A nil data yields a state without groups.
func NewState(data *Data) *State {
	if data == nil {
		data = &Data{}
	}
	n := len(data.Groups)
	return &State{
		data:           data,
		log:            logger.Named("muscle"),
		info:           make([]Info, n),
		breastPresence: 1,
		dependents:     make([][]DependentShape, n),
		listeners:      make([][]listenerEntry, n),
	}
}

// Data returns the shared authoring data.
func (s *State) Data() *Data { return s.data }

// GroupCount returns the number of muscle groups.
func (s *State) GroupCount() int { return len(s.info) }

// GroupIndex returns the index of the named group, or -1.
func (s *State) GroupIndex(name string) int { return s.data.GroupIndex(name) }

// GroupName returns the name of group g.
func (s *State) GroupName(g int) string {
	if !s.valid(g) {
		return ""
	}
	return s.data.Groups[g].Name
}

// Info returns the values of group g.
func (s *State) Info(g int) Info {
	if !s.valid(g) {
		return Info{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info[g]
}

// Snapshot copies every group's values into dst, growing it as needed.
func (s *State) Snapshot(dst []Info) []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(dst[:0], s.info...)
}

// BreastPresence returns the global breast presence in [0,2].
func (s *State) BreastPresence() float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.breastPresence
}

func (s *State) valid(g int) bool {
	return g >= 0 && g < len(s.info)
}

// SetMass sets the mass of group g and reports whether it changed. Child
// characters receive the value without their own propagation. When
// propagate is set and the value changed (or forceUpdate is set) the
// group's dependencies are updated.
func (s *State) SetMass(g int, value float32, propagate, forceUpdate bool) bool {
	return s.set(g, fieldMass, value, propagate, forceUpdate)
}

// SetFlex sets the flex of group g. See SetMass.
func (s *State) SetFlex(g int, value float32, propagate, forceUpdate bool) bool {
	return s.set(g, fieldFlex, value, propagate, forceUpdate)
}

// SetPump sets the pump of group g. See SetMass.
func (s *State) SetPump(g int, value float32, propagate, forceUpdate bool) bool {
	return s.set(g, fieldPump, value, propagate, forceUpdate)
}

func (s *State) set(g int, f field, value float32, propagate, forceUpdate bool) bool {
	if !s.valid(g) {
		return false
	}
	changed := s.write(g, f, value)
	s.mirrorToChildren(g, f, value)
	if propagate && (changed || forceUpdate) {
		s.UpdateDependencies(g)
	}
	return changed
}

func (s *State) write(g int, f field, value float32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &s.info[g]
	var dst *float32
	switch f {
	case fieldMass:
		dst = &p.Mass
	case fieldFlex:
		dst = &p.Flex
	default:
		dst = &p.Pump
	}
	if *dst == value {
		return false
	}
	*dst = value
	return true
}

func (s *State) mirrorToChildren(g int, f field, value float32) {
	if len(s.children) == 0 {
		return
	}
	name := s.data.Groups[g].Name
	for _, c := range s.children {
		cg := c.GroupIndex(name)
		if cg < 0 {
			continue
		}
		switch f {
		case fieldMass:
			c.SetMass(cg, value, false, false)
		case fieldFlex:
			c.SetFlex(cg, value, false, false)
		default:
			c.SetPump(cg, value, false, false)
		}
	}
}

// SetGroup sets all three values of group g with a single dependency update.
func (s *State) SetGroup(g int, info Info, propagate, forceUpdate bool) bool {
	if !s.valid(g) {
		return false
	}
	changed := s.write(g, fieldMass, info.Mass)
	changed = s.write(g, fieldFlex, info.Flex) || changed
	changed = s.write(g, fieldPump, info.Pump) || changed
	s.mirrorToChildren(g, fieldMass, info.Mass)
	s.mirrorToChildren(g, fieldFlex, info.Flex)
	s.mirrorToChildren(g, fieldPump, info.Pump)
	if propagate && (changed || forceUpdate) {
		s.UpdateDependencies(g)
	}
	return changed
}

// SetGlobalMass sets the mass of every group and returns how many changed.
func (s *State) SetGlobalMass(value float32, propagate, forceUpdate bool) int {
	return s.setGlobal(fieldMass, value, propagate, forceUpdate)
}

// SetGlobalFlex sets the flex of every group.
func (s *State) SetGlobalFlex(value float32, propagate, forceUpdate bool) int {
	return s.setGlobal(fieldFlex, value, propagate, forceUpdate)
}

// SetGlobalPump sets the pump of every group.
func (s *State) SetGlobalPump(value float32, propagate, forceUpdate bool) int {
	return s.setGlobal(fieldPump, value, propagate, forceUpdate)
}

func (s *State) setGlobal(f field, value float32, propagate, forceUpdate bool) int {
	changed := 0
	for g := range s.info {
		if s.set(g, f, value, propagate, forceUpdate) {
			changed++
		}
	}
	return changed
}

// SetBreastPresence sets the global breast presence, clamped to [0,2], and
// pushes it to materials and child characters.
func (s *State) SetBreastPresence(value float32) {
	value = math.Clamp(value, 0, 2)
	s.mu.Lock()
	s.breastPresence = value
	s.mu.Unlock()

	for _, m := range s.materials {
		m.SetFloat(BreastPresenceParam, value)
	}
	for _, c := range s.children {
		c.SetBreastPresence(value)
	}
}

// AddMaterial registers a material to receive muscle parameters.
func (s *State) AddMaterial(m Material) {
	if m != nil {
		s.materials = append(s.materials, m)
	}
}

// AddDependentShape binds a blend-shape weight to group g.
func (s *State) AddDependentShape(g int, d DependentShape) bool {
	if !s.valid(g) || d.Target == nil {
		return false
	}
	s.dependents[g] = append(s.dependents[g], d)
	return true
}

// AddListener registers fn for updates of group g. A nil owner keeps the
// listener until RemoveListener or RemoveListeners is called with nil.
func (s *State) AddListener(g int, owner Owner, fn Listener) bool {
	if !s.valid(g) || fn == nil {
		return false
	}
	s.listeners[g] = append(s.listeners[g], listenerEntry{owner: owner, fn: fn})
	return true
}

// RemoveListener drops the listeners owner registered on group g and returns
// how many were removed.
func (s *State) RemoveListener(g int, owner Owner) int {
	if !s.valid(g) {
		return 0
	}
	return s.removeOwned(g, owner)
}

// RemoveListeners drops every listener of owner and returns how many were
// removed.
func (s *State) RemoveListeners(owner Owner) int {
	removed := 0
	for g := range s.listeners {
		removed += s.removeOwned(g, owner)
	}
	return removed
}

func (s *State) removeOwned(g int, owner Owner) int {
	list := s.listeners[g]
	kept := list[:0]
	for _, l := range list {
		if sameOwner(l.owner, owner) {
			continue
		}
		kept = append(kept, l)
	}
	clear(list[len(kept):])
	s.listeners[g] = kept
	return len(list) - len(kept)
}

// sameOwner compares owners without panicking on non-comparable dynamic
// types. Such owners never match, so their listeners only go away once the
// owner is destroyed.
func sameOwner(a, b Owner) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}

// ListenerCount returns the number of listeners registered on group g.
func (s *State) ListenerCount(g int) int {
	if !s.valid(g) {
		return 0
	}
	return len(s.listeners[g])
}

// AddChild attaches a child that mirrors this state's values by group name.
func (s *State) AddChild(c Muscular) {
	if c == nil || c == Muscular(s) {
		return
	}
	for _, existing := range s.children {
		if existing == c {
			return
		}
	}
	s.children = append(s.children, c)
}

// RemoveChild detaches c.
func (s *State) RemoveChild(c Muscular) bool {
	for i, existing := range s.children {
		if existing == c {
			s.children = append(s.children[:i], s.children[i+1:]...)
			return true
		}
	}
	return false
}

// UpdateDependencies pushes group g's values to materials, dependent shapes
// and listeners, then recurses into child characters.
func (s *State) UpdateDependencies(g int) {
	if !s.valid(g) {
		return
	}
	info := s.Info(g)
	name := s.data.Groups[g].Name

	for _, m := range s.materials {
		m.SetFloat(MassParamPrefix+name, info.Mass)
		m.SetFloat(FlexParamPrefix+name, info.Flex)
		m.SetFloat(PumpParamPrefix+name, info.Pump)
	}

	for i := range s.dependents[g] {
		d := &s.dependents[g][i]
		d.Target.SetBlendShapeWeight(d.Shape, d.Weight(info))
	}

	s.notify(g, info)

	for _, c := range s.children {
		if cg := c.GroupIndex(name); cg >= 0 {
			c.UpdateDependencies(cg)
		}
	}
}

func (s *State) notify(g int, info Info) {
	list := s.listeners[g]
	kept := list[:0]
	for _, l := range list {
		if l.owner != nil && l.owner.Destroyed() {
			continue
		}
		kept = append(kept, l)
	}
	clear(list[len(kept):])
	s.listeners[g] = kept

	// Iterate a copy so listeners may register or remove listeners.
	for _, l := range append([]listenerEntry(nil), kept...) {
		s.call(g, l, info)
	}
}

func (s *State) call(g int, l listenerEntry, info Info) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("muscle listener panicked",
				zap.String("group", s.data.Groups[g].Name),
				zap.Any("panic", r))
		}
	}()
	l.fn(g, info)
}

var _ Muscular = (*State)(nil)
