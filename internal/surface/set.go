package surface

// SampleIndex is a stable handle to a sample point. The zero value is never
// valid. A handle whose point was stopped stays invalid even if its slot is
// reused.
type SampleIndex struct {
	slot uint32
	gen  uint32
}

// IsZero reports whether h was never issued.
func (h SampleIndex) IsZero() bool { return h.gen == 0 }

type slotEntry struct {
	dense int
	gen   uint32
}

// SampleSet is a generational arena of sample points. Points are stored
// densely; removal swaps the last point into the freed position and updates
// only the moved point's slot.
type SampleSet struct {
	points []SamplePoint
	owners []uint32
	slots  []slotEntry
	free   []uint32
}

// Len returns the number of live points.
func (s *SampleSet) Len() int { return len(s.points) }

// Find returns the handle of the point tracking vertex v.
func (s *SampleSet) Find(v int) (SampleIndex, bool) {
	for i := range s.points {
		if s.points[i].VertexIndex == v {
			id := s.owners[i]
			return SampleIndex{slot: id, gen: s.slots[id].gen}, true
		}
	}
	return SampleIndex{}, false
}

// Add stores p and returns its handle.
func (s *SampleSet) Add(p SamplePoint) SampleIndex {
	dense := len(s.points)
	s.points = append(s.points, p)

	var id uint32
	if n := len(s.free); n > 0 {
		id = s.free[n-1]
		s.free = s.free[:n-1]
		s.slots[id].dense = dense
	} else {
		id = uint32(len(s.slots))
		s.slots = append(s.slots, slotEntry{dense: dense, gen: 1})
	}
	s.owners = append(s.owners, id)
	return SampleIndex{slot: id, gen: s.slots[id].gen}
}

// Remove deletes the point behind h and returns it.
func (s *SampleSet) Remove(h SampleIndex) (SamplePoint, bool) {
	dense, ok := s.resolve(h)
	if !ok {
		return SamplePoint{}, false
	}
	removed := s.points[dense]

	last := len(s.points) - 1
	if dense != last {
		s.points[dense] = s.points[last]
		s.owners[dense] = s.owners[last]
		s.slots[s.owners[dense]].dense = dense
	}
	s.points = s.points[:last]
	s.owners = s.owners[:last]

	e := &s.slots[h.slot]
	e.dense = -1
	e.gen++
	if e.gen == 0 {
		e.gen = 1
	}
	s.free = append(s.free, h.slot)
	return removed, true
}

// Contains reports whether h resolves to a live point.
func (s *SampleSet) Contains(h SampleIndex) bool {
	_, ok := s.resolve(h)
	return ok
}

// Get returns a copy of the point behind h.
func (s *SampleSet) Get(h SampleIndex) (SamplePoint, bool) {
	dense, ok := s.resolve(h)
	if !ok {
		return SamplePoint{}, false
	}
	return s.points[dense], true
}

// Points returns the dense point storage. It is only valid until the next
// Add or Remove.
func (s *SampleSet) Points() []SamplePoint { return s.points }

func (s *SampleSet) resolve(h SampleIndex) (int, bool) {
	if h.gen == 0 || int(h.slot) >= len(s.slots) {
		return 0, false
	}
	e := s.slots[h.slot]
	if e.gen != h.gen || e.dense < 0 {
		return 0, false
	}
	return e.dense, true
}
