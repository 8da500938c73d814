// Package correspondence holds the manually picked point pairs that tie the
// raw image to the reference image.
package correspondence

import (
	"errors"
	"fmt"

	"manual-align/pkg/geometry"
)

// SlotCount is the fixed number of labeled correspondence slots per image.
const SlotCount = 5

// ErrInvalidSlot is returned for slot numbers outside 1..SlotCount.
var ErrInvalidSlot = errors.New("invalid slot")

// Role identifies which image a point set belongs to.
type Role int

const (
	RoleReference Role = iota
	RoleRaw
)

func (r Role) String() string {
	switch r {
	case RoleReference:
		return "reference"
	case RoleRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// Slot is a 1-based correspondence label.
type Slot int

// Valid reports whether s is within 1..SlotCount.
func (s Slot) Valid() bool {
	return s >= 1 && s <= SlotCount
}

// Point is one slot's content. Set distinguishes a picked point from an
// empty slot, so a point picked at (0,0) is still a point.
type Point struct {
	geometry.Point2D
	Set bool
}

// PointSet is the fixed array of slots owned by one image.
type PointSet [SlotCount]Point

// At returns the point stored in slot s. Invalid slots read as unset.
func (ps PointSet) At(s Slot) Point {
	if !s.Valid() {
		return Point{}
	}
	return ps[s-1]
}

// Count returns how many slots are set.
func (ps PointSet) Count() int {
	n := 0
	for _, p := range ps {
		if p.Set {
			n++
		}
	}
	return n
}

// Coordinates returns the sentinel representation used by the points file:
// unset slots become (0,0).
func (ps PointSet) Coordinates() [SlotCount]geometry.Point2D {
	var out [SlotCount]geometry.Point2D
	for i, p := range ps {
		if p.Set {
			out[i] = p.Point2D
		}
	}
	return out
}

// FromCoordinates builds a PointSet from the sentinel representation. A slot
// counts as set when either of its coordinates is non-zero.
func FromCoordinates(coords [SlotCount]geometry.Point2D) PointSet {
	var ps PointSet
	for i, c := range coords {
		ps[i] = Point{Point2D: c, Set: c.X != 0 || c.Y != 0}
	}
	return ps
}

// Store holds the reference and raw point sets. It is not safe for
// concurrent use.
type Store struct {
	sets [2]PointSet
}

// NewStore returns a store with every slot unset.
func NewStore() *Store {
	return &Store{}
}

func (s *Store) set(role Role) (*PointSet, error) {
	switch role {
	case RoleReference, RoleRaw:
		return &s.sets[role], nil
	default:
		return nil, fmt.Errorf("unknown image role %d", role)
	}
}

// SetPoint stores coord in slot for the given role.
func (s *Store) SetPoint(role Role, slot Slot, coord geometry.Point2D) error {
	if !slot.Valid() {
		return fmt.Errorf("set point %d: %w", slot, ErrInvalidSlot)
	}
	ps, err := s.set(role)
	if err != nil {
		return err
	}
	ps[slot-1] = Point{Point2D: coord, Set: true}
	return nil
}

// ClearPoint resets one slot to unset.
func (s *Store) ClearPoint(role Role, slot Slot) error {
	if !slot.Valid() {
		return fmt.Errorf("clear point %d: %w", slot, ErrInvalidSlot)
	}
	ps, err := s.set(role)
	if err != nil {
		return err
	}
	ps[slot-1] = Point{}
	return nil
}

// ClearAll resets every slot of one role.
func (s *Store) ClearAll(role Role) error {
	ps, err := s.set(role)
	if err != nil {
		return err
	}
	*ps = PointSet{}
	return nil
}

// ClearBoth resets both point sets.
func (s *Store) ClearBoth() {
	s.sets = [2]PointSet{}
}

// PointSet returns a copy of the point set for role.
func (s *Store) PointSet(role Role) PointSet {
	ps, err := s.set(role)
	if err != nil {
		return PointSet{}
	}
	return *ps
}

// SetPointSet replaces the point set for role wholesale.
func (s *Store) SetPointSet(role Role, set PointSet) error {
	ps, err := s.set(role)
	if err != nil {
		return err
	}
	*ps = set
	return nil
}

// OverlappingSlots returns, in ascending order, the slots set in both the
// reference and the raw point set.
func (s *Store) OverlappingSlots() []Slot {
	var slots []Slot
	for i := 0; i < SlotCount; i++ {
		if s.sets[RoleReference][i].Set && s.sets[RoleRaw][i].Set {
			slots = append(slots, Slot(i+1))
		}
	}
	return slots
}

// Pairs returns the parallel reference and raw coordinate lists restricted
// to the overlapping slots, along with the slot each pair came from.
func (s *Store) Pairs() (ref, raw []geometry.Point2D, slots []Slot) {
	slots = s.OverlappingSlots()
	ref = make([]geometry.Point2D, len(slots))
	raw = make([]geometry.Point2D, len(slots))
	for i, slot := range slots {
		ref[i] = s.sets[RoleReference][slot-1].Point2D
		raw[i] = s.sets[RoleRaw][slot-1].Point2D
	}
	return ref, raw, slots
}
