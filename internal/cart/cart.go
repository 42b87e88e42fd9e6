// Package cart holds the line items of the order being composed at a terminal.
package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MenuItem is the catalog data a line snapshots when it is added.
type MenuItem struct {
	ID    uuid.UUID
	Name  string
	Price decimal.Decimal
}

// Line is one (menu item x quantity) row.
type Line struct {
	LineID      uuid.UUID
	MenuItemID  uuid.UUID
	Name        string
	Price       decimal.Decimal
	Quantity    int
	Served      bool
	OrderItemID *uuid.UUID // set once the repository has persisted the line
}

// Subtotal is quantity x snapshotted price.
func (l Line) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Set is the multiset of lines for one order. At most one line exists per
// menu item, and no line is ever kept at quantity <= 0.
// The zero value is an empty set ready to use.
type Set struct {
	lines []Line
}

// Add merges qty of item into the set. An existing line keeps its original
// price snapshot. Non-positive quantities are ignored.
func (s *Set) Add(item MenuItem, qty int) Line {
	if qty <= 0 {
		if i := s.indexByMenuItem(item.ID); i >= 0 {
			return s.lines[i]
		}
		return Line{}
	}
	if i := s.indexByMenuItem(item.ID); i >= 0 {
		s.lines[i].Quantity += qty
		return s.lines[i]
	}
	l := Line{
		LineID:     uuid.New(),
		MenuItemID: item.ID,
		Name:       item.Name,
		Price:      item.Price,
		Quantity:   qty,
	}
	s.lines = append(s.lines, l)
	return l
}

// AdjustQuantity applies delta to a line, removing it when the result is <= 0.
// Unknown line ids are ignored.
func (s *Set) AdjustQuantity(lineID uuid.UUID, delta int) {
	i := s.indexByLine(lineID)
	if i < 0 {
		return
	}
	q := s.lines[i].Quantity + delta
	if q <= 0 {
		s.removeAt(i)
		return
	}
	s.lines[i].Quantity = q
}

// Remove drops a line unconditionally.
func (s *Set) Remove(lineID uuid.UUID) {
	if i := s.indexByLine(lineID); i >= 0 {
		s.removeAt(i)
	}
}

// ToggleServed flips the fulfillment flag of a line.
func (s *Set) ToggleServed(lineID uuid.UUID) {
	if i := s.indexByLine(lineID); i >= 0 {
		s.lines[i].Served = !s.lines[i].Served
	}
}

// Total is the sum of all subtotals.
func (s *Set) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range s.lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// ItemCount is the sum of all quantities.
func (s *Set) ItemCount() int {
	n := 0
	for _, l := range s.lines {
		n += l.Quantity
	}
	return n
}

func (s *Set) Len() int { return len(s.lines) }

// AllServed is true iff there is at least one line and every line is served.
func (s *Set) AllServed() bool {
	if len(s.lines) == 0 {
		return false
	}
	for _, l := range s.lines {
		if !l.Served {
			return false
		}
	}
	return true
}

// ServedCount is the number of lines marked served.
func (s *Set) ServedCount() int {
	n := 0
	for _, l := range s.lines {
		if l.Served {
			n++
		}
	}
	return n
}

// Lines returns a copy of the lines in insertion order.
func (s *Set) Lines() []Line {
	out := make([]Line, len(s.lines))
	copy(out, s.lines)
	return out
}

// Get returns the line with the given id.
func (s *Set) Get(lineID uuid.UUID) (Line, bool) {
	if i := s.indexByLine(lineID); i >= 0 {
		return s.lines[i], true
	}
	return Line{}, false
}

func (s *Set) Clear() { s.lines = nil }

// Restore replaces the set with lines confirmed by the repository. Lines with
// a non-positive quantity are dropped and duplicate menu items are merged.
func (s *Set) Restore(lines []Line) {
	s.lines = nil
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		if i := s.indexByMenuItem(l.MenuItemID); i >= 0 {
			s.lines[i].Quantity += l.Quantity
			continue
		}
		if l.LineID == uuid.Nil {
			l.LineID = uuid.New()
		}
		s.lines = append(s.lines, l)
	}
}

// AssignOrderItemIDs records server line ids by menu item after an update.
func (s *Set) AssignOrderItemIDs(ids map[uuid.UUID]uuid.UUID) {
	for i := range s.lines {
		if id, ok := ids[s.lines[i].MenuItemID]; ok {
			id := id
			s.lines[i].OrderItemID = &id
		}
	}
}

func (s *Set) indexByLine(lineID uuid.UUID) int {
	for i, l := range s.lines {
		if l.LineID == lineID {
			return i
		}
	}
	return -1
}

func (s *Set) indexByMenuItem(menuItemID uuid.UUID) int {
	for i, l := range s.lines {
		if l.MenuItemID == menuItemID {
			return i
		}
	}
	return -1
}

func (s *Set) removeAt(i int) {
	s.lines = append(s.lines[:i], s.lines[i+1:]...)
}
