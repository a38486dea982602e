package geometry

import "sort"

// List holds alternative solutions of one inverse query. No two entries
// are Equal.
type List struct {
	Type  string
	items []*Geometry
}

func NewList(typ string) *List {
	return &List{Type: typ}
}

// Add stores a clone of g unless an equal entry is already present.
// It reports whether g was added.
func (l *List) Add(g *Geometry) bool {
	for _, it := range l.items {
		if it.Equal(g) {
			return false
		}
	}
	l.items = append(l.items, g.Clone())
	return true
}

// SortByDistance orders entries by ascending distance to ref. Ties keep
// the order in which they were added.
func (l *List) SortByDistance(ref *Geometry) {
	sort.SliceStable(l.items, func(i, j int) bool {
		return l.items[i].Distance(ref) < l.items[j].Distance(ref)
	})
}

// FilterValid drops entries with any axis out of range.
func (l *List) FilterValid() {
	kept := l.items[:0]
	for _, it := range l.items {
		if it.InRange() {
			kept = append(kept, it)
		}
	}
	l.items = kept
}

func (l *List) Len() int { return len(l.items) }

func (l *List) At(i int) *Geometry { return l.items[i] }

// Items returns the entries in order.
func (l *List) Items() []*Geometry {
	return append([]*Geometry(nil), l.items...)
}
