// Package named provides an ordered collection whose items are also
// reachable by a unique name. Axes, parameters, pseudo-axes, modes and
// engines are all stored this way.
package named

import "fmt"

// Named is implemented by anything stored in a List.
type Named interface {
	Key() string
}

// List keeps insertion order and a name index side by side.
type List[T Named] struct {
	items     []T
	index     map[string]int
	missing   error
	duplicate error
}

// New returns an empty list. Lookups of unknown names wrap missing;
// adding an existing name wraps duplicate.
func New[T Named](missing, duplicate error) *List[T] {
	return &List[T]{index: make(map[string]int), missing: missing, duplicate: duplicate}
}

// Add appends item. Names must be unique.
func (l *List[T]) Add(item T) error {
	name := item.Key()
	if _, ok := l.index[name]; ok {
		return fmt.Errorf("%q: %w", name, l.duplicate)
	}
	l.index[name] = len(l.items)
	l.items = append(l.items, item)
	return nil
}

// Index returns the position of name.
func (l *List[T]) Index(name string) (int, error) {
	i, ok := l.index[name]
	if !ok {
		return -1, fmt.Errorf("%q: %w", name, l.missing)
	}
	return i, nil
}

// Get returns the item called name.
func (l *List[T]) Get(name string) (T, error) {
	i, err := l.Index(name)
	if err != nil {
		var zero T
		return zero, err
	}
	return l.items[i], nil
}

// Ref returns a pointer to the i-th item so it can be updated in place.
func (l *List[T]) Ref(i int) *T { return &l.items[i] }

// At returns the i-th item.
func (l *List[T]) At(i int) T { return l.items[i] }

func (l *List[T]) Len() int { return len(l.items) }

// Names returns the item names in order.
func (l *List[T]) Names() []string {
	out := make([]string, len(l.items))
	for i, it := range l.items {
		out[i] = it.Key()
	}
	return out
}

// Values returns a copy of the items in order.
func (l *List[T]) Values() []T {
	return append([]T(nil), l.items...)
}

// Clone returns a shallow copy. Items holding pointers still share them.
func (l *List[T]) Clone() *List[T] {
	c := &List[T]{
		items:     append([]T(nil), l.items...),
		index:     make(map[string]int, len(l.index)),
		missing:   l.missing,
		duplicate: l.duplicate,
	}
	for k, v := range l.index {
		c.index[k] = v
	}
	return c
}
