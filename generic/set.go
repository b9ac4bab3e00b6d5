// Package generic holds small type-parameterised containers.
package generic

type Void = struct{}

// Set is an unordered collection of distinct items. It is not safe for concurrent use.
type Set[T comparable] interface {
	// Add returns false if the item was already present.
	Add(item T) bool
	Contains(items ...T) bool
	Count() int
	Remove(item T) bool
	ToSlice() []T
}

func NewSet[T comparable](items ...T) Set[T] {
	s := make(set[T], len(items))
	for _, item := range items {
		s[item] = Void{}
	}
	return s
}

type set[T comparable] map[T]Void

func (s set[T]) Add(item T) bool {
	if _, found := s[item]; found {
		return false
	}
	s[item] = Void{}
	return true
}

// Contains returns true only if every item is present.
func (s set[T]) Contains(items ...T) bool {
	for _, item := range items {
		if _, found := s[item]; !found {
			return false
		}
	}
	return true
}

func (s set[T]) Count() int {
	return len(s)
}

func (s set[T]) Remove(item T) bool {
	if _, found := s[item]; !found {
		return false
	}
	delete(s, item)
	return true
}

func (s set[T]) ToSlice() []T {
	slice := make([]T, 0, len(s))
	for item := range s {
		slice = append(slice, item)
	}
	return slice
}
