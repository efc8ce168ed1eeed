package detector

import "github.com/pkg/errors"

// Class represents one detection label.
type Class struct {
	// The integer index returned by the network.
	Index int
	// The human-readable label.
	Name string
}

// ClassSet is the ordered label table of a network.
type ClassSet struct {
	Classes []Class
	// nameToIdx for fast lookup by name
	nameToIdx map[string]int
}

// DefaultClasses returns the labels of the stock network, in output order.
func DefaultClasses() []string {
	return []string{
		"person",
		"bicycle",
		"car",
		"motorcycle",
		"bus",
		"truck",
		"traffic light",
		"stop sign",
	}
}

// NewClassSet builds a class set from names given in output order.
func NewClassSet(names ...string) *ClassSet {
	s := &ClassSet{
		Classes:   make([]Class, len(names)),
		nameToIdx: make(map[string]int, len(names)),
	}
	for i, name := range names {
		s.Classes[i] = Class{Index: i, Name: name}
		s.nameToIdx[name] = i
	}
	return s
}

// Len returns the number of classes.
func (s *ClassSet) Len() int {
	return len(s.Classes)
}

// Name returns the label of a class index.
func (s *ClassSet) Name(idx int) (string, error) {
	if idx < 0 || idx >= len(s.Classes) {
		return "", errors.Errorf("class index %d out of range [0, %d)", idx, len(s.Classes))
	}
	return s.Classes[idx].Name, nil
}

// Index returns the class index of a label.
func (s *ClassSet) Index(name string) (int, error) {
	idx, ok := s.nameToIdx[name]
	if !ok {
		return -1, errors.Errorf("class %q not found", name)
	}
	return idx, nil
}

// Indices resolves a list of labels. An empty list resolves to nil.
func (s *ClassSet) Indices(names []string) ([]int, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make([]int, 0, len(names))
	for _, name := range names {
		idx, err := s.Index(name)
		if err != nil {
			return nil, err
		}
		out = append(out, idx)
	}
	return out, nil
}
