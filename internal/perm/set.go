package perm

import "sort"

// Set is an unordered collection of capabilities.
type Set map[Capability]struct{}

// NewSet builds a Set from the given capabilities.
func NewSet(caps ...Capability) Set {
	s := make(Set, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

// Has reports whether c is in the set.
func (s Set) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Add inserts c. Adding an existing capability is a no-op.
func (s Set) Add(c Capability) {
	s[c] = struct{}{}
}

// Remove deletes c. Removing an absent capability is a no-op.
func (s Set) Remove(c Capability) {
	delete(s, c)
}

// Sorted returns the capabilities in lexical order, for stable storage and
// display.
func (s Set) Sorted() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the sorted capability codes as plain strings.
func (s Set) Strings() []string {
	sorted := s.Sorted()
	out := make([]string, len(sorted))
	for i, c := range sorted {
		out[i] = string(c)
	}
	return out
}

// FromStrings parses raw codes into a Set without validating scope.
func FromStrings(raw []string) Set {
	s := make(Set, len(raw))
	for _, r := range raw {
		s[Capability(r)] = struct{}{}
	}
	return s
}
