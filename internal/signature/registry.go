package signature

import "fmt"

// Registry holds a pattern catalog in tie-break priority order: when two
// matches score the same confidence, the pattern registered earlier ranks
// first. The ordering is policy, not law, so callers may rebuild the
// registry with a different order via Ordered.
type Registry struct {
	defaultThreshold int
	patterns         []Pattern
	index            map[PatternID]int
}

// NewRegistry builds a registry from patterns in the given priority order.
func NewRegistry(defaultThreshold int, patterns ...Pattern) (*Registry, error) {
	if defaultThreshold < 1 || defaultThreshold > 100 {
		return nil, fmt.Errorf("default match threshold must be in [1,100], got %d", defaultThreshold)
	}
	r := &Registry{
		defaultThreshold: defaultThreshold,
		index:            make(map[PatternID]int, len(patterns)),
	}
	for _, p := range patterns {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Ordered builds a registry with the listed pattern IDs first, in the given
// order. Patterns not listed keep their relative order after the listed
// ones. An ID that names no pattern is rejected so configuration typos
// surface at load time.
func Ordered(defaultThreshold int, priority []PatternID, patterns []Pattern) (*Registry, error) {
	byID := make(map[PatternID]int, len(patterns))
	for i, p := range patterns {
		byID[p.ID] = i
	}
	picked := make(map[PatternID]bool, len(priority))
	ordered := make([]Pattern, 0, len(patterns))
	for _, id := range priority {
		i, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("priority order names unknown pattern %q", id)
		}
		if picked[id] {
			return nil, fmt.Errorf("priority order names pattern %q twice", id)
		}
		picked[id] = true
		ordered = append(ordered, patterns[i])
	}
	for _, p := range patterns {
		if !picked[p.ID] {
			ordered = append(ordered, p)
		}
	}
	return NewRegistry(defaultThreshold, ordered...)
}

// Register appends a pattern at the lowest priority position.
func (r *Registry) Register(p Pattern) error {
	if err := validatePattern(p); err != nil {
		return err
	}
	if _, dup := r.index[p.ID]; dup {
		return fmt.Errorf("pattern %q is already registered", p.ID)
	}
	r.index[p.ID] = len(r.patterns)
	r.patterns = append(r.patterns, p)
	return nil
}

func validatePattern(p Pattern) error {
	if p.ID == "" {
		return fmt.Errorf("pattern id must not be empty")
	}
	if p.MatchThreshold < 0 || p.MatchThreshold > 100 {
		return fmt.Errorf("pattern %q: match threshold must be in [0,100], got %d", p.ID, p.MatchThreshold)
	}
	if len(p.Predicates) == 0 {
		return fmt.Errorf("pattern %q declares no predicates", p.ID)
	}
	names := make(map[string]bool, len(p.Predicates))
	for _, wp := range p.Predicates {
		if wp.Predicate.Name == "" {
			return fmt.Errorf("pattern %q: predicate name must not be empty", p.ID)
		}
		if wp.Predicate.Check == nil {
			return fmt.Errorf("pattern %q: predicate %q has no check", p.ID, wp.Predicate.Name)
		}
		if wp.Weight < 1 || wp.Weight > 100 {
			return fmt.Errorf("pattern %q: predicate %q weight must be in [1,100], got %d", p.ID, wp.Predicate.Name, wp.Weight)
		}
		if names[wp.Predicate.Name] {
			return fmt.Errorf("pattern %q: predicate %q declared twice", p.ID, wp.Predicate.Name)
		}
		names[wp.Predicate.Name] = true
	}
	return nil
}

// Patterns returns the catalog in priority order. The slice is a copy;
// mutating it does not affect the registry.
func (r *Registry) Patterns() []Pattern {
	out := make([]Pattern, len(r.patterns))
	copy(out, r.patterns)
	return out
}

// Get returns the pattern registered under id.
func (r *Registry) Get(id PatternID) (Pattern, bool) {
	i, ok := r.index[id]
	if !ok {
		return Pattern{}, false
	}
	return r.patterns[i], true
}

// Priority returns the tie-break rank of id, lower ranks winning exact
// confidence ties. Unknown IDs rank last.
func (r *Registry) Priority(id PatternID) int {
	if i, ok := r.index[id]; ok {
		return i
	}
	return len(r.patterns)
}

// Threshold resolves the effective match threshold for a pattern.
func (r *Registry) Threshold(p Pattern) int {
	if p.MatchThreshold > 0 {
		return p.MatchThreshold
	}
	return r.defaultThreshold
}

// Len returns the number of registered patterns.
func (r *Registry) Len() int {
	return len(r.patterns)
}
