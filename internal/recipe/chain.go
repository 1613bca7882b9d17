package recipe

import "buzzy/internal/usererr"

type visitState int

const (
	unvisited visitState = iota
	inProgress
	finished
)

func cycleError(name string) error {
	return usererr.Errorf("dependency cycle when processing %s", name)
}

// DependencyChain returns the named recipes and everything they reach
// through rel, each exactly once, dependencies first. Ties keep the order in
// which recipes are first discovered.
func (s *Store) DependencyChain(names []string, rel Relation) ([]*Recipe, error) {
	state := make(map[string]visitState)
	var chain []*Recipe

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case finished:
			return nil
		case inProgress:
			return cycleError(name)
		}
		state[name] = inProgress

		r, err := s.Load(name)
		if err != nil {
			return err
		}
		for _, dep := range r.Deps(rel) {
			if err := visit(dep); err != nil {
				return err
			}
		}

		state[name] = finished
		chain = append(chain, r)
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return chain, nil
}
