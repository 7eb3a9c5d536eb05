package solver

import (
	"github.com/basalt-pkg/apm/blueprint"
	"github.com/basalt-pkg/apm/pool"
)

// encode builds the CNF clause set for p and reqs, using pool ids directly
// as DIMACS variable numbers. It returns nil clauses only if a blueprint
// root request has no matching candidate at all (immediate UNSAT, no need
// to invoke the solver). A package whose own Depends/PreDepends group has
// no candidate does not abort the encode: that candidate is individually
// forbidden via dependencyClause's degenerate "¬p" clause instead.
func encode(p *pool.Pool, reqs []blueprint.PkgRequest) (clauses [][]int, rootStart int) {
	for _, e := range p.All() {
		m := e.Meta
		for _, group := range m.Depends {
			clauses = append(clauses, dependencyClause(p, e.ID, group))
		}
		for _, group := range m.PreDepends {
			clauses = append(clauses, dependencyClause(p, e.ID, group))
		}
		for _, group := range m.Breaks {
			clauses = append(clauses, conflictClauses(p, e.ID, group)...)
		}
		for _, group := range m.Conflicts {
			clauses = append(clauses, conflictClauses(p, e.ID, group)...)
		}
	}

	// Uniqueness: at most one candidate per name may be selected.
	seen := map[string]bool{}
	for _, e := range p.All() {
		if seen[e.Meta.Name] {
			continue
		}
		seen[e.Meta.Name] = true
		ids := p.IDs(e.Meta.Name)
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				clauses = append(clauses, []int{-ids[i], -ids[j]})
			}
		}
	}

	rootStart = len(clauses)
	for _, r := range reqs {
		candidates := p.Candidates(pool.Relation{Name: r.Name, Constraint: r.Constraint})
		if len(candidates) == 0 {
			return nil, 0
		}
		clauses = append(clauses, candidates)
	}
	return clauses, rootStart
}

// dependencyClause builds "¬id ∨ c1 ∨ c2 ∨ ..." over every candidate that
// satisfies any alternative in group: installing id obliges at least one
// of them to also be installed. If group has no candidate in the pool at
// all, the clause degenerates to "¬id", forbidding id rather than failing
// the whole encode.
func dependencyClause(p *pool.Pool, id int, group pool.Group) []int {
	candidates := p.CandidatesForGroup(group)
	if len(candidates) == 0 {
		return []int{-id}
	}
	clause := []int{-id}
	clause = append(clause, candidates...)
	return clause
}

// conflictClauses builds "¬id ∨ ¬c" for every candidate c matching any
// alternative in group: each conflicting candidate is individually
// forbidden alongside id, since a Breaks/Conflicts group's alternatives
// are independently prohibited, not an OR of prohibitions.
func conflictClauses(p *pool.Pool, id int, group pool.Group) [][]int {
	var out [][]int
	seen := map[int]bool{}
	for _, alt := range group {
		for _, c := range p.Candidates(alt) {
			if c == id || seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, []int{-id, -c})
		}
	}
	return out
}
