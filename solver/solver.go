// Package solver encodes a package pool and a blueprint's requests as a
// Boolean satisfiability problem and drives gophersat to find an installed
// set that satisfies every dependency, conflict, and blueprint constraint
// while preferring newer versions and packages already installed.
package solver

import (
	"github.com/crillab/gophersat/solver"

	"github.com/basalt-pkg/apm/blueprint"
	"github.com/basalt-pkg/apm/machine"
	"github.com/basalt-pkg/apm/pool"
)

// ErrUnsatisfiable is returned when no installed set satisfies the
// blueprint. Core lists every request that was passed to Solve; it
// contains the conflicting requests but is not reduced to a minimal
// unsatisfiable subset.
type ErrUnsatisfiable struct {
	Core []blueprint.PkgRequest
}

func (e *ErrUnsatisfiable) Error() string {
	msg := "no installable combination satisfies the requested packages"
	for _, r := range e.Core {
		msg += "\n  - " + r.Format()
	}
	return msg
}

// Result is the outcome of a successful solve: the set of pool ids chosen
// to be installed.
type Result struct {
	Selected map[int]bool
}

// Installed reports whether id was chosen.
func (r Result) Installed(id int) bool { return r.Selected[id] }

// Solve resolves reqs against p, using st to express the "prefer currently
// installed version" half of the optimisation goal.
func Solve(p *pool.Pool, reqs []blueprint.PkgRequest, st *machine.Status) (*Result, error) {
	clauses, _ := encode(p, reqs)
	if clauses == nil {
		return nil, &ErrUnsatisfiable{Core: reqs}
	}

	lits, weights := costFunc(p, st)

	pinned := map[string]int{} // package name -> pinned pool id, for the preference loop
	var pinOrder []string
	for pass := 0; ; pass++ {
		augmented := withPins(clauses, pinned)
		model, ok := solve(augmented, p.Len(), lits, weights)
		if !ok {
			if len(pinOrder) == 0 {
				return nil, &ErrUnsatisfiable{Core: reqs}
			}
			// Back off the most recently added pin and retry: that
			// preference could not be honored simultaneously with the
			// rest, so fall back to letting the solver choose freely
			// for that package.
			last := pinOrder[len(pinOrder)-1]
			pinOrder = pinOrder[:len(pinOrder)-1]
			delete(pinned, last)
			continue
		}

		changed := false
		for _, e := range p.All() {
			if !model[e.ID] {
				continue
			}
			head := p.Head(e.Meta.Name)
			if head == 0 || head == e.ID {
				continue
			}
			if pinned[e.Meta.Name] == head {
				continue
			}
			// Prefer the head (greatest) version for any installed
			// package that the cost function didn't already steer
			// there, unless doing so would require a downgrade of a
			// package the caller pinned Exact via a "pick".
			if isExactPinned(reqs, e.Meta.Name) {
				continue
			}
			pinned[e.Meta.Name] = head
			pinOrder = append(pinOrder, e.Meta.Name)
			changed = true
		}
		if !changed {
			return &Result{Selected: model}, nil
		}
		if pass > p.Len() {
			// Fixed point not reached in a bounded number of passes;
			// return what we have rather than looping indefinitely.
			return &Result{Selected: model}, nil
		}
	}
}

func isExactPinned(reqs []blueprint.PkgRequest, name string) bool {
	for _, r := range reqs {
		if r.Name == name && r.Exact {
			return true
		}
	}
	return false
}

func withPins(clauses [][]int, pinned map[string]int) [][]int {
	if len(pinned) == 0 {
		return clauses
	}
	out := append([][]int{}, clauses...)
	for _, id := range pinned {
		out = append(out, []int{id})
	}
	return out
}

// solve runs gophersat's cost-minimizing search over clauses and returns,
// for each pool id in [1, nbVars], whether it was selected in the model.
func solve(clauses [][]int, nbVars int, lits []solver.Lit, weights []int) (map[int]bool, bool) {
	if nbVars == 0 {
		return map[int]bool{}, true
	}
	pb := solver.ParseSliceNb(clauses, nbVars)
	pb.SetCostFunc(lits, weights)
	s := solver.New(pb)
	if cost := s.Minimize(); cost < 0 {
		return nil, false
	}
	model := s.Model()
	out := make(map[int]bool, nbVars)
	for id := 1; id <= nbVars; id++ {
		if id-1 < len(model) {
			out[id] = model[id-1]
		}
	}
	return out, true
}

// costFunc builds gophersat's cost-minimization literals: each candidate
// costs the number of same-name candidates with a greater version (0 for
// the head), steering the solver's own search toward higher versions,
// and whichever version is currently installed costs 0 as well, so an
// unrelated transitive upgrade doesn't unnecessarily displace an
// already-satisfied package.
func costFunc(p *pool.Pool, st *machine.Status) ([]solver.Lit, []int) {
	var lits []solver.Lit
	var weights []int
	for _, e := range p.All() {
		ids := p.IDs(e.Meta.Name)
		rank := 0
		for _, other := range ids {
			if p.Get(other).Version.GreaterThan(e.Meta.Version) {
				rank++
			}
		}
		weight := rank
		if st != nil {
			if iv, ok := st.InstalledVersion(e.Meta.Name); ok && iv.Equal(e.Meta.Version) {
				weight = 0
			}
		}
		lits = append(lits, solver.IntToLit(int32(e.ID)))
		weights = append(weights, weight)
	}
	return lits, weights
}
