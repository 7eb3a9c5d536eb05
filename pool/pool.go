// Package pool holds the in-memory catalogue of known package versions
// (the PackagePool) assembled from one or more repository indices, plus
// the PkgMeta type describing a single candidate.
package pool

import (
	"github.com/basalt-pkg/apm/checksum"
	"github.com/basalt-pkg/apm/version"
)

// Relation is a named dependency-like relationship: one alternative of a
// Depends/Breaks/Conflicts/.../ group.
type Relation struct {
	Name       string
	Constraint *version.Requirement // nil means "any version"
}

// Group is a single field entry: one or more Relation alternatives joined
// by "|" in the control file. A dependency on a Group is discharged by any
// one of its alternatives (or a virtual-package provider of one of them);
// a Breaks/Conflicts Group instead forbids each alternative individually,
// since installing any one of them already violates the relation.
type Group []Relation

// PkgMeta is one candidate (name, version) pair's full metadata, as
// extracted from a Packages stanza.
type PkgMeta struct {
	Name        string
	Section     string
	Description string
	Version     version.Version

	Depends    []Group
	PreDepends []Group
	Breaks     []Group
	Conflicts  []Group
	Recommends []Group
	Suggests   []Group
	Provides   []Relation
	Replaces   []Relation

	InstallSize uint64
	Essential   bool
	Source      Source
}

// Source describes where a package's binary payload can be obtained.
type Source struct {
	URL      string
	Size     uint64
	Checksum checksum.Checksum
	// Local, when set, is a path to an already-present .deb on disk
	// (used for the "install --local" path) and URL/Checksum are unset.
	Local string
}

// satisfiesVersion reports whether this candidate's version satisfies r's
// constraint (any version when r.Constraint is nil); r.Name is not checked.
func (m *PkgMeta) satisfiesVersion(r Relation) bool {
	if r.Constraint == nil {
		return true
	}
	return r.Constraint.Within(m.Version)
}

// Pool is the resolver's package catalogue: every known (name, version)
// candidate, addressable by a stable 1-based id used directly as the SAT
// variable number in the solver package.
type Pool struct {
	entries []*PkgMeta // index 0 unused; id N is entries[N]
	byName  map[string][]int
}

// New returns an empty pool.
func New() *Pool {
	return &Pool{entries: []*PkgMeta{nil}, byName: map[string][]int{}}
}

// Add inserts a candidate and returns its pool id. If an entry with the
// same name and version already exists, Add returns the existing id
// without inserting a duplicate (repeated index imports are idempotent).
func (p *Pool) Add(m *PkgMeta) int {
	for _, id := range p.byName[m.Name] {
		if p.entries[id].Version.Equal(m.Version) {
			return id
		}
	}
	id := len(p.entries)
	p.entries = append(p.entries, m)
	p.byName[m.Name] = append(p.byName[m.Name], id)
	return id
}

// Get returns the candidate for id, or nil if id is out of range.
func (p *Pool) Get(id int) *PkgMeta {
	if id <= 0 || id >= len(p.entries) {
		return nil
	}
	return p.entries[id]
}

// Len returns the number of candidates in the pool (the highest valid id).
func (p *Pool) Len() int { return len(p.entries) - 1 }

// IDs returns every candidate id for the named package, in the order they
// were added to the pool.
func (p *Pool) IDs(name string) []int {
	return p.byName[name]
}

// Head returns the id of the candidate with the greatest version for name,
// or 0 if name is unknown.
func (p *Pool) Head(name string) int {
	best := 0
	for _, id := range p.byName[name] {
		if best == 0 || p.entries[id].Version.GreaterThan(p.entries[best].Version) {
			best = id
		}
	}
	return best
}

// MatchingIDs returns the ids of every candidate directly named r.Name
// whose version satisfies r (or all of them if r.Constraint is nil).
func (p *Pool) MatchingIDs(r Relation) []int {
	var ids []int
	for _, id := range p.byName[r.Name] {
		if p.entries[id].satisfiesVersion(r) {
			ids = append(ids, id)
		}
	}
	return ids
}

// FindProvide returns the ids of every candidate (of any name) whose
// Provides list includes r.Name with a version satisfying r, implementing
// virtual-package resolution without allocating Provides a SAT variable of
// its own: a dependency on a virtual package expands, at encode time, to a
// disjunction over its providers.
func (p *Pool) FindProvide(r Relation) []int {
	var ids []int
	for id, m := range p.entries {
		if m == nil {
			continue
		}
		for _, pr := range m.Provides {
			if pr.Name != r.Name {
				continue
			}
			if r.Constraint == nil || (pr.Constraint != nil && r.Constraint.Within(pr.Constraint.Version)) {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// Candidates returns the union of MatchingIDs(r) and FindProvide(r): every
// pool id that can discharge a dependency on r, whether as itself or as a
// virtual-package provider.
func (p *Pool) Candidates(r Relation) []int {
	ids := p.MatchingIDs(r)
	ids = append(ids, p.FindProvide(r)...)
	return ids
}

// CandidatesForGroup returns the union of Candidates across every
// alternative in g, deduplicated, in alternative order. This is what a
// single Depends/Recommends/Suggests clause is built from: any one
// candidate in the result discharges the whole group.
func (p *Pool) CandidatesForGroup(g Group) []int {
	var ids []int
	seen := map[int]bool{}
	for _, alt := range g {
		for _, id := range p.Candidates(alt) {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// FindReplacement returns the ids of candidates that declare they Replace
// the named package. The action diff engine does not call it.
func (p *Pool) FindReplacement(name string) []int {
	var ids []int
	for id, m := range p.entries {
		if m == nil {
			continue
		}
		for _, rep := range m.Replaces {
			if rep.Name == name {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// All returns every candidate in the pool alongside its id, in id order.
func (p *Pool) All() []struct {
	ID   int
	Meta *PkgMeta
} {
	out := make([]struct {
		ID   int
		Meta *PkgMeta
	}, 0, len(p.entries)-1)
	for id := 1; id < len(p.entries); id++ {
		out = append(out, struct {
			ID   int
			Meta *PkgMeta
		}{id, p.entries[id]})
	}
	return out
}
