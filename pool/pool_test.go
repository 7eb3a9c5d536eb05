package pool

import (
	"testing"

	"github.com/basalt-pkg/apm/version"
)

func mkMeta(name, v string) *PkgMeta {
	return &PkgMeta{Name: name, Version: version.MustParse(v)}
}

func TestAddIdempotent(t *testing.T) {
	p := New()
	id1 := p.Add(mkMeta("foo", "1.0-1"))
	id2 := p.Add(mkMeta("foo", "1.0-1"))
	if id1 != id2 {
		t.Errorf("Add of identical (name, version) produced different ids: %d vs %d", id1, id2)
	}
	if p.Len() != 1 {
		t.Errorf("Len() = %d, want 1", p.Len())
	}
}

func TestHeadPicksGreatestVersion(t *testing.T) {
	p := New()
	p.Add(mkMeta("foo", "1.0-1"))
	id2 := p.Add(mkMeta("foo", "2.0-1"))
	p.Add(mkMeta("foo", "1.5-1"))
	if got := p.Head("foo"); got != id2 {
		t.Errorf("Head(foo) = %d, want %d (the 2.0-1 candidate)", got, id2)
	}
}

func TestMatchingIDsRespectsConstraint(t *testing.T) {
	p := New()
	p.Add(mkMeta("foo", "1.0-1"))
	id2 := p.Add(mkMeta("foo", "2.0-1"))
	req, _ := version.ParseRequirement(">= 1.5")
	got := p.MatchingIDs(Relation{Name: "foo", Constraint: &req})
	if len(got) != 1 || got[0] != id2 {
		t.Errorf("MatchingIDs = %v, want [%d]", got, id2)
	}
}

func TestFindProvide(t *testing.T) {
	p := New()
	provider := mkMeta("libfoo-impl", "1.0-1")
	provider.Provides = []Relation{{Name: "libfoo"}}
	id := p.Add(provider)
	got := p.FindProvide(Relation{Name: "libfoo"})
	if len(got) != 1 || got[0] != id {
		t.Errorf("FindProvide = %v, want [%d]", got, id)
	}
}

func TestCandidatesForGroupUnionsAlternatives(t *testing.T) {
	p := New()
	idA := p.Add(mkMeta("a", "1.0-1"))
	idB := p.Add(mkMeta("b", "1.0-1"))
	got := p.CandidatesForGroup(Group{{Name: "a"}, {Name: "b"}})
	if len(got) != 2 || got[0] != idA || got[1] != idB {
		t.Errorf("CandidatesForGroup = %v, want [%d %d]", got, idA, idB)
	}
}

func TestGetOutOfRange(t *testing.T) {
	p := New()
	if p.Get(0) != nil || p.Get(99) != nil {
		t.Error("Get with out-of-range id should return nil")
	}
}
