package main

import (
	"testing"

	"github.com/basalt-pkg/apm/blueprint"
	"github.com/basalt-pkg/apm/logging"
	"github.com/basalt-pkg/apm/pool"
	"github.com/basalt-pkg/apm/solver"
	"github.com/basalt-pkg/apm/version"
)

func TestExpandRecommendsAddsVendorEntry(t *testing.T) {
	p := pool.New()
	foo := &pool.PkgMeta{Name: "foo", Version: version.MustParse("1.0-1")}
	foo.Recommends = []pool.Group{{{Name: "bar"}}}
	fooID := p.Add(foo)
	p.Add(&pool.PkgMeta{Name: "bar", Version: version.MustParse("1.0-1")})

	bp := &blueprint.Blueprints{User: []blueprint.PkgRequest{{Name: "foo"}}}
	res := &solver.Result{Selected: map[int]bool{fooID: true}}

	changed := expandRecommends(p, bp, res, logging.Discard())
	if !changed {
		t.Fatal("expected expandRecommends to report a change")
	}
	if len(bp.Vendor) != 1 || bp.Vendor[0].Name != "bar" {
		t.Errorf("Vendor = %+v, want a single bar entry", bp.Vendor)
	}
	if bp.Vendor[0].AddedBy != "foo" {
		t.Errorf("AddedBy = %q, want foo", bp.Vendor[0].AddedBy)
	}
}

func TestExpandRecommendsSkipsExistingUserEntry(t *testing.T) {
	p := pool.New()
	foo := &pool.PkgMeta{Name: "foo", Version: version.MustParse("1.0-1")}
	foo.Recommends = []pool.Group{{{Name: "bar"}}}
	fooID := p.Add(foo)
	p.Add(&pool.PkgMeta{Name: "bar", Version: version.MustParse("1.0-1")})

	bp := &blueprint.Blueprints{User: []blueprint.PkgRequest{{Name: "foo"}, {Name: "bar"}}}
	res := &solver.Result{Selected: map[int]bool{fooID: true}}

	changed := expandRecommends(p, bp, res, logging.Discard())
	if changed {
		t.Error("expected no change when the recommended package is already a user request")
	}
	if len(bp.Vendor) != 0 {
		t.Errorf("Vendor = %+v, want empty", bp.Vendor)
	}
}

func TestExpandRecommendsWarnsOnMissingCandidate(t *testing.T) {
	p := pool.New()
	foo := &pool.PkgMeta{Name: "foo", Version: version.MustParse("1.0-1")}
	foo.Recommends = []pool.Group{{{Name: "nonexistent"}}}
	fooID := p.Add(foo)

	bp := &blueprint.Blueprints{User: []blueprint.PkgRequest{{Name: "foo"}}}
	res := &solver.Result{Selected: map[int]bool{fooID: true}}

	changed := expandRecommends(p, bp, res, logging.Discard())
	if changed {
		t.Error("expected no change when no candidate satisfies the recommends group")
	}
}
