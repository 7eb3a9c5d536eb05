package solver

import (
	"testing"

	"github.com/basalt-pkg/apm/blueprint"
	"github.com/basalt-pkg/apm/pool"
	"github.com/basalt-pkg/apm/version"
)

func mkMeta(name, v string) *pool.PkgMeta {
	return &pool.PkgMeta{Name: name, Version: version.MustParse(v)}
}

func TestSolveSimpleDependency(t *testing.T) {
	p := pool.New()
	foo := mkMeta("foo", "1.0-1")
	foo.Depends = []pool.Group{{{Name: "bar"}}}
	p.Add(foo)
	barID := p.Add(mkMeta("bar", "1.0-1"))

	res, err := Solve(p, []blueprint.PkgRequest{{Name: "foo"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Installed(barID) {
		t.Error("expected bar to be pulled in by foo's dependency")
	}
}

func TestSolveUnsatisfiableDependency(t *testing.T) {
	p := pool.New()
	foo := mkMeta("foo", "1.0-1")
	foo.Depends = []pool.Group{{{Name: "missing"}}}
	p.Add(foo)

	_, err := Solve(p, []blueprint.PkgRequest{{Name: "foo"}}, nil)
	if err == nil {
		t.Fatal("expected an unsatisfiable-dependency error")
	}
}

func TestSolveUnrelatedUnsatisfiablePackageDoesNotBlockSolve(t *testing.T) {
	p := pool.New()
	broken := mkMeta("broken", "1.0-1")
	broken.Depends = []pool.Group{{{Name: "missing"}}}
	brokenID := p.Add(broken)
	fooID := p.Add(mkMeta("foo", "1.0-1"))

	res, err := Solve(p, []blueprint.PkgRequest{{Name: "foo"}}, nil)
	if err != nil {
		t.Fatalf("an unrelated package's unsatisfiable dependency should not abort the solve: %v", err)
	}
	if !res.Installed(fooID) {
		t.Error("expected foo to be installed")
	}
	if res.Installed(brokenID) {
		t.Error("expected broken, whose dependency has no candidate, to be forbidden rather than installed")
	}
}

func TestSolveUnknownRootPackage(t *testing.T) {
	p := pool.New()
	_, err := Solve(p, []blueprint.PkgRequest{{Name: "nonexistent"}}, nil)
	if err == nil {
		t.Fatal("expected error for a root request with no candidates")
	}
}

func TestSolveConflictPreventsCoinstallation(t *testing.T) {
	p := pool.New()
	foo := mkMeta("foo", "1.0-1")
	foo.Conflicts = []pool.Group{{{Name: "bar"}}}
	fooID := p.Add(foo)
	barID := p.Add(mkMeta("bar", "1.0-1"))

	res, err := Solve(p, []blueprint.PkgRequest{{Name: "foo"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Installed(fooID) {
		t.Fatal("expected foo to be installed")
	}
	if res.Installed(barID) {
		t.Error("expected bar to not be installed alongside a conflicting foo")
	}
}

func TestSolvePrefersHeadVersion(t *testing.T) {
	p := pool.New()
	p.Add(mkMeta("foo", "1.0-1"))
	id2 := p.Add(mkMeta("foo", "2.0-1"))

	res, err := Solve(p, []blueprint.PkgRequest{{Name: "foo"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Installed(id2) {
		t.Error("expected solver to prefer the greatest available version")
	}
}

func TestSolveVirtualPackageProvider(t *testing.T) {
	p := pool.New()
	foo := mkMeta("foo", "1.0-1")
	foo.Depends = []pool.Group{{{Name: "mail-transport-agent"}}}
	p.Add(foo)
	provider := mkMeta("postfix", "1.0-1")
	provider.Provides = []pool.Relation{{Name: "mail-transport-agent"}}
	providerID := p.Add(provider)

	res, err := Solve(p, []blueprint.PkgRequest{{Name: "foo"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Installed(providerID) {
		t.Error("expected a virtual-package provider to discharge the dependency")
	}
}
