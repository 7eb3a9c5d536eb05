package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/basalt-pkg/apm/action"
	"github.com/basalt-pkg/apm/bench"
	"github.com/basalt-pkg/apm/blueprint"
	"github.com/basalt-pkg/apm/config"
	"github.com/basalt-pkg/apm/contents"
	"github.com/basalt-pkg/apm/download"
	"github.com/basalt-pkg/apm/exec"
	"github.com/basalt-pkg/apm/localdeb"
	"github.com/basalt-pkg/apm/logging"
	"github.com/basalt-pkg/apm/machine"
	"github.com/basalt-pkg/apm/oplock"
	"github.com/basalt-pkg/apm/pool"
	"github.com/basalt-pkg/apm/pool/debdb"
	"github.com/basalt-pkg/apm/repo"
	"github.com/basalt-pkg/apm/solver"
	"github.com/basalt-pkg/apm/version"
)

// Version identifies the build of apm. Modified by CI during release.
var Version = "dev"

const defaultHelp = `apm manages packages on a Debian-family system

Usage:

  apm [global flags] <command> [options]

The commands are:

  install    install new packages
  remove     remove packages (aliases: purge, autoremove)
  pick       pin a package to a specific version
  refresh    refresh local package databases (alias: update)
  execute    install/upgrade/remove to satisfy the blueprint (aliases: upgrade, full-upgrade, dist-upgrade)
  search     search the package database by keyword
  provide    search what packages provide a given file
  clean      delete the local package cache (and optionally the database)
  bench      benchmark configured mirrors and pick the fastest
  version    show the apm version

Global flags:

  --root PATH          target filesystem root (default "/")
  --config-root PATH   configuration root, relative to --root (default "etc/apm/")
  -y, --yes             assume yes to all confirmation prompts
  -v, --verbose          enable debug logging
  --no-pager            apm never pages output; flag accepted for compatibility
`

// session bundles the paths and services every subcommand needs, built once
// global flags are parsed.
type session struct {
	root       string
	cfg        *config.Config
	cfgPath    string
	keyRoot    string
	dbRoot     string
	statusPath string
	userPath   string
	vendorPath string
	lockPath   string
	log        *zap.SugaredLogger
	yes        bool
}

type globalFlags struct {
	root       string
	configRoot string
	yes        bool
	verbose    bool
	noPager    bool
}

func addGlobalFlags(fs *pflag.FlagSet) *globalFlags {
	g := &globalFlags{}
	fs.StringVar(&g.root, "root", "/", "target filesystem root")
	fs.StringVar(&g.configRoot, "config-root", "etc/apm/", "configuration root, relative to --root")
	fs.BoolVarP(&g.yes, "yes", "y", false, "assume yes to all confirmation prompts")
	fs.BoolVarP(&g.verbose, "verbose", "v", false, "enable debug logging")
	fs.BoolVar(&g.noPager, "no-pager", false, "do not page long output")
	return g
}

func newSession(g *globalFlags) (*session, error) {
	cfgDir := filepath.Join(g.root, g.configRoot)
	cfgPath := filepath.Join(cfgDir, "config.toml")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return &session{
		root:       g.root,
		cfg:        cfg,
		cfgPath:    cfgPath,
		keyRoot:    filepath.Join(cfgDir, "keys"),
		dbRoot:     filepath.Join(g.root, "var", "lib", "apm", "lists"),
		statusPath: filepath.Join(g.root, "var", "lib", "dpkg", "status"),
		userPath:   filepath.Join(cfgDir, "user.list"),
		vendorPath: filepath.Join(cfgDir, "vendor.list"),
		lockPath:   filepath.Join(g.root, "var", "lib", "apm", "lock"),
		log:        logging.New(g.verbose),
		yes:        g.yes,
	}, nil
}

func (s *session) localDb() *repo.LocalDb {
	return &repo.LocalDb{
		Root:    s.dbRoot,
		KeyRoot: s.keyRoot,
		Arch:    s.cfg.Arch,
		Repos:   s.cfg.Repo,
		Log:     s.log,
	}
}

func (s *session) loadBlueprints() (*blueprint.Blueprints, error) {
	user, err := blueprint.Load(s.userPath)
	if err != nil {
		return nil, err
	}
	vendor, err := blueprint.Load(s.vendorPath)
	if err != nil {
		return nil, err
	}
	return &blueprint.Blueprints{User: user, Vendor: vendor}, nil
}

func (s *session) saveBlueprints(bp *blueprint.Blueprints) error {
	if err := blueprint.Save(s.userPath, bp.User); err != nil {
		return err
	}
	return blueprint.Save(s.vendorPath, bp.Vendor)
}

// loadPool parses every cached Packages index into an in-memory pool.
func (s *session) loadPool() (*pool.Pool, error) {
	db := s.localDb()
	p := pool.New()
	for name, rc := range s.cfg.Repo {
		baseURL, err := rc.EffectiveURL()
		if err != nil {
			return nil, err
		}
		for _, comp := range rc.Components {
			path, err := db.PackageDB(name, comp)
			if err != nil {
				s.log.Debugw("skipping component with no cached index", "repo", name, "component", comp)
				continue
			}
			f, err := os.Open(path)
			if err != nil {
				return nil, err
			}
			err = debdb.Import(f, baseURL, p, s.log)
			f.Close()
			if err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

func (s *session) machineStatus() (*machine.Status, error) {
	if _, err := os.Stat(s.statusPath); os.IsNotExist(err) {
		return &machine.Status{Entries: map[string]machine.Entry{}}, nil
	}
	return machine.Read(s.statusPath)
}

func (s *session) confirm(prompt string) bool {
	if s.yes {
		return true
	}
	fmt.Printf("%s [y/N] ", prompt)
	r := bufio.NewReader(os.Stdin)
	line, _ := r.ReadString('\n')
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "y" || line == "yes"
}

func run(args []string) (int, error) {
	arg := ""
	if len(args) > 1 {
		arg = args[1]
	}

	switch arg {
	case "", "help", "--help", "-h":
		fmt.Print(defaultHelp)
		return 2, nil
	case "version", "--version":
		if sv, err := version.AppSemver(Version); err == nil {
			fmt.Printf("apm version: %s\n", sv.String())
		} else {
			fmt.Printf("apm version: %s\n", Version)
		}
		return 0, nil

	case "install":
		fs := pflag.NewFlagSet("install", pflag.ContinueOnError)
		g := addGlobalFlags(fs)
		noRecommends := fs.Bool("no-recommends", false, "don't install recommended packages")
		local := fs.Bool("local", false, "install from local .deb files rather than the repositories")
		if err := fs.Parse(args[1:]); err != nil {
			return 2, err
		}
		names := fs.Args()
		if len(names) == 0 {
			fmt.Println("apm install: no package names given")
			return 2, nil
		}
		return withSession(g, func(s *session) (int, error) {
			return cmdInstall(s, names, *noRecommends, *local)
		})

	case "remove", "purge", "autoremove":
		fs := pflag.NewFlagSet("remove", pflag.ContinueOnError)
		g := addGlobalFlags(fs)
		removeRecommends := fs.Bool("remove-recommends", false, "also remove packages pulled in by recommends")
		if err := fs.Parse(args[1:]); err != nil {
			return 2, err
		}
		names := fs.Args()
		if len(names) == 0 {
			fmt.Println("apm remove: no package names given")
			return 2, nil
		}
		purge := arg == "purge"
		return withSession(g, func(s *session) (int, error) {
			return cmdRemove(s, names, *removeRecommends, purge)
		})

	case "pick":
		fs := pflag.NewFlagSet("pick", pflag.ContinueOnError)
		g := addGlobalFlags(fs)
		if err := fs.Parse(args[1:]); err != nil {
			return 2, err
		}
		if len(fs.Args()) != 1 {
			fmt.Println("apm pick: exactly one package name required")
			return 2, nil
		}
		return withSession(g, func(s *session) (int, error) {
			return cmdPick(s, fs.Args()[0])
		})

	case "refresh", "update":
		fs := pflag.NewFlagSet("refresh", pflag.ContinueOnError)
		g := addGlobalFlags(fs)
		if err := fs.Parse(args[1:]); err != nil {
			return 2, err
		}
		return withSession(g, cmdRefresh)

	case "execute", "upgrade", "full-upgrade", "dist-upgrade":
		fs := pflag.NewFlagSet("execute", pflag.ContinueOnError)
		g := addGlobalFlags(fs)
		if err := fs.Parse(args[1:]); err != nil {
			return 2, err
		}
		return withSession(g, cmdExecute)

	case "search":
		fs := pflag.NewFlagSet("search", pflag.ContinueOnError)
		g := addGlobalFlags(fs)
		if err := fs.Parse(args[1:]); err != nil {
			return 2, err
		}
		if len(fs.Args()) != 1 {
			fmt.Println("apm search: exactly one keyword required")
			return 2, nil
		}
		return withSession(g, func(s *session) (int, error) {
			return cmdSearch(s, fs.Args()[0])
		})

	case "provide":
		fs := pflag.NewFlagSet("provide", pflag.ContinueOnError)
		g := addGlobalFlags(fs)
		firstOnly := fs.Bool("first-only", false, "only search for the first result")
		if err := fs.Parse(args[1:]); err != nil {
			return 2, err
		}
		if len(fs.Args()) != 1 {
			fmt.Println("apm provide: exactly one file path required")
			return 2, nil
		}
		return withSession(g, func(s *session) (int, error) {
			return cmdProvide(s, fs.Args()[0], *firstOnly)
		})

	case "clean":
		fs := pflag.NewFlagSet("clean", pflag.ContinueOnError)
		g := addGlobalFlags(fs)
		all := fs.BoolP("all", "a", false, "also remove the local database, not just the .deb cache")
		if err := fs.Parse(args[1:]); err != nil {
			return 2, err
		}
		return withSession(g, func(s *session) (int, error) {
			return cmdClean(s, *all)
		})

	case "bench":
		fs := pflag.NewFlagSet("bench", pflag.ContinueOnError)
		g := addGlobalFlags(fs)
		if err := fs.Parse(args[1:]); err != nil {
			return 2, err
		}
		return withSession(g, cmdBench)

	default:
		fmt.Printf("apm %s: unknown command\n", arg)
		return 2, nil
	}
}

// withSession builds a session from the already-parsed global flags,
// acquires the operation lock, and runs fn,
// releasing the lock on every exit path including a panic.
func withSession(g *globalFlags, fn func(*session) (int, error)) (code int, err error) {
	s, err := newSession(g)
	if err != nil {
		return 1, err
	}

	lock, err := oplock.Acquire(s.lockPath)
	if err != nil {
		return 1, err
	}
	defer func() {
		if r := recover(); r != nil {
			lock.Release()
			code, err = 1, fmt.Errorf("panic: %v", r)
		}
	}()
	defer lock.Release()

	return fn(s)
}

func cmdInstall(s *session, names []string, noRecommends, local bool) (int, error) {
	bp, err := s.loadBlueprints()
	if err != nil {
		return 1, err
	}

	var localMetas []*pool.PkgMeta
	if local {
		for _, path := range names {
			m, err := localdeb.Read(path)
			if err != nil {
				return 1, errors.Wrapf(err, "reading local package %s", path)
			}
			localMetas = append(localMetas, m)
			if err := bp.Add(blueprint.PkgRequest{
				Name:       m.Name,
				Exact:      true,
				Constraint: &version.Requirement{Operator: version.OpEQ, Version: m.Version},
			}, true); err != nil {
				return 1, err
			}
		}
	} else {
		for _, n := range names {
			if err := bp.Add(blueprint.PkgRequest{Name: n}, true); err != nil {
				return 1, err
			}
		}
	}

	code, err := resolveAndExecuteWith(s, bp, noRecommends, false, localMetas)
	if err != nil || code != 0 {
		return code, err
	}
	return 0, s.saveBlueprints(bp)
}

func cmdRemove(s *session, names []string, removeRecommends, purge bool) (int, error) {
	bp, err := s.loadBlueprints()
	if err != nil {
		return 1, err
	}
	for _, n := range names {
		bp.Remove(n)
		if removeRecommends {
			kept := bp.Vendor[:0]
			for _, v := range bp.Vendor {
				if v.AddedBy != n {
					kept = append(kept, v)
				}
			}
			bp.Vendor = kept
		}
	}
	if err := s.saveBlueprints(bp); err != nil {
		return 1, err
	}
	return resolveAndExecute(s, bp, false, purge)
}

func cmdPick(s *session, name string) (int, error) {
	p, err := s.loadPool()
	if err != nil {
		return 1, err
	}
	head := p.Head(name)
	if head == 0 {
		return 1, fmt.Errorf("unknown package %q", name)
	}
	meta := p.Get(head)
	bp, err := s.loadBlueprints()
	if err != nil {
		return 1, err
	}
	if err := bp.Add(blueprint.PkgRequest{
		Name:       name,
		Exact:      true,
		Constraint: &version.Requirement{Operator: version.OpEQ, Version: meta.Version},
	}, true); err != nil {
		return 1, err
	}
	if err := s.saveBlueprints(bp); err != nil {
		return 1, err
	}
	return resolveAndExecute(s, bp, false, false)
}

func cmdRefresh(s *session) (int, error) {
	db := s.localDb()
	keyrings, err := db.LoadKeyrings()
	if err != nil {
		return 1, err
	}
	dl := download.New()
	dl.ShowProgress = true
	if err := db.Update(keyrings, dl); err != nil {
		return 1, err
	}
	fmt.Println("repository metadata refreshed")
	return 0, nil
}

func cmdExecute(s *session) (int, error) {
	bp, err := s.loadBlueprints()
	if err != nil {
		return 1, err
	}
	return resolveAndExecute(s, bp, false, false)
}

// resolveAndExecute is the shared install/remove/pick/execute tail: solve
// the blueprint against the pool, diff against machine state, show the
// result, confirm, and run it through the execution driver.
func resolveAndExecute(s *session, bp *blueprint.Blueprints, noRecommends, purgeOnRemove bool) (int, error) {
	return resolveAndExecuteWith(s, bp, noRecommends, purgeOnRemove, nil)
}

// resolveAndExecuteWith is resolveAndExecute plus a set of locally-read
// .deb candidates (from `apm install --local`) seeded into the pool before
// solving, so an exact-pinned blueprint entry for one of them can resolve
// against its own metadata rather than a repository copy.
func resolveAndExecuteWith(s *session, bp *blueprint.Blueprints, noRecommends, purgeOnRemove bool, localMetas []*pool.PkgMeta) (int, error) {
	p, err := s.loadPool()
	if err != nil {
		return 1, err
	}
	for _, m := range localMetas {
		p.Add(m)
	}
	st, err := s.machineStatus()
	if err != nil {
		return 1, err
	}

	reqs := bp.User
	if !noRecommends {
		reqs = bp.All()
	}
	res, err := solver.Solve(p, reqs, st)
	if err != nil {
		return 1, err
	}

	if !noRecommends {
		if expandRecommends(p, bp, res, s.log) {
			if err := s.saveBlueprints(bp); err != nil {
				return 1, err
			}
			res, err = solver.Solve(p, bp.All(), st)
			if err != nil {
				return 1, err
			}
		}
	}

	purge := purgeOnRemove || (s.cfg.Unsafe != nil && s.cfg.Unsafe.PurgeOnRemove)
	allowEssential := s.cfg.Unsafe != nil && s.cfg.Unsafe.AllowRemoveEssential
	acts, err := action.Diff(p, st, res, purge, allowEssential)
	if err != nil {
		return 1, err
	}
	if acts.IsEmpty() {
		fmt.Println("nothing to do")
		return 0, nil
	}

	acts.Show(os.Stdout)
	if !s.confirm("Proceed?") {
		return 2, nil
	}

	driver := exec.NewDriver(s.root)
	dl := download.New()
	dl.ShowProgress = true
	if err := driver.Execute(acts, dl, false); err != nil {
		return 1, err
	}
	fmt.Println("done")
	return 0, nil
}

// expandRecommends adds a Vendor blueprint entry for each Recommends group
// of every package the solver selected, so a package's recommended
// packages get installed alongside it unless the user already decided
// otherwise (ExpandRecommends is a no-op against an existing User entry
// and refreshes an existing Vendor entry in place). It
// reports whether any entry was actually added, so the caller knows
// whether a re-solve is warranted. A Recommends group with no installable
// candidate only warns (Open Question (iii): recommend-expansion
// failures are not fatal, unlike an unsatisfiable user-originated
// request).
func expandRecommends(p *pool.Pool, bp *blueprint.Blueprints, res *solver.Result, log *zap.SugaredLogger) bool {
	changed := false
	for _, e := range p.All() {
		if !res.Installed(e.ID) {
			continue
		}
		for _, group := range e.Meta.Recommends {
			candidates := p.CandidatesForGroup(group)
			if len(candidates) == 0 {
				log.Warnw("recommended package has no installable candidate", "recommended_by", e.Meta.Name)
				continue
			}
			target := p.Get(candidates[0])
			before := len(bp.Vendor)
			bp.ExpandRecommends(blueprint.PkgRequest{Name: target.Name}, e.Meta.Name)
			if len(bp.Vendor) != before {
				changed = true
			}
		}
	}
	return changed
}

func cmdSearch(s *session, keyword string) (int, error) {
	p, err := s.loadPool()
	if err != nil {
		return 1, err
	}
	keyword = strings.ToLower(keyword)
	found := false
	for _, e := range p.All() {
		if e.ID != p.Head(e.Meta.Name) {
			continue // one line per package, the newest candidate
		}
		if strings.Contains(strings.ToLower(e.Meta.Name), keyword) ||
			strings.Contains(strings.ToLower(e.Meta.Description), keyword) {
			fmt.Printf("%s %s - %s\n", e.Meta.Name, e.Meta.Version.String(), e.Meta.Description)
			found = true
		}
	}
	if !found {
		fmt.Println("no packages matched")
	}
	return 0, nil
}

func cmdProvide(s *session, file string, firstOnly bool) (int, error) {
	db := s.localDb()
	found := false
	for name, rc := range s.cfg.Repo {
		for _, comp := range rc.Components {
			path, err := db.ContentsDB(name, comp)
			if err != nil {
				continue
			}
			idx, err := contents.Load(path)
			if err != nil {
				return 1, err
			}
			for _, e := range idx.Find(file, firstOnly) {
				fmt.Printf("%s: %s\n", strings.Join(e.Packages, ", "), e.Path)
				found = true
			}
			if firstOnly && found {
				return 0, nil
			}
		}
	}
	if !found {
		fmt.Println("no package provides that file")
	}
	return 0, nil
}

func cmdClean(s *session, all bool) (int, error) {
	cacheDir := filepath.Join(s.root, "var", "cache", "apm", "pkgs")
	if err := os.RemoveAll(cacheDir); err != nil {
		return 1, err
	}
	if all {
		if err := os.RemoveAll(s.dbRoot); err != nil {
			return 1, err
		}
	}
	fmt.Println("cache cleaned")
	return 0, nil
}

func cmdBench(s *session) (int, error) {
	db := s.localDb()
	keyrings, err := db.LoadKeyrings()
	if err != nil {
		return 1, err
	}
	dl := download.New()
	if err := db.Update(keyrings, dl); err != nil {
		return 1, err
	}

	for name, rc := range s.cfg.Repo {
		if len(rc.URL.Multiple) < 2 {
			s.log.Infow("skipping single-mirror repo", "repo", name)
			continue
		}
		if len(rc.Components) == 0 {
			continue
		}
		refPath, err := db.ContentsDB(name, rc.Components[0])
		if err != nil {
			s.log.Warnw("no reference artifact cached, skipping mirror benchmark", "repo", name)
			continue
		}
		want, err := bench.ReferenceChecksum(refPath)
		if err != nil {
			return 1, err
		}
		relPath := fmt.Sprintf("dists/%s/%s/Contents-%s.gz", rc.Distribution, rc.Components[0], s.cfg.Arch)

		fmt.Printf("benchmarking mirrors for %s:\n", name)
		results := bench.Bench(context.Background(), bench.NewClient(), rc.URL.Multiple, relPath, want)
		bench.Report(os.Stdout, results)

		if results[0].Err != nil {
			continue
		}
		if s.confirm(fmt.Sprintf("Set %s as the preferred mirror for %s?", results[0].Mirror, name)) {
			if err := bench.Apply(s.cfgPath, name, results[0].Mirror); err != nil {
				return 1, err
			}
		}
	}
	return 0, nil
}

func main() {
	exitCode, err := run(os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(exitCode)
}
