// Package repo manages the local, on-disk mirror of every configured
// repository's indices: refreshing them (component F) from the upstream
// dists/<dist>/InRelease documents and giving the rest of the pipeline
// typed accessors to the cached Packages/Contents/BinContents files.
package repo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/basalt-pkg/apm/config"
	"github.com/basalt-pkg/apm/download"
	"github.com/basalt-pkg/apm/repo/release"
)

// Error reports a single repository's refresh failure. Refresh isolates
// failures per repository: one repo's Error does not abort refreshing the
// others, and the caller only treats the whole operation as failed if
// every configured repository failed.
type Error struct {
	Repo string
	Err  error
}

func (e *Error) Error() string  { return fmt.Sprintf("repo %q: %v", e.Repo, e.Err) }
func (e *Error) Unwrap() error  { return e.Err }

// LocalDb is the on-disk cache root (<root>/var/lib/apm/lists by
// convention) for every configured repository's indices.
type LocalDb struct {
	Root    string
	KeyRoot string
	Arch    string
	Repos   map[string]config.RepoConfig
	Log     *zap.SugaredLogger
}

// dbFilename builds the canonical on-disk name for one repo/component/arch
// combination's cached index file.
func dbFilename(kind, dist, component, arch string) string {
	switch kind {
	case "Packages":
		return fmt.Sprintf("Packages_%s_%s_%s", dist, component, arch)
	case "Contents":
		return fmt.Sprintf("Contents_%s_%s_%s.gz", dist, component, arch)
	case "BinContents":
		return fmt.Sprintf("BinContents_%s_%s_%s", dist, component, arch)
	default:
		panic("unknown index kind " + kind)
	}
}

// PackageDB returns the local path of one component's Packages file for
// arch, preferring an arch-specific file and falling back to the
// architecture-independent "all" copy. It is an error if neither exists.
func (db *LocalDb) PackageDB(repoName, component string) (string, error) {
	return db.indexFile("Packages", repoName, component, db.Arch)
}

func (db *LocalDb) ContentsDB(repoName, component string) (string, error) {
	return db.indexFile("Contents", repoName, component, db.Arch)
}

func (db *LocalDb) BinContentsDB(repoName, component string) (string, error) {
	return db.indexFile("BinContents", repoName, component, db.Arch)
}

func (db *LocalDb) indexFile(kind, repoName, component, arch string) (string, error) {
	rc, ok := db.Repos[repoName]
	if !ok {
		return "", errors.Errorf("unknown repository %q", repoName)
	}
	for _, a := range []string{arch, "all"} {
		p := filepath.Join(db.Root, dbFilename(kind, rc.Distribution, component, a))
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", errors.Errorf("no %s index for %s/%s (arch %s or all)", kind, repoName, component, arch)
}

// AllPackageDBs returns every component's Packages file path across every
// configured repository, skipping components with nothing cached yet.
func (db *LocalDb) AllPackageDBs() []string {
	var paths []string
	for name, rc := range db.Repos {
		for _, comp := range rc.Components {
			if p, err := db.PackageDB(name, comp); err == nil {
				paths = append(paths, p)
			}
		}
	}
	return paths
}

// Update refreshes every configured repository: fetch and verify
// InRelease, then fetch every index it names for {Arch, "all"} across
// every component. A repository that fails is logged as a warning and
// skipped; Update returns an error, listing every failure, only if every
// repository failed.
func (db *LocalDb) Update(keyring map[string]openpgp.EntityList, dl *download.Downloader) error {
	if err := os.MkdirAll(db.Root, 0o755); err != nil {
		return err
	}
	var errs []error
	okCount := 0
	for name, rc := range db.Repos {
		if err := db.updateOne(name, rc, keyring[name], dl); err != nil {
			errs = append(errs, &Error{Repo: name, Err: err})
			if db.Log != nil {
				db.Log.Warnw("repository refresh failed", "repo", name, "error", err)
			}
			continue
		}
		okCount++
	}
	if okCount == 0 && len(errs) > 0 {
		return errors.Errorf("all %d repositories failed to refresh: %v", len(errs), errs)
	}
	return nil
}

func (db *LocalDb) updateOne(name string, rc config.RepoConfig, keyring openpgp.EntityList, dl *download.Downloader) error {
	baseURL, err := rc.EffectiveURL()
	if err != nil {
		return err
	}
	inReleaseURL := baseURL + "/dists/" + rc.Distribution + "/InRelease"
	raw, err := fetchBytes(dl, inReleaseURL)
	if err != nil {
		return errors.Wrap(err, "fetching InRelease")
	}
	rel, err := release.VerifyClearsigned(raw, keyring)
	if err != nil {
		return errors.Wrap(err, "verifying InRelease")
	}

	var jobs []download.Job
	archSet := []string{db.Arch, "all"}
	for _, comp := range rc.Components {
		found := false
		for _, arch := range archSet {
			found = db.addComponentJobs(&jobs, rel, baseURL, rc.Distribution, comp, arch) || found
		}
		if !found && db.Log != nil {
			db.Log.Warnw("repository component yielded no indices", "repo", name, "component", comp)
		}
	}
	if len(jobs) == 0 {
		return nil
	}
	return dl.Fetch(jobs)
}

// addComponentJobs adds every available index job for one component/arch
// pair and reports whether anything was found.
func (db *LocalDb) addComponentJobs(jobs *[]download.Job, rel *release.Release, baseURL, dist, component, arch string) bool {
	found := false

	pkgXzPath := fmt.Sprintf("%s/binary-%s/Packages.xz", component, arch)
	if fh, ok := rel.Indices(pkgXzPath); ok {
		*jobs = append(*jobs, download.Job{
			URL:        baseURL + "/dists/" + dist + "/" + pkgXzPath,
			Dest:       filepath.Join(db.Root, dbFilename("Packages", dist, component, arch)),
			Checksum:   fh.Checksum,
			Decompress: true,
		})
		found = true
	}

	contentsPath := fmt.Sprintf("%s/Contents-%s.gz", component, arch)
	if fh, ok := rel.Indices(contentsPath); ok {
		*jobs = append(*jobs, download.Job{
			URL:      baseURL + "/dists/" + dist + "/" + contentsPath,
			Dest:     filepath.Join(db.Root, dbFilename("Contents", dist, component, arch)),
			Checksum: fh.Checksum,
		})
		found = true
	}

	binContentsPath := fmt.Sprintf("%s/BinContents-%s", component, arch)
	if fh, ok := rel.Indices(binContentsPath); ok {
		*jobs = append(*jobs, download.Job{
			URL:      baseURL + "/dists/" + dist + "/" + binContentsPath,
			Dest:     filepath.Join(db.Root, dbFilename("BinContents", dist, component, arch)),
			Checksum: fh.Checksum,
		})
		found = true
	}

	return found
}

// LoadKeyring reads every key file named by rc.Keys (bare filenames,
// already validated by RepoConfig.CheckSanity) from keyRoot and returns
// the combined armored keyring used to verify that repository's InRelease.
func LoadKeyring(keyRoot string, rc config.RepoConfig) (openpgp.EntityList, error) {
	var all openpgp.EntityList
	for _, name := range rc.Keys {
		f, err := os.Open(filepath.Join(keyRoot, name))
		if err != nil {
			return nil, errors.Wrapf(err, "opening key file %s", name)
		}
		entities, err := openpgp.ReadArmoredKeyRing(f)
		f.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "reading key file %s", name)
		}
		all = append(all, entities...)
	}
	return all, nil
}

// LoadKeyrings builds the per-repository keyring map Update expects.
func (db *LocalDb) LoadKeyrings() (map[string]openpgp.EntityList, error) {
	out := map[string]openpgp.EntityList{}
	for name, rc := range db.Repos {
		kr, err := LoadKeyring(db.KeyRoot, rc)
		if err != nil {
			return nil, errors.Wrapf(err, "loading keyring for %s", name)
		}
		out[name] = kr
	}
	return out, nil
}

func fetchBytes(dl *download.Downloader, url string) ([]byte, error) {
	dir, err := os.MkdirTemp("", "apm-inrelease-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)
	dest := filepath.Join(dir, "InRelease")
	if err := dl.Fetch([]download.Job{{URL: url, Dest: dest}}); err != nil {
		return nil, err
	}
	return os.ReadFile(dest)
}
