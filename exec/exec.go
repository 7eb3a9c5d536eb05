// Package exec drives dpkg to realize a computed action.Actions against a
// target root: fetch every install/unpack source into the local package
// cache, then invoke dpkg in strict order — purge, remove, then either
// unpack (if staging only) or configure and install.
package exec

import (
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/basalt-pkg/apm/action"
	"github.com/basalt-pkg/apm/download"
)

// ExecutionError reports a non-zero dpkg exit for one batch of arguments.
type ExecutionError struct {
	Args     []string
	ExitCode int
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("dpkg %v exited with status %d", e.Args, e.ExitCode)
}

// Driver runs dpkg against a target root.
type Driver struct {
	Root     string // target filesystem root, passed to dpkg --root
	CacheDir string // where fetched .deb files are staged before dpkg runs
	Dpkg     string // path to the dpkg binary; defaults to "dpkg"
	Runner   func(name string, args ...string) error
}

// NewDriver returns a Driver with its .deb cache under
// <root>/var/cache/apm/pkgs, matching the on-disk layout convention.
func NewDriver(root string) *Driver {
	return &Driver{
		Root:     root,
		CacheDir: filepath.Join(root, "var", "cache", "apm", "pkgs"),
		Dpkg:     "dpkg",
		Runner:   runCommand,
	}
}

func runCommand(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Run(); err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return &ExecutionError{Args: args, ExitCode: ee.ExitCode()}
		}
		return err
	}
	return nil
}

// Execute fetches every source named by acts and then runs dpkg in
// strict order: purge, remove, then unpack-only or configure+install.
// unpackOnly runs --unpack instead of --install for staged packages,
// deferring configuration to a later `apm execute`.
func (d *Driver) Execute(acts *action.Actions, dl *download.Downloader, unpackOnly bool) error {
	paths, err := d.fetchAll(acts, dl)
	if err != nil {
		return errors.Wrap(err, "fetching package sources")
	}

	if err := d.run("--purge", acts.Purge); err != nil {
		return err
	}
	if err := d.run("--remove", acts.Remove); err != nil {
		return err
	}

	if unpackOnly {
		return d.runPaths("--unpack", append(paths.install, paths.unpack...))
	}
	if err := d.runPaths("--install", paths.install); err != nil {
		return err
	}
	if err := d.runPaths("--unpack", paths.unpack); err != nil {
		return err
	}
	return d.run("--configure", acts.Configure)
}

type stagedPaths struct {
	install []string
	unpack  []string
}

func (d *Driver) fetchAll(acts *action.Actions, dl *download.Downloader) (stagedPaths, error) {
	var jobs []download.Job
	var paths stagedPaths
	for _, e := range acts.Install {
		dest := filepath.Join(d.CacheDir, debFilename(e.Meta.Name, e.Meta.Version.String()))
		jobs = append(jobs, download.Job{URL: e.Meta.Source.URL, Dest: dest, Checksum: e.Meta.Source.Checksum})
		paths.install = append(paths.install, dest)
	}
	for _, e := range acts.Unpack {
		dest := filepath.Join(d.CacheDir, debFilename(e.Meta.Name, e.Meta.Version.String()))
		jobs = append(jobs, download.Job{URL: e.Meta.Source.URL, Dest: dest, Checksum: e.Meta.Source.Checksum})
		paths.unpack = append(paths.unpack, dest)
	}
	if len(jobs) == 0 {
		return paths, nil
	}
	return paths, dl.Fetch(jobs)
}

func debFilename(name, version string) string {
	return fmt.Sprintf("%s_%s.deb", name, version)
}

// run invokes dpkg <flag> <names...> if names is non-empty; a no-op batch
// never shells out, matching dpkg's own expectation of a non-empty argument
// list for --remove/--purge/--configure.
func (d *Driver) run(flag string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	args := append([]string{"--root", d.Root, "--force-all", flag}, names...)
	return d.Runner(d.Dpkg, args...)
}

func (d *Driver) runPaths(flag string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"--root", d.Root, "--force-all", flag}, paths...)
	return d.Runner(d.Dpkg, args...)
}
