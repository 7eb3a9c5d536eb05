// Package action computes the concrete set of dpkg operations needed to
// move the machine from its current state to a solver's resolved install
// set, and renders that set for confirmation before execution.
package action

import (
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"

	"github.com/basalt-pkg/apm/machine"
	"github.com/basalt-pkg/apm/pool"
	"github.com/basalt-pkg/apm/solver"
	"github.com/basalt-pkg/apm/version"
)

// InstallEntry is one package to be fetched and installed (or upgraded).
type InstallEntry struct {
	Meta *pool.PkgMeta
}

// Actions is the full diff: what must be purged, removed, unpacked,
// configured, or freshly installed to realize a solver.Result.
type Actions struct {
	Install   []InstallEntry
	Unpack    []InstallEntry
	Remove    []string
	Purge     []string
	Configure []string

	// removedSize is the sum of InstallSize for every removed/purged
	// package whose installed version could still be found in the pool
	// (an archive that has dropped the package entirely leaves its size
	// unrecoverable, and that package contributes 0 rather than failing
	// the diff).
	removedSize int64
}

// IsEmpty reports whether there is nothing to do.
func (a *Actions) IsEmpty() bool {
	return len(a.Install) == 0 && len(a.Unpack) == 0 && len(a.Remove) == 0 &&
		len(a.Purge) == 0 && len(a.Configure) == 0
}

// EssentialRemovalError is returned by Diff when a resolved set would
// remove a package flagged Essential, unless the caller's config opted
// into allow_remove_essential.
type EssentialRemovalError struct {
	Name string
}

func (e *EssentialRemovalError) Error() string {
	return "refusing to remove essential package " + e.Name + " (set unsafe.allow_remove_essential to override)"
}

// Diff computes the action set to go from st (current machine state) to
// res (the solver's chosen install set) against p (to recover full
// metadata for newly-selected candidates). purgeOnRemove additionally
// purges (rather than merely removes) configuration for packages dropped
// entirely. allowRemoveEssential permits removing a package marked
// Essential; otherwise that case is a hard error.
func Diff(p *pool.Pool, st *machine.Status, res *solver.Result, purgeOnRemove, allowRemoveEssential bool) (*Actions, error) {
	a := &Actions{}
	wanted := map[string]*pool.PkgMeta{}
	for _, e := range p.All() {
		if res.Installed(e.ID) {
			wanted[e.Meta.Name] = e.Meta
		}
	}

	for name, meta := range wanted {
		installedVersion, isInstalled := st.InstalledVersion(name)
		switch {
		case !isInstalled:
			a.Install = append(a.Install, InstallEntry{Meta: meta})
		case !installedVersion.Equal(meta.Version):
			a.Install = append(a.Install, InstallEntry{Meta: meta})
		}
	}

	for name, entry := range st.Entries {
		if needsConfigureRecovery(entry.State) {
			a.Configure = append(a.Configure, name)
			continue
		}
		if entry.State != machine.StateInstalled {
			continue
		}
		if _, stillWanted := wanted[name]; stillWanted {
			continue
		}
		if entry.Essential && !allowRemoveEssential {
			return nil, &EssentialRemovalError{Name: name}
		}
		a.removedSize += installedSize(p, name, entry.Version)
		if purgeOnRemove {
			a.Purge = append(a.Purge, name)
		} else {
			a.Remove = append(a.Remove, name)
		}
	}

	sortInstallEntries(a.Install)
	sortInstallEntries(a.Unpack)
	sort.Strings(a.Remove)
	sort.Strings(a.Purge)
	sort.Strings(a.Configure)
	return a, nil
}

// needsConfigureRecovery reports whether a package left in state is
// incoherent enough that dpkg needs to reattempt its postinst/triggers
// regardless of whether the target set still wants it at all.
func needsConfigureRecovery(state machine.State) bool {
	switch state {
	case machine.StateHalfInstall, machine.StateHalfConfig,
		machine.StateUnpacked, machine.StateTriggersPend, machine.StateTriggersAwait:
		return true
	default:
		return false
	}
}

func sortInstallEntries(es []InstallEntry) {
	sort.Slice(es, func(i, j int) bool { return es[i].Meta.Name < es[j].Meta.Name })
}

// Modifier transforms a computed Actions set, e.g. UnpackOnly.
type Modifier func(*Actions)

// UnpackOnly converts every planned Install into an Unpack, so packages
// are staged without being configured.
func UnpackOnly(a *Actions) {
	a.Unpack = append(a.Unpack, a.Install...)
	a.Install = nil
}

// SizeDelta returns the net change, in bytes, to installed size: the sum
// of newly installed packages' InstallSize minus the sum of removed or
// purged packages' InstallSize, matching `show_size_change`'s signed
// headline figure.
func (a *Actions) SizeDelta() int64 {
	var total int64
	for _, e := range a.Install {
		total += int64(e.Meta.InstallSize)
	}
	return total - a.removedSize
}

// installedSize looks up the InstallSize of name's installed version v in
// the pool, returning 0 if the archive no longer carries that exact
// (name, version) pair.
func installedSize(p *pool.Pool, name string, v version.Version) int64 {
	for _, id := range p.IDs(name) {
		m := p.Get(id)
		if m != nil && m.Version.Equal(v) {
			return int64(m.InstallSize)
		}
	}
	return 0
}

// Show writes a grouped, colorized summary of the action set in
// INSTALL/UNPACK/CONFIGURE/PURGE/REMOVE groups. Upgrades are listed under
// INSTALL; there is no separate UPGRADE group.
func (a *Actions) Show(w io.Writer) {
	showInstallGroup(w, "INSTALL", a.Install, color.New(color.FgGreen))
	showInstallGroup(w, "UNPACK", a.Unpack, color.New(color.FgCyan))
	showNameGroup(w, "CONFIGURE", a.Configure, color.New(color.FgBlue))
	showNameGroup(w, "PURGE", a.Purge, color.New(color.FgRed, color.Bold))
	showNameGroup(w, "REMOVE", a.Remove, color.New(color.FgRed))
	if delta := a.SizeDelta(); delta != 0 {
		fmt.Fprintf(w, "\nEstimated additional disk usage: %+d bytes\n", delta)
	}
}

func showInstallGroup(w io.Writer, label string, entries []InstallEntry, c *color.Color) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(w, "%s (%d):\n", label, len(entries))
	for _, e := range entries {
		fmt.Fprintf(w, "  %s %s\n", c.Sprint(e.Meta.Name), e.Meta.Version.String())
	}
}

func showNameGroup(w io.Writer, label string, names []string, c *color.Color) {
	if len(names) == 0 {
		return
	}
	fmt.Fprintf(w, "%s (%d):\n", label, len(names))
	for _, n := range names {
		fmt.Fprintf(w, "  %s\n", c.Sprint(n))
	}
}
