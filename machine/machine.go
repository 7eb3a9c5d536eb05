// Package machine reads the dpkg-compatible status file describing what is
// actually installed on the target root, independent of what the
// blueprint asks for.
package machine

import (
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/basalt-pkg/apm/control"
	"github.com/basalt-pkg/apm/version"
)

// State is one of dpkg's package states, drawn from the three
// space-separated fields of a status stanza's Status: line (want, flag,
// status). This implementation only tracks the combined "status" value,
// since that is what the action diff engine needs.
type State string

const (
	StateNotInstalled  State = "not-installed"
	StateUnpacked      State = "unpacked"
	StateHalfConfig    State = "half-configured"
	StateHalfInstall   State = "half-installed"
	StateConfigFiles   State = "config-files"
	StateTriggersAwait State = "triggers-awaited"
	StateTriggersPend  State = "triggers-pending"
	StateInstalled     State = "installed"
)

var validStates = map[State]bool{
	StateNotInstalled: true, StateUnpacked: true, StateHalfConfig: true,
	StateHalfInstall: true, StateConfigFiles: true, StateTriggersAwait: true,
	StateTriggersPend: true, StateInstalled: true,
}

// Entry is one installed (or formerly installed) package's recorded state.
type Entry struct {
	Name      string
	Version   version.Version
	State     State
	Essential bool
}

// Status is the parsed contents of the status file: every package dpkg
// has ever recorded an entry for, keyed by name.
type Status struct {
	Entries map[string]Entry
}

// StateError reports an unrecognized Status: line.
type StateError struct {
	Package string
	Raw     string
}

func (e *StateError) Error() string {
	return "package " + e.Package + ": unrecognized status " + e.Raw
}

// Read parses the dpkg status file at path.
func Read(path string) (*Status, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening dpkg status file")
	}
	defer f.Close()
	cf, err := control.Parse(f)
	if err != nil {
		return nil, errors.Wrap(err, "parsing dpkg status file")
	}
	st := &Status{Entries: map[string]Entry{}}
	for _, s := range cf.Stanzas {
		name, ok := s.Get("Package")
		if !ok {
			continue
		}
		statusLine, _ := s.Get("Status")
		fields := strings.Fields(statusLine)
		if len(fields) != 3 {
			return nil, &StateError{Package: name, Raw: statusLine}
		}
		state := State(fields[2])
		if !validStates[state] {
			return nil, &StateError{Package: name, Raw: statusLine}
		}
		e := Entry{Name: name, State: state}
		if verStr, ok := s.Get("Version"); ok {
			v, err := version.Parse(verStr)
			if err != nil {
				return nil, errors.Wrapf(err, "package %s", name)
			}
			e.Version = v
		}
		if ess, _ := s.Get("Essential"); ess == "yes" {
			e.Essential = true
		}
		st.Entries[name] = e
	}
	return st, nil
}

// Installed reports whether name is recorded in a fully-installed state.
func (s *Status) Installed(name string) bool {
	e, ok := s.Entries[name]
	return ok && e.State == StateInstalled
}

// InstalledVersion returns the installed version of name, if any.
func (s *Status) InstalledVersion(name string) (version.Version, bool) {
	e, ok := s.Entries[name]
	if !ok || e.State != StateInstalled {
		return version.Version{}, false
	}
	return e.Version, true
}
