// Package blueprint models the set of packages a user has asked for (and
// the set vendor/system metapackages imply), independent of what is
// actually resolved or installed. A Blueprints value is the solver's only
// input besides the pool: "what do we want installed", as opposed to
// "what is currently installed" (package machine) or "what do we need to
// do about it" (package action).
package blueprint

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/basalt-pkg/apm/version"
)

// PkgRequest is one entry in a blueprint: a package name, an optional
// version constraint, and whether it was added directly by the user or
// pulled in as a Recommends of something else.
type PkgRequest struct {
	Name       string
	Constraint *version.Requirement
	// Exact pins the request to precisely this version (a "pick"),
	// permitting the solver to select a version lower than the one
	// currently installed — normal requests never trigger a downgrade.
	Exact bool
	// AddedBy names the package whose Recommends pulled this request in,
	// or is empty for a request the user added directly.
	AddedBy string
}

// Blueprints is the full set of requested packages: the User list (CLI
// install/remove/pick) and the Vendor list (recommends expansion and
// metapackage membership), which are resolved together but recorded and
// edited independently.
type Blueprints struct {
	User   []PkgRequest
	Vendor []PkgRequest
}

// Add inserts req into the blueprint, matching the spec's unified add
// operation: a name already present in either list fails with a
// "duplicate" error unless modify is true, in which case the existing
// entry's Constraint/Exact/AddedBy are replaced in place, preserving
// which list it lives in. A name not yet present is appended to Vendor
// when req.AddedBy is set (a recommends-driven add) or to User
// otherwise (a direct user add).
func (b *Blueprints) Add(req PkgRequest, modify bool) error {
	if i, ok := indexOf(b.User, req.Name); ok {
		if !modify {
			return errors.Errorf("%s is already requested (use pick to change it)", req.Name)
		}
		b.User[i] = req
		return nil
	}
	if i, ok := indexOf(b.Vendor, req.Name); ok {
		if !modify {
			return errors.Errorf("%s is already requested (use pick to change it)", req.Name)
		}
		b.Vendor[i] = req
		return nil
	}
	if req.AddedBy != "" {
		b.Vendor = append(b.Vendor, req)
	} else {
		b.User = append(b.User, req)
	}
	return nil
}

// Remove deletes name from the User list. It reports whether an entry was
// present to remove.
func (b *Blueprints) Remove(name string) bool {
	out, removed := removeByName(b.User, name)
	b.User = out
	return removed
}

// ExpandRecommends adds req to the Vendor list with AddedBy set, unless a
// User entry for the same name already exists, in which case it is a
// no-op: an explicit user request always takes precedence over a
// recommends-driven one. A repeated expansion (the package is already
// recommended by something else) refreshes the existing Vendor entry's
// AddedBy/Constraint rather than failing, since recommends-expansion is
// an automatic process, not a user-originated duplicate add.
func (b *Blueprints) ExpandRecommends(req PkgRequest, addedBy string) {
	for _, r := range b.User {
		if r.Name == req.Name {
			return
		}
	}
	req.AddedBy = addedBy
	_ = b.Add(req, true)
}

// All returns every request across both lists, user entries first so a
// caller resolving name collisions sees the user's intent take priority.
func (b *Blueprints) All() []PkgRequest {
	out := make([]PkgRequest, 0, len(b.User)+len(b.Vendor))
	out = append(out, b.User...)
	out = append(out, b.Vendor...)
	return out
}

func indexOf(list []PkgRequest, name string) (int, bool) {
	for i, r := range list {
		if r.Name == name {
			return i, true
		}
	}
	return 0, false
}

func removeByName(list []PkgRequest, name string) ([]PkgRequest, bool) {
	for i, r := range list {
		if r.Name == name {
			return append(list[:i], list[i+1:]...), true
		}
	}
	return list, false
}

// Format renders a request in the blueprint file's line format:
// "NAME [OP VERSION] [# added-by=OTHER]".
func (r PkgRequest) Format() string {
	var b strings.Builder
	b.WriteString(r.Name)
	if r.Constraint != nil {
		op := string(r.Constraint.Operator)
		if r.Exact {
			op = "="
		}
		fmt.Fprintf(&b, " %s %s", op, r.Constraint.Version.String())
	}
	if r.AddedBy != "" {
		fmt.Fprintf(&b, " # added-by=%s", r.AddedBy)
	}
	return b.String()
}

// ParseLine parses one non-blank, non-comment blueprint line.
func ParseLine(line string) (PkgRequest, error) {
	addedBy := ""
	if i := strings.Index(line, "#"); i >= 0 {
		comment := strings.TrimSpace(line[i+1:])
		line = line[:i]
		if rest, ok := strings.CutPrefix(comment, "added-by="); ok {
			addedBy = strings.TrimSpace(rest)
		}
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return PkgRequest{}, errors.New("empty blueprint line")
	}
	req := PkgRequest{Name: fields[0], AddedBy: addedBy}
	switch len(fields) {
	case 1:
	case 3:
		r, err := version.ParseRequirement(fields[1] + " " + fields[2])
		if err != nil {
			return PkgRequest{}, err
		}
		req.Constraint = &r
		req.Exact = r.Operator == version.OpEQ
	default:
		return PkgRequest{}, errors.Errorf("malformed blueprint line: %q", line)
	}
	return req, nil
}

// Load reads a blueprint file (one PkgRequest per non-blank, non-comment
// line). A missing file is treated as an empty list, not an error, since a
// freshly initialized root has no blueprint yet.
func Load(path string) ([]PkgRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return parseAll(f)
}

func parseAll(r io.Reader) ([]PkgRequest, error) {
	var out []PkgRequest
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		req, err := ParseLine(line)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Save writes reqs to path, one per line, overwriting any existing file.
func Save(path string, reqs []PkgRequest) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, r := range reqs {
		if _, err := fmt.Fprintln(w, r.Format()); err != nil {
			return err
		}
	}
	return w.Flush()
}
