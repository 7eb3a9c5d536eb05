// Package debdb converts parsed Packages-file stanzas into pool.PkgMeta
// and imports them into a pool.Pool, mirroring the parallel-parse,
// sequential-insert split of a Debian archive's package index importer:
// stanzas are converted to PkgMeta concurrently across a worker pool, then
// added to the pool one at a time since pool.Pool.Add is not safe for
// concurrent use.
package debdb

import (
	"io"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/basalt-pkg/apm/checksum"
	"github.com/basalt-pkg/apm/control"
	"github.com/basalt-pkg/apm/pool"
	"github.com/basalt-pkg/apm/version"
)

// groupFields lists the fields whose value is a comma-separated list of
// "|"-joined alternative groups: Depends-shaped fields, where any single
// alternative in a group discharges it.
var groupFields = []struct {
	field string
	dst   func(*pool.PkgMeta) *[]pool.Group
}{
	{"Depends", func(m *pool.PkgMeta) *[]pool.Group { return &m.Depends }},
	{"Pre-Depends", func(m *pool.PkgMeta) *[]pool.Group { return &m.PreDepends }},
	{"Breaks", func(m *pool.PkgMeta) *[]pool.Group { return &m.Breaks }},
	{"Conflicts", func(m *pool.PkgMeta) *[]pool.Group { return &m.Conflicts }},
	{"Recommends", func(m *pool.PkgMeta) *[]pool.Group { return &m.Recommends }},
	{"Suggests", func(m *pool.PkgMeta) *[]pool.Group { return &m.Suggests }},
}

// flatFields lists fields with no "|" alternative semantics: every
// comma-separated entry is independent.
var flatFields = []struct {
	field string
	dst   func(*pool.PkgMeta) *[]pool.Relation
}{
	{"Provides", func(m *pool.PkgMeta) *[]pool.Relation { return &m.Provides }},
	{"Replaces", func(m *pool.PkgMeta) *[]pool.Relation { return &m.Replaces }},
}

// FromStanza converts one Packages stanza into a PkgMeta. baseURL is
// joined with the stanza's Filename field to build the download source.
func FromStanza(s control.Stanza, baseURL string) (*pool.PkgMeta, error) {
	name, ok := s.Get("Package")
	if !ok {
		return nil, errf("missing Package field")
	}
	verStr, ok := s.Get("Version")
	if !ok {
		return nil, errf("package %s: missing Version field", name)
	}
	v, err := version.Parse(verStr)
	if err != nil {
		return nil, errf("package %s: %v", name, err)
	}
	section, ok := s.Get("Section")
	if !ok {
		return nil, errf("package %s: missing Section field", name)
	}
	description, ok := s.Get("Description")
	if !ok {
		return nil, errf("package %s: missing Description field", name)
	}
	szStr, ok := s.Get("Installed-Size")
	if !ok {
		return nil, errf("package %s: missing Installed-Size field", name)
	}
	sz, err := strconv.ParseUint(strings.TrimSpace(szStr), 10, 64)
	if err != nil {
		return nil, errf("package %s: invalid Installed-Size: %v", name, err)
	}

	m := &pool.PkgMeta{Name: name, Version: v, Section: section, Description: description, InstallSize: sz * 1024}
	if essential, _ := s.Get("Essential"); essential == "yes" {
		m.Essential = true
	}

	for _, gf := range groupFields {
		raw, ok := s.Get(gf.field)
		if !ok {
			continue
		}
		groups, err := parseGroups(raw)
		if err != nil {
			return nil, errf("package %s field %s: %v", name, gf.field, err)
		}
		*gf.dst(m) = groups
	}
	for _, ff := range flatFields {
		raw, ok := s.Get(ff.field)
		if !ok {
			continue
		}
		rels, err := parseFlat(raw)
		if err != nil {
			return nil, errf("package %s field %s: %v", name, ff.field, err)
		}
		*ff.dst(m) = rels
	}

	filename, hasFile := s.Get("Filename")
	if hasFile {
		sizeStr, _ := s.Get("Size")
		size, _ := strconv.ParseUint(strings.TrimSpace(sizeStr), 10, 64)
		sum, err := pickChecksum(s)
		if err != nil {
			return nil, errf("package %s: %v", name, err)
		}
		m.Source = pool.Source{
			URL:      strings.TrimRight(baseURL, "/") + "/" + filename,
			Size:     size,
			Checksum: sum,
		}
	}
	return m, nil
}

func pickChecksum(s control.Stanza) (checksum.Checksum, error) {
	if h, ok := s.Get("SHA512"); ok {
		return checksum.FromHex(checksum.SHA512, strings.TrimSpace(h))
	}
	if h, ok := s.Get("SHA256"); ok {
		return checksum.FromHex(checksum.SHA256, strings.TrimSpace(h))
	}
	return checksum.Checksum{}, errf("no SHA256 or SHA512 field")
}

// parseGroups parses a Depends-style field value: comma-separated groups,
// each group's alternatives separated by "|", each alternative optionally
// qualified by a parenthesized version requirement. Each group becomes one
// pool.Group, preserving the OR relationship among its alternatives.
func parseGroups(raw string) ([]pool.Group, error) {
	var groups []pool.Group
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var group pool.Group
		for _, alt := range strings.Split(part, "|") {
			alt = strings.TrimSpace(alt)
			if alt == "" {
				continue
			}
			name, constraint, err := parseAlternative(alt)
			if err != nil {
				return nil, err
			}
			group = append(group, pool.Relation{Name: name, Constraint: constraint})
		}
		if len(group) > 0 {
			groups = append(groups, group)
		}
	}
	return groups, nil
}

// parseFlat parses a comma-separated field with no alternative semantics
// (Provides, Replaces), where Debian policy does not define "|" groups.
func parseFlat(raw string) ([]pool.Relation, error) {
	groups, err := parseGroups(raw)
	if err != nil {
		return nil, err
	}
	var rels []pool.Relation
	for _, g := range groups {
		rels = append(rels, g...)
	}
	return rels, nil
}

func parseAlternative(alt string) (string, *version.Requirement, error) {
	name := alt
	var reqStr string
	if i := strings.IndexByte(alt, '('); i >= 0 {
		name = strings.TrimSpace(alt[:i])
		j := strings.IndexByte(alt[i:], ')')
		if j < 0 {
			return "", nil, errf("unterminated version requirement in %q", alt)
		}
		reqStr = alt[i+1 : i+j]
	}
	// Strip architecture qualifiers ("foo:any") and build profile
	// annotations ("[!nocheck]"), neither of which this implementation
	// resolves per-architecture builds for.
	if i := strings.IndexByte(name, ':'); i >= 0 {
		name = name[:i]
	}
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	if reqStr == "" {
		return name, nil, nil
	}
	req, err := version.ParseRequirement(reqStr)
	if err != nil {
		return "", nil, err
	}
	return name, &req, nil
}

// Import parses every stanza from r concurrently and adds each successfully
// converted PkgMeta to p. Per-stanza conversion failures are logged as
// warnings and dropped rather than failing the whole import, matching the
// tolerant-import policy of archive index ingestion.
func Import(r io.Reader, baseURL string, p *pool.Pool, log *zap.SugaredLogger) error {
	f, err := readControlFile(r)
	if err != nil {
		return err
	}
	return ImportStanzas(f, baseURL, p, log)
}

func ImportStanzas(stanzas []control.Stanza, baseURL string, p *pool.Pool, log *zap.SugaredLogger) error {
	workers := runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}
	if workers > len(stanzas) && len(stanzas) > 0 {
		workers = len(stanzas)
	}
	type result struct {
		meta *pool.PkgMeta
		err  error
	}
	results := make([]result, len(stanzas))
	jobs := make(chan int, len(stanzas))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				m, err := FromStanza(stanzas[idx], baseURL)
				results[idx] = result{meta: m, err: err}
			}
		}()
	}
	for i := range stanzas {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, r := range results {
		if r.err != nil {
			if log != nil {
				log.Warnw("dropping invalid package stanza", "error", r.err)
			}
			continue
		}
		p.Add(r.meta)
	}
	return nil
}

func readControlFile(r io.Reader) ([]control.Stanza, error) {
	f, err := control.Parse(r)
	if err != nil {
		return nil, err
	}
	return f.Stanzas, nil
}

func errf(format string, args ...interface{}) error {
	return errors.Errorf(format, args...)
}
