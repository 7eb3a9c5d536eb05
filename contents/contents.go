// Package contents parses a Debian Contents-<arch>.gz index: one line per
// installed file, mapping it to the set of packages that ship it. Used by
// `apm provide` (and by package-name autocompletion use cases the CLI
// doesn't implement here) to answer "which package owns this path".
package contents

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// Entry is one line of a Contents file: a filesystem path relative to the
// install root, and the area-qualified package names that ship it (e.g.
// "admin/sudo").
type Entry struct {
	Path     string
	Packages []string
}

// Index is a parsed Contents file, queryable by path substring.
type Index struct {
	entries []Entry
}

// Load reads and gunzips the Contents file at path, which is stored
// compressed on disk (repo.LocalDb never decompresses Contents artifacts,
// since `apm provide` only needs to stream them once per invocation).
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening contents index")
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(err, "decompressing contents index")
	}
	defer gz.Close()
	return Parse(gz)
}

// Parse reads an uncompressed Contents document: each line is
// "path  pkg1,pkg2,...", whitespace-separated with the path first.
func Parse(r io.Reader) (*Index, error) {
	idx := &Index{}
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for s.Scan() {
		line := s.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		i := strings.LastIndexAny(line, " \t")
		if i < 0 {
			continue
		}
		path := strings.TrimSpace(line[:i])
		pkgList := strings.TrimSpace(line[i+1:])
		if path == "" || pkgList == "" {
			continue
		}
		idx.entries = append(idx.entries, Entry{
			Path:     path,
			Packages: strings.Split(pkgList, ","),
		})
	}
	if err := s.Err(); err != nil {
		return nil, errors.Wrap(err, "scanning contents index")
	}
	return idx, nil
}

// Find returns every entry whose path contains substr, in file order.
// firstOnly stops after the first match.
func (idx *Index) Find(substr string, firstOnly bool) []Entry {
	var out []Entry
	for _, e := range idx.entries {
		if strings.Contains(e.Path, substr) {
			out = append(out, e)
			if firstOnly {
				break
			}
		}
	}
	return out
}
