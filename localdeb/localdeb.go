// Package localdeb reads the control metadata out of a standalone .deb
// file on disk, for `apm install --local`: a .deb is an ar(1) archive
// holding debian-binary, a compressed control member, and a compressed
// data member; only the control member is needed to turn the file into a
// pool.PkgMeta pinned to a local source.
package localdeb

import (
	"archive/tar"
	"io"
	"os"
	"strings"

	"github.com/blakesmith/ar"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"

	"github.com/basalt-pkg/apm/control"
	"github.com/basalt-pkg/apm/pool"
	"github.com/basalt-pkg/apm/pool/debdb"
)

// Read opens the .deb at path, extracts its control member, and converts
// the control stanza into a pool.PkgMeta whose Source names path as a
// Local install source rather than a remote URL.
func Read(path string) (*pool.PkgMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening .deb file")
	}
	defer f.Close()

	controlTar, err := findControlMember(f)
	if err != nil {
		return nil, err
	}

	s, err := extractControlStanza(controlTar)
	if err != nil {
		return nil, err
	}

	m, err := debdb.FromStanza(s, "")
	if err != nil {
		return nil, errors.Wrapf(err, "parsing control stanza from %s", path)
	}
	m.Source = pool.Source{Local: path}
	return m, nil
}

// findControlMember scans the ar archive for the control.tar member
// (compressed with gzip or xz) and returns it already decompressed.
func findControlMember(r io.Reader) (io.Reader, error) {
	ar := ar.NewReader(r)
	for {
		hdr, err := ar.Next()
		if err == io.EOF {
			return nil, errors.New("no control.tar member found in .deb archive")
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading ar archive")
		}
		name := strings.TrimPrefix(strings.TrimSuffix(hdr.Name, "/"), "./")
		switch {
		case strings.HasPrefix(name, "control.tar.gz"):
			return gzip.NewReader(ar)
		case strings.HasPrefix(name, "control.tar.xz"):
			return xz.NewReader(ar)
		case strings.HasPrefix(name, "control.tar"):
			return ar, nil
		}
	}
}

// extractControlStanza reads the "control" file out of an already
// decompressed control.tar stream and parses it as a single-stanza
// control document.
func extractControlStanza(r io.Reader) (control.Stanza, error) {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return control.Stanza{}, errors.New("control member has no control file")
		}
		if err != nil {
			return control.Stanza{}, errors.Wrap(err, "reading control.tar")
		}
		name := strings.TrimPrefix(hdr.Name, "./")
		if name != "control" {
			continue
		}
		f, err := control.Parse(tr)
		if err != nil {
			return control.Stanza{}, errors.Wrap(err, "parsing control file")
		}
		if len(f.Stanzas) == 0 {
			return control.Stanza{}, errors.New("empty control file")
		}
		return f.Stanzas[0], nil
	}
}
