// Package control parses the RFC822-derived stanza format shared by
// dpkg's status file, Packages indices, and Release files: blank-line
// separated paragraphs of "Field: value" lines with leading-whitespace
// continuation lines for multi-line values.
package control

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Stanza is one paragraph: an ordered set of fields, each possibly
// multi-line (continuation lines become additional slice entries).
type Stanza struct {
	Fields map[string][]string
	// Order preserves the field order as encountered, since some
	// formats (notably Release) are order-sensitive for display.
	Order []string
}

// Get returns the first line of a field joined with the rest by "\n", or
// ("", false) if the field is absent.
func (s Stanza) Get(name string) (string, bool) {
	v, ok := s.Fields[name]
	if !ok {
		return "", false
	}
	return strings.Join(v, "\n"), true
}

// File is a sequence of stanzas, as found in a Packages or status file.
type File struct {
	Stanzas []Stanza
}

// Parse reads a control file from r. PGP clearsign armor ("-----BEGIN PGP
// SIGNED MESSAGE-----" ... "-----BEGIN PGP SIGNATURE-----") is skipped
// transparently so the same parser handles both signed and unsigned
// documents; callers that need to verify the signature must do so against
// the raw bytes before calling Parse, via the repo/release package.
func Parse(r io.Reader) (*File, error) {
	b := bufio.NewScanner(r)
	b.Buffer(make([]byte, 64*1024), 16*1024*1024)
	if !b.Scan() {
		if err := b.Err(); err != nil {
			return nil, errors.Wrap(err, "scanning control file")
		}
		// A genuinely empty document (0 bytes) is a valid, empty File —
		// used for e.g. a freshly initialized dpkg status file.
		return &File{}, nil
	}
	if strings.HasPrefix(b.Text(), "-----BEGIN PGP SIGNED MESSAGE-----") {
		for b.Scan() && strings.TrimSpace(b.Text()) != "" {
			// skip armor headers (Hash: ...) up to the blank line
		}
		if !b.Scan() {
			return nil, errors.New("truncated clearsign armor")
		}
	}

	f := &File{}
	stanza := newStanza()
	var lastField string
	for {
		if strings.HasPrefix(b.Text(), "-----BEGIN PGP SIGNATURE-----") {
			break
		}
		line := b.Text()
		switch {
		case strings.TrimSpace(line) == "":
			if len(stanza.Fields) > 0 {
				f.Stanzas = append(f.Stanzas, stanza)
				stanza = newStanza()
				lastField = ""
			}
		case strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t"):
			if lastField == "" {
				return nil, errors.New("continuation line before any field")
			}
			trimmed := strings.TrimSpace(line)
			if trimmed == "." {
				trimmed = ""
			}
			stanza.Fields[lastField] = append(stanza.Fields[lastField], trimmed)
		default:
			name, value, found := strings.Cut(line, ":")
			if !found {
				return nil, errors.Errorf("malformed field line: %q", line)
			}
			name = strings.TrimSpace(name)
			if _, dup := stanza.Fields[name]; dup {
				return nil, errors.Errorf("duplicate field %q in stanza", name)
			}
			stanza.Order = append(stanza.Order, name)
			value = strings.TrimSpace(value)
			if value == "" {
				stanza.Fields[name] = []string{}
			} else {
				stanza.Fields[name] = []string{value}
			}
			lastField = name
		}
		if !b.Scan() {
			break
		}
	}
	if err := b.Err(); err != nil {
		return nil, errors.Wrap(err, "scanning control file")
	}
	if len(stanza.Fields) > 0 {
		f.Stanzas = append(f.Stanzas, stanza)
	}
	return f, nil
}

func newStanza() Stanza {
	return Stanza{Fields: map[string][]string{}}
}
