// Package version implements Debian-style package version ordering and
// constraint matching: epoch:upstream-revision comparison as described in
// Debian Policy §5.6.12, plus the version-requirement algebra operators
// (<<, <=, =, >=, >>) used in Depends/Breaks/Conflicts fields.
package version

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/blang/semver/v4"
	"github.com/pkg/errors"
)

// Version is a parsed Debian package version: [epoch:]upstream[-revision].
type Version struct {
	Epoch    uint64
	Upstream string
	Revision string
}

// Parse parses a Debian version string. A missing epoch defaults to 0 and a
// missing revision defaults to the empty string (treated as "0" for
// ordering purposes, matching dpkg's behavior for native packages).
func Parse(s string) (Version, error) {
	var v Version
	rest := s
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		epoch, err := strconv.ParseUint(rest[:i], 10, 64)
		if err != nil {
			return Version{}, errors.Wrapf(err, "invalid epoch in version %q", s)
		}
		v.Epoch = epoch
		rest = rest[i+1:]
	}
	if rest == "" {
		return Version{}, errors.Errorf("empty upstream version in %q", s)
	}
	if i := strings.LastIndexByte(rest, '-'); i >= 0 {
		v.Upstream = rest[:i]
		v.Revision = rest[i+1:]
	} else {
		v.Upstream = rest
	}
	if !validUpstreamStart(v.Upstream) {
		return Version{}, errors.Errorf("upstream version %q must start with a digit", v.Upstream)
	}
	return v, nil
}

// MustParse is Parse but panics on error; used for literal versions in
// tests and internal call sites that construct versions from trusted data.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func validUpstreamStart(s string) bool {
	return s != "" && s[0] >= '0' && s[0] <= '9'
}

// String renders the canonical form, round-tripping with Parse.
func (v Version) String() string {
	var b strings.Builder
	if v.Epoch != 0 {
		fmt.Fprintf(&b, "%d:", v.Epoch)
	}
	b.WriteString(v.Upstream)
	if v.Revision != "" {
		b.WriteByte('-')
		b.WriteString(v.Revision)
	}
	return b.String()
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater than
// other, per Debian Policy's version-comparison algorithm.
func (v Version) Compare(other Version) int {
	if v.Epoch != other.Epoch {
		if v.Epoch < other.Epoch {
			return -1
		}
		return 1
	}
	if c := compareSegment(v.Upstream, other.Upstream); c != 0 {
		return c
	}
	return compareSegment(v.Revision, other.Revision)
}

// Equal reports whether v and other compare equal.
func (v Version) Equal(other Version) bool { return v.Compare(other) == 0 }

// GreaterThan reports whether v sorts strictly after other.
func (v Version) GreaterThan(other Version) bool { return v.Compare(other) > 0 }

// LessThan reports whether v sorts strictly before other.
func (v Version) LessThan(other Version) bool { return v.Compare(other) < 0 }

// compareSegment implements the alternating digit/non-digit comparison used
// for both the upstream-version and debian-revision parts: segments
// alternate starting with a (possibly empty) non-digit run, and each
// non-digit run is compared lexically with '~' sorting before everything
// else (including the end of string), while each digit run is compared
// numerically.
func compareSegment(a, b string) int {
	for len(a) > 0 || len(b) > 0 {
		// Compare a non-digit run.
		an, arest := nonDigitRun(a)
		bn, brest := nonDigitRun(b)
		if c := compareLexicalTilde(an, bn); c != 0 {
			return c
		}
		a, b = arest, brest

		// Compare a digit run numerically.
		ad, arest := digitRun(a)
		bd, brest := digitRun(b)
		if c := compareNumeric(ad, bd); c != 0 {
			return c
		}
		a, b = arest, brest
	}
	return 0
}

func nonDigitRun(s string) (run, rest string) {
	i := 0
	for i < len(s) && !isDigit(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

func digitRun(s string) (run, rest string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// compareLexicalTilde compares two non-digit runs character by character,
// where '~' sorts before anything, including the end of a string, letters
// sort before non-letters, and otherwise byte value order applies.
func compareLexicalTilde(a, b string) int {
	for i := 0; ; i++ {
		var ca, cb int
		haveA, haveB := i < len(a), i < len(b)
		if haveA {
			ca = charOrder(a[i])
		} else {
			ca = charOrder(0)
		}
		if haveB {
			cb = charOrder(b[i])
		} else {
			cb = charOrder(0)
		}
		if !haveA && !haveB {
			return 0
		}
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
	}
}

// charOrder assigns Debian's comparison rank to a byte: '~' is lowest, the
// implicit end-of-string (0) is next, letters outrank nothing further, and
// all other characters sort by their ASCII value above letters.
func charOrder(c byte) int {
	switch {
	case c == '~':
		return -1
	case c == 0:
		return 0
	case c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z':
		return int(c)
	default:
		return int(c) + 256
	}
}

// AppSemver parses apm's own --version string as a semver.Version rather
// than as a Debian package version: the CLI's release number follows
// semantic versioning even though every package it manages does not.
func AppSemver(s string) (semver.Version, error) {
	v, err := semver.ParseTolerant(s)
	if err != nil {
		return semver.Version{}, errors.Wrapf(err, "invalid apm version %q", s)
	}
	return v, nil
}

func compareNumeric(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
