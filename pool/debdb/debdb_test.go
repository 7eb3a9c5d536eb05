package debdb

import (
	"strings"
	"testing"

	"github.com/basalt-pkg/apm/control"
	"github.com/basalt-pkg/apm/pool"
)

const samplePackages = `Package: libfoo1
Version: 1.2-3
Section: libs
Installed-Size: 42
Depends: libc6 (>= 2.17), libbar1 (>= 1.0) | libbar-compat
Provides: libfoo
Filename: pool/main/libf/libfoo1/libfoo1_1.2-3_amd64.deb
Size: 1024
SHA256: 2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824
Description: the foo library

Package: libbar1
Version: 1.0-1
Section: libs
Installed-Size: 10
Filename: pool/main/libb/libbar1/libbar1_1.0-1_amd64.deb
Size: 512
SHA256: 2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824
Description: the bar library
`

func TestFromStanza(t *testing.T) {
	f, err := control.Parse(strings.NewReader(samplePackages))
	if err != nil {
		t.Fatal(err)
	}
	m, err := FromStanza(f.Stanzas[0], "https://example.org/debian")
	if err != nil {
		t.Fatal(err)
	}
	if m.Name != "libfoo1" {
		t.Errorf("Name = %q", m.Name)
	}
	if m.InstallSize != 42*1024 {
		t.Errorf("InstallSize = %d", m.InstallSize)
	}
	if len(m.Depends) != 2 {
		t.Fatalf("Depends = %+v, want 2 groups", m.Depends)
	}
	if len(m.Depends[0]) != 1 || m.Depends[0][0].Name != "libc6" {
		t.Errorf("Depends[0] = %+v", m.Depends[0])
	}
	if len(m.Depends[1]) != 2 || m.Depends[1][0].Name != "libbar1" || m.Depends[1][1].Name != "libbar-compat" {
		t.Errorf("Depends[1] = %+v", m.Depends[1])
	}
	if m.Source.URL != "https://example.org/debian/pool/main/libf/libfoo1/libfoo1_1.2-3_amd64.deb" {
		t.Errorf("Source.URL = %q", m.Source.URL)
	}
}

func TestImportStanzasAddsAllValid(t *testing.T) {
	f, err := control.Parse(strings.NewReader(samplePackages))
	if err != nil {
		t.Fatal(err)
	}
	p := pool.New()
	if err := ImportStanzas(f.Stanzas, "https://example.org/debian", p, nil); err != nil {
		t.Fatal(err)
	}
	if p.Len() != 2 {
		t.Errorf("Len() = %d, want 2", p.Len())
	}
}

func TestImportStanzasDropsInvalid(t *testing.T) {
	in := "Package: ok\nVersion: 1.0\nSection: libs\nDescription: fine\nInstalled-Size: 1\n\nVersion: missingname\n"
	f, err := control.Parse(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	p := pool.New()
	if err := ImportStanzas(f.Stanzas, "https://example.org", p, nil); err != nil {
		t.Fatal(err)
	}
	if p.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (invalid stanza should be dropped, not fail the import)", p.Len())
	}
}

func TestFromStanzaRequiresSectionDescriptionInstalledSize(t *testing.T) {
	cases := []string{
		"Package: x\nVersion: 1.0\nDescription: d\nInstalled-Size: 1\n",
		"Package: x\nVersion: 1.0\nSection: libs\nInstalled-Size: 1\n",
		"Package: x\nVersion: 1.0\nSection: libs\nDescription: d\n",
	}
	for _, in := range cases {
		f, err := control.Parse(strings.NewReader(in))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := FromStanza(f.Stanzas[0], ""); err == nil {
			t.Errorf("expected an error for stanza %q missing a required field", in)
		}
	}
}

func TestParseAlternativeStripsArchQualifierAndProfile(t *testing.T) {
	name, req, err := parseAlternative("libfoo:any [!nocheck] (>= 1.0)")
	if err != nil {
		t.Fatal(err)
	}
	if name != "libfoo" {
		t.Errorf("name = %q, want libfoo", name)
	}
	if req == nil || req.Version.String() != "1.0" {
		t.Errorf("req = %+v", req)
	}
}
