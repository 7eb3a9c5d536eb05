package control

import (
	"strings"
	"testing"
)

func TestParseSingleStanza(t *testing.T) {
	in := `Package: libfoo
Version: 1.0-1
Description: a thing
 that does stuff
 .
 second paragraph
`
	f, err := Parse(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Stanzas) != 1 {
		t.Fatalf("got %d stanzas, want 1", len(f.Stanzas))
	}
	s := f.Stanzas[0]
	if v, _ := s.Get("Package"); v != "libfoo" {
		t.Errorf("Package = %q", v)
	}
	desc, _ := s.Get("Description")
	if !strings.Contains(desc, "second paragraph") {
		t.Errorf("Description lost continuation: %q", desc)
	}
}

func TestParseMultipleStanzas(t *testing.T) {
	in := "Package: a\nVersion: 1\n\nPackage: b\nVersion: 2\n"
	f, err := Parse(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Stanzas) != 2 {
		t.Fatalf("got %d stanzas, want 2", len(f.Stanzas))
	}
}

func TestParseDuplicateFieldErrors(t *testing.T) {
	in := "Package: a\nPackage: b\n"
	if _, err := Parse(strings.NewReader(in)); err == nil {
		t.Error("expected error on duplicate field")
	}
}

func TestParseClearsignSkipsArmor(t *testing.T) {
	in := "-----BEGIN PGP SIGNED MESSAGE-----\nHash: SHA256\n\nOrigin: Debian\nLabel: Debian\n\n-----BEGIN PGP SIGNATURE-----\nbogus\n-----END PGP SIGNATURE-----\n"
	f, err := Parse(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Stanzas) != 1 {
		t.Fatalf("got %d stanzas, want 1", len(f.Stanzas))
	}
	if v, _ := f.Stanzas[0].Get("Origin"); v != "Debian" {
		t.Errorf("Origin = %q", v)
	}
}
