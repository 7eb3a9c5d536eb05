package localdeb

import (
	"archive/tar"
	"bytes"
	"testing"
)

func buildControlTar(t *testing.T, controlBody string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{Name: "./control", Mode: 0o644, Size: int64(len(controlBody))}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write([]byte(controlBody)); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf
}

func TestExtractControlStanzaFindsControlFile(t *testing.T) {
	buf := buildControlTar(t, "Package: foo\nVersion: 1.0-1\n")
	s, err := extractControlStanza(buf)
	if err != nil {
		t.Fatal(err)
	}
	if name, _ := s.Get("Package"); name != "foo" {
		t.Errorf("Package = %q, want foo", name)
	}
}

func TestExtractControlStanzaMissingControlFile(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{Name: "./md5sums", Mode: 0o644, Size: 0}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatal(err)
	}
	tw.Close()

	_, err := extractControlStanza(&buf)
	if err == nil {
		t.Fatal("expected an error when no control file is present")
	}
}
